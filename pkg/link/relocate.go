package link

import (
	"fmt"

	"github.com/pic18kit/ld18/pkg/diag"
	"github.com/pic18kit/ld18/pkg/objfile"
	"github.com/pic18kit/ld18/pkg/proc"
	"github.com/pic18kit/ld18/pkg/utils"
)

// Relocation type codes from the assembler's COFF output (spec.md §4.5).
const (
	relocCall        = 1
	relocGoto        = 2
	relocHigh        = 3
	relocLow         = 4
	relocP           = 5
	relocBankSel     = 6
	relocPageSel     = 7
	relocAll         = 8
	relocIBankSel    = 9
	relocF           = 10
	relocTris        = 11
	relocMovlr       = 12
	relocMovlb       = 13
	relocGoto2       = 14
	relocFF1         = 15
	relocFF2         = 16
	relocLFSR1       = 17
	relocLFSR2       = 18
	relocBraRcall    = 19
	relocCondBra     = 20
	relocUpper       = 21
	relocAccess      = 22
	relocPageSelWReg = 23
	relocPageSelBits = 24
	relocScnszLow    = 25
	relocScnszHigh   = 26
	relocScnszUpper  = 27
	relocScnendLow   = 28
	relocScnendHigh  = 29
	relocScnendUpper = 30
	relocScnendLFSR1 = 31
	relocScnendLFSR2 = 32
)

// ErrUnimplementedRelocation marks a relocation type with no patch function.
// Encountering one aborts the link (spec.md §7, fatal).
var ErrUnimplementedRelocation = fmt.Errorf("unimplemented relocation")

// relocContext gathers what a patch function needs: the fully-resolved
// target value (already including the symbol's section base address), the
// instruction's own physical address, and its current opcode word.
// Grounded on original_source/picc/linker.py's _RelocationContext.
type relocContext struct {
	filename string
	section  *objfile.Section
	offset   uint32
	value    uint32
	picinfo  proc.Record
}

func (c relocContext) address() uint32 { return c.section.PAddress + c.offset }

func (c relocContext) opcode() uint16 {
	d := c.section.Data
	return uint16(d[c.offset]) | uint16(d[c.offset+1])<<8
}

// patch computes the new opcode word for one relocation. Range violations
// are reported through sink and the original opcode is returned unpatched,
// matching the original's "report and continue" behavior for relative
// branches.
type patch func(c relocContext, sink *diag.Sink) uint16

var patchTable = map[uint16]patch{
	relocCall: func(c relocContext, _ *diag.Sink) uint16 {
		return c.opcode() | uint16(c.value/2)&0xff
	},
	relocGoto: func(c relocContext, _ *diag.Sink) uint16 {
		return c.opcode() | uint16(c.value/2)&0xff
	},
	relocF: func(c relocContext, _ *diag.Sink) uint16 {
		return c.opcode() | uint16(c.value)&0xff
	},
	// GOTO2 masks (value/2 >> 8) & 0xfff rather than the textbook
	// (value >> 8) & 0xfff; this is preserved source semantics, not a bug
	// (see SPEC_FULL.md REDESIGN FLAGS).
	relocGoto2: func(c relocContext, _ *diag.Sink) uint16 {
		return c.opcode() | uint16((c.value/2)>>8)&0xfff
	},
	relocFF1: func(c relocContext, _ *diag.Sink) uint16 {
		return c.opcode() | uint16(c.value)&0xfff
	},
	relocFF2: func(c relocContext, _ *diag.Sink) uint16 {
		return c.opcode() | uint16(c.value)&0xfff
	},
	relocLFSR1: func(c relocContext, _ *diag.Sink) uint16 {
		return c.opcode() | uint16(c.value>>8)&0x0f
	},
	relocLFSR2: func(c relocContext, _ *diag.Sink) uint16 {
		return c.opcode() | uint16(c.value)&0xff
	},
	relocBraRcall: braRcallPatch,
	relocCondBra:  condBraPatch,
	// ACCESS clears or sets bit 8 depending on whether value falls inside
	// the access bank; the threshold is the fully-relocated value, not a
	// section-relative one (SPEC_FULL.md REDESIGN FLAGS).
	relocAccess: func(c relocContext, _ *diag.Sink) uint16 {
		if c.value < c.picinfo.Access {
			return c.opcode() &^ 0x0100
		}
		return c.opcode() | 0x0100
	},
}

func braRcallPatch(c relocContext, sink *diag.Sink) uint16 {
	offset := (int32(c.value) - int32(c.address()) - 2) / 2
	if offset < -1024 || offset > 1023 {
		sink.ErrorAt(c.filename, c.section.Name, c.offset,
			"relative jump too long (use 'goto' or 'call' instead)")
		return c.opcode()
	}
	op := c.opcode()
	utils.CreateBitView(&op).Write(uint16(offset), 0, 11)
	return op
}

func condBraPatch(c relocContext, sink *diag.Sink) uint16 {
	offset := (int32(c.value) - int32(c.address()) - 2) / 2
	if offset < -128 || offset > 127 {
		sink.ErrorAt(c.filename, c.section.Name, c.offset,
			"conditional branch too long (use 'goto' instead)")
		return c.opcode()
	}
	op := c.opcode()
	utils.CreateBitView(&op).Write(uint16(offset), 0, 8)
	return op
}

// ApplyRelocations patches every code section's instruction words using its
// relocation table, resolving each symbol against the external-symbol table
// when it isn't defined locally (spec.md §4.4-4.5, _applyrelocations). It
// returns immediately on the first unimplemented relocation type; every
// other problem (undefined symbols, out-of-range branches) is reported
// through sink and linking continues.
func ApplyRelocations(objects []*objfile.Object, externals map[string]*objfile.Symbol, picinfo proc.Record, sink *diag.Sink) error {
	for _, o := range objects {
		for _, s := range o.Sections[1:] {
			if !s.IsCode() {
				continue
			}
			for _, r := range s.Relocations {
				if err := applyOne(o, s, r, externals, picinfo, sink); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func applyOne(o *objfile.Object, s *objfile.Section, r objfile.Relocation, externals map[string]*objfile.Symbol, picinfo proc.Record, sink *diag.Sink) error {
	symbol := r.Symbol
	if !symbol.IsDefined() {
		resolved, ok := externals[symbol.Name]
		if !ok {
			sink.UndefinedSymbol(o.FileName, s.Name, r.Address, symbol.Name)
			return nil
		}
		symbol = resolved
	}

	value := uint32(int32(symbol.Value) + int32(r.Offset))
	if !symbol.Section.IsAbsolute() && symbol.Section.Kind == objfile.SectionRef {
		value += symbol.Section.Ref.PAddress
	}

	patchFn, ok := patchTable[r.Type]
	if !ok {
		return fmt.Errorf("%s: %w %d", o.FileName, ErrUnimplementedRelocation, r.Type)
	}

	ctx := relocContext{filename: o.FileName, section: s, offset: r.Address, value: value, picinfo: picinfo}
	opcode := patchFn(ctx, sink)
	s.Data[r.Address] = byte(opcode)
	s.Data[r.Address+1] = byte(opcode >> 8)
	return nil
}
