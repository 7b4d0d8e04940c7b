package link

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pic18kit/ld18/pkg/diag"
	"github.com/pic18kit/ld18/pkg/objfile"
	"github.com/pic18kit/ld18/pkg/proc"
)

func testPicinfo() proc.Record {
	return proc.Record{Name: "18f2550", RAM: 0x800, Access: 0x60, ProgMem: 0x8000}
}

func newSink() (*diag.Sink, *bytes.Buffer) {
	var buf bytes.Buffer
	return diag.NewSink(&buf), &buf
}

// codeSection builds a minimal two-byte TEXT section with opcode 0x0000 and
// one relocation targeting sym.
func codeSection(name string, typ uint16, sym *objfile.Symbol) *objfile.Section {
	return &objfile.Section{
		Name:  name,
		Flags: objfile.FlagText,
		Size:  2,
		Data:  []byte{0x00, 0x00},
		Relocations: []objfile.Relocation{
			{Address: 0, Symbol: sym, Offset: 0, Type: typ},
		},
	}
}

func TestLink_MinimalGotoPatch(t *testing.T) {
	target := &objfile.Section{Name: ".target", Flags: objfile.FlagText, Size: 2, Data: []byte{0, 0}}
	targetSym := &objfile.Symbol{Name: "target", Value: 0, Section: objfile.SymbolSection{Kind: objfile.SectionRef, Ref: target}}

	caller := codeSection(".caller", relocGoto, targetSym)

	obj := &objfile.Object{
		FileName:  "a.o",
		Processor: "18f2550",
		Sections:  []*objfile.Section{nil, caller, target},
		Symbols:   []*objfile.Symbol{targetSym},
	}

	sink, _ := newSink()
	img, err := Link([]*objfile.Object{obj}, testPicinfo(), sink)
	require.NoError(t, err)
	assert.Equal(t, 0, sink.ErrorCount())

	// target placed at address 2 (right after caller's 2 bytes), GOTO masks
	// (value/2) & 0xff into the low byte.
	assert.Equal(t, uint32(2), target.PAddress)
	want := uint16(target.PAddress / 2)
	got := uint16(caller.Data[0]) | uint16(caller.Data[1])<<8
	assert.Equal(t, want&0xff, got&0xff)
	_ = img
}

func TestLink_BraOutOfRangeReportsError(t *testing.T) {
	far := &objfile.Section{Name: ".far", Flags: objfile.FlagText, Size: 4000, Data: make([]byte, 4000)}
	farSym := &objfile.Symbol{Name: "far", Value: 0, Section: objfile.SymbolSection{Kind: objfile.SectionRef, Ref: far}}
	caller := codeSection(".caller", relocBraRcall, farSym)

	obj := &objfile.Object{
		FileName:  "a.o",
		Processor: "18f2550",
		Sections:  []*objfile.Section{nil, far, caller}, // caller lands 4000 bytes past far
		Symbols:   []*objfile.Symbol{farSym},
	}

	sink, out := newSink()
	_, err := Link([]*objfile.Object{obj}, testPicinfo(), sink)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.ErrorCount())
	assert.Contains(t, out.String(), "relative jump too long")
}

func TestPlace_AbsoluteConflictReportsError(t *testing.T) {
	a := &objfile.Section{Name: ".a", Flags: objfile.FlagText | objfile.FlagAbs, PAddress: 0x100, Size: 0x10}
	b := &objfile.Section{Name: ".b", Flags: objfile.FlagText | objfile.FlagAbs, PAddress: 0x104, Size: 0x10}

	obj := &objfile.Object{FileName: "a.o", Sections: []*objfile.Section{nil, a, b}}

	sink, out := newSink()
	_, _, unplaced := Place([]*objfile.Object{obj}, testPicinfo(), sink)

	assert.Equal(t, 1, sink.ErrorCount())
	assert.Contains(t, out.String(), ".b")
	require.Len(t, unplaced, 1)
	assert.Equal(t, ".b", unplaced[0].Name)
}

func TestPlace_AccessBankBounded(t *testing.T) {
	s := &objfile.Section{Name: ".accessvars", Flags: objfile.FlagBSS | objfile.FlagAccess, Size: 4}
	obj := &objfile.Object{FileName: "a.o", Sections: []*objfile.Section{nil, s}}

	sink, _ := newSink()
	_, datamem, _ := Place([]*objfile.Object{obj}, testPicinfo(), sink)

	require.Equal(t, 0, sink.ErrorCount())
	assert.LessOrEqual(t, s.PAddress+s.Size, uint32(0x60))
	assert.Equal(t, uint32(0x800-4), datamem.FreeBytes())
}

func TestExternals_DuplicateReportsError(t *testing.T) {
	sec1 := &objfile.Section{Name: ".text", Flags: objfile.FlagText, Size: 2, Data: []byte{0, 0}}
	sec2 := &objfile.Section{Name: ".text", Flags: objfile.FlagText, Size: 2, Data: []byte{0, 0}}
	sym1 := &objfile.Symbol{Name: "foo", StorageClass: objfile.ClassExt, Section: objfile.SymbolSection{Kind: objfile.SectionRef, Ref: sec1}}
	sym2 := &objfile.Symbol{Name: "foo", StorageClass: objfile.ClassExt, Section: objfile.SymbolSection{Kind: objfile.SectionRef, Ref: sec2}}

	o1 := &objfile.Object{FileName: "a.o", Sections: []*objfile.Section{nil, sec1}, Symbols: []*objfile.Symbol{sym1}}
	o2 := &objfile.Object{FileName: "b.o", Sections: []*objfile.Section{nil, sec2}, Symbols: []*objfile.Symbol{sym2}}

	sink, out := newSink()
	externals := Externals([]*objfile.Object{o1, o2}, sink)

	assert.Equal(t, 1, sink.ErrorCount())
	assert.Contains(t, out.String(), "duplicate symbol")
	assert.Same(t, sym1, externals["foo"])
}

func TestApplyRelocations_UnimplementedTypeIsFatal(t *testing.T) {
	targetSec := &objfile.Section{Name: ".t", Flags: objfile.FlagText}
	target := &objfile.Symbol{Name: "t", Section: objfile.SymbolSection{Kind: objfile.SectionRef, Ref: targetSec}}
	caller := codeSection(".caller", relocHigh, target)
	obj := &objfile.Object{FileName: "a.o", Sections: []*objfile.Section{nil, caller}}

	sink, _ := newSink()
	err := ApplyRelocations([]*objfile.Object{obj}, map[string]*objfile.Symbol{}, testPicinfo(), sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnimplementedRelocation)
}

func TestPatchTable_Goto2PreservesNonTextbookShift(t *testing.T) {
	// GOTO2 masks (value/2 >> 8) & 0xfff, not the textbook (value >> 8) & 0xfff
	// (SPEC_FULL.md REDESIGN FLAGS).
	sec := &objfile.Section{Name: ".c", Flags: objfile.FlagText, Size: 2, Data: []byte{0, 0}}
	value := uint32(0x9876)
	ctx := relocContext{filename: "a.o", section: sec, offset: 0, value: value, picinfo: testPicinfo()}

	got := patchTable[relocGoto2](ctx, nil)
	want := uint16((value/2)>>8) & 0xfff

	assert.Equal(t, want, got)
	assert.NotEqual(t, uint16(value>>8)&0xfff, got, "must not use the textbook shift")
}

func TestPatchTable_AccessThresholdUsesFullyRelocatedValue(t *testing.T) {
	picinfo := testPicinfo() // Access = 0x60
	sec := &objfile.Section{Name: ".c", Flags: objfile.FlagText, Size: 2, Data: []byte{0, 0}}

	below := relocContext{section: sec, value: picinfo.Access - 1, picinfo: picinfo}
	assert.Equal(t, uint16(0), patchTable[relocAccess](below, nil)&0x0100)

	above := relocContext{section: sec, value: picinfo.Access, picinfo: picinfo}
	assert.Equal(t, uint16(0x0100), patchTable[relocAccess](above, nil)&0x0100)
}

func TestApplyRelocations_UndefinedSymbolReportedOnce(t *testing.T) {
	undef := &objfile.Symbol{Name: "missing", Section: objfile.SymbolSection{Kind: objfile.SectionUndefined}}
	caller := codeSection(".caller", relocGoto, undef)
	obj := &objfile.Object{FileName: "a.o", Sections: []*objfile.Section{nil, caller}}

	sink, out := newSink()
	err := ApplyRelocations([]*objfile.Object{obj}, map[string]*objfile.Symbol{}, testPicinfo(), sink)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.ErrorCount())
	assert.Contains(t, out.String(), "undefined symbol 'missing'")
}
