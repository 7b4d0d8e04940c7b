// Package link places sections into target memory, resolves external
// symbols across objects and patches relocations, grounded on
// original_source/picc/linker.py's _allocsections/_getexternals/
// _applyrelocations.
package link

import (
	"fmt"

	"github.com/pic18kit/ld18/pkg/diag"
	"github.com/pic18kit/ld18/pkg/mem"
	"github.com/pic18kit/ld18/pkg/objfile"
	"github.com/pic18kit/ld18/pkg/proc"
)

type sectionRef struct {
	sec *objfile.Section
	obj *objfile.Object
}

// allocatorFor picks the memory space a section belongs to: code and
// initialized program data live in program memory, uninitialized data lives
// in RAM (spec.md §4.3, _getallocator).
func allocatorFor(s *objfile.Section, codemem, datamem *mem.Allocator) *mem.Allocator {
	switch {
	case s.IsCode() || s.IsProgramData():
		return codemem
	case s.IsUdata():
		return datamem
	default:
		return nil
	}
}

// Place assigns a physical address to every section across every object, in
// three waves: absolute sections first (pinned at their recorded address),
// then access-bank sections (bounded to [0, picinfo.Access)), then every
// remaining relocatable section (free-fit, address-ascending). A section
// that can't be placed is reported through sink and returned in unplaced so
// callers can decide whether to still emit its bytes (spec.md §4.3, §4.6
// note; SPEC_FULL.md --keep-unplaced). An unplaced relocatable section is
// set to address 0; an unplaced absolute or access-bank section keeps the
// address it already had.
func Place(objects []*objfile.Object, picinfo proc.Record, sink *diag.Sink) (codemem, datamem *mem.Allocator, unplaced []*objfile.Section) {
	codemem = mem.New(picinfo.ProgMem)
	datamem = mem.New(picinfo.RAM)

	var absolute, access, relocatable []sectionRef
	for _, o := range objects {
		for _, s := range o.Sections[1:] {
			ref := sectionRef{sec: s, obj: o}
			switch {
			case s.IsAbsolute():
				absolute = append(absolute, ref)
			case s.IsAccess():
				access = append(access, ref)
			default:
				relocatable = append(relocatable, ref)
			}
		}
	}

	unplaced = append(unplaced, placeAbsolute(absolute, codemem, datamem, sink)...)
	unplaced = append(unplaced, placeAccess(access, picinfo, datamem, sink)...)
	unplaced = append(unplaced, placeRelocatable(relocatable, codemem, datamem, sink)...)

	return codemem, datamem, unplaced
}

func placeAbsolute(refs []sectionRef, codemem, datamem *mem.Allocator, sink *diag.Sink) []*objfile.Section {
	var failed []*objfile.Section
	for _, r := range refs {
		a := allocatorFor(r.sec, codemem, datamem)
		if a == nil {
			continue
		}
		if _, ok := a.AllocAt(r.sec.Size, r.sec.PAddress); !ok {
			reportUnplaced(sink, r)
			failed = append(failed, r.sec)
		}
	}
	return failed
}

// placeAccess always allocates out of data memory, matching
// original_source/picc/linker.py:323: the access bank is a window onto RAM
// regardless of whether the section also carries the BSS flag.
func placeAccess(refs []sectionRef, picinfo proc.Record, datamem *mem.Allocator, sink *diag.Sink) []*objfile.Section {
	var failed []*objfile.Section
	for _, r := range refs {
		addr, ok := datamem.AllocBounded(r.sec.Size, 0, picinfo.Access)
		if !ok {
			reportUnplaced(sink, r)
			failed = append(failed, r.sec)
			continue
		}
		r.sec.PAddress = addr
	}
	return failed
}

func placeRelocatable(refs []sectionRef, codemem, datamem *mem.Allocator, sink *diag.Sink) []*objfile.Section {
	var failed []*objfile.Section
	for _, r := range refs {
		a := allocatorFor(r.sec, codemem, datamem)
		if a == nil {
			continue
		}
		addr, ok := a.Alloc(r.sec.Size)
		if !ok {
			reportUnplaced(sink, r)
			r.sec.PAddress = 0
			failed = append(failed, r.sec)
			continue
		}
		r.sec.PAddress = addr
	}
	return failed
}

func reportUnplaced(sink *diag.Sink, r sectionRef) {
	sink.Error(r.obj.FileName, fmt.Sprintf("no target memory available for section '%s'", r.sec.Name))
}
