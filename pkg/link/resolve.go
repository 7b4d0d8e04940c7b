package link

import (
	"github.com/pic18kit/ld18/pkg/diag"
	"github.com/pic18kit/ld18/pkg/mem"
	"github.com/pic18kit/ld18/pkg/objfile"
	"github.com/pic18kit/ld18/pkg/proc"
)

// Image is the result of a successful link: every object's sections now
// carry final physical addresses and patched code, ready for pkg/hexfile.
type Image struct {
	Objects  []*objfile.Object
	Code     *mem.Allocator
	Data     *mem.Allocator
	Unplaced []*objfile.Section // sections that failed placement; relocatable ones are at paddress 0
}

// Link runs the full placement -> externals -> relocation pipeline over a
// set of decoded objects, mirroring the shape of the original's top-level
// link() function (and, in spirit, the teacher's Resolve pipeline:
// placement and relocation each narrow what the next stage has to consider,
// the way ResolveSymbols narrows what ResolveMemory has to place).
//
// A processor mismatch between objects is reported as a warning, not an
// error (spec.md §8, REDESIGN FLAGS); objects[0]'s processor picks picinfo.
func Link(objects []*objfile.Object, picinfo proc.Record, sink *diag.Sink) (*Image, error) {
	if len(objects) == 0 {
		panic("link: no objects to link")
	}

	processor := objects[0].Processor
	for _, o := range objects[1:] {
		if o.Processor != processor {
			sink.Warn(o.FileName, "processor mismatch")
		}
	}

	codemem, datamem, unplaced := Place(objects, picinfo, sink)
	externals := Externals(objects, sink)
	if err := ApplyRelocations(objects, externals, picinfo, sink); err != nil {
		return nil, err
	}

	return &Image{Objects: objects, Code: codemem, Data: datamem, Unplaced: unplaced}, nil
}
