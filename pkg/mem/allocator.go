// Package mem implements the linker's free-list memory allocator: a single
// ordered run of holes covering one address space, grounded on
// original_source/picc/linker.py's _FreeMemory/_MemoryAllocator classes. The
// linker keeps one Allocator per target memory space (program memory and
// data memory).
package mem

import "fmt"

// hole is a consecutive run of free bytes.
type hole struct {
	start uint32
	size  uint32
}

func (h hole) end() uint32 { return h.start + h.size } // exclusive

// intersect returns the overlap of h and o, or (hole{}, false) if they don't
// overlap.
func (h hole) intersect(o hole) (hole, bool) {
	start := h.start
	if o.start > start {
		start = o.start
	}
	end := h.end()
	if o.end() < end {
		end = o.end()
	}
	if start >= end {
		return hole{}, false
	}
	return hole{start: start, size: end - start}, true
}

// contains reports whether o lies entirely within h.
func (h hole) contains(o hole) bool {
	return o.start >= h.start && o.end() <= h.end()
}

// subtract removes o from h, where o must lie within h. It returns up to two
// remaining holes: the leftover before o and the leftover after it.
func (h hole) subtract(o hole) []hole {
	var out []hole
	if o.start > h.start {
		out = append(out, hole{start: h.start, size: o.start - h.start})
	}
	if o.end() < h.end() {
		out = append(out, hole{start: o.end(), size: h.end() - o.end()})
	}
	return out
}

// Allocator hands out non-overlapping byte ranges within [0, capacity).
// It is not safe for concurrent use; the linker allocates one space at a
// time per memory kind.
type Allocator struct {
	free []hole
}

// New returns an allocator for an address space of the given capacity, with
// every byte initially free.
func New(capacity uint32) *Allocator {
	return &Allocator{free: []hole{{start: 0, size: capacity}}}
}

// Alloc finds the first free run of at least size bytes and returns its
// start address. This is the free-fit mode: no placement is implied beyond
// "somewhere with room" (spec.md §4.3, relocatable sections).
func (a *Allocator) Alloc(size uint32) (uint32, bool) {
	for i, h := range a.free {
		if size <= h.size {
			addr := h.start
			a.free[i] = hole{start: h.start + size, size: h.size - size}
			return addr, true
		}
	}
	return 0, false
}

// AllocAt allocates exactly size bytes at exactly start, failing if any byte
// in that range is already taken. This is the pinned mode used for ABS
// sections (spec.md §4.3).
func (a *Allocator) AllocAt(size, start uint32) (uint32, bool) {
	want := hole{start: start, size: size}
	for i, h := range a.free {
		if h.contains(want) {
			a.free = replace(a.free, i, h.subtract(want))
			return start, true
		}
	}
	return 0, false
}

// AllocBounded allocates size bytes somewhere in [start, end), failing if no
// hole has enough room in that window. The window length is end-start, not
// inclusive of end; this matches the behavior preserved from the original
// allocator rather than a more "natural" inclusive reading (spec.md §4.3,
// access-bank placement).
func (a *Allocator) AllocBounded(size, start, end uint32) (uint32, bool) {
	window := hole{start: start, size: end - start}
	for i, h := range a.free {
		overlap, ok := h.intersect(window)
		if !ok || size > overlap.size {
			continue
		}
		taken := hole{start: overlap.start, size: size}
		a.free = replace(a.free, i, h.subtract(taken))
		return taken.start, true
	}
	return 0, false
}

// replace substitutes the hole at index i in holes with the (zero, one, or
// two) holes in repl, preserving order.
func replace(holes []hole, i int, repl []hole) []hole {
	out := make([]hole, 0, len(holes)-1+len(repl))
	out = append(out, holes[:i]...)
	out = append(out, repl...)
	out = append(out, holes[i+1:]...)
	return out
}

// FreeBytes returns the total number of bytes still unallocated, useful for
// diagnostics and tests asserting the conservation invariant (spec.md §8).
func (a *Allocator) FreeBytes() uint32 {
	var total uint32
	for _, h := range a.free {
		total += h.size
	}
	return total
}

// String renders the free-hole list for debugging.
func (a *Allocator) String() string {
	return fmt.Sprintf("%v", a.free)
}
