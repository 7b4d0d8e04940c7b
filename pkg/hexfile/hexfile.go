// Package hexfile emits the Intel HEX image the linker produces, grounded
// on original_source/picc/linker.py's _buildhex (which hands the placed
// sections to the intelhex library) and on the teacher's programfilewriter.go
// shape: a small writer type that walks a program's own data structures and
// streams formatted lines to an io.Writer, returning an error instead of
// panicking.
//
// There is no Go library in the retrieved examples for Intel HEX; this is a
// direct implementation rather than a wrapped dependency (see DESIGN.md).
package hexfile

import (
	"bytes"
	"fmt"
	"io"
	"sort"
)

const (
	recData                = 0x00
	recEndOfFile           = 0x01
	recExtendedLinearAddr  = 0x04
	maxRecordLen           = 16
)

// Image is a sparse byte buffer addressed by absolute program/data address,
// built up one section at a time and then serialized as Intel HEX.
type Image struct {
	runs map[uint32][]byte // address -> contiguous bytes, non-overlapping
}

// NewImage returns an empty image.
func NewImage() *Image {
	return &Image{runs: make(map[uint32][]byte)}
}

// Put stores data at address, as one placed section's final bytes.
func (img *Image) Put(address uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	img.runs[address] = cp
}

// WriteTo serializes the image as Intel HEX records, in address-ascending
// order, splitting each run into maxRecordLen-byte data records and
// inserting an extended linear address record before the first data record
// and before any data record whose start address lies in a different 64KiB
// window than the previous one.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	addrs := make([]uint32, 0, len(img.runs))
	for a := range img.runs {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var buf bytes.Buffer
	var upperWritten uint32
	haveUpper := false

	for _, addr := range addrs {
		data := img.runs[addr]
		for off := 0; off < len(data); off += maxRecordLen {
			end := off + maxRecordLen
			if end > len(data) {
				end = len(data)
			}
			chunk := data[off:end]
			chunkAddr := addr + uint32(off)

			upper := chunkAddr >> 16
			if !haveUpper || upper != upperWritten {
				writeRecord(&buf, recExtendedLinearAddr, 0, []byte{byte(upper >> 8), byte(upper)})
				upperWritten = upper
				haveUpper = true
			}
			writeRecord(&buf, recData, uint16(chunkAddr), chunk)
		}
	}
	writeRecord(&buf, recEndOfFile, 0, nil)

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// writeRecord appends one ":LLAAAATT[DD...]CC\n" line to buf.
func writeRecord(buf *bytes.Buffer, recType byte, addr uint16, data []byte) {
	sum := byte(len(data)) + byte(addr>>8) + byte(addr) + recType
	for _, b := range data {
		sum += b
	}
	checksum := byte(0x100 - int(sum)&0xff)

	fmt.Fprintf(buf, ":%02X%04X%02X", len(data), addr, recType)
	for _, b := range data {
		fmt.Fprintf(buf, "%02X", b)
	}
	fmt.Fprintf(buf, "%02X\n", checksum)
}
