package objfile

import (
	"bytes"
	"encoding/binary"
)

// StringTable is the trailing string blob of a COFF object, stored without
// its 4-byte size prefix (spec.md §4.1).
type StringTable []byte

// at returns the NUL-terminated string starting at offset, where offset is
// the on-disk offset (which includes the 4 bytes of the size prefix that
// this table has already had stripped).
func (t StringTable) at(offset uint32) (string, error) {
	off := int(offset) - 4
	if off < 0 || off > len(t) {
		return "", ErrBadIndex
	}
	end := bytes.IndexByte(t[off:], 0)
	if end < 0 {
		return "", ErrTruncated
	}
	return string(t[off : off+end]), nil
}

// resolveName decodes an 8-byte name slot per spec.md §4.1: two little-endian
// u32 words (zeroes, offset). If zeroes == 0 the name lives in the string
// table at offset; otherwise the 8 bytes are the NUL-padded name itself.
func (t StringTable) resolveName(slot [8]byte) (string, error) {
	zeroes := binary.LittleEndian.Uint32(slot[0:4])
	offset := binary.LittleEndian.Uint32(slot[4:8])
	if zeroes == 0 {
		return t.at(offset)
	}
	return asciiFromFixed(slot[:])
}

func asciiFromFixed(b []byte) (string, error) {
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		end = len(b)
	}
	for _, c := range b[:end] {
		if c < 0x20 || c > 0x7e {
			return "", ErrBadName
		}
	}
	return string(b[:end]), nil
}
