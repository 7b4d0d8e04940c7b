package objfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// name8 packs a short name into the inline 8-byte slot form (first four
// bytes non-zero means "this is the name itself, NUL-padded", spec.md §4.1).
func name8(s string) [8]byte {
	var b [8]byte
	copy(b[:], s)
	return b
}

func putStruct(buf *bytes.Buffer, v any) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

// buildMinimalObject assembles a one-section, zero-symbol COFF object with
// no optional header: a TEXT section carrying two bytes of data and no
// relocations.
func buildMinimalObject(t *testing.T) []byte {
	t.Helper()

	const (
		sectionHdrOffset = HeaderSize // 20
		symPtr           = sectionHdrOffset + sectionHeaderSize
		strtabOffset     = symPtr // 0 symbols
		strtabSize       = 5      // 4-byte size field + 1 NUL byte
		dataOffset       = strtabOffset + strtabSize
	)

	var buf bytes.Buffer
	putStruct(&buf, FileHeader{
		Magic:         Magic,
		NumSections:   1,
		Timestamp:     0,
		SymPtr:        symPtr,
		NumSymbols:    0,
		OptHeaderSize: 0,
		Flags:         0,
	})

	putStruct(&buf, sectionHeaderRaw{
		Name:    name8(".text"),
		PAddr:   0,
		VAddr:   0,
		Size:    2,
		ScnPtr:  dataOffset,
		RelPtr:  0,
		LnnoPtr: 0,
		NReloc:  0,
		NLnno:   0,
		Flags:   FlagText,
	})

	// String table: size=5, body is a single NUL byte.
	binary.Write(&buf, binary.LittleEndian, uint32(strtabSize))
	buf.WriteByte(0)

	buf.Write([]byte{0xAA, 0xBB})

	require.Equal(t, dataOffset+2, buf.Len())
	return buf.Bytes()
}

func TestDecode_MinimalObject(t *testing.T) {
	data := buildMinimalObject(t)

	obj, err := Decode(bytes.NewReader(data), "min.o")
	require.NoError(t, err)

	assert.Equal(t, "min.o", obj.FileName)
	assert.Empty(t, obj.Processor) // no optional header
	require.Len(t, obj.Sections, 2)
	require.Nil(t, obj.Sections[0])

	sec := obj.Sections[1]
	assert.Equal(t, ".text", sec.Name)
	assert.Equal(t, uint32(2), sec.Size)
	assert.Equal(t, []byte{0xAA, 0xBB}, sec.Data)
	assert.True(t, sec.IsCode())
	assert.Empty(t, sec.Relocations)
}

func TestDecode_RejectsBadMagic(t *testing.T) {
	data := buildMinimalObject(t)
	data[0] = 0xFF // corrupt the magic's low byte

	_, err := Decode(bytes.NewReader(data), "bad.o")
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecode_RejectsTruncatedHeader(t *testing.T) {
	data := buildMinimalObject(t)[:10]

	_, err := Decode(bytes.NewReader(data), "short.o")
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecode_RejectsOddCodeSectionSize(t *testing.T) {
	data := buildMinimalObject(t)
	// sectionHeaderRaw layout: Name[8], PAddr, VAddr, Size, ...
	const sizeFieldOffset = HeaderSize + 8 + 4 + 4
	binary.LittleEndian.PutUint32(data[sizeFieldOffset:], 3)

	_, err := Decode(bytes.NewReader(data), "odd.o")
	assert.ErrorIs(t, err, ErrOddCodeSize)
}

func TestDecode_OptionalHeaderSetsProcessor(t *testing.T) {
	const (
		optSize          = 18
		sectionHdrOffset = HeaderSize + optSize
		symPtr           = sectionHdrOffset + sectionHeaderSize
		strtabOffset     = symPtr
		strtabSize       = 5
		dataOffset       = strtabOffset + strtabSize
	)

	var buf bytes.Buffer
	putStruct(&buf, FileHeader{
		Magic:         Magic,
		NumSections:   1,
		SymPtr:        symPtr,
		OptHeaderSize: optSize,
	})
	putStruct(&buf, OptionalHeader{
		Magic:    0,
		VStamp:   0,
		ProcType: 0x2550,
		RomWidth: 16,
		RamWidth: 8,
	})
	putStruct(&buf, sectionHeaderRaw{
		Name:   name8(".text"),
		Size:   2,
		ScnPtr: dataOffset,
		Flags:  FlagText,
	})
	binary.Write(&buf, binary.LittleEndian, uint32(strtabSize))
	buf.WriteByte(0)
	buf.Write([]byte{0x00, 0x00})

	obj, err := Decode(bytes.NewReader(buf.Bytes()), "withopt.o")
	require.NoError(t, err)
	assert.Equal(t, "18f2550", obj.Processor)
	assert.Equal(t, uint32(16), obj.RomWidth)
	assert.Equal(t, uint32(8), obj.RamWidth)
}

func TestDecode_UnknownProcessorTypeFails(t *testing.T) {
	const (
		optSize          = 18
		sectionHdrOffset = HeaderSize + optSize
		symPtr           = sectionHdrOffset
	)
	var buf bytes.Buffer
	putStruct(&buf, FileHeader{
		Magic:         Magic,
		NumSections:   0,
		SymPtr:        symPtr,
		OptHeaderSize: optSize,
	})
	putStruct(&buf, OptionalHeader{ProcType: 0xBEEF})
	binary.Write(&buf, binary.LittleEndian, uint32(5))
	buf.WriteByte(0)

	_, err := Decode(bytes.NewReader(buf.Bytes()), "unk.o")
	assert.ErrorIs(t, err, ErrUnknownProcessor)
}
