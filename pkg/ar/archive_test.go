package ar

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// header builds one 60-byte GNU ar member header. name (a short name or a
// "/N" long-name reference) is left-justified and space-padded into the
// 16-byte name field.
func header(name string, size int) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%-16s", name)
	fmt.Fprintf(&b, "%-12s", "0")  // mtime
	fmt.Fprintf(&b, "%-6s", "0")   // uid
	fmt.Fprintf(&b, "%-6s", "0")   // gid
	fmt.Fprintf(&b, "%-8s", "100644") // mode
	fmt.Fprintf(&b, "%-10d", size)
	b.WriteString("`\n")
	if b.Len() != headerSize {
		panic(fmt.Sprintf("bad header length %d", b.Len()))
	}
	return b.Bytes()
}

func writeMember(buf *bytes.Buffer, name string, data []byte) {
	buf.Write(header(name, len(data)))
	buf.Write(data)
	if len(data)%2 != 0 {
		buf.WriteByte('\n')
	}
}

func TestIsArchive_RecognizesMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	writeMember(&buf, "a.o", []byte{0x01, 0x02})

	r := bytes.NewReader(buf.Bytes())
	ok, err := IsArchive(r)
	require.NoError(t, err)
	assert.True(t, ok)

	// IsArchive must not consume the stream.
	pos, err := r.Seek(0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
}

func TestIsArchive_RejectsPlainObject(t *testing.T) {
	r := bytes.NewReader([]byte{0x40, 0x12, 0, 0, 0, 0, 0, 0})
	ok, err := IsArchive(r)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtract_ShortNamedMembers(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	writeMember(&buf, "a.o", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	writeMember(&buf, "b.o", []byte{0x01}) // odd size, needs pad byte

	members, err := Extract(&buf, "test.a")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "a.o", members[0].Name)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, members[0].Data)
	assert.Equal(t, "b.o", members[1].Name)
	assert.Equal(t, []byte{0x01}, members[1].Data)
}

func TestExtract_ResolvesGNULongNames(t *testing.T) {
	const longName = "this_is_a_very_long_member_name_over_16_bytes.o"
	table := longName + "/\n"

	var buf bytes.Buffer
	buf.WriteString(magic)
	writeMember(&buf, "//", []byte(table))
	writeMember(&buf, "/0", []byte{0x11, 0x22, 0x33})

	members, err := Extract(&buf, "test.a")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, longName, members[0].Name)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, members[0].Data)
}

func TestExtract_RejectsTruncatedHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write(header("a.o", 4)[:30]) // chop the header short

	_, err := Extract(&buf, "test.a")
	assert.Error(t, err)
}

func TestExtract_RejectsTruncatedMemberData(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write(header("a.o", 10)) // claims 10 bytes
	buf.Write([]byte{0x01, 0x02}) // only 2 present

	_, err := Extract(&buf, "test.a")
	assert.Error(t, err)
}

func TestLongNameAt_OutOfRangeReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", longNameAt("short", 100))
}
