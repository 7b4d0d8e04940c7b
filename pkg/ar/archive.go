// Package ar demultiplexes Unix ar archives into the COFF object members
// they contain, grounded on original_source/picc/ar.py. The core linker
// spec treats archive handling as an external collaborator producing a
// stream of COFF byte ranges; this package is that collaborator.
package ar

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	magicSize  = 8
	magic      = "!<arch>\n"
	headerSize = 60
)

// Member is one extracted archive member: a name and its raw bytes, ready to
// be handed to objfile.Decode.
type Member struct {
	Name string
	Data []byte
}

// IsArchive reports whether r starts with the ar magic, without consuming
// from r (it reads and then seeks back).
func IsArchive(r io.ReadSeeker) (bool, error) {
	cur, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, err
	}
	buf := make([]byte, magicSize)
	n, _ := io.ReadFull(r, buf)
	if _, err := r.Seek(cur, io.SeekStart); err != nil {
		return false, err
	}
	return n == magicSize && string(buf) == magic, nil
}

// Extract reads every member out of an ar archive. Archives with a GNU-style
// "//" long-name table have member names longer than 16 bytes resolved
// through it (spec.md §6, "Archive input").
func Extract(r io.Reader, name string) ([]Member, error) {
	if _, err := io.CopyN(io.Discard, r, magicSize); err != nil {
		return nil, fmt.Errorf("%s: truncated ar magic", name)
	}

	var longNames string
	var members []Member

	for {
		hdr := make([]byte, headerSize)
		n, err := io.ReadFull(r, hdr)
		if n == 0 && err != nil {
			break
		}
		if n != headerSize {
			return nil, fmt.Errorf("%s: truncated ar header", name)
		}

		memberName := strings.TrimRight(string(hdr[0:16]), " ")
		sizeStr := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			return nil, fmt.Errorf("%s: malformed ar member size %q: %w", name, sizeStr, err)
		}

		if memberName == "//" {
			table := make([]byte, size)
			if _, err := io.ReadFull(r, table); err != nil {
				return nil, fmt.Errorf("%s: truncated ar long names table", name)
			}
			longNames = string(table)
			if size%2 != 0 {
				io.CopyN(io.Discard, r, 1)
			}
			continue
		}

		if strings.HasPrefix(memberName, "/") {
			idx, err := strconv.Atoi(memberName[1:])
			if err != nil {
				return nil, fmt.Errorf("%s: malformed long name reference %q: %w", name, memberName, err)
			}
			memberName = longNameAt(longNames, idx)
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%s: truncated ar member %q", name, memberName)
		}
		members = append(members, Member{Name: memberName, Data: data})
		if size%2 != 0 {
			io.CopyN(io.Discard, r, 1)
		}
	}

	return members, nil
}

func longNameAt(table string, index int) string {
	if index >= len(table) {
		return ""
	}
	end := strings.IndexByte(table[index:], '/')
	if end < 0 {
		return table[index:]
	}
	return table[index : index+end]
}
