package objfile

import "fmt"

// Error is the type of the sentinels below, which decode failures wrap so
// callers can distinguish "this isn't a COFF file at all" from "this COFF file
// is broken". A string table whose last byte is not NUL is reported without
// a sentinel.
type Error error

var (
	// ErrBadMagic means the file header's magic number isn't the Microchip COFF magic.
	ErrBadMagic Error = fmt.Errorf("not a Microchip COFF file")
	// ErrTruncated means a read ran past the end of the stream.
	ErrTruncated Error = fmt.Errorf("truncated input")
	// ErrBadName means an 8-byte name slot or string table entry isn't valid ASCII.
	ErrBadName Error = fmt.Errorf("invalid name")
	// ErrBadIndex means a symbol or section index is out of range.
	ErrBadIndex Error = fmt.Errorf("index out of range")
	// ErrUnimplementedSection means a section carries a flag combination the decoder
	// does not know how to classify.
	ErrUnimplementedSection Error = fmt.Errorf("unimplemented section type")
	// ErrOddCodeSize means a TEXT section's raw data isn't a whole number of
	// 16-bit instruction words.
	ErrOddCodeSize Error = fmt.Errorf("code section data size must be multiple of 2")
	// ErrUnknownProcessor means the optional header names a processor type this
	// decoder has no mapping for.
	ErrUnknownProcessor Error = fmt.Errorf("unknown processor type")
)

// decodeError wraps err with the file name and, when ctx is non-empty, a
// contextual phrase such as "in section 'foo'".
func decodeError(filename, ctx string, err error) error {
	if ctx == "" {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return fmt.Errorf("%s: in %s: %w", filename, ctx, err)
}
