package objfile

// LineNumber associates a physical address with a source line, referencing
// the symbols for the source file and enclosing function (spec.md §3).
type LineNumber struct {
	SrcSymbol *Symbol
	Line      uint16
	PAddress  uint32
	Flags     uint16
	FcnSymbol *Symbol
}

type linenoRaw struct {
	SrcNdx uint32
	Lnno   uint16
	PAddr  uint32
	Flags  uint16
	FcnNdx uint32
}
