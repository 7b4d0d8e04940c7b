package objfile

// Relocation is a pending edit to a code section's Data, parameterised by a
// target symbol, an addend, and a type code understood by the relocation
// engine in pkg/link (spec.md §3, §4.5).
type Relocation struct {
	Address uint32 // section-relative byte offset into Data
	Symbol  *Symbol
	Offset  int16
	Type    uint16
}

type relocRaw struct {
	VAddr  uint32
	SymNdx uint32
	Offset int16
	Type   uint16
}
