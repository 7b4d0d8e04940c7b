package objfile

// SymbolSectionKind tags how Symbol.Section should be interpreted, replacing
// the "int that later becomes a pointer" pattern the original decoder used
// (spec.md §9, Design Notes).
type SymbolSectionKind int

const (
	// SectionUndefined means the symbol has no section (raw value was 0).
	SectionUndefined SymbolSectionKind = iota
	// SectionDebug means the symbol is a debug symbol (raw value was negative).
	SectionDebug
	// SectionRef means Section.Ref points at a real, decoded Section.
	SectionRef
)

// SymbolSection is the resolved, tagged form of a symbol's section reference.
type SymbolSection struct {
	Kind SymbolSectionKind
	Ref  *Section // valid iff Kind == SectionRef
}

// IsAbsolute reports whether the referenced section is an absolute section.
// Undefined and debug symbols are never absolute.
func (s SymbolSection) IsAbsolute() bool {
	return s.Kind == SectionRef && s.Ref.IsAbsolute()
}

// Symbol is a primary symbol-table entry. BaseType/DerivedType mirror the
// COFF fields verbatim; this decoder does not interpret them beyond storage.
type Symbol struct {
	Name         string
	Value        uint32
	Section      SymbolSection
	BaseType     uint16
	DerivedType  uint16
	StorageClass int8
	Aux          []AuxRecord

	rawSectnum int16 // retained only for diagnostics before index-patching
}

// IsExternal reports whether the symbol has storage class C_EXT.
func (s *Symbol) IsExternal() bool {
	return s.StorageClass == ClassExt
}

// IsDefined reports whether the symbol's section has been resolved to a real
// Section (i.e. it is not undefined or a debug symbol).
func (s *Symbol) IsDefined() bool {
	return s.Section.Kind == SectionRef
}

// AuxRecord is the interface implemented by the two auxiliary-record shapes
// the decoder understands. Aux records are attached, in file order, to their
// owning primary symbol's Aux slice; Object.Symbols holds primary symbols
// only. Each aux record still takes up its slot in the object's flat symbol
// index, so later symbol indices match the file, but that slot holds no
// Symbol: a relocation or line number whose index names an aux record is
// rejected as out of range.
type AuxRecord interface {
	isAux()
}

// AuxFileRecord decodes a C_FILE auxiliary entry.
type AuxFileRecord struct {
	Filename string
	IncLine  uint32
	Flags    uint8
}

func (AuxFileRecord) isAux() {}

// AuxSectionRecord decodes a C_SECTION auxiliary entry.
type AuxSectionRecord struct {
	Length       uint32
	NumReloc     uint16
	NumLineNums  uint16
}

func (AuxSectionRecord) isAux() {}
