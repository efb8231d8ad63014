package wasm

// Header is the WebAssembly binary preamble: magic "\0asm" followed by
// version 1, both little-endian.
var Header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// Section IDs in canonical order. Custom sections (ID 0) may appear anywhere.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
)

// FuncTypeByte prefixes every entry of the type section.
const FuncTypeByte byte = 0x60

// Limits flags.
const (
	LimitsNoMax  byte = 0x00
	LimitsHasMax byte = 0x01
	LimitsShared byte = 0x03
)

// BlockTypeVoid is the block type byte for blocks with no result.
const BlockTypeVoid byte = 0x40

// Element segment flags. The low bits select passive/declarative modes and
// explicit table indices; bit 2 selects expression-encoded items.
const (
	ElemFlagActiveFuncs      uint32 = 0
	ElemFlagPassiveFuncs     uint32 = 1
	ElemFlagActiveTableFuncs uint32 = 2
	ElemFlagDeclarativeFuncs uint32 = 3
	ElemFlagActiveExprs      uint32 = 4
	ElemFlagPassiveExprs     uint32 = 5
	ElemFlagActiveTableExprs uint32 = 6
	ElemFlagDeclarativeExprs uint32 = 7
)

// ElemKindFunc is the element kind byte used by function-index segments.
const ElemKindFunc byte = 0x00

// Data segment flags.
const (
	DataFlagActive       uint32 = 0
	DataFlagPassive      uint32 = 1
	DataFlagActiveMemIdx uint32 = 2
)

// Subsection IDs inside the "name" custom section.
const (
	NameSubsectionModule   byte = 0
	NameSubsectionFunction byte = 1
	NameSubsectionLocal    byte = 2
)
