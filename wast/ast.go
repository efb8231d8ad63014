package wast

// Var references an item in one of a module's index spaces, either by
// numeric index or by symbolic $name. Parsing leaves names in place;
// the resolve package rewrites every symbolic Var to its index.
type Var struct {
	Name  string
	Index uint32
	Line  int
}

// Symbolic reports whether the reference still carries an unresolved name.
func (v Var) Symbolic() bool { return v.Name != "" }

// Idx builds an already-resolved numeric reference.
func Idx(i uint32) Var { return Var{Index: i} }

type ValType byte

const (
	ValTypeI32       ValType = 0x7F
	ValTypeI64       ValType = 0x7E
	ValTypeF32       ValType = 0x7D
	ValTypeF64       ValType = 0x7C
	ValTypeV128      ValType = 0x7B
	ValTypeFuncref   ValType = 0x70
	ValTypeExternref ValType = 0x6F
)

func (v ValType) String() string {
	switch v {
	case ValTypeI32:
		return "i32"
	case ValTypeI64:
		return "i64"
	case ValTypeF32:
		return "f32"
	case ValTypeF64:
		return "f64"
	case ValTypeV128:
		return "v128"
	case ValTypeFuncref:
		return "funcref"
	case ValTypeExternref:
		return "externref"
	}
	return "valtype(?)"
}

const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
)

type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i, p := range ft.Params {
		if p != other.Params[i] {
			return false
		}
	}
	for i, r := range ft.Results {
		if r != other.Results[i] {
			return false
		}
	}
	return true
}

// TypeUse is a function signature reference: an optional (type $t) clause
// plus optional inline params and results. When Type is nil the parser
// canonicalizes the inline signature into the module type table and fills
// Index; otherwise resolution fills Index from the referenced type.
type TypeUse struct {
	Type    *Var
	Params  []ValType
	Results []ValType
	Index   uint32
}

type TypeDef struct {
	Name string
	Type FuncType
	Line int
}

type Module struct {
	Name     string
	Line     int
	Types    []TypeDef
	Imports  []Import
	Funcs    []Func
	Tables   []Table
	Memories []Memory
	Globals  []Global
	Exports  []Export
	Start    *Var
	Elems    []Elem
	Data     []DataSegment
}

type Import struct {
	Module string
	Field  string
	Kind   byte
	Name   string
	Line   int

	// Exactly one of these is meaningful, selected by Kind.
	Func   TypeUse
	Table  TableType
	Mem    Limits
	Global GlobalType
}

type Func struct {
	Name       string
	Line       int
	Type       TypeUse
	ParamNames []string
	Locals     []Local
	Body       []Instr
}

type Local struct {
	Name string
	Type ValType
}

type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
	Shared bool
}

type TableType struct {
	Elem   ValType
	Limits Limits
}

type Table struct {
	Name string
	Type TableType
	Line int
}

type Memory struct {
	Name   string
	Limits Limits
	Line   int
}

type GlobalType struct {
	Type    ValType
	Mutable bool
}

type Global struct {
	Name string
	Type GlobalType
	Init []Instr
	Line int
}

type Export struct {
	Field  string
	Kind   byte
	Target Var
	Line   int
}

type ElemMode int

const (
	ElemModeActive ElemMode = iota
	ElemModePassive
	ElemModeDeclarative
)

// ElemItem is one entry of an element segment: either a plain function
// reference or a constant expression (Expr non-nil takes precedence).
type ElemItem struct {
	Func Var
	Expr []Instr
}

type Elem struct {
	Name    string
	Mode    ElemMode
	Table   Var
	Offset  []Instr
	RefType ValType
	Items   []ElemItem
	Line    int
}

type DataSegment struct {
	Name    string
	Passive bool
	Mem     Var
	Offset  []Instr
	Init    []byte
	Line    int
}

// Instr is a single flattened instruction. Structured instructions appear
// as Block/Loop/If markers followed by their body and a matching End, with
// Else separating the two arms of an If.
type Instr struct {
	Imm    interface{}
	Opcode byte
	Line   int
}

// Immediate payload types carried in Instr.Imm:
//
//	nil              no immediate
//	Var              index reference (call, local.get, br, ref.func, ...)
//	int32, int64     i32.const and i64.const
//	F32Imm, F64Imm   float constants as raw bit patterns
//	BlockType        block, loop, if
//	Memarg           loads and stores
//	BrTableImm       br_table
//	CallIndirectImm  call_indirect
//	[]ValType        typed select
//	ValType          ref.null heap type
//	MiscImm          0xFC-prefixed instructions
type (
	F32Imm uint32
	F64Imm uint64
)

type BlockType struct {
	Label   string
	Type    *Var
	Params  []ValType
	Results []ValType
	// Index of the canonicalized signature when the block needs one,
	// -1 while unassigned.
	Index int32
}

// Empty reports whether the block has no inputs and no outputs.
func (bt BlockType) Empty() bool {
	return bt.Type == nil && len(bt.Params) == 0 && len(bt.Results) == 0
}

type Memarg struct {
	Align  uint32
	Offset uint32
}

type BrTableImm struct {
	Targets []Var
	Default Var
}

type CallIndirectImm struct {
	Table Var
	Type  TypeUse
}

// MiscImm carries a 0xFC-prefixed opcode. X and Y hold up to two index
// operands whose meaning depends on the sub-opcode, in encoding order.
type MiscImm struct {
	Subop uint32
	X     Var
	Y     Var
}

const (
	OpUnreachable        byte = 0x00
	OpNop                byte = 0x01
	OpBlock              byte = 0x02
	OpLoop               byte = 0x03
	OpIf                 byte = 0x04
	OpElse               byte = 0x05
	OpEnd                byte = 0x0B
	OpBr                 byte = 0x0C
	OpBrIf               byte = 0x0D
	OpBrTable            byte = 0x0E
	OpReturn             byte = 0x0F
	OpCall               byte = 0x10
	OpCallIndirect       byte = 0x11
	OpReturnCall         byte = 0x12
	OpReturnCallIndirect byte = 0x13
	OpDrop               byte = 0x1A
	OpSelect             byte = 0x1B
	OpSelectTyped        byte = 0x1C
	OpLocalGet           byte = 0x20
	OpLocalSet           byte = 0x21
	OpLocalTee           byte = 0x22
	OpGlobalGet          byte = 0x23
	OpGlobalSet          byte = 0x24
	OpTableGet           byte = 0x25
	OpTableSet           byte = 0x26
	OpMemorySize         byte = 0x3F
	OpMemoryGrow         byte = 0x40
	OpI32Const           byte = 0x41
	OpI64Const           byte = 0x42
	OpF32Const           byte = 0x43
	OpF64Const           byte = 0x44
	OpRefNull            byte = 0xD0
	OpRefIsNull          byte = 0xD1
	OpRefFunc            byte = 0xD2
	OpPrefixMisc         byte = 0xFC
)

const (
	MiscOpMemoryInit uint32 = 8
	MiscOpDataDrop   uint32 = 9
	MiscOpMemoryCopy uint32 = 10
	MiscOpMemoryFill uint32 = 11
	MiscOpTableInit  uint32 = 12
	MiscOpElemDrop   uint32 = 13
	MiscOpTableCopy  uint32 = 14
	MiscOpTableGrow  uint32 = 15
	MiscOpTableSize  uint32 = 16
	MiscOpTableFill  uint32 = 17
)
