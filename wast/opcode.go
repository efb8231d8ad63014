package wast

// immKind tells the parser what immediate a mnemonic carries. Index
// immediates are split by namespace so resolution knows which index
// space a symbolic reference belongs to.
type immKind int

const (
	immNone immKind = iota
	immLocal
	immGlobal
	immFunc
	immLabel
	immTable
	immI32
	immI64
	immF32
	immF64
	immMem
)

type opInfo struct {
	opcode byte
	imm    immKind
}

func lookupOp(name string) (opInfo, bool) {
	info, ok := opTable[name]
	return info, ok
}

// memOp describes a load or store: its opcode and the log2 natural
// alignment used when the text omits align=.
type memOp struct {
	opcode byte
	align  uint32
}

func lookupMemOp(name string) (memOp, bool) {
	op, ok := memOpTable[name]
	return op, ok
}

// miscSubop maps a 0xFC-prefixed mnemonic to its sub-opcode.
func lookupMiscOp(name string) (uint32, bool) {
	op, ok := miscOpTable[name]
	return op, ok
}

var opTable = map[string]opInfo{
	// Control
	"unreachable": {0x00, immNone},
	"nop":         {0x01, immNone},
	"br":          {0x0C, immLabel},
	"br_if":       {0x0D, immLabel},
	"return":      {0x0F, immNone},
	"call":        {0x10, immFunc},
	"return_call": {0x12, immFunc},

	// Parametric
	"drop":   {0x1A, immNone},
	"select": {0x1B, immNone},

	// Variables
	"local.get":  {0x20, immLocal},
	"local.set":  {0x21, immLocal},
	"local.tee":  {0x22, immLocal},
	"global.get": {0x23, immGlobal},
	"global.set": {0x24, immGlobal},

	// Table access
	"table.get": {0x25, immTable},
	"table.set": {0x26, immTable},

	// Memory size
	"memory.size": {0x3F, immMem},
	"memory.grow": {0x40, immMem},

	// Constants
	"i32.const": {0x41, immI32},
	"i64.const": {0x42, immI64},
	"f32.const": {0x43, immF32},
	"f64.const": {0x44, immF64},

	// i32 comparison
	"i32.eqz":  {0x45, immNone},
	"i32.eq":   {0x46, immNone},
	"i32.ne":   {0x47, immNone},
	"i32.lt_s": {0x48, immNone},
	"i32.lt_u": {0x49, immNone},
	"i32.gt_s": {0x4A, immNone},
	"i32.gt_u": {0x4B, immNone},
	"i32.le_s": {0x4C, immNone},
	"i32.le_u": {0x4D, immNone},
	"i32.ge_s": {0x4E, immNone},
	"i32.ge_u": {0x4F, immNone},

	// i64 comparison
	"i64.eqz":  {0x50, immNone},
	"i64.eq":   {0x51, immNone},
	"i64.ne":   {0x52, immNone},
	"i64.lt_s": {0x53, immNone},
	"i64.lt_u": {0x54, immNone},
	"i64.gt_s": {0x55, immNone},
	"i64.gt_u": {0x56, immNone},
	"i64.le_s": {0x57, immNone},
	"i64.le_u": {0x58, immNone},
	"i64.ge_s": {0x59, immNone},
	"i64.ge_u": {0x5A, immNone},

	// f32 comparison
	"f32.eq": {0x5B, immNone},
	"f32.ne": {0x5C, immNone},
	"f32.lt": {0x5D, immNone},
	"f32.gt": {0x5E, immNone},
	"f32.le": {0x5F, immNone},
	"f32.ge": {0x60, immNone},

	// f64 comparison
	"f64.eq": {0x61, immNone},
	"f64.ne": {0x62, immNone},
	"f64.lt": {0x63, immNone},
	"f64.gt": {0x64, immNone},
	"f64.le": {0x65, immNone},
	"f64.ge": {0x66, immNone},

	// i32 arithmetic
	"i32.clz":    {0x67, immNone},
	"i32.ctz":    {0x68, immNone},
	"i32.popcnt": {0x69, immNone},
	"i32.add":    {0x6A, immNone},
	"i32.sub":    {0x6B, immNone},
	"i32.mul":    {0x6C, immNone},
	"i32.div_s":  {0x6D, immNone},
	"i32.div_u":  {0x6E, immNone},
	"i32.rem_s":  {0x6F, immNone},
	"i32.rem_u":  {0x70, immNone},
	"i32.and":    {0x71, immNone},
	"i32.or":     {0x72, immNone},
	"i32.xor":    {0x73, immNone},
	"i32.shl":    {0x74, immNone},
	"i32.shr_s":  {0x75, immNone},
	"i32.shr_u":  {0x76, immNone},
	"i32.rotl":   {0x77, immNone},
	"i32.rotr":   {0x78, immNone},

	// i64 arithmetic
	"i64.clz":    {0x79, immNone},
	"i64.ctz":    {0x7A, immNone},
	"i64.popcnt": {0x7B, immNone},
	"i64.add":    {0x7C, immNone},
	"i64.sub":    {0x7D, immNone},
	"i64.mul":    {0x7E, immNone},
	"i64.div_s":  {0x7F, immNone},
	"i64.div_u":  {0x80, immNone},
	"i64.rem_s":  {0x81, immNone},
	"i64.rem_u":  {0x82, immNone},
	"i64.and":    {0x83, immNone},
	"i64.or":     {0x84, immNone},
	"i64.xor":    {0x85, immNone},
	"i64.shl":    {0x86, immNone},
	"i64.shr_s":  {0x87, immNone},
	"i64.shr_u":  {0x88, immNone},
	"i64.rotl":   {0x89, immNone},
	"i64.rotr":   {0x8A, immNone},

	// f32 arithmetic
	"f32.abs":      {0x8B, immNone},
	"f32.neg":      {0x8C, immNone},
	"f32.ceil":     {0x8D, immNone},
	"f32.floor":    {0x8E, immNone},
	"f32.trunc":    {0x8F, immNone},
	"f32.nearest":  {0x90, immNone},
	"f32.sqrt":     {0x91, immNone},
	"f32.add":      {0x92, immNone},
	"f32.sub":      {0x93, immNone},
	"f32.mul":      {0x94, immNone},
	"f32.div":      {0x95, immNone},
	"f32.min":      {0x96, immNone},
	"f32.max":      {0x97, immNone},
	"f32.copysign": {0x98, immNone},

	// f64 arithmetic
	"f64.abs":      {0x99, immNone},
	"f64.neg":      {0x9A, immNone},
	"f64.ceil":     {0x9B, immNone},
	"f64.floor":    {0x9C, immNone},
	"f64.trunc":    {0x9D, immNone},
	"f64.nearest":  {0x9E, immNone},
	"f64.sqrt":     {0x9F, immNone},
	"f64.add":      {0xA0, immNone},
	"f64.sub":      {0xA1, immNone},
	"f64.mul":      {0xA2, immNone},
	"f64.div":      {0xA3, immNone},
	"f64.min":      {0xA4, immNone},
	"f64.max":      {0xA5, immNone},
	"f64.copysign": {0xA6, immNone},

	// Conversions
	"i32.wrap_i64":        {0xA7, immNone},
	"i32.trunc_f32_s":     {0xA8, immNone},
	"i32.trunc_f32_u":     {0xA9, immNone},
	"i32.trunc_f64_s":     {0xAA, immNone},
	"i32.trunc_f64_u":     {0xAB, immNone},
	"i64.extend_i32_s":    {0xAC, immNone},
	"i64.extend_i32_u":    {0xAD, immNone},
	"i64.trunc_f32_s":     {0xAE, immNone},
	"i64.trunc_f32_u":     {0xAF, immNone},
	"i64.trunc_f64_s":     {0xB0, immNone},
	"i64.trunc_f64_u":     {0xB1, immNone},
	"f32.convert_i32_s":   {0xB2, immNone},
	"f32.convert_i32_u":   {0xB3, immNone},
	"f32.convert_i64_s":   {0xB4, immNone},
	"f32.convert_i64_u":   {0xB5, immNone},
	"f32.demote_f64":      {0xB6, immNone},
	"f64.convert_i32_s":   {0xB7, immNone},
	"f64.convert_i32_u":   {0xB8, immNone},
	"f64.convert_i64_s":   {0xB9, immNone},
	"f64.convert_i64_u":   {0xBA, immNone},
	"f64.promote_f32":     {0xBB, immNone},
	"i32.reinterpret_f32": {0xBC, immNone},
	"i64.reinterpret_f64": {0xBD, immNone},
	"f32.reinterpret_i32": {0xBE, immNone},
	"f64.reinterpret_i64": {0xBF, immNone},

	// Sign extension
	"i32.extend8_s":  {0xC0, immNone},
	"i32.extend16_s": {0xC1, immNone},
	"i64.extend8_s":  {0xC2, immNone},
	"i64.extend16_s": {0xC3, immNone},
	"i64.extend32_s": {0xC4, immNone},

	// Reference types
	"ref.is_null": {0xD1, immNone},
	"ref.func":    {0xD2, immFunc},
}

var memOpTable = map[string]memOp{
	// Loads
	"i32.load":     {0x28, 2},
	"i64.load":     {0x29, 3},
	"f32.load":     {0x2A, 2},
	"f64.load":     {0x2B, 3},
	"i32.load8_s":  {0x2C, 0},
	"i32.load8_u":  {0x2D, 0},
	"i32.load16_s": {0x2E, 1},
	"i32.load16_u": {0x2F, 1},
	"i64.load8_s":  {0x30, 0},
	"i64.load8_u":  {0x31, 0},
	"i64.load16_s": {0x32, 1},
	"i64.load16_u": {0x33, 1},
	"i64.load32_s": {0x34, 2},
	"i64.load32_u": {0x35, 2},

	// Stores
	"i32.store":   {0x36, 2},
	"i64.store":   {0x37, 3},
	"f32.store":   {0x38, 2},
	"f64.store":   {0x39, 3},
	"i32.store8":  {0x3A, 0},
	"i32.store16": {0x3B, 1},
	"i64.store8":  {0x3C, 0},
	"i64.store16": {0x3D, 1},
	"i64.store32": {0x3E, 2},
}

var miscOpTable = map[string]uint32{
	// Saturating truncation
	"i32.trunc_sat_f32_s": 0,
	"i32.trunc_sat_f32_u": 1,
	"i32.trunc_sat_f64_s": 2,
	"i32.trunc_sat_f64_u": 3,
	"i64.trunc_sat_f32_s": 4,
	"i64.trunc_sat_f32_u": 5,
	"i64.trunc_sat_f64_s": 6,
	"i64.trunc_sat_f64_u": 7,

	// Bulk memory
	"memory.init": MiscOpMemoryInit,
	"data.drop":   MiscOpDataDrop,
	"memory.copy": MiscOpMemoryCopy,
	"memory.fill": MiscOpMemoryFill,

	// Bulk table
	"table.init": MiscOpTableInit,
	"elem.drop":  MiscOpElemDrop,
	"table.copy": MiscOpTableCopy,
	"table.grow": MiscOpTableGrow,
	"table.size": MiscOpTableSize,
	"table.fill": MiscOpTableFill,
}
