package wasm

import "github.com/corewasm/corewasm/api"

// Index kinds used throughout a Module header. Each is module-local and
// counts imports first, matching the WebAssembly binary format's indexing
// space convention.
type (
	FuncIndex   uint32
	TableIndex  uint32
	MemoryIndex uint32
	GlobalIndex uint32
)

// Import describes one entry of a Module's import section. Exactly one of
// the Desc* fields is meaningful, selected by Type.
type Import struct {
	Module, Name string
	Type         api.ExternType

	DescFunc   TypeIndex
	DescTable  TableType
	DescMemory MemoryType
	DescGlobal GlobalType
}

// Export describes one entry of a Module's export section.
type Export struct {
	Name  string
	Type  api.ExternType
	Index uint32 // FuncIndex/TableIndex/MemoryIndex/GlobalIndex per Type
}

// LocalFunction is a module-defined (non-imported) function: its
// signature plus the already-decoded instruction stream the translator
// consumes. Decoding and validating this stream is an external parser's
// job, not this engine's.
type LocalFunction struct {
	Type   TypeIndex
	Locals []api.ValueType // additional locals beyond the parameters
	Body   []Instr
}

// GlobalDef is a module-defined global: its type plus the const
// expression that produces its initial value.
type GlobalDef struct {
	Type GlobalType
	Init ConstExpr
}

// ElementSegment initializes a range of a table, or stands passive/declared
// for use by table.init.
type ElementSegment struct {
	TableIndex TableIndex
	ElemType   api.ValueType
	Offset     ConstExpr // meaningful only for the active mode
	Mode       SegmentMode
	FuncIndices []FuncIndex // element contents, expressed as ref.func indices
}

// DataSegment initializes a range of linear memory, or stands passive for
// use by memory.init.
type DataSegment struct {
	MemoryIndex MemoryIndex
	Offset      ConstExpr // meaningful only for the active mode
	Mode        SegmentMode
	Bytes       []byte
}

// SegmentMode classifies an element or data segment per the bulk-memory
// proposal: Active segments run their initializer at instantiation time,
// Passive segments are only usable via *.init, and Declared element
// segments (elements only) exist solely to validate ref.func operands.
type SegmentMode byte

const (
	SegmentModeActive SegmentMode = iota
	SegmentModePassive
	SegmentModeDeclared
)

// Module is the already-decoded, already-validated header of a
// WebAssembly module: every section except Code, which is held per
// function in LocalFunction.Body. An external parser/validator is
// responsible for producing a well-formed Module; this engine trusts it.
type Module struct {
	Types   *TypeTable
	Imports []Import
	Exports []Export

	// Funcs holds the FuncType index for every function in the function
	// index space, imports first, followed by FuncDefs in order.
	Funcs   []TypeIndex
	FuncDefs []LocalFunction

	Tables      []TableType
	ImportedTableCount int
	Memories    []MemoryType
	ImportedMemoryCount int
	Globals     []GlobalDef
	ImportedGlobalCount int

	Elements []ElementSegment
	Data     []DataSegment

	Start    FuncIndex
	HasStart bool

	// CodeSize is the code section's total byte size as reported by the
	// external parser, consumed only by the enforced-limits
	// average-bytes-per-function heuristic.
	CodeSize uint64

	Name string
}

// ImportFuncCount returns how many function-index-space entries are
// imports rather than module-defined functions.
func (m *Module) ImportFuncCount() int {
	return len(m.Funcs) - len(m.FuncDefs)
}

// FuncTypeOf resolves the FuncType of a function in the function index
// space, whether imported or module-defined.
func (m *Module) FuncTypeOf(idx FuncIndex) FuncType {
	return m.Types.At(m.Funcs[idx])
}

// IsFuncImport reports whether idx refers to an imported function.
func (m *Module) IsFuncImport(idx FuncIndex) bool {
	return int(idx) < m.ImportFuncCount()
}
