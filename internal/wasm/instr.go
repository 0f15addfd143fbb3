package wasm

// Opcode identifies a decoded WebAssembly instruction. Decoding and
// validating the binary encoding happens upstream of this engine; Instr
// values are what that external decoder hands to the translator.
type Opcode uint16

const (
	OpUnreachable Opcode = iota
	OpNop
	OpBlock
	OpLoop
	OpIf
	OpElse
	OpEnd
	OpBr
	OpBrIf
	OpBrTable
	OpReturn
	OpCall
	OpCallIndirect
	OpReturnCall
	OpReturnCallIndirect
	OpDrop
	OpSelect
	OpTypedSelect
	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpGlobalGet
	OpGlobalSet
	OpTableGet
	OpTableSet
	OpTableSize
	OpTableGrow
	OpTableFill
	OpTableCopy
	OpTableInit
	OpElemDrop
	OpMemorySize
	OpMemoryGrow
	OpMemoryFill
	OpMemoryCopy
	OpMemoryInit
	OpDataDrop
	OpI32Load
	OpI64Load
	OpF32Load
	OpF64Load
	OpI32Load8S
	OpI32Load8U
	OpI32Load16S
	OpI32Load16U
	OpI64Load8S
	OpI64Load8U
	OpI64Load16S
	OpI64Load16U
	OpI64Load32S
	OpI64Load32U
	OpI32Store
	OpI64Store
	OpF32Store
	OpF64Store
	OpI32Store8
	OpI32Store16
	OpI64Store8
	OpI64Store16
	OpI64Store32
	OpI32Const
	OpI64Const
	OpF32Const
	OpF64Const
	OpRefNull
	OpRefIsNull
	OpRefFunc

	// Remaining numeric instructions reuse value.UntypedVal's operation set
	// one-for-one; the translator maps each to the matching function in
	// the value package rather than re-enumerating every combination here.
	OpNumeric
)

// MemArg is the alignment/offset pair attached to every memory
// load/store instruction.
type MemArg struct {
	Align  uint32 // log2 of the claimed alignment
	Offset uint64
}

// Instr is one decoded instruction within a function body.
//
// The fields are a deliberately loose union: which ones are meaningful
// depends on Op. Go has no sum type to give each opcode its own exact
// payload, so a translator visitor method switches on Op and reads only
// the fields it needs.
type Instr struct {
	Op Opcode

	Numeric NumericOp // meaningful when Op == OpNumeric

	Imm    int64  // local/global/table/memory/func/type/elem/data index, or a narrow const
	Imm2   uint32 // secondary index for two-index ops (call_indirect's table, *.copy's src, *.init's target container)
	ImmF64 uint64 // f64 const bit pattern (also used verbatim for f32's bit pattern), or low 64 bits of a v128 const

	BlockType  int64 // block/loop/if only: type index, a single ValueType cast to int64, or -1 for empty
	MemArgData MemArg

	Targets     []uint32 // br_table
	TargetsDef  uint32   // br_table default
	SelectTypes []byte   // typed select's declared operand type(s)
}
