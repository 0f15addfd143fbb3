package wazeroir

import (
	"github.com/corewasm/corewasm/internal/value"
	"github.com/corewasm/corewasm/internal/wasm"
)

// Instr indexes a single Op within a CompiledFunc's op buffer. Branch
// fixups and RegisterAlloc's storage-user bookkeeping both reference
// positions this way so they can be patched once their final address is
// known.
type Instr int

// OpKind discriminates the Op union: a fixed-width discriminated opcode,
// each carrying the operand fields of Op that it actually uses. This
// package represents a long operand list (a call's arguments, a br_table's
// targets) as a Go struct with a handful of typed fields rather than a
// packed byte stream with follow-on parameter words: Go has no
// unsafe-free equivalent of a variable-width instruction encoding, and a
// struct slice keeps every call site type-checked. See DESIGN.md for this
// deviation.
type OpKind uint16

const (
	OpKindUnreachable OpKind = iota
	OpKindConsumeFuel

	// OpKindCopy moves Result <- A, used for local.get preservation copies
	// and for argument/return marshalling between frames.
	OpKindCopy
	OpKindCopyImm32 // Result <- sign/zero-extended Imm32
	OpKindCopyImm64 // Result <- Imm64 (full 64-bit pattern)

	OpKindNumericUnary     // Result <- f(A), f = wasm.NumericOpTable[Numeric].Unary
	OpKindNumericBinary    // Result <- f(A, B)
	OpKindNumericTrapUnary // Result <- f(A), may trap
	OpKindNumericTrapBinary

	OpKindBr        // unconditional jump by BrOffset
	OpKindBrIfNez   // jump by BrOffset if A != 0
	OpKindBrIfEqz   // jump by BrOffset if A == 0
	OpKindBranchCmp // fused comparison + conditional branch
	OpKindBrTable   // index A selects BrTargets[1:], default BrTargets[0]

	OpKindSelect    // Result <- (A != 0) ? B : C
	OpKindSelectCmp // fused comparison + select

	OpKindGlobalGet
	OpKindGlobalSet

	OpKindLoad
	OpKindStore
	OpKindMemorySize
	OpKindMemoryGrow
	OpKindMemoryInit
	OpKindMemoryCopy
	OpKindMemoryFill
	OpKindDataDrop

	OpKindTableGet
	OpKindTableSet
	OpKindTableSize
	OpKindTableGrow
	OpKindTableFill
	OpKindTableCopy
	OpKindTableInit
	OpKindElemDrop
	OpKindRefFunc
	OpKindRefNull
	OpKindRefIsNull

	OpKindCallInternal       // intra-module call to a sibling CompiledFunc
	OpKindCallImported       // call through an import slot
	OpKindCallIndirect       // call through a table
	OpKindReturnCallInternal // tail call variants: reuse current frame
	OpKindReturnCallImported
	OpKindReturnCallIndirect

	// Return shapes, specialized by arity so the common cases (no results,
	// one register, one immediate, two or three registers) skip the
	// general-purpose span/many encodings.
	OpKindReturn
	OpKindReturnReg
	OpKindReturnImm32
	OpKindReturnReg2
	OpKindReturnReg3
	OpKindReturnSpan
	OpKindReturnMany

	// return_if_nez family: conditional return, mirroring the common
	// return shapes above. A holds the condition register for all three;
	// ReturnRegIfNez carries the returned value in B, ReturnImm32IfNez in
	// Imm32. Wider arities fall back to a BrIfEqz that skips over an inline
	// return op.
	OpKindReturnIfNez
	OpKindReturnRegIfNez
	OpKindReturnImm32IfNez
)

// LoadStoreType narrows a memory access to its width/signedness, shared by
// OpKindLoad and OpKindStore.
type LoadStoreType byte

const (
	LoadStoreI32 LoadStoreType = iota
	LoadStoreI64
	LoadStoreF32
	LoadStoreF64
	LoadStoreI32_8S
	LoadStoreI32_8U
	LoadStoreI32_16S
	LoadStoreI32_16U
	LoadStoreI64_8S
	LoadStoreI64_8U
	LoadStoreI64_16S
	LoadStoreI64_16U
	LoadStoreI64_32S
	LoadStoreI64_32U
)

// Op is one register-machine IR instruction. Which fields are meaningful is
// determined entirely by Kind; see the OpKind constant's doc comment. Op is
// a union type wide enough to hold whichever operands its Kind needs, since
// Go has no variable-width tagged union to shrink it to exactly those.
type Op struct {
	Kind OpKind

	A, B, C, D Register
	Result     Register

	// BrOffset is a signed delta in Instr units (not bytes, see OpKind's
	// doc comment) applied to the position immediately after this Op.
	BrOffset  int32
	BrTargets []int32 // br_table only: [default, case0, case1, ...]

	Numeric wasm.NumericOp

	Imm32  int32
	Imm64  int64
	BIsImm bool // BranchCmp/SelectCmp: B operand is Imm64, not a Register

	LoadStore LoadStoreType
	MemArg    wasm.MemArg

	Index  uint32 // global/table/memory/data/elem/type/func index, by Kind
	Index2 uint32 // secondary index for two-index ops: *.copy's source, *.init's source segment

	ResultSpan RegisterSpan
	Params     []Register

	// CalleeFunc identifies a CallInternal/ReturnCallInternal target within
	// the same module; CalleeType identifies the expected signature for
	// CallIndirect's BadSignature check.
	CalleeFunc uint32
	CalleeType uint32
}

// CompilationResult is everything the translator produces for one function
// body: the op buffer, the function-local constant pool it indexes with
// negative registers, and the frame size the executor must reserve.
type CompilationResult struct {
	Ops          []Op
	ConstPool    []value.UntypedVal
	LenRegisters uint16
	LenParams    uint16
	LenResults   uint16
}
