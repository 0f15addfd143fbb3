package wasm

import "github.com/corewasm/corewasm/internal/value"

// NumericOp names one of the value package's numeric operations. Every
// OpNumeric Instr carries one of these instead of the translator knowing
// about 150-odd individual Wasm opcodes: the registry below is the single
// place mapping a NumericOp to its arity, trapping behavior, and the
// concrete value-package function, so both the translator (constant
// folding) and the interpreter (dispatch) share one source of truth.
type NumericOp uint16

const (
	NumI32Eqz NumericOp = iota
	NumI32Eq
	NumI32Ne
	NumI32LtS
	NumI32LtU
	NumI32GtS
	NumI32GtU
	NumI32LeS
	NumI32LeU
	NumI32GeS
	NumI32GeU
	NumI64Eqz
	NumI64Eq
	NumI64Ne
	NumI64LtS
	NumI64LtU
	NumI64GtS
	NumI64GtU
	NumI64LeS
	NumI64LeU
	NumI64GeS
	NumI64GeU
	NumF32Eq
	NumF32Ne
	NumF32Lt
	NumF32Gt
	NumF32Le
	NumF32Ge
	NumF64Eq
	NumF64Ne
	NumF64Lt
	NumF64Gt
	NumF64Le
	NumF64Ge
	NumI32Clz
	NumI32Ctz
	NumI32Popcnt
	NumI32Add
	NumI32Sub
	NumI32Mul
	NumI32DivS
	NumI32DivU
	NumI32RemS
	NumI32RemU
	NumI32And
	NumI32Or
	NumI32Xor
	NumI32Shl
	NumI32ShrS
	NumI32ShrU
	NumI32Rotl
	NumI32Rotr
	NumI64Clz
	NumI64Ctz
	NumI64Popcnt
	NumI64Add
	NumI64Sub
	NumI64Mul
	NumI64DivS
	NumI64DivU
	NumI64RemS
	NumI64RemU
	NumI64And
	NumI64Or
	NumI64Xor
	NumI64Shl
	NumI64ShrS
	NumI64ShrU
	NumI64Rotl
	NumI64Rotr
	NumF32Abs
	NumF32Neg
	NumF32Ceil
	NumF32Floor
	NumF32Trunc
	NumF32Nearest
	NumF32Sqrt
	NumF32Add
	NumF32Sub
	NumF32Mul
	NumF32Div
	NumF32Min
	NumF32Max
	NumF32Copysign
	NumF64Abs
	NumF64Neg
	NumF64Ceil
	NumF64Floor
	NumF64Trunc
	NumF64Nearest
	NumF64Sqrt
	NumF64Add
	NumF64Sub
	NumF64Mul
	NumF64Div
	NumF64Min
	NumF64Max
	NumF64Copysign
	NumI32WrapI64
	NumI64ExtendI32S
	NumI64ExtendI32U
	NumF32DemoteF64
	NumF64PromoteF32
	NumI32TruncF32S
	NumI32TruncF32U
	NumI32TruncF64S
	NumI32TruncF64U
	NumI64TruncF32S
	NumI64TruncF32U
	NumI64TruncF64S
	NumI64TruncF64U
	NumI32TruncSatF32S
	NumI32TruncSatF32U
	NumI32TruncSatF64S
	NumI32TruncSatF64U
	NumI64TruncSatF32S
	NumI64TruncSatF32U
	NumI64TruncSatF64S
	NumI64TruncSatF64U
	NumF32ConvertI32S
	NumF32ConvertI32U
	NumF32ConvertI64S
	NumF32ConvertI64U
	NumF64ConvertI32S
	NumF64ConvertI32U
	NumF64ConvertI64S
	NumF64ConvertI64U
	NumI32ReinterpretF32
	NumF32ReinterpretI32
	NumI64ReinterpretF64
	NumF64ReinterpretI64
	NumI32Extend8S
	NumI32Extend16S
	NumI64Extend8S
	NumI64Extend16S
	NumI64Extend32S
)

// NumericOpInfo describes how to evaluate a NumericOp, shared by the
// translator's constant folder and the interpreter's dispatch table.
type NumericOpInfo struct {
	Arity    int // 1 (unary) or 2 (binary)
	Trapping bool

	Unary      func(value.UntypedVal) value.UntypedVal
	Binary     func(a, b value.UntypedVal) value.UntypedVal
	TrapUnary  func(value.UntypedVal) (value.UntypedVal, value.TrapCode)
	TrapBinary func(a, b value.UntypedVal) (value.UntypedVal, value.TrapCode)
}

func unary(f func(value.UntypedVal) value.UntypedVal) NumericOpInfo {
	return NumericOpInfo{Arity: 1, Unary: f}
}

func binary(f func(a, b value.UntypedVal) value.UntypedVal) NumericOpInfo {
	return NumericOpInfo{Arity: 2, Binary: f}
}

func trapUnary(f func(value.UntypedVal) (value.UntypedVal, value.TrapCode)) NumericOpInfo {
	return NumericOpInfo{Arity: 1, Trapping: true, TrapUnary: f}
}

func trapBinary(f func(a, b value.UntypedVal) (value.UntypedVal, value.TrapCode)) NumericOpInfo {
	return NumericOpInfo{Arity: 2, Trapping: true, TrapBinary: f}
}

// NumericOpTable is keyed by NumericOp; every constant declared above has
// exactly one entry.
var NumericOpTable = map[NumericOp]NumericOpInfo{
	NumI32Eqz:  unary(value.I32Eqz),
	NumI32Eq:   binary(value.I32Eq),
	NumI32Ne:   binary(value.I32Ne),
	NumI32LtS:  binary(value.I32LtS),
	NumI32LtU:  binary(value.I32LtU),
	NumI32GtS:  binary(value.I32GtS),
	NumI32GtU:  binary(value.I32GtU),
	NumI32LeS:  binary(value.I32LeS),
	NumI32LeU:  binary(value.I32LeU),
	NumI32GeS:  binary(value.I32GeS),
	NumI32GeU:  binary(value.I32GeU),
	NumI64Eqz:  unary(value.I64Eqz),
	NumI64Eq:   binary(value.I64Eq),
	NumI64Ne:   binary(value.I64Ne),
	NumI64LtS:  binary(value.I64LtS),
	NumI64LtU:  binary(value.I64LtU),
	NumI64GtS:  binary(value.I64GtS),
	NumI64GtU:  binary(value.I64GtU),
	NumI64LeS:  binary(value.I64LeS),
	NumI64LeU:  binary(value.I64LeU),
	NumI64GeS:  binary(value.I64GeS),
	NumI64GeU:  binary(value.I64GeU),
	NumF32Eq:   binary(value.F32Eq),
	NumF32Ne:   binary(value.F32Ne),
	NumF32Lt:   binary(value.F32Lt),
	NumF32Gt:   binary(value.F32Gt),
	NumF32Le:   binary(value.F32Le),
	NumF32Ge:   binary(value.F32Ge),
	NumF64Eq:   binary(value.F64Eq),
	NumF64Ne:   binary(value.F64Ne),
	NumF64Lt:   binary(value.F64Lt),
	NumF64Gt:   binary(value.F64Gt),
	NumF64Le:   binary(value.F64Le),
	NumF64Ge:   binary(value.F64Ge),

	NumI32Clz:    unary(value.I32Clz),
	NumI32Ctz:    unary(value.I32Ctz),
	NumI32Popcnt: unary(value.I32Popcnt),
	NumI32Add:    binary(value.I32Add),
	NumI32Sub:    binary(value.I32Sub),
	NumI32Mul:    binary(value.I32Mul),
	NumI32DivS:   trapBinary(value.I32DivS),
	NumI32DivU:   trapBinary(value.I32DivU),
	NumI32RemS:   trapBinary(value.I32RemS),
	NumI32RemU:   trapBinary(value.I32RemU),
	NumI32And:    binary(value.I32And),
	NumI32Or:     binary(value.I32Or),
	NumI32Xor:    binary(value.I32Xor),
	NumI32Shl:    binary(value.I32Shl),
	NumI32ShrS:   binary(value.I32ShrS),
	NumI32ShrU:   binary(value.I32ShrU),
	NumI32Rotl:   binary(value.I32Rotl),
	NumI32Rotr:   binary(value.I32Rotr),

	NumI64Clz:    unary(value.I64Clz),
	NumI64Ctz:    unary(value.I64Ctz),
	NumI64Popcnt: unary(value.I64Popcnt),
	NumI64Add:    binary(value.I64Add),
	NumI64Sub:    binary(value.I64Sub),
	NumI64Mul:    binary(value.I64Mul),
	NumI64DivS:   trapBinary(value.I64DivS),
	NumI64DivU:   trapBinary(value.I64DivU),
	NumI64RemS:   trapBinary(value.I64RemS),
	NumI64RemU:   trapBinary(value.I64RemU),
	NumI64And:    binary(value.I64And),
	NumI64Or:     binary(value.I64Or),
	NumI64Xor:    binary(value.I64Xor),
	NumI64Shl:    binary(value.I64Shl),
	NumI64ShrS:   binary(value.I64ShrS),
	NumI64ShrU:   binary(value.I64ShrU),
	NumI64Rotl:   binary(value.I64Rotl),
	NumI64Rotr:   binary(value.I64Rotr),

	NumF32Abs:      unary(value.F32Abs),
	NumF32Neg:      unary(value.F32Neg),
	NumF32Ceil:     unary(value.F32Ceil),
	NumF32Floor:    unary(value.F32Floor),
	NumF32Trunc:    unary(value.F32Trunc),
	NumF32Nearest:  unary(value.F32Nearest),
	NumF32Sqrt:     unary(value.F32Sqrt),
	NumF32Add:      binary(value.F32Add),
	NumF32Sub:      binary(value.F32Sub),
	NumF32Mul:      binary(value.F32Mul),
	NumF32Div:      binary(value.F32Div),
	NumF32Min:      binary(value.F32Min),
	NumF32Max:      binary(value.F32Max),
	NumF32Copysign: binary(value.F32Copysign),

	NumF64Abs:      unary(value.F64Abs),
	NumF64Neg:      unary(value.F64Neg),
	NumF64Ceil:     unary(value.F64Ceil),
	NumF64Floor:    unary(value.F64Floor),
	NumF64Trunc:    unary(value.F64Trunc),
	NumF64Nearest:  unary(value.F64Nearest),
	NumF64Sqrt:     unary(value.F64Sqrt),
	NumF64Add:      binary(value.F64Add),
	NumF64Sub:      binary(value.F64Sub),
	NumF64Mul:      binary(value.F64Mul),
	NumF64Div:      binary(value.F64Div),
	NumF64Min:      binary(value.F64Min),
	NumF64Max:      binary(value.F64Max),
	NumF64Copysign: binary(value.F64Copysign),

	NumI32WrapI64:    unary(value.I32WrapI64),
	NumI64ExtendI32S: unary(value.I64ExtendI32S),
	NumI64ExtendI32U: unary(value.I64ExtendI32U),
	NumF32DemoteF64:  unary(value.F32DemoteF64),
	NumF64PromoteF32: unary(value.F64PromoteF32),

	NumI32TruncF32S: trapUnary(value.I32TruncF32S),
	NumI32TruncF32U: trapUnary(value.I32TruncF32U),
	NumI32TruncF64S: trapUnary(value.I32TruncF64S),
	NumI32TruncF64U: trapUnary(value.I32TruncF64U),
	NumI64TruncF32S: trapUnary(value.I64TruncF32S),
	NumI64TruncF32U: trapUnary(value.I64TruncF32U),
	NumI64TruncF64S: trapUnary(value.I64TruncF64S),
	NumI64TruncF64U: trapUnary(value.I64TruncF64U),

	NumI32TruncSatF32S: unary(value.I32TruncSatF32S),
	NumI32TruncSatF32U: unary(value.I32TruncSatF32U),
	NumI32TruncSatF64S: unary(value.I32TruncSatF64S),
	NumI32TruncSatF64U: unary(value.I32TruncSatF64U),
	NumI64TruncSatF32S: unary(value.I64TruncSatF32S),
	NumI64TruncSatF32U: unary(value.I64TruncSatF32U),
	NumI64TruncSatF64S: unary(value.I64TruncSatF64S),
	NumI64TruncSatF64U: unary(value.I64TruncSatF64U),

	NumF32ConvertI32S: unary(value.F32ConvertI32S),
	NumF32ConvertI32U: unary(value.F32ConvertI32U),
	NumF32ConvertI64S: unary(value.F32ConvertI64S),
	NumF32ConvertI64U: unary(value.F32ConvertI64U),
	NumF64ConvertI32S: unary(value.F64ConvertI32S),
	NumF64ConvertI32U: unary(value.F64ConvertI32U),
	NumF64ConvertI64S: unary(value.F64ConvertI64S),
	NumF64ConvertI64U: unary(value.F64ConvertI64U),

	NumI32ReinterpretF32: unary(value.I32ReinterpretF32),
	NumF32ReinterpretI32: unary(value.F32ReinterpretI32),
	NumI64ReinterpretF64: unary(value.I64ReinterpretF64),
	NumF64ReinterpretI64: unary(value.F64ReinterpretI64),

	NumI32Extend8S:  unary(value.I32Extend8S),
	NumI32Extend16S: unary(value.I32Extend16S),
	NumI64Extend8S:  unary(value.I64Extend8S),
	NumI64Extend16S: unary(value.I64Extend16S),
	NumI64Extend32S: unary(value.I64Extend32S),
}

// EvalBinary evaluates a non-trapping binary NumericOp. Panics if op is
// not registered as binary/non-trapping; the translator and interpreter
// must only call this after checking Trapping/Arity.
func EvalBinary(op NumericOp, a, b value.UntypedVal) value.UntypedVal {
	return NumericOpTable[op].Binary(a, b)
}

// EvalUnary evaluates a non-trapping unary NumericOp.
func EvalUnary(op NumericOp, a value.UntypedVal) value.UntypedVal {
	return NumericOpTable[op].Unary(a)
}

// EvalTrapBinary evaluates a trapping binary NumericOp.
func EvalTrapBinary(op NumericOp, a, b value.UntypedVal) (value.UntypedVal, value.TrapCode) {
	return NumericOpTable[op].TrapBinary(a, b)
}

// EvalTrapUnary evaluates a trapping unary NumericOp.
func EvalTrapUnary(op NumericOp, a value.UntypedVal) (value.UntypedVal, value.TrapCode) {
	return NumericOpTable[op].TrapUnary(a)
}
