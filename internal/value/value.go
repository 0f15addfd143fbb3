// Package value implements the untyped 64-bit value cell used throughout
// translation and execution, along with every numeric operation a Wasm
// program can perform on it.
package value

import (
	"math"
	"math/bits"

	"github.com/corewasm/corewasm/internal/moremath"
)

// UntypedVal is a raw 64-bit cell with no type tag. Every Wasm value except
// V128 fits in one; numeric operations reinterpret the bits according to
// the opcode, not according to any stored type.
type UntypedVal uint64

// Untyped constructors. Bit-preserving: encoding then decoding the same
// type round-trips exactly.

func FromI32(v int32) UntypedVal   { return UntypedVal(uint32(v)) }
func FromU32(v uint32) UntypedVal  { return UntypedVal(v) }
func FromI64(v int64) UntypedVal   { return UntypedVal(v) }
func FromU64(v uint64) UntypedVal  { return UntypedVal(v) }
func FromF32(v float32) UntypedVal { return UntypedVal(math.Float32bits(v)) }
func FromF64(v float64) UntypedVal { return UntypedVal(math.Float64bits(v)) }
func FromBool(v bool) UntypedVal {
	if v {
		return 1
	}
	return 0
}

// Ref constructors/accessors model FuncRef/ExternRef as opaque handles;
// null is the zero UntypedVal (see IsNullRef), so a non-null handle must
// never encode as zero (wasm.EncodeFuncRef offsets function indices by one).
func FromRef(handle uint64) UntypedVal { return UntypedVal(handle) }

func (v UntypedVal) I32() int32     { return int32(uint32(v)) }
func (v UntypedVal) U32() uint32    { return uint32(v) }
func (v UntypedVal) I64() int64     { return int64(v) }
func (v UntypedVal) U64() uint64    { return uint64(v) }
func (v UntypedVal) F32() float32   { return math.Float32frombits(uint32(v)) }
func (v UntypedVal) F64() float64   { return math.Float64frombits(uint64(v)) }
func (v UntypedVal) Bool() bool     { return v != 0 }
func (v UntypedVal) Ref() uint64    { return uint64(v) }
func (v UntypedVal) IsNullRef() bool { return v == 0 }

// cmp converts a Go bool comparison result into the i32 0/1 cell Wasm
// comparisons produce.
func cmp(b bool) UntypedVal { return FromBool(b) }

// ---- Integer comparisons ----

func I32Eq(a, b UntypedVal) UntypedVal  { return cmp(a.I32() == b.I32()) }
func I32Ne(a, b UntypedVal) UntypedVal  { return cmp(a.I32() != b.I32()) }
func I32LtS(a, b UntypedVal) UntypedVal { return cmp(a.I32() < b.I32()) }
func I32LtU(a, b UntypedVal) UntypedVal { return cmp(a.U32() < b.U32()) }
func I32GtS(a, b UntypedVal) UntypedVal { return cmp(a.I32() > b.I32()) }
func I32GtU(a, b UntypedVal) UntypedVal { return cmp(a.U32() > b.U32()) }
func I32LeS(a, b UntypedVal) UntypedVal { return cmp(a.I32() <= b.I32()) }
func I32LeU(a, b UntypedVal) UntypedVal { return cmp(a.U32() <= b.U32()) }
func I32GeS(a, b UntypedVal) UntypedVal { return cmp(a.I32() >= b.I32()) }
func I32GeU(a, b UntypedVal) UntypedVal { return cmp(a.U32() >= b.U32()) }

func I64Eq(a, b UntypedVal) UntypedVal  { return cmp(a.I64() == b.I64()) }
func I64Ne(a, b UntypedVal) UntypedVal  { return cmp(a.I64() != b.I64()) }
func I64LtS(a, b UntypedVal) UntypedVal { return cmp(a.I64() < b.I64()) }
func I64LtU(a, b UntypedVal) UntypedVal { return cmp(a.U64() < b.U64()) }
func I64GtS(a, b UntypedVal) UntypedVal { return cmp(a.I64() > b.I64()) }
func I64GtU(a, b UntypedVal) UntypedVal { return cmp(a.U64() > b.U64()) }
func I64LeS(a, b UntypedVal) UntypedVal { return cmp(a.I64() <= b.I64()) }
func I64LeU(a, b UntypedVal) UntypedVal { return cmp(a.U64() <= b.U64()) }
func I64GeS(a, b UntypedVal) UntypedVal { return cmp(a.I64() >= b.I64()) }
func I64GeU(a, b UntypedVal) UntypedVal { return cmp(a.U64() >= b.U64()) }

func I32Eqz(a UntypedVal) UntypedVal { return cmp(a.I32() == 0) }
func I64Eqz(a UntypedVal) UntypedVal { return cmp(a.I64() == 0) }

// ---- Float comparisons (produce i32 0/1; unordered comparisons involving
// NaN are false per IEEE-754, except Ne which is true) ----

func F32Eq(a, b UntypedVal) UntypedVal { return cmp(a.F32() == b.F32()) }
func F32Ne(a, b UntypedVal) UntypedVal { return cmp(a.F32() != b.F32()) }
func F32Lt(a, b UntypedVal) UntypedVal { return cmp(a.F32() < b.F32()) }
func F32Gt(a, b UntypedVal) UntypedVal { return cmp(a.F32() > b.F32()) }
func F32Le(a, b UntypedVal) UntypedVal { return cmp(a.F32() <= b.F32()) }
func F32Ge(a, b UntypedVal) UntypedVal { return cmp(a.F32() >= b.F32()) }

func F64Eq(a, b UntypedVal) UntypedVal { return cmp(a.F64() == b.F64()) }
func F64Ne(a, b UntypedVal) UntypedVal { return cmp(a.F64() != b.F64()) }
func F64Lt(a, b UntypedVal) UntypedVal { return cmp(a.F64() < b.F64()) }
func F64Gt(a, b UntypedVal) UntypedVal { return cmp(a.F64() > b.F64()) }
func F64Le(a, b UntypedVal) UntypedVal { return cmp(a.F64() <= b.F64()) }
func F64Ge(a, b UntypedVal) UntypedVal { return cmp(a.F64() >= b.F64()) }

// ---- Integer arithmetic ----

func I32Clz(a UntypedVal) UntypedVal    { return FromI32(int32(bits.LeadingZeros32(a.U32()))) }
func I32Ctz(a UntypedVal) UntypedVal    { return FromI32(int32(bits.TrailingZeros32(a.U32()))) }
func I32Popcnt(a UntypedVal) UntypedVal { return FromI32(int32(bits.OnesCount32(a.U32()))) }

func I64Clz(a UntypedVal) UntypedVal    { return FromI64(int64(bits.LeadingZeros64(a.U64()))) }
func I64Ctz(a UntypedVal) UntypedVal    { return FromI64(int64(bits.TrailingZeros64(a.U64()))) }
func I64Popcnt(a UntypedVal) UntypedVal { return FromI64(int64(bits.OnesCount64(a.U64()))) }

func I32Add(a, b UntypedVal) UntypedVal { return FromU32(a.U32() + b.U32()) }
func I32Sub(a, b UntypedVal) UntypedVal { return FromU32(a.U32() - b.U32()) }
func I32Mul(a, b UntypedVal) UntypedVal { return FromU32(a.U32() * b.U32()) }

func I64Add(a, b UntypedVal) UntypedVal { return FromU64(a.U64() + b.U64()) }
func I64Sub(a, b UntypedVal) UntypedVal { return FromU64(a.U64() - b.U64()) }
func I64Mul(a, b UntypedVal) UntypedVal { return FromU64(a.U64() * b.U64()) }

func I32DivS(a, b UntypedVal) (UntypedVal, TrapCode) {
	x, y := a.I32(), b.I32()
	if y == 0 {
		return 0, TrapCodeIntegerDivideByZero
	}
	if x == math.MinInt32 && y == -1 {
		return 0, TrapCodeIntegerOverflow
	}
	return FromI32(x / y), 0
}

func I32DivU(a, b UntypedVal) (UntypedVal, TrapCode) {
	x, y := a.U32(), b.U32()
	if y == 0 {
		return 0, TrapCodeIntegerDivideByZero
	}
	return FromU32(x / y), 0
}

func I32RemS(a, b UntypedVal) (UntypedVal, TrapCode) {
	x, y := a.I32(), b.I32()
	if y == 0 {
		return 0, TrapCodeIntegerDivideByZero
	}
	if x == math.MinInt32 && y == -1 {
		return FromI32(0), 0
	}
	return FromI32(x % y), 0
}

func I32RemU(a, b UntypedVal) (UntypedVal, TrapCode) {
	x, y := a.U32(), b.U32()
	if y == 0 {
		return 0, TrapCodeIntegerDivideByZero
	}
	return FromU32(x % y), 0
}

func I64DivS(a, b UntypedVal) (UntypedVal, TrapCode) {
	x, y := a.I64(), b.I64()
	if y == 0 {
		return 0, TrapCodeIntegerDivideByZero
	}
	if x == math.MinInt64 && y == -1 {
		return 0, TrapCodeIntegerOverflow
	}
	return FromI64(x / y), 0
}

func I64DivU(a, b UntypedVal) (UntypedVal, TrapCode) {
	x, y := a.U64(), b.U64()
	if y == 0 {
		return 0, TrapCodeIntegerDivideByZero
	}
	return FromU64(x / y), 0
}

func I64RemS(a, b UntypedVal) (UntypedVal, TrapCode) {
	x, y := a.I64(), b.I64()
	if y == 0 {
		return 0, TrapCodeIntegerDivideByZero
	}
	if x == math.MinInt64 && y == -1 {
		return FromI64(0), 0
	}
	return FromI64(x % y), 0
}

func I64RemU(a, b UntypedVal) (UntypedVal, TrapCode) {
	x, y := a.U64(), b.U64()
	if y == 0 {
		return 0, TrapCodeIntegerDivideByZero
	}
	return FromU64(x % y), 0
}

// ---- Shift & rotate (shift amount is masked to the operand width, per spec) ----

func I32Shl(a, b UntypedVal) UntypedVal  { return FromU32(a.U32() << (b.U32() & 31)) }
func I32ShrS(a, b UntypedVal) UntypedVal { return FromI32(a.I32() >> (b.U32() & 31)) }
func I32ShrU(a, b UntypedVal) UntypedVal { return FromU32(a.U32() >> (b.U32() & 31)) }
func I32Rotl(a, b UntypedVal) UntypedVal { return FromU32(bits.RotateLeft32(a.U32(), int(b.U32()&31))) }
func I32Rotr(a, b UntypedVal) UntypedVal {
	return FromU32(bits.RotateLeft32(a.U32(), -int(b.U32()&31)))
}

func I64Shl(a, b UntypedVal) UntypedVal  { return FromU64(a.U64() << (b.U64() & 63)) }
func I64ShrS(a, b UntypedVal) UntypedVal { return FromI64(a.I64() >> (b.U64() & 63)) }
func I64ShrU(a, b UntypedVal) UntypedVal { return FromU64(a.U64() >> (b.U64() & 63)) }
func I64Rotl(a, b UntypedVal) UntypedVal { return FromU64(bits.RotateLeft64(a.U64(), int(b.U64()&63))) }
func I64Rotr(a, b UntypedVal) UntypedVal {
	return FromU64(bits.RotateLeft64(a.U64(), -int(b.U64()&63)))
}

// ---- Bitwise ----

func I32And(a, b UntypedVal) UntypedVal { return FromU32(a.U32() & b.U32()) }
func I32Or(a, b UntypedVal) UntypedVal  { return FromU32(a.U32() | b.U32()) }
func I32Xor(a, b UntypedVal) UntypedVal { return FromU32(a.U32() ^ b.U32()) }

func I64And(a, b UntypedVal) UntypedVal { return FromU64(a.U64() & b.U64()) }
func I64Or(a, b UntypedVal) UntypedVal  { return FromU64(a.U64() | b.U64()) }
func I64Xor(a, b UntypedVal) UntypedVal { return FromU64(a.U64() ^ b.U64()) }

// ---- Float arithmetic ----
// min/max follow Wasm's NaN and signed-zero tie-break rules, not Go's
// math.Min/Max; nearest rounds ties to even (math.RoundToEven), not away
// from zero like math.Round (see internal/moremath).

func F32Abs(a UntypedVal) UntypedVal  { return FromF32(float32(math.Abs(float64(a.F32())))) }
func F32Neg(a UntypedVal) UntypedVal  { return FromF32(-a.F32()) }
func F32Ceil(a UntypedVal) UntypedVal { return FromF32(float32(math.Ceil(float64(a.F32())))) }
func F32Floor(a UntypedVal) UntypedVal {
	return FromF32(float32(math.Floor(float64(a.F32()))))
}
func F32Trunc(a UntypedVal) UntypedVal {
	return FromF32(float32(math.Trunc(float64(a.F32()))))
}
func F32Nearest(a UntypedVal) UntypedVal {
	return FromF32(moremath.WasmCompatNearestF32(a.F32()))
}
func F32Sqrt(a UntypedVal) UntypedVal { return FromF32(float32(math.Sqrt(float64(a.F32())))) }

func F64Abs(a UntypedVal) UntypedVal     { return FromF64(math.Abs(a.F64())) }
func F64Neg(a UntypedVal) UntypedVal     { return FromF64(-a.F64()) }
func F64Ceil(a UntypedVal) UntypedVal    { return FromF64(math.Ceil(a.F64())) }
func F64Floor(a UntypedVal) UntypedVal   { return FromF64(math.Floor(a.F64())) }
func F64Trunc(a UntypedVal) UntypedVal   { return FromF64(math.Trunc(a.F64())) }
func F64Nearest(a UntypedVal) UntypedVal { return FromF64(moremath.WasmCompatNearestF64(a.F64())) }
func F64Sqrt(a UntypedVal) UntypedVal    { return FromF64(math.Sqrt(a.F64())) }

func F32Add(a, b UntypedVal) UntypedVal { return FromF32(a.F32() + b.F32()) }
func F32Sub(a, b UntypedVal) UntypedVal { return FromF32(a.F32() - b.F32()) }
func F32Mul(a, b UntypedVal) UntypedVal { return FromF32(a.F32() * b.F32()) }
func F32Div(a, b UntypedVal) UntypedVal { return FromF32(a.F32() / b.F32()) }
func F32Min(a, b UntypedVal) UntypedVal {
	return FromF32(float32(moremath.WasmCompatMin(float64(a.F32()), float64(b.F32()))))
}
func F32Max(a, b UntypedVal) UntypedVal {
	return FromF32(float32(moremath.WasmCompatMax(float64(a.F32()), float64(b.F32()))))
}
func F32Copysign(a, b UntypedVal) UntypedVal {
	return FromF32(float32(math.Copysign(float64(a.F32()), float64(b.F32()))))
}

func F64Add(a, b UntypedVal) UntypedVal      { return FromF64(a.F64() + b.F64()) }
func F64Sub(a, b UntypedVal) UntypedVal      { return FromF64(a.F64() - b.F64()) }
func F64Mul(a, b UntypedVal) UntypedVal      { return FromF64(a.F64() * b.F64()) }
func F64Div(a, b UntypedVal) UntypedVal      { return FromF64(a.F64() / b.F64()) }
func F64Min(a, b UntypedVal) UntypedVal      { return FromF64(moremath.WasmCompatMin(a.F64(), b.F64())) }
func F64Max(a, b UntypedVal) UntypedVal      { return FromF64(moremath.WasmCompatMax(a.F64(), b.F64())) }
func F64Copysign(a, b UntypedVal) UntypedVal { return FromF64(math.Copysign(a.F64(), b.F64())) }

// ---- Conversions ----

func I32WrapI64(a UntypedVal) UntypedVal    { return FromU32(uint32(a.U64())) }
func I64ExtendI32S(a UntypedVal) UntypedVal { return FromI64(int64(a.I32())) }
func I64ExtendI32U(a UntypedVal) UntypedVal { return FromU64(uint64(a.U32())) }

func F32DemoteF64(a UntypedVal) UntypedVal  { return FromF32(float32(a.F64())) }
func F64PromoteF32(a UntypedVal) UntypedVal { return FromF64(float64(a.F32())) }

func truncToInt(f float64, min, max float64) (float64, TrapCode) {
	if math.IsNaN(f) {
		return 0, TrapCodeInvalidConversionToInt
	}
	if f < min || f > max {
		return 0, TrapCodeIntegerOverflow
	}
	return math.Trunc(f), 0
}

func I32TruncF32S(a UntypedVal) (UntypedVal, TrapCode) {
	t, tc := truncToInt(float64(a.F32()), -2147483648, 2147483648-1)
	if tc != 0 {
		return 0, tc
	}
	if t >= 2147483648 {
		return 0, TrapCodeIntegerOverflow
	}
	return FromI32(int32(t)), 0
}
func I32TruncF32U(a UntypedVal) (UntypedVal, TrapCode) {
	t, tc := truncToInt(float64(a.F32()), -1, 4294967296)
	if tc != 0 {
		return 0, tc
	}
	if t >= 4294967296 {
		return 0, TrapCodeIntegerOverflow
	}
	return FromU32(uint32(t)), 0
}
func I32TruncF64S(a UntypedVal) (UntypedVal, TrapCode) {
	t, tc := truncToInt(a.F64(), -2147483649, 2147483648)
	if tc != 0 {
		return 0, tc
	}
	return FromI32(int32(t)), 0
}
func I32TruncF64U(a UntypedVal) (UntypedVal, TrapCode) {
	t, tc := truncToInt(a.F64(), -1, 4294967296)
	if tc != 0 {
		return 0, tc
	}
	return FromU32(uint32(t)), 0
}
func I64TruncF32S(a UntypedVal) (UntypedVal, TrapCode) {
	t, tc := truncToInt(float64(a.F32()), -9223372036854775808, 9223372036854775808)
	if tc != 0 {
		return 0, tc
	}
	return FromI64(int64(t)), 0
}
func I64TruncF32U(a UntypedVal) (UntypedVal, TrapCode) {
	t, tc := truncToInt(float64(a.F32()), -1, 18446744073709551616)
	if tc != 0 {
		return 0, tc
	}
	return FromU64(uint64(t)), 0
}
func I64TruncF64S(a UntypedVal) (UntypedVal, TrapCode) {
	t, tc := truncToInt(a.F64(), -9223372036854775808, 9223372036854775808)
	if tc != 0 {
		return 0, tc
	}
	return FromI64(int64(t)), 0
}
func I64TruncF64U(a UntypedVal) (UntypedVal, TrapCode) {
	t, tc := truncToInt(a.F64(), -1, 18446744073709551616)
	if tc != 0 {
		return 0, tc
	}
	return FromU64(uint64(t)), 0
}

// saturating conversions clamp instead of trapping; NaN saturates to 0.
func satTruncS(f float64, min, max int64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	if f < float64(min) {
		return min
	}
	t := math.Trunc(f)
	if t < float64(min) {
		return min
	}
	if t >= float64(max)+1 {
		return max
	}
	return int64(t)
}

func satTruncU(f float64, max uint64) uint64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	t := math.Trunc(f)
	if t >= float64(max)+1 {
		return max
	}
	return uint64(t)
}

func I32TruncSatF32S(a UntypedVal) UntypedVal {
	return FromI32(int32(satTruncS(float64(a.F32()), math.MinInt32, math.MaxInt32)))
}
func I32TruncSatF32U(a UntypedVal) UntypedVal {
	return FromU32(uint32(satTruncU(float64(a.F32()), math.MaxUint32)))
}
func I32TruncSatF64S(a UntypedVal) UntypedVal {
	return FromI32(int32(satTruncS(a.F64(), math.MinInt32, math.MaxInt32)))
}
func I32TruncSatF64U(a UntypedVal) UntypedVal {
	return FromU32(uint32(satTruncU(a.F64(), math.MaxUint32)))
}
func I64TruncSatF32S(a UntypedVal) UntypedVal {
	return FromI64(satTruncS(float64(a.F32()), math.MinInt64, math.MaxInt64))
}
func I64TruncSatF32U(a UntypedVal) UntypedVal {
	return FromU64(satTruncU(float64(a.F32()), math.MaxUint64))
}
func I64TruncSatF64S(a UntypedVal) UntypedVal {
	return FromI64(satTruncS(a.F64(), math.MinInt64, math.MaxInt64))
}
func I64TruncSatF64U(a UntypedVal) UntypedVal {
	return FromU64(satTruncU(a.F64(), math.MaxUint64))
}

func F32ConvertI32S(a UntypedVal) UntypedVal { return FromF32(float32(a.I32())) }
func F32ConvertI32U(a UntypedVal) UntypedVal { return FromF32(float32(a.U32())) }
func F32ConvertI64S(a UntypedVal) UntypedVal { return FromF32(float32(a.I64())) }
func F32ConvertI64U(a UntypedVal) UntypedVal { return FromF32(float32(a.U64())) }
func F64ConvertI32S(a UntypedVal) UntypedVal { return FromF64(float64(a.I32())) }
func F64ConvertI32U(a UntypedVal) UntypedVal { return FromF64(float64(a.U32())) }
func F64ConvertI64S(a UntypedVal) UntypedVal { return FromF64(float64(a.I64())) }
func F64ConvertI64U(a UntypedVal) UntypedVal { return FromF64(float64(a.U64())) }

// Reinterpret operations are bit-identity: the storage is already untyped.
func I32ReinterpretF32(a UntypedVal) UntypedVal { return a }
func F32ReinterpretI32(a UntypedVal) UntypedVal { return a }
func I64ReinterpretF64(a UntypedVal) UntypedVal { return a }
func F64ReinterpretI64(a UntypedVal) UntypedVal { return a }

func I32Extend8S(a UntypedVal) UntypedVal  { return FromI32(int32(int8(a.U32()))) }
func I32Extend16S(a UntypedVal) UntypedVal { return FromI32(int32(int16(a.U32()))) }
func I64Extend8S(a UntypedVal) UntypedVal  { return FromI64(int64(int8(a.U64()))) }
func I64Extend16S(a UntypedVal) UntypedVal { return FromI64(int64(int16(a.U64()))) }
func I64Extend32S(a UntypedVal) UntypedVal { return FromI64(int64(int32(a.U64()))) }
