package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	require.Equal(t, int32(-42), FromI32(-42).I32())
	require.Equal(t, int64(-42), FromI64(-42).I64())
	require.Equal(t, float32(1.5), FromF32(1.5).F32())
	require.Equal(t, float64(1.5), FromF64(1.5).F64())
	require.Equal(t, math.Float32bits(float32(math.NaN())), uint32(FromF32(float32(math.NaN()))))
}

func TestIntegerDivTraps(t *testing.T) {
	_, tc := I32DivS(FromI32(1), FromI32(0))
	require.Equal(t, TrapCodeIntegerDivideByZero, tc)

	_, tc = I32DivS(FromI32(math.MinInt32), FromI32(-1))
	require.Equal(t, TrapCodeIntegerOverflow, tc)

	v, tc := I32RemS(FromI32(math.MinInt32), FromI32(-1))
	require.Zero(t, tc)
	require.EqualValues(t, 0, v.I32())
}

func TestFloatMinMaxNaN(t *testing.T) {
	nan := FromF64(math.NaN())
	require.True(t, math.IsNaN(F64Min(nan, FromF64(1)).F64()))
	require.True(t, math.IsNaN(F64Max(FromF64(1), nan).F64()))
}

func TestTruncTraps(t *testing.T) {
	_, tc := I32TruncF32S(FromF32(float32(math.NaN())))
	require.Equal(t, TrapCodeInvalidConversionToInt, tc)

	_, tc = I32TruncF32S(FromF32(1e10))
	require.Equal(t, TrapCodeIntegerOverflow, tc)
}

func TestTruncSatClamps(t *testing.T) {
	require.EqualValues(t, 0, I32TruncSatF32S(FromF32(float32(math.NaN()))).I32())
	require.EqualValues(t, math.MaxInt32, I32TruncSatF32S(FromF32(1e10)).I32())
	require.EqualValues(t, math.MinInt32, I32TruncSatF32S(FromF32(-1e10)).I32())
}

func TestReinterpretIsBitIdentity(t *testing.T) {
	v := FromF32(3.14)
	require.Equal(t, v, F32ReinterpretI32(I32ReinterpretF32(v)))
}

func TestShiftsMaskAmount(t *testing.T) {
	// shift by 32 on i32 must behave as shift by 0, per spec masking rules.
	require.Equal(t, FromI32(1), I32Shl(FromI32(1), FromI32(32)))
	require.Equal(t, FromI64(1), I64Shl(FromI64(1), FromI64(64)))
}
