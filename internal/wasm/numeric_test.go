package wasm

import (
	"testing"

	"github.com/corewasm/corewasm/internal/value"
	"github.com/stretchr/testify/require"
)

func TestNumericOpTable_CoversEveryConstant(t *testing.T) {
	for op := NumI32Eqz; op <= NumI64Extend32S; op++ {
		info, ok := NumericOpTable[op]
		require.True(t, ok, "NumericOp %d missing from NumericOpTable", op)
		require.Contains(t, []int{1, 2}, info.Arity)
		if info.Trapping {
			if info.Arity == 1 {
				require.NotNil(t, info.TrapUnary)
			} else {
				require.NotNil(t, info.TrapBinary)
			}
		} else if info.Arity == 1 {
			require.NotNil(t, info.Unary)
		} else {
			require.NotNil(t, info.Binary)
		}
	}
}

func TestEvalBinary_Add(t *testing.T) {
	require.EqualValues(t, 7, EvalBinary(NumI32Add, value.FromI32(3), value.FromI32(4)).I32())
}

func TestEvalTrapBinary_DivByZero(t *testing.T) {
	_, tc := EvalTrapBinary(NumI32DivS, value.FromI32(1), value.FromI32(0))
	require.Equal(t, value.TrapCodeIntegerDivideByZero, tc)
}
