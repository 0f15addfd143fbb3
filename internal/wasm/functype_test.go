package wasm

import (
	"testing"

	"github.com/corewasm/corewasm/api"
	"github.com/stretchr/testify/require"
)

func TestTypeTable_DedupByContent(t *testing.T) {
	tt := NewTypeTable()

	a, err := NewFuncType([]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI64})
	require.NoError(t, err)
	b, err := NewFuncType([]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI64})
	require.NoError(t, err)
	c, err := NewFuncType([]api.ValueType{api.ValueTypeF32}, []api.ValueType{api.ValueTypeI64})
	require.NoError(t, err)

	require.True(t, a.EqualTo(b))
	require.False(t, a.EqualTo(c))

	ia := tt.Dedup(a)
	ib := tt.Dedup(b)
	ic := tt.Dedup(c)

	require.Equal(t, ia, ib)
	require.NotEqual(t, ia, ic)
	require.Equal(t, 2, tt.Len())
}

func TestFuncType_TooManyParams(t *testing.T) {
	params := make([]api.ValueType, maxFuncTypeParams+1)
	_, err := NewFuncType(params, nil)
	require.Equal(t, FuncTypeErrorTooManyParams, err)
}

func TestFuncType_String(t *testing.T) {
	ft, err := NewFuncType([]api.ValueType{api.ValueTypeI32, api.ValueTypeI64}, []api.ValueType{api.ValueTypeF32})
	require.NoError(t, err)
	require.Equal(t, "(i32, i64) -> (f32)", ft.String())
}
