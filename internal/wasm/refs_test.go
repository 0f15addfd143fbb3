package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/internal/value"
)

func TestFuncRef_RoundTrip(t *testing.T) {
	s := NewStore()
	idx := s.AllocFunc(FuncEntity{})

	encoded := EncodeFuncRef(idx)
	require.False(t, encoded.IsNullRef(), "slab index zero must still encode non-null")

	decoded, ok := s.DecodeFuncRef(encoded)
	require.True(t, ok)
	require.Equal(t, idx, decoded)
}

func TestFuncRef_NullDecodesToNotOK(t *testing.T) {
	s := NewStore()
	_, ok := s.DecodeFuncRef(value.FromRef(0))
	require.False(t, ok)
}

func TestStore_CrossStoreHandleIsDetected(t *testing.T) {
	a := NewStore()
	b := NewStore()
	idx := a.AllocGlobal(GlobalEntity{Value: value.FromI32(1)})

	require.NotPanics(t, func() { a.Global(idx) })
	require.Panics(t, func() { b.Global(idx) }, "a handle must only resolve against its own store")
}
