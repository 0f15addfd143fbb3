package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryType_ValidatesPageSize(t *testing.T) {
	_, err := NewMemoryType(1, 0, false, 12, IndexTypeI32)
	require.Equal(t, MemoryErrorInvalidMemoryType, err)

	mt, err := NewMemoryType(1, 2, true, DefaultPageSizeLog2, IndexTypeI32)
	require.NoError(t, err)
	require.EqualValues(t, 65536, mt.PageSize())
}

func TestMemoryType_MinimumExceedsMaximum(t *testing.T) {
	_, err := NewMemoryType(5, 2, true, DefaultPageSizeLog2, IndexTypeI32)
	require.Equal(t, MemoryErrorInvalidMemoryType, err)
}

func TestMemoryType_IsSubtypeOf(t *testing.T) {
	wantMin1 := must(NewMemoryType(1, 0, false, DefaultPageSizeLog2, IndexTypeI32))
	haveMin2 := must(NewMemoryType(2, 0, false, DefaultPageSizeLog2, IndexTypeI32))
	haveMin0 := must(NewMemoryType(0, 0, false, DefaultPageSizeLog2, IndexTypeI32))

	require.True(t, haveMin2.IsSubtypeOf(wantMin1), "a larger minimum satisfies a smaller import requirement")
	require.False(t, haveMin0.IsSubtypeOf(wantMin1), "a smaller minimum cannot satisfy a larger import requirement")

	wantBounded := must(NewMemoryType(1, 10, true, DefaultPageSizeLog2, IndexTypeI32))
	haveTighter := must(NewMemoryType(1, 5, true, DefaultPageSizeLog2, IndexTypeI32))
	haveLooser := must(NewMemoryType(1, 20, true, DefaultPageSizeLog2, IndexTypeI32))
	haveUnbounded := must(NewMemoryType(1, 0, false, DefaultPageSizeLog2, IndexTypeI32))

	require.True(t, haveTighter.IsSubtypeOf(wantBounded))
	require.False(t, haveLooser.IsSubtypeOf(wantBounded))
	require.False(t, haveUnbounded.IsSubtypeOf(wantBounded))

	mem64 := must(NewMemoryType(1, 0, false, DefaultPageSizeLog2, IndexTypeI64))
	require.False(t, mem64.IsSubtypeOf(wantMin1), "index type width must match")
}

func must(mt MemoryType, err error) MemoryType {
	if err != nil {
		panic(err)
	}
	return mt
}
