package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/internal/value"
)

func TestValueStack_ReserveZeroesReusedCells(t *testing.T) {
	vs := newValueStack(64)

	require.True(t, vs.reserve(0, 8))
	for i := 0; i < 8; i++ {
		vs.set(i, value.FromI32(int32(i+1)))
	}

	// A deeper frame comes and goes, leaving residue.
	require.True(t, vs.reserve(8, 8))
	for i := 8; i < 16; i++ {
		vs.set(i, value.FromI32(-1))
	}

	// A new callee occupying the same offsets must observe zeroed locals,
	// including when the reservation also grows the backing array.
	require.True(t, vs.reserve(8, 12))
	for i := 8; i < 20; i++ {
		require.Zero(t, vs.get(i), "cell %d must be zeroed for the new frame", i)
	}
	// The caller's cells below the new frame stay intact.
	require.Equal(t, value.FromI32(1), vs.get(0))
}

func TestValueStack_ReserveEnforcesLimit(t *testing.T) {
	vs := newValueStack(16)
	require.True(t, vs.reserve(0, 16))
	require.False(t, vs.reserve(0, 17))
	require.False(t, vs.reserve(10, 7))
}

func TestCallStack_PushLimitAndPop(t *testing.T) {
	cs := newCallStack(2)
	require.True(t, cs.push(frame{start: 0}))
	require.True(t, cs.push(frame{start: 8}))
	require.False(t, cs.push(frame{start: 16}), "recursion limit reached")

	caller, ok := cs.pop()
	require.True(t, ok)
	require.Equal(t, 0, caller.start)

	_, ok = cs.pop()
	require.False(t, ok, "popping the root frame ends execution")
}
