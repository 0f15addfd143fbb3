package wasm

import (
	"testing"

	"github.com/corewasm/corewasm/internal/value"
	"github.com/stretchr/testify/require"
)

func TestStore_AllocAndFetch(t *testing.T) {
	s := NewStore()

	midx := s.AllocMemory(MemoryEntity{Bytes: make([]byte, 65536)})
	require.Equal(t, uint32(0), uint32(midx.Index()))
	require.Len(t, s.Memory(midx).Bytes, 65536)

	gidx := s.AllocGlobal(GlobalEntity{Value: value.FromI32(7)})
	require.EqualValues(t, 7, s.Global(gidx).Value.I32())
}

func TestStore_FuelMetering(t *testing.T) {
	s := NewStore()
	require.True(t, s.ConsumeFuel(100), "fuel metering disabled by default")

	s.EnableFuel(10)
	require.True(t, s.ConsumeFuel(4))
	require.EqualValues(t, 6, s.Fuel())
	require.False(t, s.ConsumeFuel(100), "exhausting the budget should fail")
	require.EqualValues(t, 0, s.Fuel())
}
