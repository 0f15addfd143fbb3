package corewasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/value"
	"github.com/corewasm/corewasm/internal/wasm"
)

func TestMemoryHandle_ReadWrite(t *testing.T) {
	store := wasm.NewStore()
	mt, err := wasm.NewMemoryType(1, 2, true, wasm.DefaultPageSizeLog2, wasm.IndexTypeI32)
	require.NoError(t, err)
	idx := store.AllocMemory(wasm.MemoryEntity{Type: mt, Bytes: make([]byte, mt.Minimum*uint64(mt.PageSize()))})

	mem := &memoryHandle{store: store, idx: idx}
	require.EqualValues(t, 1, mem.Size())

	require.True(t, mem.WriteUint32Le(8, 0xdeadbeef))
	v, ok := mem.ReadUint32Le(8)
	require.True(t, ok)
	require.EqualValues(t, 0xdeadbeef, v)

	_, ok = mem.ReadByte(uint32(len(store.Memory(idx).Bytes)))
	require.False(t, ok, "reading past the end must fail rather than panic")

	prev, ok := mem.Grow(1)
	require.True(t, ok)
	require.EqualValues(t, 1, prev)
	require.EqualValues(t, 2, mem.Size())

	_, ok = mem.Grow(1)
	require.False(t, ok, "growing past the declared maximum must fail")
}

func TestTableHandle_GetSetGrow(t *testing.T) {
	store := wasm.NewStore()
	tt := wasm.TableType{ElemType: api.ValueTypeFuncref, Minimum: 2, Maximum: 3, HasMaximum: true}
	idx := store.AllocTable(wasm.TableEntity{Type: tt, Elements: make([]value.UntypedVal, tt.Minimum)})

	tbl := &tableHandle{store: store, idx: idx}
	require.EqualValues(t, 2, tbl.Size())

	require.True(t, tbl.Set(0, value.FromRef(5).U64()))
	v, ok := tbl.Get(0)
	require.True(t, ok)
	require.EqualValues(t, 5, value.UntypedVal(v).Ref())

	require.False(t, tbl.Set(10, 0), "out-of-bounds Set must fail rather than panic")

	prev, ok := tbl.Grow(1, 0)
	require.True(t, ok)
	require.EqualValues(t, 2, prev)

	_, ok = tbl.Grow(1, 0)
	require.False(t, ok, "growing past the declared maximum must fail")
}

func TestGlobalHandle_MutabilityGate(t *testing.T) {
	store := wasm.NewStore()
	idx := store.AllocGlobal(wasm.GlobalEntity{
		Type:  wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: true},
		Value: value.FromI32(41),
	})

	g := &mutableGlobalHandle{globalHandle: &globalHandle{store: store, idx: idx}}
	require.EqualValues(t, 41, int32(value.UntypedVal(g.Get()).I32()))
	g.Set(value.FromI32(42).U64())
	require.EqualValues(t, 42, int32(value.UntypedVal(g.Get()).I32()))
}
