package interpreter

import "github.com/corewasm/corewasm/internal/wasm"

// instanceCache memoizes per-frame lookups the dispatch loop would
// otherwise repeat on every op: the current instance's default memory
// bytes, and the last table/func/global touched by index.
//
// The default-memory slice is more than a speed trick here: growing a
// memory can reallocate its backing array (wasm.MemoryEntity.Bytes is an
// ordinary Go slice, not a pinned buffer), so every cached reference must
// be re-fetched after any op that may have grown it or run a host call.
// See DESIGN.md.
type instanceCache struct {
	instance *wasm.Instance

	defaultMem      []byte
	hasDefaultMem   bool
	defaultMemIdx   wasm.MemoryIdx

	lastGlobalIdx uint32
	lastGlobal    *wasm.GlobalEntity
	hasLastGlobal bool

	lastTableIdx uint32
	lastTable    *wasm.TableEntity
	hasLastTable bool

	lastFuncIdx uint32
	lastFunc    *wasm.FuncEntity
	hasLastFunc bool
}

// updateInstance invalidates every memoized entry and rebinds the cache to
// inst, called whenever the dispatch loop's current frame changes instance
// (crossing a call into another module, or returning out of one).
func (c *instanceCache) updateInstance(store *wasm.Store, inst *wasm.Instance) {
	c.instance = inst
	c.hasLastGlobal = false
	c.hasLastTable = false
	c.hasLastFunc = false
	c.resetDefaultMemoryBytes(store)
}

// resetDefaultMemoryBytes re-reads the default memory's current byte
// slice without touching the rest of the cache. Called after memory.grow
// against the default memory and after any host call, the only two
// operations that can reallocate the backing array; the bulk memory ops
// (init/copy/fill) mutate the existing array in place and leave the
// cached slice header valid.
func (c *instanceCache) resetDefaultMemoryBytes(store *wasm.Store) {
	if c.instance == nil || len(c.instance.Memories) == 0 {
		c.defaultMem = nil
		c.hasDefaultMem = false
		return
	}
	c.defaultMemIdx = c.instance.Memories[0]
	c.defaultMem = store.Memory(c.defaultMemIdx).Bytes
	c.hasDefaultMem = true
}

func (c *instanceCache) global(store *wasm.Store, idx uint32) *wasm.GlobalEntity {
	if c.hasLastGlobal && c.lastGlobalIdx == idx {
		return c.lastGlobal
	}
	g := store.Global(c.instance.Globals[idx])
	c.lastGlobalIdx, c.lastGlobal, c.hasLastGlobal = idx, g, true
	return g
}

func (c *instanceCache) table(store *wasm.Store, idx uint32) *wasm.TableEntity {
	if c.hasLastTable && c.lastTableIdx == idx {
		return c.lastTable
	}
	t := store.Table(c.instance.Tables[idx])
	c.lastTableIdx, c.lastTable, c.hasLastTable = idx, t, true
	return t
}

func (c *instanceCache) funcEntity(store *wasm.Store, idx uint32) *wasm.FuncEntity {
	if c.hasLastFunc && c.lastFuncIdx == idx {
		return c.lastFunc
	}
	fe := store.Func(c.instance.Funcs[idx])
	c.lastFuncIdx, c.lastFunc, c.hasLastFunc = idx, fe, true
	return fe
}

// memory returns the byte slice for memory index idx, using the cached
// slice for the default memory (index 0) and a direct store lookup
// otherwise, since a multi-memory module's non-default memories are
// touched rarely enough that caching them isn't worth the bookkeeping.
func (c *instanceCache) memory(store *wasm.Store, idx uint32) []byte {
	if idx == 0 && c.hasDefaultMem {
		return c.defaultMem
	}
	return store.Memory(c.instance.Memories[idx]).Bytes
}
