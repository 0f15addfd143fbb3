package wasm

import (
	"sync/atomic"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/value"
)

// Stored is an opaque handle into a Store's slab for entities of kind
// Idx: a (store-id, index) pair. Dereferencing a handle against a Store
// other than the one that allocated it is a fatal embedder usage error,
// detected by every accessor rather than silently resolving to an
// unrelated entity.
type Stored[Idx ~uint32] struct {
	store uint64
	idx   Idx
}

// Index returns the raw slab index backing this handle.
func (s Stored[Idx]) Index() Idx { return s.idx }

func newStored[Idx ~uint32](store uint64, idx Idx) Stored[Idx] {
	return Stored[Idx]{store: store, idx: idx}
}

// FuncEntity is a function allocated into a Store: either a module-defined
// function, identified by its compiled-code handle, or a host function.
type FuncEntity struct {
	Type TypeIndex

	// IsHost distinguishes the two variants below.
	IsHost bool

	// Instance back-references the owning instance for module-defined
	// functions; the instance cache uses this to avoid re-resolving it on
	// every call within the same instance.
	Instance InstanceIdx
	CompiledIndex uint32 // index into the owning instance's compiled funcs

	HostFunc api.GoFunction
	HostModuleName, HostName string
}

// MemoryEntity is an allocated linear memory and its current bytes.
type MemoryEntity struct {
	Type  MemoryType
	Bytes []byte
}

// Pages returns the current size of the memory in pages.
func (m *MemoryEntity) Pages() uint64 {
	return uint64(len(m.Bytes)) / uint64(m.Type.PageSize())
}

// Grow attempts to extend m by deltaPages, zero-filling the new pages,
// failing (ok=false) if that would exceed the memory's declared maximum
// or overflow a 32-bit page count.
func (m *MemoryEntity) Grow(deltaPages uint32) (previous uint32, ok bool) {
	prevPages := m.Pages()
	newPages := prevPages + uint64(deltaPages)
	if m.Type.HasMaximum && newPages > m.Type.Maximum {
		return 0, false
	}
	if newPages > 1<<32-1 {
		return 0, false
	}
	pageSize := uint64(m.Type.PageSize())
	grown := make([]byte, newPages*pageSize)
	copy(grown, m.Bytes)
	m.Bytes = grown
	return uint32(prevPages), true
}

// TableEntity is an allocated table of opaque reference values.
type TableEntity struct {
	Type     TableType
	Elements []value.UntypedVal
}

// Grow mirrors MemoryEntity.Grow for table.grow, filling new slots with
// init.
func (t *TableEntity) Grow(deltaElems uint32, init value.UntypedVal) (previous uint32, ok bool) {
	prev := uint32(len(t.Elements))
	newLen := uint64(prev) + uint64(deltaElems)
	if t.Type.HasMaximum && newLen > uint64(t.Type.Maximum) {
		return 0, false
	}
	if newLen > 1<<32-1 {
		return 0, false
	}
	grown := make([]value.UntypedVal, newLen)
	copy(grown, t.Elements)
	for i := prev; i < uint32(newLen); i++ {
		grown[i] = init
	}
	t.Elements = grown
	return prev, true
}

// GlobalEntity is an allocated global variable's current value.
type GlobalEntity struct {
	Type  GlobalType
	Value value.UntypedVal
}

// DataSegmentEntity tracks a data segment's bytes and whether data.drop
// has already discarded them.
type DataSegmentEntity struct {
	Bytes   []byte
	Dropped bool
}

// ElementSegmentEntity tracks an element segment's contents and whether
// elem.drop has already discarded them.
type ElementSegmentEntity struct {
	Elements []value.UntypedVal
	Dropped  bool
}

type (
	FuncIdx    = Stored[funcSlabIdx]
	MemoryIdx  = Stored[memorySlabIdx]
	TableIdx   = Stored[tableSlabIdx]
	GlobalIdx  = Stored[globalSlabIdx]
	DataIdx    = Stored[dataSlabIdx]
	ElemIdx    = Stored[elemSlabIdx]
	InstanceIdx = Stored[instanceSlabIdx]
)

type (
	funcSlabIdx     uint32
	memorySlabIdx   uint32
	tableSlabIdx    uint32
	globalSlabIdx   uint32
	dataSlabIdx     uint32
	elemSlabIdx     uint32
	instanceSlabIdx uint32
)

// Instance is a module's allocated state: the concrete entity handles
// bound to each index-space slot, resolved once at instantiation so the
// interpreter never re-resolves an import indirection at call time.
type Instance struct {
	Module *Module

	Funcs    []FuncIdx
	Tables   []TableIdx
	Memories []MemoryIdx
	Globals  []GlobalIdx
	Elements []ElemIdx
	Data     []DataIdx

	Exports map[string]Export
}

// Store owns every entity allocated across all modules instantiated
// against it: functions, memories, tables, globals, data/element
// segments, and instances, each in its own append-only slab. Store is the
// unit of fuel accounting and the unit a Stored handle is scoped to.
// Module-local indices resolve through this slab-of-slabs layout rather
// than a shared namespace remap at instantiation.
type Store struct {
	Funcs     []FuncEntity
	Memories  []MemoryEntity
	Tables    []TableEntity
	Globals   []GlobalEntity
	Data      []DataSegmentEntity
	Elements  []ElementSegmentEntity
	Instances []Instance

	id          uint64
	fuel        uint64
	fuelEnabled bool
}

// storeIDs hands every Store a process-unique identity so a Stored handle
// can be checked against the Store it is dereferenced through.
var storeIDs atomic.Uint64

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{id: storeIDs.Add(1)}
}

// checkOwned panics when a handle allocated by a different Store is
// dereferenced through s. This is an embedder bug, never a Wasm-program
// condition, so it fails loudly instead of returning an error.
func (s *Store) checkOwned(handleStore uint64) {
	if handleStore != s.id {
		panic("wasm: stored handle dereferenced against a store that did not allocate it")
	}
}

func (s *Store) AllocFunc(e FuncEntity) FuncIdx {
	s.Funcs = append(s.Funcs, e)
	return newStored[funcSlabIdx](s.id, funcSlabIdx(len(s.Funcs)-1))
}

func (s *Store) AllocMemory(e MemoryEntity) MemoryIdx {
	s.Memories = append(s.Memories, e)
	return newStored[memorySlabIdx](s.id, memorySlabIdx(len(s.Memories)-1))
}

func (s *Store) AllocTable(e TableEntity) TableIdx {
	s.Tables = append(s.Tables, e)
	return newStored[tableSlabIdx](s.id, tableSlabIdx(len(s.Tables)-1))
}

func (s *Store) AllocGlobal(e GlobalEntity) GlobalIdx {
	s.Globals = append(s.Globals, e)
	return newStored[globalSlabIdx](s.id, globalSlabIdx(len(s.Globals)-1))
}

func (s *Store) AllocData(e DataSegmentEntity) DataIdx {
	s.Data = append(s.Data, e)
	return newStored[dataSlabIdx](s.id, dataSlabIdx(len(s.Data)-1))
}

func (s *Store) AllocElement(e ElementSegmentEntity) ElemIdx {
	s.Elements = append(s.Elements, e)
	return newStored[elemSlabIdx](s.id, elemSlabIdx(len(s.Elements)-1))
}

func (s *Store) AllocInstance(i Instance) InstanceIdx {
	s.Instances = append(s.Instances, i)
	return newStored[instanceSlabIdx](s.id, instanceSlabIdx(len(s.Instances)-1))
}

func (s *Store) Func(idx FuncIdx) *FuncEntity {
	s.checkOwned(idx.store)
	return &s.Funcs[idx.Index()]
}

func (s *Store) Memory(idx MemoryIdx) *MemoryEntity {
	s.checkOwned(idx.store)
	return &s.Memories[idx.Index()]
}

func (s *Store) Table(idx TableIdx) *TableEntity {
	s.checkOwned(idx.store)
	return &s.Tables[idx.Index()]
}

func (s *Store) Global(idx GlobalIdx) *GlobalEntity {
	s.checkOwned(idx.store)
	return &s.Globals[idx.Index()]
}

func (s *Store) DataSeg(idx DataIdx) *DataSegmentEntity {
	s.checkOwned(idx.store)
	return &s.Data[idx.Index()]
}

func (s *Store) ElemSeg(idx ElemIdx) *ElementSegmentEntity {
	s.checkOwned(idx.store)
	return &s.Elements[idx.Index()]
}

func (s *Store) Instance(idx InstanceIdx) *Instance {
	s.checkOwned(idx.store)
	return &s.Instances[idx.Index()]
}

// EnableFuel turns on fuel metering with an initial budget. Fuel is
// tracked per Store rather than per Engine, since multiple Stores sharing
// one Engine must not share a fuel budget.
func (s *Store) EnableFuel(initial uint64) {
	s.fuelEnabled = true
	s.fuel = initial
}

// FuelEnabled reports whether this Store meters fuel at all.
func (s *Store) FuelEnabled() bool { return s.fuelEnabled }

// Fuel returns the remaining fuel budget. Meaningless if FuelEnabled is
// false.
func (s *Store) Fuel() uint64 { return s.fuel }

// SetFuel overwrites the remaining fuel budget, e.g. to refill it between
// calls.
func (s *Store) SetFuel(fuel uint64) { s.fuel = fuel }

// ConsumeFuel deducts amount from the remaining budget, returning
// TrapCodeOutOfFuel (via ok=false) if the budget would go negative.
func (s *Store) ConsumeFuel(amount uint64) (ok bool) {
	if !s.fuelEnabled {
		return true
	}
	if amount > s.fuel {
		s.fuel = 0
		return false
	}
	s.fuel -= amount
	return true
}
