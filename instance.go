package corewasm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/engine/interpreter"
	"github.com/corewasm/corewasm/internal/value"
	"github.com/corewasm/corewasm/internal/wasm"
)

// instance implements api.Module for one instantiated CompiledModule. It
// is the non-generic handle host functions receive (api.GoFunction's mod
// parameter), decoupled from the Store[T] type parameter the embedder
// chose.
type instance struct {
	engine *interpreter.Engine
	store  *wasm.Store
	inst   *wasm.Instance
	idx    wasm.InstanceIdx
	name   string
	limits interpreter.StackLimits
}

var _ api.Module = (*instance)(nil)

func (m *instance) String() string { return fmt.Sprintf("module[%s]", m.name) }
func (m *instance) Name() string   { return m.name }

func (m *instance) Memory() api.Memory {
	if len(m.inst.Memories) == 0 {
		return nil
	}
	return &memoryHandle{store: m.store, idx: m.inst.Memories[0]}
}

func (m *instance) export(name string) (wasm.Export, bool) {
	e, ok := m.inst.Exports[name]
	return e, ok
}

func (m *instance) ExportedFunction(name string) api.Function {
	e, ok := m.export(name)
	if !ok || e.Type != api.ExternTypeFunc {
		return nil
	}
	return &function{m: m, idx: wasm.FuncIndex(e.Index), exportName: name}
}

func (m *instance) ExportedMemory(name string) api.Memory {
	e, ok := m.export(name)
	if !ok || e.Type != api.ExternTypeMemory {
		return nil
	}
	return &memoryHandle{store: m.store, idx: m.inst.Memories[e.Index]}
}

func (m *instance) ExportedGlobal(name string) api.Global {
	e, ok := m.export(name)
	if !ok || e.Type != api.ExternTypeGlobal {
		return nil
	}
	g := &globalHandle{store: m.store, idx: m.inst.Globals[e.Index]}
	if m.globalType(e.Index).Mutable {
		return &mutableGlobalHandle{globalHandle: g}
	}
	return g
}

func (m *instance) ExportedTable(name string) api.Table {
	e, ok := m.export(name)
	if !ok || e.Type != api.ExternTypeTable {
		return nil
	}
	return &tableHandle{store: m.store, idx: m.inst.Tables[e.Index]}
}

func (m *instance) globalType(idx uint32) wasm.GlobalType {
	if int(idx) < m.inst.Module.ImportedGlobalCount {
		for _, imp := range m.inst.Module.Imports {
			if imp.Type == api.ExternTypeGlobal {
				if idx == 0 {
					return imp.DescGlobal
				}
				idx--
			}
		}
	}
	return m.inst.Module.Globals[int(idx)-m.inst.Module.ImportedGlobalCount].Type
}

func (m *instance) Close(ctx context.Context) error {
	return closeInstance(m.engine, m.store, m.idx)
}

// closeInstance releases an instance's entities. Only memories currently
// hold any release-worthy resource (their backing byte slice); tables,
// globals, and functions are reclaimed by the garbage collector once the
// Store itself is dropped. Releasing these cannot fail, so the returned
// error is always nil; Store.Close aggregates it with the other instances'.
func closeInstance(engine *interpreter.Engine, store *wasm.Store, idx wasm.InstanceIdx) error {
	inst := store.Instance(idx)
	for _, mi := range inst.Memories {
		store.Memory(mi).Bytes = nil
	}
	if engine != nil {
		engine.ForgetInstance(idx)
	}
	interpreter.Logger().Debug("instance closed", zap.String("module", inst.Module.Name))
	return nil
}

// function implements api.Function for one exported function.
type function struct {
	m          *instance
	idx        wasm.FuncIndex
	exportName string
}

var _ api.Function = (*function)(nil)

func (f *function) Definition() api.FunctionDefinition {
	ft := f.m.inst.Module.FuncTypeOf(f.idx)
	return &funcDefinition{module: f.m.name, index: uint32(f.idx), name: f.exportName, ft: ft}
}

func (f *function) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	results, resumable, err := f.m.engine.Call(ctx, f.m.store, f.m.inst, f.idx, params, f.m.limits)
	if err != nil {
		return nil, err
	}
	if resumable != nil {
		return nil, fmt.Errorf("corewasm: %s: host function %w suspended; use CallResumable to continue it",
			f.exportName, resumable.Invocation.HostError)
	}
	return results, nil
}

// CallResumable mirrors Call, but returns a non-nil *interpreter.ResumableCall
// instead of an error when a host function suspends the invocation.
func (f *function) CallResumable(ctx context.Context, params ...uint64) ([]uint64, *interpreter.ResumableCall, error) {
	return f.m.engine.Call(ctx, f.m.store, f.m.inst, f.idx, params, f.m.limits)
}

type funcDefinition struct {
	module string
	index  uint32
	name   string
	ft     wasm.FuncType
}

func (d *funcDefinition) ModuleName() string       { return d.module }
func (d *funcDefinition) Index() uint32             { return d.index }
func (d *funcDefinition) Name() string              { return d.name }
func (d *funcDefinition) ParamTypes() []api.ValueType  { return d.ft.Params }
func (d *funcDefinition) ResultTypes() []api.ValueType { return d.ft.Results }
func (d *funcDefinition) Import() (string, string, bool) { return "", "", false }
func (d *funcDefinition) ExportNames() []string     { return []string{d.name} }

// memoryHandle implements api.Memory over a store-owned MemoryEntity.
type memoryHandle struct {
	store *wasm.Store
	idx   wasm.MemoryIdx
}

var _ api.Memory = (*memoryHandle)(nil)

func (m *memoryHandle) entity() *wasm.MemoryEntity { return m.store.Memory(m.idx) }

func (m *memoryHandle) Size() uint32 { return uint32(m.entity().Pages()) }

func (m *memoryHandle) Grow(deltaPages uint32) (previousPages uint32, ok bool) {
	return m.entity().Grow(deltaPages)
}

func (m *memoryHandle) ReadByte(offset uint32) (byte, bool) {
	b := m.entity().Bytes
	if uint64(offset) >= uint64(len(b)) {
		return 0, false
	}
	return b[offset], true
}

func (m *memoryHandle) ReadUint32Le(offset uint32) (uint32, bool) {
	b := m.entity().Bytes
	if uint64(offset)+4 > uint64(len(b)) {
		return 0, false
	}
	return le32(b[offset : offset+4]), true
}

func (m *memoryHandle) ReadUint64Le(offset uint32) (uint64, bool) {
	b := m.entity().Bytes
	if uint64(offset)+8 > uint64(len(b)) {
		return 0, false
	}
	return le64(b[offset : offset+8]), true
}

func (m *memoryHandle) ReadFloat32Le(offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	return value.FromU32(v).F32(), ok
}

func (m *memoryHandle) ReadFloat64Le(offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	return value.FromU64(v).F64(), ok
}

func (m *memoryHandle) Read(offset, byteCount uint32) ([]byte, bool) {
	b := m.entity().Bytes
	if uint64(offset)+uint64(byteCount) > uint64(len(b)) {
		return nil, false
	}
	return b[offset : offset+byteCount : offset+byteCount], true
}

func (m *memoryHandle) WriteByte(offset uint32, v byte) bool {
	b := m.entity().Bytes
	if uint64(offset) >= uint64(len(b)) {
		return false
	}
	b[offset] = v
	return true
}

func (m *memoryHandle) WriteUint32Le(offset, v uint32) bool {
	b := m.entity().Bytes
	if uint64(offset)+4 > uint64(len(b)) {
		return false
	}
	putLE32(b[offset:offset+4], v)
	return true
}

func (m *memoryHandle) WriteUint64Le(offset uint32, v uint64) bool {
	b := m.entity().Bytes
	if uint64(offset)+8 > uint64(len(b)) {
		return false
	}
	putLE64(b[offset:offset+8], v)
	return true
}

func (m *memoryHandle) WriteFloat32Le(offset uint32, v float32) bool {
	return m.WriteUint32Le(offset, value.FromF32(v).U32())
}

func (m *memoryHandle) WriteFloat64Le(offset uint32, v float64) bool {
	return m.WriteUint64Le(offset, value.FromF64(v).U64())
}

func (m *memoryHandle) Write(offset uint32, v []byte) bool {
	b := m.entity().Bytes
	if uint64(offset)+uint64(len(v)) > uint64(len(b)) {
		return false
	}
	copy(b[offset:], v)
	return true
}

// globalHandle implements the read-only half of api.Global.
type globalHandle struct {
	store *wasm.Store
	idx   wasm.GlobalIdx
}

var _ api.Global = (*globalHandle)(nil)

func (g *globalHandle) String() string { return fmt.Sprintf("global(%d)", g.Get()) }
func (g *globalHandle) Type() api.ValueType { return g.store.Global(g.idx).Type.ValType }
func (g *globalHandle) Get() uint64          { return g.store.Global(g.idx).Value.U64() }

// mutableGlobalHandle adds Set, returned only when the global's declared
// mutability is true (api.MutableGlobal's doc comment).
type mutableGlobalHandle struct {
	*globalHandle
}

var _ api.MutableGlobal = (*mutableGlobalHandle)(nil)

func (g *mutableGlobalHandle) Set(v uint64) {
	g.store.Global(g.idx).Value = value.UntypedVal(v)
}

// tableHandle implements api.Table over a store-owned TableEntity.
type tableHandle struct {
	store *wasm.Store
	idx   wasm.TableIdx
}

var _ api.Table = (*tableHandle)(nil)

func (t *tableHandle) entity() *wasm.TableEntity { return t.store.Table(t.idx) }
func (t *tableHandle) Size() uint32              { return uint32(len(t.entity().Elements)) }

func (t *tableHandle) Grow(delta uint32, init uint64) (previous uint32, ok bool) {
	return t.entity().Grow(delta, value.UntypedVal(init))
}

func (t *tableHandle) Get(index uint32) (uint64, bool) {
	e := t.entity()
	if index >= uint32(len(e.Elements)) {
		return 0, false
	}
	return e.Elements[index].U64(), true
}

func (t *tableHandle) Set(index uint32, ref uint64) bool {
	e := t.entity()
	if index >= uint32(len(e.Elements)) {
		return false
	}
	e.Elements[index] = value.UntypedVal(ref)
	return true
}
