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

// Extern is one item a Linker can bind to an import slot: a host-provided
// definition (allocated into the Store at instantiation), or a re-export
// of an entity another instance already owns (bound by handle, so both
// instances observe the same state).
type Extern struct {
	Type api.ExternType

	Func      api.GoFunction
	FuncType  wasm.FuncType
	Memory    wasm.MemoryType
	Table     wasm.TableType
	Global    wasm.GlobalType
	globalVal value.UntypedVal

	// Handle-backed variants, set by DefineModule. When non-nil the import
	// binds the existing entity instead of allocating a fresh one.
	funcHandle   *wasm.FuncIdx
	memoryHandle *wasm.MemoryIdx
	tableHandle  *wasm.TableIdx
	globalHandle *wasm.GlobalIdx
}

// FuncExtern builds an Extern wrapping a host function of the given
// signature.
func FuncExtern(params, results []api.ValueType, fn api.GoFunction) Extern {
	ft, _ := wasm.NewFuncType(params, results)
	return Extern{Type: api.ExternTypeFunc, Func: fn, FuncType: ft}
}

// GlobalExtern builds an Extern wrapping a host-provided global value.
func GlobalExtern(gt wasm.GlobalType, initial uint64) Extern {
	return Extern{Type: api.ExternTypeGlobal, Global: gt, globalVal: value.UntypedVal(initial)}
}

// Linker mediates import resolution by (module_name, item_name) -> Extern.
// Resolution happens in two passes at Instantiate time: first every
// import is validated against its registered Extern's type, then handles
// are bound -- so a partially-wired Linker fails with a precise (module,
// name, expected-type) error instead of a generic "not found" only after
// partially mutating the Store.
type Linker struct {
	runtime *Runtime
	externs map[string]map[string]Extern
}

// NewLinker returns an empty Linker bound to r.
func NewLinker(r *Runtime) *Linker {
	return &Linker{runtime: r, externs: make(map[string]map[string]Extern)}
}

// Define registers ext under (moduleName, name), overwriting any
// previous definition at that key.
func (l *Linker) Define(moduleName, name string, ext Extern) *Linker {
	m, ok := l.externs[moduleName]
	if !ok {
		m = make(map[string]Extern)
		l.externs[moduleName] = m
	}
	m[name] = ext
	return l
}

// DefineFunc is shorthand for Define(moduleName, name, FuncExtern(...)).
func (l *Linker) DefineFunc(moduleName, name string, params, results []api.ValueType, fn api.GoFunction) *Linker {
	return l.Define(moduleName, name, FuncExtern(params, results, fn))
}

// DefineModule registers every export of an already-instantiated module
// under moduleName, so later instantiations against the same Store can
// import them. Entities are bound by handle: importer and exporter share
// the same function, memory, table, or global state.
func (l *Linker) DefineModule(moduleName string, mod api.Module) error {
	inst, ok := mod.(*instance)
	if !ok {
		return fmt.Errorf("corewasm: module %q was not instantiated by this runtime", moduleName)
	}
	for name, exp := range inst.inst.Exports {
		switch exp.Type {
		case api.ExternTypeFunc:
			h := inst.inst.Funcs[exp.Index]
			l.Define(moduleName, name, Extern{
				Type:       api.ExternTypeFunc,
				FuncType:   inst.inst.Module.FuncTypeOf(wasm.FuncIndex(exp.Index)),
				funcHandle: &h,
			})
		case api.ExternTypeMemory:
			h := inst.inst.Memories[exp.Index]
			l.Define(moduleName, name, Extern{
				Type:         api.ExternTypeMemory,
				Memory:       inst.store.Memory(h).Type,
				memoryHandle: &h,
			})
		case api.ExternTypeTable:
			h := inst.inst.Tables[exp.Index]
			l.Define(moduleName, name, Extern{
				Type:        api.ExternTypeTable,
				Table:       inst.store.Table(h).Type,
				tableHandle: &h,
			})
		case api.ExternTypeGlobal:
			h := inst.inst.Globals[exp.Index]
			l.Define(moduleName, name, Extern{
				Type:         api.ExternTypeGlobal,
				Global:       inst.store.Global(h).Type,
				globalHandle: &h,
			})
		}
	}
	return nil
}

// ImportResolutionError reports a Linker import that failed resolution,
// naming the exact (module, name, expected-type) that has no matching
// registered Extern, or whose registered Extern has an incompatible type.
type ImportResolutionError struct {
	Module, Name string
	Expected     string
	Reason       string
}

func (e *ImportResolutionError) Error() string {
	return fmt.Sprintf("corewasm: import %q.%q (expected %s): %s", e.Module, e.Name, e.Expected, e.Reason)
}

// Instantiate links cm's imports against l's registered Externs and
// previously instantiated modules in store, allocates cm's own tables/
// memories/globals/functions, runs active element/data segment
// initializers, registers the instance with the Engine for host-function
// callbacks, and finally invokes the start function if declared.
func Instantiate[T any](ctx context.Context, l *Linker, store *Store[T], cm *CompiledModule, name string) (api.Module, error) {
	m := cm.header

	// Phase 1: validate every import resolves to a type-compatible Extern
	// before mutating the Store at all.
	resolved := make([]Extern, len(m.Imports))
	for i, imp := range m.Imports {
		ext, err := l.resolve(m, imp)
		if err != nil {
			return nil, err
		}
		resolved[i] = ext
	}

	inst := &wasm.Instance{Module: m, Exports: make(map[string]wasm.Export, len(m.Exports))}

	// Phase 2: bind resolved imports. Handle-backed Externs (re-exports
	// from another instance) bind the existing entity; host-provided
	// Externs allocate a fresh one.
	for i, imp := range m.Imports {
		ext := resolved[i]
		switch imp.Type {
		case api.ExternTypeFunc:
			if ext.funcHandle != nil {
				inst.Funcs = append(inst.Funcs, *ext.funcHandle)
				continue
			}
			handle := store.store.AllocFunc(wasm.FuncEntity{
				Type:      imp.DescFunc,
				IsHost:    true,
				Instance:  wasm.InstanceIdx{}, // filled in below, once this instance's own handle exists
				HostFunc:  ext.Func,
				HostModuleName: imp.Module, HostName: imp.Name,
			})
			inst.Funcs = append(inst.Funcs, handle)
		case api.ExternTypeTable:
			if ext.tableHandle != nil {
				inst.Tables = append(inst.Tables, *ext.tableHandle)
				continue
			}
			inst.Tables = append(inst.Tables, store.store.AllocTable(wasm.TableEntity{
				Type: ext.Table, Elements: make([]value.UntypedVal, ext.Table.Minimum),
			}))
		case api.ExternTypeMemory:
			if ext.memoryHandle != nil {
				inst.Memories = append(inst.Memories, *ext.memoryHandle)
				continue
			}
			inst.Memories = append(inst.Memories, store.store.AllocMemory(wasm.MemoryEntity{
				Type: ext.Memory, Bytes: make([]byte, ext.Memory.Minimum*uint64(ext.Memory.PageSize())),
			}))
		case api.ExternTypeGlobal:
			if ext.globalHandle != nil {
				inst.Globals = append(inst.Globals, *ext.globalHandle)
				continue
			}
			inst.Globals = append(inst.Globals, store.store.AllocGlobal(wasm.GlobalEntity{
				Type: ext.Global, Value: ext.globalVal,
			}))
		}
	}

	// Allocate the instance now so defined functions can back-reference
	// it, then fix up the freshly allocated host-function entities'
	// self-reference (host functions need an Instance+Type pair resolving
	// to this module's own import-declared type, per resolveIndirect's and
	// hostArity's convention of reading the type from the *importing*
	// module, not a module the host function doesn't belong to).
	// Handle-backed function imports keep their owning instance.
	instIdx := store.store.AllocInstance(*inst)
	liveInst := store.store.Instance(instIdx)
	funcImportPos := 0
	for i := range m.Imports {
		if m.Imports[i].Type != api.ExternTypeFunc {
			continue
		}
		if resolved[i].funcHandle == nil {
			fe := store.store.Func(liveInst.Funcs[funcImportPos])
			fe.Instance = instIdx
		}
		funcImportPos++
	}

	// Allocate module-defined tables, memories, globals, then defined
	// functions (which only need their CompiledIndex, not the compiled
	// code itself, since Engine.CompiledFunc resolves that from the
	// module header at call time).
	for _, tt := range m.Tables {
		liveInst.Tables = append(liveInst.Tables, store.store.AllocTable(wasm.TableEntity{
			Type:     tt,
			Elements: make([]value.UntypedVal, tt.Minimum),
		}))
	}
	for _, mt := range m.Memories {
		liveInst.Memories = append(liveInst.Memories, store.store.AllocMemory(wasm.MemoryEntity{
			Type:  mt,
			Bytes: make([]byte, mt.Minimum*uint64(mt.PageSize())),
		}))
	}

	globalGetter := func(idx uint32) value.UntypedVal {
		return store.store.Global(liveInst.Globals[idx]).Value
	}
	for _, gd := range m.Globals {
		liveInst.Globals = append(liveInst.Globals, store.store.AllocGlobal(wasm.GlobalEntity{
			Type: gd.Type, Value: gd.Init.Eval(globalGetter),
		}))
	}

	for i := range m.FuncDefs {
		liveInst.Funcs = append(liveInst.Funcs, store.store.AllocFunc(wasm.FuncEntity{
			Type:          m.FuncDefs[i].Type,
			Instance:      instIdx,
			CompiledIndex: uint32(i),
		}))
	}

	// Element/data segments: allocate the per-instance entity table, then
	// copy active segments into their target table/memory.
	refGetter := func(idx wasm.FuncIndex) value.UntypedVal {
		return wasm.EncodeFuncRef(liveInst.Funcs[idx])
	}
	for _, es := range m.Elements {
		elems := make([]value.UntypedVal, len(es.FuncIndices))
		for i, fi := range es.FuncIndices {
			elems[i] = refGetter(fi)
		}
		elemIdx := store.store.AllocElement(wasm.ElementSegmentEntity{Elements: elems})
		liveInst.Elements = append(liveInst.Elements, elemIdx)
		if es.Mode == wasm.SegmentModeActive {
			off := es.Offset.Eval(globalGetter).U32()
			t := store.store.Table(liveInst.Tables[es.TableIndex])
			if uint64(off)+uint64(len(elems)) > uint64(len(t.Elements)) {
				return nil, fmt.Errorf("corewasm: active element segment out of bounds for table %d", es.TableIndex)
			}
			copy(t.Elements[off:], elems)
		}
	}
	for _, ds := range m.Data {
		dataIdx := store.store.AllocData(wasm.DataSegmentEntity{Bytes: append([]byte(nil), ds.Bytes...)})
		liveInst.Data = append(liveInst.Data, dataIdx)
		if ds.Mode == wasm.SegmentModeActive {
			off := ds.Offset.Eval(globalGetter).U32()
			mem := store.store.Memory(liveInst.Memories[ds.MemoryIndex])
			if uint64(off)+uint64(len(ds.Bytes)) > uint64(len(mem.Bytes)) {
				return nil, fmt.Errorf("corewasm: active data segment out of bounds for memory %d", ds.MemoryIndex)
			}
			copy(mem.Bytes[off:], ds.Bytes)
		}
	}

	for _, exp := range m.Exports {
		liveInst.Exports[exp.Name] = exp
	}

	mod := &instance{
		engine: l.runtime.engine,
		store:  store.store,
		inst:   liveInst,
		idx:    instIdx,
		name:   name,
		limits: l.runtime.config.stackLimits,
	}
	l.runtime.engine.RegisterInstance(instIdx, mod)
	store.instances = append(store.instances, instIdx)

	interpreter.Logger().Debug("module instantiated", zap.String("module", name))

	if m.HasStart {
		if _, resumable, err := l.runtime.engine.Call(ctx, store.store, liveInst, m.Start, nil, l.runtime.config.stackLimits); err != nil {
			return nil, fmt.Errorf("corewasm: running start function: %w", err)
		} else if resumable != nil {
			return nil, fmt.Errorf("corewasm: start function suspended on host error: %w", resumable.Invocation.HostError)
		}
		interpreter.Logger().Debug("start function invoked", zap.String("module", name), zap.Uint32("func_index", uint32(m.Start)))
	}

	return mod, nil
}

// resolve performs Instantiate's first pass for one import: look up the
// Extern registered under (module, name), whether by Define or by
// DefineModule's re-exports, then check its type against imp's declared
// requirements. There is no fallback to modules not registered with l.
func (l *Linker) resolve(m *wasm.Module, imp wasm.Import) (Extern, error) {
	byModule, ok := l.externs[imp.Module]
	if !ok {
		return Extern{}, &ImportResolutionError{Module: imp.Module, Name: imp.Name, Expected: api.ExternTypeName(imp.Type), Reason: "no such module registered with the Linker"}
	}
	ext, ok := byModule[imp.Name]
	if !ok {
		return Extern{}, &ImportResolutionError{Module: imp.Module, Name: imp.Name, Expected: api.ExternTypeName(imp.Type), Reason: "no such name in module"}
	}
	if ext.Type != imp.Type {
		return Extern{}, &ImportResolutionError{Module: imp.Module, Name: imp.Name, Expected: api.ExternTypeName(imp.Type), Reason: fmt.Sprintf("registered as %s", api.ExternTypeName(ext.Type))}
	}
	switch imp.Type {
	case api.ExternTypeFunc:
		want := m.Types.At(imp.DescFunc)
		if !ext.FuncType.EqualTo(want) {
			return Extern{}, &ImportResolutionError{Module: imp.Module, Name: imp.Name, Expected: want.String(), Reason: fmt.Sprintf("registered signature %s", ext.FuncType.String())}
		}
	case api.ExternTypeMemory:
		if !ext.Memory.IsSubtypeOf(imp.DescMemory) {
			return Extern{}, &ImportResolutionError{Module: imp.Module, Name: imp.Name, Expected: "compatible memory type", Reason: "registered memory type is not a subtype of the import's requirement"}
		}
	case api.ExternTypeTable:
		if !ext.Table.IsSubtypeOf(imp.DescTable) {
			return Extern{}, &ImportResolutionError{Module: imp.Module, Name: imp.Name, Expected: "compatible table type", Reason: "registered table type is not a subtype of the import's requirement"}
		}
	case api.ExternTypeGlobal:
		if !ext.Global.IsSubtypeOf(imp.DescGlobal) {
			return Extern{}, &ImportResolutionError{Module: imp.Module, Name: imp.Name, Expected: "compatible global type", Reason: "registered global type is not a subtype of the import's requirement"}
		}
	}
	return ext, nil
}
