// Package interpreter implements the register-machine executor: the
// Engine that holds every module's translated code, the explicit
// value/call stacks, the instance cache, the dispatch loop, and the
// resumable-host-call machinery.
package interpreter

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
	"github.com/corewasm/corewasm/internal/wazeroir"
)

// Engine owns every module's compiled code: the op buffers and constant
// pools wazeroir.Compiler produces. A CompiledFunc is engine-wide and
// immutable after compilation, so one Engine may back many Stores.
//
// Compiled results are keyed by *wasm.Module pointer rather than held
// inside wasm.Module itself: wazeroir imports wasm for FuncType/Instr, so
// wasm cannot import wazeroir back without a cycle. This side table is an
// ordinary Go map standing in for a weak engine-to-module reference, since
// Go has no builtin weak references to lean on.
type Engine struct {
	mu          sync.Mutex
	compiled    map[*wasm.Module][]*wazeroir.CompilationResult
	modules     map[wasm.InstanceIdx]api.Module
	features    wasm.Features
	fuelEnabled bool
}

// NewEngine returns an Engine ready to compile modules. features and
// fuelEnabled are forwarded to every wazeroir.Compiler it creates,
// selecting which proposals translate and whether ConsumeFuel ops are
// emitted.
func NewEngine(features wasm.Features, fuelEnabled bool) *Engine {
	return &Engine{
		compiled:    make(map[*wasm.Module][]*wazeroir.CompilationResult),
		modules:     make(map[wasm.InstanceIdx]api.Module),
		features:    features,
		fuelEnabled: fuelEnabled,
	}
}

// RegisterInstance associates inst with the api.Module wrapper the
// embedder hands to host functions invoked on its behalf. Called once by
// the linker's Instantiate, after the instance's entities, segments, and
// exports are set up and before its start function runs.
func (e *Engine) RegisterInstance(inst wasm.InstanceIdx, mod api.Module) {
	e.mu.Lock()
	e.modules[inst] = mod
	e.mu.Unlock()
}

// ModuleOf returns the api.Module registered for inst, or nil if none was
// registered (a programming error in the linker, not a user-facing one).
func (e *Engine) ModuleOf(inst wasm.InstanceIdx) api.Module {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modules[inst]
}

// ForgetInstance drops inst's registered api.Module, mirroring Forget for
// compiled code. Called when a Store-owned instance is closed.
func (e *Engine) ForgetInstance(inst wasm.InstanceIdx) {
	e.mu.Lock()
	delete(e.modules, inst)
	e.mu.Unlock()
}

// CompileModule translates every defined function of m and registers the
// results under m. Safe to call at most once per *wasm.Module; translating
// the same pointer twice overwrites the previous entry.
func (e *Engine) CompileModule(m *wasm.Module) error {
	compiler := wazeroir.NewCompiler(m, e.features, e.fuelEnabled)
	importCount := m.ImportFuncCount()

	results := make([]*wazeroir.CompilationResult, len(m.FuncDefs))
	for i := range m.FuncDefs {
		idx := wasm.FuncIndex(importCount + i)
		res, err := compiler.CompileFunction(idx, &m.FuncDefs[i])
		if err != nil {
			return fmt.Errorf("compiling %s: %w", m.Name, err)
		}
		results[i] = res
		Logger().Debug("function compiled",
			zap.String("module", m.Name), zap.Uint32("func_index", uint32(idx)),
			zap.Uint16("len_registers", res.LenRegisters), zap.Int("len_ops", len(res.Ops)))
	}

	e.mu.Lock()
	e.compiled[m] = results
	e.mu.Unlock()

	Logger().Debug("module translated", zap.String("module", m.Name), zap.Int("num_funcs", len(results)))
	return nil
}

// CompiledFunc returns the compiled body of m's defined function at
// definedIdx (0-based, not counting imports; matches FuncEntity.CompiledIndex).
func (e *Engine) CompiledFunc(m *wasm.Module, definedIdx uint32) *wazeroir.CompilationResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	fns := e.compiled[m]
	if int(definedIdx) >= len(fns) {
		return nil
	}
	return fns[definedIdx]
}

// Forget drops m's compiled code, e.g. once every Store instantiating it
// has been closed. Not required for correctness (the map entry is
// otherwise just retained memory), but keeps a long-lived Engine from
// accumulating dead modules.
func (e *Engine) Forget(m *wasm.Module) {
	e.mu.Lock()
	delete(e.compiled, m)
	e.mu.Unlock()
}
