package corewasm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/corewasm/corewasm/internal/engine/interpreter"
	"github.com/corewasm/corewasm/internal/wasm"
)

// Runtime owns an Engine (the shared, immutable compiled-code store) and
// the Config every Module it compiles is built against. Many Stores may
// instantiate modules compiled by one Runtime.
type Runtime struct {
	engine *interpreter.Engine
	config *Config
}

// NewRuntime returns a Runtime configured by cfg, or engine defaults if
// cfg is nil.
func NewRuntime(cfg *Config) *Runtime {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Runtime{
		engine: interpreter.NewEngine(cfg.features, cfg.consumeFuel),
		config: cfg,
	}
}

// CompiledModule is a Module header together with its translated
// function bodies, ready to be instantiated by a Linker against any
// number of Stores. Decoding and validating the Wasm binary itself is an
// external collaborator's job; a CompiledModule is built from an
// already-decoded *wasm.Module header.
type CompiledModule struct {
	runtime *Runtime
	header  *wasm.Module
}

// CompileModule validates header against the Runtime's enforced limits,
// translates every defined function body, and registers the result with
// the Runtime's Engine.
//
// Translation happens here in every CompilationMode: Config.compilationMode
// is not consulted, and no mode defers a function body's translation until
// Engine.CompiledFunc is first asked for it. See DESIGN.md's entry on
// CompilationMode.
func (r *Runtime) CompileModule(header *wasm.Module) (*CompiledModule, error) {
	if err := r.config.enforcedLimits.Check(header); err != nil {
		return nil, fmt.Errorf("corewasm: %w", err)
	}
	if err := r.engine.CompileModule(header); err != nil {
		return nil, fmt.Errorf("corewasm: %w", err)
	}
	interpreter.Logger().Debug("module compiled", zap.String("module", header.Name))
	return &CompiledModule{runtime: r, header: header}, nil
}

// Name returns the compiled module's name, as decoded from its name
// section or set by the embedder.
func (m *CompiledModule) Name() string { return m.header.Name }

// Store owns the runtime entities (funcs, memories, tables, globals)
// allocated by instantiating CompiledModules against it, plus arbitrary
// per-embedder user data of type T.
type Store[T any] struct {
	runtime   *Runtime
	store     *wasm.Store
	data      T
	instances []wasm.InstanceIdx
}

// NewStore returns an empty Store bound to r, carrying data as its
// embedder-supplied user state.
func NewStore[T any](r *Runtime, data T) *Store[T] {
	if r.config.consumeFuel {
		s := wasm.NewStore()
		s.EnableFuel(r.config.initialFuel)
		return &Store[T]{runtime: r, store: s, data: data}
	}
	return &Store[T]{runtime: r, store: wasm.NewStore(), data: data}
}

// Data returns the user data this Store was constructed with.
func (s *Store[T]) Data() T { return s.data }

// Fuel returns the remaining fuel budget; meaningless if fuel metering
// is disabled.
func (s *Store[T]) Fuel() uint64 { return s.store.Fuel() }

// SetFuel overwrites the remaining fuel budget, e.g. to refill it
// between calls.
func (s *Store[T]) SetFuel(fuel uint64) { s.store.SetFuel(fuel) }

// Close releases every instance this Store owns. See instance.go for the
// per-Instance teardown this aggregates with multierr.
func (s *Store[T]) Close() error {
	var errs error
	for _, idx := range s.instances {
		errs = appendErr(errs, closeInstance(s.runtime.engine, s.store, idx))
	}
	return errs
}
