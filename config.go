// Package corewasm is the embedder-facing surface of the engine: Runtime
// compiles modules, Linker mediates import resolution, and
// Store/Module/Function/Memory/Table/Global give an embedder a typed
// handle to instantiated state.
//
// Runtime-wide, copy-on-write configuration lives here; module
// instantiation plumbing lives in runtime.go and linker.go.
package corewasm

import (
	"github.com/corewasm/corewasm/internal/engine/interpreter"
	"github.com/corewasm/corewasm/internal/wasm"
)

// CompilationMode names when a defined function's body is translated into
// IR. The mode is stored in the Config, but Runtime.CompileModule
// translates every function body up front in all three modes; no mode
// defers translation to a function's first call.
type CompilationMode int

const (
	// CompilationModeEager translates every function at Runtime.CompileModule time.
	CompilationModeEager CompilationMode = iota
	// CompilationModeLazyTranslation names per-function translation on
	// first call; it translates at Runtime.CompileModule time like Eager.
	CompilationModeLazyTranslation
	// CompilationModeLazy is kept distinct from LazyTranslation in the
	// type for embedder API parity; this implementation's translator has
	// no per-function cache-eviction tier to distinguish it further, so
	// it behaves as LazyTranslation.
	CompilationModeLazy
)

// Config is the copy-on-write runtime configuration builder: every With*
// method returns a new *Config, leaving the receiver untouched, so a
// shared base config can be safely forked per embedder subsystem.
type Config struct {
	consumeFuel     bool
	initialFuel     uint64
	compilationMode CompilationMode
	features        wasm.Features
	stackLimits     interpreter.StackLimits
	enforcedLimits  wasm.EnforcedLimits
}

// NewConfig returns a Config with the engine's defaults: fuel metering
// off, eager compilation, DefaultFeatures, DefaultStackLimits, and
// DefaultEnforcedLimits.
func NewConfig() *Config {
	return &Config{
		compilationMode: CompilationModeEager,
		features:        wasm.DefaultFeatures,
		stackLimits:     interpreter.DefaultStackLimits(),
		enforcedLimits:  wasm.DefaultEnforcedLimits(),
	}
}

func (c *Config) clone() *Config {
	cp := *c
	return &cp
}

// WithFuel enables fuel metering with the given initial budget.
func (c *Config) WithFuel(initial uint64) *Config {
	ret := c.clone()
	ret.consumeFuel = true
	ret.initialFuel = initial
	return ret
}

// WithoutFuel disables fuel metering.
func (c *Config) WithoutFuel() *Config {
	ret := c.clone()
	ret.consumeFuel = false
	return ret
}

// WithCompilationMode records mode in the returned Config; see
// CompilationMode for its (lack of) effect on translation timing.
func (c *Config) WithCompilationMode(mode CompilationMode) *Config {
	ret := c.clone()
	ret.compilationMode = mode
	return ret
}

// WithFeatures replaces the enabled Wasm proposal set wholesale.
func (c *Config) WithFeatures(f wasm.Features) *Config {
	ret := c.clone()
	ret.features = f
	return ret
}

// WithFeature toggles a single proposal, leaving the rest of the set
// untouched.
func (c *Config) WithFeature(f wasm.Features, enabled bool) *Config {
	ret := c.clone()
	if enabled {
		ret.features = ret.features.With(f)
	} else {
		ret.features = ret.features &^ f
	}
	return ret
}

// WithStackLimits overrides the value-stack height and recursion depth
// bounds.
func (c *Config) WithStackLimits(limits interpreter.StackLimits) *Config {
	ret := c.clone()
	ret.stackLimits = limits
	return ret
}

// WithEnforcedLimits overrides the translator's static module-shape
// limits.
func (c *Config) WithEnforcedLimits(limits wasm.EnforcedLimits) *Config {
	ret := c.clone()
	ret.enforcedLimits = limits
	return ret
}
