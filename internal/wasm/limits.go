package wasm

import "fmt"

// EnforcedLimitsError reports that a module exceeds one of the
// translator's configured static limits.
type EnforcedLimitsError struct {
	Kind     string
	Limit    uint32
	Actual   uint32
}

func (e *EnforcedLimitsError) Error() string {
	return fmt.Sprintf("module exceeds enforced limit %s: %d > %d", e.Kind, e.Actual, e.Limit)
}

// EnforcedLimits bounds the shape of modules this engine is willing to
// translate, independent of what the WebAssembly spec itself requires.
// Defaults are generous enough to admit any hand-written module while
// still catching adversarially generated ones meant to exhaust memory
// during translation.
type EnforcedLimits struct {
	MaxGlobals          uint32
	MaxFunctions        uint32
	MaxTables           uint32
	MaxMemories         uint32
	MaxElementSegments  uint32
	MaxDataSegments     uint32
	MaxFuncParams       uint32
	MaxFuncResults      uint32
	MaxBlockParams      uint32
	MaxBlockResults     uint32

	// MinAvgBytesPerFunction flags modules with an implausibly high
	// function count relative to code size, a heuristic against
	// adversarially small functions meant to blow up per-function
	// translation overhead. Nil disables the heuristic.
	MinAvgBytesPerFunction *AvgBytesPerFunctionLimit
}

// AvgBytesPerFunctionLimit configures the small-function heuristic: it
// only applies once the code section reaches ReqFuncsBytes total, so tiny
// (but legitimate) modules are never rejected by it.
type AvgBytesPerFunctionLimit struct {
	ReqFuncsBytes          uint32
	MinAvgBytesPerFunction uint32
}

// MinAvgBytesPerFunctionError reports a module tripping the
// small-function heuristic, carrying both the configured floor and the
// observed average.
type MinAvgBytesPerFunctionError struct {
	Limit uint32
	Avg   uint32
}

func (e *MinAvgBytesPerFunctionError) Error() string {
	return fmt.Sprintf("module averages %d bytes per function, below the enforced minimum of %d", e.Avg, e.Limit)
}

// DefaultEnforcedLimits is generous for everyday modules while still
// bounding translation-time resource usage.
func DefaultEnforcedLimits() EnforcedLimits {
	return EnforcedLimits{
		MaxGlobals:             1000,
		MaxFunctions:           100_000,
		MaxTables:              100,
		MaxMemories:            1,
		MaxElementSegments:     100_000,
		MaxDataSegments:        100_000,
		MaxFuncParams:          maxFuncTypeParams,
		MaxFuncResults:         maxFuncTypeResults,
		MaxBlockParams:  maxFuncTypeParams,
		MaxBlockResults: maxFuncTypeResults,
		MinAvgBytesPerFunction: &AvgBytesPerFunctionLimit{
			ReqFuncsBytes:          1 << 20,
			MinAvgBytesPerFunction: 8,
		},
	}
}

// Check validates a fully decoded Module header against l, before any
// function body is translated.
func (l EnforcedLimits) Check(m *Module) error {
	if n := uint32(len(m.Globals)); n > l.MaxGlobals {
		return &EnforcedLimitsError{Kind: "globals", Limit: l.MaxGlobals, Actual: n}
	}
	if n := uint32(len(m.Funcs)); n > l.MaxFunctions {
		return &EnforcedLimitsError{Kind: "functions", Limit: l.MaxFunctions, Actual: n}
	}
	if n := uint32(len(m.Tables)); n > l.MaxTables {
		return &EnforcedLimitsError{Kind: "tables", Limit: l.MaxTables, Actual: n}
	}
	if n := uint32(len(m.Memories)); n > l.MaxMemories {
		return &EnforcedLimitsError{Kind: "memories", Limit: l.MaxMemories, Actual: n}
	}
	if n := uint32(len(m.Elements)); n > l.MaxElementSegments {
		return &EnforcedLimitsError{Kind: "element segments", Limit: l.MaxElementSegments, Actual: n}
	}
	if n := uint32(len(m.Data)); n > l.MaxDataSegments {
		return &EnforcedLimitsError{Kind: "data segments", Limit: l.MaxDataSegments, Actual: n}
	}
	for i := 0; i < m.Types.Len(); i++ {
		ft := m.Types.At(TypeIndex(i))
		if n := uint32(len(ft.Params)); n > l.MaxFuncParams {
			return &EnforcedLimitsError{Kind: "function params", Limit: l.MaxFuncParams, Actual: n}
		}
		if n := uint32(len(ft.Results)); n > l.MaxFuncResults {
			return &EnforcedLimitsError{Kind: "function results", Limit: l.MaxFuncResults, Actual: n}
		}
	}
	if lim := l.MinAvgBytesPerFunction; lim != nil && len(m.FuncDefs) > 0 && m.CodeSize >= uint64(lim.ReqFuncsBytes) {
		avg := uint32(m.CodeSize / uint64(len(m.FuncDefs)))
		if avg < lim.MinAvgBytesPerFunction {
			return &MinAvgBytesPerFunctionError{Limit: lim.MinAvgBytesPerFunction, Avg: avg}
		}
	}
	return nil
}
