package wasm

import (
	"strings"

	"github.com/corewasm/corewasm/api"
)

// FuncTypeError is returned when a function type's param/result count
// exceeds the limits enforced at decode time.
type FuncTypeError byte

const (
	// FuncTypeErrorTooManyParams reports a function type with more than
	// maxFuncTypeParams parameter types.
	FuncTypeErrorTooManyParams FuncTypeError = iota + 1
	// FuncTypeErrorTooManyResults reports a function type with more than
	// maxFuncTypeResults result types.
	FuncTypeErrorTooManyResults
)

func (e FuncTypeError) Error() string {
	switch e {
	case FuncTypeErrorTooManyParams:
		return "encountered a function with too many parameters"
	case FuncTypeErrorTooManyResults:
		return "encountered a function with too many results"
	}
	return "invalid function type"
}

const (
	maxFuncTypeParams  = 1000
	maxFuncTypeResults = 1000
)

// FuncType is a function signature: the parameter and result ValueTypes.
// Two FuncTypes with identical contents always compare equal, which lets
// the translator and store dedup them by value instead of by identity.
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType

	// key memoizes a content signature used for dedup lookups, computed
	// once at construction since FuncType is immutable after NewFuncType.
	key string
}

// NewFuncType validates and builds a FuncType from params and results.
// The slices are copied so the caller's backing arrays can be reused.
func NewFuncType(params, results []api.ValueType) (FuncType, error) {
	if len(params) > maxFuncTypeParams {
		return FuncType{}, FuncTypeErrorTooManyParams
	}
	if len(results) > maxFuncTypeResults {
		return FuncType{}, FuncTypeErrorTooManyResults
	}
	ft := FuncType{
		Params:  append([]api.ValueType(nil), params...),
		Results: append([]api.ValueType(nil), results...),
	}
	ft.key = ft.signature()
	return ft, nil
}

func (t FuncType) signature() string {
	var b strings.Builder
	b.Grow(len(t.Params) + len(t.Results) + 1)
	b.Write(t.Params)
	b.WriteByte(0) // separator: no single byte value type collides with it
	b.Write(t.Results)
	return b.String()
}

// EqualTo reports whether t and other have identical parameter and result
// types, regardless of whether they were interned to the same index.
func (t FuncType) EqualTo(other FuncType) bool {
	if t.key != "" && other.key != "" {
		return t.key == other.key
	}
	return t.signature() == other.signature()
}

// String renders the type in the WebAssembly text format's shorthand, e.g.
// "(i32, i64) -> (f32)".
func (t FuncType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range t.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(p))
	}
	b.WriteString(") -> (")
	for i, r := range t.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(r))
	}
	b.WriteByte(')')
	return b.String()
}

// TypeIndex identifies a FuncType interned into a Module's type section.
type TypeIndex uint32

// TypeTable interns FuncTypes by content so that identical signatures
// across a module's type section, and across the indirect-call-site type
// checks that compare against it, share a single TypeIndex.
type TypeTable struct {
	types []FuncType
	index map[string]TypeIndex
}

// NewTypeTable returns an empty TypeTable.
func NewTypeTable() *TypeTable {
	return &TypeTable{index: make(map[string]TypeIndex)}
}

// Dedup interns ft, returning the TypeIndex of an existing equal FuncType
// if one was already registered, or a new index otherwise.
func (tt *TypeTable) Dedup(ft FuncType) TypeIndex {
	if idx, ok := tt.index[ft.key]; ok {
		return idx
	}
	idx := TypeIndex(len(tt.types))
	tt.types = append(tt.types, ft)
	tt.index[ft.key] = idx
	return idx
}

// At returns the FuncType registered at idx.
func (tt *TypeTable) At(idx TypeIndex) FuncType {
	return tt.types[idx]
}

// Len returns the number of distinct FuncTypes interned so far.
func (tt *TypeTable) Len() int {
	return len(tt.types)
}
