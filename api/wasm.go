// Package api includes constants and interfaces used by both end-users and
// internal implementations. Keeping these decoupled from the engine lets
// the translator and interpreter packages avoid importing the embedder
// surface (github.com/corewasm/corewasm) and vice versa.
package api

import (
	"context"
	"fmt"
	"math"
)

// ExternType classifies imports and exports by the four external kinds a
// WebAssembly module can expose.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the human-readable name of an ExternType, matching
// the field name used in the WebAssembly text format.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", et)
}

// ValueType is the binary encoding of a Wasm value's type. Untyped 64/128-bit
// cells are reinterpreted according to this tag only at the translation and
// embedder boundaries; the interpreter itself never branches on it.
type ValueType = byte

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the WebAssembly text format name for t, or "unknown"
// if t is not a defined ValueType.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// IsReference reports whether t is one of the reference types, which are
// handled as opaque 64-bit handles rather than numeric values.
func IsReference(t ValueType) bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref
}

// Module returns functions, memory, tables and globals exported by an
// instantiated module.
//
// Note: This is an interface for decoupling, not third-party
// implementations. All implementations live in the root package.
type Module interface {
	fmt.Stringer

	// Name is the name this module was instantiated with.
	Name() string

	// Memory returns the default memory defined or imported by this module,
	// or nil if it has none.
	Memory() Memory

	// ExportedFunction returns a function exported from this module, or nil.
	ExportedFunction(name string) Function

	// ExportedMemory returns a memory exported from this module, or nil.
	ExportedMemory(name string) Memory

	// ExportedGlobal returns a global exported from this module, or nil.
	ExportedGlobal(name string) Global

	// ExportedTable returns a table exported from this module, or nil.
	ExportedTable(name string) Table

	// Close releases resources allocated for this Module's instantiation.
	Closer
}

// Closer closes a resource, returning the aggregated error if more than one
// release step fails.
type Closer interface {
	Close(context.Context) error
}

// FunctionDefinition describes a function's signature prior to instantiation.
type FunctionDefinition interface {
	ModuleName() string
	Index() uint32
	Name() string
	ParamTypes() []ValueType
	ResultTypes() []ValueType
	Import() (moduleName, name string, isImport bool)
	ExportNames() []string
}

// Function is an invocable, exported WebAssembly function.
type Function interface {
	Definition() FunctionDefinition

	// Call invokes the function with parameters encoded per ParamTypes,
	// writing up to len(ResultTypes) results encoded per ResultTypes.
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// GoFunction is the low-level shape of a host-defined function: it reads
// parameters from the low end of stack and overwrites it with results,
// avoiding the reflection overhead of a Go closure with concrete types.
type GoFunction func(ctx context.Context, mod Module, stack []uint64)

// HostError is the panic payload a GoFunction raises to fail its call
// without returning normally: GoFunction's signature has no room for an
// error return, so a host that
// wants to suspend the calling invocation (instead of it being treated as
// a genuine programming-error panic) calls Fail, which panics with this
// type. The interpreter recovers exactly this payload and nothing else.
type HostError struct{ Err error }

// Fail panics with a HostError wrapping err, causing the current
// invocation to suspend as a ResumableCall (or fail outright for a
// non-resumable Call) instead of crashing the embedder process.
func Fail(err error) { panic(HostError{Err: err}) }

func (e HostError) Error() string { return e.Err.Error() }
func (e HostError) Unwrap() error { return e.Err }

// TypedVal pairs a ValueType with its encoded bits. Most call boundaries
// take raw uint64 cells and trust the caller's encoding; TypedVal is used
// where the engine must actively validate types, i.e. when resuming a
// suspended invocation with replacement host results.
type TypedVal struct {
	Type  ValueType
	Value uint64
}

func I32Val(v int32) TypedVal   { return TypedVal{Type: ValueTypeI32, Value: EncodeI32(v)} }
func I64Val(v int64) TypedVal   { return TypedVal{Type: ValueTypeI64, Value: EncodeI64(v)} }
func F32Val(v float32) TypedVal { return TypedVal{Type: ValueTypeF32, Value: EncodeF32(v)} }
func F64Val(v float64) TypedVal { return TypedVal{Type: ValueTypeF64, Value: EncodeF64(v)} }

// ExitError is the error payload a host proc_exit-style function fails
// with: not a fault but a deliberate program termination carrying an exit
// code. It is surfaced to the embedder like any other host error.
type ExitError struct {
	ExitCode uint32
}

func (e *ExitError) Error() string { return fmt.Sprintf("module exited with code %d", e.ExitCode) }

// Global is an exported WebAssembly global.
type Global interface {
	fmt.Stringer
	Type() ValueType
	Get() uint64
}

// MutableGlobal is a Global whose value can be updated at runtime.
type MutableGlobal interface {
	Global
	Set(v uint64)
}

// Memory allows restricted access to an instance's linear memory.
type Memory interface {
	Size() uint32
	Grow(deltaPages uint32) (previousPages uint32, ok bool)
	ReadByte(offset uint32) (byte, bool)
	ReadUint32Le(offset uint32) (uint32, bool)
	ReadUint64Le(offset uint32) (uint64, bool)
	ReadFloat32Le(offset uint32) (float32, bool)
	ReadFloat64Le(offset uint32) (float64, bool)
	Read(offset, byteCount uint32) ([]byte, bool)
	WriteByte(offset uint32, v byte) bool
	WriteUint32Le(offset, v uint32) bool
	WriteUint64Le(offset uint32, v uint64) bool
	WriteFloat32Le(offset uint32, v float32) bool
	WriteFloat64Le(offset uint32, v float64) bool
	Write(offset uint32, v []byte) bool
}

// Table allows restricted access to an instance's table of references.
type Table interface {
	Size() uint32
	Grow(delta uint32, init uint64) (previous uint32, ok bool)
	Get(index uint32) (uint64, bool)
	Set(index uint32, ref uint64) bool
}

// Encode/Decode helpers translate between Go types and the uint64 cells used
// at the Function.Call boundary. These are bit-preserving, never lossy.

func EncodeI32(v int32) uint64   { return uint64(uint32(v)) }
func EncodeI64(v int64) uint64   { return uint64(v) }
func EncodeF32(v float32) uint64 { return uint64(math.Float32bits(v)) }
func EncodeF64(v float64) uint64 { return math.Float64bits(v) }

func DecodeI32(v uint64) int32   { return int32(uint32(v)) }
func DecodeI64(v uint64) int64   { return int64(v) }
func DecodeF32(v uint64) float32 { return math.Float32frombits(uint32(v)) }
func DecodeF64(v uint64) float64 { return math.Float64frombits(v) }

func EncodeExternref(v uintptr) uint64 { return uint64(v) }
func DecodeExternref(v uint64) uintptr { return uintptr(v) }
