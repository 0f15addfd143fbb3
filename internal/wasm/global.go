package wasm

import "github.com/corewasm/corewasm/api"

// GlobalType describes a global variable's value type and mutability.
type GlobalType struct {
	ValType api.ValueType
	Mutable bool
}

// IsSubtypeOf implements Wasm import subtyping for global types: mutable
// globals are invariant (both value type and mutability must match
// exactly), while an immutable import may only satisfy an immutable
// requirement of the same value type.
func (gt GlobalType) IsSubtypeOf(other GlobalType) bool {
	return gt.ValType == other.ValType && gt.Mutable == other.Mutable
}
