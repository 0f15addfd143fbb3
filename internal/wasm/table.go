package wasm

import "github.com/corewasm/corewasm/api"

// TableType describes a table's element type and size bounds. Tables hold
// opaque reference values (funcref or externref); the interpreter never
// inspects what a reference points to.
type TableType struct {
	ElemType   api.ValueType
	Minimum    uint32
	Maximum    uint32
	HasMaximum bool
}

// IsSubtypeOf implements Wasm import subtyping for table types: the
// element type must match exactly, the importing minimum must be at least
// the imported minimum, and the importing maximum (if any) must be at
// least as tight.
func (tt TableType) IsSubtypeOf(other TableType) bool {
	if tt.ElemType != other.ElemType {
		return false
	}
	if tt.Minimum < other.Minimum {
		return false
	}
	if !other.HasMaximum {
		return true
	}
	if !tt.HasMaximum {
		return false
	}
	return tt.Maximum <= other.Maximum
}
