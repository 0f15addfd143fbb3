package wasm

import "github.com/corewasm/corewasm/internal/value"

// EncodeFuncRef encodes a funcref table element or ref.func result as an
// UntypedVal. A FuncIdx's raw slab index is offset by one so that zero
// keeps its meaning as the null reference (value.UntypedVal.IsNullRef);
// index zero is a perfectly ordinary function otherwise, so it cannot
// double as the sentinel on its own. The handle's store identity is not
// encoded: a funcref only ever lives in (and is decoded against) the
// store that produced it, so DecodeFuncRef reattaches the identity of the
// store it is called on.
func EncodeFuncRef(idx FuncIdx) value.UntypedVal {
	return value.FromRef(uint64(idx.Index()) + 1)
}

// DecodeFuncRef reverses EncodeFuncRef against s, rebinding the decoded
// handle to s's identity. ok is false for the null reference.
func (s *Store) DecodeFuncRef(v value.UntypedVal) (idx FuncIdx, ok bool) {
	raw := v.Ref()
	if raw == 0 {
		return FuncIdx{}, false
	}
	return newStored[funcSlabIdx](s.id, funcSlabIdx(raw-1)), true
}
