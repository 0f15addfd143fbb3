package wasm

import (
	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/value"
)

// ConstExprOp is the opcode of a constant expression, the restricted
// instruction set WebAssembly allows for global initializers, table
// element segment offsets, and data segment offsets.
type ConstExprOp byte

const (
	ConstExprI32Const ConstExprOp = iota
	ConstExprI64Const
	ConstExprF32Const
	ConstExprF64Const
	ConstExprGlobalGet
	ConstExprRefNull
	ConstExprRefFunc
)

// ConstExpr is a single-instruction initializer. WebAssembly's core spec
// does not admit multi-instruction const exprs outside the extended-const
// proposal, which this implementation does not support; Immediate and
// GlobalIndex are mutually exclusive depending on Op.
type ConstExpr struct {
	Op          ConstExprOp
	Immediate   uint64        // I32Const/I64Const/F32Const/F64Const payload, or RefFunc's FuncIndex
	GlobalIndex uint32        // GlobalGet operand
	RefType     api.ValueType // RefNull operand: Funcref or Externref
}

// Eval resolves a ConstExpr to its untyped value. globals supplies the
// already-initialized values of globals with a lower index, which is all
// that global.get is permitted to reference in a const expr.
func (c ConstExpr) Eval(globals func(idx uint32) value.UntypedVal) value.UntypedVal {
	switch c.Op {
	case ConstExprI32Const, ConstExprI64Const, ConstExprF32Const, ConstExprF64Const:
		return value.UntypedVal(c.Immediate)
	case ConstExprGlobalGet:
		return globals(c.GlobalIndex)
	case ConstExprRefNull:
		return value.UntypedVal(0)
	case ConstExprRefFunc:
		return value.FromRef(c.Immediate)
	}
	panic("unreachable: invalid ConstExprOp")
}
