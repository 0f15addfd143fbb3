package corewasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
)

func noopHostFunc(ctx context.Context, mod api.Module, stack []uint64) {}

func TestLinker_Resolve_MissingModule(t *testing.T) {
	l := NewLinker(NewRuntime(nil))
	ft, _ := wasm.NewFuncType(nil, nil)
	m := &wasm.Module{Types: wasm.NewTypeTable()}
	m.Types.Dedup(ft)
	imp := wasm.Import{Module: "env", Name: "missing", Type: api.ExternTypeFunc, DescFunc: 0}

	_, err := l.resolve(m, imp)
	require.Error(t, err)
	var resErr *ImportResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, "env", resErr.Module)
}

func TestLinker_Resolve_WrongExternType(t *testing.T) {
	r := NewRuntime(nil)
	l := NewLinker(r)
	l.Define("env", "thing", GlobalExtern(wasm.GlobalType{ValType: api.ValueTypeI32}, 0))

	ft, _ := wasm.NewFuncType(nil, nil)
	m := &wasm.Module{Types: wasm.NewTypeTable()}
	m.Types.Dedup(ft)
	imp := wasm.Import{Module: "env", Name: "thing", Type: api.ExternTypeFunc, DescFunc: 0}

	_, err := l.resolve(m, imp)
	require.Error(t, err)
	require.Contains(t, err.Error(), "registered as")
}

func TestLinker_Resolve_SignatureMismatch(t *testing.T) {
	r := NewRuntime(nil)
	l := NewLinker(r)
	l.DefineFunc("env", "add", []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, noopHostFunc)

	wantFT, _ := wasm.NewFuncType([]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32})
	m := &wasm.Module{Types: wasm.NewTypeTable()}
	idx := m.Types.Dedup(wantFT)
	imp := wasm.Import{Module: "env", Name: "add", Type: api.ExternTypeFunc, DescFunc: idx}

	_, err := l.resolve(m, imp)
	require.Error(t, err)
	require.Contains(t, err.Error(), "registered signature")
}

func TestLinker_Resolve_Success(t *testing.T) {
	r := NewRuntime(nil)
	l := NewLinker(r)
	l.DefineFunc("env", "double", []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}, noopHostFunc)

	ft, _ := wasm.NewFuncType([]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32})
	m := &wasm.Module{Types: wasm.NewTypeTable()}
	idx := m.Types.Dedup(ft)
	imp := wasm.Import{Module: "env", Name: "double", Type: api.ExternTypeFunc, DescFunc: idx}

	ext, err := l.resolve(m, imp)
	require.NoError(t, err)
	require.Equal(t, api.ExternTypeFunc, ext.Type)
}
