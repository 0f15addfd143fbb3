//go:build amd64 && cgo

package interpreter_test

import (
	"context"
	"testing"

	"github.com/bytecodealliance/wasmtime-go/v3"
	"github.com/stretchr/testify/require"
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/corewasm/corewasm"
	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/wasm"
)

// addModuleWasm is the binary encoding of a module exporting a single
// function "add" of type (i32, i32) -> i32, computing local.get 0 +
// local.get 1. It exists purely so wasmtime-go and wasmer-go, which only
// accept real Wasm binaries, can run the same function this engine runs
// from a hand-built wasm.Module (this engine has no binary decoder of its
// own).
var addModuleWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version

	// type section: (i32, i32) -> i32
	0x01, 0x06, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	// function section: func 0 uses type 0
	0x03, 0x02, 0x01, 0x00,
	// export section: export func 0 as "add"
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	// code section: local.get 0, local.get 1, i32.add, end
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

// ourAddModule hand-builds the equivalent module header for this engine,
// mirroring the hand-construction idiom used throughout linker_test.go and
// instance_test.go rather than decoding addModuleWasm (no decoder exists).
func ourAddModule() *wasm.Module {
	types := wasm.NewTypeTable()
	ft, err := wasm.NewFuncType([]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32})
	if err != nil {
		panic(err)
	}
	typeIdx := types.Dedup(ft)

	return &wasm.Module{
		Types: types,
		Funcs: []wasm.TypeIndex{typeIdx},
		FuncDefs: []wasm.LocalFunction{{
			Type: typeIdx,
			Body: []wasm.Instr{
				{Op: wasm.OpLocalGet, Imm: 0},
				{Op: wasm.OpLocalGet, Imm: 1},
				{Op: wasm.OpNumeric, Numeric: wasm.NumI32Add},
				{Op: wasm.OpEnd},
			},
		}},
		Exports: []wasm.Export{{Name: "add", Type: api.ExternTypeFunc, Index: 0}},
	}
}

// TestCrossValidate_Add runs the same add(a, b) function through this
// engine, wasmtime-go, and wasmer-go and asserts all three agree.
func TestCrossValidate_Add(t *testing.T) {
	const a, b uint32 = 19, 23
	const want uint32 = a + b

	t.Run("corewasm", func(t *testing.T) {
		ctx := context.Background()
		rt := corewasm.NewRuntime(nil)
		cm, err := rt.CompileModule(ourAddModule())
		require.NoError(t, err)

		store := corewasm.NewStore[any](rt, nil)
		mod, err := corewasm.Instantiate(ctx, corewasm.NewLinker(rt), store, cm, "add-module")
		require.NoError(t, err)

		fn := mod.ExportedFunction("add")
		require.NotNil(t, fn)

		results, err := fn.Call(ctx, uint64(a), uint64(b))
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.EqualValues(t, want, uint32(results[0]))
	})

	t.Run("wasmtime", func(t *testing.T) {
		engine := wasmtime.NewEngine()
		store := wasmtime.NewStore(engine)
		module, err := wasmtime.NewModule(store.Engine, addModuleWasm)
		require.NoError(t, err)

		linker := wasmtime.NewLinker(engine)
		instance, err := linker.Instantiate(store, module)
		require.NoError(t, err)

		add := instance.GetFunc(store, "add")
		require.NotNil(t, add)

		result, err := add.Call(store, int32(a), int32(b))
		require.NoError(t, err)
		require.EqualValues(t, want, uint32(result.(int32)))
	})

	t.Run("wasmer", func(t *testing.T) {
		wstore := wasmer.NewStore(wasmer.NewEngine())
		module, err := wasmer.NewModule(wstore, addModuleWasm)
		require.NoError(t, err)

		instance, err := wasmer.NewInstance(module, wasmer.NewImportObject())
		require.NoError(t, err)

		add, err := instance.Exports.GetFunction("add")
		require.NoError(t, err)

		result, err := add(int32(a), int32(b))
		require.NoError(t, err)
		require.EqualValues(t, want, uint32(result.(int32)))
	})
}
