package corewasm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/engine/interpreter"
	"github.com/corewasm/corewasm/internal/value"
	"github.com/corewasm/corewasm/internal/wasm"
)

// instantiateOne compiles and instantiates m against a fresh Store,
// returning the module handle for calls.
func instantiateOne(t *testing.T, cfg *Config, l func(*Linker), m *wasm.Module) api.Module {
	t.Helper()
	rt := NewRuntime(cfg)
	cm, err := rt.CompileModule(m)
	require.NoError(t, err)
	linker := NewLinker(rt)
	if l != nil {
		l(linker)
	}
	mod, err := Instantiate(context.Background(), linker, NewStore[any](rt, nil), cm, m.Name)
	require.NoError(t, err)
	return mod
}

func typeOf(tt *wasm.TypeTable, params, results []api.ValueType) wasm.TypeIndex {
	ft, err := wasm.NewFuncType(params, results)
	if err != nil {
		panic(err)
	}
	return tt.Dedup(ft)
}

var (
	vi32 = api.ValueTypeI32
	vi64 = api.ValueTypeI64
)

func TestEngine_AddAndReturn(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, []api.ValueType{vi32, vi32}, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:  "add",
		Types: types,
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Imm: 0},
			{Op: wasm.OpLocalGet, Imm: 1},
			{Op: wasm.OpNumeric, Numeric: wasm.NumI32Add},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)
	results, err := mod.ExportedFunction("f").Call(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, results)
}

func TestEngine_MemoryGrowThenLoad(t *testing.T) {
	// drop(memory.grow(1)); i32.load offset=65532 from address 0 against a
	// 1-page memory: the load reads bytes 65532..65535, the last four of the
	// original page, which are still zero after the grow.
	mt, err := wasm.NewMemoryType(1, 2, true, wasm.DefaultPageSizeLog2, wasm.IndexTypeI32)
	require.NoError(t, err)

	types := wasm.NewTypeTable()
	ti := typeOf(types, nil, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:     "grow",
		Types:    types,
		Memories: []wasm.MemoryType{mt},
		Funcs:    []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 1},
			{Op: wasm.OpMemoryGrow, Imm: 0},
			{Op: wasm.OpDrop},
			{Op: wasm.OpI32Const, Imm: 0},
			{Op: wasm.OpI32Load, MemArgData: wasm.MemArg{Offset: 65532}},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)
	results, err := mod.ExportedFunction("f").Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, results)
	require.EqualValues(t, 2, mod.Memory().Size(), "grow must have taken effect")
}

func TestEngine_MemoryStoreLoadRoundTrip(t *testing.T) {
	mt, err := wasm.NewMemoryType(1, 1, true, wasm.DefaultPageSizeLog2, wasm.IndexTypeI32)
	require.NoError(t, err)

	types := wasm.NewTypeTable()
	ti := typeOf(types, nil, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:     "mem",
		Types:    types,
		Memories: []wasm.MemoryType{mt},
		Funcs:    []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 4},
			{Op: wasm.OpI32Const, Imm: 0x11223344},
			{Op: wasm.OpI32Store, MemArgData: wasm.MemArg{}},
			{Op: wasm.OpI32Const, Imm: 4},
			{Op: wasm.OpI32Load, MemArgData: wasm.MemArg{}},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)
	results, err := mod.ExportedFunction("f").Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{0x11223344}, results)

	v, ok := mod.Memory().ReadUint32Le(4)
	require.True(t, ok)
	require.EqualValues(t, 0x11223344, v)
}

func TestEngine_MemoryOutOfBoundsTraps(t *testing.T) {
	mt, err := wasm.NewMemoryType(1, 1, true, wasm.DefaultPageSizeLog2, wasm.IndexTypeI32)
	require.NoError(t, err)

	types := wasm.NewTypeTable()
	ti := typeOf(types, nil, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:     "oob",
		Types:    types,
		Memories: []wasm.MemoryType{mt},
		Funcs:    []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 65533},
			{Op: wasm.OpI32Load, MemArgData: wasm.MemArg{}},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)
	_, err = mod.ExportedFunction("f").Call(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, value.TrapCodeMemoryOutOfBounds)
}

func TestEngine_CallIndirectBadSignature(t *testing.T) {
	// A (i32)->i32 table element invoked expecting (i64)->i32 traps with
	// BadSignature, and no state changed.
	types := wasm.NewTypeTable()
	tI32 := typeOf(types, []api.ValueType{vi32}, []api.ValueType{vi32})
	tI64 := typeOf(types, []api.ValueType{vi64}, []api.ValueType{vi32})
	tCaller := typeOf(types, nil, []api.ValueType{vi32})

	m := &wasm.Module{
		Name:   "indirect",
		Types:  types,
		Tables: []wasm.TableType{{ElemType: api.ValueTypeFuncref, Minimum: 1}},
		Funcs:  []wasm.TypeIndex{tI32, tCaller},
		FuncDefs: []wasm.LocalFunction{
			{Type: tI32, Body: []wasm.Instr{
				{Op: wasm.OpLocalGet, Imm: 0},
				{Op: wasm.OpEnd},
			}},
			{Type: tCaller, Body: []wasm.Instr{
				{Op: wasm.OpI64Const, Imm: 1},
				{Op: wasm.OpI32Const, Imm: 0},
				{Op: wasm.OpCallIndirect, Imm: int64(tI64), Imm2: 0},
				{Op: wasm.OpEnd},
			}},
		},
		Elements: []wasm.ElementSegment{{
			Mode:        wasm.SegmentModeActive,
			Offset:      wasm.ConstExpr{Op: wasm.ConstExprI32Const, Immediate: 0},
			FuncIndices: []wasm.FuncIndex{0},
		}},
		Exports: []wasm.Export{{Name: "g", Type: api.ExternTypeFunc, Index: 1}},
	}

	mod := instantiateOne(t, nil, nil, m)
	_, err := mod.ExportedFunction("g").Call(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, value.TrapCodeBadSignature)
}

func TestEngine_CallIndirectNullAndOutOfBounds(t *testing.T) {
	types := wasm.NewTypeTable()
	tCallee := typeOf(types, nil, []api.ValueType{vi32})
	tCaller := typeOf(types, []api.ValueType{vi32}, []api.ValueType{vi32})

	m := &wasm.Module{
		Name:   "indirect2",
		Types:  types,
		Tables: []wasm.TableType{{ElemType: api.ValueTypeFuncref, Minimum: 2}},
		Funcs:  []wasm.TypeIndex{tCaller},
		FuncDefs: []wasm.LocalFunction{
			{Type: tCaller, Body: []wasm.Instr{
				{Op: wasm.OpLocalGet, Imm: 0},
				{Op: wasm.OpCallIndirect, Imm: int64(tCallee), Imm2: 0},
				{Op: wasm.OpEnd},
			}},
		},
		Exports: []wasm.Export{{Name: "g", Type: api.ExternTypeFunc, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)

	_, err := mod.ExportedFunction("g").Call(context.Background(), 0)
	require.ErrorIs(t, err, value.TrapCodeIndirectCallToNull, "empty slot is a null element")

	_, err = mod.ExportedFunction("g").Call(context.Background(), 9)
	require.ErrorIs(t, err, value.TrapCodeTableOutOfBounds)
}

func TestEngine_HostImportCall(t *testing.T) {
	types := wasm.NewTypeTable()
	tHost := typeOf(types, []api.ValueType{vi32, vi32}, []api.ValueType{vi32})
	tF := typeOf(types, nil, []api.ValueType{vi32})

	m := &wasm.Module{
		Name:  "hostcall",
		Types: types,
		Imports: []wasm.Import{{
			Module: "env", Name: "add", Type: api.ExternTypeFunc, DescFunc: tHost,
		}},
		Funcs: []wasm.TypeIndex{tHost, tF},
		FuncDefs: []wasm.LocalFunction{{Type: tF, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 19},
			{Op: wasm.OpI32Const, Imm: 23},
			{Op: wasm.OpCall, Imm: 0},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 1}},
	}

	mod := instantiateOne(t, nil, func(l *Linker) {
		l.DefineFunc("env", "add", []api.ValueType{vi32, vi32}, []api.ValueType{vi32},
			func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(api.DecodeI32(stack[0]) + api.DecodeI32(stack[1]))
			})
	}, m)

	results, err := mod.ExportedFunction("f").Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestEngine_ResumableHostTrap(t *testing.T) {
	// A host import declared ()->i32 errors on first call; the embedder
	// resumes with 42 and execution completes with 42+1.
	hostErr := errors.New("host needs input")
	types := wasm.NewTypeTable()
	tHost := typeOf(types, nil, []api.ValueType{vi32})
	tF := typeOf(types, nil, []api.ValueType{vi32})

	newMod := func() api.Module {
		m := &wasm.Module{
			Name:  "resume",
			Types: types,
			Imports: []wasm.Import{{
				Module: "env", Name: "ask", Type: api.ExternTypeFunc, DescFunc: tHost,
			}},
			Funcs: []wasm.TypeIndex{tHost, tF},
			FuncDefs: []wasm.LocalFunction{{Type: tF, Body: []wasm.Instr{
				{Op: wasm.OpCall, Imm: 0},
				{Op: wasm.OpI32Const, Imm: 1},
				{Op: wasm.OpNumeric, Numeric: wasm.NumI32Add},
				{Op: wasm.OpEnd},
			}}},
			Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 1}},
		}
		return instantiateOne(t, nil, func(l *Linker) {
			l.DefineFunc("env", "ask", nil, []api.ValueType{vi32},
				func(ctx context.Context, mod api.Module, stack []uint64) {
					api.Fail(hostErr)
				})
		}, m)
	}

	t.Run("resume with matching type", func(t *testing.T) {
		fn := newMod().ExportedFunction("f").(*function)
		results, resumable, err := fn.CallResumable(context.Background())
		require.NoError(t, err)
		require.Nil(t, results)
		require.NotNil(t, resumable)
		require.ErrorIs(t, resumable.Invocation.HostError, hostErr)

		outputs := make([]uint64, 1)
		again, err := resumable.Invocation.Resume(context.Background(), []api.TypedVal{api.I32Val(42)}, outputs)
		require.NoError(t, err)
		require.Nil(t, again)
		require.Equal(t, []uint64{43}, outputs)
	})

	t.Run("resume with mismatching type", func(t *testing.T) {
		fn := newMod().ExportedFunction("f").(*function)
		_, resumable, err := fn.CallResumable(context.Background())
		require.NoError(t, err)
		require.NotNil(t, resumable)

		outputs := make([]uint64, 1)
		_, err = resumable.Invocation.Resume(context.Background(), []api.TypedVal{api.I64Val(0)}, outputs)
		require.ErrorIs(t, err, wasm.FuncErrorMismatchingParameterType)
	})

	t.Run("plain Call surfaces the host error", func(t *testing.T) {
		_, err := newMod().ExportedFunction("f").Call(context.Background())
		require.Error(t, err)
		require.ErrorIs(t, err, hostErr)
	})
}

func TestEngine_FuelExhaustion(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, nil, nil)
	m := &wasm.Module{
		Name:  "spin",
		Types: types,
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpLoop, BlockType: -1},
			{Op: wasm.OpBr, Imm: 0},
			{Op: wasm.OpEnd},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	rt := NewRuntime(NewConfig().WithFuel(1000))
	cm, err := rt.CompileModule(m)
	require.NoError(t, err)
	store := NewStore[any](rt, nil)
	mod, err := Instantiate(context.Background(), NewLinker(rt), store, cm, "spin")
	require.NoError(t, err)

	_, err = mod.ExportedFunction("f").Call(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, value.TrapCodeOutOfFuel)
	require.Zero(t, store.Fuel(), "the budget must be fully consumed")

	// Refilling lets the next call run (and fail the same way), proving
	// exhaustion is per-budget, not a sticky engine state.
	store.SetFuel(500)
	_, err = mod.ExportedFunction("f").Call(context.Background())
	require.ErrorIs(t, err, value.TrapCodeOutOfFuel)
}

func TestEngine_FuelIsConsumedOnSuccess(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, nil, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:  "cheap",
		Types: types,
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 3},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	rt := NewRuntime(NewConfig().WithFuel(100))
	cm, err := rt.CompileModule(m)
	require.NoError(t, err)
	store := NewStore[any](rt, nil)
	mod, err := Instantiate(context.Background(), NewLinker(rt), store, cm, "cheap")
	require.NoError(t, err)

	_, err = mod.ExportedFunction("f").Call(context.Background())
	require.NoError(t, err)
	require.Less(t, store.Fuel(), uint64(100))
}

func TestEngine_StackOverflow(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, nil, nil)
	m := &wasm.Module{
		Name:  "recurse",
		Types: types,
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpCall, Imm: 0},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	cfg := NewConfig().WithStackLimits(interpreter.StackLimits{
		MaxValueStackHeight: 1 << 12,
		MaxRecursionDepth:   64,
	})
	mod := instantiateOne(t, cfg, nil, m)
	_, err := mod.ExportedFunction("f").Call(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, value.TrapCodeStackOverflow)
}

func TestEngine_TailCallCountdown(t *testing.T) {
	// return_call reuses the frame: a 1000-step countdown completes under
	// a recursion limit of 8.
	types := wasm.NewTypeTable()
	ti := typeOf(types, []api.ValueType{vi32}, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:  "countdown",
		Types: types,
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 42},
			{Op: wasm.OpLocalGet, Imm: 0},
			{Op: wasm.OpNumeric, Numeric: wasm.NumI32Eqz},
			{Op: wasm.OpBrIf, Imm: 0},
			{Op: wasm.OpDrop},
			{Op: wasm.OpLocalGet, Imm: 0},
			{Op: wasm.OpI32Const, Imm: 1},
			{Op: wasm.OpNumeric, Numeric: wasm.NumI32Sub},
			{Op: wasm.OpReturnCall, Imm: 0},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	cfg := NewConfig().
		WithFeature(wasm.FeatureTailCall, true).
		WithStackLimits(interpreter.StackLimits{MaxValueStackHeight: 1 << 12, MaxRecursionDepth: 8})
	mod := instantiateOne(t, cfg, nil, m)

	results, err := mod.ExportedFunction("f").Call(context.Background(), 1000)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestEngine_GlobalsAcrossCalls(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, nil, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:  "globals",
		Types: types,
		Globals: []wasm.GlobalDef{{
			Type: wasm.GlobalType{ValType: vi32, Mutable: true},
			Init: wasm.ConstExpr{Op: wasm.ConstExprI32Const, Immediate: 10},
		}},
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpGlobalGet, Imm: 0},
			{Op: wasm.OpI32Const, Imm: 5},
			{Op: wasm.OpNumeric, Numeric: wasm.NumI32Add},
			{Op: wasm.OpGlobalSet, Imm: 0},
			{Op: wasm.OpGlobalGet, Imm: 0},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{
			{Name: "bump", Type: api.ExternTypeFunc, Index: 0},
			{Name: "g", Type: api.ExternTypeGlobal, Index: 0},
		},
	}

	mod := instantiateOne(t, nil, nil, m)
	fn := mod.ExportedFunction("bump")

	results, err := fn.Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{15}, results)

	results, err = fn.Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{20}, results, "the global must persist between calls")

	g := mod.ExportedGlobal("g")
	require.NotNil(t, g)
	require.EqualValues(t, 20, g.Get())
	_, mutable := g.(api.MutableGlobal)
	require.True(t, mutable)
}

func TestEngine_BrTableDispatch(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, []api.ValueType{vi32}, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:  "switch",
		Types: types,
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpBlock, BlockType: -1},
			{Op: wasm.OpBlock, BlockType: -1},
			{Op: wasm.OpLocalGet, Imm: 0},
			{Op: wasm.OpBrTable, Targets: []uint32{0}, TargetsDef: 1},
			{Op: wasm.OpEnd},
			{Op: wasm.OpI32Const, Imm: 20},
			{Op: wasm.OpBr, Imm: 1},
			{Op: wasm.OpEnd},
			{Op: wasm.OpI32Const, Imm: 30},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)
	fn := mod.ExportedFunction("f")

	for _, tc := range []struct {
		in   uint64
		want uint64
	}{
		{0, 20},
		{1, 30},
		{7, 30}, // out-of-range index takes the default arm
	} {
		results, err := fn.Call(context.Background(), tc.in)
		require.NoError(t, err)
		require.Equal(t, []uint64{tc.want}, results, "input %d", tc.in)
	}
}

func TestEngine_DivideByZeroTraps(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, []api.ValueType{vi32}, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:  "div",
		Types: types,
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 1},
			{Op: wasm.OpLocalGet, Imm: 0},
			{Op: wasm.OpNumeric, Numeric: wasm.NumI32DivS},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)
	_, err := mod.ExportedFunction("f").Call(context.Background(), 0)
	require.ErrorIs(t, err, value.TrapCodeIntegerDivideByZero)

	results, err := mod.ExportedFunction("f").Call(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, results)
}

func TestEngine_MultiValueReturn(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, nil, []api.ValueType{vi32, vi32})
	m := &wasm.Module{
		Name:  "pair",
		Types: types,
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 1},
			{Op: wasm.OpI32Const, Imm: 2},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)
	results, err := mod.ExportedFunction("f").Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, results)
}

func TestEngine_StartFunctionRunsAtInstantiation(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, nil, nil)
	m := &wasm.Module{
		Name:  "start",
		Types: types,
		Globals: []wasm.GlobalDef{{
			Type: wasm.GlobalType{ValType: vi32, Mutable: true},
			Init: wasm.ConstExpr{Op: wasm.ConstExprI32Const, Immediate: 0},
		}},
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 7},
			{Op: wasm.OpGlobalSet, Imm: 0},
			{Op: wasm.OpEnd},
		}}},
		Start:    0,
		HasStart: true,
		Exports:  []wasm.Export{{Name: "g", Type: api.ExternTypeGlobal, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)
	require.EqualValues(t, 7, mod.ExportedGlobal("g").Get())
}

func TestEngine_CrossModuleImport(t *testing.T) {
	// Module "lib" exports a doubling function; "app" imports and calls
	// it, crossing an instance boundary within one Store.
	rt := NewRuntime(nil)
	store := NewStore[any](rt, nil)
	linker := NewLinker(rt)

	libTypes := wasm.NewTypeTable()
	tDouble := typeOf(libTypes, []api.ValueType{vi32}, []api.ValueType{vi32})
	lib := &wasm.Module{
		Name:  "lib",
		Types: libTypes,
		Funcs: []wasm.TypeIndex{tDouble},
		FuncDefs: []wasm.LocalFunction{{Type: tDouble, Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Imm: 0},
			{Op: wasm.OpLocalGet, Imm: 0},
			{Op: wasm.OpNumeric, Numeric: wasm.NumI32Add},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "double", Type: api.ExternTypeFunc, Index: 0}},
	}
	libCM, err := rt.CompileModule(lib)
	require.NoError(t, err)
	libMod, err := Instantiate(context.Background(), linker, store, libCM, "lib")
	require.NoError(t, err)
	require.NoError(t, linker.DefineModule("lib", libMod))

	appTypes := wasm.NewTypeTable()
	tDoubleApp := typeOf(appTypes, []api.ValueType{vi32}, []api.ValueType{vi32})
	tF := typeOf(appTypes, nil, []api.ValueType{vi32})
	app := &wasm.Module{
		Name:  "app",
		Types: appTypes,
		Imports: []wasm.Import{{
			Module: "lib", Name: "double", Type: api.ExternTypeFunc, DescFunc: tDoubleApp,
		}},
		Funcs: []wasm.TypeIndex{tDoubleApp, tF},
		FuncDefs: []wasm.LocalFunction{{Type: tF, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 21},
			{Op: wasm.OpCall, Imm: 0},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 1}},
	}
	appCM, err := rt.CompileModule(app)
	require.NoError(t, err)
	appMod, err := Instantiate(context.Background(), linker, store, appCM, "app")
	require.NoError(t, err)

	results, err := appMod.ExportedFunction("f").Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestEngine_SelectExecution(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, []api.ValueType{vi32}, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:  "select",
		Types: types,
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpI32Const, Imm: 7},
			{Op: wasm.OpI32Const, Imm: 9},
			{Op: wasm.OpLocalGet, Imm: 0},
			{Op: wasm.OpI32Const, Imm: 5},
			{Op: wasm.OpNumeric, Numeric: wasm.NumI32LtS},
			{Op: wasm.OpSelect},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)
	fn := mod.ExportedFunction("f")

	results, err := fn.Call(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, results)

	results, err = fn.Call(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, []uint64{9}, results)
}

func TestEngine_MismatchingParameterCount(t *testing.T) {
	types := wasm.NewTypeTable()
	ti := typeOf(types, []api.ValueType{vi32}, []api.ValueType{vi32})
	m := &wasm.Module{
		Name:  "arity",
		Types: types,
		Funcs: []wasm.TypeIndex{ti},
		FuncDefs: []wasm.LocalFunction{{Type: ti, Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Imm: 0},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "f", Type: api.ExternTypeFunc, Index: 0}},
	}

	mod := instantiateOne(t, nil, nil, m)
	_, err := mod.ExportedFunction("f").Call(context.Background())
	require.ErrorIs(t, err, wasm.FuncErrorMismatchingParameterLen)
}
