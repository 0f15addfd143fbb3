package interpreter

import (
	"context"
	"fmt"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/value"
	"github.com/corewasm/corewasm/internal/wasm"
	"github.com/corewasm/corewasm/internal/wazeroir"
)

// TrapError wraps a value.TrapCode so callers can distinguish an abnormal
// function exit from an ordinary Go error.
type TrapError struct {
	Code value.TrapCode
}

func (e *TrapError) Error() string  { return e.Code.Error() }
func (e *TrapError) Unwrap() error  { return e.Code }

// invokeHost runs fe's GoFunction with stack as both its parameter and
// result buffer, translating a deliberate api.Fail panic into a returned
// error while letting any other panic propagate as the genuine
// programming bug it is (see DESIGN.md's "host-error-via-panic" entry).
// The instance cache's default-memory slice is invalidated by doCall
// immediately after this returns, since a host call may reallocate it.
func (e *Engine) invokeHost(ctx context.Context, store *wasm.Store, fe *wasm.FuncEntity, stack []value.UntypedVal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if he, ok := r.(api.HostError); ok {
				err = he.Err
				return
			}
			panic(r)
		}
	}()
	mod := e.ModuleOf(fe.Instance)
	raw := make([]uint64, len(stack))
	for i, v := range stack {
		raw[i] = v.U64()
	}
	fe.HostFunc(ctx, mod, raw)
	for i, v := range raw {
		stack[i] = value.UntypedVal(v)
	}
	return nil
}

// Call runs fn (a function in inst's own index space) to completion with
// args, or until it suspends on a host-function error awaiting resumption.
// A non-nil *ResumableCall on return means the invocation is suspended,
// not failed.
func (e *Engine) Call(ctx context.Context, store *wasm.Store, inst *wasm.Instance, fn wasm.FuncIndex, args []uint64, limits StackLimits) ([]uint64, *ResumableCall, error) {
	ft := inst.Module.FuncTypeOf(fn)
	if len(args) != len(ft.Params) {
		return nil, nil, fmt.Errorf("interpreter: %d params expected, got %d: %w", len(ft.Params), len(args), wasm.FuncErrorMismatchingParameterLen)
	}

	handle := inst.Funcs[fn]
	fe := store.Func(handle)

	vs := newValueStack(limits.MaxValueStackHeight)
	cs := newCallStack(limits.MaxRecursionDepth)
	cache := &instanceCache{}

	if fe.IsHost {
		stack := make([]value.UntypedVal, maxInt(len(args), len(ft.Results)))
		for i, a := range args {
			stack[i] = value.UntypedVal(a)
		}
		if err := e.invokeHost(ctx, store, fe, stack); err != nil {
			susp := &hostSuspend{fe: fe, err: err, resultBase: 0, resultLen: len(ft.Results), popFrame: true}
			return nil, newResumableCall(e, store, vs, cs, cache, ft.Results, susp), nil
		}
		return untypedToUint64(stack[:len(ft.Results)]), nil, nil
	}

	compiled := e.CompiledFunc(inst.Module, fe.CompiledIndex)
	if compiled == nil {
		return nil, nil, fmt.Errorf("interpreter: %s's function %d was never compiled", inst.Module.Name, fn)
	}
	if !vs.reserve(0, int(compiled.LenRegisters)) {
		return nil, nil, &TrapError{Code: value.TrapCodeStackOverflow}
	}
	for i, a := range args {
		vs.set(i, value.UntypedVal(a))
	}
	cache.updateInstance(store, inst)
	cs.push(frame{ip: 0, start: 0, instance: inst, instanceIdx: fe.Instance, compiled: compiled})

	results, trap, hostErr := e.run(ctx, store, vs, cs, cache)
	if hostErr != nil {
		susp, ok := hostErr.(*hostSuspend)
		if !ok {
			return nil, nil, hostErr
		}
		return nil, newResumableCall(e, store, vs, cs, cache, ft.Results, susp), nil
	}
	if trap != 0 {
		return nil, nil, &TrapError{Code: trap}
	}
	return untypedToUint64(results), nil, nil
}

func untypedToUint64(vals []value.UntypedVal) []uint64 {
	out := make([]uint64, len(vals))
	for i, v := range vals {
		out[i] = v.U64()
	}
	return out
}

// run is the register-machine dispatch loop. It returns either a final
// results slice, a non-zero trap code, or a non-nil hostErr if a host
// function suspended the call; exactly one of these three is meaningful
// on any given return.
func (e *Engine) run(ctx context.Context, store *wasm.Store, vs *valueStack, cs *callStack, cache *instanceCache) (results []value.UntypedVal, trap value.TrapCode, hostErr error) {
	for {
		fr := cs.top()
		op := &fr.compiled.Ops[fr.ip]

		switch op.Kind {
		case wazeroir.OpKindUnreachable:
			return nil, value.TrapCodeUnreachableCodeReached, nil

		case wazeroir.OpKindConsumeFuel:
			if !store.ConsumeFuel(uint64(op.Imm32)) {
				return nil, value.TrapCodeOutOfFuel, nil
			}
			fr.ip++
			continue

		case wazeroir.OpKindCopy:
			vs.set(fr.start+int(op.Result), regVal(vs, fr, op.A))
			fr.ip++
			continue
		case wazeroir.OpKindCopyImm32:
			vs.set(fr.start+int(op.Result), value.FromI32(op.Imm32))
			fr.ip++
			continue
		case wazeroir.OpKindCopyImm64:
			vs.set(fr.start+int(op.Result), value.FromI64(op.Imm64))
			fr.ip++
			continue

		case wazeroir.OpKindNumericUnary:
			a := regVal(vs, fr, op.A)
			vs.set(fr.start+int(op.Result), wasm.EvalUnary(op.Numeric, a))
			fr.ip++
			continue
		case wazeroir.OpKindNumericBinary:
			a, b := regVal(vs, fr, op.A), regVal(vs, fr, op.B)
			vs.set(fr.start+int(op.Result), wasm.EvalBinary(op.Numeric, a, b))
			fr.ip++
			continue
		case wazeroir.OpKindNumericTrapUnary:
			a := regVal(vs, fr, op.A)
			res, tc := wasm.EvalTrapUnary(op.Numeric, a)
			if tc != 0 {
				return nil, tc, nil
			}
			vs.set(fr.start+int(op.Result), res)
			fr.ip++
			continue
		case wazeroir.OpKindNumericTrapBinary:
			a, b := regVal(vs, fr, op.A), regVal(vs, fr, op.B)
			res, tc := wasm.EvalTrapBinary(op.Numeric, a, b)
			if tc != 0 {
				return nil, tc, nil
			}
			vs.set(fr.start+int(op.Result), res)
			fr.ip++
			continue

		case wazeroir.OpKindBr:
			fr.ip += int(op.BrOffset) + 1
			continue
		case wazeroir.OpKindBrIfNez:
			if regVal(vs, fr, op.A).Bool() {
				fr.ip += int(op.BrOffset) + 1
			} else {
				fr.ip++
			}
			continue
		case wazeroir.OpKindBrIfEqz:
			if !regVal(vs, fr, op.A).Bool() {
				fr.ip += int(op.BrOffset) + 1
			} else {
				fr.ip++
			}
			continue
		case wazeroir.OpKindBranchCmp:
			if evalFusedCmp(vs, fr, op).Bool() {
				fr.ip += int(op.BrOffset) + 1
			} else {
				fr.ip++
			}
			continue
		case wazeroir.OpKindBrTable:
			idx := int(regVal(vs, fr, op.A).U32())
			arm := 0
			if idx >= 0 && idx < len(op.BrTargets)-1 {
				arm = idx + 1
			}
			fr.ip += int(op.BrTargets[arm]) + 1
			continue

		case wazeroir.OpKindSelect:
			if regVal(vs, fr, op.A).Bool() {
				vs.set(fr.start+int(op.Result), regVal(vs, fr, op.B))
			} else {
				vs.set(fr.start+int(op.Result), regVal(vs, fr, op.C))
			}
			fr.ip++
			continue
		case wazeroir.OpKindSelectCmp:
			if evalFusedCmp(vs, fr, op).Bool() {
				vs.set(fr.start+int(op.Result), regVal(vs, fr, op.C))
			} else {
				vs.set(fr.start+int(op.Result), regVal(vs, fr, op.D))
			}
			fr.ip++
			continue

		case wazeroir.OpKindGlobalGet:
			vs.set(fr.start+int(op.Result), cache.global(store, op.Index).Value)
			fr.ip++
			continue
		case wazeroir.OpKindGlobalSet:
			cache.global(store, op.Index).Value = regVal(vs, fr, op.A)
			fr.ip++
			continue

		case wazeroir.OpKindLoad:
			v, tc := doLoad(cache.memory(store, 0), op, regVal(vs, fr, op.A))
			if tc != 0 {
				return nil, tc, nil
			}
			vs.set(fr.start+int(op.Result), v)
			fr.ip++
			continue
		case wazeroir.OpKindStore:
			if tc := doStore(cache.memory(store, 0), op, regVal(vs, fr, op.A), regVal(vs, fr, op.B)); tc != 0 {
				return nil, tc, nil
			}
			fr.ip++
			continue
		case wazeroir.OpKindMemorySize:
			mem := store.Memory(fr.instance.Memories[op.Index])
			vs.set(fr.start+int(op.Result), value.FromI32(int32(mem.Pages())))
			fr.ip++
			continue
		case wazeroir.OpKindMemoryGrow:
			prev, ok := growMemory(store.Memory(fr.instance.Memories[op.Index]), regVal(vs, fr, op.A).U32())
			if ok && op.Index == 0 {
				cache.resetDefaultMemoryBytes(store)
			}
			if !ok {
				vs.set(fr.start+int(op.Result), value.FromI32(-1))
			} else {
				vs.set(fr.start+int(op.Result), value.FromI32(int32(prev)))
			}
			fr.ip++
			continue
		case wazeroir.OpKindMemoryInit:
			seg := store.DataSeg(fr.instance.Data[op.Index])
			mem := store.Memory(fr.instance.Memories[op.Index2])
			tc := memoryInit(mem, seg, uint32(regVal(vs, fr, op.A).U32()), uint32(regVal(vs, fr, op.B).U32()), uint32(regVal(vs, fr, op.C).U32()))
			if tc != 0 {
				return nil, tc, nil
			}
			fr.ip++
			continue
		case wazeroir.OpKindMemoryCopy:
			dstMem := store.Memory(fr.instance.Memories[op.Index])
			srcMem := store.Memory(fr.instance.Memories[op.Index2])
			tc := memoryCopy(dstMem, srcMem, uint32(regVal(vs, fr, op.A).U32()), uint32(regVal(vs, fr, op.B).U32()), uint32(regVal(vs, fr, op.C).U32()))
			if tc != 0 {
				return nil, tc, nil
			}
			fr.ip++
			continue
		case wazeroir.OpKindMemoryFill:
			mem := store.Memory(fr.instance.Memories[op.Index])
			tc := memoryFill(mem, uint32(regVal(vs, fr, op.A).U32()), byte(regVal(vs, fr, op.B).U32()), uint32(regVal(vs, fr, op.C).U32()))
			if tc != 0 {
				return nil, tc, nil
			}
			fr.ip++
			continue
		case wazeroir.OpKindDataDrop:
			store.DataSeg(fr.instance.Data[op.Index]).Dropped = true
			fr.ip++
			continue

		case wazeroir.OpKindTableGet:
			t := cache.table(store, op.Index)
			idx := regVal(vs, fr, op.A).U32()
			if idx >= uint32(len(t.Elements)) {
				return nil, value.TrapCodeTableOutOfBounds, nil
			}
			vs.set(fr.start+int(op.Result), t.Elements[idx])
			fr.ip++
			continue
		case wazeroir.OpKindTableSet:
			t := cache.table(store, op.Index)
			idx := regVal(vs, fr, op.A).U32()
			if idx >= uint32(len(t.Elements)) {
				return nil, value.TrapCodeTableOutOfBounds, nil
			}
			t.Elements[idx] = regVal(vs, fr, op.B)
			fr.ip++
			continue
		case wazeroir.OpKindTableSize:
			t := cache.table(store, op.Index)
			vs.set(fr.start+int(op.Result), value.FromI32(int32(len(t.Elements))))
			fr.ip++
			continue
		case wazeroir.OpKindTableGrow:
			t := store.Table(fr.instance.Tables[op.Index])
			prev, ok := growTable(t, regVal(vs, fr, op.B).U32(), regVal(vs, fr, op.A))
			if !ok {
				vs.set(fr.start+int(op.Result), value.FromI32(-1))
			} else {
				vs.set(fr.start+int(op.Result), value.FromI32(int32(prev)))
			}
			fr.ip++
			continue
		case wazeroir.OpKindTableFill:
			t := store.Table(fr.instance.Tables[op.Index])
			tc := tableFill(t, regVal(vs, fr, op.A).U32(), regVal(vs, fr, op.B), regVal(vs, fr, op.C).U32())
			if tc != 0 {
				return nil, tc, nil
			}
			fr.ip++
			continue
		case wazeroir.OpKindTableCopy:
			dst := store.Table(fr.instance.Tables[op.Index])
			src := store.Table(fr.instance.Tables[op.Index2])
			tc := tableCopy(dst, src, regVal(vs, fr, op.A).U32(), regVal(vs, fr, op.B).U32(), regVal(vs, fr, op.C).U32())
			if tc != 0 {
				return nil, tc, nil
			}
			fr.ip++
			continue
		case wazeroir.OpKindTableInit:
			elem := store.ElemSeg(fr.instance.Elements[op.Index])
			t := store.Table(fr.instance.Tables[op.Index2])
			tc := tableInit(t, elem, regVal(vs, fr, op.A).U32(), regVal(vs, fr, op.B).U32(), regVal(vs, fr, op.C).U32())
			if tc != 0 {
				return nil, tc, nil
			}
			fr.ip++
			continue
		case wazeroir.OpKindElemDrop:
			store.ElemSeg(fr.instance.Elements[op.Index]).Dropped = true
			fr.ip++
			continue
		case wazeroir.OpKindRefFunc:
			vs.set(fr.start+int(op.Result), wasm.EncodeFuncRef(fr.instance.Funcs[op.Index]))
			fr.ip++
			continue
		case wazeroir.OpKindRefNull:
			vs.set(fr.start+int(op.Result), value.FromRef(0))
			fr.ip++
			continue
		case wazeroir.OpKindRefIsNull:
			vs.set(fr.start+int(op.Result), value.FromBool(regVal(vs, fr, op.A).IsNullRef()))
			fr.ip++
			continue

		case wazeroir.OpKindCallInternal, wazeroir.OpKindCallImported:
			fe := cache.funcEntity(store, op.CalleeFunc)
			if err := e.doCall(ctx, store, vs, cs, cache, fr, fe, op.Params[0], op.ResultSpan); err != nil {
				if tc, isTrap := asTrap(err); isTrap {
					return nil, tc, nil
				}
				return nil, 0, err
			}
			continue
		case wazeroir.OpKindCallIndirect:
			fe, tc := resolveIndirect(vs, store, cache, fr, op)
			if tc != 0 {
				return nil, tc, nil
			}
			if err := e.doCall(ctx, store, vs, cs, cache, fr, fe, op.Params[0], op.ResultSpan); err != nil {
				if tc, isTrap := asTrap(err); isTrap {
					return nil, tc, nil
				}
				return nil, 0, err
			}
			continue

		case wazeroir.OpKindReturnCallInternal, wazeroir.OpKindReturnCallImported:
			fe := cache.funcEntity(store, op.CalleeFunc)
			done, vals, err := e.doTailCall(ctx, store, vs, cache, fr, fe, op.Params[0])
			if err != nil {
				if tc, isTrap := asTrap(err); isTrap {
					return nil, tc, nil
				}
				return nil, 0, err
			}
			if done {
				if !returnValues(vs, cs, cache, store, fr.resultBase, vals) {
					return vals, 0, nil
				}
			}
			continue
		case wazeroir.OpKindReturnCallIndirect:
			fe, tc := resolveIndirect(vs, store, cache, fr, op)
			if tc != 0 {
				return nil, tc, nil
			}
			done, vals, err := e.doTailCall(ctx, store, vs, cache, fr, fe, op.Params[0])
			if err != nil {
				if tc, isTrap := asTrap(err); isTrap {
					return nil, tc, nil
				}
				return nil, 0, err
			}
			if done {
				if !returnValues(vs, cs, cache, store, fr.resultBase, vals) {
					return vals, 0, nil
				}
			}
			continue

		case wazeroir.OpKindReturn, wazeroir.OpKindReturnReg, wazeroir.OpKindReturnImm32,
			wazeroir.OpKindReturnReg2, wazeroir.OpKindReturnReg3,
			wazeroir.OpKindReturnSpan, wazeroir.OpKindReturnMany:
			vals := gatherReturn(vs, fr, op)
			if !returnValues(vs, cs, cache, store, fr.resultBase, vals) {
				return vals, 0, nil
			}
			continue

		case wazeroir.OpKindReturnIfNez, wazeroir.OpKindReturnRegIfNez, wazeroir.OpKindReturnImm32IfNez:
			if !regVal(vs, fr, op.A).Bool() {
				fr.ip++
				continue
			}
			vals := gatherReturn(vs, fr, op)
			if !returnValues(vs, cs, cache, store, fr.resultBase, vals) {
				return vals, 0, nil
			}
			continue

		default:
			return nil, 0, fmt.Errorf("interpreter: unhandled op kind %d", op.Kind)
		}
	}
}

// regVal resolves r against the current frame: non-negative registers
// index the shared value stack at fr.start+r, negative registers index
// the compiled function's constant pool at -1-r (encoder.go's convention).
func regVal(vs *valueStack, fr *frame, r wazeroir.Register) value.UntypedVal {
	if r >= 0 {
		return vs.get(fr.start + int(r))
	}
	return fr.compiled.ConstPool[-1-int(r)]
}

func evalFusedCmp(vs *valueStack, fr *frame, op *wazeroir.Op) value.UntypedVal {
	a := regVal(vs, fr, op.A)
	var b value.UntypedVal
	if op.BIsImm {
		b = value.UntypedVal(op.Imm64)
	} else {
		b = regVal(vs, fr, op.B)
	}
	return wasm.EvalBinary(op.Numeric, a, b)
}

// gatherReturn collects the registers a Return* op specifies, resolved to
// concrete values in frame-relative order.
func gatherReturn(vs *valueStack, fr *frame, op *wazeroir.Op) []value.UntypedVal {
	switch op.Kind {
	case wazeroir.OpKindReturn:
		return nil
	case wazeroir.OpKindReturnImm32, wazeroir.OpKindReturnImm32IfNez:
		return []value.UntypedVal{value.FromI32(op.Imm32)}
	case wazeroir.OpKindReturnReg:
		return []value.UntypedVal{regVal(vs, fr, op.A)}
	case wazeroir.OpKindReturnRegIfNez:
		// A holds the already-tested condition; the returned value is in B.
		return []value.UntypedVal{regVal(vs, fr, op.B)}
	case wazeroir.OpKindReturnReg2:
		return []value.UntypedVal{regVal(vs, fr, op.A), regVal(vs, fr, op.B)}
	case wazeroir.OpKindReturnReg3:
		return []value.UntypedVal{regVal(vs, fr, op.A), regVal(vs, fr, op.B), regVal(vs, fr, op.C)}
	case wazeroir.OpKindReturnSpan:
		out := make([]value.UntypedVal, op.ResultSpan.Len)
		for i := range out {
			out[i] = regVal(vs, fr, op.ResultSpan.At(uint16(i)))
		}
		return out
	case wazeroir.OpKindReturnMany:
		out := make([]value.UntypedVal, len(op.Params))
		for i, r := range op.Params {
			out[i] = regVal(vs, fr, r)
		}
		return out
	case wazeroir.OpKindReturnIfNez:
		return nil
	}
	panic("unreachable: non-return op kind passed to gatherReturn")
}

// returnValues publishes vals at the caller's result span (if any remains
// on the call stack) and pops the current frame, reporting whether
// execution should continue in the caller (false means the top-level call
// has returned, and vals is the final result).
func returnValues(vs *valueStack, cs *callStack, cache *instanceCache, store *wasm.Store, resultBase int, vals []value.UntypedVal) bool {
	caller, hasCaller := cs.pop()
	if !hasCaller {
		return false
	}
	for i, v := range vals {
		vs.set(resultBase+i, v)
	}
	cache.updateInstance(store, caller.instance)
	return true
}

// asTrap unwraps err if it is a *TrapError (as doCall and doTailCall
// return on stack overflow); any other error is a suspended host call or a
// genuine failure, handled by the caller.
func asTrap(err error) (value.TrapCode, bool) {
	if te, ok := err.(*TrapError); ok {
		return te.Code, true
	}
	return 0, false
}

// doCall pushes a new frame to invoke fe, or runs it directly if it is a
// host function. On host suspension it returns the host's error so Call
// can build a ResumableCall; the caller's own frame is left untouched.
func (e *Engine) doCall(ctx context.Context, store *wasm.Store, vs *valueStack, cs *callStack, cache *instanceCache, fr *frame, fe *wasm.FuncEntity, argsBase wazeroir.Register, resultSpan wazeroir.RegisterSpan) error {
	argAbsBase := fr.start + int(argsBase)
	resultAbsBase := fr.start + int(resultSpan.Base)

	if fe.IsHost {
		paramCount, resultCount := hostArity(fe, store)
		stack := make([]value.UntypedVal, maxInt(paramCount, resultCount))
		for i := 0; i < paramCount; i++ {
			stack[i] = vs.get(argAbsBase + i)
		}
		if err := e.invokeHost(ctx, store, fe, stack); err != nil {
			return &hostSuspend{fe: fe, err: err, resultBase: resultAbsBase, resultLen: resultCount, popFrame: false}
		}
		for i := 0; i < resultCount; i++ {
			vs.set(resultAbsBase+i, stack[i])
		}
		cache.resetDefaultMemoryBytes(store)
		fr.ip++
		return nil
	}

	inst := store.Instance(fe.Instance)
	compiled := e.CompiledFunc(inst.Module, fe.CompiledIndex)
	if compiled == nil {
		return fmt.Errorf("interpreter: %s's function %d was never compiled", inst.Module.Name, fe.CompiledIndex)
	}

	newStart := fr.start + int(fr.compiled.LenRegisters)
	if !vs.reserve(newStart, int(compiled.LenRegisters)) {
		return &TrapError{Code: value.TrapCodeStackOverflow}
	}
	for i := 0; i < int(compiled.LenParams); i++ {
		vs.set(newStart+i, vs.get(argAbsBase+i))
	}

	fr.ip++ // resume here once the callee returns
	if !cs.push(frame{ip: 0, start: newStart, instance: inst, instanceIdx: fe.Instance,
		resultBase: resultAbsBase, resultLen: resultSpan.Len, compiled: compiled}) {
		return &TrapError{Code: value.TrapCodeStackOverflow}
	}
	cache.updateInstance(store, inst)
	return nil
}

// doTailCall replaces fr in place rather than pushing a new frame when the
// callee is itself module-defined, giving tail-recursive call chains O(1)
// call-stack growth. A host callee can't be
// replaced into (there is no compiled frame to run), so that case runs the
// host function immediately and reports done=true with its results, for
// run's caller to publish at fr.resultBase and pop fr exactly as an
// ordinary Return would -- a tail call to a host function still unwinds
// fr's module-level frame, one level later than a non-tail call would.
func (e *Engine) doTailCall(ctx context.Context, store *wasm.Store, vs *valueStack, cache *instanceCache, fr *frame, fe *wasm.FuncEntity, argsBase wazeroir.Register) (done bool, vals []value.UntypedVal, err error) {
	argAbsBase := fr.start + int(argsBase)

	if fe.IsHost {
		paramCount, resultCount := hostArity(fe, store)
		stack := make([]value.UntypedVal, maxInt(paramCount, resultCount))
		for i := 0; i < paramCount; i++ {
			stack[i] = vs.get(argAbsBase + i)
		}
		if err := e.invokeHost(ctx, store, fe, stack); err != nil {
			return false, nil, &hostSuspend{fe: fe, err: err, resultBase: fr.resultBase, resultLen: int(fr.resultLen), popFrame: true}
		}
		return true, append([]value.UntypedVal(nil), stack[:resultCount]...), nil
	}

	inst := store.Instance(fe.Instance)
	compiled := e.CompiledFunc(inst.Module, fe.CompiledIndex)
	if compiled == nil {
		return false, nil, fmt.Errorf("interpreter: %s's function %d was never compiled", inst.Module.Name, fe.CompiledIndex)
	}

	paramCount := int(compiled.LenParams)
	tmp := make([]value.UntypedVal, paramCount)
	for i := 0; i < paramCount; i++ {
		tmp[i] = vs.get(argAbsBase + i)
	}
	if !vs.reserve(fr.start, int(compiled.LenRegisters)) {
		return false, nil, &TrapError{Code: value.TrapCodeStackOverflow}
	}
	for i, v := range tmp {
		vs.set(fr.start+i, v)
	}

	fr.ip = 0
	fr.instance = inst
	fr.instanceIdx = fe.Instance
	fr.compiled = compiled
	cache.updateInstance(store, inst)
	return false, nil, nil
}

func hostArity(fe *wasm.FuncEntity, store *wasm.Store) (params, results int) {
	inst := store.Instance(fe.Instance)
	ft := inst.Module.Types.At(fe.Type)
	return len(ft.Params), len(ft.Results)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// resolveIndirect performs the call_indirect/return_call_indirect table
// lookup and signature check: TableOutOfBounds if
// the index doesn't fit the table, IndirectCallToNull if the slot holds no
// function, BadSignature if the callee's concrete type doesn't
// structurally match the expected type named by op.CalleeType in the
// calling module's own type table.
func resolveIndirect(vs *valueStack, store *wasm.Store, cache *instanceCache, fr *frame, op *wazeroir.Op) (*wasm.FuncEntity, value.TrapCode) {
	t := cache.table(store, op.Index)
	idx := regVal(vs, fr, op.A).U32()
	if idx >= uint32(len(t.Elements)) {
		return nil, value.TrapCodeTableOutOfBounds
	}
	handle, ok := store.DecodeFuncRef(t.Elements[idx])
	if !ok {
		return nil, value.TrapCodeIndirectCallToNull
	}
	fe := store.Func(handle)
	expected := fr.instance.Module.Types.At(wasm.TypeIndex(op.CalleeType))
	actual := store.Instance(fe.Instance).Module.Types.At(fe.Type)
	if !actual.EqualTo(expected) {
		return nil, value.TrapCodeBadSignature
	}
	return fe, 0
}
