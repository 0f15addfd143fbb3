package interpreter

import (
	"context"
	"fmt"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/value"
	"github.com/corewasm/corewasm/internal/wasm"
)

// hostSuspend wraps a host-function-originated error together with enough
// state to resume the call later, captured at the exact point invokeHost
// failed. Wrapping it here (rather than threading extra return values
// through doCall/doTailCall/run) lets Engine.Call build a
// ResumableInvocation no matter how deep the suspending host call was.
type hostSuspend struct {
	fe         *wasm.FuncEntity // the host function that suspended
	err        error
	resultBase int  // absolute valueStack index the continuation writes to
	resultLen  int  // how many result cells host_func declares
	popFrame   bool // true for a tail-call suspension: continuing pops a frame
}

func (h *hostSuspend) Error() string { return h.err.Error() }
func (h *hostSuspend) Unwrap() error { return h.err }

// ResumableCall is returned by Engine.Call in place of a normal result
// when a host function fails mid-execution. The embedder may discard it
// (its stacks are reclaimed by the garbage collector) or call Resume to
// continue.
type ResumableCall struct {
	Invocation *ResumableInvocation
}

// ResumableInvocation is the suspended execution state: the engine, the
// stacks, the trapping host function, and the error it raised.
// HostResultTypes is what Resume's inputs must match; RootResultTypes is
// what the eventual final outputs must match.
type ResumableInvocation struct {
	engine *Engine
	store  *wasm.Store
	vs     *valueStack
	cs     *callStack
	cache  *instanceCache

	HostFunc        *wasm.FuncEntity
	HostError       error
	HostResultTypes []byte
	RootResultTypes []byte

	resultBase int
	resultLen  int
	popFrame   bool

	consumed bool
}

func newResumableCall(e *Engine, store *wasm.Store, vs *valueStack, cs *callStack, cache *instanceCache, rootResults []byte, susp *hostSuspend) *ResumableCall {
	hostFT := store.Instance(susp.fe.Instance).Module.Types.At(susp.fe.Type)
	return &ResumableCall{Invocation: &ResumableInvocation{
		engine:          e,
		store:           store,
		vs:              vs,
		cs:              cs,
		cache:           cache,
		HostFunc:        susp.fe,
		HostError:       susp.err,
		HostResultTypes: hostFT.Results,
		RootResultTypes: rootResults,
		resultBase:      susp.resultBase,
		resultLen:       susp.resultLen,
		popFrame:        susp.popFrame,
	}}
}

// Resume validates inputs against the suspended host function's declared
// result types and outputs against the root invocation's result types, in
// that order, before touching the stack, then writes inputs into the
// caller's result slots and continues the dispatch loop.
// A nil returned *ResumableCall with a nil error means the invocation ran
// to completion and outputs holds the final results; a non-nil
// *ResumableCall means it suspended again on another host error.
func (inv *ResumableInvocation) Resume(ctx context.Context, inputs []api.TypedVal, outputs []uint64) (*ResumableCall, error) {
	if inv.consumed {
		return nil, fmt.Errorf("interpreter: resumable invocation already consumed")
	}
	if len(inputs) != len(inv.HostResultTypes) {
		return nil, fmt.Errorf("interpreter: resume inputs: %w", wasm.FuncErrorMismatchingParameterLen)
	}
	for i, in := range inputs {
		if in.Type != inv.HostResultTypes[i] {
			return nil, fmt.Errorf("interpreter: resume input %d is %s, want %s: %w",
				i, api.ValueTypeName(in.Type), api.ValueTypeName(inv.HostResultTypes[i]), wasm.FuncErrorMismatchingParameterType)
		}
	}
	if len(outputs) != len(inv.RootResultTypes) {
		return nil, fmt.Errorf("interpreter: resume outputs: %w", wasm.FuncErrorMismatchingResultLen)
	}
	inv.consumed = true

	vals := make([]value.UntypedVal, len(inputs))
	for i, v := range inputs {
		vals[i] = value.UntypedVal(v.Value)
	}

	if inv.popFrame {
		if inv.cs.len() == 0 {
			copy(outputs, inputsAsU64(vals))
			return nil, nil
		}
		for i, v := range vals {
			inv.vs.set(inv.resultBase+i, v)
		}
		caller, hasCaller := inv.cs.pop()
		if !hasCaller {
			copy(outputs, inputsAsU64(vals))
			return nil, nil
		}
		inv.cache.updateInstance(inv.store, caller.instance)
	} else {
		fr := inv.cs.top()
		for i, v := range vals {
			inv.vs.set(inv.resultBase+i, v)
		}
		inv.cache.resetDefaultMemoryBytes(inv.store)
		fr.ip++
	}

	if inv.cs.len() == 0 {
		// The resumed call had no remaining frames to drive (the trapping
		// host function itself was the root invocation).
		copy(outputs, inputsAsU64(vals))
		return nil, nil
	}

	results, trap, hostErr := inv.engine.run(ctx, inv.store, inv.vs, inv.cs, inv.cache)
	if hostErr != nil {
		if susp, ok := hostErr.(*hostSuspend); ok {
			return newResumableCall(inv.engine, inv.store, inv.vs, inv.cs, inv.cache, inv.RootResultTypes, susp), nil
		}
		return nil, hostErr
	}
	if trap != 0 {
		return nil, &TrapError{Code: trap}
	}
	copy(outputs, untypedToUint64(results))
	return nil, nil
}

func inputsAsU64(vals []value.UntypedVal) []uint64 {
	out := make([]uint64, len(vals))
	for i, v := range vals {
		out[i] = v.U64()
	}
	return out
}
