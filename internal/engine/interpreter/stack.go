package interpreter

import (
	"github.com/corewasm/corewasm/internal/value"
	"github.com/corewasm/corewasm/internal/wasm"
	"github.com/corewasm/corewasm/internal/wazeroir"
)

// StackLimits bounds the two stacks an execution may grow to. Exceeding
// either traps with TrapCodeStackOverflow rather than growing without
// bound or letting the Go runtime's own stack absorb unbounded Wasm
// recursion.
type StackLimits struct {
	MaxValueStackHeight int
	MaxRecursionDepth   int
}

// DefaultStackLimits is generous enough for real programs while still
// well short of exhausting host memory.
func DefaultStackLimits() StackLimits {
	return StackLimits{
		MaxValueStackHeight: 1 << 20,
		MaxRecursionDepth:   1 << 16,
	}
}

// valueStack is the flat array of value cells backing every live frame's
// register file. Cells are never reclaimed mid-execution: a frame's range
// is simply abandoned once
// its callee-chain unwinds past it, and the whole backing array is reset
// between top-level Engine.Call invocations. This trades peak memory for
// never having to prove a freed range isn't still aliased by some other
// frame's dangling Register -- see DESIGN.md.
type valueStack struct {
	cells []value.UntypedVal
	limit int
}

func newValueStack(limit int) *valueStack {
	return &valueStack{limit: limit}
}

func (s *valueStack) reset() {
	s.cells = s.cells[:0]
}

// reserve grows the stack so that [start, start+n) is valid, zero-filling
// the new cells, and reports a StackOverflow trap if that would exceed the
// configured limit.
func (s *valueStack) reserve(start, n int) (ok bool) {
	need := start + n
	if need > s.limit {
		return false
	}
	if need > len(s.cells) {
		grown := make([]value.UntypedVal, need)
		copy(grown, s.cells)
		s.cells = grown
	}
	// The whole span is zeroed, not just the freshly appended cells: the
	// range below the old length may still hold values left behind by an
	// earlier, since-returned callee occupying the same offsets.
	for i := start; i < need; i++ {
		s.cells[i] = 0
	}
	return true
}

func (s *valueStack) get(i int) value.UntypedVal  { return s.cells[i] }
func (s *valueStack) set(i int, v value.UntypedVal) { s.cells[i] = v }

// frame is one live call's activation record. start and resultBase/resultLen
// are absolute indices into the shared valueStack, already resolved from
// the caller's frame-relative registers at push time so the dispatch loop
// never needs to chase a caller pointer to find where to publish results.
type frame struct {
	ip          int
	start       int
	instance    *wasm.Instance
	instanceIdx wasm.InstanceIdx
	resultBase  int
	resultLen   uint16
	compiled    *wazeroir.CompilationResult
}

// callStack is the explicit frame stack, capped at MaxRecursionDepth.
type callStack struct {
	frames []frame
	limit  int
}

func newCallStack(limit int) *callStack {
	return &callStack{limit: limit}
}

func (c *callStack) reset() {
	c.frames = c.frames[:0]
}

func (c *callStack) len() int { return len(c.frames) }

func (c *callStack) top() *frame { return &c.frames[len(c.frames)-1] }

// push appends a new frame, failing with ok=false (StackOverflow) if the
// recursion depth limit would be exceeded.
func (c *callStack) push(f frame) (ok bool) {
	if len(c.frames) >= c.limit {
		return false
	}
	c.frames = append(c.frames, f)
	return true
}

// pop discards the top frame, returning the frame beneath it and whether
// one still exists.
func (c *callStack) pop() (caller *frame, hasCaller bool) {
	c.frames = c.frames[:len(c.frames)-1]
	if len(c.frames) == 0 {
		return nil, false
	}
	return c.top(), true
}
