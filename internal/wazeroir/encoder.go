package wazeroir

import (
	"github.com/corewasm/corewasm/internal/value"
	"github.com/corewasm/corewasm/internal/wasm"
)

// constPool is the function-local constant table. Constants are addressed
// by negative Register: slot -1 is the first constant, slot -2 the second,
// etc. Equal values are deduplicated so a function that uses the same
// literal many times only pays for one pool entry.
type constPool struct {
	values []value.UntypedVal
	index  map[value.UntypedVal]Register
}

func (p *constPool) intern(v value.UntypedVal) Register {
	if p.index == nil {
		p.index = make(map[value.UntypedVal]Register)
	}
	if reg, ok := p.index[v]; ok {
		return reg
	}
	slot := len(p.values)
	p.values = append(p.values, v)
	reg := Register(-1 - slot)
	p.index[v] = reg
	return reg
}

func (p *constPool) reset() {
	p.values = p.values[:0]
	for k := range p.index {
		delete(p.index, k)
	}
}

// fusionState tracks the single most recently appended Op so the encoder
// can recognize a handful of two-instruction patterns (cmp+branch,
// cmp+select, local.set/tee-of-fresh-value) and collapse them into one Op.
// Cleared at every control-flow boundary: branch targets, block start/end,
// loop headers, and function entry.
type fusionState struct {
	valid   bool
	index   Instr
	numeric wasm.NumericOp // meaningful only if isCmp
	isCmp   bool
	a, b    Register
	bIsImm  bool
	bImm    int64
	result  Register
}

// Encoder accumulates a function's Op buffer and constant pool while the
// compiler walks the decoded instruction stream, and owns the fusion
// bookkeeping the compiler consults before appending a branch, select, or
// local write. Kept as its own type, separate from RegisterAlloc and
// ProviderStack, so each stays independently testable.
type Encoder struct {
	ops   []Op
	pool  constPool
	fused fusionState
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Reset discards all state to start translating a new function.
func (e *Encoder) Reset() {
	e.ops = e.ops[:0]
	e.pool.reset()
	e.fused = fusionState{}
}

// Here returns the Instr that the next Append will occupy.
func (e *Encoder) Here() Instr { return Instr(len(e.ops)) }

// ResetFusion clears the last-op memo. Called at every control-flow
// boundary: branch targets, block/loop/if entry, else, end, and function
// entry.
func (e *Encoder) ResetFusion() { e.fused = fusionState{} }

// ConstRegister interns v into the constant pool and returns its (negative)
// Register.
func (e *Encoder) ConstRegister(v value.UntypedVal) Register {
	return e.pool.intern(v)
}

// Append adds op to the buffer and returns its position. It also updates
// the fusion memo: a binary numeric comparison becomes the fusion
// candidate; every other op clears the memo, since only an *immediately*
// preceding op is eligible for fusion.
func (e *Encoder) Append(op Op) Instr {
	pos := e.Here()
	e.ops = append(e.ops, op)
	e.updateFusionMemo(pos, op)
	return pos
}

func (e *Encoder) updateFusionMemo(pos Instr, op Op) {
	switch op.Kind {
	case OpKindNumericBinary, OpKindNumericTrapBinary:
		if isComparison(op.Numeric) {
			e.fused = fusionState{valid: true, index: pos, numeric: op.Numeric, isCmp: true, a: op.A, b: op.B, result: op.Result}
			return
		}
	}
	e.fused = fusionState{}
}

// isComparison reports whether op is one of the NumericOp comparisons
// branch/select fusion can consume (everything from NumI32Eqz through
// NumF64Ge in the NumericOp enum).
func isComparison(op wasm.NumericOp) bool {
	return op <= wasm.NumF64Ge
}

// negateComparison returns the NumericOp testing the opposite condition,
// used to fuse a comparison into an `if`'s else-edge BranchCmp, which is
// taken when the comparison is false.
func negateComparison(op wasm.NumericOp) (wasm.NumericOp, bool) {
	switch op {
	case wasm.NumI32Eq:
		return wasm.NumI32Ne, true
	case wasm.NumI32Ne:
		return wasm.NumI32Eq, true
	case wasm.NumI32LtS:
		return wasm.NumI32GeS, true
	case wasm.NumI32LtU:
		return wasm.NumI32GeU, true
	case wasm.NumI32GtS:
		return wasm.NumI32LeS, true
	case wasm.NumI32GtU:
		return wasm.NumI32LeU, true
	case wasm.NumI32LeS:
		return wasm.NumI32GtS, true
	case wasm.NumI32LeU:
		return wasm.NumI32GtU, true
	case wasm.NumI32GeS:
		return wasm.NumI32LtS, true
	case wasm.NumI32GeU:
		return wasm.NumI32LtU, true
	case wasm.NumI64Eq:
		return wasm.NumI64Ne, true
	case wasm.NumI64Ne:
		return wasm.NumI64Eq, true
	case wasm.NumI64LtS:
		return wasm.NumI64GeS, true
	case wasm.NumI64LtU:
		return wasm.NumI64GeU, true
	case wasm.NumI64GtS:
		return wasm.NumI64LeS, true
	case wasm.NumI64GtU:
		return wasm.NumI64LeU, true
	case wasm.NumI64LeS:
		return wasm.NumI64GtS, true
	case wasm.NumI64LeU:
		return wasm.NumI64GtU, true
	case wasm.NumI64GeS:
		return wasm.NumI64LtS, true
	case wasm.NumI64GeU:
		return wasm.NumI64LtU, true
	}
	// Float comparisons have no safe negation under IEEE-754 (NaN makes
	// every ordered comparison false, so `!lt` is not `ge`); the fusion
	// candidate is simply skipped for those, falling back to an explicit
	// eqz + generic branch.
	return 0, false
}

// TryFuseComparisonBranch inspects whether cond is exactly the result of
// the immediately preceding comparison op, not already written to an
// observable local. If so it removes that Op from the buffer and returns
// the comparison's operands so the caller can emit a single BranchCmp
// instead of [cmp, branch]. invertEqz requests the negated comparator, for
// a branch taken when the comparison is false (an `if`'s else-edge).
func (e *Encoder) TryFuseComparisonBranch(cond Register, invertEqz bool) (numeric wasm.NumericOp, a, b Register, bIsImm bool, bImm int64, ok bool) {
	f := e.fused
	if !f.valid || !f.isCmp || f.result != cond || f.index != e.Here()-1 {
		return 0, 0, 0, false, 0, false
	}
	numeric, a, b, bIsImm, bImm = f.numeric, f.a, f.b, f.bIsImm, f.bImm
	if invertEqz {
		neg, hasNeg := negateComparison(numeric)
		if !hasNeg {
			return 0, 0, 0, false, 0, false
		}
		numeric = neg
	}
	// A right-hand operand that the comparison materialized into the
	// constant pool folds into the fused op as an inline immediate; the
	// pool entry stays behind, possibly unreferenced.
	if !bIsImm && b < 0 {
		bImm = int64(e.pool.values[-1-int(b)].U64())
		bIsImm = true
	}
	e.truncateLast()
	return numeric, a, b, bIsImm, bImm, true
}

// truncateLast removes the most recently appended Op, used when fusion
// folds it into its consumer. RegisterAlloc must also release the register
// that Op's result occupied; the compiler does that via PopDynamic before
// calling this, since only it knows whether the result register was
// dynamic.
func (e *Encoder) truncateLast() {
	e.ops = e.ops[:len(e.ops)-1]
	e.fused = fusionState{}
}

// LastOpWroteFreshResult reports whether the immediately preceding Op
// produced exactly one fresh (non-local) result in reg, returning its
// position so the caller (encoding local.set/local.tee) can relink that
// Op's Result field directly to the target local instead of emitting a
// copy.
func (e *Encoder) LastOpWroteFreshResult(reg Register) (pos Instr, ok bool) {
	if len(e.ops) == 0 || e.Here()-1 < 0 {
		return 0, false
	}
	pos = e.Here() - 1
	op := &e.ops[pos]
	switch op.Kind {
	case OpKindNumericUnary, OpKindNumericBinary, OpKindNumericTrapUnary, OpKindNumericTrapBinary,
		OpKindCopy, OpKindCopyImm32, OpKindCopyImm64, OpKindSelect, OpKindSelectCmp:
		if op.Result == reg {
			return pos, true
		}
	}
	return 0, false
}

// RelinkResult rewrites the Result field of the Op at pos to newReg. Used
// by result-relinking fusion once the caller has verified eligibility via
// LastOpWroteFreshResult.
func (e *Encoder) RelinkResult(pos Instr, newReg Register) {
	e.ops[pos].Result = newReg
	if pos == e.Here()-1 {
		e.fused = fusionState{}
	}
}

// SetImm32 overwrites the Imm32 field of the Op at pos, used to seal a
// ConsumeFuel marker's cost once the extent of the ops it covers is known.
func (e *Encoder) SetImm32(at Instr, v int32) {
	e.ops[at].Imm32 = v
}

// PatchBrOffset fills in the branch delta for a forward branch once its
// target address is known: delta is relative to the position immediately
// after at.
func (e *Encoder) PatchBrOffset(at Instr, target Instr) {
	e.ops[at].BrOffset = int32(target) - int32(at) - 1
}

// PatchBrTableArm fills in one arm of a br_table's BrTargets once that
// arm's target address is known.
func (e *Encoder) PatchBrTableArm(at Instr, arm int, target Instr) {
	e.ops[at].BrTargets[arm] = int32(target) - int32(at) - 1
}

// Finish returns the accumulated Op buffer and constant pool as fresh
// slices. Copies are required, not an optimization opportunity: the
// encoder's internal buffers are reused for the module's next function,
// while the returned CompilationResult must stay immutable for the
// engine's lifetime.
func (e *Encoder) Finish() ([]Op, []value.UntypedVal) {
	ops := make([]Op, len(e.ops))
	copy(ops, e.ops)
	pool := make([]value.UntypedVal, len(e.pool.values))
	copy(pool, e.pool.values)
	return ops, pool
}
