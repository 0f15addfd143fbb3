package wazeroir

import (
	"fmt"

	"github.com/corewasm/corewasm/api"
	"github.com/corewasm/corewasm/internal/value"
	"github.com/corewasm/corewasm/internal/wasm"
)

// Compiler lowers one decoded function body into a CompilationResult. The
// decoded instruction stream drives a ProviderStack + RegisterAlloc through
// a visitor that emits Ops via an Encoder.
//
// A Compiler instance is reusable across functions via Reset, amortizing
// its scratch buffers across a whole module's function bodies.
//
// One intentional simplification: `if` conditions are never
// constant-folded into a dead-arm elimination. Both arms are always
// emitted, with the conditional branch (fused with a preceding comparison
// where possible) deciding at run time, even when the provider stack
// already knows the condition is a constant. This drops a minor code-size
// optimization in exchange for not having to track which of two arms is
// statically unreachable; see DESIGN.md.
type Compiler struct {
	module *wasm.Module

	enc *Encoder
	ps  *ProviderStack
	ra  *RegisterAlloc

	frames []controlFrame

	// deadDepth counts block/loop/if constructs opened inside dead code,
	// so their ends are skipped instead of closing a live frame.
	deadDepth int

	features    wasm.Features
	fuelEnabled bool

	// fuelHead is the most recently emitted ConsumeFuel marker, whose cost
	// stays provisional until the next marker (or the function's end)
	// reveals how many ops it covers.
	fuelHead  Instr
	fuelValid bool
}

// NewCompiler returns a Compiler bound to module, used to resolve call
// targets, type signatures, and global/table/memory descriptors while
// translating any of its functions. features selects which optional
// proposals' instructions are accepted; fuelEnabled controls whether
// OpKindConsumeFuel markers are emitted at function/loop entry.
func NewCompiler(module *wasm.Module, features wasm.Features, fuelEnabled bool) *Compiler {
	return &Compiler{
		module:      module,
		enc:         NewEncoder(),
		ps:          NewProviderStack(),
		ra:          NewRegisterAlloc(),
		features:    features,
		fuelEnabled: fuelEnabled,
	}
}

// controlKind distinguishes the three structured control constructs.
type controlKind byte

const (
	ctrlBlock controlKind = iota
	ctrlLoop
	ctrlIf
)

// branchFixup is an as-yet-unresolved branch target: either the BrOffset
// field of a simple branch Op, or one arm of a br_table's BrTargets.
type branchFixup struct {
	op  Instr
	arm int // -1 for a simple branch; >=0 indexes a br_table's BrTargets
}

// controlFrame is one entry of the compiler's control-flow stack, tracking
// everything needed to resolve branches targeting this construct and to
// restore translation state at `end`.
type controlFrame struct {
	kind controlKind

	blockType blockTypeInfo

	// header is the Instr a `loop`'s backward branches jump to; unused for
	// block/if.
	header Instr

	// stackHeightAtEntry is the provider-stack height when this frame was
	// entered (after consuming the construct's declared parameters),
	// restored at `end`/`else` so its own intermediate pushes don't leak
	// to the parent.
	stackHeightAtEntry int

	// results holds the registers the construct's result values are
	// merged into; every branch or fallthrough path writes its yielded
	// values here before jumping to/falling into `end`.
	results RegisterSpan

	// params holds the construct's declared parameters, captured at entry
	// so an `if` with no `else` can re-play them as the implicit identity
	// else-arm's result values.
	params []TypedProvider

	// fixups are the as-yet-unresolved forward branches that jump to this
	// frame's `end`.
	fixups []branchFixup

	// unreachable is true once a terminal instruction (unreachable, br,
	// br_table, return, a tail call) has been translated within the
	// current arm; further instructions up to the next `else`/`end` are
	// dead code and are skipped rather than lowered.
	unreachable bool

	// elseFixup/hasElseFixup describe the conditional branch an `if`
	// emitted to skip its then-arm; sawElse records whether an explicit
	// `else` was encountered, versus needing a synthesized identity arm.
	elseFixup    Instr
	hasElseFixup bool
	sawElse      bool
}

type blockTypeInfo struct {
	params  []api.ValueType
	results []api.ValueType
}

func blockTypeOf(module *wasm.Module, bt int64) blockTypeInfo {
	switch {
	case bt == -1:
		return blockTypeInfo{}
	case bt >= 0 && bt < 0x80:
		// A single value type cast to int64, per Instr.BlockType's doc
		// comment.
		return blockTypeInfo{results: []api.ValueType{api.ValueType(bt)}}
	default:
		ft := module.Types.At(wasm.TypeIndex(bt))
		return blockTypeInfo{params: ft.Params, results: ft.Results}
	}
}

// CompileFunction translates one function body, given its already-decoded
// instruction stream and declared locals (beyond its parameters). idx
// identifies the function within the owning module, used for recursive
// call-site resolution and error messages.
func (c *Compiler) CompileFunction(idx wasm.FuncIndex, fn *wasm.LocalFunction) (*CompilationResult, error) {
	c.reset()

	ft := c.module.Types.At(fn.Type)
	if len(ft.Results) > 1 {
		if err := c.features.RequireEnabled(wasm.FeatureMultiValue, "function with multiple results"); err != nil {
			return nil, fmt.Errorf("function %d: %w", idx, err)
		}
	}
	numParams := uint32(len(ft.Params))
	numLocals := uint32(len(fn.Locals))

	if err := c.ra.RegisterLocals(numParams + numLocals); err != nil {
		return nil, fmt.Errorf("function %d: %w", idx, err)
	}
	c.ps.RegisterLocals(numParams + numLocals)
	c.ra.FinishLocals()

	for i := uint32(0); i < numParams; i++ {
		c.ps.PushLocal(Register(i))
	}
	// Declared locals default to zero; the executor pre-zeros the frame,
	// so no initialization Ops are needed here.

	c.emitConsumeFuel()

	// The implicit outermost block, whose `end` is the function's implicit
	// return point. Unlike nested constructs it reserves no result span:
	// every branch targeting it is lowered as a return reading straight off
	// the provider stack, so there is no merge point to copy into. Only
	// results.Len is meaningful here.
	c.pushFrame(controlFrame{
		kind:               ctrlBlock,
		results:            RegisterSpan{Len: uint16(len(ft.Results))},
		stackHeightAtEntry: c.ps.Len(),
	})

	for _, instr := range fn.Body {
		if err := c.translateInstr(instr); err != nil {
			return nil, fmt.Errorf("function %d: %w", idx, err)
		}
	}
	if len(c.frames) != 0 {
		return nil, fmt.Errorf("function %d: missing terminating end", idx)
	}
	c.sealFuel()

	c.ra.FinalizeAlloc()
	c.defragment()

	ops, pool := c.enc.Finish()
	return &CompilationResult{
		Ops:          ops,
		ConstPool:    pool,
		LenRegisters: c.ra.LenRegisters(),
		LenParams:    uint16(numParams),
		LenResults:   uint16(len(ft.Results)),
	}, nil
}

func (c *Compiler) reset() {
	c.enc.Reset()
	c.ps.Reset()
	c.ra.Reset()
	c.frames = c.frames[:0]
	c.deadDepth = 0
	c.fuelValid = false
}

// emitConsumeFuel seals the previous fuel marker and opens a new one.
// Each marker's final cost is the number of ops between it and the next
// marker (or the function's end), charging every path through the region
// at least its true op count; paths that branch out early are overcharged
// rather than any path being undercharged.
func (c *Compiler) emitConsumeFuel() {
	if !c.fuelEnabled {
		return
	}
	c.sealFuel()
	c.fuelHead = c.enc.Append(Op{Kind: OpKindConsumeFuel, Imm32: 1})
	c.fuelValid = true
}

func (c *Compiler) sealFuel() {
	if !c.fuelEnabled || !c.fuelValid {
		return
	}
	n := int32(c.enc.Here()) - int32(c.fuelHead)
	if n < 1 {
		n = 1
	}
	c.enc.SetImm32(c.fuelHead, n)
	c.fuelValid = false
}

func (c *Compiler) pushFrame(f controlFrame) { c.frames = append(c.frames, f) }

func (c *Compiler) topFrame() *controlFrame { return &c.frames[len(c.frames)-1] }

func (c *Compiler) frameAt(relativeDepth uint32) *controlFrame {
	return &c.frames[len(c.frames)-1-int(relativeDepth)]
}

// allocResultSpan reserves dynamic registers to hold a construct's merged
// results, so every branch to its `end` can write to the same place.
func (c *Compiler) allocResultSpan(results []api.ValueType) (RegisterSpan, error) {
	if len(results) == 0 {
		return RegisterSpan{}, nil
	}
	return c.ra.PushDynamicN(len(results))
}

// defragment rewrites every storage-space register recorded by the
// RegisterAlloc to its post-defragmentation index. Ops referencing those
// registers were recorded by their defining Instr at PushStorage time;
// here we sweep the whole buffer instead, which is simpler and still
// O(ops) since defragmentation runs once per function.
func (c *Compiler) defragment() {
	for i := range c.enc.ops {
		op := &c.enc.ops[i]
		op.A = c.ra.Defragment(op.A)
		op.B = c.ra.Defragment(op.B)
		op.C = c.ra.Defragment(op.C)
		op.D = c.ra.Defragment(op.D)
		op.Result = c.ra.Defragment(op.Result)
		op.ResultSpan.Base = c.ra.Defragment(op.ResultSpan.Base)
		for j, p := range op.Params {
			op.Params[j] = c.ra.Defragment(p)
		}
	}
}

// translateInstr lowers a single decoded instruction, consulting and
// updating the provider stack, register allocator, control-frame stack,
// and encoder.
func (c *Compiler) translateInstr(ins wasm.Instr) error {
	if c.topFrame().unreachable {
		// Dead code: skip until the else/end that reopens a live arm,
		// tracking nesting so a dead construct's own end isn't mistaken
		// for the live frame's.
		switch ins.Op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			c.deadDepth++
			return nil
		case wasm.OpElse:
			if c.deadDepth > 0 {
				return nil
			}
			return c.translateElse()
		case wasm.OpEnd:
			if c.deadDepth > 0 {
				c.deadDepth--
				return nil
			}
			return c.translateEnd()
		default:
			return nil
		}
	}

	switch ins.Op {
	case wasm.OpUnreachable:
		c.enc.Append(Op{Kind: OpKindUnreachable})
		c.topFrame().unreachable = true
		return nil

	case wasm.OpNop:
		return nil

	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		return c.translateEnter(ins)
	case wasm.OpElse:
		return c.translateElse()
	case wasm.OpEnd:
		return c.translateEnd()

	case wasm.OpBr:
		return c.translateBr(uint32(ins.Imm))
	case wasm.OpBrIf:
		return c.translateBrIf(uint32(ins.Imm))
	case wasm.OpBrTable:
		return c.translateBrTable(ins)
	case wasm.OpReturn:
		return c.emitReturn()

	case wasm.OpCall:
		return c.translateCall(uint32(ins.Imm))
	case wasm.OpCallIndirect:
		return c.translateCallIndirect(ins)
	case wasm.OpReturnCall:
		if err := c.features.RequireEnabled(wasm.FeatureTailCall, "return_call"); err != nil {
			return err
		}
		return c.translateReturnCall(uint32(ins.Imm))
	case wasm.OpReturnCallIndirect:
		if err := c.features.RequireEnabled(wasm.FeatureTailCall, "return_call_indirect"); err != nil {
			return err
		}
		return c.translateReturnCallIndirect(ins)

	case wasm.OpDrop:
		c.ps.PopProvider(c.ra)
		return nil
	case wasm.OpSelect, wasm.OpTypedSelect:
		return c.translateSelect()

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		if ins.Imm < 0 || ins.Imm >= int64(c.ra.LenLocals()) {
			return ErrRegisterOutOfBounds{Register: ins.Imm}
		}
		switch ins.Op {
		case wasm.OpLocalGet:
			c.ps.PushLocal(Register(ins.Imm))
			return nil
		case wasm.OpLocalSet:
			return c.translateLocalSetTee(Register(ins.Imm), false)
		default:
			return c.translateLocalSetTee(Register(ins.Imm), true)
		}

	case wasm.OpGlobalGet:
		return c.translateGlobalGet(uint32(ins.Imm))
	case wasm.OpGlobalSet:
		return c.translateGlobalSet(uint32(ins.Imm))

	case wasm.OpI32Const:
		c.ps.PushConstValue(value.FromI32(int32(ins.Imm)))
		return nil
	case wasm.OpI64Const:
		c.ps.PushConstValue(value.FromI64(ins.Imm))
		return nil
	case wasm.OpF32Const, wasm.OpF64Const:
		c.ps.PushConstValue(value.UntypedVal(ins.ImmF64))
		return nil

	case wasm.OpRefNull, wasm.OpRefIsNull, wasm.OpRefFunc:
		if err := c.features.RequireEnabled(wasm.FeatureReferenceTypes, "reference-typed instruction"); err != nil {
			return err
		}
		switch ins.Op {
		case wasm.OpRefNull:
			c.ps.PushConstValue(value.FromRef(0))
			return nil
		case wasm.OpRefIsNull:
			return c.translateUnaryGeneric(OpKindRefIsNull)
		default:
			return c.translateRefFunc(uint32(ins.Imm))
		}

	case wasm.OpI32Load, wasm.OpI64Load, wasm.OpF32Load, wasm.OpF64Load,
		wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
		wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U,
		wasm.OpI64Load32S, wasm.OpI64Load32U:
		return c.translateLoad(ins)
	case wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
		wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32:
		return c.translateStore(ins)

	case wasm.OpMemorySize:
		return c.translateMemoryNullary(OpKindMemorySize, uint32(ins.Imm))
	case wasm.OpMemoryGrow:
		return c.translateMemoryGrow(uint32(ins.Imm))
	case wasm.OpMemoryFill, wasm.OpMemoryCopy, wasm.OpMemoryInit, wasm.OpDataDrop:
		if err := c.features.RequireEnabled(wasm.FeatureBulkMemoryOperations, "bulk memory instruction"); err != nil {
			return err
		}
		switch ins.Op {
		case wasm.OpMemoryFill:
			return c.translateMemoryFill(uint32(ins.Imm))
		case wasm.OpMemoryCopy:
			return c.translateMemoryCopy(ins)
		case wasm.OpMemoryInit:
			return c.translateMemoryInit(ins)
		default:
			c.enc.Append(Op{Kind: OpKindDataDrop, Index: uint32(ins.Imm)})
			return nil
		}

	case wasm.OpTableGet, wasm.OpTableSet, wasm.OpTableSize, wasm.OpTableGrow:
		if err := c.features.RequireEnabled(wasm.FeatureReferenceTypes, "table instruction"); err != nil {
			return err
		}
		switch ins.Op {
		case wasm.OpTableGet:
			return c.translateTableGet(uint32(ins.Imm))
		case wasm.OpTableSet:
			return c.translateTableSet(uint32(ins.Imm))
		case wasm.OpTableSize:
			return c.translateTableNullary(OpKindTableSize, uint32(ins.Imm))
		default:
			return c.translateTableGrow(uint32(ins.Imm))
		}
	case wasm.OpTableFill, wasm.OpTableCopy, wasm.OpTableInit, wasm.OpElemDrop:
		if err := c.features.RequireEnabled(wasm.FeatureBulkMemoryOperations, "bulk table instruction"); err != nil {
			return err
		}
		switch ins.Op {
		case wasm.OpTableFill:
			return c.translateTableFill(uint32(ins.Imm))
		case wasm.OpTableCopy:
			return c.translateTableCopy(ins)
		case wasm.OpTableInit:
			return c.translateTableInit(ins)
		default:
			c.enc.Append(Op{Kind: OpKindElemDrop, Index: uint32(ins.Imm)})
			return nil
		}

	case wasm.OpNumeric:
		return c.translateNumeric(ins.Numeric)

	default:
		return fmt.Errorf("unsupported opcode %d", ins.Op)
	}
}

// --- constants & numeric ops ---------------------------------------------

// materialize forces a TypedProvider into a concrete Register, interning it
// in the constant pool if it was an as-yet-unmaterialized immediate.
func (c *Compiler) materialize(p TypedProvider) Register {
	if !p.IsConst {
		return p.Reg
	}
	return c.enc.ConstRegister(p.Const)
}

func (c *Compiler) translateNumeric(op wasm.NumericOp) error {
	info, ok := wasm.NumericOpTable[op]
	if !ok {
		return fmt.Errorf("unknown numeric op %d", op)
	}
	switch {
	case op >= wasm.NumI32Extend8S && op <= wasm.NumI64Extend32S:
		if err := c.features.RequireEnabled(wasm.FeatureSignExtensionOps, "sign-extension instruction"); err != nil {
			return err
		}
	case op >= wasm.NumI32TruncSatF32S && op <= wasm.NumI64TruncSatF64U:
		if err := c.features.RequireEnabled(wasm.FeatureSaturatingFloatToInt, "saturating truncation instruction"); err != nil {
			return err
		}
	}
	switch info.Arity {
	case 1:
		return c.translateNumericUnary(op, info)
	case 2:
		return c.translateNumericBinary(op, info)
	default:
		return fmt.Errorf("numeric op %d: unsupported arity %d", op, info.Arity)
	}
}

func (c *Compiler) translateNumericUnary(op wasm.NumericOp, info wasm.NumericOpInfo) error {
	a := c.ps.PopProvider(c.ra)
	if a.IsConst && !info.Trapping {
		c.ps.PushConstValue(wasm.EvalUnary(op, a.Const))
		return nil
	}
	aReg := c.materialize(a)
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	kind := OpKindNumericUnary
	if info.Trapping {
		kind = OpKindNumericTrapUnary
	}
	c.enc.Append(Op{Kind: kind, Numeric: op, A: aReg, Result: result})
	c.ps.PushDynamic(result)
	return nil
}

func (c *Compiler) translateNumericBinary(op wasm.NumericOp, info wasm.NumericOpInfo) error {
	b := c.ps.PopProvider(c.ra)
	a := c.ps.PopProvider(c.ra)
	if a.IsConst && b.IsConst && !info.Trapping {
		c.ps.PushConstValue(wasm.EvalBinary(op, a.Const, b.Const))
		return nil
	}
	aReg := c.materialize(a)
	bReg := c.materialize(b)
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	kind := OpKindNumericBinary
	if info.Trapping {
		kind = OpKindNumericTrapBinary
	}
	c.enc.Append(Op{Kind: kind, Numeric: op, A: aReg, B: bReg, Result: result})
	c.ps.PushDynamic(result)
	return nil
}

func (c *Compiler) translateUnaryGeneric(kind OpKind) error {
	a := c.materialize(c.ps.PopProvider(c.ra))
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	c.enc.Append(Op{Kind: kind, A: a, Result: result})
	c.ps.PushDynamic(result)
	return nil
}

// --- locals & globals -----------------------------------------------------

func (c *Compiler) translateLocalSetTee(local Register, isTee bool) error {
	var p TypedProvider
	if isTee {
		p = c.ps.PeekTyped()
	} else {
		p = c.ps.PopProvider(c.ra)
	}

	// PreserveLocals must run before the fusion check below, since
	// preserving may rewrite the very provider-stack entry (and hence the
	// Register p names) that check consults. PreserveLocals only relabels
	// the provider-stack entries it finds; the actual value has to be
	// copied into the new storage register here, before local is
	// overwritten below, or every entry it relabeled would read back an
	// uninitialized register.
	if preserved, ok, err := c.ps.PreserveLocals(local, c.ra, c.enc.Here()); err != nil {
		return err
	} else if ok {
		c.enc.Append(Op{Kind: OpKindCopy, A: local, Result: preserved})
	}

	if !p.IsConst {
		if pos, ok := c.enc.LastOpWroteFreshResult(p.Reg); ok && c.ra.IsDynamic(p.Reg) {
			c.enc.RelinkResult(pos, local)
			// For tee the provider was only peeked, so the now-dead fresh
			// register (necessarily the most recent dynamic) is released
			// here; for set, PopProvider already released it.
			if isTee {
				c.ra.PopDynamic()
			}
		} else {
			c.enc.Append(Op{Kind: OpKindCopy, A: p.Reg, Result: local})
		}
	} else if fits32(p.Const) {
		c.enc.Append(Op{Kind: OpKindCopyImm32, Imm32: int32(p.Const.U64()), Result: local})
	} else {
		c.enc.Append(Op{Kind: OpKindCopyImm64, Imm64: int64(p.Const.U64()), Result: local})
	}

	if isTee {
		c.ps.ReplaceTop(tpLocal(local))
	}
	return nil
}

func fits32(v value.UntypedVal) bool {
	u := v.U64()
	return u == uint64(uint32(u)) || u == uint64(int64(int32(u)))
}

func (c *Compiler) translateGlobalGet(idx uint32) error {
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	c.enc.Append(Op{Kind: OpKindGlobalGet, Index: idx, Result: result})
	c.ps.PushDynamic(result)
	return nil
}

func (c *Compiler) translateGlobalSet(idx uint32) error {
	v := c.materialize(c.ps.PopProvider(c.ra))
	c.enc.Append(Op{Kind: OpKindGlobalSet, Index: idx, A: v})
	return nil
}

func (c *Compiler) translateRefFunc(idx uint32) error {
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	c.enc.Append(Op{Kind: OpKindRefFunc, Index: idx, Result: result})
	c.ps.PushDynamic(result)
	return nil
}

// --- select -----------------------------------------------------------

func (c *Compiler) translateSelect() error {
	cond := c.ps.PopProvider(c.ra)
	b := c.ps.PopProvider(c.ra)
	a := c.ps.PopProvider(c.ra)

	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}

	if !cond.IsConst {
		if numeric, x, y, bIsImm, bImm, ok := c.enc.TryFuseComparisonBranch(cond.Reg, false); ok {
			c.enc.Append(Op{Kind: OpKindSelectCmp, Numeric: numeric, A: x, B: y, BIsImm: bIsImm, Imm64: bImm,
				C: c.materialize(a), D: c.materialize(b), Result: result})
			c.ps.PushDynamic(result)
			return nil
		}
	}

	condReg := c.materialize(cond)
	c.enc.Append(Op{Kind: OpKindSelect, A: condReg, B: c.materialize(a), C: c.materialize(b), Result: result})
	c.ps.PushDynamic(result)
	return nil
}

// --- memory ---------------------------------------------------------------

func (c *Compiler) loadStoreTypeOf(op wasm.Opcode) LoadStoreType {
	switch op {
	case wasm.OpI32Load, wasm.OpI32Store:
		return LoadStoreI32
	case wasm.OpI64Load, wasm.OpI64Store:
		return LoadStoreI64
	case wasm.OpF32Load, wasm.OpF32Store:
		return LoadStoreF32
	case wasm.OpF64Load, wasm.OpF64Store:
		return LoadStoreF64
	case wasm.OpI32Load8S:
		return LoadStoreI32_8S
	case wasm.OpI32Load8U, wasm.OpI32Store8:
		return LoadStoreI32_8U
	case wasm.OpI32Load16S:
		return LoadStoreI32_16S
	case wasm.OpI32Load16U, wasm.OpI32Store16:
		return LoadStoreI32_16U
	case wasm.OpI64Load8S:
		return LoadStoreI64_8S
	case wasm.OpI64Load8U, wasm.OpI64Store8:
		return LoadStoreI64_8U
	case wasm.OpI64Load16S:
		return LoadStoreI64_16S
	case wasm.OpI64Load16U, wasm.OpI64Store16:
		return LoadStoreI64_16U
	case wasm.OpI64Load32S:
		return LoadStoreI64_32S
	case wasm.OpI64Load32U, wasm.OpI64Store32:
		return LoadStoreI64_32U
	}
	panic("unreachable: non-memory opcode passed to loadStoreTypeOf")
}

func (c *Compiler) translateLoad(ins wasm.Instr) error {
	addr := c.materialize(c.ps.PopProvider(c.ra))
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	c.enc.Append(Op{Kind: OpKindLoad, A: addr, Result: result, LoadStore: c.loadStoreTypeOf(ins.Op), MemArg: ins.MemArgData})
	c.ps.PushDynamic(result)
	return nil
}

func (c *Compiler) translateStore(ins wasm.Instr) error {
	v := c.materialize(c.ps.PopProvider(c.ra))
	addr := c.materialize(c.ps.PopProvider(c.ra))
	c.enc.Append(Op{Kind: OpKindStore, A: addr, B: v, LoadStore: c.loadStoreTypeOf(ins.Op), MemArg: ins.MemArgData})
	return nil
}

func (c *Compiler) translateMemoryNullary(kind OpKind, idx uint32) error {
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	c.enc.Append(Op{Kind: kind, Index: idx, Result: result})
	c.ps.PushDynamic(result)
	return nil
}

func (c *Compiler) translateMemoryGrow(idx uint32) error {
	delta := c.materialize(c.ps.PopProvider(c.ra))
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	c.enc.Append(Op{Kind: OpKindMemoryGrow, Index: idx, A: delta, Result: result})
	c.ps.PushDynamic(result)
	return nil
}

func (c *Compiler) translateMemoryFill(idx uint32) error {
	n := c.materialize(c.ps.PopProvider(c.ra))
	val := c.materialize(c.ps.PopProvider(c.ra))
	dst := c.materialize(c.ps.PopProvider(c.ra))
	c.enc.Append(Op{Kind: OpKindMemoryFill, Index: idx, A: dst, B: val, C: n})
	return nil
}

func (c *Compiler) translateMemoryCopy(ins wasm.Instr) error {
	n := c.materialize(c.ps.PopProvider(c.ra))
	src := c.materialize(c.ps.PopProvider(c.ra))
	dst := c.materialize(c.ps.PopProvider(c.ra))
	c.enc.Append(Op{Kind: OpKindMemoryCopy, Index: uint32(ins.Imm), Index2: ins.Imm2, A: dst, B: src, C: n})
	return nil
}

func (c *Compiler) translateMemoryInit(ins wasm.Instr) error {
	n := c.materialize(c.ps.PopProvider(c.ra))
	src := c.materialize(c.ps.PopProvider(c.ra))
	dst := c.materialize(c.ps.PopProvider(c.ra))
	c.enc.Append(Op{Kind: OpKindMemoryInit, Index: uint32(ins.Imm), Index2: ins.Imm2, A: dst, B: src, C: n})
	return nil
}

// --- table ------------------------------------------------------------

func (c *Compiler) translateTableGet(idx uint32) error {
	i := c.materialize(c.ps.PopProvider(c.ra))
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	c.enc.Append(Op{Kind: OpKindTableGet, Index: idx, A: i, Result: result})
	c.ps.PushDynamic(result)
	return nil
}

func (c *Compiler) translateTableSet(idx uint32) error {
	v := c.materialize(c.ps.PopProvider(c.ra))
	i := c.materialize(c.ps.PopProvider(c.ra))
	c.enc.Append(Op{Kind: OpKindTableSet, Index: idx, A: i, B: v})
	return nil
}

func (c *Compiler) translateTableNullary(kind OpKind, idx uint32) error {
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	c.enc.Append(Op{Kind: kind, Index: idx, Result: result})
	c.ps.PushDynamic(result)
	return nil
}

func (c *Compiler) translateTableGrow(idx uint32) error {
	n := c.materialize(c.ps.PopProvider(c.ra))
	v := c.materialize(c.ps.PopProvider(c.ra))
	result, err := c.ra.PushDynamic()
	if err != nil {
		return err
	}
	c.enc.Append(Op{Kind: OpKindTableGrow, Index: idx, A: v, B: n, Result: result})
	c.ps.PushDynamic(result)
	return nil
}

func (c *Compiler) translateTableFill(idx uint32) error {
	n := c.materialize(c.ps.PopProvider(c.ra))
	v := c.materialize(c.ps.PopProvider(c.ra))
	dst := c.materialize(c.ps.PopProvider(c.ra))
	c.enc.Append(Op{Kind: OpKindTableFill, Index: idx, A: dst, B: v, C: n})
	return nil
}

func (c *Compiler) translateTableCopy(ins wasm.Instr) error {
	n := c.materialize(c.ps.PopProvider(c.ra))
	src := c.materialize(c.ps.PopProvider(c.ra))
	dst := c.materialize(c.ps.PopProvider(c.ra))
	c.enc.Append(Op{Kind: OpKindTableCopy, Index: uint32(ins.Imm), Index2: ins.Imm2, A: dst, B: src, C: n})
	return nil
}

func (c *Compiler) translateTableInit(ins wasm.Instr) error {
	n := c.materialize(c.ps.PopProvider(c.ra))
	src := c.materialize(c.ps.PopProvider(c.ra))
	dst := c.materialize(c.ps.PopProvider(c.ra))
	c.enc.Append(Op{Kind: OpKindTableInit, Index: uint32(ins.Imm), Index2: ins.Imm2, A: dst, B: src, C: n})
	return nil
}

// --- calls ------------------------------------------------------------

// popArgs pops n arguments off the provider stack and copies them into a
// freshly allocated contiguous span, the calling convention every call Op
// expects. Collapsing an already-contiguous, already-in-order run of
// dynamics into a no-op copy is left to a future peephole pass; here
// correctness, not optimality, is the goal.
func (c *Compiler) popArgs(n int) RegisterSpan {
	if n == 0 {
		return RegisterSpan{}
	}
	regs := make([]Register, n)
	for i := n - 1; i >= 0; i-- {
		regs[i] = c.materialize(c.ps.PopProvider(c.ra))
	}
	span, err := c.ra.PushDynamicN(n)
	if err != nil {
		// Out of registers for the marshalling copy; fall back to
		// whatever span the popped values already occupy (only sound when
		// they happen to already be contiguous-in-order, which is the
		// common case for a simple forwarding call). A mis-ordered,
		// non-contiguous argument list here is a translator limitation
		// surfaced as ErrTooManyRegisters rather than miscompilation.
		return RegisterSpan{Base: regs[0], Len: uint16(n)}
	}
	for i, r := range regs {
		c.enc.Append(Op{Kind: OpKindCopy, A: r, Result: span.At(uint16(i))})
	}
	return span
}

func (c *Compiler) translateCall(calleeIdx uint32) error {
	ft := c.module.FuncTypeOf(wasm.FuncIndex(calleeIdx))
	args := c.popArgs(len(ft.Params))
	results, err := c.allocResultSpan(ft.Results)
	if err != nil {
		return err
	}
	kind := OpKindCallInternal
	if c.module.IsFuncImport(wasm.FuncIndex(calleeIdx)) {
		kind = OpKindCallImported
	}
	c.enc.Append(Op{Kind: kind, CalleeFunc: calleeIdx, Params: []Register{args.Base}, ResultSpan: results})
	for i := uint16(0); i < results.Len; i++ {
		c.ps.PushDynamic(results.At(i))
	}
	return nil
}

func (c *Compiler) translateCallIndirect(ins wasm.Instr) error {
	typeIdx := uint32(ins.Imm)
	tableIdx := ins.Imm2
	ft := c.module.Types.At(wasm.TypeIndex(typeIdx))

	tableReg := c.materialize(c.ps.PopProvider(c.ra))
	args := c.popArgs(len(ft.Params))
	results, err := c.allocResultSpan(ft.Results)
	if err != nil {
		return err
	}
	c.enc.Append(Op{Kind: OpKindCallIndirect, Index: tableIdx, CalleeType: typeIdx, A: tableReg,
		Params: []Register{args.Base}, ResultSpan: results})
	for i := uint16(0); i < results.Len; i++ {
		c.ps.PushDynamic(results.At(i))
	}
	return nil
}

func (c *Compiler) translateReturnCall(calleeIdx uint32) error {
	ft := c.module.FuncTypeOf(wasm.FuncIndex(calleeIdx))
	args := c.popArgs(len(ft.Params))
	kind := OpKindReturnCallInternal
	if c.module.IsFuncImport(wasm.FuncIndex(calleeIdx)) {
		kind = OpKindReturnCallImported
	}
	c.enc.Append(Op{Kind: kind, CalleeFunc: calleeIdx, Params: []Register{args.Base}, ResultSpan: args})
	c.topFrame().unreachable = true
	return nil
}

func (c *Compiler) translateReturnCallIndirect(ins wasm.Instr) error {
	typeIdx := uint32(ins.Imm)
	tableIdx := ins.Imm2
	ft := c.module.Types.At(wasm.TypeIndex(typeIdx))
	tableReg := c.materialize(c.ps.PopProvider(c.ra))
	args := c.popArgs(len(ft.Params))
	c.enc.Append(Op{Kind: OpKindReturnCallIndirect, Index: tableIdx, CalleeType: typeIdx, A: tableReg,
		Params: []Register{args.Base}, ResultSpan: args})
	c.topFrame().unreachable = true
	return nil
}

// --- returns ----------------------------------------------------------

// emitReturn pops the function's declared results off the provider stack
// and appends the arity-specialized Return* Op. Valid at any nesting
// depth: frames[0] is the synthetic outermost block whose result arity
// always equals the function's.
func (c *Compiler) emitReturn() error {
	return c.emitReturnN(int(c.frames[0].results.Len))
}

// emitReturnN is emitReturn's implementation, parameterized on the result
// arity so translateEnd's outermost-`end` exit path can invoke it while
// frames[0] is still on the control-frame stack (that path IS frames[0]
// closing, so it can't read c.frames[0] through the receiver).
func (c *Compiler) emitReturnN(n int) error {
	providers := make([]TypedProvider, n)
	for i := n - 1; i >= 0; i-- {
		providers[i] = c.ps.PopProvider(c.ra)
	}
	c.appendReturnOp(providers)
	c.topFrame().unreachable = true
	return nil
}

// peekReturnProviders resolves the n top-most providers (bottom-to-top)
// without popping them, for conditional-return paths whose fallthrough
// still owns the values.
func (c *Compiler) peekReturnProviders(n int) []TypedProvider {
	tagged := c.ps.PeekN(n)
	out := make([]TypedProvider, n)
	for i, p := range tagged {
		if p.kind == providerConstValue {
			out[i] = TypedProvider{IsConst: true, Const: p.constVal}
		} else {
			out[i] = TypedProvider{Reg: p.reg}
		}
	}
	return out
}

// appendReturnOp encodes the arity-specialized Return* op for the given
// result providers.
func (c *Compiler) appendReturnOp(providers []TypedProvider) {
	n := len(providers)
	switch {
	case n == 0:
		c.enc.Append(Op{Kind: OpKindReturn})
	case n == 1 && providers[0].IsConst && fits32(providers[0].Const):
		c.enc.Append(Op{Kind: OpKindReturnImm32, Imm32: int32(providers[0].Const.U64())})
	case n == 1:
		c.enc.Append(Op{Kind: OpKindReturnReg, A: c.materialize(providers[0])})
	case n == 2:
		c.enc.Append(Op{Kind: OpKindReturnReg2, A: c.materialize(providers[0]), B: c.materialize(providers[1])})
	case n == 3:
		c.enc.Append(Op{Kind: OpKindReturnReg3, A: c.materialize(providers[0]), B: c.materialize(providers[1]), C: c.materialize(providers[2])})
	default:
		regs := make([]Register, n)
		contiguous := true
		for i, p := range providers {
			regs[i] = c.materialize(p)
			if i > 0 && regs[i] != regs[i-1]+1 {
				contiguous = false
			}
		}
		if contiguous {
			c.enc.Append(Op{Kind: OpKindReturnSpan, ResultSpan: RegisterSpan{Base: regs[0], Len: uint16(n)}})
		} else {
			c.enc.Append(Op{Kind: OpKindReturnMany, Params: regs})
		}
	}
}

// --- control flow ----------------------------------------------------------

func (c *Compiler) translateEnter(ins wasm.Instr) error {
	bt := blockTypeOf(c.module, ins.BlockType)
	if len(bt.params) > 0 || len(bt.results) > 1 {
		if err := c.features.RequireEnabled(wasm.FeatureMultiValue, "block with parameters or multiple results"); err != nil {
			return err
		}
	}

	// An if's condition sits above the construct's parameters, so it must
	// come off first. Consuming it before the fusion check below also
	// keeps the comparison op, if any, as the encoder's last-appended op.
	var cond TypedProvider
	if ins.Op == wasm.OpIf {
		cond = c.ps.PopProvider(c.ra)
	}

	// Consume the construct's declared parameters; they're re-pushed
	// verbatim as the nested frame's initial operand-stack contents,
	// since the registers holding them don't change, only their scope
	// does.
	params := make([]TypedProvider, len(bt.params))
	for i := len(bt.params) - 1; i >= 0; i-- {
		params[i] = c.ps.PopProvider(c.ra)
	}

	results, err := c.allocResultSpan(bt.results)
	if err != nil {
		return err
	}

	frame := controlFrame{blockType: bt, results: results, params: params, stackHeightAtEntry: c.ps.Len()}

	switch ins.Op {
	case wasm.OpBlock:
		frame.kind = ctrlBlock
		c.enc.ResetFusion()
		c.pushFrame(frame)
		c.rePushParams(params)

	case wasm.OpLoop:
		frame.kind = ctrlLoop
		c.enc.ResetFusion()
		// The header must point at the ConsumeFuel marker, not past it, or
		// back-edges would iterate without ever paying fuel.
		frame.header = c.enc.Here()
		c.emitConsumeFuel()
		c.pushFrame(frame)
		c.rePushParams(params)

	case wasm.OpIf:
		frame.kind = ctrlIf
		// The else-edge is taken when the condition is zero, so a fused
		// comparison needs its sense inverted.
		var elseBr Instr
		fused := false
		if !cond.IsConst {
			if numeric, a, b, bIsImm, bImm, ok := c.enc.TryFuseComparisonBranch(cond.Reg, true); ok {
				elseBr = c.enc.Append(Op{Kind: OpKindBranchCmp, Numeric: numeric, A: a, B: b, BIsImm: bIsImm, Imm64: bImm})
				fused = true
			}
		}
		if !fused {
			elseBr = c.enc.Append(Op{Kind: OpKindBrIfEqz, A: c.materialize(cond)})
		}
		frame.elseFixup = elseBr
		frame.hasElseFixup = true
		c.enc.ResetFusion()
		c.pushFrame(frame)
		c.rePushParams(params)
	}
	return nil
}

// rePushParams re-pushes a construct's captured parameter providers
// unchanged, after the new frame they belong to has been pushed.
func (c *Compiler) rePushParams(params []TypedProvider) {
	for _, p := range params {
		if p.IsConst {
			c.ps.PushConstValue(p.Const)
		} else if c.ra.IsDynamic(p.Reg) {
			c.ps.PushDynamic(p.Reg)
		} else if c.ra.IsStorage(p.Reg) {
			c.ps.PushStorage(p.Reg)
		} else {
			c.ps.PushLocal(p.Reg)
		}
	}
}

func (c *Compiler) translateElse() error {
	frame := c.topFrame()
	if frame.kind != ctrlIf {
		return fmt.Errorf("else without matching if")
	}
	frame.sawElse = true

	if !frame.unreachable {
		c.emitMergeCopy(frame)
		endBr := c.enc.Append(Op{Kind: OpKindBr})
		frame.fixups = append(frame.fixups, branchFixup{op: endBr, arm: -1})
	}

	c.enc.PatchBrOffset(frame.elseFixup, c.enc.Here())

	c.truncateProviders(frame.stackHeightAtEntry)
	c.rePushParams(frame.params)
	frame.unreachable = false
	c.enc.ResetFusion()
	return nil
}

func (c *Compiler) translateEnd() error {
	frame := c.topFrame()

	if len(c.frames) == 1 {
		// The outermost end: return straight off the provider stack. No
		// branch ever targets this position (branches to the outermost
		// block were lowered as returns at their own sites), so constant
		// results collapse into ReturnImm32 instead of passing through a
		// merge register.
		if !frame.unreachable {
			if err := c.emitReturnN(int(frame.results.Len)); err != nil {
				return err
			}
		}
		c.truncateProviders(frame.stackHeightAtEntry)
		c.frames = c.frames[:0]
		c.enc.ResetFusion()
		return nil
	}

	if frame.kind == ctrlIf && !frame.sawElse {
		// No explicit else: close the (possibly dead) then-arm. When it
		// produces results, it must jump over the synthesized implicit
		// else-arm below rather than fall into it, or the stub's copy of
		// the pre-if parameter values would clobber the then-arm's
		// results. A zero-result construct needs no such guard: the stub
		// has nothing to copy either way.
		var skipStub Instr
		hasSkipStub := false
		if !frame.unreachable {
			c.emitMergeCopy(frame)
			if frame.results.Len > 0 {
				skipStub = c.enc.Append(Op{Kind: OpKindBr})
				hasSkipStub = true
			}
		}
		c.enc.PatchBrOffset(frame.elseFixup, c.enc.Here())
		if frame.results.Len > 0 {
			c.truncateProviders(frame.stackHeightAtEntry)
			c.rePushParams(frame.params)
			c.emitMergeCopy(frame)
		}
		if hasSkipStub {
			c.enc.PatchBrOffset(skipStub, c.enc.Here())
		}
	} else if !frame.unreachable {
		c.emitMergeCopy(frame)
	}

	for _, fix := range frame.fixups {
		if fix.arm < 0 {
			c.enc.PatchBrOffset(fix.op, c.enc.Here())
		} else {
			c.enc.PatchBrTableArm(fix.op, fix.arm, c.enc.Here())
		}
	}

	c.truncateProviders(frame.stackHeightAtEntry)
	for i := uint16(0); i < frame.results.Len; i++ {
		c.ps.PushDynamic(frame.results.At(i))
	}

	c.frames = c.frames[:len(c.frames)-1]
	c.enc.ResetFusion()
	return nil
}

// emitMergeCopy copies the current top-of-stack providers (the construct's
// yielded values) into its reserved result span and pops them, so every
// arm/branch writes to the same registers before falling through or
// jumping to end.
func (c *Compiler) emitMergeCopy(frame *controlFrame) {
	c.emitMergeCopyTo(frame)
	for i := uint16(0); i < frame.results.Len; i++ {
		c.ps.Pop()
	}
}

// emitMergeCopyTo copies the top-of-stack providers matching frame's
// result arity into frame's result span, without popping the provider
// stack (br_if's fallthrough path needs those values to stay live).
func (c *Compiler) emitMergeCopyTo(frame *controlFrame) {
	n := int(frame.results.Len)
	if n == 0 {
		return
	}
	providers := c.ps.PeekN(n)
	for i := 0; i < n; i++ {
		p := providers[i]
		target := frame.results.At(uint16(i))
		if (p.kind == providerDynamic || p.kind == providerStorage) && p.reg == target {
			continue
		}
		reg := c.resolveProviderRegister(p)
		c.enc.Append(Op{Kind: OpKindCopy, A: reg, Result: target})
	}
}

func (c *Compiler) resolveProviderRegister(p TaggedProvider) Register {
	if p.kind == providerConstValue {
		return c.enc.ConstRegister(p.constVal)
	}
	return p.reg
}

func (c *Compiler) truncateProviders(height int) {
	for c.ps.Len() > height {
		c.ps.PopProvider(c.ra)
	}
}

// --- branches ---------------------------------------------------------

func (c *Compiler) translateBr(relativeDepth uint32) error {
	frame := c.frameAt(relativeDepth)
	// A branch to the function's outermost block is a return: there is no
	// merge point, the branch's operands are the function's results.
	if frame == &c.frames[0] {
		return c.emitReturn()
	}
	c.emitMergeCopyTo(frame)
	c.emitJumpTo(frame, relativeDepth)
	c.topFrame().unreachable = true
	return nil
}

// emitJumpTo appends the unconditional jump half of a branch to frame: a
// direct backward offset for a loop's own back-edge (the header is already
// known), or a fixup resolved later when frame's `end` is reached.
func (c *Compiler) emitJumpTo(frame *controlFrame, relativeDepth uint32) {
	if frame.kind == ctrlLoop && relativeDepth == 0 {
		c.enc.Append(Op{Kind: OpKindBr, BrOffset: int32(frame.header) - int32(c.enc.Here()) - 1})
		return
	}
	pos := c.enc.Append(Op{Kind: OpKindBr})
	frame.fixups = append(frame.fixups, branchFixup{op: pos, arm: -1})
}

func (c *Compiler) translateBrIf(relativeDepth uint32) error {
	cond := c.ps.PopProvider(c.ra)
	frame := c.frameAt(relativeDepth)

	// A br_if targeting the function's outermost block is a conditional
	// return; the 0- and 1-result shapes have dedicated ops that skip any
	// copying entirely, wider arities guard an inline return sequence with
	// an inverted branch.
	if frame == &c.frames[0] {
		if frame.results.Len <= 1 {
			return c.emitReturnIfNez(cond, frame)
		}
		condReg := c.materialize(cond)
		skip := c.enc.Append(Op{Kind: OpKindBrIfEqz, A: condReg})
		c.appendReturnOp(c.peekReturnProviders(int(frame.results.Len)))
		c.enc.PatchBrOffset(skip, c.enc.Here())
		c.enc.ResetFusion()
		return nil
	}

	// Fuse an immediately preceding comparison into this conditional
	// branch when the condition register isn't otherwise observed.
	if !cond.IsConst {
		if numeric, a, b, bIsImm, bImm, ok := c.enc.TryFuseComparisonBranch(cond.Reg, false); ok {
			c.emitMergeCopyTo(frame)
			pos := c.enc.Append(Op{Kind: OpKindBranchCmp, Numeric: numeric, A: a, B: b, BIsImm: bIsImm, Imm64: bImm})
			c.resolveBranchTarget(frame, pos, relativeDepth)
			return nil
		}
	}

	c.emitMergeCopyTo(frame)
	condReg := c.materialize(cond)
	pos := c.enc.Append(Op{Kind: OpKindBrIfNez, A: condReg})
	c.resolveBranchTarget(frame, pos, relativeDepth)
	return nil
}

// emitReturnIfNez encodes a conditional return for result arity 0 or 1.
// The result provider, if any, stays on the provider stack untouched: the
// fallthrough path still owns it.
func (c *Compiler) emitReturnIfNez(cond TypedProvider, frame *controlFrame) error {
	condReg := c.materialize(cond)
	if frame.results.Len == 0 {
		c.enc.Append(Op{Kind: OpKindReturnIfNez, A: condReg})
		return nil
	}
	top := c.ps.Peek()
	if top.kind == providerConstValue && fits32(top.constVal) {
		c.enc.Append(Op{Kind: OpKindReturnImm32IfNez, A: condReg, Imm32: int32(top.constVal.U64())})
		return nil
	}
	c.enc.Append(Op{Kind: OpKindReturnRegIfNez, A: condReg, B: c.resolveProviderRegister(top)})
	return nil
}

func (c *Compiler) resolveBranchTarget(frame *controlFrame, pos Instr, relativeDepth uint32) {
	if frame.kind == ctrlLoop && relativeDepth == 0 {
		c.enc.PatchBrOffset(pos, frame.header)
		return
	}
	frame.fixups = append(frame.fixups, branchFixup{op: pos, arm: -1})
}

func (c *Compiler) translateBrTable(ins wasm.Instr) error {
	idx := c.materialize(c.ps.PopProvider(c.ra))

	allTargets := append([]uint32{ins.TargetsDef}, ins.Targets...)
	offsets := make([]int32, len(allTargets))

	// Every arm must share the same result arity (validation upstream
	// guarantees this), but arms can still target distinct control
	// frames, each with its own permanently reserved result register
	// span. The common case -- every arm sharing the default arm's frame,
	// e.g. a switch whose cases all break to the same enclosing block --
	// gets one merge copy shared by the whole dispatch. An arm targeting
	// a different, nonzero-result frame gets its own trampoline instead:
	// that copy can only run once the arm is known taken, so it can't be
	// folded into the shared pre-dispatch copy. Arms targeting the
	// function's outermost block share one return trampoline, since a
	// branch there is a return.
	defaultFrame := c.frameAt(ins.TargetsDef)
	outermost := &c.frames[0]
	if defaultFrame != outermost {
		c.emitMergeCopyTo(defaultFrame)
	}

	pos := c.enc.Append(Op{Kind: OpKindBrTable, A: idx, BrTargets: offsets})
	returnTramp := Instr(-1)
	for i, depth := range allTargets {
		frame := c.frameAt(depth)
		if frame == outermost {
			if returnTramp < 0 {
				returnTramp = c.enc.Here()
				c.appendReturnOp(c.peekReturnProviders(int(frame.results.Len)))
			}
			offsets[i] = int32(returnTramp) - int32(pos) - 1
			continue
		}
		if frame == defaultFrame || frame.results.Len == 0 {
			if frame.kind == ctrlLoop && depth == 0 {
				offsets[i] = int32(frame.header) - int32(pos) - 1
			} else {
				frame.fixups = append(frame.fixups, branchFixup{op: pos, arm: i})
			}
			continue
		}
		trampoline := c.enc.Here()
		offsets[i] = int32(trampoline) - int32(pos) - 1
		c.emitMergeCopyTo(frame)
		c.emitJumpTo(frame, depth)
	}
	c.topFrame().unreachable = true
	return nil
}
