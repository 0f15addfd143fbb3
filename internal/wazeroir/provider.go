package wazeroir

import "github.com/corewasm/corewasm/internal/value"

// TaggedProvider is one entry of the ProviderStack: an on-stack simulation
// of what a real Wasm operand stack would hold during translation, tagged
// with enough detail that the encoder can fold constants and elide
// register copies instead of always emitting `local.get`-style moves.
type TaggedProvider struct {
	kind        providerKind
	reg         Register
	constVal    value.UntypedVal
}

type providerKind byte

const (
	providerConstLocal providerKind = iota // a register holding a function-local constant
	providerLocal                          // a parameter or declared local
	providerDynamic                        // a dynamically allocated temporary
	providerStorage                        // a temporary preserved across a merge point
	providerConstValue                     // an immediate value, not yet assigned a register
)

func tpLocal(reg Register) TaggedProvider        { return TaggedProvider{kind: providerLocal, reg: reg} }
func tpDynamic(reg Register) TaggedProvider      { return TaggedProvider{kind: providerDynamic, reg: reg} }
func tpStorage(reg Register) TaggedProvider      { return TaggedProvider{kind: providerStorage, reg: reg} }
func tpConstLocal(reg Register) TaggedProvider   { return TaggedProvider{kind: providerConstLocal, reg: reg} }
func tpConstValue(v value.UntypedVal) TaggedProvider {
	return TaggedProvider{kind: providerConstValue, constVal: v}
}

// TypedProvider is a TaggedProvider resolved to what the encoder actually
// needs: either a concrete Register or an immediate value, with the
// provider-stack bookkeeping (dynamic/storage pop accounting) already
// applied.
type TypedProvider struct {
	IsConst bool
	Reg     Register
	Const   value.UntypedVal
}

// ProviderStack emulates the Wasm operand stack during translation. Each
// entry names where a value currently lives rather than the value itself,
// letting the translator fold constant expressions and recognize when an
// operand is already sitting in the register a consuming instruction
// wants.
//
// local.get preservation uses one of two strategies depending on stack
// depth, a defense against adversarial inputs with pathologically deep
// provider stacks; see localRefsThreshold below.
type ProviderStack struct {
	providers []TaggedProvider

	useLocalRefs bool
	localRefs    [][]int // index by local Register, value: provider-stack indices
}

// localRefsThreshold is the provider-stack height past which preserveLocals
// switches from an O(stack height) in-place scan to the O(uses) indexed
// strategy, bounding translation-time cost for adversarial inputs.
const localRefsThreshold = 16

// NewProviderStack returns an empty ProviderStack.
func NewProviderStack() *ProviderStack {
	return &ProviderStack{}
}

// Reset discards all state to start translating a new function.
func (ps *ProviderStack) Reset() {
	ps.providers = ps.providers[:0]
	ps.useLocalRefs = false
	ps.localRefs = ps.localRefs[:0]
}

// RegisterLocals must be called once, up front, with the total number of
// parameters and declared locals, sizing the indexed local-ref table.
func (ps *ProviderStack) RegisterLocals(amount uint32) {
	for i := uint32(0); i < amount; i++ {
		ps.localRefs = append(ps.localRefs, nil)
	}
}

// Len returns the current provider stack height.
func (ps *ProviderStack) Len() int { return len(ps.providers) }

func (ps *ProviderStack) push(p TaggedProvider) int {
	idx := len(ps.providers)
	ps.providers = append(ps.providers, p)
	return idx
}

// PushLocal pushes a reference to the given local/parameter register.
func (ps *ProviderStack) PushLocal(reg Register) {
	idx := ps.push(tpLocal(reg))
	if ps.useLocalRefs {
		ps.localRefs[reg] = append(ps.localRefs[reg], idx)
	}
}

// PushDynamic pushes a reference to a dynamically allocated register.
func (ps *ProviderStack) PushDynamic(reg Register) { ps.push(tpDynamic(reg)) }

// PushStorage pushes a reference to a storage-preserved register.
func (ps *ProviderStack) PushStorage(reg Register) { ps.push(tpStorage(reg)) }

// PushConstLocal pushes a reference to a register holding a function-local
// constant (part of the constant pool, addressed by negative Register).
func (ps *ProviderStack) PushConstLocal(reg Register) { ps.push(tpConstLocal(reg)) }

// PushConstValue pushes an as-yet-unmaterialized immediate.
func (ps *ProviderStack) PushConstValue(v value.UntypedVal) { ps.push(tpConstValue(v)) }

// Peek returns the top-most provider without popping it.
func (ps *ProviderStack) Peek() TaggedProvider {
	if len(ps.providers) == 0 {
		panic("wazeroir: peek on empty provider stack")
	}
	return ps.providers[len(ps.providers)-1]
}

// Pop removes and returns the top-most provider.
func (ps *ProviderStack) Pop() TaggedProvider {
	n := len(ps.providers)
	if n == 0 {
		panic("wazeroir: pop on empty provider stack")
	}
	p := ps.providers[n-1]
	ps.providers = ps.providers[:n-1]
	if p.kind == providerLocal && ps.useLocalRefs {
		refs := ps.localRefs[p.reg]
		ps.localRefs[p.reg] = refs[:len(refs)-1]
	}
	return p
}

// PopProvider pops the top-most provider and asks reg_alloc to release the
// register space it occupied, if any, returning the TypedProvider the
// encoder should use as the operand.
func (ps *ProviderStack) PopProvider(ra *RegisterAlloc) TypedProvider {
	p := ps.Pop()
	switch p.kind {
	case providerLocal, providerConstLocal:
		return TypedProvider{Reg: p.reg}
	case providerDynamic:
		ra.PopDynamic()
		return TypedProvider{Reg: p.reg}
	case providerStorage:
		ra.PopStorage()
		return TypedProvider{Reg: p.reg}
	case providerConstValue:
		return TypedProvider{IsConst: true, Const: p.constVal}
	}
	panic("unreachable: invalid providerKind")
}

// PeekTyped returns the top-most provider as a TypedProvider without
// popping it or releasing any register the RegisterAlloc holds for it.
// Used by local.tee, which keeps the value live on the operand stack after
// writing a copy of it to a local.
func (ps *ProviderStack) PeekTyped() TypedProvider {
	p := ps.Peek()
	if p.kind == providerConstValue {
		return TypedProvider{IsConst: true, Const: p.constVal}
	}
	return TypedProvider{Reg: p.reg}
}

// ReplaceTop overwrites the top-most provider in place, used by local.tee
// once its value has been written to a local so subsequent instructions
// see it as an ordinary local reference rather than its original provider.
func (ps *ProviderStack) ReplaceTop(p TaggedProvider) {
	n := len(ps.providers)
	if n == 0 {
		panic("wazeroir: ReplaceTop on empty provider stack")
	}
	old := ps.providers[n-1]
	if old.kind == providerLocal && ps.useLocalRefs {
		refs := ps.localRefs[old.reg]
		ps.localRefs[old.reg] = refs[:len(refs)-1]
	}
	ps.providers[n-1] = p
	if p.kind == providerLocal && ps.useLocalRefs {
		ps.localRefs[p.reg] = append(ps.localRefs[p.reg], n-1)
	}
}

// PeekN returns the n top-most providers, bottom-to-top.
func (ps *ProviderStack) PeekN(n int) []TaggedProvider {
	l := len(ps.providers)
	if n > l {
		panic("wazeroir: PeekN requested more providers than are on the stack")
	}
	return ps.providers[l-n:]
}

func (ps *ProviderStack) syncLocalRefs() {
	ps.useLocalRefs = true
	for idx, p := range ps.providers {
		if p.kind != providerLocal {
			continue
		}
		ps.localRefs[p.reg] = append(ps.localRefs[p.reg], idx)
	}
}

// PreserveLocals moves every `local.get reg` entry currently on the
// provider stack into a freshly allocated storage register, so that a
// subsequent `local.set`/`local.tee` on the same local cannot retroactively
// change a value already pushed for use by an earlier instruction. Returns
// the storage register used, or ok=false if reg was not referenced.
func (ps *ProviderStack) PreserveLocals(reg Register, ra *RegisterAlloc, defSite Instr) (preserved Register, ok bool, err error) {
	if !ps.useLocalRefs && len(ps.providers) >= localRefsThreshold {
		ps.syncLocalRefs()
	}
	if ps.useLocalRefs {
		return ps.preserveLocalsIndexed(reg, ra, defSite)
	}
	return ps.preserveLocalsScan(reg, ra, defSite)
}

func (ps *ProviderStack) preserveLocalsScan(local Register, ra *RegisterAlloc, defSite Instr) (Register, bool, error) {
	var preserved Register
	found := false
	for i := range ps.providers {
		p := &ps.providers[i]
		if p.kind != providerLocal || p.reg != local {
			continue
		}
		if !found {
			reg, err := ra.PushStorage(defSite)
			if err != nil {
				return 0, false, err
			}
			preserved = reg
			found = true
		}
		p.kind = providerStorage
		p.reg = preserved
	}
	return preserved, found, nil
}

func (ps *ProviderStack) preserveLocalsIndexed(local Register, ra *RegisterAlloc, defSite Instr) (Register, bool, error) {
	refs := ps.localRefs[local]
	if len(refs) == 0 {
		return 0, false, nil
	}
	reg, err := ra.PushStorage(defSite)
	if err != nil {
		return 0, false, err
	}
	for _, idx := range refs {
		ps.providers[idx].kind = providerStorage
		ps.providers[idx].reg = reg
	}
	ps.localRefs[local] = refs[:0]
	return reg, true, nil
}
