// Package wazeroir translates an already-decoded WebAssembly function body
// (wasm.LocalFunction) into the register-machine bytecode the interpreter
// package executes.
package wazeroir

import (
	"fmt"
	"math"
)

// Register is a signed 16-bit index into a frame's value cells. Negative
// indices address the function-local constant pool that precedes the
// mutable cells; non-negative indices address locals, dynamic temporaries,
// or (after defragmentation) storage temporaries, all in one contiguous
// space.
type Register int16

// MaxRegister is the largest index storage allocation starts counting
// down from, matching i16::MAX in the original.
const MaxRegister = math.MaxInt16

// RegisterSpan is a contiguous run of registers, used for multi-value
// call arguments and return values.
type RegisterSpan struct {
	Base Register
	Len  uint16
}

func (s RegisterSpan) At(i uint16) Register { return s.Base + Register(i) }

// registerUser pairs a storage-allocated Register with the Instr (an index
// into the encoder's output buffer) that defines or references it, so
// defragmentation can rewrite every use site once the final offset is
// known.
type registerUser struct {
	register Register
	user     Instr
}

// allocPhase is the three-stage lifecycle a RegisterAlloc moves through
// while translating a single function, never backwards.
type allocPhase byte

const (
	allocPhaseInit allocPhase = iota
	allocPhaseAlloc
	allocPhaseDefrag
)

// RegisterAlloc assigns Registers to a function's locals, to dynamically
// allocated temporaries, and to longer-lived "storage" temporaries that
// must survive across merge points. Dynamics grow up from len(locals);
// storage grows down from MaxRegister; when they meet, allocation fails.
// After translation, Defragment collapses storage down to sit directly
// above the dynamic high-water mark, producing one contiguous register
// file for the function.
type RegisterAlloc struct {
	phase allocPhase

	lenLocals   uint16
	nextDynamic Register
	maxDynamic  Register
	nextStorage Register
	minStorage  Register

	storageUsers []registerUser
	defragOffset Register
}

// NewRegisterAlloc returns a RegisterAlloc ready to register locals for a
// new function.
func NewRegisterAlloc() *RegisterAlloc {
	ra := &RegisterAlloc{}
	ra.Reset()
	return ra
}

// Reset prepares ra to translate a new function, discarding all prior
// state.
func (ra *RegisterAlloc) Reset() {
	ra.phase = allocPhaseInit
	ra.lenLocals = 0
	ra.nextDynamic = 0
	ra.maxDynamic = 0
	ra.nextStorage = MaxRegister
	ra.minStorage = MaxRegister
	ra.storageUsers = ra.storageUsers[:0]
}

// ErrTooManyRegisters is returned whenever a function would need more
// registers than the 16-bit register index space allows.
type ErrTooManyRegisters struct{}

func (ErrTooManyRegisters) Error() string { return "function allocates too many registers" }

// ErrRegisterOutOfBounds is returned when a decoded instruction references
// a local outside the function's declared range. A validating parser never
// produces such an instruction, so hitting this means the input bypassed
// validation; it is still surfaced as an error rather than indexing out of
// the frame.
type ErrRegisterOutOfBounds struct {
	Register int64
}

func (e ErrRegisterOutOfBounds) Error() string {
	return fmt.Sprintf("register %d is out of bounds for the function", e.Register)
}

// RegisterLocals reserves amount registers for function parameters and
// declared locals. Must be called only during the init phase, before the
// first call to FinishLocals.
func (ra *RegisterAlloc) RegisterLocals(amount uint32) error {
	if ra.phase != allocPhaseInit {
		panic("wazeroir: RegisterLocals called outside the init phase")
	}
	newLen := uint32(ra.lenLocals) + amount
	if newLen >= uint32(MaxRegister) {
		return ErrTooManyRegisters{}
	}
	ra.lenLocals = uint16(newLen)
	ra.nextDynamic = Register(ra.lenLocals)
	ra.maxDynamic = Register(ra.lenLocals)
	return nil
}

// FinishLocals ends the init phase; no more locals can be registered
// afterwards, but dynamic/storage registers can now be pushed and popped.
func (ra *RegisterAlloc) FinishLocals() {
	if ra.phase != allocPhaseInit {
		panic("wazeroir: FinishLocals called outside the init phase")
	}
	ra.phase = allocPhaseAlloc
}

// LenLocals returns the number of registers reserved for parameters and
// locals.
func (ra *RegisterAlloc) LenLocals() uint16 { return ra.lenLocals }

// MinDynamic returns the lowest index any dynamically allocated register
// can have, i.e. the first index past the locals.
func (ra *RegisterAlloc) MinDynamic() Register { return Register(ra.lenLocals) }

// LenRegisters returns the number of registers the function will need
// once fully allocated. Valid at any point, but only meaningful for sizing
// the frame after defragmentation.
func (ra *RegisterAlloc) LenRegisters() uint16 {
	return uint16(MaxRegister) - absDiff(ra.maxDynamic, ra.minStorage)
}

func absDiff(a, b Register) uint16 {
	if a > b {
		return uint16(a - b)
	}
	return uint16(b - a)
}

func (ra *RegisterAlloc) assertAllocPhase() {
	if ra.phase != allocPhaseAlloc {
		panic("wazeroir: register allocation requested outside the alloc phase")
	}
}

// PushDynamic allocates the next dynamic register.
func (ra *RegisterAlloc) PushDynamic() (Register, error) {
	ra.assertAllocPhase()
	if ra.nextDynamic == ra.nextStorage {
		return 0, ErrTooManyRegisters{}
	}
	reg := ra.nextDynamic
	ra.nextDynamic++
	if ra.nextDynamic > ra.maxDynamic {
		ra.maxDynamic = ra.nextDynamic
	}
	return reg, nil
}

// PushDynamicN allocates n contiguous dynamic registers, returning the
// span's base.
func (ra *RegisterAlloc) PushDynamicN(n int) (RegisterSpan, error) {
	ra.assertAllocPhase()
	next := ra.nextDynamic + Register(n)
	if next >= ra.nextStorage {
		return RegisterSpan{}, ErrTooManyRegisters{}
	}
	span := RegisterSpan{Base: ra.nextDynamic, Len: uint16(n)}
	ra.nextDynamic = next
	if ra.nextDynamic > ra.maxDynamic {
		ra.maxDynamic = ra.nextDynamic
	}
	return span, nil
}

// PopDynamic releases the most recently allocated dynamic register.
func (ra *RegisterAlloc) PopDynamic() {
	ra.assertAllocPhase()
	if ra.nextDynamic == ra.MinDynamic() {
		panic("wazeroir: dynamic register stack underflow")
	}
	ra.nextDynamic--
}

// PopDynamicN releases the n most recently allocated dynamic registers.
func (ra *RegisterAlloc) PopDynamicN(n int) {
	ra.assertAllocPhase()
	next := ra.nextDynamic - Register(n)
	if next < ra.MinDynamic() {
		panic("wazeroir: dynamic register stack underflow")
	}
	ra.nextDynamic = next
}

// PushStorage allocates a register from the storage space, recording defSite
// (an index into the encoder's op buffer) as its definition site so
// Defragment can later rewrite every reference to the returned register.
func (ra *RegisterAlloc) PushStorage(defSite Instr) (Register, error) {
	ra.assertAllocPhase()
	if ra.nextDynamic == ra.nextStorage {
		return 0, ErrTooManyRegisters{}
	}
	reg := ra.nextStorage
	ra.nextStorage--
	if ra.nextStorage < ra.minStorage {
		ra.minStorage = ra.nextStorage
	}
	ra.storageUsers = append(ra.storageUsers, registerUser{register: reg, user: defSite})
	return reg, nil
}

// PopStorage releases the most recently allocated storage register.
func (ra *RegisterAlloc) PopStorage() {
	ra.assertAllocPhase()
	if ra.nextStorage == MaxRegister {
		panic("wazeroir: storage register stack underflow")
	}
	ra.nextStorage++
}

// IsDynamic reports whether reg currently lives in the dynamic space.
func (ra *RegisterAlloc) IsDynamic(reg Register) bool {
	return ra.MinDynamic() <= reg && reg < ra.maxDynamic
}

// IsStorage reports whether reg currently lives in the storage space.
func (ra *RegisterAlloc) IsStorage(reg Register) bool {
	return ra.minStorage < reg
}

// FinalizeAlloc ends the alloc phase and computes the offset Defragment
// will apply to every storage register.
func (ra *RegisterAlloc) FinalizeAlloc() {
	if ra.phase != allocPhaseAlloc {
		panic("wazeroir: FinalizeAlloc called outside the alloc phase")
	}
	ra.phase = allocPhaseDefrag
	// The distinct storage registers ever allocated are exactly
	// (minStorage, MaxRegister] -- minStorage is the high-water mark
	// IsStorage itself is defined against, not the current (possibly
	// since-popped-back) nextStorage. The lowest of them, minStorage+1,
	// must land on maxDynamic, the first free slot above the dynamic
	// region.
	ra.defragOffset = ra.minStorage + 1 - ra.maxDynamic
}

// Defragment maps reg to its final, compacted index: dynamic and local
// registers are unaffected; storage registers are shifted down to sit
// directly above the dynamic high-water mark.
func (ra *RegisterAlloc) Defragment(reg Register) Register {
	if ra.phase != allocPhaseDefrag {
		panic("wazeroir: Defragment called before FinalizeAlloc")
	}
	if !ra.IsStorage(reg) {
		return reg
	}
	return reg - ra.defragOffset
}

// StorageUsers returns every (register, definition site) pair recorded
// for storage-space registers. The compiler's defragment pass does not
// read this list; it sweeps the whole op buffer instead.
func (ra *RegisterAlloc) StorageUsers() []registerUser {
	return ra.storageUsers
}
