package wazeroir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAlloc_Phases(t *testing.T) {
	ra := NewRegisterAlloc()
	require.NoError(t, ra.RegisterLocals(3))
	ra.FinishLocals()

	require.Panics(t, func() { ra.RegisterLocals(1) }, "locals are sealed after FinishLocals")
	require.Panics(t, func() { ra.Defragment(0) }, "defrag requires FinalizeAlloc first")

	ra.FinalizeAlloc()
	require.Panics(t, func() { _, _ = ra.PushDynamic() }, "no allocation after FinalizeAlloc")
}

func TestRegisterAlloc_DynamicGrowsAboveLocals(t *testing.T) {
	ra := NewRegisterAlloc()
	require.NoError(t, ra.RegisterLocals(2))
	ra.FinishLocals()

	r0, err := ra.PushDynamic()
	require.NoError(t, err)
	require.Equal(t, Register(2), r0)

	span, err := ra.PushDynamicN(3)
	require.NoError(t, err)
	require.Equal(t, Register(3), span.Base)
	require.Equal(t, Register(5), span.At(2))

	ra.PopDynamicN(3)
	ra.PopDynamic()
	require.Panics(t, func() { ra.PopDynamic() }, "dynamic underflow")
}

func TestRegisterAlloc_StorageGrowsDownward(t *testing.T) {
	ra := NewRegisterAlloc()
	require.NoError(t, ra.RegisterLocals(1))
	ra.FinishLocals()

	s0, err := ra.PushStorage(Instr(4))
	require.NoError(t, err)
	require.Equal(t, Register(MaxRegister), s0)

	s1, err := ra.PushStorage(Instr(9))
	require.NoError(t, err)
	require.Equal(t, Register(MaxRegister-1), s1)

	require.True(t, ra.IsStorage(s0))
	require.True(t, ra.IsStorage(s1))
	require.False(t, ra.IsStorage(0))

	users := ra.StorageUsers()
	require.Len(t, users, 2)
	require.Equal(t, Instr(4), users[0].user)
}

func TestRegisterAlloc_TooManyLocals(t *testing.T) {
	ra := NewRegisterAlloc()
	err := ra.RegisterLocals(uint32(MaxRegister))
	require.ErrorIs(t, err, ErrTooManyRegisters{})
}

func TestRegisterAlloc_CountersMeet(t *testing.T) {
	ra := NewRegisterAlloc()
	require.NoError(t, ra.RegisterLocals(uint32(MaxRegister)-2))
	ra.FinishLocals()

	_, err := ra.PushDynamic()
	require.NoError(t, err)
	_, err = ra.PushStorage(0)
	require.NoError(t, err)
	_, err = ra.PushDynamic()
	require.ErrorIs(t, err, ErrTooManyRegisters{}, "dynamic and storage met")
}

func TestRegisterAlloc_Defragment(t *testing.T) {
	ra := NewRegisterAlloc()
	require.NoError(t, ra.RegisterLocals(2))
	ra.FinishLocals()

	// Two dynamics (2, 3) and two storage registers (32767, 32766).
	_, err := ra.PushDynamic()
	require.NoError(t, err)
	_, err = ra.PushDynamic()
	require.NoError(t, err)
	s0, err := ra.PushStorage(0)
	require.NoError(t, err)
	s1, err := ra.PushStorage(1)
	require.NoError(t, err)

	ra.FinalizeAlloc()

	// Storage compacts to sit directly above the dynamic high-water mark.
	require.Equal(t, Register(5), ra.Defragment(s0))
	require.Equal(t, Register(4), ra.Defragment(s1))
	// Locals and dynamics are untouched.
	require.Equal(t, Register(0), ra.Defragment(0))
	require.Equal(t, Register(3), ra.Defragment(3))
	require.EqualValues(t, 6, ra.LenRegisters())
}

func TestRegisterAlloc_DefragNoStorageIsIdentity(t *testing.T) {
	ra := NewRegisterAlloc()
	require.NoError(t, ra.RegisterLocals(1))
	ra.FinishLocals()
	_, err := ra.PushDynamic()
	require.NoError(t, err)
	ra.FinalizeAlloc()

	require.Equal(t, Register(1), ra.Defragment(1))
	require.EqualValues(t, 2, ra.LenRegisters())
}
