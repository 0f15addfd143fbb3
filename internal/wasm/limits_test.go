package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnforcedLimits_Check(t *testing.T) {
	limits := DefaultEnforcedLimits()
	limits.MaxTables = 1

	m := &Module{
		Types:  NewTypeTable(),
		Tables: []TableType{{}, {}},
	}
	err := limits.Check(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "tables")
}

func TestEnforcedLimits_WithinBounds(t *testing.T) {
	m := &Module{Types: NewTypeTable()}
	require.NoError(t, DefaultEnforcedLimits().Check(m))
}

func TestEnforcedLimits_MinAvgBytesPerFunction(t *testing.T) {
	limits := DefaultEnforcedLimits()
	limits.MinAvgBytesPerFunction = &AvgBytesPerFunctionLimit{
		ReqFuncsBytes:          1024,
		MinAvgBytesPerFunction: 16,
	}

	m := &Module{
		Types:    NewTypeTable(),
		Funcs:    make([]TypeIndex, 256),
		FuncDefs: make([]LocalFunction, 256),
		CodeSize: 2048, // 8 bytes per function on average
	}
	err := limits.Check(m)
	require.Error(t, err)
	var avgErr *MinAvgBytesPerFunctionError
	require.ErrorAs(t, err, &avgErr)
	require.EqualValues(t, 16, avgErr.Limit)
	require.EqualValues(t, 8, avgErr.Avg)

	// Below the activation size the heuristic stays silent.
	m.CodeSize = 512
	require.NoError(t, limits.Check(m))
}
