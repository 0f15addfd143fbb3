package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatures_IsEnabledAndWith(t *testing.T) {
	f := DefaultFeatures
	require.True(t, f.IsEnabled(FeatureBulkMemoryOperations))
	require.False(t, f.IsEnabled(FeatureTailCall))
	require.True(t, f.With(FeatureTailCall).IsEnabled(FeatureTailCall))
	require.False(t, f.IsEnabled(FeatureBulkMemoryOperations|FeatureTailCall),
		"IsEnabled requires every requested bit")
}

func TestFeatures_RequireEnabled(t *testing.T) {
	require.NoError(t, DefaultFeatures.RequireEnabled(FeatureReferenceTypes, "table.get"))

	err := DefaultFeatures.RequireEnabled(FeatureTailCall, "return_call")
	require.Error(t, err)
	require.Contains(t, err.Error(), "return_call")
	require.Contains(t, err.Error(), "tail-call")
}

func TestFeatures_String(t *testing.T) {
	require.Equal(t, "tail-call", FeatureTailCall.String())
	require.Equal(t, "multi-value|memory64", (FeatureMultiValue | FeatureMemory64).String())
}
