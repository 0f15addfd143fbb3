package corewasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corewasm/corewasm/internal/wasm"
)

func TestConfig_CopyOnWrite(t *testing.T) {
	base := NewConfig()
	require.False(t, base.consumeFuel)

	withFuel := base.WithFuel(100)
	require.False(t, base.consumeFuel, "WithFuel must not mutate the receiver")
	require.True(t, withFuel.consumeFuel)
	require.EqualValues(t, 100, withFuel.initialFuel)

	withoutFuel := withFuel.WithoutFuel()
	require.True(t, withFuel.consumeFuel, "WithoutFuel must not mutate its receiver either")
	require.False(t, withoutFuel.consumeFuel)
}

func TestConfig_WithFeature(t *testing.T) {
	base := NewConfig()
	require.False(t, base.features.IsEnabled(wasm.FeatureTailCall), "tail_call is not a default feature")

	enabled := base.WithFeature(wasm.FeatureTailCall, true)
	require.True(t, enabled.features.IsEnabled(wasm.FeatureTailCall))
	require.False(t, base.features.IsEnabled(wasm.FeatureTailCall), "WithFeature must not mutate the receiver")

	disabled := enabled.WithFeature(wasm.FeatureTailCall, false)
	require.False(t, disabled.features.IsEnabled(wasm.FeatureTailCall))
}

func TestConfig_WithEnforcedLimits(t *testing.T) {
	base := NewConfig()
	custom := wasm.EnforcedLimits{MaxFunctions: 3}
	withCustom := base.WithEnforcedLimits(custom)
	require.EqualValues(t, 3, withCustom.enforcedLimits.MaxFunctions)
	require.NotEqualValues(t, 3, base.enforcedLimits.MaxFunctions)
}
