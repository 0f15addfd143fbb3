package wasm

import (
	"fmt"
	"strings"
)

// Features is a bitset of optional WebAssembly proposals this engine
// recognizes during translation. Proposals not listed here (threads,
// garbage collection, SIMD beyond opaque v128 storage) are out of scope.
type Features uint32

const (
	FeatureMultiValue Features = 1 << iota
	FeatureSignExtensionOps
	FeatureSaturatingFloatToInt
	FeatureBulkMemoryOperations
	FeatureReferenceTypes
	FeatureMutableGlobal
	FeatureMemory64
	FeatureTailCall
)

// DefaultFeatures matches what a release build of the engine enables
// without explicit embedder opt-in: every proposal that has long since
// reached Phase 5 in the WebAssembly standardization process.
const DefaultFeatures = FeatureMultiValue |
	FeatureSignExtensionOps |
	FeatureSaturatingFloatToInt |
	FeatureBulkMemoryOperations |
	FeatureReferenceTypes |
	FeatureMutableGlobal

// IsEnabled reports whether every bit set in want is also set in f.
func (f Features) IsEnabled(want Features) bool {
	return f&want == want
}

// With returns f with the bits of other also set.
func (f Features) With(other Features) Features {
	return f | other
}

var featureNames = map[Features]string{
	FeatureMultiValue:           "multi-value",
	FeatureSignExtensionOps:     "sign-extension-ops",
	FeatureSaturatingFloatToInt: "nontrapping-float-to-int-conversion",
	FeatureBulkMemoryOperations: "bulk-memory-operations",
	FeatureReferenceTypes:       "reference-types",
	FeatureMutableGlobal:        "mutable-global",
	FeatureMemory64:             "memory64",
	FeatureTailCall:             "tail-call",
}

// String renders the set bits as the proposals' conventional short names.
func (f Features) String() string {
	var names []string
	for bit := Features(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit != 0 {
			if name, ok := featureNames[bit]; ok {
				names = append(names, name)
			} else {
				names = append(names, fmt.Sprintf("%#x", uint32(bit)))
			}
		}
	}
	return strings.Join(names, "|")
}

// RequireEnabled returns an error naming what when any bit of want is
// missing from f, used by the translator to reject instructions from
// proposals the embedder did not opt into.
func (f Features) RequireEnabled(want Features, what string) error {
	if !f.IsEnabled(want) {
		return fmt.Errorf("%s requires the %s feature, which is not enabled", what, want&^f)
	}
	return nil
}
