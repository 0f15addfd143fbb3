// Package moremath provides floating-point helpers whose semantics diverge
// from the Go standard library in ways the WebAssembly spec requires.
package moremath

import "math"

// WasmCompatMin implements f32.min/f64.min. Two rules separate it from a
// naive `<` pick: any NaN operand poisons the result (even against -Inf),
// and equal-magnitude zeroes tie-break toward the negative one. With NaN
// already excluded, infinities need no special case: an ordinary
// comparison ranks them correctly.
func WasmCompatMin(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN()
	}
	if x == y {
		// Only distinguishable when the operands are +0 and -0, which
		// compare equal; the negative zero wins.
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// WasmCompatMax implements f32.max/f64.max, mirroring WasmCompatMin: NaN
// poisons the result, and a +0/-0 tie resolves to the positive zero.
func WasmCompatMax(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN()
	}
	if x == y {
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// WasmCompatNearestF32 implements f32.nearest: round-to-nearest with ties
// to even, which differs from math.Round's ties-away-from-zero.
func WasmCompatNearestF32(f float32) float32 {
	return float32(math.RoundToEven(float64(f)))
}

// WasmCompatNearestF64 implements f64.nearest, see WasmCompatNearestF32.
func WasmCompatNearestF64(f float64) float64 {
	return math.RoundToEven(f)
}
