package utils

import "math"

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// A zero-norm slice is left unchanged.
func NormalizeL2(x []float32) {
	var sum float32
	for _, v := range x {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range x {
		x[i] *= norm
	}
}

// Normalized returns a unit-norm copy of x, leaving x untouched.
// A zero-norm input is returned as an unchanged copy.
func Normalized(x []float32) []float32 {
	out := make([]float32, len(x))
	copy(out, x)
	NormalizeL2(out)
	return out
}
