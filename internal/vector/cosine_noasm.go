//go:build !arm64
// +build !arm64

package vector

import "github.com/viant/vec/search"

// cosineDistanceWithMagnitude computes the cosine distance between v and
// other using precomputed magnitudes. Off arm64 the viant/vec kernel is
// exported as CosineDistanceWithMagnitudesNeon despite being the portable
// fallback; this file hides that name.
func cosineDistanceWithMagnitude(v search.Float32s, other []float32, m1, m2 float32) float32 {
	return v.CosineDistanceWithMagnitudesNeon(other, m1, m2)
}
