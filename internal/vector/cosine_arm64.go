//go:build arm64
// +build arm64

package vector

import "github.com/viant/vec/search"

// cosineDistanceWithMagnitude computes the cosine distance between v and
// other using precomputed magnitudes. The pinned viant/vec exports this
// kernel under a different name on each architecture; this file picks the
// arm64 one.
func cosineDistanceWithMagnitude(v search.Float32s, other []float32, m1, m2 float32) float32 {
	return v.CosineDistanceWithMagnitude(other, m1, m2)
}
