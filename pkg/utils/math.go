package utils

import "math"

// MinNorm is the Euclidean norm below which a vector is treated as degenerate
// and left unnormalized.
const MinNorm = 1e-10

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is below MinNorm, the slice is unchanged.
func NormalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm < MinNorm {
		return
	}
	inv := 1.0 / norm
	for i := range x {
		x[i] = float32(float64(x[i]) * inv)
	}
}

// L2Norm returns the Euclidean norm of x.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
