package distance

import "math"

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
// Accumulates in float64 for numeric stability.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// Cosine returns the cosine similarity of a and b, in [-1, 1].
// A zero-magnitude vector yields similarity 0 with anything; it never divides
// by zero. Assumes vectors are the same length (caller's responsibility).
func Cosine(a, b []float32) float64 {
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2))
}

// NormalizeL2Copy returns an L2-normalized copy of src.
// Returns false if src has zero L2 norm; the returned slice is then a plain
// copy, which scores 0 against everything under dot-product similarity.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := make([]float32, len(src))
	copy(dst, src)
	norm2 := Dot(src, src)
	if norm2 == 0 {
		return dst, false
	}
	inv := 1 / math.Sqrt(norm2)
	for i := range dst {
		dst[i] = float32(float64(dst[i]) * inv)
	}
	return dst, true
}
