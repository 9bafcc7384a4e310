package histogram

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrZeroNorm is returned when a vector has zero magnitude and the
	// cosine similarity is undefined.
	ErrZeroNorm = errors.New("cosine similarity undefined for zero-norm vector")

	// ErrLengthMismatch is returned when two vectors have different lengths.
	ErrLengthMismatch = errors.New("vector length mismatch")
)

// Cosine computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func Cosine(a, b Vector) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, ErrZeroNorm
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity, nil
}
