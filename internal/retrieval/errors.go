package retrieval

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is returned when the query is not a decodable image.
	ErrDecode = errors.New("image could not be decoded")

	// ErrNoDetection is returned when no usable class remains after normalization.
	ErrNoDetection = errors.New("no usable detections")

	// ErrNoCandidates is returned when too few dataset images match the query classes.
	ErrNoCandidates = errors.New("not enough matching images")

	// ErrComputation is matched by every per-candidate similarity failure.
	ErrComputation = errors.New("similarity computation failed")

	// ErrStoreUnavailable is returned when the class store cannot be queried.
	ErrStoreUnavailable = errors.New("class store unavailable")

	// ErrDetectorUnavailable is returned when the object detector call fails.
	ErrDetectorUnavailable = errors.New("object detector unavailable")

	// ErrDatasetRequired is returned when a pipeline is built without a dataset.
	ErrDatasetRequired = errors.New("dataset required")

	// ErrDetectorRequired is returned when a pipeline is built without a detector.
	ErrDetectorRequired = errors.New("detector required")

	// ErrResolverRequired is returned when a pipeline is built without a candidate resolver.
	ErrResolverRequired = errors.New("candidate resolver required")
)

// ComputationError reports a candidate whose similarity to the query is undefined.
type ComputationError struct {
	ImageID string
	Err     error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: image %s: %v", ErrComputation, e.ImageID, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// Is reports ErrComputation for every ComputationError.
func (e *ComputationError) Is(target error) bool {
	return target == ErrComputation
}

// Kind returns a short machine-readable name for a retrieval error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrNoDetection):
		return "no_detection"
	case errors.Is(err, ErrNoCandidates):
		return "no_candidates"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrDetectorUnavailable):
		return "detector_unavailable"
	case errors.Is(err, ErrComputation):
		return "computation"
	default:
		return "internal"
	}
}
