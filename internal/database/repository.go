package database

import (
	"context"
)

// ClassGraphReader answers class membership queries over the dataset.
type ClassGraphReader interface {
	// ResolveCandidates returns the images linked to every one of classes,
	// ordered by image ID. An empty class list yields no images.
	ResolveCandidates(ctx context.Context, classes []string) ([]string, error)
	// ClassesOf returns the classes linked to an image, sorted by name
	ClassesOf(ctx context.Context, imageID string) ([]string, error)
	// Stats returns image, class and link counts
	Stats(ctx context.Context) (GraphStats, error)
}

// ClassGraphWriter provides write access to the class graph
type ClassGraphWriter interface {
	ClassGraphReader

	// SaveImageClasses replaces the classes linked to an image
	SaveImageClasses(ctx context.Context, imageID string, classes []string) error
}

// SimilarFinder finds the stored images closest to a histogram.
// Implemented by HistogramIndex and the Postgres histogram repository.
type SimilarFinder interface {
	FindSimilar(ctx context.Context, histogram []float32, limit int) ([]SimilarImage, error)
}

// HistogramReader provides read-only access to stored histograms
type HistogramReader interface {
	// GetHistogram retrieves a histogram by image ID, returns nil if not found
	GetHistogram(ctx context.Context, imageID string) (*HistogramRecord, error)
	// CountHistograms returns the total number of histograms stored
	CountHistograms(ctx context.Context) (int, error)
	// FindSimilar returns the stored images closest to histogram by cosine distance
	FindSimilar(ctx context.Context, histogram []float32, limit int) ([]SimilarImage, error)
}

// HistogramWriter provides write access to stored histograms
type HistogramWriter interface {
	HistogramReader

	// SaveHistogram inserts or replaces the histogram of an image
	SaveHistogram(ctx context.Context, rec HistogramRecord) error
}
