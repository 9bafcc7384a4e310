// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Dataset import constants
const (
	// DefaultConcurrency is the default number of parallel workers for
	// histogram extraction
	DefaultConcurrency = 5

	// ImportBatchLog is the number of imported images between progress log lines
	// when no progress bar is shown
	ImportBatchLog = 1000
)

// Similarity search constants
const (
	// DefaultSimilarLimit is the default limit for similarity search results
	DefaultSimilarLimit = 20

	// MaxSimilarLimit caps the limit query parameter of similarity searches
	MaxSimilarLimit = 500
)
