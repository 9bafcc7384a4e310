package database

import (
	"time"
)

// HistogramRecord is a dataset image histogram stored in the database.
type HistogramRecord struct {
	ImageID   string
	Histogram []float32 // 3 × Bins, R then G then B
	Bins      int
	CreatedAt time.Time
}

// SimilarImage is a nearest-neighbour hit for a histogram query.
type SimilarImage struct {
	ImageID    string  `json:"image_id"`
	Similarity float64 `json:"similarity"`
}

// GraphStats summarizes a class graph.
type GraphStats struct {
	Images  int `json:"images"`
	Classes int `json:"classes"`
	Links   int `json:"links"`
}
