// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/kozaktomas/image-query/internal/database"
	"github.com/kozaktomas/image-query/internal/histogram"
)

// MockClassGraph is an in-memory implementation of database.ClassGraphWriter
type MockClassGraph struct {
	mu     sync.RWMutex
	images map[string]map[string]struct{}
	calls  [][]string

	// Error injection
	ResolveError   error
	ClassesOfError error
	StatsError     error
	SaveError      error
}

// NewMockClassGraph creates a new mock class graph
func NewMockClassGraph() *MockClassGraph {
	return &MockClassGraph{
		images: make(map[string]map[string]struct{}),
	}
}

// AddImage links an image to classes, keeping existing links
func (m *MockClassGraph) AddImage(imageID string, classes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.images[imageID]
	if !ok {
		set = make(map[string]struct{}, len(classes))
		m.images[imageID] = set
	}
	for _, c := range classes {
		set[c] = struct{}{}
	}
}

// Calls returns the class lists of every ResolveCandidates call, in call order
func (m *MockClassGraph) Calls() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = slices.Clone(c)
	}
	return out
}

// ResolveCandidates returns the images linked to every class
func (m *MockClassGraph) ResolveCandidates(ctx context.Context, classes []string) ([]string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, slices.Clone(classes))
	m.mu.Unlock()

	if m.ResolveError != nil {
		return nil, m.ResolveError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, set := range m.images {
		all := true
		for _, c := range classes {
			if _, ok := set[c]; !ok {
				all = false
				break
			}
		}
		if all {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// ClassesOf returns the classes of an image
func (m *MockClassGraph) ClassesOf(ctx context.Context, imageID string) ([]string, error) {
	if m.ClassesOfError != nil {
		return nil, m.ClassesOfError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.images[imageID]))
	for c := range m.images[imageID] {
		out = append(out, c)
	}
	slices.Sort(out)
	return out, nil
}

// Stats returns image, class and link counts
func (m *MockClassGraph) Stats(ctx context.Context) (database.GraphStats, error) {
	if m.StatsError != nil {
		return database.GraphStats{}, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	classes := make(map[string]struct{})
	stats := database.GraphStats{Images: len(m.images)}
	for _, set := range m.images {
		stats.Links += len(set)
		for c := range set {
			classes[c] = struct{}{}
		}
	}
	stats.Classes = len(classes)
	return stats, nil
}

// SaveImageClasses replaces the classes of an image
func (m *MockClassGraph) SaveImageClasses(ctx context.Context, imageID string, classes []string) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	delete(m.images, imageID)
	m.mu.Unlock()
	m.AddImage(imageID, classes...)
	return nil
}

// MockHistogramStore is an in-memory implementation of database.HistogramWriter
type MockHistogramStore struct {
	mu         sync.RWMutex
	histograms map[string]*database.HistogramRecord

	// Error injection
	GetError         error
	CountError       error
	FindSimilarError error
	SaveError        error
}

// NewMockHistogramStore creates a new mock histogram store
func NewMockHistogramStore() *MockHistogramStore {
	return &MockHistogramStore{
		histograms: make(map[string]*database.HistogramRecord),
	}
}

// GetHistogram retrieves a histogram by image ID
func (m *MockHistogramStore) GetHistogram(ctx context.Context, imageID string) (*database.HistogramRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.histograms[imageID], nil
}

// CountHistograms returns the number of stored histograms
func (m *MockHistogramStore) CountHistograms(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.histograms), nil
}

// FindSimilar returns stored histograms by descending cosine similarity
func (m *MockHistogramStore) FindSimilar(ctx context.Context, query []float32, limit int) ([]database.SimilarImage, error) {
	if m.FindSimilarError != nil {
		return nil, m.FindSimilarError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []database.SimilarImage
	for id, rec := range m.histograms {
		sim, err := histogram.Cosine(query, rec.Histogram)
		if err != nil {
			continue
		}
		results = append(results, database.SimilarImage{ImageID: id, Similarity: sim})
	}
	slices.SortFunc(results, func(a, b database.SimilarImage) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		if a.ImageID < b.ImageID {
			return -1
		}
		if a.ImageID > b.ImageID {
			return 1
		}
		return 0
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SaveHistogram stores a histogram
func (m *MockHistogramStore) SaveHistogram(ctx context.Context, rec database.HistogramRecord) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[rec.ImageID] = &rec
	return nil
}
