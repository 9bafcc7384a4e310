package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/image-query/internal/histogram"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	RecordCount int       `json:"record_count"`
	Bins        int       `json:"bins"`
	Fingerprint string    `json:"fingerprint"` // digest of the indexed histograms
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"` // For future compatibility
}

const hnswMetadataVersion = 2

// ErrIndexEmpty is returned when searching an index with no graph loaded.
var ErrIndexEmpty = errors.New("index not initialized")

// HistogramIndex wraps an HNSW graph over dataset image histograms.
type HistogramIndex struct {
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string] // For persistence
	mu         sync.RWMutex
}

// NewHistogramIndex creates a new empty index.
func NewHistogramIndex() *HistogramIndex {
	return &HistogramIndex{}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index content with the given histograms. All-zero
// histograms have no direction and are skipped.
func (h *HistogramIndex) Build(records map[string]histogram.Vector) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savedGraph = nil
	if len(records) == 0 {
		h.graph = nil
		return 0
	}

	// Insert in key order so that the graph layout is reproducible.
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	g := newGraph()
	added := 0
	for _, id := range ids {
		vec := records[id]
		if len(vec) == 0 || vec.IsZero() {
			continue
		}
		g.Add(hnsw.MakeNode(id, []float32(vec)))
		added++
	}
	if added == 0 {
		h.graph = nil
		return 0
	}
	h.graph = g
	return added
}

// Add inserts a single histogram.
func (h *HistogramIndex) Add(id string, vec histogram.Vector) {
	if len(vec) == 0 || vec.IsZero() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.savedGraph != nil {
		h.savedGraph.Add(hnsw.MakeNode(id, []float32(vec)))
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(id, []float32(vec)))
}

func (h *HistogramIndex) active() *hnsw.Graph[string] {
	if h.savedGraph != nil {
		return h.savedGraph.Graph
	}
	return h.graph
}

// Search returns up to k indexed images nearest to query, most similar
// first, skipping the image with ID exclude (pass "" to keep all).
func (h *HistogramIndex) Search(query histogram.Vector, k int, exclude string) ([]SimilarImage, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.active()
	if g == nil || g.Len() == 0 {
		return nil, ErrIndexEmpty
	}
	if k <= 0 {
		return nil, nil
	}

	neighbors := g.Search([]float32(query), k*HNSWSearchMultiplier+1)
	results := make([]SimilarImage, 0, k)
	for _, n := range neighbors {
		if n.Key == exclude {
			continue
		}
		// Compute the exact similarity from the node vector.
		sim, err := histogram.Cosine(query, histogram.Vector(n.Value))
		if err != nil {
			continue
		}
		results = append(results, SimilarImage{ImageID: n.Key, Similarity: sim})
	}

	slices.SortStableFunc(results, func(a, b SimilarImage) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return 0
		}
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// FindSimilar implements SimilarFinder on top of Search.
func (h *HistogramIndex) FindSimilar(ctx context.Context, query []float32, limit int) ([]SimilarImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.Search(histogram.Vector(query), limit, "")
}

// Count returns the number of indexed images.
func (h *HistogramIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	g := h.active()
	if g == nil {
		return 0
	}
	return g.Len()
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HistogramIndex) IsEmpty() bool {
	return h.Count() == 0
}

// SaveWithMetadata persists the index to disk along with metadata for staleness detection.
func (h *HistogramIndex) SaveWithMetadata(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.active()
	if g == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := g.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metadata.Version = hnswMetadataVersion
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load loads the index from disk. A missing file leaves the index empty.
func (h *HistogramIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.savedGraph = saved
	h.graph = nil
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}

// IsFresh reports whether metadata describes an index built for a dataset
// with recordCount records of the given bin count and content fingerprint.
func (m HNSWIndexMetadata) IsFresh(recordCount, bins int, fingerprint string) bool {
	return m.Version == hnswMetadataVersion &&
		m.RecordCount == recordCount &&
		m.Bins == bins &&
		m.Fingerprint != "" &&
		m.Fingerprint == fingerprint
}
