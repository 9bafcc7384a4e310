package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/image-query/internal/config"
	"github.com/kozaktomas/image-query/internal/database"
	"github.com/kozaktomas/image-query/internal/database/badgerdb"
	"github.com/kozaktomas/image-query/internal/database/mariadb"
	"github.com/kozaktomas/image-query/internal/database/postgres"
	"github.com/kozaktomas/image-query/internal/dataset"
	"github.com/kozaktomas/image-query/internal/detector"
	"github.com/kozaktomas/image-query/internal/histogram"
	"github.com/kozaktomas/image-query/internal/retrieval"
)

// graphStore is an open class graph backend.
type graphStore struct {
	graph database.ClassGraphWriter
	// histograms is only available on the postgres backend
	histograms database.HistogramWriter
	close      func() error
}

func (s *graphStore) Close() {
	if err := s.close(); err != nil {
		fmt.Printf("Warning: failed to close class graph store: %v\n", err)
	}
}

// openGraphStore connects to the class graph backend selected by GRAPH_BACKEND.
func openGraphStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*graphStore, error) {
	switch cfg.Graph.Backend {
	case database.BackendPostgres:
		if cfg.Database.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required")
		}
		pool, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return &graphStore{
			graph:      postgres.NewClassGraphRepository(pool),
			histograms: postgres.NewHistogramRepository(pool),
			close:      pool.Close,
		}, nil

	case database.BackendMariaDB:
		if cfg.Graph.MariaDBURL == "" {
			return nil, errors.New("MARIADB_URL environment variable is required")
		}
		pool, err := mariadb.NewPool(cfg.Graph.MariaDBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return &graphStore{graph: pool, close: pool.Close}, nil

	case database.BackendBadger:
		store, err := badgerdb.Open(cfg.Graph.BadgerPath, badgerdb.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return &graphStore{graph: store, close: store.Close}, nil

	default:
		return nil, fmt.Errorf("unknown GRAPH_BACKEND %q (use %s, %s or %s)",
			cfg.Graph.Backend, database.BackendPostgres, database.BackendMariaDB, database.BackendBadger)
	}
}

// loadDataset reads the exclusion list, frequency table and histograms.
func loadDataset(cfg *config.Config) (*dataset.Dataset, error) {
	ds, err := dataset.Load(dataset.Files{
		Exclusions:  cfg.Dataset.Path(cfg.Dataset.Exclusions),
		Frequencies: cfg.Dataset.Path(cfg.Dataset.Frequencies),
		Histograms:  cfg.Dataset.Path(cfg.Dataset.Histograms),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset from %s: %w", cfg.Dataset.Dir, err)
	}
	if ds.Len() > 0 && ds.Bins() != cfg.Retrieval.Bins {
		fmt.Printf("Warning: dataset histograms use %d bins, RETRIEVAL_BINS is %d; using %d\n",
			ds.Bins(), cfg.Retrieval.Bins, ds.Bins())
	}
	return ds, nil
}

// newDetector creates the configured object detector. Dataset class names are
// offered to vision models as their vocabulary.
func newDetector(ctx context.Context, cfg *config.Config, ds *dataset.Dataset) (detector.Detector, error) {
	det, err := detector.New(ctx, detector.Options{
		Provider:      cfg.Detector.Provider,
		URL:           cfg.Detector.URL,
		OpenAIToken:   cfg.OpenAI.Token,
		GeminiAPIKey:  cfg.Gemini.APIKey,
		MinConfidence: cfg.Detector.MinConfidence,
		Vocabulary:    ds.Frequencies().Classes(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}
	return det, nil
}

// newPipeline wires the retrieval pipeline from the retrieval config section.
func newPipeline(cfg *config.Config, ds *dataset.Dataset, det retrieval.Detector,
	resolver retrieval.CandidateResolver, logger *slog.Logger,
) (*retrieval.Pipeline, error) {
	r := cfg.Retrieval
	opts := []retrieval.Option{
		retrieval.WithLogger(logger),
		retrieval.WithMaxResults(r.MaxResults),
		retrieval.WithWorkers(r.Workers),
		retrieval.WithDetectTimeout(r.DetectTimeout),
		retrieval.WithStoreTimeout(r.StoreTimeout),
	}
	if r.MinCandidates > 0 {
		opts = append(opts, retrieval.WithMinCandidates(r.MinCandidates))
	}
	if r.Relaxation {
		opts = append(opts, retrieval.WithStrategy(retrieval.RelaxingStrategy{Target: r.RelaxationTarget}))
	}
	return retrieval.NewPipeline(ds, det, resolver, opts...)
}

// initHistogramIndex loads the persisted HNSW index when it matches the
// dataset content and rebuilds it otherwise.
func initHistogramIndex(ds *dataset.Dataset, indexPath string) *database.HistogramIndex {
	idx := database.NewHistogramIndex()
	fingerprint := ds.Fingerprint()

	if indexPath != "" {
		meta, err := database.LoadHNSWMetadata(indexPath)
		if err == nil && meta.IsFresh(ds.Len(), ds.Bins(), fingerprint) {
			if err := idx.Load(indexPath); err != nil {
				fmt.Printf("Warning: %v, rebuilding\n", err)
			} else if !idx.IsEmpty() {
				fmt.Printf("Histogram HNSW index loaded with %d images from %s\n", idx.Count(), indexPath)
				return idx
			}
		}
	}

	start := time.Now()
	records := make(map[string]histogram.Vector, ds.Len())
	for _, rec := range ds.Records() {
		records[rec.ID] = rec.Histogram
	}
	added := idx.Build(records)
	fmt.Printf("Histogram HNSW index built with %d images in %s\n", added, formatDuration(time.Since(start)))

	if indexPath != "" {
		meta := database.HNSWIndexMetadata{
			RecordCount: ds.Len(),
			Bins:        ds.Bins(),
			Fingerprint: fingerprint,
			BuildTime:   time.Now(),
		}
		if err := idx.SaveWithMetadata(indexPath, meta); err != nil {
			fmt.Printf("Warning: failed to save histogram HNSW index: %v\n", err)
		} else {
			fmt.Printf("Histogram HNSW index saved to %s\n", indexPath)
		}
	}
	return idx
}
