// Package retrieval implements two-stage content-based image retrieval:
// candidates are selected by the object classes detected in the query image
// and then ranked by color histogram similarity.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/kozaktomas/image-query/internal/dataset"
	"github.com/kozaktomas/image-query/internal/detector"
	"github.com/kozaktomas/image-query/internal/histogram"
)

// Defaults for a new Pipeline.
const (
	DefaultMinCandidates = 2
	DefaultDetectTimeout = 30 * time.Second
	DefaultStoreTimeout  = 10 * time.Second
)

// Detector finds objects in encoded image data.
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]detector.Detection, error)
}

// Result is a successful retrieval.
type Result struct {
	QueryID string `json:"query_id"`
	// ImageIDs are the ranked dataset images, most similar first.
	ImageIDs []string `json:"image_ids"`
	Scores   []Score  `json:"scores"`
	// DetectedClasses are the usable detected classes, rarest first.
	DetectedClasses []string `json:"detected_classes"`
	// QueryClasses are the classes every returned image is linked to.
	QueryClasses      []string `json:"query_classes"`
	EliminatedClasses []string `json:"eliminated_classes,omitempty"`
	// Dropped lists candidates whose similarity was undefined.
	Dropped []string `json:"dropped,omitempty"`
}

// Pipeline runs retrievals against an immutable dataset. It is safe for
// concurrent use.
type Pipeline struct {
	dataset       *dataset.Dataset
	detector      Detector
	resolver      CandidateResolver
	strategy      Strategy
	ranker        *Ranker
	pool          *ants.Pool
	minCandidates int
	maxResults    int
	detectTimeout time.Duration
	storeTimeout  time.Duration
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithStrategy replaces the default StrictStrategy.
func WithStrategy(s Strategy) Option {
	return func(p *Pipeline) error {
		if s == nil {
			s = StrictStrategy{}
		}
		p.strategy = s
		return nil
	}
}

// WithMinCandidates sets how many scorable candidates a query needs.
// Default is 2.
func WithMinCandidates(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("min candidates must be at least 1, got %d", n)
		}
		p.minCandidates = n
		return nil
	}
}

// WithMaxResults limits the number of returned images. Zero returns all.
func WithMaxResults(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			n = 0
		}
		p.maxResults = n
		return nil
	}
}

// WithWorkers scores large candidate lists on a pool of n workers.
// Zero or less keeps scoring sequential.
func WithWorkers(n int) Option {
	return func(p *Pipeline) error {
		if p.pool != nil {
			p.pool.Release()
			p.pool = nil
		}
		if n < 1 {
			p.ranker = NewRanker(nil)
			return nil
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		p.pool = pool
		p.ranker = NewRanker(pool)
		return nil
	}
}

// WithDetectTimeout bounds the detector call. Zero disables the timeout.
func WithDetectTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.detectTimeout = d
		return nil
	}
}

// WithStoreTimeout bounds every class store call. Zero disables the timeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.storeTimeout = d
		return nil
	}
}

// NewPipeline creates a retrieval pipeline.
func NewPipeline(ds *dataset.Dataset, det Detector, resolver CandidateResolver, opts ...Option) (*Pipeline, error) {
	if ds == nil {
		return nil, ErrDatasetRequired
	}
	if det == nil {
		return nil, ErrDetectorRequired
	}
	if resolver == nil {
		return nil, ErrResolverRequired
	}

	p := &Pipeline{
		dataset:       ds,
		detector:      det,
		resolver:      resolver,
		strategy:      StrictStrategy{},
		ranker:        NewRanker(nil),
		minCandidates: DefaultMinCandidates,
		detectTimeout: DefaultDetectTimeout,
		storeTimeout:  DefaultStoreTimeout,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

// Close releases the scoring worker pool.
func (p *Pipeline) Close() {
	if p.pool != nil {
		p.pool.Release()
		p.pool = nil
	}
}

// Retrieve finds the dataset images most similar to the query image.
func (p *Pipeline) Retrieve(ctx context.Context, imageData []byte) (*Result, error) {
	queryID := uuid.NewString()
	logger := p.logger.With("query_id", queryID)
	start := time.Now()

	img, format, err := histogram.Decode(imageData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	logger.Debug("query image decoded", "format", format, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	detections, err := p.detect(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectorUnavailable, err)
	}

	classes := Normalize(detector.Labels(detections), p.dataset.Exclusions())
	if len(classes) == 0 {
		logger.Info("no usable detections", "detections", len(detections))
		return nil, ErrNoDetection
	}
	classes = RankByFrequency(classes, p.dataset.Frequencies())
	logger.Debug("classes ranked", "classes", classes)

	resolution, err := p.strategy.Resolve(ctx, storeResolver{next: p.resolver, timeout: p.storeTimeout}, classes)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, resolution.Candidates.Len())
	missing := 0
	for _, id := range resolution.Candidates.IDs() {
		vec, ok := p.dataset.Record(id)
		if !ok {
			missing++
			continue
		}
		candidates = append(candidates, Candidate{ID: id, Histogram: vec})
	}
	if missing > 0 {
		logger.Warn("candidates without histogram record", "missing", missing)
	}
	logger.Debug("candidates resolved",
		"query_classes", resolution.QueryClasses,
		"eliminated", resolution.Eliminated,
		"candidates", len(candidates))

	if len(candidates) < p.minCandidates {
		return nil, fmt.Errorf("%w: %d found for classes %v, need %d",
			ErrNoCandidates, len(candidates), resolution.QueryClasses, p.minCandidates)
	}

	query := histogram.Compute(img, p.dataset.Bins())
	scores, failed := p.ranker.Rank(query, candidates)
	dropped := make([]string, 0, len(failed))
	for _, f := range failed {
		logger.Warn("candidate dropped", "image_id", f.ImageID, "error", f.Err)
		dropped = append(dropped, f.ImageID)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("all %d candidates failed: %w", len(candidates), failed[0])
	}

	if p.maxResults > 0 && len(scores) > p.maxResults {
		scores = scores[:p.maxResults]
	}
	ids := make([]string, len(scores))
	for i, s := range scores {
		ids[i] = s.ImageID
	}

	logger.Info("retrieval complete",
		"classes", classes,
		"candidates", len(candidates),
		"results", len(ids),
		"dropped", len(dropped),
		"duration", time.Since(start))

	return &Result{
		QueryID:           queryID,
		ImageIDs:          ids,
		Scores:            scores,
		DetectedClasses:   classes,
		QueryClasses:      resolution.QueryClasses,
		EliminatedClasses: resolution.Eliminated,
		Dropped:           dropped,
	}, nil
}

func (p *Pipeline) detect(ctx context.Context, imageData []byte) ([]detector.Detection, error) {
	if p.detectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.detectTimeout)
		defer cancel()
	}
	return p.detector.Detect(ctx, imageData)
}

// Dataset returns the dataset the pipeline ranks against.
func (p *Pipeline) Dataset() *dataset.Dataset {
	return p.dataset
}
