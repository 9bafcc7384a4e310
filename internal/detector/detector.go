// Package detector provides object-detection backends that turn an image
// into a list of class labels.
package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Detection is a single object found in an image.
type Detection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box,omitempty"` // [x1, y1, x2, y2] in pixels, when known
}

// Detector detects objects in encoded image data.
type Detector interface {
	Name() string
	Detect(ctx context.Context, imageData []byte) ([]Detection, error)
}

// Supported provider names.
const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ErrUnknownProvider is returned by New for unsupported provider names.
var ErrUnknownProvider = errors.New("unknown detector provider")

// Options configures a detector backend.
type Options struct {
	Provider      string
	URL           string   // model server URL (http provider)
	OpenAIToken   string   // openai provider
	GeminiAPIKey  string   // gemini provider
	MinConfidence float64  // detections below this confidence are dropped
	Vocabulary    []string // class names a vision model may answer with
}

// New creates the detector selected by opts.Provider.
func New(ctx context.Context, opts Options) (Detector, error) {
	var (
		d   Detector
		err error
	)
	switch strings.ToLower(opts.Provider) {
	case "", ProviderHTTP:
		d = NewHTTPDetector(opts.URL)
	case ProviderOpenAI:
		if opts.OpenAIToken == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai detector")
		}
		d = NewOpenAIDetector(opts.OpenAIToken, opts.Vocabulary)
	case ProviderGemini:
		if opts.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini detector")
		}
		d, err = NewGeminiDetector(ctx, opts.GeminiAPIKey, opts.Vocabulary)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, opts.Provider)
	}

	if opts.MinConfidence > 0 {
		d = WithMinConfidence(d, opts.MinConfidence)
	}
	return d, nil
}

type confidenceFilter struct {
	Detector
	min float64
}

// WithMinConfidence wraps a detector and drops detections below min.
func WithMinConfidence(d Detector, min float64) Detector {
	return &confidenceFilter{Detector: d, min: min}
}

func (f *confidenceFilter) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	detections, err := f.Detector.Detect(ctx, imageData)
	if err != nil {
		return nil, err
	}
	kept := detections[:0]
	for _, d := range detections {
		if d.Confidence >= f.min {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

// Labels returns the labels of detections in detection order.
func Labels(detections []Detection) []string {
	labels := make([]string, len(detections))
	for i, d := range detections {
		labels[i] = d.Label
	}
	return labels
}
