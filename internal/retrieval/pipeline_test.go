package retrieval

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/image-query/internal/database/mock"
	"github.com/kozaktomas/image-query/internal/dataset"
	"github.com/kozaktomas/image-query/internal/detector"
	"github.com/kozaktomas/image-query/internal/histogram"
)

const testBins = 4

type fakeDetector struct {
	labels []string
	err    error
	calls  atomic.Int32
}

func (d *fakeDetector) Detect(ctx context.Context, imageData []byte) ([]detector.Detection, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	out := make([]detector.Detection, len(d.labels))
	for i, l := range d.labels {
		out[i] = detector.Detection{Label: l, Confidence: 0.9}
	}
	return out, nil
}

func solidPNG(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	navy  = color.NRGBA{B: 128, A: 255}
)

// solidHistogram is the histogram of a uniform image of color c.
func solidHistogram(t *testing.T, c color.NRGBA) histogram.Vector {
	t.Helper()
	vec, err := histogram.ComputeBytes(solidPNG(t, c), testBins)
	require.NoError(t, err)
	return vec
}

func newTestDataset(t *testing.T, records ...dataset.Record) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(
		dataset.NewExclusionSet([]string{"Person", "Clothing"}),
		dataset.NewFrequencyTable([]dataset.Frequency{
			{Class: "Cat", Count: 50},
			{Class: "Dog", Count: 5},
			{Class: "Ball", Count: 2},
		}),
		records,
	)
	require.NoError(t, err)
	return ds
}

func defaultRecords(t *testing.T) []dataset.Record {
	return []dataset.Record{
		{ID: "1", Histogram: solidHistogram(t, red)},
		{ID: "2", Histogram: solidHistogram(t, green)},
		{ID: "3", Histogram: solidHistogram(t, navy)},
		{ID: "4", Histogram: solidHistogram(t, red)},
	}
}

func newTestPipeline(t *testing.T, det Detector, graph CandidateResolver, records []dataset.Record, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(newTestDataset(t, records...), det, graph, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestRetrieve(t *testing.T) {
	graph := mock.NewMockClassGraph()
	graph.AddImage("1", "Dog", "Cat")
	graph.AddImage("2", "Dog", "Cat", "Ball")
	graph.AddImage("3", "Cat", "Dog")
	graph.AddImage("4", "Cat")
	det := &fakeDetector{labels: []string{"Person", "Cat", "Dog", "Cat"}}

	p := newTestPipeline(t, det, graph, defaultRecords(t))
	res, err := p.Retrieve(context.Background(), solidPNG(t, red))
	require.NoError(t, err)

	assert.NotEmpty(t, res.QueryID)
	assert.Equal(t, []string{"Dog", "Cat"}, res.DetectedClasses, "rarest class first")
	assert.Equal(t, []string{"Dog", "Cat"}, res.QueryClasses)
	assert.Equal(t, [][]string{{"Dog", "Cat"}}, graph.Calls())

	require.Equal(t, []string{"1", "2", "3"}, res.ImageIDs)
	require.Len(t, res.Scores, 3)
	assert.InDelta(t, 1.0, res.Scores[0].Similarity, 1e-9)
	assert.GreaterOrEqual(t, res.Scores[1].Similarity, res.Scores[2].Similarity)
	assert.NotContains(t, res.ImageIDs, "4", "image linked to only some classes is not a candidate")
	assert.Empty(t, res.Dropped)
}

func TestRetrieve_Deterministic(t *testing.T) {
	graph := mock.NewMockClassGraph()
	for _, id := range []string{"1", "2", "3", "4"} {
		graph.AddImage(id, "Dog")
	}
	det := &fakeDetector{labels: []string{"Dog"}}
	p := newTestPipeline(t, det, graph, defaultRecords(t))

	query := solidPNG(t, red)
	first, err := p.Retrieve(context.Background(), query)
	require.NoError(t, err)
	second, err := p.Retrieve(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, first.ImageIDs, second.ImageIDs)
	assert.Equal(t, first.Scores, second.Scores)
	// 1 and 4 share the exact same histogram.
	assert.Equal(t, []string{"1", "4"}, first.ImageIDs[:2])
}

func TestRetrieve_DecodeError(t *testing.T) {
	graph := mock.NewMockClassGraph()
	det := &fakeDetector{labels: []string{"Dog"}}
	p := newTestPipeline(t, det, graph, defaultRecords(t))

	_, err := p.Retrieve(context.Background(), []byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, "decode", Kind(err))
	assert.Zero(t, det.calls.Load(), "detector must not run for undecodable input")
	assert.Empty(t, graph.Calls())
}

func TestRetrieve_DetectorUnavailable(t *testing.T) {
	graph := mock.NewMockClassGraph()
	cause := errors.New("model server down")
	det := &fakeDetector{err: cause}
	p := newTestPipeline(t, det, graph, defaultRecords(t))

	_, err := p.Retrieve(context.Background(), solidPNG(t, red))
	assert.ErrorIs(t, err, ErrDetectorUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, graph.Calls())
}

func TestRetrieve_NoDetection(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
	}{
		{"nothing detected", nil},
		{"only excluded classes", []string{"Person", "Clothing", "Person"}},
		{"blank labels", []string{"", "  "}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			graph := mock.NewMockClassGraph()
			p := newTestPipeline(t, &fakeDetector{labels: tc.labels}, graph, defaultRecords(t))

			_, err := p.Retrieve(context.Background(), solidPNG(t, red))
			assert.ErrorIs(t, err, ErrNoDetection)
			assert.Empty(t, graph.Calls(), "store must not be queried")
		})
	}
}

func TestRetrieve_StoreUnavailable(t *testing.T) {
	graph := mock.NewMockClassGraph()
	graph.ResolveError = errors.New("connection refused")
	p := newTestPipeline(t, &fakeDetector{labels: []string{"Dog"}}, graph, defaultRecords(t))

	_, err := p.Retrieve(context.Background(), solidPNG(t, red))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, "store_unavailable", Kind(err))
}

func TestRetrieve_StoreTimeout(t *testing.T) {
	p := newTestPipeline(t, &fakeDetector{labels: []string{"Dog"}}, blockingResolver{}, defaultRecords(t),
		WithStoreTimeout(20*time.Millisecond))

	_, err := p.Retrieve(context.Background(), solidPNG(t, red))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// The ranker is never reached when the candidate set is too small, even if
// scoring the only candidate would fail.
func TestRetrieve_NotEnoughCandidates(t *testing.T) {
	records := append(defaultRecords(t), dataset.Record{ID: "zero", Histogram: make(histogram.Vector, 3*testBins)})

	tests := []struct {
		name  string
		setup func(*mock.MockClassGraph)
	}{
		{"no candidates", func(g *mock.MockClassGraph) {
			g.AddImage("1", "Cat")
		}},
		{"single candidate", func(g *mock.MockClassGraph) {
			g.AddImage("zero", "Dog")
			g.AddImage("1", "Cat")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			graph := mock.NewMockClassGraph()
			tc.setup(graph)
			p := newTestPipeline(t, &fakeDetector{labels: []string{"Dog"}}, graph, records)

			_, err := p.Retrieve(context.Background(), solidPNG(t, red))
			assert.ErrorIs(t, err, ErrNoCandidates)
			assert.NotErrorIs(t, err, ErrComputation)
		})
	}
}

func TestRetrieve_MissingRecordsDoNotCount(t *testing.T) {
	graph := mock.NewMockClassGraph()
	graph.AddImage("1", "Dog")
	graph.AddImage("404", "Dog")
	p := newTestPipeline(t, &fakeDetector{labels: []string{"Dog"}}, graph, defaultRecords(t))

	_, err := p.Retrieve(context.Background(), solidPNG(t, red))
	assert.ErrorIs(t, err, ErrNoCandidates)

	graph.AddImage("2", "Dog")
	res, err := p.Retrieve(context.Background(), solidPNG(t, red))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, res.ImageIDs)
}

func TestRetrieve_DropsUndefinedSimilarity(t *testing.T) {
	records := append(defaultRecords(t), dataset.Record{ID: "zero", Histogram: make(histogram.Vector, 3*testBins)})
	graph := mock.NewMockClassGraph()
	graph.AddImage("1", "Dog")
	graph.AddImage("2", "Dog")
	graph.AddImage("zero", "Dog")
	p := newTestPipeline(t, &fakeDetector{labels: []string{"Dog"}}, graph, records)

	res, err := p.Retrieve(context.Background(), solidPNG(t, red))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, res.ImageIDs)
	assert.Equal(t, []string{"zero"}, res.Dropped)
}

func TestRetrieve_AllCandidatesFail(t *testing.T) {
	records := []dataset.Record{
		{ID: "a", Histogram: make(histogram.Vector, 3*testBins)},
		{ID: "b", Histogram: make(histogram.Vector, 3*testBins)},
	}
	graph := mock.NewMockClassGraph()
	graph.AddImage("a", "Dog")
	graph.AddImage("b", "Dog")
	p := newTestPipeline(t, &fakeDetector{labels: []string{"Dog"}}, graph, records)

	_, err := p.Retrieve(context.Background(), solidPNG(t, red))
	assert.ErrorIs(t, err, ErrComputation)

	var compErr *ComputationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "a", compErr.ImageID)
}

func TestRetrieve_MaxResults(t *testing.T) {
	graph := mock.NewMockClassGraph()
	for _, id := range []string{"1", "2", "3", "4"} {
		graph.AddImage(id, "Cat")
	}
	p := newTestPipeline(t, &fakeDetector{labels: []string{"Cat"}}, graph, defaultRecords(t), WithMaxResults(2))

	res, err := p.Retrieve(context.Background(), solidPNG(t, red))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4"}, res.ImageIDs)
	assert.Len(t, res.Scores, 2)
}

func TestRetrieve_RelaxingStrategy(t *testing.T) {
	graph := mock.NewMockClassGraph()
	graph.AddImage("1", "Ball", "Dog", "Cat")
	graph.AddImage("2", "Ball", "Dog")
	graph.AddImage("3", "Cat")
	det := &fakeDetector{labels: []string{"Cat", "Dog", "Ball"}}

	p := newTestPipeline(t, det, graph, defaultRecords(t), WithStrategy(RelaxingStrategy{Target: 2}))
	res, err := p.Retrieve(context.Background(), solidPNG(t, red))
	require.NoError(t, err)

	assert.Equal(t, []string{"Ball", "Dog", "Cat"}, res.DetectedClasses)
	assert.Equal(t, []string{"Ball", "Dog"}, res.QueryClasses)
	assert.Equal(t, []string{"Cat"}, res.EliminatedClasses)
	assert.Equal(t, []string{"1", "2"}, res.ImageIDs)
}

func TestRetrieve_WithWorkers(t *testing.T) {
	graph := mock.NewMockClassGraph()
	for _, id := range []string{"1", "2", "3", "4"} {
		graph.AddImage(id, "Dog")
	}
	det := &fakeDetector{labels: []string{"Dog"}}

	sequential := newTestPipeline(t, det, graph, defaultRecords(t))
	parallel := newTestPipeline(t, det, graph, defaultRecords(t), WithWorkers(2))
	parallel.ranker.threshold = 0

	query := solidPNG(t, green)
	want, err := sequential.Retrieve(context.Background(), query)
	require.NoError(t, err)
	got, err := parallel.Retrieve(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, want.Scores, got.Scores)
	assert.Equal(t, "2", got.ImageIDs[0])
}

func TestNewPipeline_Validation(t *testing.T) {
	ds := newTestDataset(t, defaultRecords(t)...)
	graph := mock.NewMockClassGraph()
	det := &fakeDetector{}

	_, err := NewPipeline(nil, det, graph)
	assert.ErrorIs(t, err, ErrDatasetRequired)
	_, err = NewPipeline(ds, nil, graph)
	assert.ErrorIs(t, err, ErrDetectorRequired)
	_, err = NewPipeline(ds, det, nil)
	assert.ErrorIs(t, err, ErrResolverRequired)

	_, err = NewPipeline(ds, det, graph, WithMinCandidates(0))
	assert.Error(t, err)

	p, err := NewPipeline(ds, det, graph, WithMinCandidates(1), WithLogger(nil), WithStrategy(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, p.minCandidates)
	assert.IsType(t, StrictStrategy{}, p.strategy)
	assert.Same(t, ds, p.Dataset())
	p.Close()
}
