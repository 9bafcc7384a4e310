package histogram

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func TestComputeSolidColor(t *testing.T) {
	img := createTestImage(10, 10, color.NRGBA{R: 255, G: 8, B: 7, A: 255})

	vec := Compute(img, DefaultBins)
	if len(vec) != 3*DefaultBins {
		t.Fatalf("expected %d components, got %d", 3*DefaultBins, len(vec))
	}

	r, g, b := vec.Channels()
	if r[31] != 100 {
		t.Errorf("red bin 31 = %v; want 100", r[31])
	}
	if g[1] != 100 {
		t.Errorf("green bin 1 = %v; want 100", g[1])
	}
	if b[0] != 100 {
		t.Errorf("blue bin 0 = %v; want 100", b[0])
	}
}

func TestComputeChannelOrder(t *testing.T) {
	// Pure red must only populate the high bin of the first segment.
	img := createTestImage(4, 4, color.NRGBA{R: 250, A: 255})
	vec := Compute(img, DefaultBins)

	if vec[31] != 16 {
		t.Errorf("expected red high bin at index 31, got %v", vec[31])
	}
	if vec[DefaultBins] != 16 {
		t.Errorf("expected green zero bin at index %d, got %v", DefaultBins, vec[DefaultBins])
	}
	if vec[2*DefaultBins] != 16 {
		t.Errorf("expected blue zero bin at index %d, got %v", 2*DefaultBins, vec[2*DefaultBins])
	}
}

func TestComputeIgnoresAlpha(t *testing.T) {
	img := createTestImage(2, 2, color.NRGBA{R: 200, G: 100, B: 50, A: 10})
	vec := Compute(img, DefaultBins)
	r, g, b := vec.Channels()
	if r[200*DefaultBins/256] != 4 || g[100*DefaultBins/256] != 4 || b[50*DefaultBins/256] != 4 {
		t.Errorf("alpha should not affect binning: %v", vec)
	}
}

func TestComputeCustomBins(t *testing.T) {
	img := createTestImage(3, 3, color.NRGBA{R: 128, G: 127, B: 0, A: 255})
	vec := Compute(img, 2)
	want := Vector{0, 9, 9, 0, 9, 0}
	for i := range want {
		if vec[i] != want[i] {
			t.Fatalf("Compute with 2 bins = %v; want %v", vec, want)
		}
	}
}

func TestComputeGenericPathMatchesFastPath(t *testing.T) {
	nrgba := createTestImage(8, 8, color.NRGBA{R: 10, G: 90, B: 170, A: 255})
	rgba := image.NewRGBA(nrgba.Bounds())
	for y := range 8 {
		for x := range 8 {
			rgba.Set(x, y, nrgba.At(x, y))
		}
	}

	a := Compute(nrgba, DefaultBins)
	b := Compute(rgba, DefaultBins)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestComputeBytesRoundTrip(t *testing.T) {
	img := createTestImage(5, 5, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	vec, err := ComputeBytes(encodePNG(img), DefaultBins)
	if err != nil {
		t.Fatalf("ComputeBytes failed: %v", err)
	}

	var total float32
	for _, x := range vec {
		total += x
	}
	if total != 75 {
		t.Errorf("expected 25 pixels counted in 3 channels, got %v", total)
	}
}

func TestComputeBytesInvalid(t *testing.T) {
	if _, err := ComputeBytes([]byte("not an image"), DefaultBins); err == nil {
		t.Error("expected error for invalid image data")
	}
}

func TestFromChannelsMatchesCompute(t *testing.T) {
	img := createTestImage(6, 6, color.NRGBA{R: 30, G: 60, B: 90, A: 255})
	computed := Compute(img, DefaultBins)

	r, g, b := computed.Channels()
	rebuilt, err := FromChannels(append([]float32(nil), r...), append([]float32(nil), g...), append([]float32(nil), b...))
	if err != nil {
		t.Fatalf("FromChannels failed: %v", err)
	}
	if len(rebuilt) != len(computed) {
		t.Fatalf("length mismatch: %d vs %d", len(rebuilt), len(computed))
	}
	for i := range computed {
		if rebuilt[i] != computed[i] {
			t.Fatalf("component %d differs: %v vs %v", i, rebuilt[i], computed[i])
		}
	}
}

func TestFromChannelsLengthMismatch(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b []float32
	}{
		{"empty", nil, nil, nil},
		{"short green", make([]float32, 32), make([]float32, 31), make([]float32, 32)},
		{"long blue", make([]float32, 32), make([]float32, 32), make([]float32, 33)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromChannels(tc.r, tc.g, tc.b)
			if !errors.Is(err, ErrChannelLength) {
				t.Errorf("expected ErrChannelLength, got %v", err)
			}
		})
	}
}

func TestCosine(t *testing.T) {
	a := Vector{1, 2, 3, 4, 5, 6}
	neg := Vector{-1, -2, -3, -4, -5, -6}
	orth := Vector{2, -1, 0, 0, 0, 0}

	tests := []struct {
		name     string
		a, b     Vector
		expected float64
	}{
		{"self", a, a, 1.0},
		{"opposite", a, neg, -1.0},
		{"orthogonal", Vector{1, 2, 0, 0, 0, 0}, orth, 0.0},
		{"scaled", a, Vector{2, 4, 6, 8, 10, 12}, 1.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Cosine(tc.a, tc.b)
			if err != nil {
				t.Fatalf("Cosine failed: %v", err)
			}
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("Cosine = %v; want %v", got, tc.expected)
			}
		})
	}
}

func TestCosineZeroNorm(t *testing.T) {
	zero := make(Vector, 6)
	_, err := Cosine(zero, Vector{1, 1, 1, 1, 1, 1})
	if !errors.Is(err, ErrZeroNorm) {
		t.Errorf("expected ErrZeroNorm, got %v", err)
	}
	_, err = Cosine(Vector{1, 1, 1, 1, 1, 1}, zero)
	if !errors.Is(err, ErrZeroNorm) {
		t.Errorf("expected ErrZeroNorm, got %v", err)
	}
}

func TestCosineLengthMismatch(t *testing.T) {
	_, err := Cosine(Vector{1, 2, 3}, Vector{1, 2, 3, 4, 5, 6})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestVectorIsZero(t *testing.T) {
	if !make(Vector, 96).IsZero() {
		t.Error("expected zero vector")
	}
	if (Vector{0, 0, 1}).IsZero() {
		t.Error("expected non-zero vector")
	}
}
