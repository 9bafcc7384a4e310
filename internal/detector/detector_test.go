package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestResizeImage_NoResizeNeeded(t *testing.T) {
	data := encodePNG(createTestImage(100, 100, color.White))

	resized, err := ResizeImage(data, 200)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	decoded, format, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg format, got %s", format)
	}
	if decoded.Bounds().Dx() != 100 {
		t.Errorf("expected width 100, got %d", decoded.Bounds().Dx())
	}
}

func TestResizeImage_KeepsAspectRatio(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		maxSize       int
		wantW, wantH  int
	}{
		{"landscape", 2000, 1000, 500, 500, 250},
		{"portrait", 1000, 2000, 500, 250, 500},
		{"square", 1000, 1000, 200, 200, 200},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := encodeJPEG(createTestImage(tc.width, tc.height, color.White))
			resized, err := ResizeImage(data, tc.maxSize)
			if err != nil {
				t.Fatalf("ResizeImage failed: %v", err)
			}
			img, _, err := image.Decode(bytes.NewReader(resized))
			if err != nil {
				t.Fatalf("failed to decode resized image: %v", err)
			}
			if img.Bounds().Dx() != tc.wantW || img.Bounds().Dy() != tc.wantH {
				t.Errorf("got %dx%d; want %dx%d", img.Bounds().Dx(), img.Bounds().Dy(), tc.wantW, tc.wantH)
			}
		})
	}
}

func TestResizeImage_InvalidData(t *testing.T) {
	if _, err := ResizeImage([]byte("not an image"), 100); err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", encodeJPEG(createTestImage(4, 4, color.White)), "image/jpeg"},
		{"png", encodePNG(createTestImage(4, 4, color.White)), "image/png"},
		{"gif", []byte("GIF89a\x00\x00\x00"), "image/gif"},
		{"bmp", []byte("BM\x00\x00\x00\x00\x00\x00"), "image/bmp"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("plain text data"), "application/octet-stream"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectMIMEType(tc.data); got != tc.expected {
				t.Errorf("detectMIMEType() = %s; want %s", got, tc.expected)
			}
		})
	}
}

func TestHTTPDetector_Detect(t *testing.T) {
	imageData := encodeJPEG(createTestImage(8, 8, color.Black))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("unexpected part content type %s", ct)
		}
		body, _ := io.ReadAll(file)
		if !bytes.Equal(body, imageData) {
			t.Error("uploaded bytes differ from input")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "yolov8",
			"detections": []map[string]any{
				{"label": "Dog", "confidence": 0.91, "box": []float64{1, 2, 3, 4}},
				{"label": "Person", "confidence": 0.4},
			},
		})
	}))
	defer server.Close()

	d := NewHTTPDetector(server.URL + "/")
	detections, err := d.Detect(context.Background(), imageData)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(detections) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(detections))
	}
	if detections[0].Label != "Dog" || detections[0].Confidence != 0.91 || len(detections[0].Box) != 4 {
		t.Errorf("unexpected first detection: %+v", detections[0])
	}
	if labels := Labels(detections); labels[0] != "Dog" || labels[1] != "Person" {
		t.Errorf("unexpected labels: %v", labels)
	}
}

func TestHTTPDetector_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPDetector(server.URL).Detect(context.Background(), []byte("data"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error should mention status code: %v", err)
	}
}

func TestHTTPDetector_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	if _, err := NewHTTPDetector(server.URL).Detect(context.Background(), []byte("data")); err == nil {
		t.Error("expected parse error")
	}
}

type staticDetector struct {
	detections []Detection
	err        error
}

func (s *staticDetector) Name() string { return "static" }

func (s *staticDetector) Detect(context.Context, []byte) ([]Detection, error) {
	return s.detections, s.err
}

func TestWithMinConfidence(t *testing.T) {
	inner := &staticDetector{detections: []Detection{
		{Label: "Cat", Confidence: 0.9},
		{Label: "Bird", Confidence: 0.2},
		{Label: "Dog", Confidence: 0.5},
	}}

	d := WithMinConfidence(inner, 0.5)
	if d.Name() != "static" {
		t.Errorf("wrapper should keep the backend name, got %s", d.Name())
	}
	got, err := d.Detect(context.Background(), nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(got) != 2 || got[0].Label != "Cat" || got[1].Label != "Dog" {
		t.Errorf("unexpected detections: %+v", got)
	}

	failing := WithMinConfidence(&staticDetector{err: errors.New("boom")}, 0.5)
	if _, err := failing.Detect(context.Background(), nil); err == nil {
		t.Error("expected error to propagate")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	d, err := New(ctx, Options{Provider: "HTTP", URL: "http://model:9000"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if d.Name() != "http:http://model:9000" {
		t.Errorf("unexpected name %s", d.Name())
	}

	d, err = New(ctx, Options{MinConfidence: 0.3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := d.(*confidenceFilter); !ok {
		t.Errorf("expected confidence filter, got %T", d)
	}

	if _, err := New(ctx, Options{Provider: "openai"}); err == nil {
		t.Error("expected error without OpenAI token")
	}
	if _, err := New(ctx, Options{Provider: "gemini"}); err == nil {
		t.Error("expected error without Gemini key")
	}
	if _, err := New(ctx, Options{Provider: "darknet"}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestOpenAIDetector_Name(t *testing.T) {
	d := NewOpenAIDetector("sk-test", nil)
	if d.Name() == "" {
		t.Error("expected model name")
	}
}

func TestParseDetections(t *testing.T) {
	got, err := parseDetections(`{"detections":[{"label":" Cat ","confidence":0.8},{"label":"","confidence":0.9}]}`)
	if err != nil {
		t.Fatalf("parseDetections failed: %v", err)
	}
	if len(got) != 1 || got[0].Label != "Cat" {
		t.Errorf("unexpected detections: %+v", got)
	}

	if _, err := parseDetections("nope"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestBuildDetectPrompt(t *testing.T) {
	if buildDetectPrompt(nil) != detectObjectsPrompt {
		t.Error("prompt without vocabulary should be the base prompt")
	}
	p := buildDetectPrompt([]string{"Cat", "Dog"})
	if !strings.Contains(p, "Cat, Dog") {
		t.Errorf("prompt should list vocabulary: %s", p)
	}
}
