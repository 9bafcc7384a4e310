package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/image-query/internal/database"
	"github.com/kozaktomas/image-query/internal/histogram"
)

func similarRequest(id, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/images/"+id+"/similar"+query, nil)
	return requestWithChiParams(req, map[string]string{"id": id})
}

func testIndex(t *testing.T) *database.HistogramIndex {
	t.Helper()
	ds := testDataset(t)
	records := make(map[string]histogram.Vector, ds.Len())
	for _, rec := range ds.Records() {
		records[rec.ID] = rec.Histogram
	}
	idx := database.NewHistogramIndex()
	idx.Build(records)
	return idx
}

func TestSimilar_Get(t *testing.T) {
	handler := NewSimilarHandler(testDataset(t), testIndex(t))

	recorder := httptest.NewRecorder()
	handler.Get(recorder, similarRequest("1", "?limit=1"))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var resp SimilarResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.ImageID != "1" {
		t.Errorf("expected image_id 1, got %s", resp.ImageID)
	}
	if len(resp.Results) != 1 || resp.Results[0].ImageID != "2" {
		t.Errorf("expected nearest image 2, got %+v", resp.Results)
	}
}

func TestSimilar_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler *SimilarHandler
		id      string
		query   string
		status  int
	}{
		{"unknown image", NewSimilarHandler(testDataset(t), testIndex(t)), "404", "", http.StatusNotFound},
		{"bad limit", NewSimilarHandler(testDataset(t), testIndex(t)), "1", "?limit=abc", http.StatusBadRequest},
		{"zero limit", NewSimilarHandler(testDataset(t), testIndex(t)), "1", "?limit=0", http.StatusBadRequest},
		{"no finder", NewSimilarHandler(testDataset(t), nil), "1", "", http.StatusServiceUnavailable},
		{"empty index", NewSimilarHandler(testDataset(t), database.NewHistogramIndex()), "1", "", http.StatusServiceUnavailable},
		{"finder error", NewSimilarHandler(testDataset(t), failingFinder{}), "1", "", http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			tc.handler.Get(recorder, similarRequest(tc.id, tc.query))
			if recorder.Code != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, recorder.Code)
			}
		})
	}
}

type failingFinder struct{}

func (failingFinder) FindSimilar(ctx context.Context, hist []float32, limit int) ([]database.SimilarImage, error) {
	return nil, errors.New("connection reset")
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"?limit=5", 5},
		{"?limit=100000", 500},
	}
	for _, tc := range tests {
		got, err := parseLimit(httptest.NewRequest(http.MethodGet, "/"+tc.query, nil))
		if err != nil {
			t.Errorf("parseLimit(%q) error: %v", tc.query, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tc.query, got, tc.want)
		}
	}
}
