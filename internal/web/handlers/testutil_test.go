package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/image-query/internal/dataset"
	"github.com/kozaktomas/image-query/internal/histogram"
)

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartRequest builds a POST request uploading data in field
func multipartRequest(t *testing.T, path, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, "query.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// testDataset creates a small dataset with 1-bin histograms
func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(
		dataset.NewExclusionSet([]string{"Person"}),
		dataset.NewFrequencyTable([]dataset.Frequency{{Class: "Cat", Count: 3}, {Class: "Dog", Count: 1}}),
		[]dataset.Record{
			{ID: "1", Histogram: histogram.Vector{1, 0, 0}},
			{ID: "2", Histogram: histogram.Vector{0.9, 0.1, 0}},
			{ID: "3", Histogram: histogram.Vector{0, 0, 1}},
		},
	)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	return ds
}
