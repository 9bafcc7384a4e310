package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/image-query/internal/constants"
	"github.com/kozaktomas/image-query/internal/database"
	"github.com/kozaktomas/image-query/internal/histogram"
)

// HistogramLookup returns the stored histogram of a dataset image.
type HistogramLookup interface {
	Record(id string) (histogram.Vector, bool)
}

// SimilarHandler finds dataset images with a similar color distribution
type SimilarHandler struct {
	histograms HistogramLookup
	finder     database.SimilarFinder
}

// NewSimilarHandler creates a new similar images handler
func NewSimilarHandler(histograms HistogramLookup, finder database.SimilarFinder) *SimilarHandler {
	return &SimilarHandler{histograms: histograms, finder: finder}
}

// SimilarResponse lists the nearest images to a dataset image
type SimilarResponse struct {
	ImageID string                  `json:"image_id"`
	Results []database.SimilarImage `json:"results"`
}

// parseLimit reads the limit query parameter.
func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return constants.DefaultSimilarLimit, nil
	}
	limit, err := strconv.Atoi(s)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(limit, constants.MaxSimilarLimit), nil
}

// Get returns the images nearest to {id} by histogram similarity.
func (h *SimilarHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	vec, ok := h.histograms.Record(id)
	if !ok {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	if h.finder == nil {
		respondError(w, http.StatusServiceUnavailable, "similarity search is not configured")
		return
	}

	// One extra result since the image itself is usually its own nearest neighbor.
	found, err := h.finder.FindSimilar(r.Context(), vec, limit+1)
	if errors.Is(err, database.ErrIndexEmpty) {
		respondError(w, http.StatusServiceUnavailable, "similarity index is empty")
		return
	}
	if err != nil {
		log.Printf("similar search for %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "similarity search failed")
		return
	}

	results := make([]database.SimilarImage, 0, limit)
	for _, s := range found {
		if s.ImageID == id {
			continue
		}
		results = append(results, s)
		if len(results) == limit {
			break
		}
	}

	respondJSON(w, http.StatusOK, SimilarResponse{ImageID: id, Results: results})
}
