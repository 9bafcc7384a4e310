package handlers

import (
	"log"
	"net/http"

	"github.com/kozaktomas/image-query/internal/database"
	"github.com/kozaktomas/image-query/internal/dataset"
)

// DatasetHandler reports what the server retrieves from
type DatasetHandler struct {
	dataset *dataset.Dataset
	graph   database.ClassGraphReader
}

// NewDatasetHandler creates a new dataset handler. graph may be nil.
func NewDatasetHandler(ds *dataset.Dataset, graph database.ClassGraphReader) *DatasetHandler {
	return &DatasetHandler{dataset: ds, graph: graph}
}

// DatasetResponse represents the dataset statistics response
type DatasetResponse struct {
	Records    int                  `json:"records"`
	Duplicates int                  `json:"duplicates"`
	Bins       int                  `json:"bins"`
	Classes    int                  `json:"classes"`
	Exclusions int                  `json:"exclusions"`
	Graph      *database.GraphStats `json:"graph,omitempty"`
}

// Get returns dataset and class graph counts.
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := DatasetResponse{
		Records:    h.dataset.Len(),
		Duplicates: h.dataset.Duplicates(),
		Bins:       h.dataset.Bins(),
		Classes:    h.dataset.Frequencies().Len(),
		Exclusions: h.dataset.Exclusions().Len(),
	}

	if h.graph != nil {
		stats, err := h.graph.Stats(r.Context())
		if err != nil {
			// The dataset part is still useful without the store.
			log.Printf("class graph stats failed: %v", err)
		} else {
			resp.Graph = &stats
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
