package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/kozaktomas/image-query/internal/constants"
	"github.com/kozaktomas/image-query/internal/retrieval"
)

// Form fields accepted for the query image. The first is the one the demo
// page sends.
var imageFields = []string{"image-file", "image"}

// Retriever runs one retrieval for an encoded query image.
type Retriever interface {
	Retrieve(ctx context.Context, imageData []byte) (*retrieval.Result, error)
}

// QueryHandler handles image queries
type QueryHandler struct {
	retriever Retriever
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(r Retriever) *QueryHandler {
	return &QueryHandler{retriever: r}
}

// statusForError maps retrieval errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, retrieval.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, retrieval.ErrNoDetection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, retrieval.ErrNoCandidates):
		return http.StatusNotFound
	case errors.Is(err, retrieval.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, retrieval.ErrDetectorUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readImage returns the uploaded query image.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, errors.New("image too large")
		}
		return nil, http.StatusBadRequest, errors.New("expected a multipart/form-data upload")
	}

	for _, field := range imageFields {
		file, _, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		if len(data) == 0 {
			return nil, http.StatusBadRequest, errors.New("uploaded image is empty")
		}
		return data, http.StatusOK, nil
	}
	return nil, http.StatusBadRequest, errors.New("no image uploaded (form field image-file)")
}

// Query runs a retrieval for the uploaded image and returns the ranked image IDs.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	data, status, err := readImage(w, r)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	result, err := h.retriever.Retrieve(r.Context(), data)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			log.Printf("query failed: %s", sanitizeForLog(err.Error()))
		}
		respondJSON(w, status, ErrorResponse{Error: err.Error(), Kind: retrieval.Kind(err)})
		return
	}

	respondJSON(w, http.StatusOK, result)
}
