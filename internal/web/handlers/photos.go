package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

// PhotosHandler serves dataset photos so clients can display results
type PhotosHandler struct {
	dir string
}

// NewPhotosHandler creates a handler serving files from dir
func NewPhotosHandler(dir string) *PhotosHandler {
	return &PhotosHandler{dir: dir}
}

// Get serves /static/Photos/{filename}.
func (h *PhotosHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if h.dir == "" || name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}
