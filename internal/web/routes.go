package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/image-query/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	queryHandler := handlers.NewQueryHandler(s.deps.Retriever)
	similarHandler := handlers.NewSimilarHandler(s.deps.Dataset, s.deps.Similar)
	datasetHandler := handlers.NewDatasetHandler(s.deps.Dataset, s.deps.Graph)
	photosHandler := handlers.NewPhotosHandler(s.config.Dataset.PhotosDir)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Post("/query", queryHandler.Query)
		r.Get("/images/{id}/similar", similarHandler.Get)
		r.Get("/dataset", datasetHandler.Get)
	})

	// Legacy form endpoint, accepts the same multipart field as /api/v1/query
	s.router.Post("/upload", queryHandler.Query)

	s.router.Get("/static/Photos/{filename}", photosHandler.Get)
}
