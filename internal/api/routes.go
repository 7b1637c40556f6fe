package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)
	r.Use(corsMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/start", s.handleStartSession)
			r.Post("/container", s.handleSetContainer)
			r.Post("/skip", s.handleSkip)
			r.Post("/samples", s.handleSamples)
			r.Post("/respond", s.handleRespond)
			r.Post("/cancel", s.handleCancelSession)
			r.Get("/state", s.handleState)
			r.Get("/summary", s.handleSummary)
			r.Get("/reaction-log", s.handleReactionLog)
			r.Get("/rounds/{n}/heatmap", s.handleHeatmap)
		})
	})

	r.Get("/files/{bucket}/*", s.handleFile)
	return r
}
