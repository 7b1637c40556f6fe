package api

import (
	"context"
	"net/http"
	"time"

	"github.com/vytor/gazetest/internal/logger"
)

// handleHealth is the liveness probe. It also reports the finalization backlog.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.Queue != nil {
		body["finalize_queue"] = s.Queue.QueueSize()
	}
	if s.Sessions != nil {
		body["live_sessions"] = s.Sessions.LiveCount()
	}
	writeJSON(w, r, http.StatusOK, body)
}

// handleReady returns 200 if the database answers, 503 otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	if s.DB == nil {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		log.Warn("readiness check failed - database: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
