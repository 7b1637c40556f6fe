package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vytor/gazetest/internal/coords"
	"github.com/vytor/gazetest/internal/logger"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/services"
)

type startRequest struct {
	Container *coords.Rect `json:"container"`
}

type samplesRequest struct {
	Samples []services.AbsoluteSample `json:"samples"`
}

type respondRequest struct {
	StimulusID string `json:"stimulus_id"`
}

type respondResponse struct {
	Ignored bool                `json:"ignored"`
	Result  *models.RoundResult `json:"result,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req services.CreateSessionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleError(w, r, err)
		return
	}
	sess, err := s.Sessions.CreateSession(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+sess.ID)
	writeJSON(w, r, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		handleError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		handleError(w, r, err)
		return
	}
	filter := models.SessionFilter{
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		PatientRef: strings.TrimSpace(r.URL.Query().Get("patient")),
		Limit:      limit,
		Offset:     offset,
	}

	list, total, err := s.Sessions.ListSessions(r.Context(), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"sessions": list,
		"total":    total,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req startRequest
	if err := decodeJSON(r, &req, true); err != nil {
		handleError(w, r, err)
		return
	}

	snap, err := s.Sessions.StartSession(r.Context(), id, req.Container)
	if err != nil {
		handleError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("session started: id=%s", id)
	writeJSON(w, r, http.StatusOK, snap)
}

func (s *Server) handleSetContainer(w http.ResponseWriter, r *http.Request) {
	var rect coords.Rect
	if err := decodeJSON(r, &rect, false); err != nil {
		handleError(w, r, err)
		return
	}
	if err := s.Sessions.SetContainer(r.Context(), chi.URLParam(r, "id"), rect); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Sessions.Skip(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	var req samplesRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleError(w, r, err)
		return
	}
	accepted, err := s.Sessions.IngestSamples(r.Context(), chi.URLParam(r, "id"), req.Samples)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]int{
		"received": len(req.Samples),
		"accepted": accepted,
	})
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleError(w, r, err)
		return
	}
	result, err := s.Sessions.Respond(r.Context(), chi.URLParam(r, "id"), req.StimulusID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, respondResponse{Ignored: result == nil, Result: result})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.CancelSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Sessions.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// handleSummary answers 404 until finalization has stored the summary row.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Sessions.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}
