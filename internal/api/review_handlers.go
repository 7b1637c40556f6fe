package api

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vytor/gazetest/internal/coords"
	"github.com/vytor/gazetest/internal/errors"
	"github.com/vytor/gazetest/internal/logger"
	"github.com/vytor/gazetest/internal/services"
	"github.com/vytor/gazetest/internal/storage"
)

func (s *Server) handleReactionLog(w http.ResponseWriter, r *http.Request) {
	rl, err := s.Review.ReactionLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="reaction_log_`+rl.SessionID+`.csv"`)
		_, _ = w.Write([]byte(rl.CSV))
		return
	}
	writeJSON(w, r, http.StatusOK, rl)
}

// handleHeatmap replays a stored round. width/height (and optionally
// left/top) re-project the points into that pixel box.
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	round, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		handleError(w, r, errors.NewValidationError("round", "must be an integer"))
		return
	}

	var req services.HeatmapRequest
	if req.Cols, err = queryInt(r, "cols", 0); err != nil {
		handleError(w, r, err)
		return
	}
	if req.Rows, err = queryInt(r, "rows", 0); err != nil {
		handleError(w, r, err)
		return
	}

	var rect coords.Rect
	var hasW, hasH bool
	if rect.Width, hasW, err = queryFloat(r, "width"); err != nil {
		handleError(w, r, err)
		return
	}
	if rect.Height, hasH, err = queryFloat(r, "height"); err != nil {
		handleError(w, r, err)
		return
	}
	if rect.Left, _, err = queryFloat(r, "left"); err != nil {
		handleError(w, r, err)
		return
	}
	if rect.Top, _, err = queryFloat(r, "top"); err != nil {
		handleError(w, r, err)
		return
	}
	if hasW || hasH {
		req.Container = &rect
	}

	hm, err := s.Review.Heatmap(r.Context(), id, round, req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, hm)
}

// handleFile serves a blob behind a signed URL.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	bucket := chi.URLParam(r, "bucket")
	path := chi.URLParam(r, "*")

	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		handleError(w, r, errors.NewForbiddenError("missing or invalid expiry"))
		return
	}
	if err := s.Blobs.Verify(bucket, path, expires, r.URL.Query().Get("sig")); err != nil {
		log.Warn("rejected signed url: bucket=%s path=%s err=%v", bucket, path, err)
		handleError(w, r, errors.NewForbiddenError(err.Error()))
		return
	}

	content, err := s.Blobs.Get(r.Context(), bucket, path)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			handleError(w, r, errors.NewNotFoundError("file", path))
			return
		}
		handleError(w, r, errors.NewInternalError(err))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	_, _ = w.Write(content)
}
