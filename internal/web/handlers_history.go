package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/akl-logistics/dispatchdesk/internal/dispatch"
)

// maxHistoryPageSize caps the history list so one request cannot drag the
// whole table over the wire.
const maxHistoryPageSize = 200

// handleHistoryList returns recent finished batches, newest first.
func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	if limit > maxHistoryPageSize {
		limit = maxHistoryPageSize
	}

	summaries, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, summaries)
}

// handleHistoryDetail returns one stored batch with its per-line outcomes.
func (s *Server) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	record, err := s.history.GetBatch(r.Context(), batchID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrBatchNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}

	writeJSON(w, record)
}
