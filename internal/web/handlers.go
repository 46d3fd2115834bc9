package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/akl-logistics/dispatchdesk/internal/dispatch"
)

// startBatchRequest is the JSON body for POST /api/batches.
// LineCustomers overrides the batch-wide customer for individual lines,
// keyed by the line number written in the note.
type startBatchRequest struct {
	Text          string         `json:"text"`
	CustomerID    string         `json:"customer_id"`
	LineCustomers map[int]string `json:"line_customers,omitempty"`
}

// previewRequest is the JSON body for POST /api/batches/preview.
type previewRequest struct {
	Text string `json:"text"`
}

// handlePasteScreen renders the main screen where dispatchers paste notes.
func (s *Server) handlePasteScreen(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	PasteScreen().Render(r.Context(), w)
}

// handlePreview parses a pasted note without submitting anything and
// returns what a batch run would do with it.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.Preview(r.Context(), req.Text)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

// handleStartBatch parses the paste and starts a batch run in the
// background. The response carries the batch id for progress polling.
func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	batchID, err := s.service.StartBatch(r.Context(), dispatch.BatchRequest{
		Text:          req.Text,
		CustomerID:    req.CustomerID,
		LineCustomers: req.LineCustomers,
	})
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrEmptyBatch):
			s.respondError(w, r, err, http.StatusBadRequest)
		case errors.Is(err, dispatch.ErrTooManyBatches):
			w.Header().Set("Retry-After", "15")
			s.respondError(w, r, err, http.StatusTooManyRequests)
		default:
			s.respondError(w, r, err, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, map[string]string{"batch_id": batchID})
}

// handleBatchProgress streams batch progress via Server-Sent Events.
// Supports resumption via the Last-Event-ID header (or lastEventId query
// parameter) for reconnection.
func (s *Server) handleBatchProgress(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	// Support resumption from last event ID
	// The event ID is the progress percentage, allowing clients to skip
	// already-received events after reconnection
	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(batchID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed: the terminal progress event went out
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			currentPercent := progress.Percent()

			// Skip events a reconnecting client already saw. Terminal
			// events always go out: the last submitting event can also
			// sit at 100%.
			if lastEventIDStr != "" && currentPercent <= lastEventID && !progress.Phase.Terminal() {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", currentPercent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleCancelBatch requests cancellation of a running batch. Lines
// already in flight finish; queued lines are dropped.
func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	if err := s.service.CancelBatch(batchID); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"cancelling"}`))
}

// loadBatchResult returns the batch result from the running service, or
// rebuilt from history for batches already evicted from memory.
func (s *Server) loadBatchResult(r *http.Request, batchID string) (*dispatch.BatchResult, error) {
	result, err := s.service.GetBatchResult(batchID)
	if err == nil {
		return result, nil
	}
	if s.history == nil || !errors.Is(err, dispatch.ErrBatchNotFound) {
		return nil, err
	}
	record, herr := s.history.GetBatch(r.Context(), batchID)
	if herr != nil {
		return nil, err
	}
	res := record.Result()
	return &res, nil
}

// handleBatchResult returns the final result of a batch, waiting for the
// run to finish if it has not yet. The request timeout bounds the wait.
func (s *Server) handleBatchResult(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	result, err := s.loadBatchResult(r, batchID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, result)
}

// handleBatchReportText returns the plain-text tick report dispatchers
// paste back into the group chat.
func (s *Server) handleBatchReportText(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	result, err := s.loadBatchResult(r, batchID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, dispatch.RenderText(*result))
}

// handleBatchReportPage renders the HTML report for a finished batch.
func (s *Server) handleBatchReportPage(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	result, err := s.loadBatchResult(r, batchID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	BatchReportPage(result).Render(r.Context(), w)
}

// handleListDrivers proxies the backend driver roster for the paste screen.
func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := s.directory.ListDrivers(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, drivers)
}

// handleListCustomers proxies the backend customer list for the paste screen.
func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.directory.ListCustomers(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, customers)
}

// handleListLocations proxies the backend location list for the paste screen.
func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.directory.ListLocations(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, locations)
}

// handleQueueStatus returns the current state of the batch limiter.
// Used for monitoring and to check if the system can accept more batches.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.LimiterStatus())
}

// handleHealthz reports process liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
