package web

// errors.go is the single exit path for handler failures. The technical
// error is logged with the request id; the client gets the mapped
// user-facing message, as JSON for API callers and as a page for browsers.

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/akl-logistics/dispatchdesk/internal/dispatch"
	"github.com/akl-logistics/dispatchdesk/internal/logging"
)

// ErrorResponse is the JSON body API callers receive on failure. Code is
// machine readable; Message and Action are for the operator.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the user-facing
// message in the format the client asked for.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := dispatch.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
		return
	}
	respondErrorHTML(w, r, userMsg, statusCode)
}

// respondErrorJSON writes the error as an ErrorResponse body.
func respondErrorJSON(w http.ResponseWriter, msg dispatch.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondErrorHTML writes the error as a small page for direct browser
// navigation, e.g. a report link for an expired batch.
func respondErrorHTML(w http.ResponseWriter, r *http.Request, msg dispatch.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	pageShell("Error", ErrorAlert(msg.Message, msg.Action, msg.Code)).Render(r.Context(), w)
}

// wantsJSON reports whether the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON.
	return strings.HasPrefix(r.URL.Path, "/api/")
}
