// This file contains shared utilities and helper functions used across handlers.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// maxBodySize bounds JSON request bodies. Pasted dispatch notes run a few
// kilobytes; 1MB leaves generous headroom.
const maxBodySize = 1 << 20

// decodeJSON decodes a size-limited JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// sanitizeErrorMessage strips internal detail that should not reach
// clients. Messages carrying connection strings, SQL state codes or dial
// errors are replaced wholesale; everything else passes through.
func sanitizeErrorMessage(msg string) string {
	lowered := strings.ToLower(msg)
	markers := []string{"postgres://", "sqlstate", "dial tcp", "no such host", "connection refused"}
	for _, marker := range markers {
		if strings.Contains(lowered, marker) {
			return "internal error"
		}
	}
	return msg
}
