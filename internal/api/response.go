// Package api provides the internal connection REST API and the websocket
// change feed for scopesync, plus a client for both.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
)

// APIError is the standard error response format.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSONResponse writes a successful JSON response.
func JSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// JSONResponseStatus writes a JSON response with a specific status code.
func JSONResponseStatus(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JSONError writes a simple error response.
func JSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{Error: message})
}

// HandleError writes err with the status of its category. Only the
// user-facing message of a SyncError is sent.
func HandleError(w http.ResponseWriter, err error) {
	var syncErr *syncerrors.SyncError
	if errors.As(err, &syncErr) {
		JSONResponseStatus(w, APIError{
			Error: syncErr.What,
			Code:  string(syncErr.Code),
		}, syncErr.HTTPStatus())
		return
	}
	JSONError(w, "internal server error", http.StatusInternalServerError)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return syncerrors.ErrInvalidInput("body", err.Error())
	}
	return nil
}
