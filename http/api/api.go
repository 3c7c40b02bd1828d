// Package api contains helpers shared by the versioned API handlers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Coder is implemented by errors carrying a stable machine-readable
// outcome code. Clients switch on the code, not the message text.
type Coder interface {
	Code() string
}

// JSONError encodes err as JSON to w.
func JSONError(w http.ResponseWriter, err error, statusCode int) {
	jsonErr := &struct {
		Err  string `json:"error"`
		Code string `json:"code,omitempty"`
	}{Err: err.Error()}
	var coder Coder
	if errors.As(err, &coder) {
		jsonErr.Code = coder.Code()
	}
	w.Header().Set("Content-type", "application/json")
	if statusCode < 1 {
		statusCode = http.StatusInternalServerError
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonErr)
}
