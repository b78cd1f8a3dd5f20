// Package http holds the chi plumbing shared by the relay and resolver
// servers: error rendering, health probes and graceful serving.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/chainsafe/fusion-swap/pkg/app/errors"
)

// HandlerFunc is an http.HandlerFunc that reports failure by returning it.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HandleError adapts h for chi, rendering any returned error with
// DefaultErrorHandler:
//
//	r.Post("/intents", apphttp.HandleError(h.submit))
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			DefaultErrorHandler(w, err)
		}
	}
}

// DefaultErrorHandler writes err as an ErrorResponse. Only a ServiceError's
// Message reaches the caller; anything else becomes a bare 500.
func DefaultErrorHandler(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "Unexpected Service Error", Code: http.StatusInternalServerError}

	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		resp = ErrorResponse{Error: svcErr.Message, Code: svcErr.StatusCode()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Code)
	_ = json.NewEncoder(w).Encode(&resp)
}
