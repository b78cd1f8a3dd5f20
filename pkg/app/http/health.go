package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const readyCheckTimeout = 2 * time.Second

// ReadyFunc reports whether a process can serve traffic.
type ReadyFunc func(ctx context.Context) error

// RegisterHealth mounts /health (liveness) and /ready (readiness) on r.
// /ready returns 503 while any check fails.
func RegisterHealth(r chi.Router, logger *zap.Logger, checks ...ReadyFunc) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("Readiness check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})
}
