package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterHealth(t *testing.T) {
	var failing error
	r := chi.NewRouter()
	RegisterHealth(r, zap.NewNop(), func(context.Context) error { return failing })

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	require.Equal(t, http.StatusOK, get("/health").Code)
	rec := get("/ready")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "READY", rec.Body.String())

	failing = errors.New("db down")
	require.Equal(t, http.StatusOK, get("/health").Code)
	rec = get("/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "NOT_READY", rec.Body.String())
}
