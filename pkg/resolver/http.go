package resolver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/fusion-swap/pkg/app/errors"
	apphttp "github.com/chainsafe/fusion-swap/pkg/app/http"
)

// ListResponse wraps record listings.
type ListResponse struct {
	Orders []*Record `json:"orders"`
}

type opsHandler struct {
	store  Store
	logger *zap.Logger
}

// RegisterRoutes mounts the read-only operations API on r.
func RegisterRoutes(r chi.Router, store Store, logger *zap.Logger) {
	h := &opsHandler{store: store, logger: logger}

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/", apphttp.HandleError(h.list))
		r.Get("/{hash}", apphttp.HandleError(h.get))
	})
}

func (h *opsHandler) list(w http.ResponseWriter, r *http.Request) error {
	var states []State
	for _, s := range r.URL.Query()["state"] {
		st, err := ParseState(s)
		if err != nil {
			return apperrors.BadRequestError(err, err.Error())
		}
		states = append(states, st)
	}

	recs, err := h.store.List(r.Context(), states...)
	if err != nil {
		return apperrors.GeneralError(err)
	}
	if recs == nil {
		recs = []*Record{}
	}
	h.writeJSON(w, ListResponse{Orders: recs})
	return nil
}

func (h *opsHandler) get(w http.ResponseWriter, r *http.Request) error {
	b, err := hexutil.Decode(chi.URLParam(r, "hash"))
	if err != nil || len(b) != common.HashLength {
		return apperrors.BadRequestError(err, "invalid order hash")
	}

	rec, err := h.store.Get(r.Context(), common.BytesToHash(b))
	if errors.Is(err, ErrRecordNotFound) {
		return apperrors.ResourceNotFoundError(err, "order not found")
	}
	if err != nil {
		return apperrors.GeneralError(err)
	}
	h.writeJSON(w, rec)
	return nil
}

func (h *opsHandler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}
