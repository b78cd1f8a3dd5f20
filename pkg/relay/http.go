package relay

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/fusion-swap/pkg/app/errors"
	apphttp "github.com/chainsafe/fusion-swap/pkg/app/http"
	"github.com/chainsafe/fusion-swap/pkg/auth"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
)

const maxBodyBytes = 1 << 20

// SubmitRequest is the body of POST /api/v1/intents.
type SubmitRequest struct {
	Order     *order.Order  `json:"order" validate:"required"`
	Signature hexutil.Bytes `json:"signature" validate:"required,len=65"`
}

// SubmitResponse returns the intent id.
type SubmitResponse struct {
	ID common.Hash `json:"id"`
}

// StatusRequest is the body of PUT /api/v1/intents/{id}/status.
type StatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// SecretRequest is the body of POST /api/v1/intents/{id}/secret.
type SecretRequest struct {
	Secret hashlock.Secret `json:"secret"`
}

// ListResponse wraps intent listings.
type ListResponse struct {
	Intents []*Intent `json:"intents"`
}

var requestValidator = validator.New()

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	authn   *auth.Authenticator
	logger  *zap.Logger
}

// Routes holds the collaborators RegisterRoutes mounts.
type Routes struct {
	Service       Service
	Authenticator *auth.Authenticator
	Issuer        *auth.JWTIssuer
	// Stream serves the websocket feed. Optional.
	Stream http.Handler
}

// RegisterRoutes registers the relay endpoints on the given chi router
func RegisterRoutes(r chi.Router, routes Routes, logger *zap.Logger) {
	h := &HTTP{
		service: routes.Service,
		authn:   routes.Authenticator,
		logger:  logger,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", apphttp.HandleError(h.login))

		r.Route("/intents", func(r chi.Router) {
			r.Post("/", apphttp.HandleError(h.submit))
			r.Get("/", apphttp.HandleError(h.listPending))
			if routes.Stream != nil {
				r.Get("/stream", routes.Stream.ServeHTTP)
			}
			r.Get("/{id}", apphttp.HandleError(h.get))
			r.Post("/{id}/secret", apphttp.HandleError(h.submitSecret))

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireResolver(routes.Issuer))
				r.Post("/{id}/claim", apphttp.HandleError(h.claim))
				r.Put("/{id}/status", apphttp.HandleError(h.updateStatus))
			})
		})
	})
}

func (h *HTTP) login(w http.ResponseWriter, r *http.Request) error {
	var req auth.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	resp, err := h.authn.Login(&req)
	if err != nil {
		return apperrors.UnAuthorizedError(err, err.Error())
	}
	h.writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) submit(w http.ResponseWriter, r *http.Request) error {
	var req SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	id, err := h.service.Submit(r.Context(), req.Order, req.Signature)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusCreated, SubmitResponse{ID: id})
	return nil
}

func (h *HTTP) listPending(w http.ResponseWriter, r *http.Request) error {
	if s := r.URL.Query().Get("status"); s != "" && s != string(StatusPending) {
		return apperrors.BadRequestError(nil, "only pending intents can be listed")
	}
	intents, err := h.service.ListPending(r.Context())
	if err != nil {
		return err
	}
	if intents == nil {
		intents = []*Intent{}
	}
	h.writeJSON(w, http.StatusOK, ListResponse{Intents: intents})
	return nil
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) error {
	id, err := intentID(r)
	if err != nil {
		return err
	}
	intent, err := h.service.Get(r.Context(), id)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, intent)
	return nil
}

func (h *HTTP) claim(w http.ResponseWriter, r *http.Request) error {
	id, err := intentID(r)
	if err != nil {
		return err
	}
	resolver, _ := auth.ResolverFromContext(r.Context())
	intent, err := h.service.Claim(r.Context(), id, resolver)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, intent)
	return nil
}

func (h *HTTP) updateStatus(w http.ResponseWriter, r *http.Request) error {
	id, err := intentID(r)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	status, err := ParseStatus(string(req.Status))
	if err != nil {
		return apperrors.BadRequestError(err, err.Error())
	}
	resolver, _ := auth.ResolverFromContext(r.Context())
	intent, err := h.service.UpdateStatus(r.Context(), id, status, resolver)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, intent)
	return nil
}

func (h *HTTP) submitSecret(w http.ResponseWriter, r *http.Request) error {
	id, err := intentID(r)
	if err != nil {
		return err
	}
	var req SecretRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.Secret.IsZero() {
		return apperrors.BadRequestError(nil, "secret is required")
	}
	intent, err := h.service.SubmitSecret(r.Context(), id, req.Secret)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, intent)
	return nil
}

func intentID(r *http.Request) (common.Hash, error) {
	raw := chi.URLParam(r, "id")
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, apperrors.BadRequestError(err, "invalid intent id")
	}
	return common.BytesToHash(b), nil
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := requestValidator.Struct(dst); err != nil {
		return apperrors.BadRequestError(err, err.Error())
	}
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}
