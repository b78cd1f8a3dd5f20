// Package relay is the intent relay queue: makers submit signed orders,
// resolvers list, claim and report progress on them.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/internal/metrics"
	apperrors "github.com/chainsafe/fusion-swap/pkg/app/errors"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
)

var (
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrNotFound          = errors.New("intent not found")
	ErrClaimLost         = errors.New("intent already claimed")
	ErrForbidden         = errors.New("intent assigned to another resolver")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSecretNotAccepted = errors.New("secret not accepted")
)

const defaultListLimit = 500

// Service defines the relay queue operations.
//
//go:generate mockery --name Service --output mocks --outpkg mocks --filename mock_service.go --with-expecter
type Service interface {
	Submit(ctx context.Context, o *order.Order, signature []byte) (common.Hash, error)
	ListPending(ctx context.Context) ([]*Intent, error)
	UpdateStatus(ctx context.Context, id common.Hash, status Status, resolver string) (*Intent, error)
	Get(ctx context.Context, id common.Hash) (*Intent, error)
	Claim(ctx context.Context, id common.Hash, resolver string) (*Intent, error)
	SubmitSecret(ctx context.Context, id common.Hash, secret hashlock.Secret) (*Intent, error)
}

// Publisher receives every intent change for broadcast.
type Publisher interface {
	Publish(ev Event)
}

// Event is a change broadcast to stream subscribers.
type Event struct {
	Type   string  `json:"type"`
	Intent *Intent `json:"intent"`
}

const (
	EventSubmitted = "submitted"
	EventStatus    = "status"
	EventSecret    = "secret"
)

type service struct {
	store     Store
	domain    order.Domain
	publisher Publisher
	listLimit int
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures the service.
type Option func(*service)

// WithPublisher broadcasts intent changes to p.
func WithPublisher(p Publisher) Option { return func(s *service) { s.publisher = p } }

// WithListLimit caps ListPending results.
func WithListLimit(n int) Option { return func(s *service) { s.listLimit = n } }

// WithClock overrides the wall clock used for record timestamps.
func WithClock(now func() time.Time) Option { return func(s *service) { s.now = now } }

// NewService creates the relay service. Orders are verified under domain.
func NewService(store Store, domain order.Domain, logger *zap.Logger, opts ...Option) Service {
	s := &service{
		store:     store,
		domain:    domain,
		listLimit: defaultListLimit,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit verifies the maker signature and stores the intent as pending.
// The returned id is the order hash.
func (s *service) Submit(ctx context.Context, o *order.Order, signature []byte) (common.Hash, error) {
	if err := o.Validate(); err != nil {
		metrics.IntentsSubmitted.WithLabelValues("invalid").Inc()
		return common.Hash{}, apperrors.BadRequestError(err, err.Error())
	}
	if err := order.Verify(o, s.domain, signature); err != nil {
		metrics.IntentsSubmitted.WithLabelValues("bad_signature").Inc()
		return common.Hash{}, apperrors.UnAuthorizedError(fmt.Errorf("%w: %v", ErrInvalidSignature, err), ErrInvalidSignature.Error())
	}

	id, err := o.Hash(s.domain)
	if err != nil {
		return common.Hash{}, apperrors.BadRequestError(err, "failed to hash order")
	}

	now := s.now().UTC()
	intent := &Intent{
		ID:        id,
		Order:     o,
		Signature: append([]byte(nil), signature...),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, intent); err != nil {
		if errors.Is(err, ErrIntentExists) {
			return common.Hash{}, apperrors.ConflictError(err, "intent already submitted")
		}
		return common.Hash{}, fmt.Errorf("failed to store intent: %w", err)
	}

	metrics.IntentsSubmitted.WithLabelValues("accepted").Inc()
	s.publish(EventSubmitted, intent)
	return id, nil
}

// ListPending returns pending intents, most recent first.
func (s *service) ListPending(ctx context.Context) ([]*Intent, error) {
	intents, err := s.store.ListByStatus(ctx, StatusPending, s.listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending intents: %w", err)
	}
	return intents, nil
}

func (s *service) Get(ctx context.Context, id common.Hash) (*Intent, error) {
	intent, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(err)
	}
	return intent, nil
}

// Claim assigns a pending intent to resolver. Only the first claim wins;
// claiming an intent already held by the same resolver is a no-op.
func (s *service) Claim(ctx context.Context, id common.Hash, resolver string) (*Intent, error) {
	if resolver == "" {
		return nil, apperrors.BadRequestError(nil, "resolver is required")
	}
	claimed := false
	intent, err := s.store.Update(ctx, id, func(in *Intent) error {
		if in.Resolver == resolver && in.Status != StatusPending {
			return nil
		}
		if in.Status != StatusPending {
			return ErrClaimLost
		}
		in.Status = StatusPickedUp
		in.Resolver = resolver
		in.UpdatedAt = s.now().UTC()
		claimed = true
		return nil
	})
	if err != nil {
		return nil, s.storeError(err)
	}
	if !claimed {
		return intent, nil
	}

	metrics.IntentStatusUpdates.WithLabelValues(string(StatusPickedUp)).Inc()
	s.publish(EventStatus, intent)
	return intent, nil
}

// UpdateStatus records a resolver-reported status. It is advisory: chain
// state is never consulted. Statuses only move forward and, once an intent
// is claimed, only its resolver may report on it.
func (s *service) UpdateStatus(ctx context.Context, id common.Hash, status Status, resolver string) (*Intent, error) {
	if _, ok := rank[status]; !ok {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unknown status %q", status))
	}
	intent, err := s.store.Update(ctx, id, func(in *Intent) error {
		if in.Resolver != "" && resolver != "" && in.Resolver != resolver {
			return ErrForbidden
		}
		if !in.Status.canMoveTo(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, in.Status, status)
		}
		if in.Resolver == "" {
			in.Resolver = resolver
		}
		in.Status = status
		in.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, s.storeError(err)
	}

	metrics.IntentStatusUpdates.WithLabelValues(string(status)).Inc()
	s.publish(EventStatus, intent)
	return intent, nil
}

// SubmitSecret publishes the maker's secret once a resolver reported the
// intent as executing. The secret must open the order hashlock.
func (s *service) SubmitSecret(ctx context.Context, id common.Hash, secret hashlock.Secret) (*Intent, error) {
	intent, err := s.store.Update(ctx, id, func(in *Intent) error {
		if err := in.Order.Hashlock().Verify(secret); err != nil {
			return fmt.Errorf("%w: %v", ErrSecretNotAccepted, err)
		}
		if in.Secret != nil {
			return nil
		}
		if in.Status != StatusExecuting {
			return fmt.Errorf("%w: intent is %s", ErrSecretNotAccepted, in.Status)
		}
		sec := secret
		in.Secret = &sec
		in.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, s.storeError(err)
	}

	s.publish(EventSecret, intent)
	return intent, nil
}

func (s *service) publish(typ string, intent *Intent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(Event{Type: typ, Intent: intent.Clone()})
}

// storeError maps store and rule errors to service errors.
func (s *service) storeError(err error) error {
	switch {
	case errors.Is(err, ErrIntentNotFound):
		return apperrors.ResourceNotFoundError(fmt.Errorf("%w: %v", ErrNotFound, err), ErrNotFound.Error())
	case errors.Is(err, ErrClaimLost):
		return apperrors.ConflictError(err, ErrClaimLost.Error())
	case errors.Is(err, ErrForbidden):
		return apperrors.ForbiddenError(err, ErrForbidden.Error())
	case errors.Is(err, ErrInvalidTransition):
		return apperrors.ConflictError(err, err.Error())
	case errors.Is(err, ErrSecretNotAccepted):
		return apperrors.BadRequestError(err, err.Error())
	default:
		return err
	}
}
