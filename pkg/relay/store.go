package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrIntentExists is returned by Store.Create for a duplicate id.
	ErrIntentExists = errors.New("intent already exists")
	// ErrIntentNotFound is returned by stores for an unknown id.
	ErrIntentNotFound = errors.New("intent not found")
)

// Store persists intents. Update applies fn atomically per intent; updates
// to different intents never block each other.
type Store interface {
	Create(ctx context.Context, intent *Intent) error
	Get(ctx context.Context, id common.Hash) (*Intent, error)
	// ListByStatus returns intents with status, most recent first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Intent, error)
	// Update loads the intent, applies fn and saves the result unless fn fails.
	Update(ctx context.Context, id common.Hash, fn func(*Intent) error) (*Intent, error)
}

type memoryStore struct {
	intents *xsync.MapOf[common.Hash, *Intent]
}

// NewMemoryStore returns a Store backed by a concurrent map.
func NewMemoryStore() Store {
	return &memoryStore{intents: xsync.NewMapOf[common.Hash, *Intent]()}
}

func (s *memoryStore) Create(_ context.Context, intent *Intent) error {
	_, loaded := s.intents.LoadOrStore(intent.ID, intent.Clone())
	if loaded {
		return fmt.Errorf("%w: %s", ErrIntentExists, intent.ID.Hex())
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, id common.Hash) (*Intent, error) {
	v, ok := s.intents.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, id.Hex())
	}
	return v.Clone(), nil
}

func (s *memoryStore) ListByStatus(_ context.Context, status Status, limit int) ([]*Intent, error) {
	var out []*Intent
	s.intents.Range(func(_ common.Hash, v *Intent) bool {
		if v.Status == status {
			out = append(out, v.Clone())
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) Update(_ context.Context, id common.Hash, fn func(*Intent) error) (*Intent, error) {
	var (
		result *Intent
		fnErr  error
		found  bool
	)
	s.intents.Compute(id, func(old *Intent, loaded bool) (*Intent, bool) {
		if !loaded {
			return nil, true
		}
		found = true
		next := old.Clone()
		if fnErr = fn(next); fnErr != nil {
			return old, false
		}
		result = next.Clone()
		return next, false
	})
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, id.Hex())
	}
	if fnErr != nil {
		return nil, fnErr
	}
	return result, nil
}
