package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// Store persists execution records. Update applies fn atomically per order.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, orderHash common.Hash) (*Record, error)
	// List returns records in any of states, oldest first. No states means all.
	List(ctx context.Context, states ...State) ([]*Record, error)
	// Update loads the record, applies fn and saves the result unless fn fails.
	Update(ctx context.Context, orderHash common.Hash, fn func(*Record) error) (*Record, error)
}

type memoryStore struct {
	records *xsync.MapOf[common.Hash, *Record]
}

// NewMemoryStore returns a Store backed by a concurrent map.
func NewMemoryStore() Store {
	return &memoryStore{records: xsync.NewMapOf[common.Hash, *Record]()}
}

func (s *memoryStore) Create(_ context.Context, rec *Record) error {
	if _, loaded := s.records.LoadOrStore(rec.OrderHash, rec.Clone()); loaded {
		return fmt.Errorf("%w: %s", ErrRecordExists, rec.OrderHash.Hex())
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, orderHash common.Hash) (*Record, error) {
	v, ok := s.records.Load(orderHash)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, orderHash.Hex())
	}
	return v.Clone(), nil
}

func (s *memoryStore) List(_ context.Context, states ...State) ([]*Record, error) {
	var out []*Record
	s.records.Range(func(_ common.Hash, v *Record) bool {
		if matchState(v.State, states) {
			out = append(out, v.Clone())
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func matchState(s State, states []State) bool {
	if len(states) == 0 {
		return true
	}
	for _, want := range states {
		if s == want {
			return true
		}
	}
	return false
}

func (s *memoryStore) Update(_ context.Context, orderHash common.Hash, fn func(*Record) error) (*Record, error) {
	var (
		result *Record
		fnErr  error
		found  bool
	)
	s.records.Compute(orderHash, func(old *Record, loaded bool) (*Record, bool) {
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
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, orderHash.Hex())
	}
	if fnErr != nil {
		return nil, fnErr
	}
	return result, nil
}
