// Package intentstore is the Postgres implementation of the relay intent store.
package intentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/chainsafe/fusion-swap/pkg/relay"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the relay store
func NewStore(db *bun.DB) relay.Store {
	return &pgStore{db: db}
}

func (s *pgStore) Create(ctx context.Context, intent *relay.Intent) error {
	dao, err := toIntentDao(intent)
	if err != nil {
		return err
	}

	res, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create intent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", relay.ErrIntentExists, intent.ID.Hex())
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, id common.Hash) (*relay.Intent, error) {
	dao := new(IntentDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id.Hex()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", relay.ErrIntentNotFound, id.Hex())
		}
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}
	return toIntent(dao)
}

func (s *pgStore) ListByStatus(ctx context.Context, status relay.Status, limit int) ([]*relay.Intent, error) {
	var daos []IntentDao
	query := s.db.NewSelect().
		Model(&daos).
		Where("status = ?", string(status)).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}

	out := make([]*relay.Intent, 0, len(daos))
	for i := range daos {
		in, err := toIntent(&daos[i])
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// Update locks the row for the duration of fn.
func (s *pgStore) Update(ctx context.Context, id common.Hash, fn func(*relay.Intent) error) (*relay.Intent, error) {
	var result *relay.Intent
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		dao := new(IntentDao)
		err := tx.NewSelect().
			Model(dao).
			Where("id = ?", id.Hex()).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", relay.ErrIntentNotFound, id.Hex())
			}
			return fmt.Errorf("failed to load intent: %w", err)
		}

		intent, err := toIntent(dao)
		if err != nil {
			return err
		}
		if err := fn(intent); err != nil {
			return err
		}

		next, err := toIntentDao(intent)
		if err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model(next).
			Column("status", "resolver", "secret", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update intent: %w", err)
		}
		result = intent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
