// Package swapstore is the Postgres implementation of the resolver's order store.
package swapstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/chainsafe/fusion-swap/pkg/resolver"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the resolver store
func NewStore(db *bun.DB) resolver.Store {
	return &pgStore{db: db}
}

func (s *pgStore) Create(ctx context.Context, rec *resolver.Record) error {
	dao, err := toSwapDao(rec)
	if err != nil {
		return err
	}

	res, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (order_hash) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create swap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", resolver.ErrRecordExists, rec.OrderHash.Hex())
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, orderHash common.Hash) (*resolver.Record, error) {
	dao := new(SwapDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("order_hash = ?", orderHash.Hex()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", resolver.ErrRecordNotFound, orderHash.Hex())
		}
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	return toRecord(dao)
}

func (s *pgStore) List(ctx context.Context, states ...resolver.State) ([]*resolver.Record, error) {
	var daos []SwapDao
	query := s.db.NewSelect().
		Model(&daos).
		Order("created_at ASC")
	if len(states) > 0 {
		names := make([]string, len(states))
		for i, st := range states {
			names[i] = string(st)
		}
		query = query.Where("state IN (?)", bun.In(names))
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}

	out := make([]*resolver.Record, 0, len(daos))
	for i := range daos {
		rec, err := toRecord(&daos[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update locks the row for the duration of fn.
func (s *pgStore) Update(ctx context.Context, orderHash common.Hash, fn func(*resolver.Record) error) (*resolver.Record, error) {
	var result *resolver.Record
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		dao := new(SwapDao)
		err := tx.NewSelect().
			Model(dao).
			Where("order_hash = ?", orderHash.Hex()).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", resolver.ErrRecordNotFound, orderHash.Hex())
			}
			return fmt.Errorf("failed to load swap: %w", err)
		}

		rec, err := toRecord(dao)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}

		next, err := toSwapDao(rec)
		if err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model(next).
			Column("state", "dst_amount", "src_leg", "dst_leg", "secret", "last_error", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update swap: %w", err)
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
