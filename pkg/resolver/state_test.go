package resolver

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/fusion-swap/pkg/escrow"
)

func TestState_CanMoveTo(t *testing.T) {
	require.True(t, StateOpen.CanMoveTo(StateClaimed))
	require.True(t, StateDestinationWithdrawn.CanMoveTo(StateSourceWithdrawn))
	require.True(t, StateSourceEscrowCreated.CanMoveTo(StateExpired))
	require.True(t, StateExpired.CanMoveTo(StateCancelled))

	require.False(t, StateClaimed.CanMoveTo(StateDestinationEscrowCreated))
	require.False(t, StateSourceWithdrawn.CanMoveTo(StateExpired))
	require.False(t, StateClaimed.CanMoveTo(StateCancelled))
	require.False(t, StateCancelled.CanMoveTo(StateOpen))
}

func TestParseState(t *testing.T) {
	for _, s := range []State{
		StateOpen, StateClaimed, StateSourceEscrowCreated, StateDestinationEscrowCreated,
		StateDestinationWithdrawn, StateSourceWithdrawn, StateExpired, StateCancelled,
	} {
		got, err := ParseState(string(s))
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	_, err := ParseState("done")
	require.Error(t, err)
}

func TestRecord_NeedsRecovery(t *testing.T) {
	rec := &Record{State: StateExpired}
	require.False(t, rec.NeedsRecovery())

	rec.Src = &Leg{Status: escrow.StatusCreated}
	require.True(t, rec.NeedsRecovery())

	rec.Src.Status = escrow.StatusCancelled
	rec.Dst = &Leg{Status: escrow.StatusWithdrawn}
	require.False(t, rec.NeedsRecovery())

	rec.State = StateDestinationEscrowCreated
	rec.Dst.Status = escrow.StatusCreated
	require.False(t, rec.NeedsRecovery())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)

	hashes := []common.Hash{{1}, {2}, {3}}
	for i, h := range hashes {
		require.NoError(t, store.Create(ctx, &Record{
			OrderHash: h,
			State:     StateClaimed,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.ErrorIs(t, store.Create(ctx, &Record{OrderHash: hashes[0]}), ErrRecordExists)

	_, err := store.Get(ctx, common.Hash{9})
	require.ErrorIs(t, err, ErrRecordNotFound)

	rec, err := store.Update(ctx, hashes[1], func(r *Record) error {
		r.State = StateSourceEscrowCreated
		r.DstAmount = big.NewInt(42)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StateSourceEscrowCreated, rec.State)

	// Returned records are copies.
	rec.DstAmount.SetInt64(7)
	stored, err := store.Get(ctx, hashes[1])
	require.NoError(t, err)
	require.Equal(t, int64(42), stored.DstAmount.Int64())

	boom := errors.New("boom")
	_, err = store.Update(ctx, hashes[1], func(r *Record) error {
		r.State = StateExpired
		return boom
	})
	require.ErrorIs(t, err, boom)
	stored, err = store.Get(ctx, hashes[1])
	require.NoError(t, err)
	require.Equal(t, StateSourceEscrowCreated, stored.State)

	_, err = store.Update(ctx, common.Hash{9}, func(*Record) error { return nil })
	require.ErrorIs(t, err, ErrRecordNotFound)

	claimed, err := store.List(ctx, StateClaimed)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	require.Equal(t, hashes[0], claimed[0].OrderHash)
	require.Equal(t, hashes[2], claimed[1].OrderHash)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}
