package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/relay"
)

func newRelay(t *testing.T, f *fixture) relay.Service {
	t.Helper()
	svc := relay.NewService(relay.NewMemoryStore(), testDomain, zap.NewNop())
	_, err := svc.Submit(context.Background(), f.intent.Order, f.intent.Signature)
	require.NoError(t, err)
	return svc
}

func relayStatus(t *testing.T, svc relay.Service, f *fixture) relay.Status {
	t.Helper()
	intent, err := svc.Get(context.Background(), f.intent.ID)
	require.NoError(t, err)
	return intent.Status
}

func TestEngine_PollAndAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newRelay(t, f)
	acct := newAccount(t, 1)
	x, store := f.executor(t, acct,
		WithRelay(localRelay{svc: svc, resolver: "r1"}),
		WithQuotes(fixedQuotes("1.2")),
	)
	e := NewEngine(x, zap.NewNop())

	require.NoError(t, e.Poll(ctx))
	rec, err := store.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateClaimed, rec.State)
	require.Equal(t, relay.StatusPickedUp, relayStatus(t, svc, f))

	// Known intents are not evaluated twice.
	require.NoError(t, e.Poll(ctx))

	require.NoError(t, e.Advance(ctx))
	rec, err = store.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateDestinationEscrowCreated, rec.State)
	require.Equal(t, relay.StatusExecuting, relayStatus(t, svc, f))

	// The maker sees both escrows and publishes the secret.
	_, err = svc.SubmitSecret(ctx, f.intent.ID, f.secret)
	require.NoError(t, err)

	f.advance(20)
	require.NoError(t, e.Advance(ctx))
	rec, err = store.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateSourceWithdrawn, rec.State)
	require.Equal(t, relay.StatusCompleted, relayStatus(t, svc, f))
	require.True(t, paid(f.xlm.Transfers(), f.receiver, 1_100_000))
	require.True(t, paid(f.eth.Transfers(), acct.eth, 1_000_000))
}

// unreliableRelay fails the first claims it sees.
type unreliableRelay struct {
	localRelay
	failures int
	claims   int
}

func (u *unreliableRelay) Claim(ctx context.Context, id common.Hash) (*relay.Intent, error) {
	u.claims++
	if u.claims <= u.failures {
		return nil, errors.New("relay unavailable")
	}
	return u.localRelay.Claim(ctx, id)
}

func TestEngine_PollReclaimsAfterRelayFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newRelay(t, f)
	r := &unreliableRelay{localRelay: localRelay{svc: svc, resolver: "r1"}, failures: 1}
	x, store := f.executor(t, newAccount(t, 1),
		WithRelay(r),
		WithQuotes(fixedQuotes("1.2")),
	)
	e := NewEngine(x, zap.NewNop())

	require.NoError(t, e.Poll(ctx))
	rec, err := store.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateOpen, rec.State)
	require.Equal(t, relay.StatusPending, relayStatus(t, svc, f))

	require.NoError(t, e.Poll(ctx))
	require.Equal(t, 2, r.claims)
	rec, err = store.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateClaimed, rec.State)
	require.Equal(t, relay.StatusPickedUp, relayStatus(t, svc, f))

	require.NoError(t, e.Advance(ctx))
	rec, err = store.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateDestinationEscrowCreated, rec.State)
}

func TestEngine_PollSkipsUnprofitable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newRelay(t, f)
	x, store := f.executor(t, newAccount(t, 1),
		WithRelay(localRelay{svc: svc, resolver: "r1"}),
		WithQuotes(fixedQuotes("0.9")),
	)

	require.NoError(t, NewEngine(x, zap.NewNop()).Poll(ctx))
	_, err := store.Get(ctx, f.intent.ID)
	require.ErrorIs(t, err, ErrRecordNotFound)
	require.Equal(t, relay.StatusPending, relayStatus(t, svc, f))
}

func TestEngine_SweepRefundsExpiredOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := newAccount(t, 1)
	x, store := f.executor(t, acct)
	f.bothEscrows(t, x)
	e := NewEngine(x, zap.NewNop())

	f.advance(1800)
	require.NoError(t, e.Advance(ctx))
	rec, err := store.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateExpired, rec.State)

	require.NoError(t, e.Sweep(ctx))
	rec, err = store.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateCancelled, rec.State)
	require.Equal(t, escrow.StatusCancelled, rec.Src.Status)
	require.Equal(t, escrow.StatusCancelled, rec.Dst.Status)
	require.True(t, paid(f.xlm.Transfers(), acct.xlm, 1_100_000))
	require.True(t, paid(f.eth.Transfers(), f.maker, 1_000_000))
}

func TestEngine_StartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newRelay(t, f)
	x, store := f.executor(t, newAccount(t, 1),
		WithRelay(localRelay{svc: svc, resolver: "r1"}),
		WithQuotes(fixedQuotes("1.2")),
	)
	e := NewEngine(x, zap.NewNop())

	require.NoError(t, e.Start(ctx))
	require.Error(t, e.Start(ctx))

	stateOf := func() State {
		rec, err := store.Get(ctx, f.intent.ID)
		if err != nil {
			return ""
		}
		return rec.State
	}
	require.Eventually(t, func() bool {
		return stateOf() == StateDestinationEscrowCreated
	}, 2*time.Second, 10*time.Millisecond)

	_, err := svc.SubmitSecret(ctx, f.intent.ID, f.secret)
	require.NoError(t, err)
	f.advance(20)

	require.Eventually(t, func() bool {
		return stateOf() == StateSourceWithdrawn
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop())
}
