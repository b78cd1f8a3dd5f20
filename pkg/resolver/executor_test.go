package resolver

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/pkg/auction"
	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/config"
	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/escrow/memledger"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
	"github.com/chainsafe/fusion-swap/pkg/quote"
	"github.com/chainsafe/fusion-swap/pkg/relay"
)

const srcToken = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"

var (
	testNow    = time.Unix(1_700_000_000, 0)
	t0         = uint64(testNow.Unix())
	testDomain = order.NewDomain(1, common.HexToAddress("0x1111111111111111111111111111111111111111"))
	testPair   = quote.Pair{
		SrcChain: chain.Ethereum,
		SrcAsset: common.HexToAddress(srcToken).Hex(),
		DstChain: chain.Stellar,
		DstAsset: chain.NativeAsset,
	}
)

type fixture struct {
	eth, xlm *memledger.Ledger
	intent   *relay.Intent
	secret   hashlock.Secret
	maker    string
	receiver string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := order.NewKeySigner(key)

	receiver, err := chain.EncodeStrKey(chain.VersionAccount, bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	factory, err := chain.EncodeStrKey(chain.VersionContract, bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	o, secret, err := order.Build(order.BuildParams{
		Maker:       signer.Address().Hex(),
		SrcAsset:    srcToken,
		DstAsset:    chain.NativeAsset,
		SrcAmount:   big.NewInt(1_000_000),
		DstAmount:   big.NewInt(1_000_000),
		DstChain:    "stellar",
		DstReceiver: receiver,
		SrcFactory:  "0x2222222222222222222222222222222222222222",
		DstFactory:  factory,
		Deadline:    t0 + 3600,
		Auction: &auction.Params{
			StartTime:         t0,
			EndTime:           t0 + 600,
			InitialPremiumBps: 1000,
		},
		SrcSafetyDeposit: big.NewInt(10),
		DstSafetyDeposit: big.NewInt(5),
	}, order.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	sig, err := order.Sign(o, testDomain, signer)
	require.NoError(t, err)
	id, err := o.Hash(testDomain)
	require.NoError(t, err)

	return &fixture{
		eth:      memledger.New(chain.Ethereum, t0),
		xlm:      memledger.New(chain.Stellar, t0),
		intent:   &relay.Intent{ID: id, Order: o, Signature: sig, Status: relay.StatusPending, CreatedAt: testNow},
		secret:   secret,
		maker:    signer.Address().Hex(),
		receiver: receiver,
	}
}

type account struct {
	eth, xlm string
}

func newAccount(t *testing.T, n byte) account {
	t.Helper()
	xlm, err := chain.EncodeStrKey(chain.VersionAccount, bytes.Repeat([]byte{n}, 32))
	require.NoError(t, err)
	return account{
		eth: common.BytesToAddress(bytes.Repeat([]byte{n}, 20)).Hex(),
		xlm: xlm,
	}
}

func testEngineConfig() config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	cfg.RetryInitial = time.Millisecond
	cfg.RetryMax = 5 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.RecoveryInterval = 10 * time.Millisecond
	return cfg
}

func fixedQuotes(rate string) quote.Fixed {
	return quote.Fixed{testPair.String(): decimal.RequireFromString(rate)}
}

func (f *fixture) executor(t *testing.T, acct account, opts ...Option) (*Executor, Store) {
	t.Helper()
	store := NewMemoryStore()
	x, err := NewExecutor(testEngineConfig(), testDomain,
		[]escrow.Client{f.eth.Client(acct.eth), f.xlm.Client(acct.xlm)},
		store, zap.NewNop(), opts...)
	require.NoError(t, err)
	return x, store
}

func (f *fixture) advance(d uint64) {
	f.eth.Advance(d)
	f.xlm.Advance(d)
}

// bothEscrows claims the order and deploys both escrows.
func (f *fixture) bothEscrows(t *testing.T, x *Executor) *Record {
	t.Helper()
	ctx := context.Background()
	_, err := x.Claim(ctx, f.intent)
	require.NoError(t, err)
	_, err = x.CreateSourceEscrow(ctx, f.intent.ID)
	require.NoError(t, err)
	rec, err := x.CreateDestinationEscrow(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateDestinationEscrowCreated, rec.State)
	return rec
}

func paid(transfers []escrow.Transfer, to string, amount int64) bool {
	for _, tr := range transfers {
		if tr.To == to && tr.Amount.Cmp(big.NewInt(amount)) == 0 && !tr.Native {
			return true
		}
	}
	return false
}

// localRelay lets an executor talk to an in-process relay as one resolver.
type localRelay struct {
	svc      relay.Service
	resolver string
}

func (l localRelay) ListPending(ctx context.Context) ([]*relay.Intent, error) {
	return l.svc.ListPending(ctx)
}

func (l localRelay) Get(ctx context.Context, id common.Hash) (*relay.Intent, error) {
	return l.svc.Get(ctx, id)
}

func (l localRelay) Claim(ctx context.Context, id common.Hash) (*relay.Intent, error) {
	return l.svc.Claim(ctx, id, l.resolver)
}

func (l localRelay) UpdateStatus(ctx context.Context, id common.Hash, status relay.Status) (*relay.Intent, error) {
	return l.svc.UpdateStatus(ctx, id, status, l.resolver)
}

func TestExecutor_Evaluate(t *testing.T) {
	f := newFixture(t)
	o := f.intent.Order

	tests := []struct {
		name       string
		rate       string
		now        uint64
		profitable bool
		bidAt      uint64
	}{
		{name: "profitable at auction start", rate: "1.2", now: t0, profitable: true, bidAt: t0},
		{name: "premium too high early", rate: "1.05", now: t0, profitable: false, bidAt: t0 + 332},
		{name: "profitable once decayed", rate: "1.05", now: t0 + 332, profitable: true, bidAt: t0 + 332},
		{name: "never profitable", rate: "0.9", now: t0 + 600, profitable: false, bidAt: 0},
		{name: "expired", rate: "1.2", now: t0 + 3600, profitable: false, bidAt: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, _ := f.executor(t, newAccount(t, 1), WithQuotes(fixedQuotes(tt.rate)))
			d, err := x.Evaluate(context.Background(), o, tt.now)
			require.NoError(t, err)
			require.Equal(t, tt.profitable, d.Profitable, "reason: %s", d.Reason)
			require.Equal(t, tt.bidAt, d.BidAt)
		})
	}

	t.Run("no quote skips", func(t *testing.T) {
		x, _ := f.executor(t, newAccount(t, 1), WithQuotes(quote.Fixed{}))
		d, err := x.Evaluate(context.Background(), o, t0)
		require.NoError(t, err)
		require.False(t, d.Profitable)
		require.Equal(t, "no quote", d.Reason)
		require.Equal(t, 0, d.Price.Cmp(big.NewInt(1_100_000)))
	})
}

func TestExecutor_Claim_RejectsForgedIntent(t *testing.T) {
	f := newFixture(t)
	x, store := f.executor(t, newAccount(t, 1))

	forged := *f.intent
	forged.Signature = append([]byte(nil), f.intent.Signature...)
	forged.Signature[10] ^= 0xff

	_, err := x.Claim(context.Background(), &forged)
	require.Error(t, err)
	_, err = store.Get(context.Background(), f.intent.ID)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestExecutor_Claim_Idempotent(t *testing.T) {
	f := newFixture(t)
	x, _ := f.executor(t, newAccount(t, 1))
	ctx := context.Background()

	rec, err := x.Claim(ctx, f.intent)
	require.NoError(t, err)
	require.Equal(t, StateClaimed, rec.State)

	rec, err = x.Claim(ctx, f.intent)
	require.NoError(t, err)
	require.Equal(t, StateClaimed, rec.State)
}

// Two resolvers race through the relay: exactly one holds the claim.
func TestExecutor_ClaimRace_Relay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := relay.NewService(relay.NewMemoryStore(), testDomain, zap.NewNop())
	_, err := svc.Submit(ctx, f.intent.Order, f.intent.Signature)
	require.NoError(t, err)

	x1, s1 := f.executor(t, newAccount(t, 1), WithRelay(localRelay{svc: svc, resolver: "r1"}))
	x2, s2 := f.executor(t, newAccount(t, 2), WithRelay(localRelay{svc: svc, resolver: "r2"}))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, x := range []*Executor{x1, x2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = x.Claim(ctx, f.intent)
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrClaimLost):
			lost++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, 1, lost)

	states := map[State]int{}
	for _, s := range []Store{s1, s2} {
		rec, err := s.Get(ctx, f.intent.ID)
		require.NoError(t, err)
		states[rec.State]++
	}
	require.Equal(t, map[State]int{StateClaimed: 1, StateExpired: 1}, states)

	intent, err := svc.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, relay.StatusPickedUp, intent.Status)
}

// Without a relay the source ledger arbitrates: the second deployment is
// rejected and maps to a lost claim.
func TestExecutor_ClaimRace_Ledger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x1, s1 := f.executor(t, newAccount(t, 1))
	x2, s2 := f.executor(t, newAccount(t, 2))

	for _, x := range []*Executor{x1, x2} {
		rec, err := x.Claim(ctx, f.intent)
		require.NoError(t, err)
		require.Equal(t, StateClaimed, rec.State)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, x := range []*Executor{x1, x2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = x.CreateSourceEscrow(ctx, f.intent.ID)
		}()
	}
	wg.Wait()

	winner, loser := s1, s2
	if errs[0] != nil {
		winner, loser = s2, s1
		require.NoError(t, errs[1])
		require.ErrorIs(t, errs[0], ErrClaimLost)
	} else {
		require.ErrorIs(t, errs[1], ErrClaimLost)
	}

	rec, err := winner.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateSourceEscrowCreated, rec.State)

	rec, err = loser.Get(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateExpired, rec.State)
	require.False(t, rec.NeedsRecovery())
	require.Equal(t, 1, countTopic(f.eth.Events(), escrow.TopicCreated))
}

func countTopic(events []escrow.Event, topic string) int {
	n := 0
	for _, ev := range events {
		if ev.Topic == topic {
			n++
		}
	}
	return n
}

func TestExecutor_CreateEscrows(t *testing.T) {
	f := newFixture(t)
	acct := newAccount(t, 1)
	x, _ := f.executor(t, acct)
	ctx := context.Background()

	f.eth.SetTime(t0 + 300)
	_, err := x.Claim(ctx, f.intent)
	require.NoError(t, err)

	rec, err := x.CreateSourceEscrow(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateSourceEscrowCreated, rec.State)
	// Half the premium has decayed.
	require.Equal(t, 0, rec.DstAmount.Cmp(big.NewInt(1_050_000)))

	src, ok := f.eth.Escrow(f.intent.ID)
	require.True(t, ok)
	require.Equal(t, escrow.Source, src.Side)
	require.Equal(t, f.maker, src.Immutables.Maker)
	require.Equal(t, acct.eth, src.Immutables.Taker)

	// Repeating a completed step does not deploy again.
	_, err = x.CreateSourceEscrow(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.eth.Calls(memledger.OpDeploy))

	rec, err = x.CreateDestinationEscrow(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateDestinationEscrowCreated, rec.State)

	dst, ok := f.xlm.Escrow(f.intent.ID)
	require.True(t, ok)
	require.Equal(t, f.receiver, dst.Immutables.Maker)
	require.Equal(t, acct.xlm, dst.Immutables.Taker)
	require.Equal(t, src.Immutables.Hashlock, dst.Immutables.Hashlock)
	require.Equal(t, src.Immutables.Timelocks, dst.Immutables.Timelocks)
	require.Equal(t, 0, dst.Immutables.Amount.Cmp(big.NewInt(1_050_000)))
}

func TestExecutor_CreateSourceEscrow_RetriesTransientErrors(t *testing.T) {
	f := newFixture(t)
	x, _ := f.executor(t, newAccount(t, 1))
	ctx := context.Background()

	_, err := x.Claim(ctx, f.intent)
	require.NoError(t, err)

	f.eth.FailNext(memledger.OpDeploy, escrow.Transient(errors.New("connection reset")), 2)
	rec, err := x.CreateSourceEscrow(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateSourceEscrowCreated, rec.State)
	require.Equal(t, 3, f.eth.Calls(memledger.OpDeploy))
}

func TestExecutor_CreateSourceEscrow_ExpiredOrder(t *testing.T) {
	f := newFixture(t)
	x, _ := f.executor(t, newAccount(t, 1))
	ctx := context.Background()

	_, err := x.Claim(ctx, f.intent)
	require.NoError(t, err)

	f.eth.SetTime(t0 + 3600)
	rec, err := x.CreateSourceEscrow(ctx, f.intent.ID)
	require.ErrorIs(t, err, ErrEscrowCreationFailed)
	require.Equal(t, StateExpired, rec.State)
	require.Zero(t, f.eth.Calls(memledger.OpDeploy))
}

func TestExecutor_CreateSourceEscrow_ClockSkewMargin(t *testing.T) {
	f := newFixture(t)
	x, _ := f.executor(t, newAccount(t, 1))
	ctx := context.Background()

	_, err := x.Claim(ctx, f.intent)
	require.NoError(t, err)

	// Destination cancellation opens at t0+1500; the default skew is 30s.
	f.eth.SetTime(t0 + 1480)
	rec, err := x.CreateSourceEscrow(ctx, f.intent.ID)
	require.ErrorIs(t, err, ErrEscrowCreationFailed)
	require.Equal(t, StateExpired, rec.State)
	require.Zero(t, f.eth.Calls(memledger.OpDeploy))
}

// A rejected destination deployment is not retried; the source escrow is
// refunded to the maker once it can be cancelled.
func TestExecutor_CreateDestinationEscrow_FailureExpires(t *testing.T) {
	f := newFixture(t)
	x, _ := f.executor(t, newAccount(t, 1))
	ctx := context.Background()

	_, err := x.Claim(ctx, f.intent)
	require.NoError(t, err)
	_, err = x.CreateSourceEscrow(ctx, f.intent.ID)
	require.NoError(t, err)

	f.xlm.FailNext(memledger.OpDeploy, errors.New("insufficient balance"), 1)
	rec, err := x.CreateDestinationEscrow(ctx, f.intent.ID)
	require.ErrorIs(t, err, ErrEscrowCreationFailed)
	require.Equal(t, StateExpired, rec.State)
	require.True(t, rec.NeedsRecovery())
	require.Equal(t, 1, f.xlm.Calls(memledger.OpDeploy))

	// Nothing to do until the source cancellation stage.
	rec, err = x.Recover(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateExpired, rec.State)

	f.eth.SetTime(t0 + 1800)
	rec, err = x.Recover(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateCancelled, rec.State)
	require.Equal(t, escrow.StatusCancelled, rec.Src.Status)
	require.True(t, paid(f.eth.Transfers(), f.maker, 1_000_000))
}

// The maker withdraws on the destination chain; the resolver reads the
// revealed secret there and withdraws the source escrow.
func TestExecutor_RevealAndWithdraw_FromLedger(t *testing.T) {
	f := newFixture(t)
	acct := newAccount(t, 1)
	x, _ := f.executor(t, acct)
	ctx := context.Background()
	rec := f.bothEscrows(t, x)

	_, err := x.RevealAndWithdraw(ctx, f.intent.ID, nil)
	require.ErrorIs(t, err, ErrNotReady)

	f.advance(20)
	_, err = f.xlm.Client(f.receiver).Withdraw(ctx, escrow.Destination, rec.Dst.Immutables, f.secret)
	require.NoError(t, err)
	require.True(t, paid(f.xlm.Transfers(), f.receiver, 1_100_000))

	rec, err = x.RevealAndWithdraw(ctx, f.intent.ID, nil)
	require.NoError(t, err)
	require.Equal(t, StateSourceWithdrawn, rec.State)
	require.NotNil(t, rec.Secret)
	require.Equal(t, f.secret, *rec.Secret)
	require.True(t, paid(f.eth.Transfers(), acct.eth, 1_000_000))
}

// The secret arrives off-chain; the resolver withdraws the destination
// escrow to the maker, then the source escrow to itself.
func TestExecutor_RevealAndWithdraw_OnMakersBehalf(t *testing.T) {
	f := newFixture(t)
	acct := newAccount(t, 1)
	x, _ := f.executor(t, acct)
	ctx := context.Background()
	f.bothEscrows(t, x)

	secrets := SecretSourceFunc(func(context.Context, *Record) (hashlock.Secret, bool, error) {
		return f.secret, true, nil
	})

	// Destination withdrawal has not opened yet.
	_, err := x.RevealAndWithdraw(ctx, f.intent.ID, secrets)
	require.ErrorIs(t, err, ErrNotReady)

	f.advance(20)
	rec, err := x.RevealAndWithdraw(ctx, f.intent.ID, secrets)
	require.NoError(t, err)
	require.Equal(t, StateSourceWithdrawn, rec.State)
	require.Equal(t, escrow.StatusWithdrawn, rec.Dst.Status)
	require.True(t, paid(f.xlm.Transfers(), f.receiver, 1_100_000))
	require.True(t, paid(f.eth.Transfers(), acct.eth, 1_000_000))
}

// Withdrawals are not cut short by the clock skew margin used for
// deployments.
func TestExecutor_RevealAndWithdraw_InsideClockSkewMargin(t *testing.T) {
	f := newFixture(t)
	acct := newAccount(t, 1)
	x, _ := f.executor(t, acct)
	ctx := context.Background()
	f.bothEscrows(t, x)

	secrets := SecretSourceFunc(func(context.Context, *Record) (hashlock.Secret, bool, error) {
		return f.secret, true, nil
	})

	f.advance(1490)
	rec, err := x.RevealAndWithdraw(ctx, f.intent.ID, secrets)
	require.NoError(t, err)
	require.Equal(t, StateSourceWithdrawn, rec.State)
	require.True(t, paid(f.xlm.Transfers(), f.receiver, 1_100_000))
	require.True(t, paid(f.eth.Transfers(), acct.eth, 1_000_000))
}

func TestExecutor_RevealAndWithdraw_WrongSecretIsFatal(t *testing.T) {
	f := newFixture(t)
	x, _ := f.executor(t, newAccount(t, 1))
	ctx := context.Background()
	f.bothEscrows(t, x)
	f.advance(20)

	wrong := SecretSourceFunc(func(context.Context, *Record) (hashlock.Secret, bool, error) {
		var s hashlock.Secret
		s[0] = 1
		return s, true, nil
	})
	rec, err := x.RevealAndWithdraw(ctx, f.intent.ID, wrong)
	require.ErrorIs(t, err, hashlock.ErrHashlockMismatch)
	require.Equal(t, StateExpired, rec.State)
	require.Zero(t, f.xlm.Calls(memledger.OpWithdraw))
}

// Nobody reveals the secret: the destination escrow is refunded to the
// resolver and the maker reclaims the source escrow.
func TestExecutor_Recover_AfterMissedWindow(t *testing.T) {
	f := newFixture(t)
	acct := newAccount(t, 1)
	x, _ := f.executor(t, acct)
	ctx := context.Background()
	f.bothEscrows(t, x)

	f.advance(1500)
	rec, err := x.RevealAndWithdraw(ctx, f.intent.ID, nil)
	require.ErrorIs(t, err, ErrWithdrawalWindowMissed)
	require.Equal(t, StateExpired, rec.State)
	require.True(t, rec.NeedsRecovery())

	rec, err = x.Recover(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateExpired, rec.State)
	require.Equal(t, escrow.StatusCancelled, rec.Dst.Status)
	require.Equal(t, escrow.StatusCreated, rec.Src.Status)
	require.True(t, paid(f.xlm.Transfers(), acct.xlm, 1_100_000))

	f.eth.SetTime(t0 + 1800)
	_, err = f.eth.Client(f.maker).Cancel(ctx, escrow.Source, rec.Src.Immutables)
	require.NoError(t, err)

	rec, err = x.Recover(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateCancelled, rec.State)
	require.Equal(t, escrow.StatusCancelled, rec.Src.Status)
	require.False(t, rec.NeedsRecovery())
	require.True(t, paid(f.eth.Transfers(), f.maker, 1_000_000))
	require.Equal(t, 1, f.eth.Calls(memledger.OpCancel))
}

func TestExecutor_Drive(t *testing.T) {
	f := newFixture(t)
	x, _ := f.executor(t, newAccount(t, 1), WithSecrets(SecretSourceFunc(
		func(context.Context, *Record) (hashlock.Secret, bool, error) { return f.secret, true, nil },
	)))
	ctx := context.Background()

	_, err := x.Claim(ctx, f.intent)
	require.NoError(t, err)

	rec, err := x.Drive(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateDestinationEscrowCreated, rec.State)

	f.advance(20)
	rec, err = x.Drive(ctx, f.intent.ID)
	require.NoError(t, err)
	require.Equal(t, StateSourceWithdrawn, rec.State)
}
