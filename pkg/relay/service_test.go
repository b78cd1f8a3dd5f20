package relay

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
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/fusion-swap/pkg/app/errors"
	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
)

var (
	testNow    = time.Unix(1_700_000_000, 0)
	testDomain = order.NewDomain(1, common.HexToAddress("0x1111111111111111111111111111111111111111"))
)

type signedOrder struct {
	order  *order.Order
	sig    []byte
	secret hashlock.Secret
}

func newSignedOrder(t *testing.T, amount int64) signedOrder {
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
		SrcAsset:    "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		DstAsset:    chain.NativeAsset,
		SrcAmount:   big.NewInt(amount),
		DstAmount:   big.NewInt(amount),
		DstChain:    "stellar",
		DstReceiver: receiver,
		SrcFactory:  "0x2222222222222222222222222222222222222222",
		DstFactory:  factory,
		Deadline:    uint64(testNow.Unix()) + 3600,
	}, order.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	sig, err := order.Sign(o, testDomain, signer)
	require.NoError(t, err)
	return signedOrder{order: o, sig: sig, secret: secret}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func newTestService(pub Publisher) Service {
	clock := testNow
	return NewService(NewMemoryStore(), testDomain, zap.NewNop(),
		WithPublisher(pub),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
}

func TestService_SubmitAndGet(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := newTestService(pub)
	so := newSignedOrder(t, 1_000_000)

	id, err := svc.Submit(ctx, so.order, so.sig)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	want, _ := so.order.Hash(testDomain)
	if id != want {
		t.Fatalf("id = %s, want order hash %s", id.Hex(), want.Hex())
	}

	got, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPending || got.Resolver != "" {
		t.Fatalf("unexpected intent %+v", got)
	}

	if _, err := svc.Submit(ctx, so.order, so.sig); !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Fatalf("duplicate submit err = %v, want conflict", err)
	}
	if types := pub.types(); len(types) != 1 || types[0] != EventSubmitted {
		t.Fatalf("events = %v", types)
	}
}

func TestService_Submit_RejectsForeignSignature(t *testing.T) {
	svc := newTestService(nil)
	a := newSignedOrder(t, 1_000_000)
	b := newSignedOrder(t, 2_000_000)

	_, err := svc.Submit(context.Background(), a.order, b.sig)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if !apperrors.Is(err, apperrors.CategoryUnauthorized) {
		t.Fatalf("err = %v, want unauthorized category", err)
	}
}

func TestService_Submit_RejectsTamperedOrder(t *testing.T) {
	svc := newTestService(nil)
	so := newSignedOrder(t, 1_000_000)
	so.order.DstAmount = big.NewInt(1)

	if _, err := svc.Submit(context.Background(), so.order, so.sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestService_Get_NotFound(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.Get(context.Background(), common.HexToHash("0x01"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Fatalf("err = %v, want not found category", err)
	}
}

func TestService_ListPending_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)

	var ids []common.Hash
	for i := int64(1); i <= 3; i++ {
		so := newSignedOrder(t, i*1000)
		id, err := svc.Submit(ctx, so.order, so.sig)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := svc.Claim(ctx, ids[1], "r1")
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx)
	require.NoError(t, err)
	if len(pending) != 2 {
		t.Fatalf("len = %d, want 2", len(pending))
	}
	if pending[0].ID != ids[2] || pending[1].ID != ids[0] {
		t.Fatalf("unexpected order %s, %s", pending[0].ID.Hex(), pending[1].ID.Hex())
	}
}

func TestService_Claim_OneWinner(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	so := newSignedOrder(t, 1_000_000)
	id, err := svc.Submit(ctx, so.order, so.sig)
	require.NoError(t, err)

	resolvers := []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8"}
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []string
		losses int
	)
	for _, r := range resolvers {
		wg.Add(1)
		go func(r string) {
			defer wg.Done()
			_, err := svc.Claim(ctx, id, r)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins = append(wins, r)
			case errors.Is(err, ErrClaimLost):
				losses++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}(r)
	}
	wg.Wait()

	if len(wins) != 1 || losses != len(resolvers)-1 {
		t.Fatalf("wins = %v losses = %d", wins, losses)
	}

	// The winner may repeat its claim.
	if _, err := svc.Claim(ctx, id, wins[0]); err != nil {
		t.Fatalf("repeat claim: %v", err)
	}
}

func TestService_Claim_RepeatIsSilent(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := newTestService(pub)
	so := newSignedOrder(t, 1_000_000)
	id, err := svc.Submit(ctx, so.order, so.sig)
	require.NoError(t, err)

	first, err := svc.Claim(ctx, id, "r1")
	require.NoError(t, err)
	require.Equal(t, []string{EventSubmitted, EventStatus}, pub.types())

	again, err := svc.Claim(ctx, id, "r1")
	require.NoError(t, err)
	require.Equal(t, first.UpdatedAt, again.UpdatedAt)

	_, err = svc.UpdateStatus(ctx, id, StatusFailed, "r1")
	require.NoError(t, err)
	got, err := svc.Claim(ctx, id, "r1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, []string{EventSubmitted, EventStatus, EventStatus}, pub.types())
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	so := newSignedOrder(t, 1_000_000)
	id, err := svc.Submit(ctx, so.order, so.sig)
	require.NoError(t, err)

	_, err = svc.Claim(ctx, id, "r1")
	require.NoError(t, err)

	if _, err := svc.UpdateStatus(ctx, id, StatusExecuting, "r2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other resolver err = %v, want ErrForbidden", err)
	}

	got, err := svc.UpdateStatus(ctx, id, StatusExecuting, "r1")
	require.NoError(t, err)
	if got.Status != StatusExecuting {
		t.Fatalf("status = %s", got.Status)
	}

	if _, err := svc.UpdateStatus(ctx, id, StatusPickedUp, "r1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("backwards err = %v, want ErrInvalidTransition", err)
	}

	_, err = svc.UpdateStatus(ctx, id, StatusCompleted, "r1")
	require.NoError(t, err)
	if _, err := svc.UpdateStatus(ctx, id, StatusFailed, "r1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("terminal err = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.UpdateStatus(ctx, id, Status("bogus"), "r1"); !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("unknown status err = %v", err)
	}
}

func TestService_SubmitSecret(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := newTestService(pub)
	so := newSignedOrder(t, 1_000_000)
	id, err := svc.Submit(ctx, so.order, so.sig)
	require.NoError(t, err)

	if _, err := svc.SubmitSecret(ctx, id, so.secret); !errors.Is(err, ErrSecretNotAccepted) {
		t.Fatalf("secret before execution err = %v", err)
	}

	_, err = svc.Claim(ctx, id, "r1")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, id, StatusExecuting, "r1")
	require.NoError(t, err)

	var wrong hashlock.Secret
	wrong[0] = 1
	if _, err := svc.SubmitSecret(ctx, id, wrong); !errors.Is(err, ErrSecretNotAccepted) {
		t.Fatalf("wrong secret err = %v", err)
	}

	got, err := svc.SubmitSecret(ctx, id, so.secret)
	require.NoError(t, err)
	if got.Secret == nil || *got.Secret != so.secret {
		t.Fatal("secret not stored")
	}

	// Idempotent.
	_, err = svc.SubmitSecret(ctx, id, so.secret)
	require.NoError(t, err)

	require.Equal(t, []string{EventSubmitted, EventStatus, EventStatus, EventSecret, EventSecret}, pub.types())
}
