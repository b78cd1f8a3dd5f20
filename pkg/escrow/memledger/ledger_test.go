package memledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/timelock"
)

const (
	maker = "0x1000000000000000000000000000000000000001"
	token = "0x4000000000000000000000000000000000000004"
)

func immutables(t *testing.T, taker string, secret hashlock.Secret, at uint64) escrow.Immutables {
	t.Helper()
	schedule, err := timelock.NewSchedule(at, timelock.DefaultOffsets())
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	return escrow.Immutables{
		OrderHash:     common.HexToHash("0x01"),
		Hashlock:      secret.Hashlock(),
		Maker:         maker,
		Taker:         taker,
		Token:         token,
		Amount:        big.NewInt(500),
		SafetyDeposit: big.NewInt(0),
		Timelocks:     schedule,
	}
}

func TestDeploy_FirstWriterWins(t *testing.T) {
	ledger := New(chain.Ethereum, 1000)
	secret, _ := hashlock.NewSecret()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		already int
	)
	for i := 0; i < 8; i++ {
		taker := common.BigToAddress(big.NewInt(int64(100 + i))).Hex()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Client(taker).Deploy(context.Background(), escrow.DeployParams{
				Side:       escrow.Source,
				Immutables: immutables(t, taker, secret, 1000),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, escrow.ErrAlreadyDeployed):
				already++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || already != 7 {
		t.Fatalf("wins=%d already=%d, want 1 and 7", wins, already)
	}
	if n := len(ledger.Events()); n != 1 {
		t.Fatalf("expected one created event, got %d", n)
	}
}

func TestWithdraw_RevealsSecret(t *testing.T) {
	ctx := context.Background()
	ledger := New(chain.Ethereum, 1000)
	taker := "0x2000000000000000000000000000000000000002"
	client := ledger.Client(taker)
	secret, _ := hashlock.NewSecret()
	im := immutables(t, taker, secret, 1000)

	if _, err := client.Deploy(ctx, escrow.DeployParams{Side: escrow.Source, Immutables: im}); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if _, ok, _ := client.RevealedSecret(ctx, im.OrderHash); ok {
		t.Fatal("secret revealed before withdrawal")
	}

	if _, err := client.Withdraw(ctx, escrow.Source, im, secret); !errors.Is(err, escrow.ErrTimelockNotReached) {
		t.Fatalf("expected ErrTimelockNotReached, got %v", err)
	}
	ledger.Advance(uint64(im.Timelocks.Offsets.SrcWithdrawal))
	if _, err := client.Withdraw(ctx, escrow.Source, im, secret); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	got, ok, err := ledger.Client(maker).RevealedSecret(ctx, im.OrderHash)
	if err != nil || !ok || got != secret {
		t.Fatalf("RevealedSecret = (%x, %v, %v)", got, ok, err)
	}
	status, _ := client.Status(ctx, im.OrderHash)
	if status != escrow.StatusWithdrawn {
		t.Fatalf("status = %s", status)
	}
}

func TestFailNext(t *testing.T) {
	ledger := New(chain.Ethereum, 0)
	boom := escrow.Transient(errors.New("rpc unavailable"))
	ledger.FailNext(OpTimestamp, boom, 2)
	client := ledger.Client(maker)

	for i := 0; i < 2; i++ {
		if _, err := client.Timestamp(context.Background()); !escrow.IsTransient(err) {
			t.Fatalf("call %d: expected transient error, got %v", i, err)
		}
	}
	if _, err := client.Timestamp(context.Background()); err != nil {
		t.Fatalf("fault should be exhausted: %v", err)
	}
	if ledger.Calls(OpTimestamp) != 3 {
		t.Fatalf("calls = %d", ledger.Calls(OpTimestamp))
	}
}
