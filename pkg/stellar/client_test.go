package stellar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/config"
	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/timelock"
)

func strkey(t *testing.T, version byte, b byte) string {
	t.Helper()
	s, err := chain.EncodeStrKey(version, bytes.Repeat([]byte{b}, 32))
	if err != nil {
		t.Fatalf("EncodeStrKey: %v", err)
	}
	return s
}

// fakeInvoker is an httptest server speaking the invoker protocol with one
// factory and its escrows.
type fakeInvoker struct {
	t            *testing.T
	escrowAddr   string
	mu           sync.Mutex
	deployed     map[string]bool
	secrets      map[string]string
	ledgerFails  int
	ledgerCalls  int
	lastDeployed Invocation
}

func (f *fakeInvoker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer test-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	writeJSON := func(code int, v interface{}) {
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}

	switch r.URL.Path {
	case ledgerPath:
		f.ledgerCalls++
		if f.ledgerCalls <= f.ledgerFails {
			writeJSON(http.StatusServiceUnavailable, errorBody{Error: "rpc unavailable"})
			return
		}
		writeJSON(http.StatusOK, LedgerInfo{Sequence: 10, CloseTime: 1_000})
	case invokePath:
		var inv Invocation
		if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
			f.t.Errorf("decode invocation: %v", err)
			return
		}
		switch inv.Function {
		case "deploy_escrow":
			orderHash := inv.Args[1].Value
			if f.deployed[orderHash] {
				writeJSON(http.StatusBadRequest, errorBody{Code: codeContract, ContractCode: 3, Contract: inv.Contract, Function: inv.Function, Error: "AlreadyDeployed"})
				return
			}
			f.deployed[orderHash] = true
			f.lastDeployed = inv
			addr, _ := json.Marshal(f.escrowAddr)
			writeJSON(http.StatusOK, Result{TxHash: "tx-deploy", Ledger: 11, LedgerCloseTime: 1_005, Value: addr})
		case "withdraw":
			if inv.Contract != f.escrowAddr {
				f.t.Errorf("withdraw sent to %s", inv.Contract)
			}
			f.secrets[inv.Contract] = inv.Args[0].Value
			writeJSON(http.StatusOK, Result{TxHash: "tx-withdraw", Ledger: 12, LedgerCloseTime: 1_010})
		case "cancel":
			writeJSON(http.StatusBadRequest, errorBody{Code: codeContract, ContractCode: 4, Contract: inv.Contract, Function: inv.Function})
		default:
			writeJSON(http.StatusBadRequest, errorBody{Error: "unknown function " + inv.Function})
		}
	case simulatePath:
		var inv Invocation
		_ = json.NewDecoder(r.Body).Decode(&inv)
		switch inv.Function {
		case "get_escrow":
			var v json.RawMessage = []byte("null")
			if f.deployed[inv.Args[0].Value] {
				v, _ = json.Marshal(f.escrowAddr)
			}
			writeJSON(http.StatusOK, Result{LedgerCloseTime: 1_000, Value: v})
		case "get_state":
			state := stateActive
			if _, ok := f.secrets[inv.Contract]; ok {
				state = stateWithdrawn
			}
			v, _ := json.Marshal(state)
			writeJSON(http.StatusOK, Result{Value: v})
		}
	case eventsPath:
		var filter EventFilter
		_ = json.NewDecoder(r.Body).Decode(&filter)
		var events []ContractEvent
		if s, ok := f.secrets[filter.Contract]; ok {
			v, _ := json.Marshal(s)
			events = append(events, ContractEvent{Contract: filter.Contract, Topics: topicWithdraw, Value: v, TxHash: "tx-withdraw"})
		}
		writeJSON(http.StatusOK, map[string]interface{}{"events": events})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, f *fakeInvoker) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	cfg := &config.StellarConfig{
		InvokerURL:      srv.URL,
		FactoryContract: strkey(t, chain.VersionContract, 0xfa),
		Account:         strkey(t, chain.VersionAccount, 0x0b),
		MaxRetries:      3,
		Token:           "test-token",
	}
	c, err := NewHTTPClient(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c
}

func newFake(t *testing.T) *fakeInvoker {
	return &fakeInvoker{
		t:          t,
		escrowAddr: strkey(t, chain.VersionContract, 0xe5),
		deployed:   make(map[string]bool),
		secrets:    make(map[string]string),
	}
}

func testImmutables(t *testing.T, c *Client, secret hashlock.Secret) escrow.Immutables {
	t.Helper()
	schedule, err := timelock.NewSchedule(1_000, timelock.DefaultOffsets())
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	return escrow.Immutables{
		OrderHash:     common.HexToHash("0xabc1"),
		Hashlock:      secret.Hashlock(),
		Maker:         strkey(t, chain.VersionAccount, 0x01),
		Taker:         c.Account(),
		Token:         chain.NativeAsset,
		Amount:        big.NewInt(5_000_000),
		SafetyDeposit: big.NewInt(100),
		Timelocks:     schedule,
	}
}

func TestClient_Timestamp_RetriesUnavailable(t *testing.T) {
	f := newFake(t)
	f.ledgerFails = 2
	c := newTestClient(t, f)

	ts, err := c.Timestamp(context.Background())
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}
	if ts != 1_000 {
		t.Fatalf("timestamp = %d, want 1000", ts)
	}
	if f.ledgerCalls != 3 {
		t.Fatalf("ledger calls = %d, want 3", f.ledgerCalls)
	}
}

func TestClient_DeployWithdraw(t *testing.T) {
	f := newFake(t)
	c := newTestClient(t, f)
	ctx := context.Background()

	secret, err := hashlock.NewSecret()
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	im := testImmutables(t, c, secret)

	status, err := c.Status(ctx, im.OrderHash)
	if err != nil || status != escrow.StatusNone {
		t.Fatalf("status before deploy = %s, %v", status, err)
	}

	receipt, err := c.Deploy(ctx, escrow.DeployParams{Side: escrow.Destination, Immutables: im})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if receipt.Escrow != f.escrowAddr || receipt.Timestamp != 1_005 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got := f.lastDeployed.Args[5]; got.Type != "native_asset" {
		t.Fatalf("token arg = %+v, want native_asset", got)
	}

	_, err = c.Deploy(ctx, escrow.DeployParams{Side: escrow.Destination, Immutables: im})
	if !errors.Is(err, escrow.ErrAlreadyDeployed) {
		t.Fatalf("second deploy err = %v, want ErrAlreadyDeployed", err)
	}

	if _, err := c.Withdraw(ctx, escrow.Destination, im, secret); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	status, err = c.Status(ctx, im.OrderHash)
	if err != nil || status != escrow.StatusWithdrawn {
		t.Fatalf("status after withdraw = %s, %v", status, err)
	}

	got, ok, err := c.RevealedSecret(ctx, im.OrderHash)
	if err != nil || !ok {
		t.Fatalf("RevealedSecret: ok=%v err=%v", ok, err)
	}
	if got != secret {
		t.Fatalf("revealed secret mismatch")
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	f := newFake(t)
	c := newTestClient(t, f)
	ctx := context.Background()

	secret, _ := hashlock.NewSecret()
	im := testImmutables(t, c, secret)

	if _, err := c.Cancel(ctx, escrow.Destination, im); !errors.Is(err, escrow.ErrNotFound) {
		t.Fatalf("cancel before deploy err = %v, want ErrNotFound", err)
	}
	if _, err := c.Deploy(ctx, escrow.DeployParams{Side: escrow.Destination, Immutables: im}); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if _, err := c.Cancel(ctx, escrow.Destination, im); !errors.Is(err, escrow.ErrTimelockNotReached) {
		t.Fatalf("cancel err = %v, want ErrTimelockNotReached", err)
	}
	if _, err := c.PublicCancel(ctx, im); !errors.Is(err, escrow.ErrInvalidState) {
		t.Fatalf("public cancel err = %v, want ErrInvalidState", err)
	}
}

func TestHTTPInvoker_Unauthorized(t *testing.T) {
	f := newFake(t)
	srv := httptest.NewServer(f)
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, WithMaxRetries(1), WithTokenSource(StaticToken("wrong")))
	_, err := inv.LatestLedger(context.Background())
	if err == nil || !escrow.IsTransient(err) {
		t.Fatalf("err = %v, want transient unauthorized", err)
	}
	if f.ledgerCalls != 0 {
		t.Fatalf("ledger handler reached %d times", f.ledgerCalls)
	}
}

func TestContractError_Error(t *testing.T) {
	err := &ContractError{Contract: "C1", Function: "withdraw", Code: 2}
	if got, want := err.Error(), fmt.Sprintf("contract %s.%s failed with code %d", "C1", "withdraw", 2); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
