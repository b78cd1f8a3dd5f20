package quote

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/pkg/chain"
)

var testPair = Pair{
	SrcChain: chain.Ethereum,
	SrcAsset: "0x1111111111111111111111111111111111111111",
	DstChain: chain.Stellar,
	DstAsset: chain.NativeAsset,
}

func TestQuote_DstAmount(t *testing.T) {
	q := Quote{Rate: decimal.RequireFromString("2.5")}
	if got := q.DstAmount(big.NewInt(1_000_001)); got.Cmp(big.NewInt(2_500_002)) != 0 {
		t.Fatalf("DstAmount = %s, want 2500002", got)
	}
	if got := (Quote{}).DstAmount(big.NewInt(10)); got.Sign() != 0 {
		t.Fatalf("zero rate DstAmount = %s, want 0", got)
	}
}

func TestClient_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/quote" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("dst_asset") != chain.NativeAsset {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"rate":"0.98","timestamp":1700000000}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	q, err := c.Quote(context.Background(), testPair)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !q.Rate.Equal(decimal.RequireFromString("0.98")) {
		t.Fatalf("rate = %s", q.Rate)
	}

	other := testPair
	other.DstAsset = "CXXX"
	if _, err := c.Quote(context.Background(), other); !errors.Is(err, ErrNoQuote) {
		t.Fatalf("err = %v, want ErrNoQuote", err)
	}
}

func TestFixed(t *testing.T) {
	f := Fixed{testPair.String(): decimal.NewFromInt(3)}
	q, err := f.Quote(context.Background(), testPair)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.DstAmount(big.NewInt(7)).Int64() != 21 {
		t.Fatalf("DstAmount = %s", q.DstAmount(big.NewInt(7)))
	}
}

func TestParseFixed(t *testing.T) {
	pair := Pair{
		SrcChain: chain.Ethereum,
		SrcAsset: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		DstChain: chain.Stellar,
		DstAsset: chain.NativeAsset,
	}
	// Keys arrive lowercased from the config loader.
	f, err := ParseFixed(map[string]string{"ethereum:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48/stellar:native": "0.25"})
	if err != nil {
		t.Fatalf("ParseFixed: %v", err)
	}
	q, err := f.Quote(context.Background(), pair)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.DstAmount(big.NewInt(400)).Int64() != 100 {
		t.Fatalf("DstAmount = %s", q.DstAmount(big.NewInt(400)))
	}

	for _, bad := range []string{"abc", "0", "-1"} {
		if _, err := ParseFixed(map[string]string{"x": bad}); err == nil {
			t.Fatalf("ParseFixed(%q) succeeded", bad)
		}
	}
}
