// Package quote fetches indicative market prices from the liquidity proxy.
// Prices only steer when a resolver bids; they never affect escrow correctness.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/pkg/chain"
)

// ErrNoQuote is returned when the proxy has no price for a pair.
var ErrNoQuote = errors.New("no quote available")

const maxErrBodyBytes = 4096

// Pair identifies the two assets of a swap.
type Pair struct {
	SrcChain chain.Chain
	SrcAsset string
	DstChain chain.Chain
	DstAsset string
}

func (p Pair) String() string {
	return fmt.Sprintf("%s:%s/%s:%s", p.SrcChain, p.SrcAsset, p.DstChain, p.DstAsset)
}

// Quote is the rate of destination smallest units per source smallest unit.
type Quote struct {
	Rate      decimal.Decimal `json:"rate"`
	Timestamp time.Time       `json:"timestamp"`
}

// DstAmount converts srcAmount to destination units at q, rounding down.
func (q Quote) DstAmount(srcAmount *big.Int) *big.Int {
	if srcAmount == nil || q.Rate.Sign() <= 0 {
		return new(big.Int)
	}
	return decimal.NewFromBigInt(srcAmount, 0).Mul(q.Rate).Floor().BigInt()
}

// Provider returns market quotes.
type Provider interface {
	Quote(ctx context.Context, pair Pair) (Quote, error)
}

// Fixed serves configured rates, keyed by Pair.String. Used when no proxy is
// configured and in tests.
type Fixed map[string]decimal.Decimal

func (f Fixed) Quote(_ context.Context, pair Pair) (Quote, error) {
	rate, ok := f[pair.String()]
	if !ok {
		// Config loaders lowercase map keys.
		rate, ok = f[strings.ToLower(pair.String())]
	}
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, pair)
	}
	return Quote{Rate: rate, Timestamp: time.Now()}, nil
}

// ParseFixed builds a Fixed provider from decimal strings.
func ParseFixed(rates map[string]string) (Fixed, error) {
	f := make(Fixed, len(rates))
	for pair, s := range rates {
		rate, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", pair, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", pair)
		}
		f[strings.ToLower(pair)] = rate
	}
	return f, nil
}

// Client calls the quote proxy's GET /v1/quote endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a proxy client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type quoteResponse struct {
	Rate      string `json:"rate"`
	Timestamp int64  `json:"timestamp"`
}

func (c *Client) Quote(ctx context.Context, pair Pair) (Quote, error) {
	q := url.Values{}
	q.Set("src_chain", pair.SrcChain.String())
	q.Set("src_asset", pair.SrcAsset)
	q.Set("dst_chain", pair.DstChain.String())
	q.Set("dst_asset", pair.DstAsset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/quote?"+q.Encode(), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("create quote request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("call quote proxy: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, pair)
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
		return Quote{}, fmt.Errorf("quote proxy returned %d: %s", resp.StatusCode, string(b))
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return Quote{}, fmt.Errorf("decode quote response: %w", err)
	}
	rate, err := decimal.NewFromString(qr.Rate)
	if err != nil {
		return Quote{}, fmt.Errorf("invalid quote rate %q: %w", qr.Rate, err)
	}
	if rate.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: non-positive rate for %s", ErrNoQuote, pair)
	}

	c.logger.Debug("Fetched quote",
		zap.String("pair", pair.String()),
		zap.String("rate", rate.String()))

	return Quote{Rate: rate, Timestamp: time.Unix(qr.Timestamp, 0)}, nil
}
