package stellar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/pkg/escrow"
)

const (
	invokePath   = "/v1/invoke"
	simulatePath = "/v1/simulate"
	ledgerPath   = "/v1/ledger/latest"
	eventsPath   = "/v1/events"

	// codeNotSubmitted tells the caller the transaction never left the invoker.
	codeNotSubmitted = "not_submitted"
	codeContract     = "contract_error"

	defaultMaxRetries = 3
)

// HTTPInvoker talks to a signing invoker service over JSON/HTTP. Read-only
// calls are retried with exponential backoff; submissions never are, since
// a submission whose response was lost may still close on the ledger.
type HTTPInvoker struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	maxRetries uint64
	logger     *zap.Logger
}

// HTTPOption configures an HTTPInvoker.
type HTTPOption func(*HTTPInvoker)

func WithHTTPClient(c *http.Client) HTTPOption   { return func(h *HTTPInvoker) { h.httpClient = c } }
func WithTokenSource(t TokenSource) HTTPOption   { return func(h *HTTPInvoker) { h.tokens = t } }
func WithMaxRetries(n uint64) HTTPOption         { return func(h *HTTPInvoker) { h.maxRetries = n } }
func WithInvokerLogger(l *zap.Logger) HTTPOption { return func(h *HTTPInvoker) { h.logger = l } }

// NewHTTPInvoker creates an invoker for the service at baseURL.
func NewHTTPInvoker(baseURL string, opts ...HTTPOption) *HTTPInvoker {
	h := &HTTPInvoker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: defaultMaxRetries,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ Invoker = (*HTTPInvoker)(nil)

func (h *HTTPInvoker) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	var out Result
	err := h.do(ctx, http.MethodPost, invokePath, inv, &out, false)
	return out, err
}

func (h *HTTPInvoker) Simulate(ctx context.Context, inv Invocation) (Result, error) {
	var out Result
	err := h.retry(ctx, simulatePath, func() error {
		return h.do(ctx, http.MethodPost, simulatePath, inv, &out, true)
	})
	return out, err
}

func (h *HTTPInvoker) LatestLedger(ctx context.Context) (LedgerInfo, error) {
	var out LedgerInfo
	err := h.retry(ctx, ledgerPath, func() error {
		return h.do(ctx, http.MethodGet, ledgerPath, nil, &out, true)
	})
	return out, err
}

func (h *HTTPInvoker) Events(ctx context.Context, filter EventFilter) ([]ContractEvent, error) {
	var out struct {
		Events []ContractEvent `json:"events"`
	}
	err := h.retry(ctx, eventsPath, func() error {
		return h.do(ctx, http.MethodPost, eventsPath, filter, &out, true)
	})
	return out.Events, err
}

func (h *HTTPInvoker) retry(ctx context.Context, path string, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), h.maxRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !escrow.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		h.logger.Debug("Retrying invoker request",
			zap.String("path", path),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

type errorBody struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	ContractCode uint32 `json:"contract_code"`
	Contract     string `json:"contract"`
	Function     string `json:"function"`
}

// do performs one request. readOnly controls which failures are transient.
func (h *HTTPInvoker) do(ctx context.Context, method, path string, in, out interface{}, readOnly bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.tokens != nil {
		tok, err := h.tokens.Token(ctx)
		if err != nil {
			return escrow.Transient(fmt.Errorf("invoker token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		err = fmt.Errorf("call invoker %s: %w", path, err)
		if readOnly || neverSent(err) {
			return escrow.Transient(err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	if eb.Error == "" {
		eb.Error = strings.TrimSpace(string(raw))
	}

	if eb.Code == codeContract {
		return &ContractError{Contract: eb.Contract, Function: eb.Function, Code: eb.ContractCode, Message: eb.Error}
	}

	err = fmt.Errorf("invoker %s returned %d: %s", path, resp.StatusCode, eb.Error)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if inv, ok := h.tokens.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
		return escrow.Transient(err)
	case eb.Code == codeNotSubmitted:
		return escrow.Transient(err)
	case resp.StatusCode >= http.StatusInternalServerError && readOnly:
		return escrow.Transient(err)
	case resp.StatusCode == http.StatusTooManyRequests:
		return escrow.Transient(err)
	default:
		return err
	}
}

// neverSent reports whether the request failed while connecting.
func neverSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
