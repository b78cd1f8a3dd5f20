package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/internal/metrics"
	"github.com/chainsafe/fusion-swap/pkg/auth"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
)

// ErrUnauthorized is returned when the relay rejects the client's credentials.
var ErrUnauthorized = errors.New("relay rejected credentials")

const maxErrBodyBytes = 4096

// Client talks to a relay over HTTP. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	logger     *zap.Logger

	key *ecdsa.PrivateKey

	mu    sync.Mutex
	token string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken uses a pre-issued bearer token.
func WithToken(token string) ClientOption { return func(c *Client) { c.token = token } }

// WithLoginKey logs in with key whenever a token is needed.
func WithLoginKey(key *ecdsa.PrivateKey) ClientOption { return func(c *Client) { c.key = key } }

// WithClientHTTP overrides the underlying HTTP client.
func WithClientHTTP(hc *http.Client) ClientOption { return func(c *Client) { c.httpClient = hc } }

// WithClientRetries sets how many times failed requests are retried.
func WithClientRetries(n uint64) ClientOption { return func(c *Client) { c.maxRetries = n } }

// WithClientLogger sets the logger.
func WithClientLogger(l *zap.Logger) ClientOption { return func(c *Client) { c.logger = l } }

// NewClient creates a relay client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges a signed challenge for a bearer token and caches it.
func (c *Client) Login(ctx context.Context) (*auth.LoginResponse, error) {
	if c.key == nil {
		return nil, fmt.Errorf("%w: no login key configured", ErrUnauthorized)
	}
	addr := crypto.PubkeyToAddress(c.key.PublicKey)
	issued := time.Now()
	sig, err := auth.SignEIP191(c.key, auth.LoginMessage(addr, issued))
	if err != nil {
		return nil, err
	}

	var resp auth.LoginResponse
	req := auth.LoginRequest{Address: addr.Hex(), IssuedAt: issued.Unix(), Signature: sig}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", false, req, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return &resp, nil
}

// Submit posts a signed order.
func (c *Client) Submit(ctx context.Context, o *order.Order, signature []byte) (common.Hash, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/intents", false, SubmitRequest{Order: o, Signature: signature}, &resp)
	return resp.ID, err
}

// ListPending returns pending intents.
func (c *Client) ListPending(ctx context.Context) ([]*Intent, error) {
	var resp ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/intents", false, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Intents, nil
}

// Get fetches one intent.
func (c *Client) Get(ctx context.Context, id common.Hash) (*Intent, error) {
	var intent Intent
	if err := c.do(ctx, http.MethodGet, "/api/v1/intents/"+id.Hex(), false, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// Claim asks the relay to assign the intent to this resolver.
func (c *Client) Claim(ctx context.Context, id common.Hash) (*Intent, error) {
	var intent Intent
	if err := c.do(ctx, http.MethodPost, "/api/v1/intents/"+id.Hex()+"/claim", true, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// UpdateStatus reports progress on an intent.
func (c *Client) UpdateStatus(ctx context.Context, id common.Hash, status Status) (*Intent, error) {
	var intent Intent
	path := "/api/v1/intents/" + id.Hex() + "/status"
	if err := c.do(ctx, http.MethodPut, path, true, StatusRequest{Status: status}, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// SubmitSecret publishes the order secret.
func (c *Client) SubmitSecret(ctx context.Context, id common.Hash, secret hashlock.Secret) (*Intent, error) {
	var intent Intent
	path := "/api/v1/intents/" + id.Hex() + "/secret"
	if err := c.do(ctx, http.MethodPost, path, false, SecretRequest{Secret: secret}, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// do sends a request, retrying network errors, 5xx and one expired token.
// All relay endpoints are idempotent so every method is retried.
func (c *Client) do(ctx context.Context, method, path string, authed bool, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = b
	}

	relogged := false
	op := func() error {
		if authed {
			if err := c.ensureToken(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		err := c.send(ctx, method, path, authed, payload, out)
		if errors.Is(err, ErrUnauthorized) && authed && c.key != nil && !relogged {
			relogged = true
			c.clearToken()
			return err
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		metrics.RetryAttempts.WithLabelValues("relay_" + strings.ToLower(method)).Inc()
		c.logger.Warn("relay request failed, retrying",
			zap.String("path", path),
			zap.Duration("backoff", d),
			zap.Error(err),
		)
	})
}

func (c *Client) send(ctx context.Context, method, path string, authed bool, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		c.mu.Lock()
		req.Header.Set("Authorization", "Bearer "+c.token)
		c.mu.Unlock()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode relay response: %w", err))
		}
		return nil
	}

	var e struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
	_ = json.Unmarshal(raw, &e)
	return &statusError{code: resp.StatusCode, msg: e.Error}
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	have := c.token != ""
	c.mu.Unlock()
	if have {
		return nil
	}
	_, err := c.Login(ctx)
	return err
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// statusError is a non-2xx relay response.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.code, e.msg)
}

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// Unwrap maps the status onto the relay's sentinel errors.
func (e *statusError) Unwrap() error {
	switch e.code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		switch {
		case e.msg == ErrClaimLost.Error():
			return ErrClaimLost
		case strings.HasPrefix(e.msg, ErrInvalidTransition.Error()):
			return ErrInvalidTransition
		default:
			return ErrIntentExists
		}
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusBadRequest:
		if strings.HasPrefix(e.msg, ErrSecretNotAccepted.Error()) {
			return ErrSecretNotAccepted
		}
	}
	return nil
}
