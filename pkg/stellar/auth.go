package stellar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/chainsafe/fusion-swap/pkg/config"
)

const (
	defaultExpiryLeeway = 60 * time.Second
	defaultHTTPTimeout  = 10 * time.Second

	// If token endpoint doesn't give expires_in, use a conservative fallback.
	fallbackTokenTTL = 5 * time.Minute

	// Limit error-body reads so we don't accidentally slurp huge responses.
	maxErrBodyBytes = 4096
)

// TokenSource supplies bearer tokens for the invoker endpoint.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// OAuthTokenSource implements TokenSource with the OAuth2 client credentials
// flow, caching the token until shortly before it expires.
type OAuthTokenSource struct {
	cfg        *config.StellarAuthConfig
	httpClient *http.Client
	leeway     time.Duration

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewOAuthTokenSource creates a token source for cfg.
func NewOAuthTokenSource(cfg *config.StellarAuthConfig, httpClient *http.Client) *OAuthTokenSource {
	leeway := cfg.ExpiryLeeway
	if leeway == 0 {
		leeway = defaultExpiryLeeway
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &OAuthTokenSource{cfg: cfg, httpClient: httpClient, leeway: leeway}
}

func (p *OAuthTokenSource) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.token != "" && time.Now().Before(p.expiry) {
		tok := p.token
		p.mu.Unlock()
		return tok, nil
	}
	p.mu.Unlock()

	// Fetch without holding the mutex.
	token, expiry, err := p.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.token = token
	p.expiry = expiry
	p.mu.Unlock()

	return token, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (p *OAuthTokenSource) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiry = time.Time{}
	p.mu.Unlock()
}

func (p *OAuthTokenSource) fetchToken(ctx context.Context) (string, time.Time, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     p.cfg.ClientID,
		"client_secret": p.cfg.ClientSecret,
		"audience":      p.cfg.Audience,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", time.Time{}, err
		}
		return "", time.Time{}, fmt.Errorf("call token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
		return "", time.Time{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(b))
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token response missing access_token")
	}

	return tr.AccessToken, refreshBy(time.Now(), tr.ExpiresIn, p.leeway), nil
}

// refreshBy returns the leeway-adjusted time the token should be replaced at.
func refreshBy(now time.Time, expiresInSeconds int, leeway time.Duration) time.Time {
	if expiresInSeconds <= 0 {
		return now.Add(fallbackTokenTTL)
	}

	exp := now.Add(time.Duration(expiresInSeconds) * time.Second)
	at := exp.Add(-leeway)
	if at.Before(now) {
		return now.Add(time.Duration(expiresInSeconds/2) * time.Second)
	}
	return at
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }
