package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrLoginExpired is returned for challenges outside the login window.
	ErrLoginExpired = errors.New("login challenge expired")
	// ErrSignerMismatch is returned when the signature recovers to another address.
	ErrSignerMismatch = errors.New("signature does not match address")
	// ErrResolverNotAllowed is returned for addresses missing from the allowlist.
	ErrResolverNotAllowed = errors.New("resolver not allowed")
)

const defaultLoginWindow = 5 * time.Minute

// LoginRequest is a signed login challenge.
type LoginRequest struct {
	Address   string `json:"address"`
	IssuedAt  int64  `json:"issued_at"`
	Signature string `json:"signature"`
}

// LoginResponse carries an issued bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	Resolver  string    `json:"resolver"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticator exchanges signed challenges for resolver tokens.
type Authenticator struct {
	issuer  *JWTIssuer
	window  time.Duration
	allowed map[common.Address]struct{}
	now     func() time.Time
}

// NewAuthenticator creates an Authenticator. An empty allowlist admits any
// address that proves key ownership.
func NewAuthenticator(issuer *JWTIssuer, window time.Duration, allowlist []string) *Authenticator {
	if window <= 0 {
		window = defaultLoginWindow
	}
	a := &Authenticator{
		issuer: issuer,
		window: window,
		now:    time.Now,
	}
	if len(allowlist) > 0 {
		a.allowed = make(map[common.Address]struct{}, len(allowlist))
		for _, addr := range allowlist {
			a.allowed[common.HexToAddress(strings.TrimSpace(addr))] = struct{}{}
		}
	}
	return a
}

// Login verifies req and issues a token whose subject is the resolver address.
func (a *Authenticator) Login(req *LoginRequest) (*LoginResponse, error) {
	if !common.IsHexAddress(req.Address) {
		return nil, fmt.Errorf("invalid address %q", req.Address)
	}
	addr := common.HexToAddress(req.Address)

	issued := time.Unix(req.IssuedAt, 0)
	if d := a.now().Sub(issued); d > a.window || d < -a.window {
		return nil, ErrLoginExpired
	}

	recovered, err := VerifyEIP191Signature(LoginMessage(addr, issued), req.Signature)
	if err != nil {
		return nil, err
	}
	if recovered != addr {
		return nil, ErrSignerMismatch
	}
	if a.allowed != nil {
		if _, ok := a.allowed[addr]; !ok {
			return nil, ErrResolverNotAllowed
		}
	}

	token, exp, err := a.issuer.Issue(addr.Hex())
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, Resolver: addr.Hex(), ExpiresAt: exp}, nil
}
