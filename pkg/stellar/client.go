package stellar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/config"
	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
)

// Factory error codes.
const (
	factoryAlreadyDeployed uint32 = 3
	factoryInvalidParams   uint32 = 4
)

// Escrow contract error codes.
const (
	escrowInvalidState       uint32 = 1
	escrowInvalidSecret      uint32 = 2
	escrowTimelockNotExpired uint32 = 3
	escrowCannotCancel       uint32 = 4
	escrowInvalidAmount      uint32 = 5
	escrowInvalidAddress     uint32 = 6
	escrowUnauthorizedCaller uint32 = 10
	escrowWindowClosed       uint32 = 11
)

// Escrow contract states as returned by get_state.
const (
	stateActive    uint32 = 0
	stateWithdrawn uint32 = 1
	stateCancelled uint32 = 2
)

var topicWithdraw = []string{"escrow", "withdraw"}

// Client drives Soroban escrows through the escrow factory.
type Client struct {
	cfg     *config.StellarConfig
	invoker Invoker
	logger  *zap.Logger
	// escrows caches factory lookups of escrow contract ids by order hash.
	escrows *xsync.MapOf[common.Hash, string]
}

var _ escrow.Client = (*Client)(nil)

// NewClient creates a Client that submits through invoker as cfg.Account.
func NewClient(cfg *config.StellarConfig, invoker Invoker, logger *zap.Logger) (*Client, error) {
	if err := chain.Stellar.ValidateAddress(cfg.Account); err != nil {
		return nil, fmt.Errorf("invalid stellar account: %w", err)
	}
	if err := chain.Stellar.ValidateAddress(cfg.FactoryContract); err != nil {
		return nil, fmt.Errorf("invalid stellar factory contract: %w", err)
	}

	logger.Info("Configured Stellar client",
		zap.String("invoker_url", cfg.InvokerURL),
		zap.String("factory_contract", cfg.FactoryContract),
		zap.String("resolver_account", cfg.Account))

	return &Client{
		cfg:     cfg,
		invoker: invoker,
		logger:  logger,
		escrows: xsync.NewMapOf[common.Hash, string](),
	}, nil
}

// NewHTTPClient wires a Client to the HTTP invoker described by cfg.
func NewHTTPClient(cfg *config.StellarConfig, logger *zap.Logger) (*Client, error) {
	opts := []HTTPOption{WithInvokerLogger(logger)}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, WithMaxRetries(cfg.MaxRetries))
	}
	switch {
	case cfg.Auth != nil:
		opts = append(opts, WithTokenSource(NewOAuthTokenSource(cfg.Auth, nil)))
	case cfg.Token != "":
		opts = append(opts, WithTokenSource(StaticToken(cfg.Token)))
	}
	return NewClient(cfg, NewHTTPInvoker(cfg.InvokerURL, opts...), logger)
}

func (c *Client) Chain() chain.Chain { return chain.Stellar }
func (c *Client) Account() string    { return c.cfg.Account }

// Timestamp returns the close time of the latest ledger.
func (c *Client) Timestamp(ctx context.Context) (uint64, error) {
	info, err := c.invoker.LatestLedger(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest ledger: %w", err)
	}
	return info.CloseTime, nil
}

// Deploy creates an escrow through the factory. The factory salt is the
// immutables hash, so a second deployment for the same order is rejected.
func (c *Client) Deploy(ctx context.Context, p escrow.DeployParams) (escrow.Receipt, error) {
	im := p.Immutables
	if err := im.Validate(chain.Stellar); err != nil {
		return escrow.Receipt{}, err
	}
	salt, err := im.Hash(chain.Stellar)
	if err != nil {
		return escrow.Receipt{}, fmt.Errorf("%w: %v", escrow.ErrInvalidImmutables, err)
	}

	res, err := c.invoker.Invoke(ctx, Invocation{
		Contract: c.cfg.FactoryContract,
		Function: "deploy_escrow",
		Source:   c.cfg.Account,
		Args: []Arg{
			Bytes32(salt),
			Bytes32(im.OrderHash),
			Bytes32(im.Hashlock),
			Address(im.Maker),
			Address(im.Taker),
			Asset(im.Token),
			I128(im.Amount),
			I128(im.SafetyDeposit),
			U256(im.Timelocks.Encode()),
		},
	})
	if err != nil {
		return escrow.Receipt{}, c.classify("deploy_escrow", err)
	}

	var addr string
	if err := json.Unmarshal(res.Value, &addr); err != nil {
		return escrow.Receipt{}, fmt.Errorf("decode deployed escrow address: %w", err)
	}
	c.escrows.Store(im.OrderHash, addr)

	c.logger.Info("Escrow deployed",
		zap.String("order_hash", im.OrderHash.Hex()),
		zap.String("escrow", addr),
		zap.String("tx_hash", res.TxHash))

	return escrow.Receipt{Escrow: addr, TxHash: res.TxHash, Timestamp: res.LedgerCloseTime}, nil
}

func (c *Client) Withdraw(ctx context.Context, _ escrow.Side, im escrow.Immutables, secret hashlock.Secret) (escrow.Receipt, error) {
	return c.invokeEscrow(ctx, im.OrderHash, "withdraw", Bytes32(secret), Address(c.cfg.Account))
}

func (c *Client) PublicWithdraw(ctx context.Context, _ escrow.Side, im escrow.Immutables, secret hashlock.Secret) (escrow.Receipt, error) {
	return c.invokeEscrow(ctx, im.OrderHash, "public_withdraw", Bytes32(secret), Address(c.cfg.Account))
}

func (c *Client) Cancel(ctx context.Context, _ escrow.Side, im escrow.Immutables) (escrow.Receipt, error) {
	return c.invokeEscrow(ctx, im.OrderHash, "cancel", Address(c.cfg.Account))
}

// PublicCancel is not supported: Soroban escrows only ever hold the
// destination leg, which has no public cancellation stage.
func (c *Client) PublicCancel(context.Context, escrow.Immutables) (escrow.Receipt, error) {
	return escrow.Receipt{}, fmt.Errorf("%w: destination escrow has no public cancellation", escrow.ErrInvalidState)
}

// Status reads the escrow state. An order without an escrow is StatusNone.
func (c *Client) Status(ctx context.Context, orderHash common.Hash) (escrow.Status, error) {
	addr, ok, err := c.escrowAddress(ctx, orderHash)
	if err != nil || !ok {
		return escrow.StatusNone, err
	}

	res, err := c.invoker.Simulate(ctx, Invocation{Contract: addr, Function: "get_state", Source: c.cfg.Account})
	if err != nil {
		return escrow.StatusNone, c.classify("get_state", err)
	}
	var state uint32
	if err := json.Unmarshal(res.Value, &state); err != nil {
		return escrow.StatusNone, fmt.Errorf("decode escrow state: %w", err)
	}
	switch state {
	case stateActive:
		return escrow.StatusCreated, nil
	case stateWithdrawn:
		return escrow.StatusWithdrawn, nil
	case stateCancelled:
		return escrow.StatusCancelled, nil
	default:
		return escrow.StatusNone, fmt.Errorf("unknown escrow state %d", state)
	}
}

// RevealedSecret reads the secret from the escrow's withdraw event.
func (c *Client) RevealedSecret(ctx context.Context, orderHash common.Hash) (hashlock.Secret, bool, error) {
	addr, ok, err := c.escrowAddress(ctx, orderHash)
	if err != nil || !ok {
		return hashlock.Secret{}, false, err
	}

	events, err := c.invoker.Events(ctx, EventFilter{
		Contract:    addr,
		Topics:      topicWithdraw,
		StartLedger: c.cfg.StartLedger,
	})
	if err != nil {
		return hashlock.Secret{}, false, fmt.Errorf("failed to read withdraw events: %w", err)
	}

	for _, ev := range events {
		var raw string
		if err := json.Unmarshal(ev.Value, &raw); err != nil {
			c.logger.Warn("Failed to parse withdraw event",
				zap.Error(err),
				zap.String("tx_hash", ev.TxHash))
			continue
		}
		secret, err := hashlock.ParseSecret(raw)
		if err != nil {
			c.logger.Warn("Withdraw event carries malformed secret",
				zap.Error(err),
				zap.String("tx_hash", ev.TxHash))
			continue
		}
		return secret, true, nil
	}
	return hashlock.Secret{}, false, nil
}

func (c *Client) invokeEscrow(ctx context.Context, orderHash common.Hash, fn string, args ...Arg) (escrow.Receipt, error) {
	addr, ok, err := c.escrowAddress(ctx, orderHash)
	if err != nil {
		return escrow.Receipt{}, err
	}
	if !ok {
		return escrow.Receipt{}, fmt.Errorf("%w: %s", escrow.ErrNotFound, orderHash.Hex())
	}

	res, err := c.invoker.Invoke(ctx, Invocation{Contract: addr, Function: fn, Args: args, Source: c.cfg.Account})
	if err != nil {
		return escrow.Receipt{}, c.classify(fn, err)
	}

	c.logger.Info("Escrow transaction closed",
		zap.String("op", fn),
		zap.String("order_hash", orderHash.Hex()),
		zap.String("tx_hash", res.TxHash))

	return escrow.Receipt{Escrow: addr, TxHash: res.TxHash, Timestamp: res.LedgerCloseTime}, nil
}

// escrowAddress resolves the escrow contract for orderHash through the factory.
func (c *Client) escrowAddress(ctx context.Context, orderHash common.Hash) (string, bool, error) {
	if addr, ok := c.escrows.Load(orderHash); ok {
		return addr, true, nil
	}

	res, err := c.invoker.Simulate(ctx, Invocation{
		Contract: c.cfg.FactoryContract,
		Function: "get_escrow",
		Args:     []Arg{Bytes32(orderHash)},
		Source:   c.cfg.Account,
	})
	if err != nil {
		return "", false, c.classify("get_escrow", err)
	}

	var addr *string
	if err := json.Unmarshal(res.Value, &addr); err != nil {
		return "", false, fmt.Errorf("decode escrow address: %w", err)
	}
	if addr == nil || *addr == "" {
		return "", false, nil
	}
	c.escrows.Store(orderHash, *addr)
	return *addr, true, nil
}

// classify maps contract error codes onto the escrow error taxonomy.
func (c *Client) classify(fn string, err error) error {
	var ce *ContractError
	if !errors.As(err, &ce) {
		return err
	}

	if fn == "deploy_escrow" {
		switch ce.Code {
		case factoryAlreadyDeployed:
			return fmt.Errorf("%w: %v", escrow.ErrAlreadyDeployed, err)
		case factoryInvalidParams:
			return fmt.Errorf("%w: %v", escrow.ErrInvalidImmutables, err)
		}
		return err
	}

	switch ce.Code {
	case escrowInvalidState:
		return fmt.Errorf("%w: %v", escrow.ErrInvalidState, err)
	case escrowInvalidSecret:
		return fmt.Errorf("%w: %v", escrow.ErrInvalidSecret, err)
	case escrowTimelockNotExpired, escrowCannotCancel:
		return fmt.Errorf("%w: %v", escrow.ErrTimelockNotReached, err)
	case escrowInvalidAmount, escrowInvalidAddress:
		return fmt.Errorf("%w: %v", escrow.ErrInvalidImmutables, err)
	case escrowUnauthorizedCaller:
		return fmt.Errorf("%w: %v", escrow.ErrUnauthorizedCaller, err)
	case escrowWindowClosed:
		return fmt.Errorf("%w: %v", escrow.ErrWithdrawalWindowClosed, err)
	}
	return err
}
