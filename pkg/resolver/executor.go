package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/internal/metrics"
	"github.com/chainsafe/fusion-swap/pkg/auction"
	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/config"
	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
	"github.com/chainsafe/fusion-swap/pkg/quote"
	"github.com/chainsafe/fusion-swap/pkg/relay"
	"github.com/chainsafe/fusion-swap/pkg/timelock"
)

// Executor performs the individual steps of an order's execution. Every step
// reads the record from the Store, acts on one chain and saves the outcome,
// so steps can be resumed after a restart.
type Executor struct {
	cfg     config.EngineConfig
	domain  order.Domain
	clients map[chain.Chain]escrow.Client
	store   Store
	relay   Relay
	quotes  quote.Provider
	secrets SecretSource
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRelay claims orders through r and reports progress to it.
func WithRelay(r Relay) Option { return func(x *Executor) { x.relay = r } }

// WithQuotes sets the market price provider used by Evaluate.
func WithQuotes(p quote.Provider) Option { return func(x *Executor) { x.quotes = p } }

// WithSecrets overrides where revealed secrets are looked up.
func WithSecrets(s SecretSource) Option { return func(x *Executor) { x.secrets = s } }

// WithExecutorClock sets the wall clock used for record timestamps.
func WithExecutorClock(now func() time.Time) Option { return func(x *Executor) { x.now = now } }

// NewExecutor creates an executor acting through one escrow client per chain.
func NewExecutor(
	cfg config.EngineConfig,
	domain order.Domain,
	clients []escrow.Client,
	store Store,
	logger *zap.Logger,
	opts ...Option,
) (*Executor, error) {
	x := &Executor{
		cfg:     cfg,
		domain:  domain,
		clients: make(map[chain.Chain]escrow.Client, len(clients)),
		store:   store,
		now:     time.Now,
		logger:  logger,
	}
	for _, c := range clients {
		if _, dup := x.clients[c.Chain()]; dup {
			return nil, fmt.Errorf("duplicate escrow client for %s", c.Chain())
		}
		x.clients[c.Chain()] = c
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.secrets == nil {
		sources := []SecretSource{LedgerSecrets(x.clients)}
		if x.relay != nil {
			sources = append(sources, RelaySecrets(x.relay))
		}
		x.secrets = FirstSecret(sources...)
	}
	return x, nil
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Profitable bool `json:"profitable"`
	// Price is the counter-amount the order demands at the evaluated time.
	Price *big.Int `json:"price"`
	// Market is what the source amount is worth on the destination chain.
	Market *big.Int `json:"market,omitempty"`
	// BidAt is the earliest ledger time the order becomes profitable, zero if never.
	BidAt  uint64 `json:"bid_at,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Evaluate prices o at ledger time now and decides whether filling it leaves
// the configured margin. Malformed orders return an error.
func (x *Executor) Evaluate(ctx context.Context, o *order.Order, now uint64) (Decision, error) {
	if err := o.Validate(); err != nil {
		return Decision{}, err
	}
	price, err := fillPrice(o, now)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Price: price}

	switch {
	case o.Expired(now):
		d.Reason = "expired"
	case x.quotes == nil:
		d.Reason = "no quote provider"
	default:
		pair := quote.Pair{
			SrcChain: o.SrcChain,
			SrcAsset: o.SrcAsset.Hex(),
			DstChain: o.DstChain(),
			DstAsset: o.DstAsset,
		}
		q, err := x.quotes.Quote(ctx, pair)
		if errors.Is(err, quote.ErrNoQuote) {
			d.Reason = "no quote"
			break
		}
		if err != nil {
			return Decision{}, fmt.Errorf("quote %s: %w", pair, err)
		}

		d.Market = q.DstAmount(o.SrcAmount)
		threshold := new(big.Int).Mul(d.Market, big.NewInt(int64(auction.BasisPoints-x.cfg.MarginBps)))
		threshold.Quo(threshold, big.NewInt(auction.BasisPoints))
		d.Profitable = price.Cmp(threshold) <= 0
		if !d.Profitable {
			d.Reason = "below margin"
		}

		t, _ := o.Traits()
		if t.Auction != nil {
			if at, ok := auction.OptimalBidTime(o.DstAmount, *t.Auction, x.cfg.MarginBps, d.Market); ok {
				d.BidAt = at
			}
		} else if d.Profitable {
			d.BidAt = now
		}
	}

	decision := "skip"
	if d.Profitable {
		decision = "fill"
	}
	metrics.AuctionEvaluations.WithLabelValues(decision).Inc()
	return d, nil
}

// fillPrice is the destination amount owed when the order is filled at ts.
func fillPrice(o *order.Order, ts uint64) (*big.Int, error) {
	t, err := o.Traits()
	if err != nil {
		return nil, err
	}
	if t.Auction == nil {
		return new(big.Int).Set(o.DstAmount), nil
	}
	return auction.CurrentPrice(o.DstAmount, *t.Auction, ts), nil
}

// Claim takes ownership of the intent. It is idempotent: claiming an order
// this resolver already holds returns its record. Losing the race returns
// ErrClaimLost.
func (x *Executor) Claim(ctx context.Context, intent *relay.Intent) (*Record, error) {
	if err := x.admit(intent); err != nil {
		return nil, err
	}

	now := x.now()
	rec := &Record{
		OrderHash: intent.ID,
		Order:     intent.Order,
		Signature: intent.Signature,
		State:     StateOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := x.store.Create(ctx, rec); err != nil && !errors.Is(err, ErrRecordExists) {
		return nil, err
	}
	cur, err := x.store.Get(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	if cur.State != StateOpen {
		if lostClaim(cur) {
			return cur, ErrClaimLost
		}
		return cur, nil
	}

	if x.relay != nil {
		if _, err := x.relay.Claim(ctx, intent.ID); err != nil {
			if errors.Is(err, relay.ErrClaimLost) {
				return x.lose(ctx, intent.ID)
			}
			return cur, fmt.Errorf("claim %s: %w", intent.ID.Hex(), err)
		}
	}
	return x.transition(ctx, intent.ID, StateClaimed, nil)
}

// admit rejects intents this resolver must never act on.
func (x *Executor) admit(intent *relay.Intent) error {
	o := intent.Order
	if err := o.Validate(); err != nil {
		return err
	}
	hash, err := o.Hash(x.domain)
	if err != nil {
		return err
	}
	if hash != intent.ID {
		return fmt.Errorf("%w: intent id %s is not the order hash %s", order.ErrInvalidOrderParameters, intent.ID.Hex(), hash.Hex())
	}
	if err := order.Verify(o, x.domain, intent.Signature); err != nil {
		return err
	}
	for _, c := range []chain.Chain{o.SrcChain, o.DstChain()} {
		if _, ok := x.clients[c]; !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
		}
	}
	return nil
}

// CreateSourceEscrow locks the maker's funds on the source chain at the
// current auction price. The deployment is attempted once; any rejection
// expires the order.
func (x *Executor) CreateSourceEscrow(ctx context.Context, orderHash common.Hash) (*Record, error) {
	rec, err := x.store.Get(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	if done, err := expect(rec, StateClaimed); done || err != nil {
		return rec, err
	}

	o := rec.Order
	c, err := x.client(o.SrcChain)
	if err != nil {
		return rec, err
	}
	now, err := x.timestamp(ctx, c)
	if err != nil {
		return rec, err
	}

	sched := o.Timelocks()
	if o.Expired(now) {
		return x.expire(ctx, orderHash, fmt.Errorf("%w: order expired at ledger time %d", ErrEscrowCreationFailed, now))
	}
	if now+x.cfg.ClockSkew >= sched.Deadline(timelock.DstCancellation) {
		return x.expire(ctx, orderHash, fmt.Errorf("%w: ledger time %d leaves no room before %s", ErrEscrowCreationFailed, now, timelock.DstCancellation))
	}
	price, err := fillPrice(o, now)
	if err != nil {
		return x.expire(ctx, orderHash, err)
	}

	im := escrow.Immutables{
		OrderHash:     orderHash,
		Hashlock:      o.Hashlock(),
		Maker:         o.Maker.Hex(),
		Taker:         c.Account(),
		Token:         o.SrcAsset.Hex(),
		Amount:        new(big.Int).Set(o.SrcAmount),
		SafetyDeposit: o.Extension.SrcSafetyDeposit,
		Timelocks:     sched,
	}
	if err := im.Validate(c.Chain()); err != nil {
		return x.expire(ctx, orderHash, fmt.Errorf("%w: %v", ErrEscrowCreationFailed, err))
	}

	receipt, err := x.submit(ctx, c, "deploy", func() (escrow.Receipt, error) {
		return c.Deploy(ctx, escrow.DeployParams{Side: escrow.Source, Immutables: im, MakerSignature: rec.Signature})
	})
	switch {
	case errors.Is(err, escrow.ErrAlreadyDeployed):
		return x.lose(ctx, orderHash)
	case err != nil:
		return x.expire(ctx, orderHash, fmt.Errorf("%w: %v", ErrEscrowCreationFailed, err))
	}

	return x.transition(ctx, orderHash, StateSourceEscrowCreated, func(r *Record) {
		r.DstAmount = price
		r.Src = &Leg{Immutables: im, Escrow: receipt.Escrow, DeployTx: receipt.TxHash, Status: escrow.StatusCreated}
	})
}

// CreateDestinationEscrow locks the resolver's funds for the maker under the
// same hashlock and schedule as the source escrow.
func (x *Executor) CreateDestinationEscrow(ctx context.Context, orderHash common.Hash) (*Record, error) {
	rec, err := x.store.Get(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	if done, err := expect(rec, StateSourceEscrowCreated); done || err != nil {
		return rec, err
	}

	o := rec.Order
	c, err := x.client(o.DstChain())
	if err != nil {
		return rec, err
	}
	now, err := x.timestamp(ctx, c)
	if err != nil {
		return rec, err
	}

	sched := o.Timelocks()
	if now+x.cfg.ClockSkew >= sched.Deadline(timelock.DstCancellation) {
		return x.expire(ctx, orderHash, fmt.Errorf("%w: ledger time %d leaves no room before %s", ErrEscrowCreationFailed, now, timelock.DstCancellation))
	}

	im := escrow.Immutables{
		OrderHash:     orderHash,
		Hashlock:      o.Hashlock(),
		Maker:         o.Extension.DstReceiver,
		Taker:         c.Account(),
		Token:         o.DstAsset,
		Amount:        new(big.Int).Set(rec.DstAmount),
		SafetyDeposit: o.Extension.DstSafetyDeposit,
		Timelocks:     sched,
	}
	src := rec.Src.Immutables
	if im.Hashlock != src.Hashlock || im.OrderHash != src.OrderHash || im.Timelocks != src.Timelocks {
		return x.expire(ctx, orderHash, fmt.Errorf("%w: destination immutables diverge from the source escrow", hashlock.ErrHashlockMismatch))
	}
	if err := im.Validate(c.Chain()); err != nil {
		return x.expire(ctx, orderHash, fmt.Errorf("%w: %v", ErrEscrowCreationFailed, err))
	}

	receipt, err := x.submit(ctx, c, "deploy", func() (escrow.Receipt, error) {
		return c.Deploy(ctx, escrow.DeployParams{Side: escrow.Destination, Immutables: im})
	})
	switch {
	case errors.Is(err, escrow.ErrAlreadyDeployed):
		return x.lose(ctx, orderHash)
	case err != nil:
		return x.expire(ctx, orderHash, fmt.Errorf("%w: %v", ErrEscrowCreationFailed, err))
	}

	rec, err = x.transition(ctx, orderHash, StateDestinationEscrowCreated, func(r *Record) {
		r.Dst = &Leg{Immutables: im, Escrow: receipt.Escrow, DeployTx: receipt.TxHash, Status: escrow.StatusCreated}
	})
	if err == nil {
		x.report(ctx, orderHash, relay.StatusExecuting)
	}
	return rec, err
}

// RevealAndWithdraw completes the swap once the secret is known. If the
// maker already withdrew on the destination chain the secret is read from
// that withdrawal; otherwise secrets is asked for it and the resolver
// withdraws the destination escrow to the maker first. The secret is then
// replayed against the source escrow. A nil secrets uses the executor's
// default sources.
func (x *Executor) RevealAndWithdraw(ctx context.Context, orderHash common.Hash, secrets SecretSource) (*Record, error) {
	if secrets == nil {
		secrets = x.secrets
	}
	rec, err := x.store.Get(ctx, orderHash)
	if err != nil {
		return nil, err
	}

	if rec.State == StateDestinationEscrowCreated {
		rec, err = x.withdrawDestination(ctx, rec, secrets)
		if err != nil {
			return rec, err
		}
	}
	if done, err := expect(rec, StateDestinationWithdrawn); done || err != nil {
		return rec, err
	}
	return x.withdrawSource(ctx, rec)
}

func (x *Executor) withdrawDestination(ctx context.Context, rec *Record, secrets SecretSource) (*Record, error) {
	o := rec.Order
	c, err := x.client(o.DstChain())
	if err != nil {
		return rec, err
	}

	status, err := x.status(ctx, c, rec.OrderHash)
	if err != nil {
		return rec, err
	}
	switch status {
	case escrow.StatusCreated:
	case escrow.StatusWithdrawn:
		secret, ok, err := c.RevealedSecret(ctx, rec.OrderHash)
		if err != nil {
			return rec, err
		}
		if !ok {
			return rec, fmt.Errorf("destination escrow of %s withdrawn without a revealed secret", rec.OrderHash.Hex())
		}
		if err := o.Hashlock().Verify(secret); err != nil {
			return x.expire(ctx, rec.OrderHash, err)
		}
		return x.acceptSecret(ctx, rec.OrderHash, secret, "")
	default:
		return x.expire(ctx, rec.OrderHash, fmt.Errorf("%w: destination escrow is %s", ErrWithdrawalWindowMissed, status))
	}

	now, err := x.timestamp(ctx, c)
	if err != nil {
		return rec, err
	}
	if _, closes := escrow.WithdrawWindow(escrow.Destination, o.Timelocks()); now >= closes {
		return x.expire(ctx, rec.OrderHash, fmt.Errorf("%w: destination window closed at %d", ErrWithdrawalWindowMissed, closes))
	}

	secret, ok, err := secrets.Secret(ctx, rec)
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, ErrNotReady
	}
	if err := o.Hashlock().Verify(secret); err != nil {
		return x.expire(ctx, rec.OrderHash, err)
	}

	receipt, err := x.submit(ctx, c, "withdraw", func() (escrow.Receipt, error) {
		return c.Withdraw(ctx, escrow.Destination, rec.Dst.Immutables, secret)
	})
	switch {
	case errors.Is(err, escrow.ErrTimelockNotReached):
		return rec, ErrNotReady
	case errors.Is(err, escrow.ErrInvalidState):
		// Withdrawn by the maker in the meantime; picked up on the next pass.
		return rec, ErrNotReady
	case errors.Is(err, escrow.ErrWithdrawalWindowClosed):
		return x.expire(ctx, rec.OrderHash, fmt.Errorf("%w: %v", ErrWithdrawalWindowMissed, err))
	case err != nil:
		return rec, err
	}
	return x.acceptSecret(ctx, rec.OrderHash, secret, receipt.TxHash)
}

func (x *Executor) acceptSecret(ctx context.Context, orderHash common.Hash, secret hashlock.Secret, tx string) (*Record, error) {
	return x.transition(ctx, orderHash, StateDestinationWithdrawn, func(r *Record) {
		s := secret
		r.Secret = &s
		r.Dst.Status = escrow.StatusWithdrawn
		r.Dst.CloseTx = tx
	})
}

func (x *Executor) withdrawSource(ctx context.Context, rec *Record) (*Record, error) {
	o := rec.Order
	c, err := x.client(o.SrcChain)
	if err != nil {
		return rec, err
	}
	now, err := x.timestamp(ctx, c)
	if err != nil {
		return rec, err
	}
	opens, closes := escrow.WithdrawWindow(escrow.Source, o.Timelocks())
	if now < opens {
		return rec, ErrNotReady
	}
	if now >= closes {
		return x.expire(ctx, rec.OrderHash, fmt.Errorf("%w: source window closed at %d", ErrWithdrawalWindowMissed, closes))
	}

	secret := *rec.Secret
	receipt, err := x.submit(ctx, c, "withdraw", func() (escrow.Receipt, error) {
		return c.Withdraw(ctx, escrow.Source, rec.Src.Immutables, secret)
	})
	switch {
	case errors.Is(err, escrow.ErrTimelockNotReached):
		return rec, ErrNotReady
	case errors.Is(err, escrow.ErrWithdrawalWindowClosed):
		return x.expire(ctx, rec.OrderHash, fmt.Errorf("%w: %v", ErrWithdrawalWindowMissed, err))
	case errors.Is(err, escrow.ErrInvalidState):
		status, serr := x.status(ctx, c, rec.OrderHash)
		if serr != nil {
			return rec, serr
		}
		// A public withdrawal still pays the taker.
		if status != escrow.StatusWithdrawn {
			return x.expire(ctx, rec.OrderHash, fmt.Errorf("%w: source escrow is %s", ErrWithdrawalWindowMissed, status))
		}
	case err != nil:
		return rec, err
	}

	rec, err = x.transition(ctx, rec.OrderHash, StateSourceWithdrawn, func(r *Record) {
		r.Src.Status = escrow.StatusWithdrawn
		r.Src.CloseTx = receipt.TxHash
	})
	if err == nil {
		x.report(ctx, rec.OrderHash, relay.StatusCompleted)
	}
	return rec, err
}

// Recover cancels the escrows of an expired order once their cancellation
// stage is reached. Source funds return to the maker and destination funds
// to the resolver. The order moves to Cancelled when no escrow holds funds.
func (x *Executor) Recover(ctx context.Context, orderHash common.Hash) (*Record, error) {
	rec, err := x.store.Get(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	if !rec.NeedsRecovery() {
		return rec, nil
	}

	var errs []error
	for _, side := range []escrow.Side{escrow.Destination, escrow.Source} {
		if err := x.cancelLeg(ctx, rec, side); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", side, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return rec, err
	}

	rec, err = x.store.Get(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	if rec.NeedsRecovery() || !(rec.Src.cancelled() || rec.Dst.cancelled()) {
		return rec, nil
	}
	return x.transition(ctx, orderHash, StateCancelled, nil)
}

func (l *Leg) cancelled() bool {
	return l != nil && (l.Status == escrow.StatusCancelled || l.Status == escrow.StatusPubliclyCancelled)
}

func (r *Record) leg(side escrow.Side) *Leg {
	if side == escrow.Source {
		return r.Src
	}
	return r.Dst
}

func (x *Executor) cancelLeg(ctx context.Context, rec *Record, side escrow.Side) error {
	leg := rec.leg(side)
	if !leg.open() {
		return nil
	}
	chainOf := rec.Order.SrcChain
	if side == escrow.Destination {
		chainOf = rec.Order.DstChain()
	}
	c, err := x.client(chainOf)
	if err != nil {
		return err
	}

	status, err := x.status(ctx, c, rec.OrderHash)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return x.closeLeg(ctx, rec.OrderHash, side, status, "")
	}

	now, err := x.timestamp(ctx, c)
	if err != nil {
		return err
	}
	if now < escrow.CancelAt(side, leg.Immutables.Timelocks) {
		return nil
	}

	receipt, err := x.submit(ctx, c, "cancel", func() (escrow.Receipt, error) {
		return c.Cancel(ctx, side, leg.Immutables)
	})
	if errors.Is(err, escrow.ErrInvalidState) {
		if status, err = x.status(ctx, c, rec.OrderHash); err != nil {
			return err
		}
		return x.closeLeg(ctx, rec.OrderHash, side, status, "")
	}
	if err != nil {
		return err
	}
	x.logger.Info("Escrow cancelled",
		zap.String("order_hash", rec.OrderHash.Hex()),
		zap.Stringer("side", side),
		zap.String("tx_hash", receipt.TxHash),
	)
	return x.closeLeg(ctx, rec.OrderHash, side, escrow.StatusCancelled, receipt.TxHash)
}

func (x *Executor) closeLeg(ctx context.Context, orderHash common.Hash, side escrow.Side, status escrow.Status, tx string) error {
	_, err := x.store.Update(ctx, orderHash, func(r *Record) error {
		leg := r.leg(side)
		if leg == nil {
			return fmt.Errorf("order %s has no %s escrow", orderHash.Hex(), side)
		}
		leg.Status = status
		if tx != "" {
			leg.CloseTx = tx
		}
		r.UpdatedAt = x.now()
		return nil
	})
	return err
}

// Step performs the next action for the order's current state.
func (x *Executor) Step(ctx context.Context, orderHash common.Hash) (*Record, error) {
	rec, err := x.store.Get(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	switch rec.State {
	case StateClaimed:
		return x.CreateSourceEscrow(ctx, orderHash)
	case StateSourceEscrowCreated:
		return x.CreateDestinationEscrow(ctx, orderHash)
	case StateDestinationEscrowCreated, StateDestinationWithdrawn:
		return x.RevealAndWithdraw(ctx, orderHash, nil)
	case StateExpired:
		return x.Recover(ctx, orderHash)
	default:
		return rec, nil
	}
}

// Drive steps the order until it waits on a timelock or the secret, stops
// making progress, or reaches a terminal state.
func (x *Executor) Drive(ctx context.Context, orderHash common.Hash) (*Record, error) {
	var prev State
	for {
		rec, err := x.Step(ctx, orderHash)
		if errors.Is(err, ErrNotReady) {
			return rec, nil
		}
		if err != nil || rec.State.Terminal() || rec.State == prev {
			return rec, err
		}
		if err := ctx.Err(); err != nil {
			return rec, err
		}
		prev = rec.State
	}
}

// LedgerTime returns the current time of chain c.
func (x *Executor) LedgerTime(ctx context.Context, c chain.Chain) (uint64, error) {
	client, err := x.client(c)
	if err != nil {
		return 0, err
	}
	return x.timestamp(ctx, client)
}

func (x *Executor) client(c chain.Chain) (escrow.Client, error) {
	client, ok := x.clients[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
	}
	return client, nil
}

// expect reports done when rec has already moved past want along the happy
// path, and an error when it left that path.
func expect(rec *Record, want State) (bool, error) {
	if rec.State == want {
		return false, nil
	}
	if progress[rec.State] > progress[want] {
		return true, nil
	}
	return false, fmt.Errorf("%w: order %s is %s, want %s", ErrInvalidTransition, rec.OrderHash.Hex(), rec.State, want)
}

var progress = map[State]int{
	StateOpen:                     1,
	StateClaimed:                  2,
	StateSourceEscrowCreated:      3,
	StateDestinationEscrowCreated: 4,
	StateDestinationWithdrawn:     5,
	StateSourceWithdrawn:          6,
}

func (x *Executor) transition(ctx context.Context, orderHash common.Hash, to State, mutate func(*Record)) (*Record, error) {
	var from State
	rec, err := x.store.Update(ctx, orderHash, func(r *Record) error {
		if !r.State.CanMoveTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
		}
		from = r.State
		r.State = to
		if mutate != nil {
			mutate(r)
		}
		r.UpdatedAt = x.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
	x.logger.Info("Order state changed",
		zap.String("order_hash", orderHash.Hex()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return rec, nil
}

// expire abandons the order with cause and returns cause.
func (x *Executor) expire(ctx context.Context, orderHash common.Hash, cause error) (*Record, error) {
	rec, err := x.transition(ctx, orderHash, StateExpired, func(r *Record) {
		r.LastError = cause.Error()
	})
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	x.logger.Warn("Order expired", zap.String("order_hash", orderHash.Hex()), zap.Error(cause))
	x.report(ctx, orderHash, relay.StatusFailed)
	return rec, cause
}

// lose records that another resolver won the order.
func (x *Executor) lose(ctx context.Context, orderHash common.Hash) (*Record, error) {
	metrics.ClaimsLost.Inc()
	rec, err := x.transition(ctx, orderHash, StateExpired, func(r *Record) {
		r.LastError = ErrClaimLost.Error()
	})
	if err != nil {
		return nil, errors.Join(ErrClaimLost, err)
	}
	x.logger.Info("Claim lost", zap.String("order_hash", orderHash.Hex()))
	return rec, ErrClaimLost
}

func lostClaim(r *Record) bool {
	return r.State == StateExpired && r.LastError == ErrClaimLost.Error()
}

// report tells the relay about progress. The relay is advisory, so failures
// are only logged.
func (x *Executor) report(ctx context.Context, orderHash common.Hash, status relay.Status) {
	if x.relay == nil {
		return
	}
	if _, err := x.relay.UpdateStatus(ctx, orderHash, status); err != nil {
		x.logger.Warn("Failed to report status to relay",
			zap.String("order_hash", orderHash.Hex()),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// submit runs a ledger transaction, retrying only errors the client marked
// transient.
func (x *Executor) submit(ctx context.Context, c escrow.Client, op string, fn func() (escrow.Receipt, error)) (escrow.Receipt, error) {
	name := c.Chain().String()
	start := time.Now()

	var receipt escrow.Receipt
	err := x.retry(ctx, name+"_"+op, func() error {
		var err error
		receipt, err = fn()
		return err
	})

	metrics.EscrowOperationDuration.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.EscrowOperations.WithLabelValues(name, op, result).Inc()
	return receipt, err
}

func (x *Executor) timestamp(ctx context.Context, c escrow.Client) (uint64, error) {
	var ts uint64
	err := x.retry(ctx, c.Chain().String()+"_timestamp", func() error {
		var err error
		ts, err = c.Timestamp(ctx)
		return err
	})
	return ts, err
}

func (x *Executor) status(ctx context.Context, c escrow.Client, orderHash common.Hash) (escrow.Status, error) {
	var s escrow.Status
	err := x.retry(ctx, c.Chain().String()+"_status", func() error {
		var err error
		s, err = c.Status(ctx, orderHash)
		return err
	})
	return s, err
}

func (x *Executor) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = x.cfg.RetryInitial
	b.MaxInterval = x.cfg.RetryMax

	policy := backoff.WithContext(backoff.WithMaxRetries(b, x.cfg.RetryAttempts), ctx)
	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !escrow.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, d time.Duration) {
		metrics.RetryAttempts.WithLabelValues(op).Inc()
		x.logger.Warn("Transient chain error, retrying",
			zap.String("operation", op),
			zap.Duration("backoff", d),
			zap.Error(err),
		)
	})
}
