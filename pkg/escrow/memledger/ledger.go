// Package memledger is an in-memory escrow ledger. It serializes deployments
// per order the way a real chain does and exposes a settable ledger clock.
package memledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
)

// Op names a client operation for fault injection.
type Op string

const (
	OpDeploy         Op = "deploy"
	OpWithdraw       Op = "withdraw"
	OpPublicWithdraw Op = "public_withdraw"
	OpCancel         Op = "cancel"
	OpPublicCancel   Op = "public_cancel"
	OpTimestamp      Op = "timestamp"
)

type fault struct {
	err       error
	remaining int
}

// Ledger holds every escrow of one chain.
type Ledger struct {
	chain   chain.Chain
	now     atomic.Uint64
	escrows *xsync.MapOf[common.Hash, *escrow.Escrow]

	mu        sync.Mutex
	events    []escrow.Event
	transfers []escrow.Transfer
	faults    map[Op]*fault
	calls     map[Op]int
}

// New creates an empty ledger whose clock starts at now.
func New(c chain.Chain, now uint64) *Ledger {
	l := &Ledger{
		chain:   c,
		escrows: xsync.NewMapOf[common.Hash, *escrow.Escrow](),
		faults:  make(map[Op]*fault),
		calls:   make(map[Op]int),
	}
	l.now.Store(now)
	return l
}

// Now returns the ledger time.
func (l *Ledger) Now() uint64 { return l.now.Load() }

// SetTime moves the ledger clock.
func (l *Ledger) SetTime(ts uint64) { l.now.Store(ts) }

// Advance moves the ledger clock forward by d seconds.
func (l *Ledger) Advance(d uint64) uint64 { return l.now.Add(d) }

// FailNext makes the next n calls of op fail with err before touching state.
func (l *Ledger) FailNext(op Op, err error, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults[op] = &fault{err: err, remaining: n}
}

// Calls returns how many times op was invoked, including failed attempts.
func (l *Ledger) Calls(op Op) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

// Escrow returns a copy of the escrow deployed for orderHash.
func (l *Ledger) Escrow(orderHash common.Hash) (escrow.Escrow, bool) {
	e, ok := l.escrows.Load(orderHash)
	if !ok {
		return escrow.Escrow{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return *e, true
}

// Events returns every event emitted so far, oldest first.
func (l *Ledger) Events() []escrow.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]escrow.Event(nil), l.events...)
}

// Transfers returns every payout made so far.
func (l *Ledger) Transfers() []escrow.Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]escrow.Transfer(nil), l.transfers...)
}

// Client returns an escrow.Client that sends transactions as account.
func (l *Ledger) Client(account string) *Client {
	return &Client{ledger: l, account: account}
}

func (l *Ledger) enter(op Op) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[op]++
	f, ok := l.faults[op]
	if !ok || f.remaining == 0 {
		return nil
	}
	f.remaining--
	return f.err
}

func (l *Ledger) emit(topic string, e *escrow.Escrow, secret *hashlock.Secret) {
	l.events = append(l.events, escrow.Event{
		Topic:     topic,
		OrderHash: e.Immutables.OrderHash,
		Escrow:    e.Address,
		Secret:    secret,
		Timestamp: l.Now(),
	})
}

func (l *Ledger) receipt(e *escrow.Escrow) escrow.Receipt {
	return escrow.Receipt{Escrow: e.Address, TxHash: uuid.NewString(), Timestamp: l.Now()}
}

// transition runs fn against the escrow under the ledger lock and records its
// transfers and event.
func (l *Ledger) transition(orderHash common.Hash, topic string, fn func(e *escrow.Escrow, now uint64) ([]escrow.Transfer, error)) (escrow.Receipt, error) {
	e, ok := l.escrows.Load(orderHash)
	if !ok {
		return escrow.Receipt{}, fmt.Errorf("%w: %s", escrow.ErrNotFound, orderHash.Hex())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	transfers, err := fn(e, l.Now())
	if err != nil {
		return escrow.Receipt{}, err
	}
	l.transfers = append(l.transfers, transfers...)
	l.emit(topic, e, e.Secret)
	return l.receipt(e), nil
}

// Client is one account's view of a Ledger.
type Client struct {
	ledger  *Ledger
	account string
}

var _ escrow.Client = (*Client)(nil)

func (c *Client) Chain() chain.Chain { return c.ledger.chain }
func (c *Client) Account() string    { return c.account }

func (c *Client) Timestamp(context.Context) (uint64, error) {
	if err := c.ledger.enter(OpTimestamp); err != nil {
		return 0, err
	}
	return c.ledger.Now(), nil
}

// Deploy creates the escrow. Only the first deployment per order succeeds.
func (c *Client) Deploy(ctx context.Context, p escrow.DeployParams) (escrow.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return escrow.Receipt{}, err
	}
	if err := c.ledger.enter(OpDeploy); err != nil {
		return escrow.Receipt{}, err
	}

	im := p.Immutables
	addr, err := im.Hash(c.ledger.chain)
	if err != nil {
		return escrow.Receipt{}, fmt.Errorf("%w: %v", escrow.ErrInvalidImmutables, err)
	}
	fresh, err := escrow.New(c.ledger.chain, p.Side, addr.Hex(), im)
	if err != nil {
		return escrow.Receipt{}, err
	}

	var deployed bool
	c.ledger.escrows.Compute(im.OrderHash, func(old *escrow.Escrow, loaded bool) (*escrow.Escrow, bool) {
		if loaded {
			return old, false
		}
		deployed = true
		return fresh, false
	})
	if !deployed {
		return escrow.Receipt{}, fmt.Errorf("%w: order %s on %s", escrow.ErrAlreadyDeployed, im.OrderHash.Hex(), c.ledger.chain)
	}

	c.ledger.mu.Lock()
	defer c.ledger.mu.Unlock()
	c.ledger.emit(escrow.TopicCreated, fresh, nil)
	return c.ledger.receipt(fresh), nil
}

func (c *Client) Withdraw(ctx context.Context, _ escrow.Side, im escrow.Immutables, secret hashlock.Secret) (escrow.Receipt, error) {
	if err := c.ledger.enter(OpWithdraw); err != nil {
		return escrow.Receipt{}, err
	}
	return c.ledger.transition(im.OrderHash, escrow.TopicWithdraw, func(e *escrow.Escrow, now uint64) ([]escrow.Transfer, error) {
		return e.Withdraw(secret, c.account, now)
	})
}

func (c *Client) PublicWithdraw(ctx context.Context, _ escrow.Side, im escrow.Immutables, secret hashlock.Secret) (escrow.Receipt, error) {
	if err := c.ledger.enter(OpPublicWithdraw); err != nil {
		return escrow.Receipt{}, err
	}
	return c.ledger.transition(im.OrderHash, escrow.TopicWithdraw, func(e *escrow.Escrow, now uint64) ([]escrow.Transfer, error) {
		return e.PublicWithdraw(secret, c.account, now)
	})
}

func (c *Client) Cancel(ctx context.Context, _ escrow.Side, im escrow.Immutables) (escrow.Receipt, error) {
	if err := c.ledger.enter(OpCancel); err != nil {
		return escrow.Receipt{}, err
	}
	return c.ledger.transition(im.OrderHash, escrow.TopicCancel, func(e *escrow.Escrow, now uint64) ([]escrow.Transfer, error) {
		return e.Cancel(c.account, now)
	})
}

func (c *Client) PublicCancel(ctx context.Context, im escrow.Immutables) (escrow.Receipt, error) {
	if err := c.ledger.enter(OpPublicCancel); err != nil {
		return escrow.Receipt{}, err
	}
	return c.ledger.transition(im.OrderHash, escrow.TopicCancel, func(e *escrow.Escrow, now uint64) ([]escrow.Transfer, error) {
		return e.PublicCancel(c.account, now)
	})
}

func (c *Client) Status(_ context.Context, orderHash common.Hash) (escrow.Status, error) {
	e, ok := c.ledger.Escrow(orderHash)
	if !ok {
		return escrow.StatusNone, nil
	}
	return e.Status, nil
}

// RevealedSecret scans withdrawal events, as an indexer would.
func (c *Client) RevealedSecret(_ context.Context, orderHash common.Hash) (hashlock.Secret, bool, error) {
	for _, ev := range c.ledger.Events() {
		if ev.Topic == escrow.TopicWithdraw && ev.OrderHash == orderHash && ev.Secret != nil {
			return *ev.Secret, true, nil
		}
	}
	return hashlock.Secret{}, false, nil
}
