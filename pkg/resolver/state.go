// Package resolver matches open orders against market prices and drives the
// two escrows of each claimed order to completion or recovery.
package resolver

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
)

// State is the position of one order in this resolver's execution.
type State string

const (
	StateOpen                     State = "open"
	StateClaimed                  State = "claimed"
	StateSourceEscrowCreated      State = "src_escrow_created"
	StateDestinationEscrowCreated State = "dst_escrow_created"
	StateDestinationWithdrawn     State = "dst_withdrawn"
	StateSourceWithdrawn          State = "src_withdrawn"
	StateExpired                  State = "expired"
	StateCancelled                State = "cancelled"
)

// transitions lists the states each state may move to. Cancelled is only
// reached through Expired, once recovery has refunded an escrow.
var transitions = map[State][]State{
	StateOpen:                     {StateClaimed, StateExpired},
	StateClaimed:                  {StateSourceEscrowCreated, StateExpired},
	StateSourceEscrowCreated:      {StateDestinationEscrowCreated, StateExpired},
	StateDestinationEscrowCreated: {StateDestinationWithdrawn, StateExpired},
	StateDestinationWithdrawn:     {StateSourceWithdrawn, StateExpired},
	StateExpired:                  {StateCancelled},
}

// ParseState validates s.
func ParseState(s string) (State, error) {
	st := State(s)
	if _, ok := transitions[st]; ok || st == StateSourceWithdrawn || st == StateCancelled {
		return st, nil
	}
	return "", fmt.Errorf("unknown order state %q", s)
}

// CanMoveTo reports whether next directly follows s.
func (s State) CanMoveTo(next State) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the order needs no further forward action. Expired
// orders may still hold escrows that recovery has to refund.
func (s State) Terminal() bool {
	return s == StateSourceWithdrawn || s == StateExpired || s == StateCancelled
}

// Leg is one escrow the resolver deployed.
type Leg struct {
	Immutables escrow.Immutables `json:"immutables"`
	Escrow     string            `json:"escrow"`
	DeployTx   string            `json:"deploy_tx"`
	CloseTx    string            `json:"close_tx,omitempty"`
	Status     escrow.Status     `json:"status"`
}

// Record is the resolver's durable view of one order.
type Record struct {
	OrderHash common.Hash   `json:"order_hash"`
	Order     *order.Order  `json:"order"`
	Signature hexutil.Bytes `json:"signature"`
	State     State         `json:"state"`
	// DstAmount is the auction price locked in the destination escrow.
	DstAmount *big.Int         `json:"dst_amount,omitempty"`
	Src       *Leg             `json:"src,omitempty"`
	Dst       *Leg             `json:"dst,omitempty"`
	Secret    *hashlock.Secret `json:"secret,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NeedsRecovery reports whether the order was abandoned while one of its
// escrows still holds funds.
func (r *Record) NeedsRecovery() bool {
	if r.State != StateExpired {
		return false
	}
	return r.Src.open() || r.Dst.open()
}

func (l *Leg) open() bool {
	return l != nil && !l.Status.Terminal()
}

// Clone returns a copy that shares the immutable order.
func (r *Record) Clone() *Record {
	c := *r
	c.Signature = append(hexutil.Bytes(nil), r.Signature...)
	if r.DstAmount != nil {
		c.DstAmount = new(big.Int).Set(r.DstAmount)
	}
	if r.Src != nil {
		l := *r.Src
		c.Src = &l
	}
	if r.Dst != nil {
		l := *r.Dst
		c.Dst = &l
	}
	if r.Secret != nil {
		s := *r.Secret
		c.Secret = &s
	}
	return &c
}
