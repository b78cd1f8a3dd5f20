package relay

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
)

// Status is the coarse lifecycle of an intent as reported by resolvers.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPickedUp  Status = "picked_up"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// rank orders statuses; an intent only ever moves to a higher rank.
var rank = map[Status]int{
	StatusPending:   0,
	StatusPickedUp:  1,
	StatusExecuting: 2,
	StatusCompleted: 3,
	StatusFailed:    3,
}

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := rank[st]; !ok {
		return "", fmt.Errorf("unknown intent status %q", s)
	}
	return st, nil
}

// Terminal reports whether the intent is finished.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// canMoveTo reports whether an update from s to next is allowed. Repeating
// the current status is accepted so resolvers can retry reports.
func (s Status) canMoveTo(next Status) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	return rank[next] > rank[s]
}

// Intent is a signed order waiting for, or being executed by, a resolver.
type Intent struct {
	ID        common.Hash      `json:"id"`
	Order     *order.Order     `json:"order"`
	Signature hexutil.Bytes    `json:"signature"`
	Status    Status           `json:"status"`
	Resolver  string           `json:"resolver,omitempty"`
	Secret    *hashlock.Secret `json:"secret,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Clone returns a copy that shares the immutable order.
func (i *Intent) Clone() *Intent {
	c := *i
	c.Signature = append(hexutil.Bytes(nil), i.Signature...)
	if i.Secret != nil {
		s := *i.Secret
		c.Secret = &s
	}
	return &c
}
