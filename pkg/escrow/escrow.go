// Package escrow models the two hash-time-locked escrows that back a swap and
// the port through which the resolver drives them on each chain.
package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/timelock"
)

// Side says which leg of the swap an escrow holds.
type Side uint8

const (
	// Source holds the maker's funds.
	Source Side = iota + 1
	// Destination holds the resolver's funds for the maker.
	Destination
)

func (s Side) String() string {
	switch s {
	case Source:
		return "src"
	case Destination:
		return "dst"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Status is the lifecycle state of an escrow. Everything except Created is terminal.
type Status uint8

const (
	StatusNone Status = iota
	StatusCreated
	StatusWithdrawn
	StatusCancelled
	StatusPubliclyCancelled
)

var statusNames = map[Status]string{
	StatusNone:              "none",
	StatusCreated:           "created",
	StatusWithdrawn:         "withdrawn",
	StatusCancelled:         "cancelled",
	StatusPubliclyCancelled: "publicly_cancelled",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for k, v := range statusNames {
		if v == s {
			return k, nil
		}
	}
	return StatusNone, fmt.Errorf("unknown escrow status %q", s)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusWithdrawn || s == StatusCancelled || s == StatusPubliclyCancelled
}

// Immutables are the parameters an escrow is deployed with. Addresses and
// the token are chain-native strings of the chain the escrow lives on.
type Immutables struct {
	OrderHash     common.Hash       `json:"orderHash"`
	Hashlock      hashlock.Hashlock `json:"hashlock"`
	Maker         string            `json:"maker"`
	Taker         string            `json:"taker"`
	Token         string            `json:"token"`
	Amount        *big.Int          `json:"amount"`
	SafetyDeposit *big.Int          `json:"safetyDeposit"`
	Timelocks     timelock.Schedule `json:"timelocks"`
}

var immutablesArgs = abi.Arguments{
	{Name: "orderHash", Type: mustType("bytes32")},
	{Name: "hashlock", Type: mustType("bytes32")},
	{Name: "maker", Type: mustType("bytes32")},
	{Name: "taker", Type: mustType("bytes32")},
	{Name: "token", Type: mustType("bytes32")},
	{Name: "amount", Type: mustType("uint256")},
	{Name: "safetyDeposit", Type: mustType("uint256")},
	{Name: "timelocks", Type: mustType("uint256")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Hash returns the escrow identity: keccak256 of the ABI encoded immutables
// with addresses in their 32-byte form for c.
func (im Immutables) Hash(c chain.Chain) (common.Hash, error) {
	maker, err := c.EncodeAddress(im.Maker)
	if err != nil {
		return common.Hash{}, fmt.Errorf("maker: %w", err)
	}
	taker, err := c.EncodeAddress(im.Taker)
	if err != nil {
		return common.Hash{}, fmt.Errorf("taker: %w", err)
	}
	token, err := c.EncodeAsset(im.Token)
	if err != nil {
		return common.Hash{}, fmt.Errorf("token: %w", err)
	}

	data, err := immutablesArgs.Pack(
		[32]byte(im.OrderHash),
		[32]byte(im.Hashlock),
		maker,
		taker,
		token,
		nonNil(im.Amount),
		nonNil(im.SafetyDeposit),
		im.Timelocks.Encode().ToBig(),
	)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}

// Validate checks fields every chain requires before deployment.
func (im Immutables) Validate(c chain.Chain) error {
	if im.OrderHash == (common.Hash{}) {
		return fmt.Errorf("%w: order hash is required", ErrInvalidImmutables)
	}
	if im.Hashlock.IsZero() {
		return fmt.Errorf("%w: hashlock is required", ErrInvalidImmutables)
	}
	if im.Amount == nil || im.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidImmutables)
	}
	if im.SafetyDeposit != nil && im.SafetyDeposit.Sign() < 0 {
		return fmt.Errorf("%w: negative safety deposit", ErrInvalidImmutables)
	}
	if err := c.ValidateAddress(im.Maker); err != nil {
		return fmt.Errorf("%w: maker: %v", ErrInvalidImmutables, err)
	}
	if err := c.ValidateAddress(im.Taker); err != nil {
		return fmt.Errorf("%w: taker: %v", ErrInvalidImmutables, err)
	}
	if err := c.ValidateAsset(im.Token); err != nil {
		return fmt.Errorf("%w: token: %v", ErrInvalidImmutables, err)
	}
	if err := im.Timelocks.Offsets.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImmutables, err)
	}
	return nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// windows maps the generic escrow stages to the schedule of one side. The
// destination has no public cancellation stage.
type windows struct {
	withdrawal, publicWithdrawal, cancellation timelock.Stage
	publicCancellation                         *timelock.Stage
}

func windowsFor(side Side) windows {
	if side == Source {
		pc := timelock.SrcPublicCancellation
		return windows{timelock.SrcWithdrawal, timelock.SrcPublicWithdrawal, timelock.SrcCancellation, &pc}
	}
	return windows{timelock.DstWithdrawal, timelock.DstPublicWithdrawal, timelock.DstCancellation, nil}
}

// Transfer is a single payout made by a state transition.
type Transfer struct {
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
	// Native marks a safety deposit paid in the chain's native asset.
	Native bool `json:"native"`
}

// Escrow is the deterministic state machine of one escrow. It performs no IO:
// ledgers apply the returned transfers.
type Escrow struct {
	Chain      chain.Chain `json:"chain"`
	Side       Side        `json:"side"`
	Address    string      `json:"address"`
	Immutables Immutables  `json:"immutables"`
	Status     Status      `json:"status"`
	// Secret is set once the escrow has been withdrawn.
	Secret *hashlock.Secret `json:"secret,omitempty"`
}

// New returns a freshly created escrow.
func New(c chain.Chain, side Side, address string, im Immutables) (*Escrow, error) {
	if side != Source && side != Destination {
		return nil, fmt.Errorf("%w: %s", ErrInvalidImmutables, side)
	}
	if err := im.Validate(c); err != nil {
		return nil, err
	}
	return &Escrow{Chain: c, Side: side, Address: address, Immutables: im, Status: StatusCreated}, nil
}

func (e *Escrow) deadline(stage timelock.Stage) uint64 {
	return e.Immutables.Timelocks.Deadline(stage)
}

// beneficiary receives the locked amount on withdrawal.
func (e *Escrow) beneficiary() string {
	if e.Side == Source {
		return e.Immutables.Taker
	}
	return e.Immutables.Maker
}

// refundee receives the locked amount on cancellation.
func (e *Escrow) refundee() string {
	if e.Side == Source {
		return e.Immutables.Maker
	}
	return e.Immutables.Taker
}

func (e *Escrow) isParty(caller string) bool {
	return caller == e.Immutables.Maker || caller == e.Immutables.Taker
}

func (e *Escrow) requireActive() error {
	if e.Status != StatusCreated {
		return fmt.Errorf("%w: escrow is %s", ErrInvalidState, e.Status)
	}
	return nil
}

func (e *Escrow) payout(to, depositTo string) []Transfer {
	out := []Transfer{{To: to, Amount: new(big.Int).Set(e.Immutables.Amount)}}
	if d := e.Immutables.SafetyDeposit; d != nil && d.Sign() > 0 {
		out = append(out, Transfer{To: depositTo, Amount: new(big.Int).Set(d), Native: true})
	}
	return out
}

func (e *Escrow) withdraw(secret hashlock.Secret, caller string, now uint64, public bool) ([]Transfer, error) {
	if err := e.requireActive(); err != nil {
		return nil, err
	}
	if err := e.Immutables.Hashlock.Verify(secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}

	w := windowsFor(e.Side)
	opens := w.withdrawal
	if public {
		opens = w.publicWithdrawal
	} else if !e.isParty(caller) {
		return nil, fmt.Errorf("%w: %s may not withdraw before the public window", ErrUnauthorizedCaller, caller)
	}
	if now < e.deadline(opens) {
		return nil, fmt.Errorf("%w: %s opens at %d, now %d", ErrTimelockNotReached, opens, e.deadline(opens), now)
	}
	if now >= e.deadline(w.cancellation) {
		return nil, fmt.Errorf("%w: %s passed at %d, now %d", ErrWithdrawalWindowClosed, w.cancellation, e.deadline(w.cancellation), now)
	}

	s := secret
	e.Secret = &s
	e.Status = StatusWithdrawn
	return e.payout(e.beneficiary(), caller), nil
}

// Withdraw releases the funds with the preimage of the hashlock. Only the
// maker or taker may call it, from the withdrawal stage until cancellation.
func (e *Escrow) Withdraw(secret hashlock.Secret, caller string, now uint64) ([]Transfer, error) {
	return e.withdraw(secret, caller, now, false)
}

// PublicWithdraw lets anyone holding the secret complete the withdrawal once
// the public withdrawal stage is reached. Funds still go to the beneficiary.
func (e *Escrow) PublicWithdraw(secret hashlock.Secret, caller string, now uint64) ([]Transfer, error) {
	return e.withdraw(secret, caller, now, true)
}

// Cancel refunds the depositor once the cancellation stage is reached.
func (e *Escrow) Cancel(caller string, now uint64) ([]Transfer, error) {
	if err := e.requireActive(); err != nil {
		return nil, err
	}
	if !e.isParty(caller) {
		return nil, fmt.Errorf("%w: %s is not a party", ErrUnauthorizedCaller, caller)
	}
	c := windowsFor(e.Side).cancellation
	if now < e.deadline(c) {
		return nil, fmt.Errorf("%w: %s opens at %d, now %d", ErrTimelockNotReached, c, e.deadline(c), now)
	}
	e.Status = StatusCancelled
	return e.payout(e.refundee(), caller), nil
}

// PublicCancel lets anyone cancel a source escrow after public cancellation opens.
func (e *Escrow) PublicCancel(caller string, now uint64) ([]Transfer, error) {
	if err := e.requireActive(); err != nil {
		return nil, err
	}
	pc := windowsFor(e.Side).publicCancellation
	if pc == nil {
		return nil, fmt.Errorf("%w: %s escrow has no public cancellation", ErrInvalidState, e.Side)
	}
	if now < e.deadline(*pc) {
		return nil, fmt.Errorf("%w: %s opens at %d, now %d", ErrTimelockNotReached, *pc, e.deadline(*pc), now)
	}
	e.Status = StatusPubliclyCancelled
	return e.payout(e.refundee(), caller), nil
}

// CancelAt returns the earliest time anyone party to the escrow may cancel it.
func CancelAt(side Side, s timelock.Schedule) uint64 {
	return s.Deadline(windowsFor(side).cancellation)
}

// WithdrawWindow returns the private withdrawal window [opens, closes).
func WithdrawWindow(side Side, s timelock.Schedule) (uint64, uint64) {
	w := windowsFor(side)
	return s.Deadline(w.withdrawal), s.Deadline(w.cancellation)
}
