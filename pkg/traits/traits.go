// Package traits packs order configuration into a single 256-bit word.
//
// Layout (bit ranges are half open):
//
//	[0, 40)    order deadline, Unix seconds (0 = none)
//	[40, 80)   auction start, Unix seconds
//	[80, 104)  auction duration, seconds
//	[104, 128) auction initial premium, bps
//	[128, 252) reserved, must be zero
//	252        dutch auction enabled
//	253        post-interaction required
//	254        pre-interaction required
//	255        partial fills allowed
package traits

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/chainsafe/fusion-swap/pkg/auction"
)

// ErrMalformedTraits is returned when a word or struct cannot be represented.
var ErrMalformedTraits = errors.New("malformed traits")

const (
	deadlineShift = 0
	deadlineBits  = 40
	startShift    = 40
	startBits     = 40
	durationShift = 80
	durationBits  = 24
	premiumShift  = 104
	premiumBits   = 24
	reservedShift = 128

	auctionFlagBit         = 252
	postInteractionFlagBit = 253
	preInteractionFlagBit  = 254
	partialFillFlagBit     = 255
)

// Traits is the decoded configuration of an order. Auction is nil when the
// order has a fixed price.
type Traits struct {
	AllowPartialFills bool            `json:"allowPartialFills"`
	PreInteraction    bool            `json:"preInteraction"`
	PostInteraction   bool            `json:"postInteraction"`
	Deadline          uint64          `json:"deadline"`
	Auction           *auction.Params `json:"auction,omitempty"`
}

// Equal reports whether t and o describe the same configuration.
func (t Traits) Equal(o Traits) bool {
	if t.AllowPartialFills != o.AllowPartialFills ||
		t.PreInteraction != o.PreInteraction ||
		t.PostInteraction != o.PostInteraction ||
		t.Deadline != o.Deadline {
		return false
	}
	if t.Auction == nil || o.Auction == nil {
		return t.Auction == nil && o.Auction == nil
	}
	return *t.Auction == *o.Auction
}

func fits(v uint64, bits uint) bool {
	return v < 1<<bits
}

// Validate checks that every field fits its bit range.
func (t Traits) Validate() error {
	if !fits(t.Deadline, deadlineBits) {
		return fmt.Errorf("%w: deadline %d exceeds %d bits", ErrMalformedTraits, t.Deadline, deadlineBits)
	}
	if t.Auction == nil {
		return nil
	}
	a := t.Auction
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTraits, err)
	}
	if !fits(a.StartTime, startBits) {
		return fmt.Errorf("%w: auction start %d exceeds %d bits", ErrMalformedTraits, a.StartTime, startBits)
	}
	if !fits(a.Duration(), durationBits) {
		return fmt.Errorf("%w: auction duration %d exceeds %d bits", ErrMalformedTraits, a.Duration(), durationBits)
	}
	if !fits(uint64(a.InitialPremiumBps), premiumBits) {
		return fmt.Errorf("%w: premium %d exceeds %d bits", ErrMalformedTraits, a.InitialPremiumBps, premiumBits)
	}
	return nil
}

// Encode packs t. It fails instead of truncating out-of-range fields.
func Encode(t Traits) (*uint256.Int, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	out := new(uint256.Int)
	put := func(v uint64, shift uint) {
		field := new(uint256.Int).SetUint64(v)
		out.Or(out, field.Lsh(field, shift))
	}
	flag := func(set bool, bit uint) {
		if set {
			put(1, bit)
		}
	}

	put(t.Deadline, deadlineShift)
	if a := t.Auction; a != nil {
		put(a.StartTime, startShift)
		put(a.Duration(), durationShift)
		put(uint64(a.InitialPremiumBps), premiumShift)
	}

	flag(t.Auction != nil, auctionFlagBit)
	flag(t.PostInteraction, postInteractionFlagBit)
	flag(t.PreInteraction, preInteractionFlagBit)
	flag(t.AllowPartialFills, partialFillFlagBit)

	return out, nil
}

// Decode is the exact inverse of Encode. Words that Encode could not have
// produced are rejected with ErrMalformedTraits.
func Decode(v *uint256.Int) (Traits, error) {
	if v == nil {
		return Traits{}, fmt.Errorf("%w: nil value", ErrMalformedTraits)
	}

	get := func(shift, bits uint) uint64 {
		field := new(uint256.Int).Rsh(v, shift)
		return field.Uint64() & (1<<bits - 1)
	}
	bit := func(n uint) bool {
		return get(n, 1) == 1
	}

	reserved := new(uint256.Int).Rsh(v, reservedShift)
	reserved.Lsh(reserved, reservedShift+4)
	if !reserved.IsZero() {
		return Traits{}, fmt.Errorf("%w: reserved bits set", ErrMalformedTraits)
	}

	t := Traits{
		AllowPartialFills: bit(partialFillFlagBit),
		PreInteraction:    bit(preInteractionFlagBit),
		PostInteraction:   bit(postInteractionFlagBit),
		Deadline:          get(deadlineShift, deadlineBits),
	}

	start := get(startShift, startBits)
	duration := get(durationShift, durationBits)
	premium := get(premiumShift, premiumBits)

	if !bit(auctionFlagBit) {
		if start != 0 || duration != 0 || premium != 0 {
			return Traits{}, fmt.Errorf("%w: auction fields set without auction flag", ErrMalformedTraits)
		}
		return t, nil
	}
	if duration == 0 {
		return Traits{}, fmt.Errorf("%w: auction flag set with zero duration", ErrMalformedTraits)
	}

	t.Auction = &auction.Params{
		StartTime:         start,
		EndTime:           start + duration,
		InitialPremiumBps: uint32(premium),
	}
	return t, nil
}
