// Package auction prices Dutch-auction orders.
//
// All arithmetic is integer only so independent resolvers agree on the
// price bit for bit.
package auction

import (
	"errors"
	"fmt"
	"math/big"
)

// BasisPoints is the denominator of every bps value.
const BasisPoints = 10_000

// ErrInvalidParams is returned for auctions with an empty or inverted window.
var ErrInvalidParams = errors.New("invalid auction parameters")

var bpsDenominator = big.NewInt(BasisPoints)

// Params describe the decay curve of an order.
type Params struct {
	StartTime         uint64 `json:"startTime"`
	EndTime           uint64 `json:"endTime"`
	InitialPremiumBps uint32 `json:"initialPremiumBps"`
}

// Validate checks that StartTime < EndTime.
func (p Params) Validate() error {
	if p.StartTime >= p.EndTime {
		return fmt.Errorf("%w: start %d must be before end %d", ErrInvalidParams, p.StartTime, p.EndTime)
	}
	return nil
}

// Duration returns the length of the auction window in seconds.
func (p Params) Duration() uint64 {
	if p.EndTime <= p.StartTime {
		return 0
	}
	return p.EndTime - p.StartTime
}

// remaining returns how many seconds of decay are left at ts, clamped to the window.
func (p Params) remaining(ts uint64) uint64 {
	switch {
	case ts <= p.StartTime:
		return p.Duration()
	case ts >= p.EndTime:
		return 0
	default:
		return p.EndTime - ts
	}
}

// CurrentPrice returns the counter-amount required at ledger time ts:
//
//	base + base*premiumBps*(end-ts) / (10000*(end-start))
//
// clamped to the full premium before StartTime and to base after EndTime.
func CurrentPrice(base *big.Int, p Params, ts uint64) *big.Int {
	price := new(big.Int).Set(base)
	if p.InitialPremiumBps == 0 || base.Sign() <= 0 {
		return price
	}

	duration := p.Duration()
	if duration == 0 {
		if ts < p.EndTime {
			return price.Add(price, premium(base, p.InitialPremiumBps))
		}
		return price
	}

	num := new(big.Int).Mul(base, new(big.Int).SetUint64(uint64(p.InitialPremiumBps)))
	num.Mul(num, new(big.Int).SetUint64(p.remaining(ts)))
	den := new(big.Int).Mul(bpsDenominator, new(big.Int).SetUint64(duration))

	return price.Add(price, num.Quo(num, den))
}

// OptimalBidTime returns the earliest ledger time at which CurrentPrice falls
// to marketPrice*(1-targetProfitBps/10000) or below. The second result is
// false when that never happens within the auction window.
func OptimalBidTime(base *big.Int, p Params, targetProfitBps uint32, marketPrice *big.Int) (uint64, bool) {
	if targetProfitBps > BasisPoints || marketPrice == nil || marketPrice.Sign() <= 0 {
		return 0, false
	}

	threshold := new(big.Int).Mul(marketPrice, big.NewInt(int64(BasisPoints-targetProfitBps)))
	threshold.Quo(threshold, bpsDenominator)

	if base.Cmp(threshold) > 0 {
		return 0, false
	}

	duration := p.Duration()
	x := new(big.Int).Mul(base, new(big.Int).SetUint64(uint64(p.InitialPremiumBps)))
	if x.Sign() == 0 || duration == 0 {
		if CurrentPrice(base, p, p.StartTime).Cmp(threshold) <= 0 {
			return p.StartTime, true
		}
		return p.EndTime, true
	}

	// price(t) = base + floor(x*r/m) with r = end-t. The largest r keeping
	// the premium at or below k = threshold-base is ceil((k+1)*m/x) - 1.
	k := new(big.Int).Sub(threshold, base)
	m := new(big.Int).Mul(bpsDenominator, new(big.Int).SetUint64(duration))

	r := new(big.Int).Add(k, big.NewInt(1))
	r.Mul(r, m)
	r.Add(r, x)
	r.Sub(r, big.NewInt(1))
	r.Quo(r, x)
	r.Sub(r, big.NewInt(1))

	if r.Cmp(new(big.Int).SetUint64(duration)) >= 0 {
		return p.StartTime, true
	}
	return p.EndTime - r.Uint64(), true
}

func premium(base *big.Int, bps uint32) *big.Int {
	out := new(big.Int).Mul(base, new(big.Int).SetUint64(uint64(bps)))
	return out.Quo(out, bpsDenominator)
}
