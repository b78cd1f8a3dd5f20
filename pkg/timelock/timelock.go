// Package timelock models the seven deadlines that govern escrow withdrawal
// and cancellation on both sides of a swap.
//
// A Schedule packs into a single 256-bit word. Stage i occupies bits
// [32*i, 32*i+32) as a second offset from DeployedAt, and DeployedAt (Unix
// seconds) occupies bits [224, 256).
package timelock

import (
	"errors"
	"fmt"
	"math"

	"github.com/creasty/defaults"
	"github.com/holiman/uint256"
)

// ErrInvalidSchedule is returned when the deadlines are not correctly ordered.
var ErrInvalidSchedule = errors.New("invalid timelock schedule")

// Stage identifies one deadline of the schedule.
type Stage uint8

const (
	// SrcWithdrawal opens withdrawal of the source escrow to the taker.
	SrcWithdrawal Stage = iota
	// SrcPublicWithdrawal lets anyone holding the secret withdraw the source escrow.
	SrcPublicWithdrawal
	// SrcCancellation lets either party refund the source escrow to the maker.
	SrcCancellation
	// SrcPublicCancellation lets anyone refund the source escrow to the maker.
	SrcPublicCancellation
	// DstWithdrawal opens withdrawal of the destination escrow to the maker.
	DstWithdrawal
	// DstPublicWithdrawal lets anyone holding the secret withdraw the destination escrow.
	DstPublicWithdrawal
	// DstCancellation lets either party return the destination escrow to the taker.
	DstCancellation

	// NumStages is the number of stages packed into a schedule.
	NumStages = 7
)

const (
	fieldBits     = 32
	deployedAtBit = 224
	fieldMask     = math.MaxUint32
	maxDeployedAt = math.MaxUint32
)

var stageNames = [NumStages]string{
	"src_withdrawal",
	"src_public_withdrawal",
	"src_cancellation",
	"src_public_cancellation",
	"dst_withdrawal",
	"dst_public_withdrawal",
	"dst_cancellation",
}

func (s Stage) String() string {
	if int(s) < NumStages {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Offsets are the per-stage delays in seconds from order creation.
type Offsets struct {
	SrcWithdrawal         uint32 `mapstructure:"src_withdrawal" json:"srcWithdrawal" default:"12"`
	SrcPublicWithdrawal   uint32 `mapstructure:"src_public_withdrawal" json:"srcPublicWithdrawal" default:"600"`
	SrcCancellation       uint32 `mapstructure:"src_cancellation" json:"srcCancellation" default:"1800"`
	SrcPublicCancellation uint32 `mapstructure:"src_public_cancellation" json:"srcPublicCancellation" default:"2400"`
	DstWithdrawal         uint32 `mapstructure:"dst_withdrawal" json:"dstWithdrawal" default:"6"`
	DstPublicWithdrawal   uint32 `mapstructure:"dst_public_withdrawal" json:"dstPublicWithdrawal" default:"300"`
	DstCancellation       uint32 `mapstructure:"dst_cancellation" json:"dstCancellation" default:"1500"`
}

// DefaultOffsets returns the offsets used when a caller does not supply any.
func DefaultOffsets() Offsets {
	var o Offsets
	_ = defaults.Set(&o)
	return o
}

func (o Offsets) array() [NumStages]uint32 {
	return [NumStages]uint32{
		o.SrcWithdrawal,
		o.SrcPublicWithdrawal,
		o.SrcCancellation,
		o.SrcPublicCancellation,
		o.DstWithdrawal,
		o.DstPublicWithdrawal,
		o.DstCancellation,
	}
}

func offsetsFromArray(a [NumStages]uint32) Offsets {
	return Offsets{
		SrcWithdrawal:         a[SrcWithdrawal],
		SrcPublicWithdrawal:   a[SrcPublicWithdrawal],
		SrcCancellation:       a[SrcCancellation],
		SrcPublicCancellation: a[SrcPublicCancellation],
		DstWithdrawal:         a[DstWithdrawal],
		DstPublicWithdrawal:   a[DstPublicWithdrawal],
		DstCancellation:       a[DstCancellation],
	}
}

// Validate checks the ordering rules: each side is strictly increasing and
// the whole destination lifecycle ends before source cancellation opens.
func (o Offsets) Validate() error {
	a := o.array()
	checks := []struct {
		lo, hi Stage
	}{
		{SrcWithdrawal, SrcPublicWithdrawal},
		{SrcPublicWithdrawal, SrcCancellation},
		{SrcCancellation, SrcPublicCancellation},
		{DstWithdrawal, DstPublicWithdrawal},
		{DstPublicWithdrawal, DstCancellation},
		{DstCancellation, SrcCancellation},
	}
	for _, c := range checks {
		if a[c.lo] >= a[c.hi] {
			return fmt.Errorf("%w: %s (%ds) must be before %s (%ds)",
				ErrInvalidSchedule, c.lo, a[c.lo], c.hi, a[c.hi])
		}
	}
	return nil
}

// Schedule is a validated set of deadlines anchored at DeployedAt.
type Schedule struct {
	DeployedAt uint64  `json:"deployedAt"`
	Offsets    Offsets `json:"offsets"`
}

// NewSchedule anchors offsets at deployedAt (Unix seconds).
func NewSchedule(deployedAt uint64, offsets Offsets) (Schedule, error) {
	if deployedAt > maxDeployedAt {
		return Schedule{}, fmt.Errorf("%w: deployedAt %d overflows 32 bits", ErrInvalidSchedule, deployedAt)
	}
	if err := offsets.Validate(); err != nil {
		return Schedule{}, err
	}
	return Schedule{DeployedAt: deployedAt, Offsets: offsets}, nil
}

// Offset returns the relative delay of stage.
func (s Schedule) Offset(stage Stage) uint32 {
	return s.Offsets.array()[stage]
}

// Deadline returns the absolute Unix time at which stage opens.
func (s Schedule) Deadline(stage Stage) uint64 {
	return s.DeployedAt + uint64(s.Offset(stage))
}

// Reached reports whether stage has opened at ledger time now.
func (s Schedule) Reached(stage Stage, now uint64) bool {
	return now >= s.Deadline(stage)
}

// Encode packs the schedule into its 256-bit form.
func (s Schedule) Encode() *uint256.Int {
	out := new(uint256.Int)
	field := new(uint256.Int)
	for i, v := range s.Offsets.array() {
		field.SetUint64(uint64(v))
		field.Lsh(field, uint(i*fieldBits))
		out.Or(out, field)
	}
	field.SetUint64(s.DeployedAt & fieldMask)
	field.Lsh(field, deployedAtBit)
	return out.Or(out, field)
}

// Decode unpacks and validates a 256-bit schedule.
func Decode(v *uint256.Int) (Schedule, error) {
	if v == nil {
		return Schedule{}, fmt.Errorf("%w: nil value", ErrInvalidSchedule)
	}
	var a [NumStages]uint32
	tmp := new(uint256.Int)
	for i := range a {
		tmp.Rsh(v, uint(i*fieldBits))
		a[i] = uint32(tmp.Uint64() & fieldMask)
	}
	tmp.Rsh(v, deployedAtBit)
	return NewSchedule(tmp.Uint64()&fieldMask, offsetsFromArray(a))
}
