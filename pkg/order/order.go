// Package order builds, hashes and signs cross-chain swap orders.
package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/timelock"
	"github.com/chainsafe/fusion-swap/pkg/traits"
)

var (
	// ErrInvalidOrderParameters is returned for orders that must never be submitted.
	ErrInvalidOrderParameters = errors.New("invalid order parameters")
	// ErrInvalidSignature is returned when a signature does not recover to the maker.
	ErrInvalidSignature = errors.New("invalid signature")
)

// saltExtensionMask keeps the low 160 bits of the salt, which commit to the extension.
var saltExtensionMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))

// Order is a maker's signed intent to swap SrcAmount of SrcAsset on SrcChain
// for at least DstAmount of DstAsset on the extension's destination chain.
type Order struct {
	Salt        *big.Int       `json:"salt"`
	SrcChain    chain.Chain    `json:"srcChain"`
	Maker       common.Address `json:"maker"`
	Receiver    common.Address `json:"receiver"`
	SrcAsset    common.Address `json:"srcAsset"`
	DstAsset    string         `json:"dstAsset"`
	SrcAmount   *big.Int       `json:"srcAmount"`
	DstAmount   *big.Int       `json:"dstAmount"`
	MakerTraits *uint256.Int   `json:"makerTraits"`
	Extension   Extension      `json:"extension"`
}

// Traits decodes the packed maker traits.
func (o *Order) Traits() (traits.Traits, error) {
	return traits.Decode(o.MakerTraits)
}

// Hashlock returns the commitment both escrows are locked under.
func (o *Order) Hashlock() hashlock.Hashlock {
	return o.Extension.Hashlock
}

// Timelocks returns the deadline schedule of the order.
func (o *Order) Timelocks() timelock.Schedule {
	return o.Extension.Timelocks
}

// DstChain returns the destination chain.
func (o *Order) DstChain() chain.Chain {
	return o.Extension.DstChain
}

// Validate checks the structural rules a signed order must satisfy. It is
// applied again by the relay so malformed orders never reach resolvers.
func (o *Order) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrderParameters)
	}
	if o.SrcChain.Kind() != chain.KindEVM {
		return fmt.Errorf("%w: source chain %s", chain.ErrUnsupportedChain, o.SrcChain)
	}
	if !o.Extension.DstChain.Valid() {
		return fmt.Errorf("%w: destination chain %s", chain.ErrUnsupportedChain, o.Extension.DstChain)
	}
	if o.SrcChain == o.Extension.DstChain {
		return fmt.Errorf("%w: source and destination chain are both %s", ErrInvalidOrderParameters, o.SrcChain)
	}
	if o.Salt == nil || o.Salt.Sign() < 0 || o.Salt.BitLen() > 256 {
		return fmt.Errorf("%w: salt out of range", ErrInvalidOrderParameters)
	}
	if !positive(o.SrcAmount) || !positive(o.DstAmount) {
		return fmt.Errorf("%w: amounts must be positive", ErrInvalidOrderParameters)
	}
	if o.Maker == (common.Address{}) {
		return fmt.Errorf("%w: maker is required", ErrInvalidOrderParameters)
	}
	if err := o.Extension.DstChain.ValidateAsset(o.DstAsset); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrderParameters, err)
	}
	if _, err := o.Traits(); err != nil {
		return err
	}
	if _, err := timelock.NewSchedule(o.Extension.Timelocks.DeployedAt, o.Extension.Timelocks.Offsets); err != nil {
		return err
	}
	if o.Extension.Hashlock.IsZero() {
		return fmt.Errorf("%w: hashlock is required", ErrInvalidOrderParameters)
	}

	extHash, err := o.Extension.Hash()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrderParameters, err)
	}
	if !saltCommitsTo(o.Salt, extHash) {
		return fmt.Errorf("%w: salt does not commit to extension", ErrInvalidOrderParameters)
	}
	return nil
}

// Expired reports whether the order deadline has passed at ledger time now.
func (o *Order) Expired(now uint64) bool {
	t, err := o.Traits()
	if err != nil {
		return true
	}
	return t.Deadline != 0 && now >= t.Deadline
}

func saltCommitsTo(salt *big.Int, extHash common.Hash) bool {
	low := new(big.Int).And(salt, saltExtensionMask)
	want := new(big.Int).And(new(big.Int).SetBytes(extHash.Bytes()), saltExtensionMask)
	return low.Cmp(want) == 0
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

type orderJSON struct {
	Salt        string         `json:"salt"`
	SrcChain    chain.Chain    `json:"srcChain"`
	Maker       common.Address `json:"maker"`
	Receiver    common.Address `json:"receiver"`
	SrcAsset    common.Address `json:"srcAsset"`
	DstAsset    string         `json:"dstAsset"`
	SrcAmount   string         `json:"srcAmount"`
	DstAmount   string         `json:"dstAmount"`
	MakerTraits string         `json:"makerTraits"`
	Extension   extensionJSON  `json:"extension"`
}

type extensionJSON struct {
	DstChain         chain.Chain       `json:"dstChain"`
	DstReceiver      string            `json:"dstReceiver"`
	Hashlock         hashlock.Hashlock `json:"hashlock"`
	SrcFactory       common.Address    `json:"srcFactory"`
	DstFactory       string            `json:"dstFactory"`
	Timelocks        string            `json:"timelocks"`
	SrcSafetyDeposit string            `json:"srcSafetyDeposit"`
	DstSafetyDeposit string            `json:"dstSafetyDeposit"`
}

// MarshalJSON renders integers as decimal strings and timelocks and traits
// in their packed form.
func (o Order) MarshalJSON() ([]byte, error) {
	traitsWord := "0"
	if o.MakerTraits != nil {
		traitsWord = o.MakerTraits.Dec()
	}
	return json.Marshal(orderJSON{
		Salt:        bigString(o.Salt),
		SrcChain:    o.SrcChain,
		Maker:       o.Maker,
		Receiver:    o.Receiver,
		SrcAsset:    o.SrcAsset,
		DstAsset:    o.DstAsset,
		SrcAmount:   bigString(o.SrcAmount),
		DstAmount:   bigString(o.DstAmount),
		MakerTraits: traitsWord,
		Extension: extensionJSON{
			DstChain:         o.Extension.DstChain,
			DstReceiver:      o.Extension.DstReceiver,
			Hashlock:         o.Extension.Hashlock,
			SrcFactory:       o.Extension.SrcFactory,
			DstFactory:       o.Extension.DstFactory,
			Timelocks:        o.Extension.Timelocks.Encode().Dec(),
			SrcSafetyDeposit: bigString(o.Extension.SrcSafetyDeposit),
			DstSafetyDeposit: bigString(o.Extension.DstSafetyDeposit),
		},
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (o *Order) UnmarshalJSON(b []byte) error {
	var raw orderJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var err error
	out := Order{
		SrcChain: raw.SrcChain,
		Maker:    raw.Maker,
		Receiver: raw.Receiver,
		SrcAsset: raw.SrcAsset,
		DstAsset: raw.DstAsset,
		Extension: Extension{
			DstChain:    raw.Extension.DstChain,
			DstReceiver: raw.Extension.DstReceiver,
			Hashlock:    raw.Extension.Hashlock,
			SrcFactory:  raw.Extension.SrcFactory,
			DstFactory:  raw.Extension.DstFactory,
		},
	}
	if out.Salt, err = parseBig("salt", raw.Salt); err != nil {
		return err
	}
	if out.SrcAmount, err = parseBig("srcAmount", raw.SrcAmount); err != nil {
		return err
	}
	if out.DstAmount, err = parseBig("dstAmount", raw.DstAmount); err != nil {
		return err
	}
	if out.Extension.SrcSafetyDeposit, err = parseBig("srcSafetyDeposit", raw.Extension.SrcSafetyDeposit); err != nil {
		return err
	}
	if out.Extension.DstSafetyDeposit, err = parseBig("dstSafetyDeposit", raw.Extension.DstSafetyDeposit); err != nil {
		return err
	}
	if out.MakerTraits, err = parseUint256("makerTraits", raw.MakerTraits); err != nil {
		return err
	}

	packed, err := parseUint256("timelocks", raw.Extension.Timelocks)
	if err != nil {
		return err
	}
	if out.Extension.Timelocks, err = timelock.Decode(packed); err != nil {
		return err
	}

	*o = out
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an integer", ErrInvalidOrderParameters, field)
	}
	return v, nil
}

func parseUint256(field, s string) (*uint256.Int, error) {
	v, err := parseBig(field, s)
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s overflows 256 bits", ErrInvalidOrderParameters, field)
	}
	return out, nil
}
