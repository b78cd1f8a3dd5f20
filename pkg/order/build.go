package order

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/chainsafe/fusion-swap/pkg/auction"
	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/timelock"
	"github.com/chainsafe/fusion-swap/pkg/traits"
)

// saltNonceBytes is the random part of the salt, stored above the extension commitment.
const saltNonceBytes = 12

// BuildParams are the high level inputs of an order.
type BuildParams struct {
	Maker       string   `json:"maker" validate:"required,eth_addr"`
	Receiver    string   `json:"receiver" validate:"omitempty,eth_addr"`
	SrcAsset    string   `json:"srcAsset" validate:"required,eth_addr"`
	DstAsset    string   `json:"dstAsset" validate:"required"`
	SrcAmount   *big.Int `json:"srcAmount" validate:"required"`
	DstAmount   *big.Int `json:"dstAmount" validate:"required"`
	DstChain    string   `json:"dstChain" validate:"required"`
	DstReceiver string   `json:"dstReceiver" validate:"required"`

	SrcFactory string `json:"srcFactory" validate:"required,eth_addr"`
	DstFactory string `json:"dstFactory" validate:"required"`

	// Deadline is an absolute Unix time after which the order is void. Zero means none.
	Deadline          uint64          `json:"deadline"`
	Auction           *auction.Params `json:"auction,omitempty"`
	AllowPartialFills bool            `json:"allowPartialFills"`

	// Offsets defaults to timelock.DefaultOffsets when nil.
	Offsets          *timelock.Offsets `json:"offsets,omitempty"`
	SrcSafetyDeposit *big.Int          `json:"srcSafetyDeposit,omitempty"`
	DstSafetyDeposit *big.Int          `json:"dstSafetyDeposit,omitempty"`
}

type settings struct {
	now      func() time.Time
	random   io.Reader
	secret   *hashlock.Secret
	seed     []byte
	srcChain chain.Chain
}

// Option configures Build.
type Option func(*settings)

// WithClock overrides the time source used for the timelock base and deadline checks.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithRandom overrides the entropy source for the salt and secret.
func WithRandom(r io.Reader) Option {
	return func(s *settings) { s.random = r }
}

// WithSecret uses a caller supplied secret instead of generating one.
func WithSecret(secret hashlock.Secret) Option {
	return func(s *settings) { s.secret = &secret }
}

// WithSeed derives the secret from seed and the salt nonce, see SecretFromSeed.
func WithSeed(seed []byte) Option {
	return func(s *settings) { s.seed = seed }
}

// WithSourceChain sets the EVM chain the maker asset lives on. Defaults to Ethereum.
func WithSourceChain(c chain.Chain) Option {
	return func(s *settings) { s.srcChain = c }
}

func applyOptions(opts []Option) settings {
	s := settings{
		now:      time.Now,
		random:   rand.Reader,
		srcChain: chain.Ethereum,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

var validate = validator.New()

// Build assembles an unsigned order and returns it with the secret its
// hashlock commits to. The secret is never stored in the order.
func Build(p BuildParams, opts ...Option) (*Order, hashlock.Secret, error) {
	s := applyOptions(opts)

	dst, err := chain.Parse(p.DstChain)
	if err != nil {
		return nil, hashlock.Secret{}, err
	}
	if s.srcChain.Kind() != chain.KindEVM {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: source chain %s is not EVM", chain.ErrUnsupportedChain, s.srcChain)
	}
	if dst == s.srcChain {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: destination equals source chain", ErrInvalidOrderParameters)
	}
	if err := validate.Struct(p); err != nil {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: %v", ErrInvalidOrderParameters, err)
	}
	if !positive(p.SrcAmount) || !positive(p.DstAmount) {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: amounts must be positive", ErrInvalidOrderParameters)
	}
	if err := dst.ValidateAddress(p.DstReceiver); err != nil {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: destination receiver: %v", ErrInvalidOrderParameters, err)
	}
	if err := dst.ValidateAsset(p.DstAsset); err != nil {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: destination asset: %v", ErrInvalidOrderParameters, err)
	}
	if err := dst.ValidateAddress(p.DstFactory); err != nil {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: destination factory: %v", ErrInvalidOrderParameters, err)
	}

	now := uint64(s.now().Unix())
	if p.Deadline != 0 && p.Deadline <= now {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: deadline %d is not after %d", ErrInvalidOrderParameters, p.Deadline, now)
	}
	if p.Auction != nil {
		if err := p.Auction.Validate(); err != nil {
			return nil, hashlock.Secret{}, fmt.Errorf("%w: %v", ErrInvalidOrderParameters, err)
		}
	}

	offsets := timelock.DefaultOffsets()
	if p.Offsets != nil {
		offsets = *p.Offsets
	}
	schedule, err := timelock.NewSchedule(now, offsets)
	if err != nil {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: %v", ErrInvalidOrderParameters, err)
	}

	makerTraits, err := traits.Encode(traits.Traits{
		AllowPartialFills: p.AllowPartialFills,
		Deadline:          p.Deadline,
		Auction:           p.Auction,
	})
	if err != nil {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: %v", ErrInvalidOrderParameters, err)
	}

	nonce := make([]byte, saltNonceBytes)
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return nil, hashlock.Secret{}, fmt.Errorf("read salt nonce: %w", err)
	}

	var secret hashlock.Secret
	switch {
	case s.secret != nil:
		secret = *s.secret
	case len(s.seed) > 0:
		if secret, err = hashlock.Derive(s.seed, nonce); err != nil {
			return nil, hashlock.Secret{}, err
		}
	default:
		if _, err := io.ReadFull(s.random, secret[:]); err != nil {
			return nil, hashlock.Secret{}, fmt.Errorf("read secret: %w", err)
		}
	}
	if secret.IsZero() {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: zero secret", ErrInvalidOrderParameters)
	}

	maker := common.HexToAddress(p.Maker)
	receiver := maker
	if p.Receiver != "" {
		receiver = common.HexToAddress(p.Receiver)
	}

	o := &Order{
		SrcChain:    s.srcChain,
		Maker:       maker,
		Receiver:    receiver,
		SrcAsset:    common.HexToAddress(p.SrcAsset),
		DstAsset:    p.DstAsset,
		SrcAmount:   new(big.Int).Set(p.SrcAmount),
		DstAmount:   new(big.Int).Set(p.DstAmount),
		MakerTraits: makerTraits,
		Extension: Extension{
			DstChain:         dst,
			DstReceiver:      p.DstReceiver,
			Hashlock:         secret.Hashlock(),
			SrcFactory:       common.HexToAddress(p.SrcFactory),
			DstFactory:       p.DstFactory,
			Timelocks:        schedule,
			SrcSafetyDeposit: copyOrZero(p.SrcSafetyDeposit),
			DstSafetyDeposit: copyOrZero(p.DstSafetyDeposit),
		},
	}

	extHash, err := o.Extension.Hash()
	if err != nil {
		return nil, hashlock.Secret{}, fmt.Errorf("%w: %v", ErrInvalidOrderParameters, err)
	}
	o.Salt = composeSalt(nonce, extHash)

	return o, secret, nil
}

// SecretFromSeed recovers the secret of an order built with WithSeed.
func SecretFromSeed(seed []byte, o *Order) (hashlock.Secret, error) {
	secret, err := hashlock.Derive(seed, saltNonce(o.Salt))
	if err != nil {
		return hashlock.Secret{}, err
	}
	if err := o.Extension.Hashlock.Verify(secret); err != nil {
		return hashlock.Secret{}, err
	}
	return secret, nil
}

func composeSalt(nonce []byte, extHash common.Hash) *big.Int {
	salt := new(big.Int).SetBytes(nonce)
	salt.Lsh(salt, 160)
	low := new(big.Int).SetBytes(extHash.Bytes())
	low.And(low, saltExtensionMask)
	return salt.Or(salt, low)
}

func saltNonce(salt *big.Int) []byte {
	out := make([]byte, saltNonceBytes)
	if salt == nil {
		return out
	}
	high := new(big.Int).Rsh(salt, 160)
	if high.BitLen() > saltNonceBytes*8 {
		return out
	}
	return high.FillBytes(out)
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
