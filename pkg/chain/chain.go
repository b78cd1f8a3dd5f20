// Package chain enumerates the ledgers a swap can touch and carries the
// per-ledger rules for encoding addresses and assets into the fixed-width
// forms used by orders and escrows.
package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnsupportedChain is returned for chain tags this module does not know.
var ErrUnsupportedChain = errors.New("unsupported chain")

// Kind groups chains by execution environment.
type Kind uint8

const (
	KindEVM Kind = iota + 1
	KindSoroban
)

func (k Kind) String() string {
	switch k {
	case KindEVM:
		return "evm"
	case KindSoroban:
		return "soroban"
	default:
		return "unknown"
	}
}

// Chain is the closed set of supported ledgers.
type Chain uint8

const (
	// Ethereum is an EVM network. The numeric id used in order extensions is
	// the EIP-155 chain id.
	Ethereum Chain = iota + 1
	// Stellar is the Soroban smart contract platform. Its id is the SLIP-44
	// coin type since Stellar has no EIP-155 chain id.
	Stellar
)

const (
	ethereumID uint64 = 1
	stellarID  uint64 = 148
)

// All lists every supported chain.
func All() []Chain {
	return []Chain{Ethereum, Stellar}
}

// Parse maps a chain tag to a Chain. Tags are case insensitive.
func Parse(tag string) (Chain, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "ethereum", "eth", "evm":
		return Ethereum, nil
	case "stellar", "xlm", "soroban":
		return Stellar, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedChain, tag)
	}
}

// FromID maps the numeric id carried in an order extension back to a Chain.
func FromID(id uint64) (Chain, error) {
	for _, c := range All() {
		if c.ID() == id {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: id %d", ErrUnsupportedChain, id)
}

// Valid reports whether c is one of the supported chains.
func (c Chain) Valid() bool {
	return c == Ethereum || c == Stellar
}

func (c Chain) String() string {
	switch c {
	case Ethereum:
		return "ethereum"
	case Stellar:
		return "stellar"
	default:
		return fmt.Sprintf("chain(%d)", uint8(c))
	}
}

// ID returns the numeric identifier written into order extensions.
func (c Chain) ID() uint64 {
	switch c {
	case Ethereum:
		return ethereumID
	case Stellar:
		return stellarID
	default:
		return 0
	}
}

// Kind returns the execution environment of the chain.
func (c Chain) Kind() Kind {
	switch c {
	case Ethereum:
		return KindEVM
	case Stellar:
		return KindSoroban
	default:
		return 0
	}
}

// EncodeAddress converts a chain-native address into the 32-byte form used in
// order extensions and escrow immutables. EVM addresses are left padded.
func (c Chain) EncodeAddress(addr string) ([32]byte, error) {
	var out [32]byte
	switch c {
	case Ethereum:
		if !common.IsHexAddress(addr) {
			return out, fmt.Errorf("invalid evm address %q", addr)
		}
		copy(out[12:], common.HexToAddress(addr).Bytes())
		return out, nil
	case Stellar:
		_, payload, err := DecodeStrKey(addr)
		if err != nil {
			return out, err
		}
		copy(out[:], payload)
		return out, nil
	default:
		return out, fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
	}
}

// ValidateAddress checks that addr is a well formed address on c.
func (c Chain) ValidateAddress(addr string) error {
	_, err := c.EncodeAddress(addr)
	return err
}

// ValidateAsset checks that asset identifies a token on c. Stellar accepts
// the literal "native" for lumens as well as token contract ids.
func (c Chain) ValidateAsset(asset string) error {
	switch c {
	case Ethereum:
		if !common.IsHexAddress(asset) {
			return fmt.Errorf("invalid evm token address %q", asset)
		}
		return nil
	case Stellar:
		if asset == NativeAsset {
			return nil
		}
		version, _, err := DecodeStrKey(asset)
		if err != nil {
			return err
		}
		if version != VersionContract {
			return fmt.Errorf("stellar asset must be a contract id, got %q", asset)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
	}
}

// EncodeAsset converts an asset identifier to its 32-byte extension form.
func (c Chain) EncodeAsset(asset string) ([32]byte, error) {
	if err := c.ValidateAsset(asset); err != nil {
		return [32]byte{}, err
	}
	if c == Stellar && asset == NativeAsset {
		return [32]byte{}, nil
	}
	return c.EncodeAddress(asset)
}

// MarshalText implements encoding.TextMarshaler.
func (c Chain) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Chain) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
