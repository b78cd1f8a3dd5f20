package order

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of an r || s || v signature.
const SignatureLength = crypto.SignatureLength

// Signer produces typed-data signatures over order digests.
type Signer interface {
	Address() common.Address
	SignHash(hash common.Hash) ([]byte, error)
}

// KeySigner signs with an in-process secp256k1 key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySigner wraps a private key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewKeySignerFromHex parses a hex private key, with or without 0x prefix.
func NewKeySignerFromHex(hexKey string) (*KeySigner, error) {
	if len(hexKey) > 1 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeySigner(key), nil
}

func (s *KeySigner) Address() common.Address { return s.addr }

// SignHash signs hash and returns a 65 byte signature with v in {27, 28}.
func (s *KeySigner) SignHash(hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Sign produces the maker's signature over the order. The signer must be the maker.
func Sign(o *Order, d Domain, signer Signer) ([]byte, error) {
	if signer.Address() != o.Maker {
		return nil, fmt.Errorf("%w: signer %s is not maker %s", ErrInvalidSignature, signer.Address().Hex(), o.Maker.Hex())
	}
	hash, err := o.Hash(d)
	if err != nil {
		return nil, fmt.Errorf("hash order: %w", err)
	}
	return signer.SignHash(hash)
}

// Recover returns the address that produced sig over the order digest.
func Recover(o *Order, d Domain, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureLength, len(sig))
	}
	hash, err := o.Hash(d)
	if err != nil {
		return common.Address{}, fmt.Errorf("hash order: %w", err)
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	// v can be 0, 1, 27 or 28
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that sig recovers to o.Maker.
func Verify(o *Order, d Domain, sig []byte) error {
	addr, err := Recover(o, d, sig)
	if err != nil {
		return err
	}
	if addr != o.Maker {
		return fmt.Errorf("%w: recovered %s, maker %s", ErrInvalidSignature, addr.Hex(), o.Maker.Hex())
	}
	return nil
}
