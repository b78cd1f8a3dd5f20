// Package hashlock generates swap secrets and their commitments.
//
// Both escrows of a swap verify the same commitment: SHA-256 over the raw
// 32-byte secret. EVM escrows use the sha256 precompile and Soroban escrows
// use the host sha256, so the commitment is byte-identical on both ledgers.
package hashlock

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Size is the length of secrets and hashlocks in bytes.
const Size = 32

const deriveInfo = "fusion-swap/order-secret/v1"

var (
	// ErrHashlockMismatch is returned when a secret does not open a hashlock.
	ErrHashlockMismatch = errors.New("secret does not match hashlock")
	// ErrEmptySeed is returned when deriving a secret without key material.
	ErrEmptySeed = errors.New("empty secret seed")
)

// Secret is the preimage known only to the maker until it is revealed.
type Secret [Size]byte

// Hashlock is the commitment stored in both escrows.
type Hashlock [Size]byte

// NewSecret draws a fresh random secret.
func NewSecret() (Secret, error) {
	var s Secret
	if _, err := io.ReadFull(rand.Reader, s[:]); err != nil {
		return Secret{}, fmt.Errorf("read random secret: %w", err)
	}
	return s, nil
}

// Derive deterministically derives a per-order secret from a maker seed and
// the order salt, so the maker can recover it without storing it.
func Derive(seed []byte, salt []byte) (Secret, error) {
	if len(seed) == 0 {
		return Secret{}, ErrEmptySeed
	}
	var s Secret
	r := hkdf.New(sha256.New, seed, salt, []byte(deriveInfo))
	if _, err := io.ReadFull(r, s[:]); err != nil {
		return Secret{}, fmt.Errorf("derive secret: %w", err)
	}
	return s, nil
}

// Hashlock returns the commitment to s.
func (s Secret) Hashlock() Hashlock {
	return Hashlock(sha256.Sum256(s[:]))
}

// Hex returns the 0x-prefixed hex form.
func (s Secret) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

// IsZero reports whether s is unset.
func (s Secret) IsZero() bool {
	return s == Secret{}
}

// Verify returns ErrHashlockMismatch unless s hashes to h.
func (h Hashlock) Verify(s Secret) error {
	got := s.Hashlock()
	if subtle.ConstantTimeCompare(got[:], h[:]) != 1 {
		return ErrHashlockMismatch
	}
	return nil
}

// Hex returns the 0x-prefixed hex form.
func (h Hashlock) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether h is unset.
func (h Hashlock) IsZero() bool {
	return h == Hashlock{}
}

// ParseSecret decodes a hex secret with or without 0x prefix.
func ParseSecret(s string) (Secret, error) {
	var out Secret
	if err := decodeHex32(s, out[:]); err != nil {
		return Secret{}, fmt.Errorf("invalid secret: %w", err)
	}
	return out, nil
}

// ParseHashlock decodes a hex hashlock with or without 0x prefix.
func ParseHashlock(s string) (Hashlock, error) {
	var out Hashlock
	if err := decodeHex32(s, out[:]); err != nil {
		return Hashlock{}, fmt.Errorf("invalid hashlock: %w", err)
	}
	return out, nil
}

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.Hex()), nil }

func (s *Secret) UnmarshalText(b []byte) error {
	parsed, err := ParseSecret(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (h Hashlock) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

func (h *Hashlock) UnmarshalText(b []byte) error {
	parsed, err := ParseHashlock(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func decodeHex32(s string, dst []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return err
	}
	if len(raw) != Size {
		return fmt.Errorf("expected %d bytes, got %d", Size, len(raw))
	}
	copy(dst, raw)
	return nil
}
