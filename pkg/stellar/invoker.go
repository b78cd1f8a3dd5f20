// Package stellar drives Soroban escrows. Transactions are built, signed and
// submitted by an Invoker, the host's transaction primitive; this package only
// decides which contract functions to call with which arguments.
package stellar

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/chainsafe/fusion-swap/pkg/chain"
)

// Arg is one contract argument in the invoker's wire form. Value is a string
// so 128 and 256 bit integers survive JSON.
type Arg struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func Bytes32(b [32]byte) Arg  { return Arg{Type: "bytes", Value: hex.EncodeToString(b[:])} }
func Address(s string) Arg    { return Arg{Type: "address", Value: s} }
func U32(v uint32) Arg        { return Arg{Type: "u32", Value: strconv.FormatUint(uint64(v), 10)} }
func Bool(v bool) Arg         { return Arg{Type: "bool", Value: strconv.FormatBool(v)} }
func U256(v *uint256.Int) Arg { return Arg{Type: "u256", Value: v.Dec()} }

// Asset encodes a token reference; the native asset is resolved by the invoker
// to its asset contract.
func Asset(s string) Arg {
	if s == chain.NativeAsset {
		return Arg{Type: "native_asset", Value: chain.NativeAsset}
	}
	return Address(s)
}

// I128 encodes v as a Soroban i128. A nil v is zero.
func I128(v *big.Int) Arg {
	if v == nil {
		return Arg{Type: "i128", Value: "0"}
	}
	return Arg{Type: "i128", Value: v.String()}
}

// Invocation is a single contract call sent from Source.
type Invocation struct {
	Contract string `json:"contract"`
	Function string `json:"function"`
	Args     []Arg  `json:"args"`
	Source   string `json:"source"`
}

// Result is the outcome of an invocation. For simulations TxHash and Ledger
// are empty.
type Result struct {
	TxHash          string          `json:"tx_hash,omitempty"`
	Ledger          uint32          `json:"ledger,omitempty"`
	LedgerCloseTime uint64          `json:"ledger_close_time"`
	Value           json.RawMessage `json:"value,omitempty"`
}

// LedgerInfo describes the latest closed ledger.
type LedgerInfo struct {
	Sequence  uint32 `json:"sequence"`
	CloseTime uint64 `json:"close_time"`
}

// EventFilter selects contract events. Topics match by prefix.
type EventFilter struct {
	Contract    string   `json:"contract"`
	Topics      []string `json:"topics"`
	StartLedger uint32   `json:"start_ledger,omitempty"`
}

// ContractEvent is an event published by a contract.
type ContractEvent struct {
	Contract string          `json:"contract"`
	Topics   []string        `json:"topics"`
	Value    json.RawMessage `json:"value"`
	Ledger   uint32          `json:"ledger"`
	TxHash   string          `json:"tx_hash"`
}

// Invoker is the host's Soroban transaction primitive.
type Invoker interface {
	// Invoke signs and submits a transaction and waits for it to close.
	Invoke(ctx context.Context, inv Invocation) (Result, error)
	// Simulate evaluates a read-only call against the latest ledger.
	Simulate(ctx context.Context, inv Invocation) (Result, error)
	LatestLedger(ctx context.Context) (LedgerInfo, error)
	Events(ctx context.Context, filter EventFilter) ([]ContractEvent, error)
}

// ContractError is a contract call that failed with a contract error code.
type ContractError struct {
	Contract string `json:"contract"`
	Function string `json:"function"`
	Code     uint32 `json:"code"`
	Message  string `json:"message,omitempty"`
}

func (e *ContractError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("contract %s.%s failed with code %d: %s", e.Contract, e.Function, e.Code, e.Message)
	}
	return fmt.Sprintf("contract %s.%s failed with code %d", e.Contract, e.Function, e.Code)
}
