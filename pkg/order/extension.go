package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/timelock"
)

// Extension is the cross-chain payload attached to an order.
type Extension struct {
	DstChain         chain.Chain       `json:"dstChain"`
	DstReceiver      string            `json:"dstReceiver"`
	Hashlock         hashlock.Hashlock `json:"hashlock"`
	SrcFactory       common.Address    `json:"srcFactory"`
	DstFactory       string            `json:"dstFactory"`
	Timelocks        timelock.Schedule `json:"timelocks"`
	SrcSafetyDeposit *big.Int          `json:"srcSafetyDeposit"`
	DstSafetyDeposit *big.Int          `json:"dstSafetyDeposit"`
}

var extensionArgs = abi.Arguments{
	{Name: "dstChainId", Type: mustType("uint256")},
	{Name: "dstReceiver", Type: mustType("bytes32")},
	{Name: "hashlock", Type: mustType("bytes32")},
	{Name: "srcFactory", Type: mustType("address")},
	{Name: "dstFactory", Type: mustType("bytes32")},
	{Name: "timelocks", Type: mustType("uint256")},
	{Name: "srcSafetyDeposit", Type: mustType("uint256")},
	{Name: "dstSafetyDeposit", Type: mustType("uint256")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Encode ABI-encodes the extension.
func (e Extension) Encode() ([]byte, error) {
	receiver, err := e.DstChain.EncodeAddress(e.DstReceiver)
	if err != nil {
		return nil, fmt.Errorf("encode destination receiver: %w", err)
	}
	factory, err := e.DstChain.EncodeAddress(e.DstFactory)
	if err != nil {
		return nil, fmt.Errorf("encode destination factory: %w", err)
	}

	return extensionArgs.Pack(
		new(big.Int).SetUint64(e.DstChain.ID()),
		receiver,
		[32]byte(e.Hashlock),
		e.SrcFactory,
		factory,
		e.Timelocks.Encode().ToBig(),
		orZero(e.SrcSafetyDeposit),
		orZero(e.DstSafetyDeposit),
	)
}

// Hash returns keccak256 of the encoded extension.
func (e Extension) Hash() (common.Hash, error) {
	data, err := e.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}

// DecodedExtension is the on-chain view of an extension: destination
// identifiers stay in their 32-byte form since the encoding is not reversible
// for every chain.
type DecodedExtension struct {
	DstChain         chain.Chain
	DstReceiver      [32]byte
	Hashlock         hashlock.Hashlock
	SrcFactory       common.Address
	DstFactory       [32]byte
	Timelocks        timelock.Schedule
	SrcSafetyDeposit *big.Int
	DstSafetyDeposit *big.Int
}

// DecodeExtension parses ABI-encoded extension bytes.
func DecodeExtension(data []byte) (*DecodedExtension, error) {
	values, err := extensionArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack extension: %w", err)
	}
	if len(values) != len(extensionArgs) {
		return nil, fmt.Errorf("unpack extension: expected %d values, got %d", len(extensionArgs), len(values))
	}

	chainID, ok := values[0].(*big.Int)
	if !ok || !chainID.IsUint64() {
		return nil, fmt.Errorf("unpack extension: bad chain id")
	}
	dst, err := chain.FromID(chainID.Uint64())
	if err != nil {
		return nil, err
	}

	packed, overflow := uint256.FromBig(values[5].(*big.Int))
	if overflow {
		return nil, fmt.Errorf("unpack extension: timelocks overflow")
	}
	schedule, err := timelock.Decode(packed)
	if err != nil {
		return nil, err
	}

	return &DecodedExtension{
		DstChain:         dst,
		DstReceiver:      values[1].([32]byte),
		Hashlock:         hashlock.Hashlock(values[2].([32]byte)),
		SrcFactory:       values[3].(common.Address),
		DstFactory:       values[4].([32]byte),
		Timelocks:        schedule,
		SrcSafetyDeposit: values[6].(*big.Int),
		DstSafetyDeposit: values[7].(*big.Int),
	}, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
