package order

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// EIP-712 domain name and version every order is signed under.
const (
	DomainName    = "Fusion Cross-Chain Swap"
	DomainVersion = "1"
)

var (
	// DomainTypeHash is keccak256("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)").
	DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	// OrderTypeHash is the keccak256 hash of the Order type definition. takerAsset
	// is a bytes32 since the destination asset is not necessarily an EVM address.
	OrderTypeHash = crypto.Keccak256Hash([]byte("Order(uint256 salt,address maker,address receiver,address makerAsset,bytes32 takerAsset,uint256 makingAmount,uint256 takingAmount,uint256 makerTraits,bytes32 extensionHash)"))
)

// Domain separates signatures between deployments of the order protocol.
type Domain struct {
	Name              string         `mapstructure:"name" default:"Fusion Cross-Chain Swap"`
	Version           string         `mapstructure:"version" default:"1"`
	ChainID           uint64         `mapstructure:"chain_id" validate:"required"`
	VerifyingContract common.Address `mapstructure:"verifying_contract"`
}

// NewDomain returns the protocol domain for a chain id and settlement contract.
func NewDomain(chainID uint64, verifyingContract common.Address) Domain {
	return Domain{
		Name:              DomainName,
		Version:           DomainVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// Separator computes the EIP-712 domain separator.
func (d Domain) Separator() common.Hash {
	return crypto.Keccak256Hash(
		DomainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		word(new(big.Int).SetUint64(d.ChainID)),
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	)
}

// StructHash hashes the order fields under OrderTypeHash.
func (o *Order) StructHash() (common.Hash, error) {
	extHash, err := o.Extension.Hash()
	if err != nil {
		return common.Hash{}, err
	}
	takerAsset, err := o.Extension.DstChain.EncodeAsset(o.DstAsset)
	if err != nil {
		return common.Hash{}, err
	}

	var traitsWord []byte
	if o.MakerTraits != nil {
		b := o.MakerTraits.Bytes32()
		traitsWord = b[:]
	} else {
		traitsWord = make([]byte, 32)
	}

	return crypto.Keccak256Hash(
		OrderTypeHash.Bytes(),
		word(o.Salt),
		common.LeftPadBytes(o.Maker.Bytes(), 32),
		common.LeftPadBytes(o.Receiver.Bytes(), 32),
		common.LeftPadBytes(o.SrcAsset.Bytes(), 32),
		takerAsset[:],
		word(o.SrcAmount),
		word(o.DstAmount),
		traitsWord,
		extHash.Bytes(),
	), nil
}

// Hash returns the EIP-712 digest of the order. It is the order's identity in
// the relay, in resolver records and in both escrows.
func (o *Order) Hash(d Domain) (common.Hash, error) {
	structHash, err := o.StructHash()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		d.Separator().Bytes(),
		structHash.Bytes(),
	), nil
}

func word(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}
