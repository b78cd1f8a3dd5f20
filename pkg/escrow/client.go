package escrow

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
)

// Event topics, shared by every ledger implementation.
const (
	TopicCreated  = "escrow/created"
	TopicWithdraw = "escrow/withdraw"
	TopicCancel   = "escrow/cancel"
)

// DeployParams is everything the escrow execution environment needs to lock funds.
type DeployParams struct {
	Side       Side       `json:"side"`
	Immutables Immutables `json:"immutables"`
	// MakerSignature authorizes pulling the maker's funds into a source escrow.
	MakerSignature []byte `json:"makerSignature,omitempty"`
}

// Receipt identifies an accepted transaction.
type Receipt struct {
	Escrow string `json:"escrow"`
	TxHash string `json:"txHash"`
	// Timestamp is the ledger time the transaction was included at.
	Timestamp uint64 `json:"timestamp"`
}

// Client is the per-chain escrow port. Calls act on behalf of the client's
// own account. Implementations return errors wrapped with Transient when the
// request may be retried, and ErrAlreadyDeployed when another party already
// deployed an escrow for the same order on this chain.
type Client interface {
	Chain() chain.Chain
	// Account is the chain-native address transactions are sent from.
	Account() string
	// Timestamp returns the latest ledger time, which is the only clock
	// timelocks are evaluated against.
	Timestamp(ctx context.Context) (uint64, error)

	Deploy(ctx context.Context, p DeployParams) (Receipt, error)
	Withdraw(ctx context.Context, side Side, im Immutables, secret hashlock.Secret) (Receipt, error)
	PublicWithdraw(ctx context.Context, side Side, im Immutables, secret hashlock.Secret) (Receipt, error)
	Cancel(ctx context.Context, side Side, im Immutables) (Receipt, error)
	PublicCancel(ctx context.Context, im Immutables) (Receipt, error)

	Status(ctx context.Context, orderHash common.Hash) (Status, error)
	// RevealedSecret returns the secret published by a withdrawal of the
	// escrow for orderHash, if any.
	RevealedSecret(ctx context.Context, orderHash common.Hash) (hashlock.Secret, bool, error)
}

// Event is a ledger event emitted by an escrow.
type Event struct {
	Topic     string           `json:"topic"`
	OrderHash common.Hash      `json:"orderHash"`
	Escrow    string           `json:"escrow"`
	Secret    *hashlock.Secret `json:"secret,omitempty"`
	Timestamp uint64           `json:"timestamp"`
}
