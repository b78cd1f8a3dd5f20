package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/config"
	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/ethereum/contracts"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
)

// Backend is the subset of ethclient.Client the escrow client needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	Close()
}

// Client drives escrows through the EVM escrow factory.
type Client struct {
	config     *config.EthereumConfig
	backend    Backend
	privateKey *ecdsa.PrivateKey
	address    common.Address
	factory    *contracts.EscrowFactory
	logger     *zap.Logger
}

var _ escrow.Client = (*Client)(nil)

// NewClient dials the RPC endpoint and binds the escrow factory.
func NewClient(cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	backend, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}
	c, err := NewClientWithBackend(cfg, backend, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return c, nil
}

// NewClientWithBackend builds a Client over an existing backend.
func NewClientWithBackend(cfg *config.EthereumConfig, backend Backend, logger *zap.Logger) (*Client, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	factoryAddress := common.HexToAddress(cfg.FactoryContract)
	factory, err := contracts.NewEscrowFactory(factoryAddress, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow factory: %w", err)
	}

	logger.Info("Connected to Ethereum",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("factory_contract", factoryAddress.Hex()),
		zap.String("resolver_address", address.Hex()))

	return &Client{
		config:     cfg,
		backend:    backend,
		privateKey: privateKey,
		address:    address,
		factory:    factory,
		logger:     logger,
	}, nil
}

// Close closes the RPC connection
func (c *Client) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
}

func (c *Client) Chain() chain.Chain { return chain.Ethereum }
func (c *Client) Account() string    { return c.address.Hex() }

// Timestamp returns the time of the latest block.
func (c *Client) Timestamp(ctx context.Context) (uint64, error) {
	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, c.classify(fmt.Errorf("failed to get latest block: %w", err))
	}
	return header.Time, nil
}

// GetTransactor returns a transaction signer
func (c *Client) GetTransactor(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, big.NewInt(c.config.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx

	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, escrow.Transient(fmt.Errorf("failed to get nonce: %w", err))
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasLimit = c.config.GasLimit

	if c.config.MaxGasPrice != "" {
		maxGasPrice, ok := new(big.Int).SetString(c.config.MaxGasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid max gas price %q", c.config.MaxGasPrice)
		}

		gasPrice, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, escrow.Transient(fmt.Errorf("failed to suggest gas price: %w", err))
		}

		if gasPrice.Cmp(maxGasPrice) > 0 {
			c.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", maxGasPrice.String()))
			auth.GasPrice = maxGasPrice
		} else {
			auth.GasPrice = gasPrice
		}
	}

	return auth, nil
}

// Deploy creates an escrow through the factory. The safety deposit is sent as value.
func (c *Client) Deploy(ctx context.Context, p escrow.DeployParams) (escrow.Receipt, error) {
	im := p.Immutables
	if err := im.Validate(chain.Ethereum); err != nil {
		return escrow.Receipt{}, err
	}

	deposit := new(big.Int)
	if im.SafetyDeposit != nil {
		deposit.Set(im.SafetyDeposit)
	}

	return c.send(ctx, "deploy", im.OrderHash, func(auth *bind.TransactOpts) (*types.Transaction, error) {
		auth.Value = deposit
		return c.factory.DeployEscrow(auth,
			uint8(p.Side),
			im.OrderHash,
			im.Hashlock,
			common.HexToAddress(im.Maker),
			common.HexToAddress(im.Taker),
			common.HexToAddress(im.Token),
			im.Amount,
			deposit,
			im.Timelocks.Encode().ToBig(),
			p.MakerSignature,
		)
	})
}

func (c *Client) Withdraw(ctx context.Context, _ escrow.Side, im escrow.Immutables, secret hashlock.Secret) (escrow.Receipt, error) {
	return c.send(ctx, "withdraw", im.OrderHash, func(auth *bind.TransactOpts) (*types.Transaction, error) {
		return c.factory.Withdraw(auth, im.OrderHash, secret)
	})
}

func (c *Client) PublicWithdraw(ctx context.Context, _ escrow.Side, im escrow.Immutables, secret hashlock.Secret) (escrow.Receipt, error) {
	return c.send(ctx, "public_withdraw", im.OrderHash, func(auth *bind.TransactOpts) (*types.Transaction, error) {
		return c.factory.PublicWithdraw(auth, im.OrderHash, secret)
	})
}

func (c *Client) Cancel(ctx context.Context, _ escrow.Side, im escrow.Immutables) (escrow.Receipt, error) {
	return c.send(ctx, "cancel", im.OrderHash, func(auth *bind.TransactOpts) (*types.Transaction, error) {
		return c.factory.Cancel(auth, im.OrderHash)
	})
}

func (c *Client) PublicCancel(ctx context.Context, im escrow.Immutables) (escrow.Receipt, error) {
	return c.send(ctx, "public_cancel", im.OrderHash, func(auth *bind.TransactOpts) (*types.Transaction, error) {
		return c.factory.PublicCancel(auth, im.OrderHash)
	})
}

// Status reads the escrow state from the factory.
func (c *Client) Status(ctx context.Context, orderHash common.Hash) (escrow.Status, error) {
	v, err := c.factory.EscrowStatus(&bind.CallOpts{Context: ctx}, orderHash)
	if err != nil {
		return escrow.StatusNone, c.classify(fmt.Errorf("failed to read escrow status: %w", err))
	}
	status := escrow.Status(v)
	if status > escrow.StatusPubliclyCancelled {
		return escrow.StatusNone, fmt.Errorf("unknown escrow status %d", v)
	}
	return status, nil
}

// RevealedSecret scans EscrowWithdrawal logs for orderHash.
func (c *Client) RevealedSecret(ctx context.Context, orderHash common.Hash) (hashlock.Secret, bool, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.config.StartBlock),
		Addresses: []common.Address{c.factory.Address()},
		Topics:    [][]common.Hash{{c.factory.WithdrawalTopic()}, {orderHash}},
	}
	logs, err := c.backend.FilterLogs(ctx, query)
	if err != nil {
		return hashlock.Secret{}, false, c.classify(fmt.Errorf("failed to filter withdrawal events: %w", err))
	}

	for _, log := range logs {
		if log.Removed {
			continue
		}
		event, err := c.factory.ParseWithdrawal(log)
		if err != nil {
			c.logger.Warn("Failed to parse withdrawal event",
				zap.Error(err),
				zap.String("tx_hash", log.TxHash.Hex()))
			continue
		}
		return hashlock.Secret(event.Secret), true, nil
	}
	return hashlock.Secret{}, false, nil
}

// send builds and signs a transaction, submits it, then waits for it to be
// mined. Build failures (gas estimation, reverts) are classified as usual.
// A submission failure is transient only when the request never left this
// process; otherwise the node may hold the transaction and it must not be
// sent again.
func (c *Client) send(ctx context.Context, op string, orderHash common.Hash, build func(*bind.TransactOpts) (*types.Transaction, error)) (escrow.Receipt, error) {
	auth, err := c.GetTransactor(ctx)
	if err != nil {
		return escrow.Receipt{}, err
	}
	auth.NoSend = true

	tx, err := build(auth)
	if err != nil {
		return escrow.Receipt{}, c.classify(fmt.Errorf("failed to build %s transaction: %w", op, err))
	}

	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		err = fmt.Errorf("failed to submit %s transaction %s: %w", op, tx.Hash().Hex(), err)
		if neverSent(err) {
			return escrow.Receipt{}, escrow.Transient(err)
		}
		return escrow.Receipt{}, err
	}

	c.logger.Info("Escrow transaction submitted",
		zap.String("op", op),
		zap.String("order_hash", orderHash.Hex()),
		zap.String("tx_hash", tx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return escrow.Receipt{}, fmt.Errorf("%s transaction %s not confirmed: %w", op, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return escrow.Receipt{}, fmt.Errorf("%s transaction %s reverted", op, tx.Hash().Hex())
	}

	var ts uint64
	if header, err := c.backend.HeaderByNumber(ctx, receipt.BlockNumber); err == nil {
		ts = header.Time
	}

	return escrow.Receipt{
		Escrow:    c.factory.Address().Hex(),
		TxHash:    tx.Hash().Hex(),
		Timestamp: ts,
	}, nil
}
