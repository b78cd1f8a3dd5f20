package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EscrowFactoryABI is the ABI of the escrow factory. The factory deploys one
// escrow per order hash and routes withdraw/cancel calls to it.
const EscrowFactoryABI = `[
 {"type":"function","name":"deployEscrow","stateMutability":"payable","inputs":[
  {"name":"side","type":"uint8"},{"name":"orderHash","type":"bytes32"},{"name":"hashlock","type":"bytes32"},
  {"name":"maker","type":"address"},{"name":"taker","type":"address"},{"name":"token","type":"address"},
  {"name":"amount","type":"uint256"},{"name":"safetyDeposit","type":"uint256"},{"name":"timelocks","type":"uint256"},
  {"name":"makerSignature","type":"bytes"}],"outputs":[{"name":"escrow","type":"address"}]},
 {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"orderHash","type":"bytes32"},{"name":"secret","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"publicWithdraw","stateMutability":"nonpayable","inputs":[{"name":"orderHash","type":"bytes32"},{"name":"secret","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"cancel","stateMutability":"nonpayable","inputs":[{"name":"orderHash","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"publicCancel","stateMutability":"nonpayable","inputs":[{"name":"orderHash","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"escrowStatus","stateMutability":"view","inputs":[{"name":"orderHash","type":"bytes32"}],"outputs":[{"name":"","type":"uint8"}]},
 {"type":"event","name":"EscrowCreated","anonymous":false,"inputs":[{"name":"orderHash","type":"bytes32","indexed":true},{"name":"escrow","type":"address","indexed":false},{"name":"side","type":"uint8","indexed":false}]},
 {"type":"event","name":"EscrowWithdrawal","anonymous":false,"inputs":[{"name":"orderHash","type":"bytes32","indexed":true},{"name":"secret","type":"bytes32","indexed":false}]},
 {"type":"event","name":"EscrowCancelled","anonymous":false,"inputs":[{"name":"orderHash","type":"bytes32","indexed":true}]},
 {"type":"error","name":"AlreadyDeployed","inputs":[{"name":"orderHash","type":"bytes32"}]}
]`

// EscrowFactory is a binding around a deployed escrow factory.
type EscrowFactory struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

// EscrowFactoryWithdrawal is the EscrowWithdrawal event.
type EscrowFactoryWithdrawal struct {
	OrderHash [32]byte
	Secret    [32]byte
	Raw       types.Log
}

// NewEscrowFactory binds the factory at address.
func NewEscrowFactory(address common.Address, backend bind.ContractBackend) (*EscrowFactory, error) {
	parsed, err := abi.JSON(strings.NewReader(EscrowFactoryABI))
	if err != nil {
		return nil, err
	}
	return &EscrowFactory{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the factory address.
func (f *EscrowFactory) Address() common.Address { return f.address }

// ABI returns the parsed factory ABI.
func (f *EscrowFactory) ABI() abi.ABI { return f.abi }

// DeployEscrow is a paid mutator transaction binding the contract method deployEscrow.
func (f *EscrowFactory) DeployEscrow(
	opts *bind.TransactOpts,
	side uint8,
	orderHash, hashlock [32]byte,
	maker, taker, token common.Address,
	amount, safetyDeposit, timelocks *big.Int,
	makerSignature []byte,
) (*types.Transaction, error) {
	return f.contract.Transact(opts, "deployEscrow", side, orderHash, hashlock, maker, taker, token, amount, safetyDeposit, timelocks, makerSignature)
}

// Withdraw is a mutator transaction binding the contract method withdraw.
func (f *EscrowFactory) Withdraw(opts *bind.TransactOpts, orderHash, secret [32]byte) (*types.Transaction, error) {
	return f.contract.Transact(opts, "withdraw", orderHash, secret)
}

// PublicWithdraw is a mutator transaction binding the contract method publicWithdraw.
func (f *EscrowFactory) PublicWithdraw(opts *bind.TransactOpts, orderHash, secret [32]byte) (*types.Transaction, error) {
	return f.contract.Transact(opts, "publicWithdraw", orderHash, secret)
}

// Cancel is a mutator transaction binding the contract method cancel.
func (f *EscrowFactory) Cancel(opts *bind.TransactOpts, orderHash [32]byte) (*types.Transaction, error) {
	return f.contract.Transact(opts, "cancel", orderHash)
}

// PublicCancel is a mutator transaction binding the contract method publicCancel.
func (f *EscrowFactory) PublicCancel(opts *bind.TransactOpts, orderHash [32]byte) (*types.Transaction, error) {
	return f.contract.Transact(opts, "publicCancel", orderHash)
}

// EscrowStatus is a free data retrieval call binding the contract method escrowStatus.
func (f *EscrowFactory) EscrowStatus(opts *bind.CallOpts, orderHash [32]byte) (uint8, error) {
	var out []interface{}
	if err := f.contract.Call(opts, &out, "escrowStatus", orderHash); err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

// WithdrawalTopic is the topic hash of EscrowWithdrawal.
func (f *EscrowFactory) WithdrawalTopic() common.Hash {
	return f.abi.Events["EscrowWithdrawal"].ID
}

// AlreadyDeployedSelector is the 4-byte selector of the AlreadyDeployed error.
func (f *EscrowFactory) AlreadyDeployedSelector() []byte {
	id := f.abi.Errors["AlreadyDeployed"].ID
	return id[:4]
}

// ParseWithdrawal unpacks an EscrowWithdrawal log.
func (f *EscrowFactory) ParseWithdrawal(log types.Log) (*EscrowFactoryWithdrawal, error) {
	event := new(EscrowFactoryWithdrawal)
	if err := f.contract.UnpackLog(event, "EscrowWithdrawal", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}
