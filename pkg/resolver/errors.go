package resolver

import "errors"

var (
	// ErrClaimLost means another resolver won the order. It is an expected
	// outcome; the resolver stops pursuing the order.
	ErrClaimLost = errors.New("claim lost")
	// ErrEscrowCreationFailed means a deployment was rejected. It is never retried.
	ErrEscrowCreationFailed = errors.New("escrow creation failed")
	// ErrWithdrawalWindowMissed means a timelock elapsed before the resolver acted.
	ErrWithdrawalWindowMissed = errors.New("withdrawal window missed")

	// ErrRecordExists is returned by Store.Create for a known order hash.
	ErrRecordExists = errors.New("order record already exists")
	// ErrRecordNotFound means the store holds no record for the order.
	ErrRecordNotFound = errors.New("order record not found")
	// ErrInvalidTransition means a state change skips or reverses a step.
	ErrInvalidTransition = errors.New("invalid order state transition")
	// ErrUnsupportedChain means no escrow client is configured for a chain of the order.
	ErrUnsupportedChain = errors.New("no escrow client for chain")

	// ErrNotReady means the next step waits on a timelock or the secret.
	ErrNotReady = errors.New("not ready")
)
