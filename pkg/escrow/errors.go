package escrow

import "errors"

var (
	// ErrInvalidState is returned when an escrow is not in Created.
	ErrInvalidState = errors.New("invalid escrow state")
	// ErrInvalidSecret means the secret does not hash to the escrow's hashlock.
	ErrInvalidSecret = errors.New("invalid secret")
	// ErrInvalidImmutables rejects deployment parameters that fail validation.
	ErrInvalidImmutables = errors.New("invalid escrow immutables")
	// ErrTimelockNotReached means the stage the action needs has not opened yet.
	ErrTimelockNotReached = errors.New("timelock not reached")
	// ErrWithdrawalWindowClosed means cancellation has opened and withdrawal is no longer possible.
	ErrWithdrawalWindowClosed = errors.New("withdrawal window closed")
	// ErrUnauthorizedCaller is returned for private actions by a non-party.
	ErrUnauthorizedCaller = errors.New("unauthorized caller")
	// ErrAlreadyDeployed is the factory's answer to a second deployment for an order hash.
	ErrAlreadyDeployed = errors.New("escrow already deployed")
	// ErrNotFound means no escrow exists for the order hash on that chain.
	ErrNotFound = errors.New("escrow not found")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as a retryable RPC or network failure. Chain clients
// wrap errors with it only when the request cannot have reached the ledger.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err, or anything it wraps, was marked Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
