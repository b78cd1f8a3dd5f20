package resolver

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/fusion-swap/pkg/chain"
	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/relay"
)

// Relay is the part of the intent relay the resolver uses. *relay.Client
// implements it.
type Relay interface {
	ListPending(ctx context.Context) ([]*relay.Intent, error)
	Get(ctx context.Context, id common.Hash) (*relay.Intent, error)
	Claim(ctx context.Context, id common.Hash) (*relay.Intent, error)
	UpdateStatus(ctx context.Context, id common.Hash, status relay.Status) (*relay.Intent, error)
}

var _ Relay = (*relay.Client)(nil)

// SecretSource finds the revealed secret of an order. The boolean is false
// while the secret is still unknown.
type SecretSource interface {
	Secret(ctx context.Context, rec *Record) (hashlock.Secret, bool, error)
}

// SecretSourceFunc adapts a function to SecretSource.
type SecretSourceFunc func(ctx context.Context, rec *Record) (hashlock.Secret, bool, error)

func (f SecretSourceFunc) Secret(ctx context.Context, rec *Record) (hashlock.Secret, bool, error) {
	return f(ctx, rec)
}

// LedgerSecrets reads secrets from withdrawals of the destination escrow.
func LedgerSecrets(clients map[chain.Chain]escrow.Client) SecretSource {
	return SecretSourceFunc(func(ctx context.Context, rec *Record) (hashlock.Secret, bool, error) {
		c, ok := clients[rec.Order.DstChain()]
		if !ok {
			return hashlock.Secret{}, false, ErrUnsupportedChain
		}
		return c.RevealedSecret(ctx, rec.OrderHash)
	})
}

// RelaySecrets reads secrets the maker published to the relay.
func RelaySecrets(r Relay) SecretSource {
	return SecretSourceFunc(func(ctx context.Context, rec *Record) (hashlock.Secret, bool, error) {
		intent, err := r.Get(ctx, rec.OrderHash)
		if errors.Is(err, relay.ErrNotFound) {
			return hashlock.Secret{}, false, nil
		}
		if err != nil {
			return hashlock.Secret{}, false, err
		}
		if intent.Secret == nil {
			return hashlock.Secret{}, false, nil
		}
		return *intent.Secret, true, nil
	})
}

// FirstSecret asks each source in turn and returns the first secret found.
func FirstSecret(sources ...SecretSource) SecretSource {
	return SecretSourceFunc(func(ctx context.Context, rec *Record) (hashlock.Secret, bool, error) {
		var errs []error
		for _, s := range sources {
			secret, ok, err := s.Secret(ctx, rec)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				return secret, true, nil
			}
		}
		return hashlock.Secret{}, false, errors.Join(errs...)
	})
}
