package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainsafe/fusion-swap/internal/metrics"
)

var activeStates = []State{
	StateClaimed,
	StateSourceEscrowCreated,
	StateDestinationEscrowCreated,
	StateDestinationWithdrawn,
}

// Engine runs the executor: it discovers profitable intents on the relay,
// advances claimed orders and sweeps expired ones for recovery.
type Engine struct {
	executor *Executor
	logger   *zap.Logger

	// inflight keeps two loops from acting on the same order at once.
	inflight *xsync.MapOf[common.Hash, struct{}]

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewEngine creates an engine around x.
func NewEngine(x *Executor, logger *zap.Logger) *Engine {
	return &Engine{
		executor: x,
		logger:   logger,
		inflight: xsync.NewMapOf[common.Hash, struct{}](),
	}
}

// Start launches the polling and recovery loops and returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.New("engine already started")
	}

	e.logger.Info("Starting resolver engine",
		zap.Duration("poll_interval", e.executor.cfg.PollInterval),
		zap.Duration("recovery_interval", e.executor.cfg.RecoveryInterval),
		zap.Int("max_concurrent", e.executor.cfg.MaxConcurrent),
	)

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.loop(ctx, "poll", e.executor.cfg.PollInterval, e.tick)
		return nil
	})
	g.Go(func() error {
		e.loop(ctx, "recovery", e.executor.cfg.RecoveryInterval, e.Sweep)
		return nil
	})

	e.cancel = cancel
	e.group = g
	return nil
}

// Stop cancels the loops and waits for in-flight steps to return.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel, g := e.cancel, e.group
	e.cancel, e.group = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	e.logger.Info("Stopping resolver engine")
	cancel()
	err := g.Wait()
	e.logger.Info("Resolver engine stopped")
	return err
}

func (e *Engine) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			metrics.ErrorsTotal.WithLabelValues("resolver", name).Inc()
			e.logger.Error("Resolver loop iteration failed", zap.String("loop", name), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) tick(ctx context.Context) error {
	pollErr := e.Poll(ctx)
	return errors.Join(pollErr, e.Advance(ctx))
}

// Poll evaluates every pending intent the resolver has not seen and claims
// the profitable ones.
func (e *Engine) Poll(ctx context.Context) error {
	x := e.executor
	if x.relay == nil {
		return nil
	}
	intents, err := x.relay.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending intents: %w", err)
	}

	for _, intent := range intents {
		// An open record means an earlier relay claim failed; claim again.
		if rec, err := x.store.Get(ctx, intent.ID); err == nil && rec.State != StateOpen {
			continue
		}
		log := e.logger.With(zap.String("order_hash", intent.ID.Hex()))

		now, err := x.LedgerTime(ctx, intent.Order.SrcChain)
		if err != nil {
			log.Warn("Skipping intent", zap.Error(err))
			continue
		}
		d, err := x.Evaluate(ctx, intent.Order, now)
		if err != nil {
			log.Warn("Rejecting malformed intent", zap.Error(err))
			continue
		}
		if !d.Profitable {
			log.Debug("Intent not profitable",
				zap.String("reason", d.Reason),
				zap.Stringer("price", d.Price),
				zap.Uint64("bid_at", d.BidAt),
			)
			continue
		}

		switch _, err := x.Claim(ctx, intent); {
		case errors.Is(err, ErrClaimLost):
		case err != nil:
			log.Warn("Claim failed", zap.Error(err))
		default:
			log.Info("Order claimed", zap.Stringer("price", d.Price), zap.Stringer("market", d.Market))
		}
	}
	return nil
}

// Advance drives every active order, at most MaxConcurrent at a time.
func (e *Engine) Advance(ctx context.Context) error {
	recs, err := e.executor.store.List(ctx, activeStates...)
	if err != nil {
		return fmt.Errorf("list active orders: %w", err)
	}
	metrics.ActiveOrders.Set(float64(len(recs)))
	e.each(ctx, recs, e.executor.Drive)
	return nil
}

// Sweep runs recovery on every expired order that still holds funds.
func (e *Engine) Sweep(ctx context.Context) error {
	recs, err := e.executor.store.List(ctx, StateExpired)
	if err != nil {
		return fmt.Errorf("list expired orders: %w", err)
	}
	var pending []*Record
	for _, r := range recs {
		if r.NeedsRecovery() {
			pending = append(pending, r)
		}
	}
	e.each(ctx, pending, e.executor.Recover)
	return nil
}

func (e *Engine) each(ctx context.Context, recs []*Record, fn func(context.Context, common.Hash) (*Record, error)) {
	var g errgroup.Group
	g.SetLimit(e.executor.cfg.MaxConcurrent)
	for _, rec := range recs {
		if _, busy := e.inflight.LoadOrStore(rec.OrderHash, struct{}{}); busy {
			continue
		}
		g.Go(func() error {
			defer e.inflight.Delete(rec.OrderHash)
			if _, err := fn(ctx, rec.OrderHash); err != nil && !errors.Is(err, ErrClaimLost) && ctx.Err() == nil {
				metrics.ErrorsTotal.WithLabelValues("resolver", "execution").Inc()
				e.logger.Warn("Order step failed",
					zap.String("order_hash", rec.OrderHash.Hex()),
					zap.String("state", string(rec.State)),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
