package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/pkg/hashlock"
	"github.com/chainsafe/fusion-swap/pkg/order"
)

const serviceName = "RelayService"

const signatureDisplaySize = 16

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the relay Service.
// It logs method entry/exit, duration, errors, and redacted signatures and secrets.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

// Submit wraps the service method with logging
func (ls *logService) Submit(ctx context.Context, o *order.Order, signature []byte) (id common.Hash, err error) {
	start := time.Now()

	ls.logger.Info("Submit started",
		zap.String("service", serviceName),
		zap.String("method", "Submit"),
		zap.String("maker", o.Maker.Hex()),
		zap.String("dst_chain", o.DstChain().String()),
		zap.String("signature", redactSignature(hexutil.Encode(signature))),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("Submit failed",
				zap.String("service", serviceName),
				zap.String("method", "Submit"),
				zap.String("maker", o.Maker.Hex()),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		ls.logger.Info("Submit completed",
			zap.String("service", serviceName),
			zap.String("method", "Submit"),
			zap.String("order_hash", id.Hex()),
			zap.Duration("duration", duration),
		)
	}()

	return ls.svc.Submit(ctx, o, signature)
}

// ListPending wraps the service method with logging
func (ls *logService) ListPending(ctx context.Context) (intents []*Intent, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			ls.logger.Error("ListPending failed",
				zap.String("service", serviceName),
				zap.String("method", "ListPending"),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		ls.logger.Debug("ListPending completed",
			zap.String("service", serviceName),
			zap.String("method", "ListPending"),
			zap.Int("count", len(intents)),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return ls.svc.ListPending(ctx)
}

// UpdateStatus wraps the service method with logging
func (ls *logService) UpdateStatus(
	ctx context.Context,
	id common.Hash,
	status Status,
	resolver string,
) (intent *Intent, err error) {
	start := time.Now()

	ls.logger.Info("UpdateStatus started",
		zap.String("service", serviceName),
		zap.String("method", "UpdateStatus"),
		zap.String("order_hash", id.Hex()),
		zap.String("status", string(status)),
		zap.String("resolver", resolver),
	)

	defer func() {
		ls.finish("UpdateStatus", id, start, intent, err)
	}()

	return ls.svc.UpdateStatus(ctx, id, status, resolver)
}

// Get wraps the service method with logging
func (ls *logService) Get(ctx context.Context, id common.Hash) (intent *Intent, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			ls.logger.Warn("Get failed",
				zap.String("service", serviceName),
				zap.String("method", "Get"),
				zap.String("order_hash", id.Hex()),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		}
	}()

	return ls.svc.Get(ctx, id)
}

// Claim wraps the service method with logging
func (ls *logService) Claim(ctx context.Context, id common.Hash, resolver string) (intent *Intent, err error) {
	start := time.Now()

	ls.logger.Info("Claim started",
		zap.String("service", serviceName),
		zap.String("method", "Claim"),
		zap.String("order_hash", id.Hex()),
		zap.String("resolver", resolver),
	)

	defer func() {
		ls.finish("Claim", id, start, intent, err)
	}()

	return ls.svc.Claim(ctx, id, resolver)
}

// SubmitSecret wraps the service method with logging
func (ls *logService) SubmitSecret(ctx context.Context, id common.Hash, secret hashlock.Secret) (intent *Intent, err error) {
	start := time.Now()

	ls.logger.Info("SubmitSecret started",
		zap.String("service", serviceName),
		zap.String("method", "SubmitSecret"),
		zap.String("order_hash", id.Hex()),
		zap.String("secret", redactSignature(secret.Hex())),
	)

	defer func() {
		ls.finish("SubmitSecret", id, start, intent, err)
	}()

	return ls.svc.SubmitSecret(ctx, id, secret)
}

func (ls *logService) finish(method string, id common.Hash, start time.Time, intent *Intent, err error) {
	duration := time.Since(start)
	if err != nil {
		ls.logger.Error(method+" failed",
			zap.String("service", serviceName),
			zap.String("method", method),
			zap.String("order_hash", id.Hex()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	ls.logger.Info(method+" completed",
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.String("order_hash", id.Hex()),
		zap.String("status", string(intent.Status)),
		zap.String("resolver", intent.Resolver),
		zap.Duration("duration", duration),
	)
}

// redactSignature shows only the edges and length of sensitive hex data
func redactSignature(sig string) string {
	if sig == "" {
		return "<empty>"
	}
	sigLen := len(sig)
	if sigLen > signatureDisplaySize {
		return fmt.Sprintf("%s...%s (%d bytes)", sig[:8], sig[sigLen-4:], sigLen)
	}
	return fmt.Sprintf("<%d bytes>", sigLen)
}
