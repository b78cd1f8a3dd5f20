// Package resolver implements app.Runner for the resolver process.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/fusion-swap/pkg/app/http"
	"github.com/chainsafe/fusion-swap/pkg/config"
	"github.com/chainsafe/fusion-swap/pkg/escrow"
	"github.com/chainsafe/fusion-swap/pkg/ethereum"
	"github.com/chainsafe/fusion-swap/pkg/order"
	"github.com/chainsafe/fusion-swap/pkg/pgutil"
	"github.com/chainsafe/fusion-swap/pkg/quote"
	"github.com/chainsafe/fusion-swap/pkg/relay"
	"github.com/chainsafe/fusion-swap/pkg/resolver"
	"github.com/chainsafe/fusion-swap/pkg/stellar"
	"github.com/chainsafe/fusion-swap/pkg/swapstore"
)

const defaultRequestTimeout = 60 * time.Second

// Server holds configuration for the resolver process.
type Server struct {
	cfg *config.ResolverConfig
}

// NewServer initializes a new resolver Server.
func NewServer(cfg *config.ResolverConfig) *Server {
	return &Server{cfg: cfg}
}

// Run starts the engine and the operational HTTP server. It blocks until an
// OS shutdown signal is received or the HTTP server fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting resolver", zap.String("id", cfg.Resolver.ID))

	store, ready, closeStore, err := s.openStore(logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ethClient, err := ethereum.NewClient(&cfg.Ethereum, logger)
	if err != nil {
		return fmt.Errorf("initialize ethereum client: %w", err)
	}
	defer ethClient.Close()

	stellarClient, err := stellar.NewHTTPClient(&cfg.Stellar, logger)
	if err != nil {
		return fmt.Errorf("initialize stellar client: %w", err)
	}

	relayClient, err := s.relayClient(logger)
	if err != nil {
		return err
	}
	quotes, err := QuoteProvider(cfg.Quote, logger)
	if err != nil {
		return err
	}

	domain := order.NewDomain(cfg.Order.ChainID, common.HexToAddress(cfg.Order.VerifyingContract))
	executor, err := resolver.NewExecutor(cfg.Engine, domain,
		[]escrow.Client{ethClient, stellarClient}, store, logger,
		resolver.WithRelay(relayClient),
		resolver.WithQuotes(quotes),
	)
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}

	engine := resolver.NewEngine(executor, logger)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start resolver engine: %w", err)
	}

	checks := []apphttp.ReadyFunc{func(ctx context.Context) error {
		_, err := ethClient.Timestamp(ctx)
		return err
	}}
	if ready != nil {
		checks = append(checks, ready)
	}

	err = apphttp.ServeAndWait(ctx, s.newRouter(store, checks, logger), logger, &cfg.Server)

	// Stop the engine before deferred client and DB closes kick in.
	if stopErr := engine.Stop(); stopErr != nil {
		err = errors.Join(err, fmt.Errorf("stop resolver engine: %w", stopErr))
	}
	return err
}

func (s *Server) openStore(logger *zap.Logger) (resolver.Store, apphttp.ReadyFunc, func(), error) {
	if s.cfg.Store.Driver == "memory" {
		logger.Warn("Using in-memory order store; execution state is lost on restart")
		return resolver.NewMemoryStore(), nil, func() {}, nil
	}

	db, err := pgutil.ConnectDB(&s.cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect resolver db: %w", err)
	}
	logger.Info("Database connection established", zap.String("database", s.cfg.Database.Database))
	return swapstore.NewStore(db), db.PingContext, func() { _ = db.Close() }, nil
}

func (s *Server) relayClient(logger *zap.Logger) (*relay.Client, error) {
	rc := s.cfg.Relay
	opts := []relay.ClientOption{
		relay.WithClientLogger(logger),
		relay.WithClientRetries(rc.MaxRetries),
	}
	if rc.Timeout > 0 {
		opts = append(opts, relay.WithClientHTTP(&http.Client{Timeout: rc.Timeout}))
	}
	if rc.Token != "" {
		opts = append(opts, relay.WithToken(rc.Token))
	} else {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(s.cfg.Ethereum.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("load relay login key: %w", err)
		}
		opts = append(opts, relay.WithLoginKey(key))
	}
	return relay.NewClient(rc.URL, opts...), nil
}

// QuoteProvider returns the quote proxy client, or static rates when no
// proxy URL is configured.
func QuoteProvider(cfg config.QuoteConfig, logger *zap.Logger) (quote.Provider, error) {
	if cfg.URL != "" {
		return quote.NewClient(cfg.URL, cfg.Timeout, logger), nil
	}
	if len(cfg.Rates) == 0 {
		return nil, fmt.Errorf("quote: either url or rates must be configured")
	}
	fixed, err := quote.ParseFixed(cfg.Rates)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	logger.Warn("Using static quote rates", zap.Int("pairs", len(fixed)))
	return fixed, nil
}

func (s *Server) newRouter(store resolver.Store, checks []apphttp.ReadyFunc, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultRequestTimeout))

	apphttp.RegisterHealth(r, logger, checks...)

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	resolver.RegisterRoutes(r, store, logger)
	return r
}
