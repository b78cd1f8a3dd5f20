// Package relay implements app.Runner for the intent relay process.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/fusion-swap/pkg/app/http"
	"github.com/chainsafe/fusion-swap/pkg/auth"
	"github.com/chainsafe/fusion-swap/pkg/config"
	"github.com/chainsafe/fusion-swap/pkg/intentstore"
	"github.com/chainsafe/fusion-swap/pkg/order"
	"github.com/chainsafe/fusion-swap/pkg/pgutil"
	"github.com/chainsafe/fusion-swap/pkg/relay"
)

const defaultRequestTimeout = 60 * time.Second

// Server holds cfg to init the relay.
type Server struct {
	cfg *config.RelayConfig
}

// NewServer initializes a new relay server.
func NewServer(cfg *config.RelayConfig) *Server {
	return &Server{cfg: cfg}
}

// Run serves the relay API until an OS shutdown signal is received or the
// HTTP server fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("relay config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting intent relay",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
	)

	store, ready, closeStore, err := s.openStore(logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := relay.NewHub(cfg.Relay.StreamBuffer, logger)
	domain := order.NewDomain(cfg.Order.ChainID, common.HexToAddress(cfg.Order.VerifyingContract))
	svc := relay.NewService(store, domain, logger,
		relay.WithPublisher(hub),
		relay.WithListLimit(cfg.Relay.ListLimit),
	)

	issuer := auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	routes := relay.Routes{
		Service:       relay.NewLog(svc, logger),
		Authenticator: auth.NewAuthenticator(issuer, cfg.Auth.LoginWindow, cfg.Auth.Resolvers),
		Issuer:        issuer,
		Stream:        hub,
	}

	return apphttp.ServeAndWait(ctx, s.newRouter(routes, ready, logger), logger, &cfg.Server)
}

func (s *Server) openStore(logger *zap.Logger) (relay.Store, apphttp.ReadyFunc, func(), error) {
	if s.cfg.Store.Driver == "memory" {
		logger.Warn("Using in-memory intent store; intents are lost on restart")
		return relay.NewMemoryStore(), nil, func() {}, nil
	}

	db, err := pgutil.ConnectDB(&s.cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect db: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("host", s.cfg.Database.Host),
		zap.String("database", s.cfg.Database.Database),
	)
	return intentstore.NewStore(db), db.PingContext, func() { _ = db.Close() }, nil
}

func (s *Server) newRouter(routes relay.Routes, ready apphttp.ReadyFunc, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	var checks []apphttp.ReadyFunc
	if ready != nil {
		checks = append(checks, ready)
	}
	apphttp.RegisterHealth(r, logger, checks...)

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	// The stream is long-lived, so the request timeout only wraps the REST API.
	r.Group(func(r chi.Router) {
		r.Use(timeoutExceptStream(defaultRequestTimeout))
		relay.RegisterRoutes(r, routes, logger)
	})
	return r
}

func timeoutExceptStream(d time.Duration) func(http.Handler) http.Handler {
	timeout := middleware.Timeout(d)
	return func(next http.Handler) http.Handler {
		limited := timeout(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v1/intents/stream" {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}
