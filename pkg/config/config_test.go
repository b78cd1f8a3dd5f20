package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const relayYAML = `
store:
  driver: memory
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
order:
  chain_id: 11155111
`

func TestLoadRelay_Defaults(t *testing.T) {
	cfg, err := LoadRelay(writeConfig(t, relayYAML))
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Store.Driver)
	require.Equal(t, "fusion-relay", cfg.Auth.Issuer)
	require.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, 5*time.Minute, cfg.Auth.LoginWindow)
	require.Equal(t, uint64(11155111), cfg.Order.ChainID)
	require.Equal(t, 500, cfg.Relay.ListLimit)
	require.Equal(t, "relay", cfg.Database.Database)
}

func TestLoadRelay_Invalid(t *testing.T) {
	_, err := LoadRelay(writeConfig(t, `
auth:
  jwt_secret: short
`))
	require.Error(t, err)

	_, err = LoadRelay(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

const resolverYAML = `
store:
  driver: memory
ethereum:
  rpc_url: http://localhost:8545
  chain_id: 1
  factory_contract: 0x2222222222222222222222222222222222222222
  private_key: 0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318
stellar:
  invoker_url: http://localhost:8000
  factory_contract: CAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA
  account: GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF
relay:
  url: http://localhost:8080
quote:
  rates:
    "ethereum:0x1111111111111111111111111111111111111111/stellar:native": "1.5"
`

func TestLoadResolver_Defaults(t *testing.T) {
	cfg, err := LoadResolver(writeConfig(t, resolverYAML+"engine:\n  margin_bps: 100\n"))
	require.NoError(t, err)

	require.Equal(t, 8090, cfg.Server.Port)
	require.Equal(t, 30*time.Second, cfg.Stellar.RequestTimeout)
	require.Equal(t, 10*time.Second, cfg.Relay.Timeout)
	require.Equal(t, 5*time.Second, cfg.Quote.Timeout)
	require.Equal(t, "1.5", cfg.Quote.Rates["ethereum:0x1111111111111111111111111111111111111111/stellar:native"])

	// Unset engine keys keep their defaults.
	require.Equal(t, uint32(100), cfg.Engine.MarginBps)
	require.Equal(t, 5*time.Second, cfg.Engine.PollInterval)
	require.Equal(t, 30*time.Second, cfg.Engine.RecoveryInterval)
	require.Equal(t, 4, cfg.Engine.MaxConcurrent)
	require.Equal(t, uint64(30), cfg.Engine.ClockSkew)
}

func TestLoadResolver_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		engine string
	}{
		{name: "margin above 100%", engine: "  margin_bps: 20000\n"},
		{name: "retry bounds inverted", engine: "  retry_initial: 1m\n  retry_max: 1s\n"},
		{name: "no workers", engine: "  max_concurrent: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadResolver(writeConfig(t, resolverYAML+"engine:\n"+tt.engine))
			require.Error(t, err)
		})
	}
}

func TestDefaultEngineConfig(t *testing.T) {
	c := DefaultEngineConfig()
	require.Equal(t, 5*time.Second, c.PollInterval)
	require.Equal(t, uint32(50), c.MarginBps)
	require.Equal(t, uint64(5), c.RetryAttempts)
	require.Equal(t, 500*time.Millisecond, c.RetryInitial)
	require.Equal(t, 10*time.Second, c.RetryMax)
}
