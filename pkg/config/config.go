package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxOpenConns int           `mapstructure:"max_open_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=memory postgres"`
}

// OrderDomainConfig is the EIP-712 domain orders are signed under.
type OrderDomainConfig struct {
	ChainID           uint64 `mapstructure:"chain_id" validate:"required"`
	VerifyingContract string `mapstructure:"verifying_contract" validate:"omitempty,eth_addr"`
}

// =============================================================================
// RELAY CONFIG
// =============================================================================

// RelayConfig represents the intent relay configuration
type RelayConfig struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Store      StoreConfig       `mapstructure:"store"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Monitoring MonitoringConfig  `mapstructure:"monitoring"`
	Auth       RelayAuthConfig   `mapstructure:"auth"`
	Order      OrderDomainConfig `mapstructure:"order"`
	Relay      RelaySettings     `mapstructure:"relay"`
}

// RelayAuthConfig holds the shared secret resolvers' bearer tokens are signed with.
type RelayAuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	// LoginWindow bounds the age of a signed login challenge.
	LoginWindow time.Duration `mapstructure:"login_window"`
	// Resolvers, when set, is the allowlist of resolver EVM addresses.
	Resolvers []string `mapstructure:"resolvers" validate:"dive,eth_addr"`
}

// RelaySettings tunes the relay queue.
type RelaySettings struct {
	ListLimit    int `mapstructure:"list_limit" validate:"gt=0"`
	StreamBuffer int `mapstructure:"stream_buffer" validate:"gt=0"`
}

// LoadRelay loads relay configuration from file and environment variables
func LoadRelay(configPath string) (*RelayConfig, error) {
	v, err := newViper(configPath, setRelayDefaults)
	if err != nil {
		return nil, err
	}

	var config RelayConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateRelay(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setRelayDefaults(v *viper.Viper) {
	setCommonDefaults(v, 8080, "relay")

	v.SetDefault("auth.issuer", "fusion-relay")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.login_window", "5m")

	v.SetDefault("order.chain_id", 1)

	v.SetDefault("relay.list_limit", 500)
	v.SetDefault("relay.stream_buffer", 64)
}

func validateRelay(config *RelayConfig) error {
	if err := structValidator.Struct(config); err != nil {
		return err
	}
	if config.Store.Driver == "postgres" && config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	return nil
}

// =============================================================================
// RESOLVER CONFIG
// =============================================================================

// ResolverConfig represents the resolver configuration
type ResolverConfig struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Store      StoreConfig       `mapstructure:"store"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Monitoring MonitoringConfig  `mapstructure:"monitoring"`
	Resolver   ResolverIdentity  `mapstructure:"resolver"`
	Ethereum   EthereumConfig    `mapstructure:"ethereum"`
	Stellar    StellarConfig     `mapstructure:"stellar"`
	Relay      RelayClientConfig `mapstructure:"relay"`
	Quote      QuoteConfig       `mapstructure:"quote"`
	Order      OrderDomainConfig `mapstructure:"order"`
	Engine     EngineConfig      `mapstructure:"engine"`
}

// ResolverIdentity names this resolver to the relay. An empty ID defaults
// to the resolver's Ethereum address.
type ResolverIdentity struct {
	ID string `mapstructure:"id"`
}

// EthereumConfig contains Ethereum client settings
type EthereumConfig struct {
	RPCURL             string        `mapstructure:"rpc_url" validate:"required"`
	ChainID            int64         `mapstructure:"chain_id" validate:"required"`
	FactoryContract    string        `mapstructure:"factory_contract" validate:"required,eth_addr"`
	PrivateKey         string        `mapstructure:"private_key" validate:"required"`
	GasLimit           uint64        `mapstructure:"gas_limit"`
	MaxGasPrice        string        `mapstructure:"max_gas_price"`
	PollingInterval    time.Duration `mapstructure:"polling_interval"`
	StartBlock         uint64        `mapstructure:"start_block"`
	ConfirmationBlocks int           `mapstructure:"confirmation_blocks"`
}

// StellarConfig contains Soroban client settings
type StellarConfig struct {
	InvokerURL      string        `mapstructure:"invoker_url" validate:"required,url"`
	FactoryContract string        `mapstructure:"factory_contract" validate:"required"`
	Account         string        `mapstructure:"account" validate:"required"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxRetries      uint64        `mapstructure:"max_retries"`
	StartLedger     uint32        `mapstructure:"start_ledger"`
	// Token is a static bearer token for the invoker. Ignored when Auth is set.
	Token string             `mapstructure:"token"`
	Auth  *StellarAuthConfig `mapstructure:"auth"`
}

// StellarAuthConfig holds OAuth2 client credentials for the invoker endpoint.
type StellarAuthConfig struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"` //nolint:gosec // standard OAuth2 config field name
	Audience     string `mapstructure:"audience" validate:"required"`
	TokenURL     string `mapstructure:"token_url" validate:"required,url"`
	// ExpiryLeeway is how long before expiry a token is refreshed. Zero applies a default.
	ExpiryLeeway time.Duration `mapstructure:"expiry_leeway"`
}

// RelayClientConfig points the resolver at the relay.
type RelayClientConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
	// Token is a pre-issued bearer token. When empty the resolver logs in
	// with its Ethereum key.
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint64        `mapstructure:"max_retries"`
}

// QuoteConfig points the resolver at the liquidity/quote proxy.
type QuoteConfig struct {
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Rates are static quotes keyed "chain:asset/chain:asset", used when URL is empty.
	Rates map[string]string `mapstructure:"rates"`
}

// EngineConfig tunes the matching and execution engine.
type EngineConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval" default:"5s"`
	RecoveryInterval time.Duration `mapstructure:"recovery_interval" default:"30s"`
	MarginBps        uint32        `mapstructure:"margin_bps" default:"50" validate:"lte=10000"`
	MaxConcurrent    int           `mapstructure:"max_concurrent" default:"4" validate:"gt=0"`
	RetryAttempts    uint64        `mapstructure:"retry_attempts" default:"5"`
	RetryInitial     time.Duration `mapstructure:"retry_initial" default:"500ms"`
	RetryMax         time.Duration `mapstructure:"retry_max" default:"10s"`
	// ClockSkew is the margin, in seconds, kept before destination
	// cancellation when deciding whether to deploy a new escrow. Withdrawals
	// with a known secret are attempted until the ledger closes the window.
	ClockSkew uint64 `mapstructure:"clock_skew" default:"30"`
}

// DefaultEngineConfig returns an EngineConfig populated from its default tags.
func DefaultEngineConfig() EngineConfig {
	var c EngineConfig
	_ = defaults.Set(&c)
	return c
}

// LoadResolver loads resolver configuration from file and environment variables
func LoadResolver(configPath string) (*ResolverConfig, error) {
	v, err := newViper(configPath, setResolverDefaults)
	if err != nil {
		return nil, err
	}

	config := ResolverConfig{Engine: DefaultEngineConfig()}
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateResolver(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setResolverDefaults(v *viper.Viper) {
	setCommonDefaults(v, 8090, "resolver")

	// Ethereum defaults
	v.SetDefault("ethereum.gas_limit", 500000)
	v.SetDefault("ethereum.polling_interval", "5s")
	v.SetDefault("ethereum.start_block", 0)
	v.SetDefault("ethereum.confirmation_blocks", 1)

	// Stellar defaults
	v.SetDefault("stellar.request_timeout", "30s")
	v.SetDefault("stellar.max_retries", 3)

	v.SetDefault("relay.timeout", "10s")
	v.SetDefault("relay.max_retries", 3)

	v.SetDefault("quote.timeout", "5s")
	v.SetDefault("order.chain_id", 1)
}

func validateResolver(config *ResolverConfig) error {
	if err := structValidator.Struct(config); err != nil {
		return err
	}
	if config.Store.Driver == "postgres" && config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Engine.RetryInitial > config.Engine.RetryMax {
		return fmt.Errorf("engine.retry_initial must not exceed engine.retry_max")
	}
	return nil
}

// =============================================================================
// SHARED
// =============================================================================

var structValidator = validator.New()

func newViper(configPath string, setDefaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return v, nil
}

func setCommonDefaults(v *viper.Viper, port int, database string) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", port)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.database", database)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.dial_timeout", "5s")

	v.SetDefault("store.driver", "postgres")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
