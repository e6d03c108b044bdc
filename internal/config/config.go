// Package config loads faucet configuration from the environment once at
// process start.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Ledger backends.
const (
	LedgerDynamoDB = "dynamodb"
	LedgerSQLite   = "sqlite"
)

// Transient failure policies.
const (
	PolicyRetryImmediately = "retry-immediately"
	PolicyConsumeCooldown  = "consume-cooldown"
)

// NetworkEnv is the raw per-network configuration. Empty values fall back to
// the network registry defaults.
type NetworkEnv struct {
	RPCURL     string `env:"RPC_URL"`
	RPCToken   Secret `env:"RPC_TOKEN"`
	DripAmount string `env:"DRIP_AMOUNT"`
	Encoding   string `env:"ENCODING"`
}

// Config is the process-wide configuration. It is built once and passed into
// constructors.
type Config struct {
	RunLocal  bool   `env:"RUN_LOCAL"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	AWSRegion           string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointOverride string `env:"AWS_ENDPOINT_OVERRIDE"`

	LedgerBackend    string `env:"LEDGER_BACKEND" envDefault:"dynamodb"`
	LedgerTable      string `env:"DRIP_LEDGER_TABLE" envDefault:"faucet-drip-ledger"`
	LedgerSQLitePath string `env:"LEDGER_SQLITE_PATH" envDefault:"faucet-ledger.db"`

	AuditQueueURL    string `env:"FAUCET_AUDIT_QUEUE_URL"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"FilecoinFaucet"`

	RateLimiterDisabled    bool   `env:"RATE_LIMITER_DISABLED"`
	RateLimitSeconds       int    `env:"RATE_LIMIT_SECONDS" envDefault:"600"`
	StaleLeaseSeconds      int    `env:"STALE_LEASE_SECONDS" envDefault:"120"`
	TransientFailurePolicy string `env:"TRANSIENT_FAILURE_POLICY" envDefault:"retry-immediately"`

	HistoryMaxRecords   int `env:"HISTORY_MAX_RECORDS" envDefault:"20"`
	HistoryDefaultLimit int `env:"HISTORY_DEFAULT_LIMIT" envDefault:"10"`
	HistoryMaxLimit     int `env:"HISTORY_MAX_LIMIT" envDefault:"50"`

	RPCTimeout time.Duration `env:"RPC_TIMEOUT" envDefault:"15s"`
	TopUpURL   string        `env:"FAUCET_TOPUP_REQ_URL"`

	// Funding keys: hex-encoded Lotus KeyInfo JSON.
	CalibnetSecret Secret `env:"SECRET_WALLET"`
	MainnetSecret  Secret `env:"SECRET_MAINNET_WALLET"`

	CalibnetTxURL string `env:"FAUCET_TX_URL_CALIBNET"`
	MainnetTxURL  string `env:"FAUCET_TX_URL_MAINNET"`

	Calibnet NetworkEnv `envPrefix:"CALIBNET_"`
	Mainnet  NetworkEnv `envPrefix:"MAINNET_"`
}

// Cooldown returns the drip cooldown window.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.RateLimitSeconds) * time.Second
}

// StaleLeaseAfter returns the age after which a pending lease may be reclaimed.
func (c Config) StaleLeaseAfter() time.Duration {
	return time.Duration(c.StaleLeaseSeconds) * time.Second
}

// Load reads configuration from the environment. When RUN_LOCAL=true an
// optional .env file in the working directory is loaded first.
func Load() (Config, error) {
	if strings.EqualFold(os.Getenv("RUN_LOCAL"), "true") {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return Parse()
}

// Parse reads configuration from the current environment without touching
// .env files.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LedgerBackend {
	case LedgerDynamoDB:
		if strings.TrimSpace(c.LedgerTable) == "" {
			return fmt.Errorf("config: DRIP_LEDGER_TABLE is required for the dynamodb ledger")
		}
	case LedgerSQLite:
		if strings.TrimSpace(c.LedgerSQLitePath) == "" {
			return fmt.Errorf("config: LEDGER_SQLITE_PATH is required for the sqlite ledger")
		}
	default:
		return fmt.Errorf("config: unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	switch c.TransientFailurePolicy {
	case PolicyRetryImmediately, PolicyConsumeCooldown:
	default:
		return fmt.Errorf("config: unknown TRANSIENT_FAILURE_POLICY %q", c.TransientFailurePolicy)
	}
	if c.RateLimitSeconds < 0 {
		return fmt.Errorf("config: RATE_LIMIT_SECONDS must not be negative")
	}
	if c.StaleLeaseSeconds <= 0 {
		return fmt.Errorf("config: STALE_LEASE_SECONDS must be positive")
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("config: RPC_TIMEOUT must be positive")
	}
	if c.HistoryMaxRecords <= 0 || c.HistoryMaxLimit <= 0 || c.HistoryDefaultLimit <= 0 {
		return fmt.Errorf("config: history limits must be positive")
	}
	if c.HistoryDefaultLimit > c.HistoryMaxLimit {
		return fmt.Errorf("config: HISTORY_DEFAULT_LIMIT exceeds HISTORY_MAX_LIMIT")
	}
	return nil
}
