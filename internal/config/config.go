package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	LedgerHedera = "hedera"
	LedgerMemory = "memory"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `envconfig:"APP_NAME" default:"hbarwallet"`
	AppEnv         string        `envconfig:"APP_ENV" default:"development"`
	Port           string        `envconfig:"PORT" default:"8080"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	ShutdownPeriod time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
	RefreshSecret   string        `envconfig:"REFRESH_SECRET" required:"true"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"720h"`

	LedgerBackend        string        `envconfig:"LEDGER_BACKEND" default:"memory"`
	HederaNetwork        string        `envconfig:"HEDERA_NETWORK" default:"testnet"`
	HederaOperatorID     string        `envconfig:"HEDERA_OPERATOR_ID"`
	HederaOperatorKey    string        `envconfig:"HEDERA_OPERATOR_KEY"`
	HederaReceiptTimeout time.Duration `envconfig:"HEDERA_RECEIPT_TIMEOUT" default:"30s"`
	ExplorerURL          string        `envconfig:"LEDGER_EXPLORER_URL" default:"https://hashscan.io/testnet"`

	StartingBalance  decimal.Decimal `envconfig:"WALLET_STARTING_BALANCE" default:"10"`
	PlatformFee      decimal.Decimal `envconfig:"PLATFORM_FEE" default:"0.0001"`
	FeeAccountID     string          `envconfig:"PLATFORM_FEE_ACCOUNT_ID" required:"true"`
	KeyEncryptionKey string          `envconfig:"KEY_ENCRYPTION_KEY"`

	ReconcileSchedule     string `envconfig:"RECONCILE_SCHEDULE" default:"@every 1m"`
	TransferRatePerMinute int    `envconfig:"TRANSFER_RATE_PER_MINUTE" default:"30"`
	LoginAttemptsPerMin   int    `envconfig:"LOGIN_ATTEMPTS_PER_MINUTE" default:"5"`

	// AdminEmails may read every wallet's transactions.
	AdminEmails []string `envconfig:"ADMIN_EMAILS"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"wallet.notifications"`
	OTELEndpoint string   `envconfig:"OTEL_ENDPOINT"`
}

// Load reads an optional .env file and the environment into a Config.
// Missing or malformed required values are reported as errors.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LedgerBackend = strings.ToLower(cfg.LedgerBackend)
	for i, email := range cfg.AdminEmails {
		cfg.AdminEmails[i] = strings.ToLower(strings.TrimSpace(email))
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" || c.RefreshSecret == "" {
		return errors.New("JWT_SECRET and REFRESH_SECRET must not be empty")
	}
	if c.FeeAccountID == "" {
		return errors.New("PLATFORM_FEE_ACCOUNT_ID must not be empty")
	}

	switch c.LedgerBackend {
	case LedgerMemory:
	case LedgerHedera:
		if c.HederaOperatorID == "" || c.HederaOperatorKey == "" {
			return errors.New("HEDERA_OPERATOR_ID and HEDERA_OPERATOR_KEY must be set when LEDGER_BACKEND=hedera")
		}
		if c.KeyEncryptionKey == "" {
			return errors.New("KEY_ENCRYPTION_KEY must be set when LEDGER_BACKEND=hedera")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}

	if c.PlatformFee.IsNegative() {
		return errors.New("PLATFORM_FEE must not be negative")
	}
	if c.StartingBalance.IsNegative() {
		return errors.New("WALLET_STARTING_BALANCE must not be negative")
	}

	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set")
		}
		if c.RedisURL == "" {
			return errors.New("REDIS_URL must be set")
		}
	}
	return nil
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
