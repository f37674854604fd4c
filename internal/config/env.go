package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Config contains all configuration parameters for the application.
// Note: the keystore password is prompted at runtime, never read from env.
type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	SolanaFilePath string `envconfig:"SOLANA_FILE_PATH" default:"wallet.cwt"`
	SolanaRPCURL   string `envconfig:"SOLANA_RPC_URL" default:"https://api.devnet.solana.com"`
	Commitment     string `envconfig:"COMMITMENT" default:"confirmed"`

	RPCTimeout       time.Duration `envconfig:"RPC_TIMEOUT" default:"15s"`
	RPCMaxRetries    int           `envconfig:"RPC_MAX_RETRIES" default:"3"`
	RPCRetryDelay    time.Duration `envconfig:"RPC_RETRY_DELAY" default:"500ms"`
	RPCMaxRetryDelay time.Duration `envconfig:"RPC_MAX_RETRY_DELAY" default:"8s"`

	SubmitMaxAttempts int           `envconfig:"SUBMIT_MAX_ATTEMPTS" default:"4"`
	PollInterval      time.Duration `envconfig:"POLL_INTERVAL" default:"500ms"`
	MaxPollInterval   time.Duration `envconfig:"MAX_POLL_INTERVAL" default:"4s"`
	// ~150 blocks at ~400ms
	BlockhashValidity time.Duration `envconfig:"BLOCKHASH_VALIDITY" default:"60s"`

	FeeLamports          uint64 `envconfig:"FEE_LAMPORTS" default:"5000"`
	MissingAccountAsZero bool   `envconfig:"MISSING_ACCOUNT_AS_ZERO" default:"true"`

	// Optional integrations, disabled when empty
	DatabaseURL string `envconfig:"DATABASE_URL"`
	NATSURL     string `envconfig:"NATS_URL"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks relations between fields that envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Errorf("COMMITMENT must be processed, confirmed or finalized, got %q", c.Commitment))
	}
	if c.RPCMaxRetries < 1 {
		errs = append(errs, errors.New("RPC_MAX_RETRIES must be at least 1"))
	}
	if c.SubmitMaxAttempts < 1 {
		errs = append(errs, errors.New("SUBMIT_MAX_ATTEMPTS must be at least 1"))
	}
	if c.PollInterval <= 0 || c.MaxPollInterval < c.PollInterval {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL (%v) must be positive and not above MAX_POLL_INTERVAL (%v)",
			c.PollInterval, c.MaxPollInterval))
	}
	if c.BlockhashValidity <= 0 {
		errs = append(errs, errors.New("BLOCKHASH_VALIDITY must be positive"))
	}
	if c.RPCTimeout <= 0 {
		errs = append(errs, errors.New("RPC_TIMEOUT must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// PromptForPassword prompts the user for the wallet password in the terminal.
// The password is read without echoing (hidden input).
// Caller must zero the returned slice after use for security.
func PromptForPassword(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run the app interactively to enter password")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	return raw, nil
}
