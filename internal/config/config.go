// Package config reads the coordinator's configuration surface from the
// process environment, the way a long-lived service reads its settings:
// a single typed struct with documented defaults and a validation pass
// before use.
package config

import (
	"encoding/hex"
	"os"
	"strconv"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

// Config is the full set of recognized coordinator configuration keys.
type Config struct {
	MultisigSetupTimeout    time.Duration
	FundingTimeout          time.Duration
	TransactionTimeout      time.Duration
	DisputeTimeout          time.Duration
	TimeoutPollInterval     time.Duration
	TimeoutWarningThreshold time.Duration
	BlockchainPollInterval  time.Duration
	RequiredConfirmations   int
	SessionPoolMax          int
	SessionPoolTTL          time.Duration
	RPCPorts                []int
	ArbiterPubkey           [32]byte
	DBEncryptionKey         [32]byte
	Production              bool
}

// defaults applied when the corresponding environment variable is unset.
const (
	defaultMultisigSetupTimeoutSecs    = 3600
	defaultFundingTimeoutSecs          = 86400
	defaultTransactionTimeoutSecs      = 21600
	defaultDisputeTimeoutSecs          = 604800
	defaultTimeoutPollIntervalSecs     = 60
	defaultTimeoutWarningThresholdSecs = 3600
	defaultBlockchainPollIntervalSecs  = 30
	defaultRequiredConfirmations       = 10
	defaultSessionPoolMax              = 10
	defaultSessionPoolTTLSecs          = 7200
)

// Load reads Config from the process environment, applying the package
// defaults for any key left unset. It does not itself enforce the
// placeholder blocklist - call Validate for that, since whether a
// violation aborts or warns depends on the build mode.
func Load() (*Config, error) {
	cfg := &Config{
		MultisigSetupTimeout:    secs(envInt("MULTISIG_SETUP_TIMEOUT_SECS", defaultMultisigSetupTimeoutSecs)),
		FundingTimeout:          secs(envInt("FUNDING_TIMEOUT_SECS", defaultFundingTimeoutSecs)),
		TransactionTimeout:      secs(envInt("TRANSACTION_TIMEOUT_SECS", defaultTransactionTimeoutSecs)),
		DisputeTimeout:          secs(envInt("DISPUTE_TIMEOUT_SECS", defaultDisputeTimeoutSecs)),
		TimeoutPollInterval:     secs(envInt("TIMEOUT_POLL_INTERVAL_SECS", defaultTimeoutPollIntervalSecs)),
		TimeoutWarningThreshold: secs(envInt("TIMEOUT_WARNING_THRESHOLD_SECS", defaultTimeoutWarningThresholdSecs)),
		BlockchainPollInterval:  secs(envInt("BLOCKCHAIN_POLL_INTERVAL_SECS", defaultBlockchainPollIntervalSecs)),
		RequiredConfirmations:   envInt("REQUIRED_CONFIRMATIONS", defaultRequiredConfirmations),
		SessionPoolMax:          envInt("SESSION_POOL_MAX", defaultSessionPoolMax),
		SessionPoolTTL:          secs(envInt("SESSION_POOL_TTL_SECS", defaultSessionPoolTTLSecs)),
		Production:              os.Getenv("APP_ENV") == "production",
	}

	ports, err := parsePorts(os.Getenv("RPC_PORTS"))
	if err != nil {
		return nil, err
	}
	cfg.RPCPorts = ports

	if raw := os.Getenv("ARBITER_PUBKEY"); raw != "" {
		key, err := decodeHex32("ARBITER_PUBKEY", raw)
		if err != nil {
			return nil, err
		}
		cfg.ArbiterPubkey = key
	}

	if raw := os.Getenv("DB_ENCRYPTION_KEY"); raw != "" {
		key, err := decodeHex32("DB_ENCRYPTION_KEY", raw)
		if err != nil {
			return nil, err
		}
		cfg.DBEncryptionKey = key
	}

	return cfg, nil
}

// Validate runs the placeholder blocklist against the raw environment,
// then rejects internally-inconsistent values. warn receives
// development-mode warnings when Production is false.
func (c *Config) Validate(warn func(string)) error {
	raw := map[string]string{
		"DB_ENCRYPTION_KEY": os.Getenv("DB_ENCRYPTION_KEY"),
		"ARBITER_PUBKEY":    os.Getenv("ARBITER_PUBKEY"),
	}
	if err := ValidateAllCritical(raw, c.Production, warn); err != nil {
		return err
	}
	if c.SessionPoolMax <= 0 {
		return coreerrors.Validation("SESSION_POOL_MAX must be positive, got %d", c.SessionPoolMax)
	}
	if c.RequiredConfirmations <= 0 {
		return coreerrors.Validation("REQUIRED_CONFIRMATIONS must be positive, got %d", c.RequiredConfirmations)
	}
	return nil
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func parsePorts(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	var ports []int
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			tok := raw[start:i]
			start = i + 1
			if tok == "" {
				continue
			}
			p, err := strconv.Atoi(tok)
			if err != nil {
				return nil, coreerrors.Validation("RPC_PORTS contains non-numeric port %q", tok)
			}
			ports = append(ports, p)
		}
	}
	return ports, nil
}

func decodeHex32(name, raw string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(raw)
	if err != nil {
		return out, coreerrors.Validation("%s is not valid hex: %v", name, err)
	}
	if len(b) != 32 {
		return out, coreerrors.Validation("%s must decode to 32 bytes, got %d", name, len(b))
	}
	copy(out[:], b)
	return out, nil
}
