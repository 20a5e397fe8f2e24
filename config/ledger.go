package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// LedgerConfig stores common ledger configuration across all ledger types
type LedgerConfig struct {
	// --- Ledger Type Selection ---
	LedgerType string `yaml:"ledger_type"` // "chainmaker", "memory"

	// --- Common Behavior Configuration ---
	RetryLimit    int `yaml:"retry_limit"`
	RetryInterval int `yaml:"retry_interval"` // milliseconds between SDK retries
	// ConfirmTimeoutSeconds bounds how long Submit waits for a transaction
	// to be confirmed. This is deliberately distinct from the storage
	// client's timeout: anchoring is the longest-latency step.
	ConfirmTimeoutSeconds int `yaml:"confirm_timeout_seconds"`
	LookupTimeoutSeconds  int `yaml:"lookup_timeout_seconds"`

	// --- Chain-specific Configuration ---
	// Loaded separately based on ledger type.
	ChainSpecific any `yaml:"-"`
}

// SetDefaults sets sensible default values for the ledger configuration
func (c *LedgerConfig) SetDefaults() {
	if c.ConfirmTimeoutSeconds <= 0 {
		c.ConfirmTimeoutSeconds = 30
		fmt.Printf("Warning: ledger.confirm_timeout_seconds not set, defaulting to %d\n", c.ConfirmTimeoutSeconds)
	}
	if c.LookupTimeoutSeconds <= 0 {
		c.LookupTimeoutSeconds = 10
		fmt.Printf("Warning: ledger.lookup_timeout_seconds not set, defaulting to %d\n", c.LookupTimeoutSeconds)
	}
}

// LoadLedgerConfig loads ledger configuration from the specified YAML file path
func LoadLedgerConfig(path string) (*LedgerConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config file: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", absPath, err)
	}

	var cfg LedgerConfig
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}
	cfg.SetDefaults()

	return &cfg, nil
}
