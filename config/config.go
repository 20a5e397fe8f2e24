package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the complete application configuration
type Config struct {
	Gateway *GatewayConfig
	Anchord *AnchordConfig
	Ledger  *LedgerConfig
}

// LoadConfig loads all configuration files from a directory
func LoadConfig(configDir string) (*Config, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config directory: %w", err)
	}

	config := &Config{}

	// Load gateway config
	gatewayPath := filepath.Join(absDir, "gateway.defaults.yml")
	if _, err := os.Stat(gatewayPath); err == nil {
		gatewayCfg, err := LoadGatewayConfig(gatewayPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load gateway config: %w", err)
		}
		config.Gateway = gatewayCfg
	}

	// Load anchor engine config
	anchordPath := filepath.Join(absDir, "anchord.defaults.yml")
	if _, err := os.Stat(anchordPath); err == nil {
		anchordCfg, err := LoadAnchordConfig(anchordPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load anchord config: %w", err)
		}
		config.Anchord = anchordCfg
	}

	// Load ledger client config
	ledgerPath := filepath.Join(absDir, "ledger_client.yml")
	if _, err := os.Stat(ledgerPath); err == nil {
		ledgerCfg, err := LoadLedgerConfig(ledgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger config: %w", err)
		}
		config.Ledger = ledgerCfg
	}

	return config, nil
}
