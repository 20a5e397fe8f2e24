package ledger

import (
	"fmt"
	"log"
	"path/filepath"

	"pvchain/config"
	"pvchain/ledger/client/chainmaker"
	"pvchain/ledger/client/memledger"
)

// LedgerType represents the type of ledger client
type LedgerType string

const (
	ChainMaker LedgerType = "chainmaker"
	Memory     LedgerType = "memory"
	// Future ledger types can be added here:
	// Ethereum LedgerType = "ethereum"
)

// LoadChainSpecificConfig loads chain-specific configuration based on ledger type
func LoadChainSpecificConfig(ledgerType string, configDir string) (any, error) {
	switch LedgerType(ledgerType) {
	case ChainMaker, "":
		// Default to ChainMaker if not specified
		chainmakerConfigPath := filepath.Join(configDir, "clients", "chainmaker.yml")
		return chainmaker.LoadChainMakerConfig(chainmakerConfigPath)
	case Memory:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", ledgerType)
	}
}

// NewLedgerClient creates a ledger client based on the configuration
func NewLedgerClient(cfg *config.LedgerConfig, logger *log.Logger) (LedgerClient, error) {
	switch LedgerType(cfg.LedgerType) {
	case ChainMaker, "":
		return chainmaker.NewClient(cfg, logger)
	case Memory:
		logger.Println("Using in-memory ledger; commitments will not survive restarts.")
		return memledger.New(logger), nil
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", cfg.LedgerType)
	}
}

// NewLedgerClientFromFile creates a ledger client from configuration files
func NewLedgerClientFromFile(configPath string, logger *log.Logger) (LedgerClient, error) {
	cfg, err := config.LoadLedgerConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load common config from file '%s': %w", configPath, err)
	}

	configDir := filepath.Dir(configPath)
	chainSpecificCfg, err := LoadChainSpecificConfig(cfg.LedgerType, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain-specific config: %w", err)
	}

	cfg.ChainSpecific = chainSpecificCfg
	return NewLedgerClient(cfg, logger)
}
