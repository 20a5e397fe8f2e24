package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// KafkaProducerConfig defines configuration for the anchor task producer
type KafkaProducerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// Batch processing settings
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	BatchBytes   int           `yaml:"batch_bytes"`

	// Reliability settings
	RequiredAcks string `yaml:"required_acks"`
	Async        bool   `yaml:"async"`

	// Performance settings
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// ApprovalConfig bounds the two external calls of the approval transition
type ApprovalConfig struct {
	StorageTimeout string `yaml:"storage_timeout"` // Timeout for the snapshot store upload
	AnchorTimeout  string `yaml:"anchor_timeout"`  // Timeout for the ledger submission
}

// SetDefaults sets reasonable default values for approval configuration
func (c *ApprovalConfig) SetDefaults() {
	if c.StorageTimeout == "" {
		c.StorageTimeout = "15s"
		fmt.Printf("Warning: approval.storage_timeout not set, defaulting to %s\n", c.StorageTimeout)
	}
	if c.AnchorTimeout == "" {
		c.AnchorTimeout = "45s"
		fmt.Printf("Warning: approval.anchor_timeout not set, defaulting to %s\n", c.AnchorTimeout)
	}
}

// HttpServerConfig defines HTTP server configuration
type HttpServerConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// GatewayMonitoringConfig defines monitoring configuration for the gateway
type GatewayMonitoringConfig struct {
	EnableMetrics   bool   `yaml:"enable_metrics"`
	MetricsPath     string `yaml:"metrics_path"`
	HealthCheckPath string `yaml:"health_check_path"`
}

// GatewayConfig defines all configurations required for the report gateway
type GatewayConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr"`

	Database      DatabaseConfig          `yaml:"database"`
	ObjectStore   ObjectStoreConfig       `yaml:"object_store"`
	KafkaProducer KafkaProducerConfig     `yaml:"kafka_producer"`
	Approval      ApprovalConfig          `yaml:"approval"`
	HttpServer    HttpServerConfig        `yaml:"http_server"`
	Monitoring    GatewayMonitoringConfig `yaml:"monitoring"`

	// LedgerClientConfigPath points at the shared ledger client config used
	// for anchoring and verification lookups.
	LedgerClientConfigPath string `yaml:"ledger_client_config_path"`
}

// LoadGatewayConfig loads gateway configuration from the specified YAML file path
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config file '%s': %w", path, err)
	}

	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse gateway YAML config file: %w", err)
	}

	cfg.Database.SetDefaults()
	cfg.ObjectStore.SetDefaults()
	cfg.Approval.SetDefaults()

	if cfg.HttpListenAddr == "" {
		return nil, fmt.Errorf("configuration error: http_listen_addr must be configured")
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("database configuration error: %w", err)
	}
	if err := cfg.ObjectStore.Validate(); err != nil {
		return nil, fmt.Errorf("object store configuration error: %w", err)
	}

	return &cfg, nil
}
