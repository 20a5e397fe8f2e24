package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// KafkaConsumerConfig defines configuration for the anchor task consumer
type KafkaConsumerConfig struct {
	Brokers           []string `yaml:"brokers"`             // e.g., ["kafka1:9092", "kafka2:9092"]
	Topic             string   `yaml:"topic"`               // Topic to consume from
	GroupID           string   `yaml:"group_id"`            // Consumer group ID
	SessionTimeout    string   `yaml:"session_timeout"`     // Kafka session timeout
	HeartbeatInterval string   `yaml:"heartbeat_interval"`  // Kafka heartbeat interval
	MaxProcessingTime string   `yaml:"max_processing_time"` // Maximum time for processing a message
	AutoOffsetReset   string   `yaml:"auto_offset_reset"`   // earliest/latest
}

// SetDefaults sets reasonable default values for Kafka consumer configuration
func (c *KafkaConsumerConfig) SetDefaults() {
	if c.SessionTimeout == "" {
		c.SessionTimeout = "30s"
		fmt.Printf("Warning: kafka_consumer.session_timeout not set, defaulting to %s\n", c.SessionTimeout)
	}
	if c.HeartbeatInterval == "" {
		c.HeartbeatInterval = "3s"
		fmt.Printf("Warning: kafka_consumer.heartbeat_interval not set, defaulting to %s\n", c.HeartbeatInterval)
	}
	if c.MaxProcessingTime == "" {
		c.MaxProcessingTime = "5m"
		fmt.Printf("Warning: kafka_consumer.max_processing_time not set, defaulting to %s\n", c.MaxProcessingTime)
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = "earliest"
		fmt.Printf("Warning: kafka_consumer.auto_offset_reset not set, defaulting to %s\n", c.AutoOffsetReset)
	}
}

// WorkerConfig defines configuration for the anchoring worker pool
type WorkerConfig struct {
	Concurrency        int    `yaml:"concurrency"`          // Number of concurrent workers
	ConsumerRetryDelay string `yaml:"consumer_retry_delay"` // Delay when consumer encounters errors
	AnchorTimeout      string `yaml:"anchor_timeout"`       // Timeout for ledger submissions
	RequeueDelay       string `yaml:"requeue_delay"`        // Delay before re-publishing a failed task
	MaxTaskAttempts    int    `yaml:"max_task_attempts"`    // Attempts before a task is parked for manual retry
}

// SetDefaults sets reasonable default values for worker configuration
func (c *WorkerConfig) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
		fmt.Printf("Warning: worker.concurrency not set or invalid, defaulting to %d\n", c.Concurrency)
	}
	if c.ConsumerRetryDelay == "" {
		c.ConsumerRetryDelay = "5s"
		fmt.Printf("Warning: worker.consumer_retry_delay not set, defaulting to %s\n", c.ConsumerRetryDelay)
	}
	if c.AnchorTimeout == "" {
		c.AnchorTimeout = "45s"
		fmt.Printf("Warning: worker.anchor_timeout not set, defaulting to %s\n", c.AnchorTimeout)
	}
	if c.RequeueDelay == "" {
		c.RequeueDelay = "30s"
		fmt.Printf("Warning: worker.requeue_delay not set, defaulting to %s\n", c.RequeueDelay)
	}
	if c.MaxTaskAttempts <= 0 {
		c.MaxTaskAttempts = 5
		fmt.Printf("Warning: worker.max_task_attempts not set or invalid, defaulting to %d\n", c.MaxTaskAttempts)
	}
}

// AnchordMonitoringConfig defines monitoring configuration for the anchor engine
type AnchordMonitoringConfig struct {
	EnableMetrics   bool   `yaml:"enable_metrics"`
	MetricsPath     string `yaml:"metrics_path"`
	HealthCheckPath string `yaml:"health_check_path"`
	LogLevel        string `yaml:"log_level"`
}

// SetDefaults sets reasonable default values for monitoring configuration
func (c *AnchordMonitoringConfig) SetDefaults() {
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = "/health"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// AnchordConfig defines all configuration for the background anchoring engine
type AnchordConfig struct {
	Database DatabaseConfig `yaml:"database"`

	KafkaConsumer KafkaConsumerConfig `yaml:"kafka_consumer"`
	KafkaProducer KafkaProducerConfig `yaml:"kafka_producer"` // Re-publish channel for retried tasks

	Worker WorkerConfig `yaml:"worker"`

	// BackfillLimit caps how many approved reports the startup backfill scan
	// examines for missing anchors.
	BackfillLimit int `yaml:"backfill_limit"`

	Monitoring AnchordMonitoringConfig `yaml:"monitoring"`

	LedgerClientConfigPath string `yaml:"ledger_client_config_path"`
}

// LoadAnchordConfig loads configuration from the specified YAML file path
func LoadAnchordConfig(path string) (*AnchordConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg AnchordConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	cfg.Database.SetDefaults()
	cfg.KafkaConsumer.SetDefaults()
	cfg.Worker.SetDefaults()
	cfg.Monitoring.SetDefaults()

	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = 500
		fmt.Printf("Warning: backfill_limit not set or invalid, defaulting to %d\n", cfg.BackfillLimit)
	}

	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("database configuration error: %w", err)
	}

	return &cfg, nil
}
