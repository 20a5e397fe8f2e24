package config

import "fmt"

// ObjectStoreConfig defines the S3-compatible object store holding the
// content-addressed report snapshots
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// SetDefaults sets sensible default values for the object store configuration
func (c *ObjectStoreConfig) SetDefaults() {
	if c.Bucket == "" {
		c.Bucket = "report-snapshots"
		fmt.Printf("Warning: object_store.bucket not set, defaulting to %s\n", c.Bucket)
	}
}

// Validate validates the object store configuration
func (c *ObjectStoreConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("object store endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("object store credentials are required")
	}
	return nil
}
