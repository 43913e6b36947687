package config

import "fmt"

// MetricsConfig configures Prometheus metrics exposure. Pipeline counters are
// always collected; the external listener for scrapers is optional.
type MetricsConfig struct {
	External ExternalMetricsConfig `yaml:"external" json:"external"`
}

// ExternalMetricsConfig configures the standalone /metrics HTTP listener.
type ExternalMetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() *MetricsConfig {
	config := &MetricsConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults sets default values
func (c *MetricsConfig) SetDefaults() {
	c.External = ExternalMetricsConfig{
		Enabled: false,
		Host:    "0.0.0.0",
		Port:    9090,
		Path:    "/metrics",
	}
}

// Validate validates the metrics configuration
func (c *MetricsConfig) Validate() error {
	if !c.External.Enabled {
		return nil
	}

	if c.External.Port < 1 || c.External.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d (must be between 1 and 65535)", c.External.Port)
	}

	if c.External.Host == "" {
		return fmt.Errorf("metrics host cannot be empty")
	}

	if c.External.Path == "" {
		c.External.Path = "/metrics"
	}

	return nil
}

// Merge merges another metrics configuration into this one
func (c *MetricsConfig) Merge(other *MetricsConfig) error {
	if other == nil {
		return nil
	}

	c.External.Enabled = other.External.Enabled
	if other.External.Host != "" {
		c.External.Host = other.External.Host
	}
	if other.External.Port != 0 {
		c.External.Port = other.External.Port
	}
	if other.External.Path != "" {
		c.External.Path = other.External.Path
	}

	return c.Validate()
}

// GetExternalEndpoint returns the full external metrics endpoint address.
func (c *MetricsConfig) GetExternalEndpoint() string {
	return fmt.Sprintf("http://%s:%d%s", c.External.Host, c.External.Port, c.External.Path)
}
