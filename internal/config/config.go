// Package config aggregates the configuration modules for the ndiview daemon
// and sets up the logging system. Every module follows the same pattern:
// a Default constructor, SetDefaults, Validate, and Merge.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the aggregate daemon configuration.
type Config struct {
	// Pipeline configures the stream acquisition and delivery pipeline
	Pipeline *PipelineConfig `yaml:"pipeline" json:"pipeline"`

	// Transport selects the media transport backend
	Transport *TransportConfig `yaml:"transport" json:"transport"`

	// WebServer configures the HTTP control plane
	WebServer *WebServerConfig `yaml:"webserver" json:"webserver"`

	// Metrics configures Prometheus metrics exposure
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configures the logrus logging system
	Logging *LoggingConfig `yaml:"logging" json:"logging"`

	// Lifecycle configures startup/shutdown behavior
	Lifecycle LifecycleConfig `yaml:"lifecycle" json:"lifecycle"`
}

// LifecycleConfig configures graceful shutdown behavior.
type LifecycleConfig struct {
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// StopJoinTimeout bounds how long Stop waits for the background loops to
	// exit before releasing transport resources anyway.
	StopJoinTimeout time.Duration `yaml:"stop_join_timeout" json:"stop_join_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Pipeline:  DefaultPipelineConfig(),
		Transport: DefaultTransportConfig(),
		WebServer: DefaultWebServerConfig(),
		Metrics:   DefaultMetricsConfig(),
		Logging:   DefaultLoggingConfig(),
	}

	cfg.Lifecycle.ShutdownTimeout = 30 * time.Second
	cfg.Lifecycle.StopJoinTimeout = 5 * time.Second

	return cfg
}

// LoadConfigFromFile loads configuration from a YAML file on top of defaults.
func LoadConfigFromFile(filename string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Pipeline != nil {
		if err := c.Pipeline.Validate(); err != nil {
			return fmt.Errorf("invalid pipeline config: %w", err)
		}
	}

	if c.Transport != nil {
		if err := c.Transport.Validate(); err != nil {
			return fmt.Errorf("invalid transport config: %w", err)
		}
	}

	if c.WebServer != nil {
		if err := c.WebServer.Validate(); err != nil {
			return fmt.Errorf("invalid webserver config: %w", err)
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("invalid metrics config: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return fmt.Errorf("invalid logging config: %w", err)
		}
	}

	if err := c.validateLifecycleConfig(); err != nil {
		return fmt.Errorf("invalid lifecycle config: %w", err)
	}

	if err := c.validateCrossModuleCompatibility(); err != nil {
		return fmt.Errorf("module compatibility error: %w", err)
	}

	return nil
}

// validateLifecycleConfig validates lifecycle settings
func (c *Config) validateLifecycleConfig() error {
	if c.Lifecycle.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got: %v", c.Lifecycle.ShutdownTimeout)
	}

	if c.Lifecycle.StopJoinTimeout <= 0 {
		return fmt.Errorf("stop join timeout must be positive, got: %v", c.Lifecycle.StopJoinTimeout)
	}

	if c.Lifecycle.StopJoinTimeout > c.Lifecycle.ShutdownTimeout {
		return fmt.Errorf("stop join timeout (%v) must not exceed shutdown timeout (%v)",
			c.Lifecycle.StopJoinTimeout, c.Lifecycle.ShutdownTimeout)
	}

	return nil
}

// validateCrossModuleCompatibility checks for conflicts between modules
func (c *Config) validateCrossModuleCompatibility() error {
	usedPorts := make(map[int]string)

	if c.WebServer != nil {
		usedPorts[c.WebServer.Port] = "webserver"
	}

	if c.Metrics != nil && c.Metrics.External.Enabled {
		if existing, exists := usedPorts[c.Metrics.External.Port]; exists {
			return fmt.Errorf("port conflict: metrics port %d already used by %s",
				c.Metrics.External.Port, existing)
		}
		usedPorts[c.Metrics.External.Port] = "metrics"
	}

	return nil
}

// Merge merges another configuration into this one
func (c *Config) Merge(other *Config) error {
	if other == nil {
		return nil
	}

	if other.Pipeline != nil {
		if c.Pipeline == nil {
			c.Pipeline = DefaultPipelineConfig()
		}
		if err := c.Pipeline.Merge(other.Pipeline); err != nil {
			return fmt.Errorf("failed to merge pipeline config: %w", err)
		}
	}

	if other.Transport != nil {
		if c.Transport == nil {
			c.Transport = DefaultTransportConfig()
		}
		if err := c.Transport.Merge(other.Transport); err != nil {
			return fmt.Errorf("failed to merge transport config: %w", err)
		}
	}

	if other.WebServer != nil {
		if c.WebServer == nil {
			c.WebServer = DefaultWebServerConfig()
		}
		if err := c.WebServer.Merge(other.WebServer); err != nil {
			return fmt.Errorf("failed to merge webserver config: %w", err)
		}
	}

	if other.Metrics != nil {
		if c.Metrics == nil {
			c.Metrics = DefaultMetricsConfig()
		}
		if err := c.Metrics.Merge(other.Metrics); err != nil {
			return fmt.Errorf("failed to merge metrics config: %w", err)
		}
	}

	if other.Logging != nil {
		if c.Logging == nil {
			c.Logging = DefaultLoggingConfig()
		}
		if err := c.Logging.Merge(other.Logging); err != nil {
			return fmt.Errorf("failed to merge logging config: %w", err)
		}
	}

	if other.Lifecycle.ShutdownTimeout != 0 {
		c.Lifecycle.ShutdownTimeout = other.Lifecycle.ShutdownTimeout
	}
	if other.Lifecycle.StopJoinTimeout != 0 {
		c.Lifecycle.StopJoinTimeout = other.Lifecycle.StopJoinTimeout
	}

	return nil
}

// String returns a short summary of the configuration.
func (c *Config) String() string {
	webInfo := "disabled"
	if c.WebServer != nil {
		webInfo = fmt.Sprintf("%s:%d", c.WebServer.Host, c.WebServer.Port)
	}

	pipelineInfo := "disabled"
	if c.Pipeline != nil {
		pipelineInfo = fmt.Sprintf("queue=%d skip=%d maxfps=%d",
			c.Pipeline.QueueSize, c.Pipeline.FrameSkip, c.Pipeline.MaxFPS)
	}

	return fmt.Sprintf("Config{WebServer: %s, Pipeline: %s}", webInfo, pipelineInfo)
}

// SaveToFile writes the configuration to a YAML file.
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
