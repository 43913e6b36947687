package config

import (
	"fmt"
	"time"
)

// WebServerConfig configures the HTTP control plane and preview WebSocket.
type WebServerConfig struct {
	Host       string    `yaml:"host" json:"host"`
	Port       int       `yaml:"port" json:"port"`
	EnableTLS  bool      `yaml:"enable_tls" json:"enable_tls"`
	TLS        TLSConfig `yaml:"tls" json:"tls"`
	EnableCORS bool      `yaml:"enable_cors" json:"enable_cors"`

	// ReadTimeout and WriteTimeout bound HTTP request handling. The preview
	// WebSocket hijacks the connection and is not subject to WriteTimeout.
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// MaxPreviewClients caps concurrent preview WebSocket sessions.
	MaxPreviewClients int `yaml:"max_preview_clients" json:"max_preview_clients"`
}

// TLSConfig holds the TLS key pair paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// DefaultWebServerConfig returns the default web server configuration.
func DefaultWebServerConfig() *WebServerConfig {
	config := &WebServerConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults sets default values
func (c *WebServerConfig) SetDefaults() {
	c.Host = "0.0.0.0"
	c.Port = 8080
	c.EnableTLS = false
	c.EnableCORS = true
	c.ReadTimeout = 15 * time.Second
	c.WriteTimeout = 15 * time.Second
	c.MaxPreviewClients = 8
	c.TLS = TLSConfig{}
}

// Validate validates the web server configuration
func (c *WebServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Port)
	}

	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if c.EnableTLS {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key file is required when TLS is enabled")
		}
	}

	if c.MaxPreviewClients < 1 {
		return fmt.Errorf("max preview clients must be at least 1, got: %d", c.MaxPreviewClients)
	}

	return nil
}

// Merge merges another web server configuration into this one
func (c *WebServerConfig) Merge(other *WebServerConfig) error {
	if other == nil {
		return nil
	}

	if other.Host != "" {
		c.Host = other.Host
	}
	if other.Port != 0 {
		c.Port = other.Port
	}
	c.EnableTLS = other.EnableTLS
	if other.TLS.CertFile != "" {
		c.TLS.CertFile = other.TLS.CertFile
	}
	if other.TLS.KeyFile != "" {
		c.TLS.KeyFile = other.TLS.KeyFile
	}
	c.EnableCORS = other.EnableCORS
	if other.ReadTimeout != 0 {
		c.ReadTimeout = other.ReadTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.MaxPreviewClients != 0 {
		c.MaxPreviewClients = other.MaxPreviewClients
	}

	return c.Validate()
}
