package config

import (
	"fmt"

	"github.com/open-beagle/ndiview/internal/transport/sim"
)

// TransportKindSim selects the built-in synthetic transport.
const TransportKindSim = "sim"

// TransportConfig selects and configures the media transport backend.
type TransportConfig struct {
	// Kind names the backend. Only "sim" is built in; real SDK bindings
	// register under their own kind.
	Kind string `yaml:"kind" json:"kind"`

	// Sim configures the synthetic backend.
	Sim *sim.Config `yaml:"sim" json:"sim"`
}

// DefaultTransportConfig returns the default transport configuration.
func DefaultTransportConfig() *TransportConfig {
	return &TransportConfig{
		Kind: TransportKindSim,
		Sim:  sim.DefaultConfig(),
	}
}

// Validate checks the transport configuration.
func (c *TransportConfig) Validate() error {
	switch c.Kind {
	case TransportKindSim:
		if c.Sim == nil {
			return fmt.Errorf("sim transport selected but not configured")
		}
		return c.Sim.Validate()
	default:
		return fmt.Errorf("unknown transport kind %q", c.Kind)
	}
}

// Merge merges another transport configuration into this one.
func (c *TransportConfig) Merge(other *TransportConfig) error {
	if other == nil {
		return nil
	}
	if other.Kind != "" {
		c.Kind = other.Kind
	}
	if other.Sim != nil {
		c.Sim = other.Sim
	}
	return nil
}
