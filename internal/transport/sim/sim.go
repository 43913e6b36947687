// Package sim provides a synthetic transport backend. It advertises a fixed
// set of sources and generates timed test-pattern video and audio frames, so
// the daemon can run end to end on hosts without a real media SDK.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/ndiview/internal/transport"
)

// Config controls the synthetic transport.
type Config struct {
	// SourceNames are the sources to advertise. Empty means a default pair.
	SourceNames []string `yaml:"source_names" json:"source_names"`

	Width     int `yaml:"width" json:"width"`
	Height    int `yaml:"height" json:"height"`
	FrameRate int `yaml:"frame_rate" json:"frame_rate"`

	// AudioEvery inserts one audio frame after this many video frames.
	// Zero disables audio generation.
	AudioEvery int `yaml:"audio_every" json:"audio_every"`

	// DiscoveryDelay simulates network discovery latency. The delay is
	// capped by the caller's timeout.
	DiscoveryDelay time.Duration `yaml:"discovery_delay" json:"discovery_delay"`
}

// DefaultConfig returns the default simulator configuration.
func DefaultConfig() *Config {
	return &Config{
		SourceNames:    []string{"SIM-1 (Pattern)", "SIM-2 (Pattern)"},
		Width:          640,
		Height:         360,
		FrameRate:      30,
		AudioEvery:     5,
		DiscoveryDelay: 50 * time.Millisecond,
	}
}

// Validate checks the simulator configuration.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height)
	}
	if c.Width%2 != 0 {
		return fmt.Errorf("width must be even for UYVY, got %d", c.Width)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", c.FrameRate)
	}
	if c.AudioEvery < 0 {
		return fmt.Errorf("audio_every cannot be negative, got %d", c.AudioEvery)
	}
	return nil
}

// Transport is the synthetic backend. It implements both transport.Discovery
// and transport.Connector.
type Transport struct {
	config *Config
	logger *logrus.Entry

	mu      sync.Mutex
	sources []transport.Source
	closed  bool
}

// New creates a synthetic transport.
func New(cfg *Config, logger *logrus.Entry) (*Transport, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(cfg.SourceNames) == 0 {
		cfg.SourceNames = DefaultConfig().SourceNames
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulator config: %w", err)
	}
	if logger == nil {
		logger = logrus.WithField("component", "sim")
	}

	sources := make([]transport.Source, 0, len(cfg.SourceNames))
	for _, name := range cfg.SourceNames {
		sources = append(sources, transport.Source{Name: name})
	}

	return &Transport{
		config:  cfg,
		logger:  logger,
		sources: sources,
	}, nil
}

// FindSources implements transport.Discovery.
func (t *Transport) FindSources(timeout time.Duration) ([]transport.Source, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("simulator transport is closed")
	}
	sources := make([]transport.Source, len(t.sources))
	copy(sources, t.sources)
	t.mu.Unlock()

	delay := t.config.DiscoveryDelay
	if delay > timeout {
		delay = timeout
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return sources, nil
}

// Connect implements transport.Connector.
func (t *Transport) Connect(name string) (transport.Receiver, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("simulator transport is closed")
	}

	for _, src := range t.sources {
		if src.Name == name {
			t.logger.Infof("Simulated connect to %s", name)
			return newReceiver(t.config, name), nil
		}
	}
	return nil, fmt.Errorf("source %q not found", name)
}

// Close implements transport.Discovery.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
