package config

import (
	"fmt"
	"time"
)

// PipelineConfig configures the stream acquisition and delivery pipeline:
// discovery cadence, reconnect backoffs, queue sizing, and the consumer
// rate ceiling.
type PipelineConfig struct {
	// QueueSize is the fixed capacity of the frame handoff queue between the
	// ingest loop and the consumer. Bounds worst-case memory to
	// QueueSize x max frame size.
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// FrameSkip accepts one of every FrameSkip video frames into the queue.
	// Bounds CPU cost under high source frame rates independently of the
	// queue capacity.
	FrameSkip int `yaml:"frame_skip" json:"frame_skip"`

	// MaxFPS is the ceiling on the consumer delivery rate.
	MaxFPS int `yaml:"max_fps" json:"max_fps"`

	// PollInterval is the minimum time between automatic discovery polls.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`

	// PollTimeout bounds how long one automatic discovery poll may block.
	PollTimeout time.Duration `yaml:"poll_timeout" json:"poll_timeout"`

	// RefreshTimeout bounds a manual refresh poll. Longer than PollTimeout
	// for higher completeness.
	RefreshTimeout time.Duration `yaml:"refresh_timeout" json:"refresh_timeout"`

	// ReceiveTimeout bounds one receive call on the active connection.
	ReceiveTimeout time.Duration `yaml:"receive_timeout" json:"receive_timeout"`

	// IdleBackoff is the ingest loop sleep while no source is selected or
	// connected.
	IdleBackoff time.Duration `yaml:"idle_backoff" json:"idle_backoff"`

	// FailureBackoff is the ingest loop sleep after a transport error.
	FailureBackoff time.Duration `yaml:"failure_backoff" json:"failure_backoff"`

	// TickInterval is the consumer scheduler tick cadence.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`

	// StatsInterval is the cadence of the observability stats recomputation.
	StatsInterval time.Duration `yaml:"stats_interval" json:"stats_interval"`
}

// DefaultPipelineConfig returns the default pipeline configuration.
func DefaultPipelineConfig() *PipelineConfig {
	config := &PipelineConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults sets default values
func (c *PipelineConfig) SetDefaults() {
	c.QueueSize = 2
	c.FrameSkip = 2
	c.MaxFPS = 30
	c.PollInterval = 2 * time.Second
	c.PollTimeout = 1 * time.Second
	c.RefreshTimeout = 3 * time.Second
	c.ReceiveTimeout = 100 * time.Millisecond
	c.IdleBackoff = 100 * time.Millisecond
	c.FailureBackoff = 1 * time.Second
	c.TickInterval = 10 * time.Millisecond
	c.StatsInterval = 1 * time.Second
}

// Validate validates the pipeline configuration
func (c *PipelineConfig) Validate() error {
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got: %d", c.QueueSize)
	}

	if c.FrameSkip < 1 {
		return fmt.Errorf("frame skip must be at least 1, got: %d", c.FrameSkip)
	}

	if c.MaxFPS < 1 || c.MaxFPS > 240 {
		return fmt.Errorf("max fps must be between 1 and 240, got: %d", c.MaxFPS)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got: %v", c.PollInterval)
	}

	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll timeout must be positive, got: %v", c.PollTimeout)
	}

	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh timeout must be positive, got: %v", c.RefreshTimeout)
	}

	if c.ReceiveTimeout <= 0 {
		return fmt.Errorf("receive timeout must be positive, got: %v", c.ReceiveTimeout)
	}

	if c.IdleBackoff <= 0 {
		return fmt.Errorf("idle backoff must be positive, got: %v", c.IdleBackoff)
	}

	if c.FailureBackoff <= 0 {
		return fmt.Errorf("failure backoff must be positive, got: %v", c.FailureBackoff)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got: %v", c.TickInterval)
	}

	if c.TickInterval > time.Second/time.Duration(c.MaxFPS) {
		return fmt.Errorf("tick interval %v too coarse for max fps %d", c.TickInterval, c.MaxFPS)
	}

	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats interval must be positive, got: %v", c.StatsInterval)
	}

	return nil
}

// Merge merges another pipeline configuration into this one
func (c *PipelineConfig) Merge(other *PipelineConfig) error {
	if other == nil {
		return nil
	}

	if other.QueueSize != 0 {
		c.QueueSize = other.QueueSize
	}
	if other.FrameSkip != 0 {
		c.FrameSkip = other.FrameSkip
	}
	if other.MaxFPS != 0 {
		c.MaxFPS = other.MaxFPS
	}
	if other.PollInterval != 0 {
		c.PollInterval = other.PollInterval
	}
	if other.PollTimeout != 0 {
		c.PollTimeout = other.PollTimeout
	}
	if other.RefreshTimeout != 0 {
		c.RefreshTimeout = other.RefreshTimeout
	}
	if other.ReceiveTimeout != 0 {
		c.ReceiveTimeout = other.ReceiveTimeout
	}
	if other.IdleBackoff != 0 {
		c.IdleBackoff = other.IdleBackoff
	}
	if other.FailureBackoff != 0 {
		c.FailureBackoff = other.FailureBackoff
	}
	if other.TickInterval != 0 {
		c.TickInterval = other.TickInterval
	}
	if other.StatsInterval != 0 {
		c.StatsInterval = other.StatsInterval
	}

	return c.Validate()
}
