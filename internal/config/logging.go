package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig configures the logrus-based logging system.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Format is the log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Output is the output target (stdout, stderr, file)
	Output string `yaml:"output" json:"output"`

	// File is the log file path (used when Output is file)
	File string `yaml:"file" json:"file"`

	// EnableTimestamp enables full timestamps in text output
	EnableTimestamp bool `yaml:"enable_timestamp" json:"enable_timestamp"`

	// EnableCaller enables caller reporting
	EnableCaller bool `yaml:"enable_caller" json:"enable_caller"`

	// EnableColors enables colored text output
	EnableColors bool `yaml:"enable_colors" json:"enable_colors"`
}

// DefaultLoggingConfig returns the default logging configuration.
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:           "info",
		Format:          "text",
		Output:          "stdout",
		File:            "",
		EnableTimestamp: true,
		EnableCaller:    false,
		EnableColors:    true,
	}
}

// Validate validates the logging configuration
func (c *LoggingConfig) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("invalid log format: %s, must be 'text' or 'json'", c.Format)
	}

	if c.Output != "stdout" && c.Output != "stderr" && c.Output != "file" {
		return fmt.Errorf("invalid log output: %s, must be 'stdout', 'stderr', or 'file'", c.Output)
	}

	if c.Output == "file" && c.File == "" {
		return fmt.Errorf("log file path is required when output is 'file'")
	}

	return nil
}

// Merge merges another logging configuration into this one
func (c *LoggingConfig) Merge(other *LoggingConfig) error {
	if other == nil {
		return nil
	}

	if other.Level != "" {
		c.Level = other.Level
	}
	if other.Format != "" {
		c.Format = other.Format
	}
	if other.Output != "" {
		c.Output = other.Output
	}
	if other.File != "" {
		c.File = other.File
	}

	c.EnableTimestamp = other.EnableTimestamp
	c.EnableCaller = other.EnableCaller
	c.EnableColors = other.EnableColors

	return c.Validate()
}

// LoadLoggingConfigFromEnv loads logging settings from NDIVIEW_* environment
// variables, starting from defaults.
func LoadLoggingConfigFromEnv() *LoggingConfig {
	config := DefaultLoggingConfig()

	if level := os.Getenv("NDIVIEW_LOG_LEVEL"); level != "" {
		config.Level = strings.ToLower(level)
	}
	if format := os.Getenv("NDIVIEW_LOG_FORMAT"); format != "" {
		config.Format = format
	}
	if output := os.Getenv("NDIVIEW_LOG_OUTPUT"); output != "" {
		config.Output = output
	}
	if file := os.Getenv("NDIVIEW_LOG_FILE"); file != "" {
		config.File = file
	}
	if timestamp := os.Getenv("NDIVIEW_LOG_TIMESTAMP"); timestamp != "" {
		config.EnableTimestamp = strings.ToLower(timestamp) == "true"
	}
	if caller := os.Getenv("NDIVIEW_LOG_CALLER"); caller != "" {
		config.EnableCaller = strings.ToLower(caller) == "true"
	}
	if colors := os.Getenv("NDIVIEW_LOG_COLORS"); colors != "" {
		config.EnableColors = strings.ToLower(colors) == "true"
	}

	return config
}

// SetupLogger configures the global logrus logger from the given config.
func SetupLogger(config *LoggingConfig) error {
	if config == nil {
		config = DefaultLoggingConfig()
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logrus.SetLevel(level)

	var output io.Writer
	switch config.Output {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	case "file":
		file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.File, err)
		}
		output = file
	}
	logrus.SetOutput(output)

	if config.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FullTimestamp:   config.EnableTimestamp,
			ForceColors:     config.EnableColors,
		})
	}

	logrus.SetReportCaller(config.EnableCaller)

	return nil
}

// ParseLogLevel normalizes and validates a log level string.
func ParseLogLevel(level string) (string, error) {
	normalizedLevel := strings.ToLower(strings.TrimSpace(level))

	if _, err := logrus.ParseLevel(normalizedLevel); err != nil {
		return "info", fmt.Errorf("invalid log level: %s", level)
	}

	return normalizedLevel, nil
}

// GetLoggerWithPrefix returns a logger entry tagged with a component name.
func GetLoggerWithPrefix(prefix string) *logrus.Entry {
	return logrus.WithField("component", prefix)
}
