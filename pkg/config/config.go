package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/central"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel       string        `yaml:"log_level" json:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"10s"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" default:"10s"`

	// AllowDuplicates reports every advertisement instead of the first per device
	AllowDuplicates bool `yaml:"allow_duplicates" json:"allow_duplicates" default:"false"`

	EventBufferSize     int    `yaml:"event_buffer_size" json:"event_buffer_size" default:"64"`
	EventHistorySize    uint32 `yaml:"event_history_size" json:"event_history_size" default:"256"`
	PeripheralCacheSize int    `yaml:"peripheral_cache_size" json:"peripheral_cache_size" default:"256"`

	OutputFormat string `yaml:"output_format" json:"output_format" default:"table"` // table, json
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Fields missing from the file keep
// their default value. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that defaults cannot guarantee.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid output format %q: must be table or json", c.OutputFormat))
	}
	if c.ConnectTimeout < 0 || c.RequestTimeout < 0 || c.ScanTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.EventBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("event buffer size must be > 0, got %d", c.EventBufferSize))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// CentralOptions converts the timeouts and scan flags for the request engine.
func (c *Config) CentralOptions() central.Options {
	return central.Options{
		RequestTimeout:  c.RequestTimeout,
		ConnectTimeout:  c.ConnectTimeout,
		AllowDuplicates: c.AllowDuplicates,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
