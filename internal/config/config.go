package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Config represents the doctrack configuration
type Config struct {
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Display  DisplayConfig  `json:"display" mapstructure:"display"`
	Registry RegistryConfig `json:"registry" mapstructure:"registry"`
	History  HistoryConfig  `json:"history" mapstructure:"history"`
	Stream   StreamConfig   `json:"stream" mapstructure:"stream"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Sweeper  SweeperConfig  `json:"sweeper" mapstructure:"sweeper"`
	Tracing  TracingConfig  `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DisplayConfig controls console rendering of operations
type DisplayConfig struct {
	Width   int    `json:"width" mapstructure:"width"`
	Fill    string `json:"fill" mapstructure:"fill"`
	Empty   string `json:"empty" mapstructure:"empty"`
	ShowBar bool   `json:"show_bar" mapstructure:"show_bar"`
	Color   bool   `json:"color" mapstructure:"color"`
}

// RegistryConfig holds progress registry settings
type RegistryConfig struct {
	StrictParents bool `json:"strict_parents" mapstructure:"strict_parents"`
}

// HistoryConfig holds the finished-operation store settings
type HistoryConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	DBPath    string `json:"db_path" mapstructure:"db_path"`
	Retention string `json:"retention" mapstructure:"retention"` // e.g. "720h", empty keeps everything
}

// StreamConfig holds the websocket progress stream settings
type StreamConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// MetricsConfig holds the prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// SweeperConfig holds the clear-completed schedule
type SweeperConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Schedule string `json:"schedule" mapstructure:"schedule"` // cron expression or @every descriptor
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Display: DisplayConfig{
			Width:   40,
			Fill:    "█",
			Empty:   "░",
			ShowBar: true,
			Color:   true,
		},
		History: HistoryConfig{
			Enabled: false,
		},
		Stream: StreamConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8765",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9765",
		},
		Sweeper: SweeperConfig{
			Enabled:  false,
			Schedule: "@every 1m",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "doctrack",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks that every enabled section is usable
func (c *Config) Validate() error {
	v := NewValidator()
	var errs []error

	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateDisplay(c.Display); err != nil {
		errs = append(errs, err)
	}
	if c.History.Enabled && c.History.DBPath == "" {
		errs = append(errs, fmt.Errorf("history db_path is required when history is enabled"))
	}
	if c.History.Enabled {
		if err := v.ValidateRetention(c.History.Retention); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
	}
	if c.Stream.Enabled {
		if err := v.ValidateAddr(c.Stream.Addr); err != nil {
			errs = append(errs, fmt.Errorf("stream: %w", err))
		}
	}
	if c.Metrics.Enabled {
		if err := v.ValidateAddr(c.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	if c.Sweeper.Enabled {
		if err := v.ValidateSchedule(c.Sweeper.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("sweeper: %w", err))
		}
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1) {
		errs = append(errs, fmt.Errorf("tracing sample_ratio must be between 0 and 1, got %v", c.Tracing.SampleRatio))
	}

	return errors.Join(errs...)
}
