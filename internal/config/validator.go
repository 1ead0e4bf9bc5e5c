package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel accepts the levels understood by the logger
func (v *Validator) ValidateLogLevel(level string) error {
	switch level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level %q (must be: debug, info, warn, error)", level)
	}
}

// ValidateDisplay checks the progress bar appearance
func (v *Validator) ValidateDisplay(d DisplayConfig) error {
	if d.Width < 1 || d.Width > 200 {
		return fmt.Errorf("display width must be between 1 and 200, got %d", d.Width)
	}
	if utf8.RuneCountInString(d.Fill) != 1 {
		return fmt.Errorf("display fill must be a single character, got %q", d.Fill)
	}
	if utf8.RuneCountInString(d.Empty) != 1 {
		return fmt.Errorf("display empty must be a single character, got %q", d.Empty)
	}
	return nil
}

// ValidateAddr checks a host:port listen address
func (v *Validator) ValidateAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port in %q", addr)
	}

	return nil
}

// ValidateSchedule checks a standard cron expression or descriptor such as "@every 1m"
func (v *Validator) ValidateSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("schedule cannot be empty")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateRetention accepts an empty value or a positive duration such as "720h"
func (v *Validator) ValidateRetention(retention string) error {
	if retention == "" {
		return nil
	}
	d, err := time.ParseDuration(retention)
	if err != nil {
		return fmt.Errorf("invalid retention %q: %w", retention, err)
	}
	if d <= 0 {
		return fmt.Errorf("retention must be positive, got %q", retention)
	}
	return nil
}
