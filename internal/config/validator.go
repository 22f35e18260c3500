package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config key (e.g., "admission.window_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the accepted logging.format values.
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks the Config and returns every problem found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateAdmission()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateAdmission() []ValidationError {
	var errs []ValidationError
	a := c.Admission

	if a.WindowSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "admission.window_size",
			Value:   a.WindowSize,
			Message: "must be at least 1",
		})
	}
	if a.LeaseTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "admission.lease_timeout",
			Value:   a.LeaseTimeout,
			Message: "must be positive",
		})
	}
	if a.SweepInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "admission.sweep_interval",
			Value:   a.SweepInterval,
			Message: "must be positive",
		})
	} else if a.LeaseTimeout > 0 && a.SweepInterval > a.LeaseTimeout {
		errs = append(errs, ValidationError{
			Field:   "admission.sweep_interval",
			Value:   a.SweepInterval,
			Message: fmt.Sprintf("must not exceed lease_timeout (%s)", a.LeaseTimeout),
		})
	}
	if a.MaxQueueSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "admission.max_queue_size",
			Value:   a.MaxQueueSize,
			Message: "must not be negative (0 means unbounded)",
		})
	}
	return errs
}

func (c *Config) validateStore() []ValidationError {
	var errs []ValidationError
	s := c.Store

	if strings.TrimSpace(s.Path) == "" {
		errs = append(errs, ValidationError{
			Field:   "store.path",
			Value:   s.Path,
			Message: "must not be empty",
		})
	}
	if s.MaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "store.max_attempts",
			Value:   s.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	if s.RetryBackoff < 0 {
		errs = append(errs, ValidationError{
			Field:   "store.retry_backoff",
			Value:   s.RetryBackoff,
			Message: "must not be negative",
		})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError
	l := c.Logging

	if !slices.Contains(ValidLogLevels(), strings.ToLower(l.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   l.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if !slices.Contains(ValidLogFormats(), strings.ToLower(l.Format)) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   l.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}
	return errs
}
