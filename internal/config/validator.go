package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config field path (e.g., "retry.max_retries")
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

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found, not just the first.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.State.FileName == "" {
		errs = append(errs, ValidationError{
			Field:   "state.file_name",
			Value:   c.State.FileName,
			Message: "must not be empty",
		})
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "retry.max_retries",
			Value:   c.Retry.MaxRetries,
			Message: "must be zero or positive",
		})
	}
	if c.Retry.SessionMaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "retry.session_max_retries",
			Value:   c.Retry.SessionMaxRetries,
			Message: "must be zero or positive",
		})
	}

	if c.Gaming.IdenticalErrorWeight < 0 || c.Gaming.IdenticalErrorWeight > 1 {
		errs = append(errs, ValidationError{
			Field:   "gaming.identical_error_weight",
			Value:   c.Gaming.IdenticalErrorWeight,
			Message: "must be between 0 and 1",
		})
	}
	if c.Gaming.CategorySwitchWeight < 0 || c.Gaming.CategorySwitchWeight > 1 {
		errs = append(errs, ValidationError{
			Field:   "gaming.category_switch_weight",
			Value:   c.Gaming.CategorySwitchWeight,
			Message: "must be between 0 and 1",
		})
	}
	if c.Gaming.BlockThreshold <= 0 {
		errs = append(errs, ValidationError{
			Field:   "gaming.block_threshold",
			Value:   c.Gaming.BlockThreshold,
			Message: "must be positive, a zero threshold blocks every retry",
		})
	}

	if c.Session.MaxSessions <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.max_sessions",
			Value:   c.Session.MaxSessions,
			Message: "must be positive",
		})
	}
	if c.Session.MaxIterations <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.max_iterations",
			Value:   c.Session.MaxIterations,
			Message: "must be positive",
		})
	}
	if c.Session.CheckpointInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.checkpoint_interval",
			Value:   c.Session.CheckpointInterval,
			Message: "must be positive",
		})
	}
	if c.Session.CheckpointInterval > c.Session.MaxSessions {
		errs = append(errs, ValidationError{
			Field:   "session.checkpoint_interval",
			Value:   c.Session.CheckpointInterval,
			Message: "must not exceed session.max_sessions, no checkpoint would ever run",
		})
	}

	if len(c.Cleanup.Keywords) == 0 {
		errs = append(errs, ValidationError{
			Field:   "cleanup.keywords",
			Value:   c.Cleanup.Keywords,
			Message: "must list at least one keyword, an empty list matches nothing",
		})
	}
	for _, kw := range c.Cleanup.Keywords {
		if strings.TrimSpace(kw) == "" {
			errs = append(errs, ValidationError{
				Field:   "cleanup.keywords",
				Value:   kw,
				Message: "keywords must not be blank, a blank keyword matches every process",
			})
		}
	}
	if c.Cleanup.TimeoutSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "cleanup.timeout_seconds",
			Value:   c.Cleanup.TimeoutSeconds,
			Message: "must be zero or positive",
		})
	}

	if c.Handoff.TaskFileName == "" {
		errs = append(errs, ValidationError{
			Field:   "handoff.task_file_name",
			Value:   c.Handoff.TaskFileName,
			Message: "must not be empty",
		})
	}

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be zero or positive",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be zero or positive",
		})
	}

	return errs
}
