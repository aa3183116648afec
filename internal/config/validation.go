package config

import (
	"fmt"
	"net"
	"strings"

	"timerkit/internal/logging"
)

// MinTickIntervalMs is the shortest polling interval accepted.
const MinTickIntervalMs = 50

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field failed validation.
func (e ValidationErrors) Has(field string) bool {
	for _, v := range e {
		if v.Field == field {
			return true
		}
	}
	return false
}

// ValidateConfig validates every section and returns ValidationErrors, or
// nil.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateTimer(&c.Timer)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateNotify(&c.Notify)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateTimer(t *TimerConfig) ValidationErrors {
	var errs ValidationErrors
	if t.TickIntervalMs < MinTickIntervalMs {
		errs = append(errs, ValidationError{
			Field:   "timer.tick_interval_ms",
			Message: fmt.Sprintf("must be at least %dms", MinTickIntervalMs),
		})
	}
	if t.DefaultDurationSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "timer.default_duration_sec",
			Message: "cannot be negative",
		})
	}
	if t.DefaultDurationSec == 0 && !t.ZeroDurationCompletes {
		errs = append(errs, ValidationError{
			Field:   "timer.default_duration_sec",
			Message: "zero default duration requires zero_duration_completes",
		})
	}
	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors
	if s.Path == "" {
		errs = append(errs, ValidationError{Field: "storage.path", Message: "required"})
	}
	if s.KeyPath == "" {
		errs = append(errs, ValidationError{Field: "storage.key_path", Message: "required"})
	}
	if s.LockDir == "" {
		errs = append(errs, ValidationError{Field: "storage.lock_dir", Message: "required"})
	}
	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{Field: "storage.busy_timeout_ms", Message: "cannot be negative"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{Field: "logging.level", Message: err.Error()})
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		errs = append(errs, ValidationError{Field: "logging.format", Message: err.Error()})
	}
	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{Field: "logging.file_path", Message: "required for file output"})
		}
		if l.MaxSizeMB < 1 {
			errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "must be at least 1"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output %q (valid: stdout, stderr, file, both)", l.Output),
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "cannot be negative"})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_age_days", Message: "cannot be negative"})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.ListenAddr); err != nil {
		return ValidationErrors{{Field: "metrics.listen_addr", Message: err.Error()}}
	}
	return nil
}

func validateNotify(n *NotifyConfig) ValidationErrors {
	var errs ValidationErrors
	if n.Enabled && n.AppName == "" {
		errs = append(errs, ValidationError{Field: "notify.app_name", Message: "required when notifications are enabled"})
	}
	if n.TimeoutMs < -1 {
		errs = append(errs, ValidationError{Field: "notify.timeout_ms", Message: "must be -1 (server default) or more"})
	}
	return errs
}
