// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateRequired(cfg, errs)
	v.validateCounts(cfg, errs)
	v.validateDurations(cfg, errs)
	v.validatePorts(cfg, errs)
	v.validateLogging(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateRequired(cfg *Config, errs *ValidationError) {
	if cfg.App.Dir == "" {
		errs.Add("app.dir", "is required")
	}
	if cfg.App.ConfDir == "" {
		errs.Add("app.conf_dir", "is required")
	}
	if cfg.Kernel.Name == "" {
		errs.Add("kernel.name", "is required")
	}
	if strings.Contains(cfg.App.Scheme, ":") {
		errs.Add("app.scheme", "must not contain ':'")
	}
}

func (v *Validator) validateCounts(cfg *Config, errs *ValidationError) {
	counts := map[string]int{
		"boot.max_attempts":         cfg.Boot.MaxAttempts,
		"resume.attempts":           cfg.Resume.Attempts,
		"open_url.attempts":         cfg.OpenURL.Attempts,
		"events.history.max_events": cfg.Events.History.MaxEvents,
	}
	for field, n := range counts {
		if n <= 0 {
			errs.Add(field, "must be positive")
		}
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	durations := map[string]string{
		"boot.version_interval":  cfg.Boot.VersionInterval,
		"boot.progress_interval": cfg.Boot.ProgressInterval,
		"boot.request_timeout":   cfg.Boot.RequestTimeout,
		"resume.interval":        cfg.Resume.Interval,
		"open_url.interval":      cfg.OpenURL.Interval,
		"events.history.max_age": cfg.Events.History.MaxAge,
		"watch.debounce":         cfg.Watch.Debounce,
	}
	for field, s := range durations {
		d, err := time.ParseDuration(s)
		if err != nil {
			errs.Add(field, fmt.Sprintf("invalid duration %q", s))
			continue
		}
		if d <= 0 {
			errs.Add(field, "must be positive")
		}
	}

	if d, err := time.ParseDuration(cfg.OpenURL.Settle); err != nil || d < 0 {
		errs.Add("open_url.settle", fmt.Sprintf("invalid duration %q", cfg.OpenURL.Settle))
	}

	if cfg.Resume.ProbeURL != "" {
		if u, err := url.Parse(cfg.Resume.ProbeURL); err != nil || u.Host == "" {
			errs.Add("resume.probe_url", "must be an absolute URL")
		}
	}
}

func (v *Validator) validatePorts(cfg *Config, errs *ValidationError) {
	if cfg.Kernel.DefaultPort < 0 || cfg.Kernel.DefaultPort > 65535 {
		errs.Add("kernel.default_port", "must be between 0 and 65535")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs.Add("server.port", "must be between 0 and 65535")
	}
}

func (v *Validator) validateLogging(cfg *Config, errs *ValidationError) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		errs.Add("logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level))
	}
}
