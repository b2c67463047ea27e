// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading, environment overrides
// and path template expansion.
package config

import (
	"time"
)

// Config is the root configuration structure for deskshell.
type Config struct {
	App     AppConfig     `json:"app"`
	Kernel  KernelConfig  `json:"kernel"`
	Boot    BootConfig    `json:"boot"`
	Resume  ResumeConfig  `json:"resume"`
	OpenURL OpenURLConfig `json:"open_url"`
	Server  ServerConfig  `json:"server"`
	Events  EventsConfig  `json:"events"`
	Watch   WatchConfig   `json:"watch"`
	Logging LoggingConfig `json:"logging"`
}

// AppConfig describes the shell itself.
type AppConfig struct {
	Name    string `json:"name"`     // product name shown in tray tooltips
	Version string `json:"version"`  // compared against the kernel version in production
	Dir     string `json:"dir"`      // installation directory, passed to the kernel as --wd
	ConfDir string `json:"conf_dir"` // per-user state: logs, window state, lock file
	Dev     bool   `json:"dev"`
	Scheme  string `json:"scheme"` // protocol URL scheme, without "://"
}

// KernelConfig locates the kernel executable.
type KernelConfig struct {
	Name        string `json:"name"` // executable name without platform suffix
	Dir         string `json:"dir"`  // defaults to <app.dir>/kernel
	DefaultPort int    `json:"default_port"`
	Lang        string `json:"lang"`
}

// BootConfig bounds the health polling of a freshly spawned kernel.
type BootConfig struct {
	MaxAttempts      int    `json:"max_attempts"`
	VersionInterval  string `json:"version_interval"`
	ProgressInterval string `json:"progress_interval"`
	RequestTimeout   string `json:"request_timeout"`
}

// ResumeConfig controls the reachability check after the system wakes up.
type ResumeConfig struct {
	Attempts int    `json:"attempts"`
	Interval string `json:"interval"`
	ProbeURL string `json:"probe_url"`
}

// OpenURLConfig controls protocol URL delivery while no workspace is open.
type OpenURLConfig struct {
	Attempts int    `json:"attempts"`
	Interval string `json:"interval"`
	Settle   string `json:"settle"`
}

// ServerConfig configures the control API server.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EventsConfig configures the event system.
type EventsConfig struct {
	History EventHistoryConfig `json:"history"`
}

// EventHistoryConfig configures event retention.
type EventHistoryConfig struct {
	MaxEvents int    `json:"max_events"`
	MaxAge    string `json:"max_age"`
}

// WatchConfig configures the kernel binary watcher.
type WatchConfig struct {
	Enabled  *bool  `json:"enabled"`
	Debounce string `json:"debounce"`
}

// IsEnabled reports whether the kernel binary is watched. Default true.
func (w WatchConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `json:"level"`
	File  string `json:"file"` // defaults to <app.conf_dir>/app.log
}

// ParseDuration parses a duration string, returning a default if empty.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
