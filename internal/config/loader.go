// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hjson/hjson-go/v4"
)

// FileName is the config file looked up in the configuration directory.
const FileName = "deskshell.hjson"

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes HJSON config data.
func Parse(data []byte) (*Config, error) {
	// Parse HJSON to intermediate map
	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	// Convert to JSON and unmarshal to struct (for type safety)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads path if it exists. A missing file yields an empty
// config so that defaults apply.
func (l *Loader) LoadOrDefault(ctx context.Context, path string) (*Config, error) {
	cfg, err := l.Load(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// Resolve builds the effective configuration: the config file found in the
// configuration directory, then environment overrides, then defaults and
// path templates.
func (l *Loader) Resolve(ctx context.Context, env Env) (*Config, error) {
	confDir := env.ConfDir
	if confDir == "" {
		var err error
		if confDir, err = DefaultConfDir(); err != nil {
			return nil, err
		}
	}

	cfg, err := l.LoadOrDefault(ctx, filepath.Join(confDir, FileName))
	if err != nil {
		return nil, err
	}
	if cfg.App.ConfDir == "" {
		cfg.App.ConfDir = confDir
	}

	env.Apply(cfg)
	applyDefaults(cfg, runtime.GOOS)

	if err := expandPaths(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfDir returns ~/.config/siyuan.
func DefaultConfDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "siyuan"), nil
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config, goos string) {
	// App defaults
	if cfg.App.Name == "" {
		cfg.App.Name = "SiYuan"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "dev"
	}
	if cfg.App.Dir == "" {
		if exe, err := os.Executable(); err == nil {
			cfg.App.Dir = filepath.Dir(exe)
		}
	}
	if cfg.App.Scheme == "" {
		cfg.App.Scheme = "siyuan"
	}

	// Kernel defaults
	if cfg.Kernel.Name == "" {
		cfg.Kernel.Name = "SiYuan-Kernel"
	}
	if cfg.Kernel.Dir == "" {
		cfg.Kernel.Dir = "{{.AppDir}}/kernel"
	}
	if cfg.Kernel.DefaultPort == 0 {
		cfg.Kernel.DefaultPort = 6806
	}

	// Boot defaults
	if cfg.Boot.MaxAttempts == 0 {
		cfg.Boot.MaxAttempts = 15
	}
	if cfg.Boot.VersionInterval == "" {
		cfg.Boot.VersionInterval = "200ms"
	}
	if cfg.Boot.ProgressInterval == "" {
		cfg.Boot.ProgressInterval = "100ms"
	}
	if cfg.Boot.RequestTimeout == "" {
		cfg.Boot.RequestTimeout = "5s"
	}

	// Resume defaults
	if cfg.Resume.Attempts == 0 {
		cfg.Resume.Attempts = 7
	}
	if cfg.Resume.Interval == "" {
		cfg.Resume.Interval = "1s"
	}
	if cfg.Resume.ProbeURL == "" {
		cfg.Resume.ProbeURL = "https://b3log.org"
	}

	// Open URL defaults
	if cfg.OpenURL.Attempts == 0 {
		cfg.OpenURL.Attempts = 10
	}
	if cfg.OpenURL.Interval == "" {
		cfg.OpenURL.Interval = "500ms"
	}
	if cfg.OpenURL.Settle == "" {
		cfg.OpenURL.Settle = "1500ms"
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}

	// Events defaults
	if cfg.Events.History.MaxEvents == 0 {
		cfg.Events.History.MaxEvents = 1000
	}
	if cfg.Events.History.MaxAge == "" {
		cfg.Events.History.MaxAge = "1h"
	}

	// Watch defaults
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = "500ms"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.App.Dev {
			cfg.Logging.Level = "debug"
		}
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "{{.ConfDir}}/app.log"
	}
}

// KernelExecutable returns the absolute path of the kernel binary for goos.
func (c *Config) KernelExecutable(goos string) string {
	name := c.Kernel.Name
	if goos == "windows" {
		name += ".exe"
	}
	return filepath.Join(c.Kernel.Dir, name)
}
