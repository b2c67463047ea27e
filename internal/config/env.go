// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DESKSHELL"

// Env holds environment overrides. Unprefixed NODE_ENV is honored for dev
// builds started by the front-end tooling.
type Env struct {
	Dev        bool
	NodeEnv    string `envconfig:"NODE_ENV"`
	AppDir     string `split_words:"true"`
	ConfDir    string `split_words:"true"`
	LogLevel   string `split_words:"true"`
	AppVersion string `split_words:"true"`
}

// LoadEnv reads overrides from the process environment.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Env{}, fmt.Errorf("read environment: %w", err)
	}
	return env, nil
}

// IsDev reports whether the environment asks for a development build.
func (e Env) IsDev() bool {
	return e.Dev || e.NodeEnv == "development"
}

// Apply overrides config values with the ones set in the environment.
func (e Env) Apply(cfg *Config) {
	if e.IsDev() {
		cfg.App.Dev = true
	}
	if e.AppDir != "" {
		cfg.App.Dir = e.AppDir
	}
	if e.ConfDir != "" {
		cfg.App.ConfDir = e.ConfDir
	}
	if e.LogLevel != "" {
		cfg.Logging.Level = e.LogLevel
	}
	if e.AppVersion != "" {
		cfg.App.Version = e.AppVersion
	}
}
