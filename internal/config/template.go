// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// PathContext provides the values path settings may reference, for example
// "{{.AppDir}}/kernel".
type PathContext struct {
	AppDir  string
	ConfDir string
	Home    string
}

// ExpandPath expands template references in a path and cleans the result.
func ExpandPath(value string, ctx PathContext) (string, error) {
	if !strings.Contains(value, "{{") {
		return value, nil
	}

	tmpl, err := template.New("path").Option("missingkey=error").Parse(value)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", value, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("expand %q: %w", value, err)
	}
	return filepath.Clean(buf.String()), nil
}

func expandPaths(cfg *Config) error {
	home, _ := os.UserHomeDir()
	ctx := PathContext{AppDir: cfg.App.Dir, ConfDir: cfg.App.ConfDir, Home: home}

	for _, p := range []*string{&cfg.App.ConfDir, &cfg.Kernel.Dir, &cfg.Logging.File} {
		v, err := ExpandPath(*p, ctx)
		if err != nil {
			return err
		}
		*p = v
		if p == &cfg.App.ConfDir {
			ctx.ConfDir = v
		}
	}
	return nil
}
