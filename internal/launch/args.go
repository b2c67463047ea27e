// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package launch parses the command line the shell is started with.
package launch

import (
	"strconv"
	"strings"
)

// Args are the shell's own launch arguments. Everything it does not
// recognize is kept in Passthrough for the window host.
type Args struct {
	Workspace    string   `json:"workspace,omitempty"`
	Port         int      `json:"port,omitempty"`
	OpenAsHidden bool     `json:"openAsHidden,omitempty"`
	URL          string   `json:"url,omitempty"`
	Passthrough  []string `json:"passthrough,omitempty"`
}

// Parse reads argv, without the program name. scheme is the protocol URL
// scheme without "://".
func Parse(argv []string, scheme string) Args {
	var a Args
	prefix := scheme + "://"

	for _, arg := range argv {
		switch {
		case strings.HasPrefix(arg, "--workspace="):
			if a.Workspace == "" {
				a.Workspace = value(arg)
			}
		case strings.HasPrefix(arg, "--port="):
			if a.Port == 0 {
				a.Port, _ = strconv.Atoi(value(arg))
			}
		case strings.HasPrefix(arg, "--openAsHidden"):
			a.OpenAsHidden = true
		case scheme != "" && strings.HasPrefix(arg, prefix):
			if a.URL == "" {
				a.URL = arg
			}
		default:
			a.Passthrough = append(a.Passthrough, arg)
		}
	}
	return a
}

// value returns the text after the first "=", up to a second "=" if any.
func value(arg string) string {
	parts := strings.Split(arg, "=")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
