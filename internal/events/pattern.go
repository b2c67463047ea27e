// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"errors"
	"strings"
)

// Match reports whether an event type matches a pattern.
//   - "window.*" matches every type below "window."
//   - "*.destroyed" matches every type ending in ".destroyed"
//   - "*" matches everything
func Match(eventType, pattern string) bool {
	switch {
	case pattern == "" || eventType == "":
		return false
	case pattern == "*", pattern == eventType:
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(eventType, strings.TrimPrefix(pattern, "*"))
	}
	return false
}

// CompiledPattern is a validated pattern.
type CompiledPattern interface {
	Match(eventType string) bool
}

type compiledPattern string

func (p compiledPattern) Match(eventType string) bool {
	return Match(eventType, string(p))
}

// Compile validates a pattern for repeated matching.
func Compile(pattern string) (CompiledPattern, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}
	return compiledPattern(pattern), nil
}
