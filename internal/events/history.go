// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"sort"
	"sync"
	"time"
)

// Default retention, overridden by the events section of the config.
const (
	DefaultHistoryMaxEvents = 1000
	DefaultHistoryMaxAge    = time.Hour
)

// EventHistoryConfig configures event history.
type EventHistoryConfig struct {
	MaxEvents int
	MaxAge    time.Duration
}

// EventHistory keeps recent events so late subscribers can catch up.
type EventHistory struct {
	mu        sync.RWMutex
	events    []Event
	maxEvents int
	maxAge    time.Duration
}

// NewEventHistory creates a new event history.
func NewEventHistory(cfg EventHistoryConfig) *EventHistory {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultHistoryMaxEvents
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultHistoryMaxAge
	}

	return &EventHistory{
		maxEvents: cfg.MaxEvents,
		maxAge:    cfg.MaxAge,
	}
}

// Add stores an event in history.
func (h *EventHistory) Add(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, event)
	if len(h.events) > h.maxEvents {
		h.events = h.events[len(h.events)-h.maxEvents:]
	}
}

// Query retrieves events matching filter, oldest first.
func (h *EventHistory) Query(filter EventFilter) ([]Event, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Event, 0)
	for _, event := range h.events {
		if filter.Matches(event) {
			result = append(result, event)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}

	return result, nil
}

// Matches reports whether event satisfies every criterion of the filter.
func (f EventFilter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		matched := false
		for _, pattern := range f.Types {
			if Match(event.Type, pattern) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.Window != "" && event.Window != "" && event.Window != f.Window {
		return false
	}
	if f.Workspace != "" && event.Workspace != f.Workspace {
		return false
	}
	if !f.Since.IsZero() && event.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && event.Timestamp.After(f.Until) {
		return false
	}

	return true
}

// Prune removes events older than max age or exceeding max count.
func (h *EventHistory) Prune() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-h.maxAge)
	filtered := make([]Event, 0, len(h.events))
	for _, event := range h.events {
		if event.Timestamp.After(cutoff) {
			filtered = append(filtered, event)
		}
	}
	if len(filtered) > h.maxEvents {
		filtered = filtered[len(filtered)-h.maxEvents:]
	}
	h.events = filtered
}

// Len returns the number of retained events.
func (h *EventHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// Close releases resources.
func (h *EventHistory) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}
