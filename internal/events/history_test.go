// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHistory_MaxEvents(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{MaxEvents: 3})
	now := time.Now()
	for i := 0; i < 5; i++ {
		h.Add(Event{ID: string(rune('a' + i)), Type: EventWindowShow, Timestamp: now.Add(time.Duration(i) * time.Millisecond)})
	}

	events, err := h.Query(EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, "e", events[2].ID)
}

func TestEventHistory_Filter(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{})
	now := time.Now()
	h.Add(Event{ID: "1", Type: EventWindowShow, Window: "w1", Timestamp: now})
	h.Add(Event{ID: "2", Type: EventWindowMessage, Timestamp: now.Add(time.Millisecond)})
	h.Add(Event{ID: "3", Type: EventWindowHide, Window: "w2", Timestamp: now.Add(2 * time.Millisecond)})
	h.Add(Event{ID: "4", Type: EventWorkspaceOpened, Workspace: "/ws/a", Timestamp: now.Add(3 * time.Millisecond)})

	ids := func(f EventFilter) []string {
		events, err := h.Query(f)
		require.NoError(t, err)
		var out []string
		for _, e := range events {
			out = append(out, e.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1", "2", "3"}, ids(EventFilter{Types: []string{"window.*"}}))
	// Broadcasts reach every window.
	assert.Equal(t, []string{"1", "2", "4"}, ids(EventFilter{Window: "w1"}))
	assert.Equal(t, []string{"4"}, ids(EventFilter{Workspace: "/ws/a"}))
	assert.Equal(t, []string{"3", "4"}, ids(EventFilter{Since: now.Add(2 * time.Millisecond)}))
	assert.Equal(t, []string{"1"}, ids(EventFilter{Until: now}))
	assert.Equal(t, []string{"3", "4"}, ids(EventFilter{Limit: 2}))
}

func TestEventHistory_Prune(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{MaxAge: time.Minute})
	h.Add(Event{Type: EventWindowShow, Timestamp: time.Now().Add(-2 * time.Minute)})
	h.Add(Event{Type: EventWindowHide, Timestamp: time.Now()})

	h.Prune()
	assert.Equal(t, 1, h.Len())

	h.Close()
	assert.Equal(t, 0, h.Len())
}
