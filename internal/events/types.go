// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the notification bus that connects the supervisor
// to window content and external observers.
package events

import (
	"context"
	"time"
)

// Event represents an immutable event record.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Window    string                 `json:"window,omitempty"`    // target window id; empty means broadcast
	Workspace string                 `json:"workspace,omitempty"` // workspace directory
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types     []string  // Event types to match (supports wildcards)
	Window    string    // Window id; broadcast events always match
	Workspace string    // Filter by workspace
	Since     time.Time // Events after this time
	Until     time.Time // Events before this time
	Limit     int       // Maximum events to return
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Window events, addressed to the window in Event.Window.
const (
	EventWindowCreated     = "window.created"
	EventWindowLoad        = "window.load"
	EventWindowShow        = "window.show"
	EventWindowHide        = "window.hide"
	EventWindowMinimize    = "window.minimize"
	EventWindowMaximize    = "window.maximize"
	EventWindowUnmaximize  = "window.unmaximize"
	EventWindowRestore     = "window.restore"
	EventWindowFocus       = "window.focus"
	EventWindowFullscreen  = "window.fullscreen"
	EventWindowAlwaysOnTop = "window.alwaysOnTop"
	EventWindowDevTools    = "window.devtools"
	EventWindowDestroyed   = "window.destroyed"
	EventWindowError       = "window.error"
	EventWindowMessage     = "window.message"
)

// Tray and global hot-key events.
const (
	EventTrayCreated        = "tray.created"
	EventTrayDestroyed      = "tray.destroyed"
	EventHotkeyRegistered   = "hotkey.registered"
	EventHotkeyUnregistered = "hotkey.unregistered"
)

// Workspace and kernel lifecycle events.
const (
	EventWorkspaceBooting = "workspace.booting"
	EventWorkspaceOpened  = "workspace.opened"
	EventWorkspaceFailed  = "workspace.failed"
	EventWorkspaceClosed  = "workspace.closed"
	EventKernelExited     = "kernel.exited"

	EventKernelBinaryRemoved = "kernel.binary.removed"
	EventKernelBinaryChanged = "kernel.binary.changed"

	EventAppQuit = "app.quit"
)
