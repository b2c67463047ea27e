// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import "time"

// Workspace is an open workspace and its main window.
type Workspace struct {
	// Workspace is the workspace directory. Empty until the window content
	// has reported it.
	Workspace string `json:"workspace"`

	// Window is the id of the main window.
	Window string `json:"windowId"`

	// Port is the kernel port.
	Port int `json:"port"`

	// PID is the kernel process id.
	PID int `json:"pid"`

	// Tray is the tray icon id on platforms with a tray.
	Tray string `json:"tray,omitempty"`

	// Hotkeys are the hot-keys bound by the workspace, primary first.
	Hotkeys []string `json:"hotkeys"`
}

// OpenRequest asks for a workspace to be opened.
type OpenRequest struct {
	Workspace    string `json:"workspace"`
	Port         int    `json:"port,omitempty"`
	Lang         string `json:"lang,omitempty"`
	OpenAsHidden bool   `json:"openAsHidden,omitempty"`
}

// Command is a tagged command. The "cmd" key names the command; the other
// keys are its arguments, e.g. {"cmd": "setAlwaysOnTop", "windowId": id, "on": true}.
type Command map[string]interface{}

// Event is an entry of the event log.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Window    string                 `json:"window,omitempty"`
	Workspace string                 `json:"workspace,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Info describes the running shell.
type Info struct {
	Product string    `json:"product"`
	Version string    `json:"version"`
	PID     int       `json:"pid"`
	GOOS    string    `json:"goos"`
	Started time.Time `json:"started"`
}
