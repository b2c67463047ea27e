// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package window defines the window host the supervisor drives, a bus-backed
// implementation of it, and main-window placement.
package window

import (
	"errors"
	"net/url"
	"strconv"
)

// ErrWindowNotFound is returned for operations on unknown or destroyed windows.
var ErrWindowNotFound = errors.New("window not found")

// Kind classifies windows.
type Kind string

const (
	KindMain  Kind = "main"  // workspace main window, owns a registry entry
	KindBoot  Kind = "boot"  // splash shown while a kernel boots
	KindError Kind = "error" // remediation message
	KindAux   Kind = "aux"   // extra window opened by workspace content
	KindInit  Kind = "init"  // first-run workspace picker
)

// Rect is a position and size in screen pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Display describes the primary screen.
type Display struct {
	Size     Rect `json:"size"`
	WorkArea Rect `json:"workArea"`
}

// Options describe a window to create.
type Options struct {
	Kind       Kind   `json:"kind"`
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`
	Bounds     Rect   `json:"bounds"`
	Center     bool   `json:"center,omitempty"`
	MinWidth   int    `json:"minWidth,omitempty"`
	MinHeight  int    `json:"minHeight,omitempty"`
	Hidden     bool   `json:"hidden,omitempty"`
	Minimized  bool   `json:"minimized,omitempty"`
	Maximized  bool   `json:"maximized,omitempty"`
	Fullscreen bool   `json:"fullscreen,omitempty"`
	DevTools   bool   `json:"devTools,omitempty"`
}

// Status is a snapshot of a window's state.
type Status struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	ContentID   string `json:"contentId"`
	URL         string `json:"url"`
	Bounds      Rect   `json:"bounds"`
	Visible     bool   `json:"visible"`
	Minimized   bool   `json:"minimized"`
	Maximized   bool   `json:"maximized"`
	Focused     bool   `json:"focused"`
	Fullscreen  bool   `json:"fullscreen"`
	AlwaysOnTop bool   `json:"alwaysOnTop"`
	DevTools    bool   `json:"devTools"`
}

// Host is the windowing system as seen by the supervisor.
type Host interface {
	PrimaryDisplay() Display

	Create(opts Options) (string, error)
	ShowError(title, body string) (string, error)
	ContentID(id string) string
	Load(id, url, proxy string) error

	Show(id string) error
	Hide(id string) error
	Minimize(id string) error
	Maximize(id string) error
	Unmaximize(id string) error
	Restore(id string) error
	Focus(id string) error
	Destroy(id string) error
	SetFullscreen(id string, on bool) error
	SetAlwaysOnTop(id string, on bool) error
	OpenDevTools(id string) error

	State(id string) (Status, bool)
	Windows() []string

	// Send delivers a message to one window's content.
	Send(id, channel string, payload map[string]interface{}) error
	// Broadcast delivers a message to every window.
	Broadcast(channel string, payload map[string]interface{})

	CreateTray(windowID, tooltip string) (string, error)
	DestroyTray(trayID string) error

	RegisterHotkey(accelerator string) error
	UnregisterHotkey(accelerator string)
	UnregisterAllHotkeys()
	IsHotkeyRegistered(accelerator string) bool
}

// Reporter is implemented by hosts whose window state is reported by the
// window content instead of being queried.
type Reporter interface {
	Report(id, event string) error
}

// Window state events reported by window content.
const (
	ReportFocus           = "focus"
	ReportBlur            = "blur"
	ReportShow            = "show"
	ReportHide            = "hide"
	ReportMinimize        = "minimize"
	ReportRestore         = "restore"
	ReportMaximize        = "maximize"
	ReportUnmaximize      = "unmaximize"
	ReportEnterFullScreen = "enter-full-screen"
	ReportLeaveFullScreen = "leave-full-screen"
)

// Channels of messages sent to window content.
const (
	ChannelSaveClose   = "siyuan-save-close"
	ChannelOpenURL     = "siyuan-open-url"
	ChannelHotkey      = "siyuan-hotkey"
	ChannelSendWindows = "siyuan-send-windows"
)

// PortOf returns the port of a window URL, or 0 when the URL carries none.
func PortOf(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0
	}
	return p
}

// TrayPlatform reports whether trays live with a workspace on goos.
func TrayPlatform(goos string) bool {
	return goos == "windows" || goos == "linux"
}
