// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package workspace holds the table of open workspaces.
package workspace

import (
	"errors"
	"sync"

	"github.com/wingedpig/deskshell/internal/kernel"
)

var (
	// ErrDuplicateWorkspace is returned when a workspace directory is already registered.
	ErrDuplicateWorkspace = errors.New("workspace already open")
	// ErrDuplicateWindow is returned when a window already owns an entry.
	ErrDuplicateWindow = errors.New("window already registered")
	// ErrPortClaimed is returned when another main window already uses the port.
	ErrPortClaimed = errors.New("port already claimed by a workspace")
	// ErrNotFound is returned when no entry owns the window.
	ErrNotFound = errors.New("workspace entry not found")
)

// Entry is one open workspace.
type Entry struct {
	// Dir is empty until the workspace is known, either from the open
	// request or from the window content's handshake.
	Dir     string        `json:"workspaceDir"`
	Window  string        `json:"windowId"`
	Content string        `json:"contentId"`
	Process kernel.Handle `json:"-"`
	Port    int           `json:"port"`
	Tray    string        `json:"tray,omitempty"`
	Hotkeys []string      `json:"hotkeys"`

	// Initialized is set by the first handshake of the window content.
	Initialized bool `json:"initialized"`

	hotkeySeq uint64
}

// PID returns the kernel pid, or 0 when the entry has no process.
func (e Entry) PID() int {
	if e.Process == nil {
		return 0
	}
	return e.Process.PID()
}

// Registry is the ordered set of open workspaces. The first registered entry
// is "workspace 0", the fallback target for launches and hot-keys.
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry
	focus   []string // window ids, most recently focused last
	seq     uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an entry.
func (r *Registry) Register(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.entries {
		if e.Dir != "" && existing.Dir == e.Dir {
			return ErrDuplicateWorkspace
		}
		if existing.Window == e.Window {
			return ErrDuplicateWindow
		}
		if e.Port != 0 && existing.Port == e.Port {
			return ErrPortClaimed
		}
	}

	e.Hotkeys = append([]string(nil), e.Hotkeys...)
	r.entries = append(r.entries, &e)
	return nil
}

// Unregister removes the entry owned by windowID. It reports the removed
// entry, or false if none matched.
func (r *Registry) Unregister(windowID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.Window == windowID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			r.dropFocus(windowID)
			return e.copy(), true
		}
	}
	return Entry{}, false
}

// FindByWindow returns the entry owned by a window.
func (r *Registry) FindByWindow(windowID string) (Entry, bool) {
	return r.find(func(e *Entry) bool { return e.Window == windowID })
}

// FindByWorkspace returns the entry serving dir.
func (r *Registry) FindByWorkspace(dir string) (Entry, bool) {
	if dir == "" {
		return Entry{}, false
	}
	return r.find(func(e *Entry) bool { return e.Dir == dir })
}

// FindByContentID returns the entry whose window renders content id.
func (r *Registry) FindByContentID(id string) (Entry, bool) {
	return r.find(func(e *Entry) bool { return e.Content == id })
}

// FindByPort returns the entry whose main window is bound to port.
func (r *Registry) FindByPort(port int) (Entry, bool) {
	return r.find(func(e *Entry) bool { return e.Port == port })
}

// First returns workspace 0.
func (r *Registry) First() (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[0].copy(), true
}

// Entries returns a snapshot in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.copy()
	}
	return out
}

// Len returns the number of open workspaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// UpdateHotkeys replaces the hot-keys bound by a window's workspace.
func (r *Registry) UpdateHotkeys(windowID string, hotkeys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.lookup(windowID)
	if e == nil {
		return ErrNotFound
	}
	r.seq++
	e.Hotkeys = append([]string(nil), hotkeys...)
	e.hotkeySeq = r.seq
	return nil
}

// Initialize records the first handshake of an entry's window content and
// sets its workspace directory. It reports false when the entry was already
// initialized, in which case nothing changes.
func (r *Registry) Initialize(windowID, dir string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.lookup(windowID)
	if e == nil {
		return false, ErrNotFound
	}
	if e.Initialized {
		return false, nil
	}
	for _, other := range r.entries {
		if other != e && other.Dir == dir {
			return false, ErrDuplicateWorkspace
		}
	}
	e.Dir = dir
	e.Initialized = true
	return true, nil
}

// SetTray records the tray handle of an entry.
func (r *Registry) SetTray(windowID, tray string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.lookup(windowID)
	if e == nil {
		return ErrNotFound
	}
	e.Tray = tray
	return nil
}

// Touch marks a window as the most recently focused one. Windows that do not
// own an entry are tracked too, so auxiliary windows can become active.
func (r *Registry) Touch(windowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropFocus(windowID)
	r.focus = append(r.focus, windowID)
}

// Forget removes a window from the focus history.
func (r *Registry) Forget(windowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropFocus(windowID)
}

// LatestFocused returns the most recently focused window id, registered or not.
func (r *Registry) LatestFocused() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.focus) == 0 {
		return "", false
	}
	return r.focus[len(r.focus)-1], true
}

// Active returns the most recently focused entry, falling back to workspace 0.
func (r *Registry) Active() (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.focus) - 1; i >= 0; i-- {
		if e := r.lookup(r.focus[i]); e != nil {
			return e.copy(), true
		}
	}
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[0].copy(), true
}

// ResolveHotkey finds the entry a primary hot-key should act on. The most
// recently focused entry whose first hot-key matches wins. Otherwise the
// entry that most recently bound it is used.
func (r *Registry) ResolveHotkey(accelerator string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := func(e *Entry) bool {
		return len(e.Hotkeys) > 0 && e.Hotkeys[0] == accelerator
	}

	for i := len(r.focus) - 1; i >= 0; i-- {
		if e := r.lookup(r.focus[i]); e != nil && primary(e) {
			return e.copy(), true
		}
	}

	var best *Entry
	for _, e := range r.entries {
		if primary(e) && (best == nil || e.hotkeySeq > best.hotkeySeq) {
			best = e
		}
	}
	if best == nil {
		return Entry{}, false
	}
	return best.copy(), true
}

func (r *Registry) find(match func(*Entry) bool) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if match(e) {
			return e.copy(), true
		}
	}
	return Entry{}, false
}

// lookup must be called with r.mu held.
func (r *Registry) lookup(windowID string) *Entry {
	for _, e := range r.entries {
		if e.Window == windowID {
			return e
		}
	}
	return nil
}

func (r *Registry) dropFocus(windowID string) {
	for i, id := range r.focus {
		if id == windowID {
			r.focus = append(r.focus[:i], r.focus[i+1:]...)
			return
		}
	}
}

func (e *Entry) copy() Entry {
	c := *e
	c.Hotkeys = append([]string(nil), e.Hotkeys...)
	return c
}
