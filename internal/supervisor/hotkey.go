// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wingedpig/deskshell/internal/window"
	"github.com/wingedpig/deskshell/internal/workspace"
)

// ErrHotkeyNotBound is returned when a fired accelerator has no binding.
var ErrHotkeyNotBound = errors.New("hot-key is not bound")

var modifiers = []struct {
	symbol string
	name   string
}{
	{"⌘", "CommandOrControl+"},
	{"⌃", "Control+"},
	{"⇧", "Shift+"},
	{"⌥", "Alt+"},
}

// Accelerator translates a hot-key written with modifier symbols, such as
// "⌥⌘S", into a host accelerator such as "CommandOrControl+Alt+S".
func Accelerator(hotkey string) string {
	if hotkey == "" {
		return ""
	}
	var prefix strings.Builder
	key := hotkey
	for _, m := range modifiers {
		if strings.Contains(hotkey, m.symbol) {
			prefix.WriteString(m.name)
		}
		key = strings.Replace(key, m.symbol, "", 1)
	}
	return prefix.String() + key
}

// binding is a registered global accelerator. Only the first hot-key of a
// workspace toggles its window; the others are forwarded to window content.
type binding struct {
	hotkey  string
	primary bool
}

// bindHotkeys records the hot-keys of a window's workspace and registers
// them globally. A later binding of the same accelerator replaces an
// earlier one.
func (r *Router) bindHotkeys(windowID string, hotkeys []string) error {
	if len(hotkeys) == 0 {
		return nil
	}
	if err := r.registry.UpdateHotkeys(windowID, hotkeys); err != nil && !errors.Is(err, workspace.ErrNotFound) {
		return err
	}

	for i, hk := range hotkeys {
		accel := Accelerator(hk)
		if accel == "" {
			continue
		}
		if r.host.IsHotkeyRegistered(accel) {
			r.host.UnregisterHotkey(accel)
		}
		if err := r.host.RegisterHotkey(accel); err != nil {
			r.logger.Warn("register global hot-key", zap.String("accelerator", accel), zap.Error(err))
			continue
		}
		r.mu.Lock()
		r.bindings[accel] = binding{hotkey: hk, primary: i == 0}
		r.mu.Unlock()
	}
	return nil
}

func (r *Router) unbindHotkey(hotkey string) {
	accel := Accelerator(hotkey)
	if accel == "" {
		return
	}
	r.host.UnregisterHotkey(accel)
	r.mu.Lock()
	delete(r.bindings, accel)
	r.mu.Unlock()
}

// hotkeyFired handles a global accelerator press.
func (r *Router) hotkeyFired(accel string) error {
	r.mu.Lock()
	b, ok := r.bindings[accel]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrHotkeyNotBound, accel)
	}

	if !b.primary {
		r.host.Broadcast(window.ChannelHotkey, map[string]interface{}{"hotkey": b.hotkey})
		return nil
	}

	e, ok := r.registry.ResolveHotkey(b.hotkey)
	if !ok {
		return nil
	}
	return r.toggle(e.Window)
}

// toggle flips a main window between shown and hidden:
// minimized windows are restored, visible but unfocused windows are brought
// to the front, focused windows are hidden and hidden windows are shown.
func (r *Router) toggle(id string) error {
	st, err := r.state(id)
	if err != nil {
		return err
	}
	switch {
	case st.Minimized:
		if err := r.host.Restore(id); err != nil {
			return err
		}
		return r.host.Show(id)
	case st.Visible && !st.Focused:
		return r.host.Show(id)
	case st.Visible:
		return r.hideWindow(id)
	default:
		return r.host.Show(id)
	}
}

// trayToggle is the tray icon click: show a hidden window, hide a shown one.
func (r *Router) trayToggle(id string) error {
	st, err := r.state(id)
	if err != nil {
		return err
	}
	if st.Visible && !st.Minimized {
		return r.hideWindow(id)
	}
	if st.Minimized {
		if err := r.host.Restore(id); err != nil {
			return err
		}
	}
	return r.host.Show(id)
}

// hideWindow minimizes a window, and removes it from the taskbar on
// platforms with a tray.
func (r *Router) hideWindow(id string) error {
	if err := r.host.Minimize(id); err != nil {
		return err
	}
	if window.TrayPlatform(r.cfg.GOOS) {
		return r.host.Hide(id)
	}
	return nil
}
