// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/deskshell/internal/window"
)

func TestAccelerator(t *testing.T) {
	tests := []struct {
		hotkey string
		want   string
	}{
		{"", ""},
		{"S", "S"},
		{"⌘S", "CommandOrControl+S"},
		{"⌥⌘S", "CommandOrControl+Alt+S"},
		{"⇧⌘F", "CommandOrControl+Shift+F"},
		{"⌃⌥M", "Control+Alt+M"},
		{"⌥F12", "Alt+F12"},
		{"⌃⇧⌥⌘A", "CommandOrControl+Control+Shift+Alt+A"},
	}
	for _, tt := range tests {
		t.Run(tt.hotkey, func(t *testing.T) {
			assert.Equal(t, tt.want, Accelerator(tt.hotkey))
		})
	}
}

func TestHotkey_TogglesOnlyTheActiveWorkspace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t, "/w/a")
	b := h.open(t, "/w/b")

	for _, e := range []string{a.Window, b.Window} {
		require.NoError(t, h.router.Dispatch(ctx, &Hotkeys{Target: Target{Window: e}, Hotkeys: []string{"⌥M"}}))
	}
	require.NoError(t, h.router.Dispatch(ctx, &WindowEvent{Target: Target{Window: a.Window}, Event: window.ReportFocus}))
	require.NoError(t, h.router.Dispatch(ctx, &WindowEvent{Target: Target{Window: b.Window}, Event: window.ReportFocus}))

	require.NoError(t, h.router.Dispatch(ctx, &HotkeyFired{Accelerator: "Alt+M"}))

	stB := h.status(t, b.Window)
	assert.True(t, stB.Minimized)
	assert.False(t, stB.Visible, "hidden from the taskbar on linux")
	stA := h.status(t, a.Window)
	assert.True(t, stA.Visible)
	assert.False(t, stA.Minimized)

	require.NoError(t, h.router.Dispatch(ctx, &HotkeyFired{Accelerator: "Alt+M"}))

	stB = h.status(t, b.Window)
	assert.False(t, stB.Minimized)
	assert.True(t, stB.Visible)
	stA = h.status(t, a.Window)
	assert.True(t, stA.Visible)
	assert.False(t, stA.Minimized)
}

func TestHotkey_FallsBackToLatestBinding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t, "/w/a")
	b := h.open(t, "/w/b")

	require.NoError(t, h.router.Dispatch(ctx, &Hotkeys{Target: Target{Window: a.Window}, Hotkeys: []string{"⌥M"}}))
	require.NoError(t, h.router.Dispatch(ctx, &Hotkeys{Target: Target{Window: b.Window}, Hotkeys: []string{"⌥M"}}))
	require.NoError(t, h.host.Minimize(a.Window))
	require.NoError(t, h.host.Minimize(b.Window))

	require.NoError(t, h.router.Dispatch(ctx, &HotkeyFired{Accelerator: "Alt+M"}))

	assert.False(t, h.status(t, b.Window).Minimized)
	assert.True(t, h.status(t, a.Window).Minimized)
}

func TestHotkey_VisibleUnfocusedWindowIsBroughtForward(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t, "/w/a")

	require.NoError(t, h.router.Dispatch(ctx, &Hotkeys{Target: Target{Window: a.Window}, Hotkeys: []string{"⌥M"}}))
	require.NoError(t, h.router.Dispatch(ctx, &WindowEvent{Target: Target{Window: a.Window}, Event: window.ReportBlur}))

	require.NoError(t, h.router.Dispatch(ctx, &HotkeyFired{Accelerator: "Alt+M"}))

	st := h.status(t, a.Window)
	assert.True(t, st.Visible)
	assert.False(t, st.Minimized)
}

func TestHotkey_SecondaryIsBroadcast(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t, "/w/a")

	require.NoError(t, h.router.Dispatch(ctx, &Hotkeys{Target: Target{Window: a.Window}, Hotkeys: []string{"⌥M", "⌘F"}}))
	assert.True(t, h.host.IsHotkeyRegistered("Alt+M"))
	assert.True(t, h.host.IsHotkeyRegistered("CommandOrControl+F"))

	require.NoError(t, h.router.Dispatch(ctx, &HotkeyFired{Accelerator: "CommandOrControl+F"}))

	msgs := h.messages(t, window.ChannelHotkey)
	require.Len(t, msgs, 1)
	assert.Equal(t, "", msgs[0].Window)
	assert.Equal(t, map[string]interface{}{"hotkey": "⌘F"}, msgs[0].Payload["data"])
	assert.True(t, h.status(t, a.Window).Visible)
}

func TestHotkey_Unbound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t, "/w/a")

	err := h.router.Dispatch(ctx, &HotkeyFired{Accelerator: "Alt+M"})
	assert.ErrorIs(t, err, ErrHotkeyNotBound)

	require.NoError(t, h.router.Dispatch(ctx, &Hotkeys{Target: Target{Window: a.Window}, Hotkeys: []string{"⌥M"}}))
	require.NoError(t, h.router.Dispatch(ctx, &UnregisterGlobalShortcut{Accelerator: "⌥M"}))

	assert.False(t, h.host.IsHotkeyRegistered("Alt+M"))
	err = h.router.Dispatch(ctx, &HotkeyFired{Accelerator: "Alt+M"})
	assert.ErrorIs(t, err, ErrHotkeyNotBound)
}

func TestHotkeys_RecordedOnEntry(t *testing.T) {
	h := newHarness(t)
	a := h.open(t, "/w/a")

	require.NoError(t, h.router.Dispatch(context.Background(), &Hotkeys{Target: Target{Window: a.Window}, Hotkeys: []string{"⌥M", "⌘F"}}))

	e, ok := h.sup.Registry().FindByWindow(a.Window)
	require.True(t, ok)
	assert.Equal(t, []string{"⌥M", "⌘F"}, e.Hotkeys)
}

func TestTrayToggle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t, "/w/a")

	require.NoError(t, h.router.Dispatch(ctx, &TrayToggle{Target{Window: a.Window}}))
	st := h.status(t, a.Window)
	assert.True(t, st.Minimized)
	assert.False(t, st.Visible)

	require.NoError(t, h.router.Dispatch(ctx, &TrayToggle{Target{Window: a.Window}}))
	st = h.status(t, a.Window)
	assert.False(t, st.Minimized)
	assert.True(t, st.Visible)
}

func TestHideWindow_KeepsTaskbarEntryOnDarwin(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.GOOS = "darwin" })
	a := h.open(t, "/w/a")

	require.NoError(t, h.router.Dispatch(context.Background(), &ConfigTray{Target{Window: a.Window}}))

	st := h.status(t, a.Window)
	assert.True(t, st.Minimized)
	assert.True(t, st.Visible)
}
