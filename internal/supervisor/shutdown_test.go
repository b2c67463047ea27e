// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/deskshell/internal/events"
	"github.com/wingedpig/deskshell/internal/window"
)

func readState(t *testing.T, h *harness) string {
	t.Helper()
	data, err := os.ReadFile(h.statePath())
	require.NoError(t, err)
	return string(data)
}

func TestExit_LastWorkspaceFinishes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entries := []struct{ dir, hotkey string }{
		{"/w/a", "⌥1"},
		{"/w/b", "⌥2"},
		{"/w/c", "⌥3"},
	}
	var ports []int
	for _, e := range entries {
		entry := h.open(t, e.dir)
		require.NoError(t, h.router.Dispatch(ctx, &Hotkeys{Target: Target{Window: entry.Window}, Hotkeys: []string{e.hotkey}}))
		ports = append(ports, entry.Port)
	}
	coord := h.sup.Coordinator()

	for i, p := range ports[:2] {
		coord.Exit(p, "")

		assert.Equal(t, 2-i, h.sup.Registry().Len())
		assert.True(t, h.host.IsHotkeyRegistered("Alt+1"), "hot-keys stay bound while workspaces remain")
		assert.Equal(t, "{}", readState(t, h), "window state is only written for the last workspace")
		assert.False(t, isClosed(coord.Done()))
	}

	last, _ := h.sup.Registry().FindByPort(ports[2])
	require.NoError(t, h.host.SetBounds(last.Window, window.Rect{X: 40, Y: 30, Width: 1200, Height: 800}))
	require.NoError(t, h.host.Maximize(last.Window))

	coord.Exit(ports[2], "")

	assert.Equal(t, 0, h.sup.Registry().Len())
	assert.True(t, isClosed(coord.Done()))
	assert.Empty(t, h.host.Windows())
	for _, accel := range []string{"Alt+1", "Alt+2", "Alt+3"} {
		assert.False(t, h.host.IsHotkeyRegistered(accel), accel)
	}

	var saved window.State
	require.NoError(t, json.Unmarshal([]byte(readState(t, h)), &saved))
	assert.Equal(t, window.State{IsMaximized: true, X: 40, Y: 30, Width: 1200, Height: 800}, saved)

	assert.ElementsMatch(t, ports, h.ports.releasedPorts())
	assert.Len(t, h.history(t, events.EventWorkspaceClosed), 3)
}

func TestExit_ResetOnRestartEmptiesState(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, "/w/a")
	coord := h.sup.Coordinator()

	coord.SetResetOnRestart(true)
	coord.Exit(e.Port, "")

	assert.Equal(t, "{}", readState(t, h))
	assert.True(t, isClosed(coord.Done()))
}

func TestExit_WithErrorWindowKeepsIt(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, "/w/a")
	coord := h.sup.Coordinator()

	errID, err := h.host.ShowError("title", "body")
	require.NoError(t, err)
	coord.Exit(e.Port, errID)

	assert.Equal(t, []string{errID}, h.host.Windows())
	assert.False(t, isClosed(coord.Done()))

	require.NoError(t, h.router.Dispatch(context.Background(), &Destroy{Target{Window: errID}}))
	assert.True(t, isClosed(coord.Done()))
}

func TestExit_DestroysWindowsOnItsPort(t *testing.T) {
	h := newHarness(t)
	a := h.open(t, "/w/a")
	b := h.open(t, "/w/b")
	ctx := context.Background()

	require.NoError(t, h.router.Dispatch(ctx, &OpenWindow{URL: serverURL(a.Port) + "/stage/build/app/window.html"}))
	require.NoError(t, h.router.Dispatch(ctx, &OpenWindow{URL: serverURL(b.Port) + "/stage/build/app/window.html"}))
	require.Len(t, h.windowsOfKind(window.KindAux), 2)

	h.sup.Coordinator().Exit(a.Port, "")

	_, alive := h.host.State(a.Window)
	assert.False(t, alive)
	h.status(t, b.Window)
	aux := h.windowsOfKind(window.KindAux)
	require.Len(t, aux, 1)
	assert.Equal(t, b.Port, window.PortOf(h.status(t, aux[0]).URL))
}

func TestExit_UnknownPortIsNoop(t *testing.T) {
	h := newHarness(t)
	h.open(t, "/w/a")

	h.sup.Coordinator().Exit(9999, "")

	assert.Equal(t, 1, h.sup.Registry().Len())
	assert.False(t, isClosed(h.sup.Coordinator().Done()))
}

func TestExit_DestroysTray(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, "")
	h.open(t, "/w/b")

	require.NoError(t, h.router.Dispatch(context.Background(), &Init{Target: Target{Window: e.Window}, WorkspaceDir: "/home/u/SiYuan", Port: e.Port}))
	require.Equal(t, 1, h.host.Trays())

	h.sup.Coordinator().Exit(e.Port, "")
	assert.Equal(t, 0, h.host.Trays())
	assert.Equal(t, 1, h.sup.Registry().Len())
}

func TestRequestClose_WaitsForQuit(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, "/w/a")
	coord := h.sup.Coordinator()
	ctx := context.Background()

	require.NoError(t, h.router.Dispatch(ctx, &CloseRequested{Target{Window: e.Window}}))

	h.status(t, e.Window)
	assert.Equal(t, 1, coord.Pending())
	msgs := h.messages(t, window.ChannelSaveClose)
	require.Len(t, msgs, 1)
	assert.Equal(t, e.Window, msgs[0].Window)
	assert.Equal(t, map[string]interface{}{"quit": false}, msgs[0].Payload["data"])

	require.NoError(t, h.router.Dispatch(ctx, &Quit{Port: e.Port}))
	assert.Equal(t, 0, coord.Pending())
	assert.True(t, isClosed(coord.Done()))
}

func TestRequestClose_RepeatedRequestCountsOnce(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, "/w/a")
	coord := h.sup.Coordinator()

	require.NoError(t, coord.RequestClose(e.Window, false))
	require.NoError(t, coord.RequestClose(e.Window, true))
	assert.Equal(t, 1, coord.Pending())

	msgs := h.messages(t, window.ChannelSaveClose)
	require.Len(t, msgs, 2)
	assert.Equal(t, map[string]interface{}{"quit": true}, msgs[1].Payload["data"])
}

func TestRequestClose_UnknownWindow(t *testing.T) {
	h := newHarness(t)
	err := h.sup.Coordinator().RequestClose("nope", false)
	assert.ErrorIs(t, err, window.ErrWindowNotFound)
	assert.Equal(t, 0, h.sup.Coordinator().Pending())
}

func TestQuitAll(t *testing.T) {
	t.Run("no workspace terminates", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.router.Dispatch(context.Background(), &AppQuit{}))
		assert.True(t, isClosed(h.sup.Coordinator().Done()))
	})

	t.Run("asks every workspace to save", func(t *testing.T) {
		h := newHarness(t)
		h.open(t, "/w/a")
		h.open(t, "/w/b")

		require.NoError(t, h.router.Dispatch(context.Background(), &AppQuit{}))

		coord := h.sup.Coordinator()
		assert.False(t, isClosed(coord.Done()))
		assert.Equal(t, 2, coord.Pending())
		for _, m := range h.messages(t, window.ChannelSaveClose) {
			assert.Equal(t, map[string]interface{}{"quit": true}, m.Payload["data"])
		}
	})
}

func TestWindowDestroyed_WaitsForBoots(t *testing.T) {
	h := newHarness(t)
	coord := h.sup.Coordinator()

	id, err := h.host.ShowError("title", "body")
	require.NoError(t, err)
	require.NoError(t, h.host.Destroy(id))

	h.sup.booting.Add(1)
	coord.WindowDestroyed(id)
	assert.False(t, isClosed(coord.Done()))

	h.sup.booting.Add(-1)
	coord.WindowDestroyed(id)
	assert.True(t, isClosed(coord.Done()))
}

func TestTerminate_Idempotent(t *testing.T) {
	h := newHarness(t)
	coord := h.sup.Coordinator()
	coord.Terminate()
	coord.Terminate()
	assert.True(t, isClosed(coord.Done()))
}
