// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/deskshell/internal/events"
	"github.com/wingedpig/deskshell/internal/kernel"
	"github.com/wingedpig/deskshell/internal/port"
	"github.com/wingedpig/deskshell/internal/window"
)

func TestOpenWorkspace_Success(t *testing.T) {
	h := newHarness(t)
	h.api.network = kernel.Network{Proxy: kernel.Proxy{Scheme: "http", Host: "10.0.0.1", Port: "8080"}}

	e := h.open(t, "/w/a")

	assert.Equal(t, 7001, e.Port)
	assert.Equal(t, 1000, e.PID())
	assert.Equal(t, []string{"--port", "7001", "--wd", "/opt/siyuan", "--workspace", "/w/a"}, h.spawner.argv(0))

	// The boot window is gone, only the main window is left.
	assert.Equal(t, []string{e.Window}, h.host.Windows())
	st := h.status(t, e.Window)
	assert.Equal(t, window.KindMain, st.Kind)
	assert.True(t, st.Visible)
	assert.True(t, strings.HasPrefix(st.URL, "http://127.0.0.1:7001/stage/build/app/index.html?v="), st.URL)
	assert.Equal(t, st.ContentID, e.Content)

	var proxied bool
	for _, ev := range h.history(t, events.EventWindowLoad) {
		if ev.Window == e.Window {
			proxied = ev.Payload["proxy"] == "http://10.0.0.1:8080"
		}
	}
	assert.True(t, proxied, "main window should load through the kernel proxy")

	var bootPage bool
	for _, ev := range h.history(t, events.EventWindowLoad) {
		if ev.Payload["url"] == "http://127.0.0.1:7001/appearance/boot/index.html" {
			bootPage = true
		}
	}
	assert.True(t, bootPage, "boot window should show the boot page once the kernel answers")

	opened := h.history(t, events.EventWorkspaceOpened)
	require.Len(t, opened, 1)
	assert.Equal(t, "/w/a", opened[0].Workspace)
	assert.Equal(t, e.Window, opened[0].Window)
	assert.Len(t, h.history(t, events.EventWorkspaceBooting), 1)
}

func TestOpenWorkspace_AlreadyOpenShowsWindow(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, "/w/a")
	require.NoError(t, h.host.Minimize(e.Window))

	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/a"})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, h.spawner.spawned())
	st := h.status(t, e.Window)
	assert.False(t, st.Minimized)
	assert.True(t, st.Visible)
}

func TestOpenWorkspace_ConcurrentSameWorkspaceBootsOnce(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/a"})
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, h.spawner.spawned())
	assert.Equal(t, 1, h.sup.Registry().Len())
	for _, ok := range results {
		assert.True(t, ok)
	}
}

func TestOpenWorkspace_ConcurrentWorkspacesGetDistinctPorts(t *testing.T) {
	h := newHarness(t)

	dirs := []string{"/w/a", "/w/b", "/w/c"}
	var wg sync.WaitGroup
	for _, dir := range dirs {
		wg.Add(1)
		go func(dir string) {
			defer wg.Done()
			ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: dir})
			assert.NoError(t, err)
			assert.True(t, ok)
		}(dir)
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, e := range h.sup.Registry().Entries() {
		assert.False(t, seen[e.Port], "port %d used twice", e.Port)
		seen[e.Port] = true
	}
	assert.Len(t, seen, 3)
	assert.Len(t, h.windowsOfKind(window.KindMain), 3)
	assert.Empty(t, h.windowsOfKind(window.KindBoot))
}

func TestOpenWorkspace_MissingBinary(t *testing.T) {
	h := newHarness(t)
	h.spawner.missing = true

	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/a"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, kernel.ErrKernelBinaryMissing)

	assert.Equal(t, 0, h.spawner.spawned())
	assert.Equal(t, 0, h.sup.Registry().Len())
	assert.Empty(t, h.windowsOfKind(window.KindBoot))

	errs := h.history(t, events.EventWindowError)
	require.Len(t, errs, 1)
	assert.Equal(t, "⚠️ Kernel program is missing", errs[0].Payload["title"])
	assert.Contains(t, errs[0].Payload["body"], "/opt/siyuan/kernel/SiYuan-Kernel")

	failed := h.history(t, events.EventWorkspaceFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "/w/a", failed[0].Workspace)
}

func TestOpenWorkspace_NoPort(t *testing.T) {
	h := newHarness(t)
	h.ports.err = port.ErrNoPortAvailable

	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/a"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, port.ErrNoPortAvailable)
	assert.Equal(t, 0, h.spawner.spawned())
	assert.Empty(t, h.host.Windows())
}

func TestOpenWorkspace_VersionMismatch(t *testing.T) {
	h := newHarness(t)
	h.api.version = "2.9.0"

	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/a"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, kernel.ErrVersionMismatch)

	assert.Equal(t, []int{7001}, h.api.exited())
	assert.True(t, h.spawner.proc(0).StopRequested())
	assert.Contains(t, h.ports.releasedPorts(), 7001)
	assert.Equal(t, 0, h.sup.Registry().Len())
	assert.Empty(t, h.windowsOfKind(window.KindError))
}

func TestOpenWorkspace_DevModeIgnoresVersion(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Dev = true })
	h.api.version = "2.9.0"

	h.open(t, "/w/a")
	h.open(t, "/w/b")

	assert.Equal(t, []string{"--port", "6806", "--wd", "/opt/siyuan", "--mode", "dev", "--workspace", "/w/a"}, h.spawner.argv(0))
	assert.Equal(t, []string{"--port", "7001", "--wd", "/opt/siyuan", "--workspace", "/w/b"}, h.spawner.argv(1))
}

func TestOpenWorkspace_PinnedPortAndLang(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Lang = "zh_CN" })

	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/a", Port: 6900})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{"--port", "6900", "--wd", "/opt/siyuan", "--workspace", "/w/a", "--port", "6900", "--lang", "zh_CN"}, h.spawner.argv(0))
}

func TestOpenWorkspace_Timeout(t *testing.T) {
	h := newHarness(t)
	h.api.versionErr = errors.New("connection refused")

	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/a"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, kernel.ErrBootTimeout)

	assert.True(t, h.spawner.proc(0).StopRequested())
	assert.Equal(t, 0, h.sup.Registry().Len())

	errs := h.history(t, events.EventWindowError)
	require.Len(t, errs, 1)
	title, _ := kernel.TimeoutNotice()
	assert.Equal(t, title, errs[0].Payload["title"])
	assert.Len(t, h.windowsOfKind(window.KindError), 1)
	assert.Empty(t, h.windowsOfKind(window.KindBoot))
}

func TestOpenWorkspace_KernelExitsDuringBoot(t *testing.T) {
	h := newHarness(t)
	h.spawner.onSpawn = func(p *fakeProc) { p.exit(kernel.CodePortBindFailed) }

	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/a"})
	assert.False(t, ok)

	var exitErr *kernel.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, kernel.CodePortBindFailed, exitErr.Code)

	require.Eventually(t, func() bool {
		return len(h.windowsOfKind(window.KindError)) == 1
	}, time.Second, 5*time.Millisecond)

	errs := h.history(t, events.EventWindowError)
	require.Len(t, errs, 1)
	assert.Equal(t, "⚠️ Failed to listen to port 7001", errs[0].Payload["title"])
	assert.False(t, h.spawner.proc(0).StopRequested())
}

func TestOpenWorkspace_HiddenFirstWindowIsMinimized(t *testing.T) {
	h := newHarness(t)

	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/a", OpenAsHidden: true})
	require.NoError(t, err)
	require.True(t, ok)

	e, _ := h.sup.Registry().FindByWorkspace("/w/a")
	st := h.status(t, e.Window)
	assert.True(t, st.Minimized)
	assert.False(t, st.Visible)
}

func TestOpenWorkspace_RestoresSavedState(t *testing.T) {
	h := newHarness(t)
	h.writeState(t, `{"isMaximized":true,"x":10,"y":20,"width":1000,"height":700}`)

	e := h.open(t, "/w/a")

	st := h.status(t, e.Window)
	assert.True(t, st.Maximized)
	assert.True(t, st.Visible)
	assert.Equal(t, window.Rect{X: 10, Y: 20, Width: 1000, Height: 700}, st.Bounds)
}

func TestOpenWorkspace_CorruptStateUsesDefaults(t *testing.T) {
	h := newHarness(t)
	h.writeState(t, `{not json`)

	e := h.open(t, "/w/a")

	st := h.status(t, e.Window)
	assert.Equal(t, window.Rect{Width: 1536, Height: 832}, st.Bounds)
	data, err := os.ReadFile(h.statePath())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestKernelExit_WorkspaceLockedFocusesFirstWorkspace(t *testing.T) {
	h := newHarness(t)
	a := h.open(t, "/w/a")
	require.NoError(t, h.host.Minimize(a.Window))

	h.spawner.onSpawn = func(p *fakeProc) { p.exit(kernel.CodeWorkspaceLocked) }
	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/b"})
	assert.False(t, ok)
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		return len(h.windowsOfKind(window.KindError)) == 1
	}, time.Second, 5*time.Millisecond)

	st := h.status(t, a.Window)
	assert.False(t, st.Minimized)
	assert.True(t, st.Visible)
	assert.Equal(t, 1, h.sup.Registry().Len())
}

func TestKernelExit_ClosesItsWorkspace(t *testing.T) {
	h := newHarness(t)
	a := h.open(t, "/w/a")
	b := h.open(t, "/w/b")

	h.spawner.proc(1).exit(kernel.CodeDatabaseLocked)

	require.Eventually(t, func() bool {
		return h.sup.Registry().Len() == 1 && len(h.windowsOfKind(window.KindError)) == 1
	}, time.Second, 5*time.Millisecond)

	_, alive := h.host.State(b.Window)
	assert.False(t, alive)
	h.status(t, a.Window)
	assert.Contains(t, h.ports.releasedPorts(), b.Port)
	assert.False(t, isClosed(h.sup.Coordinator().Done()))

	closed := h.history(t, events.EventWorkspaceClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "/w/b", closed[0].Workspace)

	exited := h.history(t, events.EventKernelExited)
	require.Len(t, exited, 1)
	assert.Equal(t, "database-locked", exited[0].Payload["category"])
}

func TestKernelExit_LastWorkspaceLeavesErrorWindow(t *testing.T) {
	h := newHarness(t)
	a := h.open(t, "/w/a")

	h.spawner.proc(0).exit(kernel.CodeCorruptionAvoided)

	require.Eventually(t, func() bool {
		return h.sup.Registry().Len() == 0
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		ids := h.host.Windows()
		return len(ids) == 1 && len(h.windowsOfKind(window.KindError)) == 1
	}, time.Second, 5*time.Millisecond)

	_, alive := h.host.State(a.Window)
	assert.False(t, alive)
	assert.False(t, isClosed(h.sup.Coordinator().Done()))

	data, err := os.ReadFile(h.statePath())
	require.NoError(t, err)
	var saved window.State
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, 1536, saved.Width)
	assert.Equal(t, 832, saved.Height)
}

func TestKernelExit_CleanExitIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.open(t, "/w/a")

	h.spawner.proc(0).exit(kernel.CodeClean)

	require.Eventually(t, func() bool {
		return len(h.history(t, events.EventKernelExited)) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, h.sup.Registry().Len())
	assert.Empty(t, h.windowsOfKind(window.KindError))
}

func TestClose_KillsKernelsThatDoNotExit(t *testing.T) {
	h := newHarness(t)
	a := h.open(t, "/w/a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, h.sup.Close(ctx))

	assert.Equal(t, []int{a.Port}, h.api.exited())
	assert.True(t, h.spawner.proc(0).StopRequested())
}

func TestClose_WaitsForCooperativeKernels(t *testing.T) {
	h := newHarness(t)
	h.open(t, "/w/a")

	go func() {
		time.Sleep(5 * time.Millisecond)
		h.spawner.proc(0).exit(kernel.CodeClean)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.sup.Close(ctx))
	assert.False(t, h.spawner.proc(0).StopRequested())
}

type openResult struct {
	ok  bool
	err error
}

func (h *harness) openAsync(dir string) <-chan openResult {
	res := make(chan openResult, 1)
	go func() {
		ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: dir})
		res <- openResult{ok, err}
	}()
	return res
}

func waitResult(t *testing.T, res <-chan openResult) openResult {
	t.Helper()
	select {
	case r := <-res:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("boot did not return")
		return openResult{}
	}
}

func TestClose_StopsKernelFinishingBoot(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.api.progressGate = gate

	res := h.openAsync("/w/a")
	require.Eventually(t, func() bool { return h.api.progressCalls.Load() > 0 }, time.Second, time.Millisecond)

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		closed <- h.sup.Close(ctx)
	}()
	require.Eventually(t, func() bool { return h.sup.life.Err() != nil }, time.Second, time.Millisecond)
	close(gate)

	r := waitResult(t, res)
	assert.False(t, r.ok)
	assert.ErrorIs(t, r.err, ErrClosed)

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	assert.True(t, h.spawner.proc(0).StopRequested())
	assert.Contains(t, h.ports.releasedPorts(), 7001)
	assert.Equal(t, 0, h.sup.Registry().Len())
	assert.Empty(t, h.windowsOfKind(window.KindMain))

	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: "/w/b"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 1, h.spawner.spawned())
}

func TestClose_CancelsStalledBoot(t *testing.T) {
	h := newHarness(t)
	h.api.stalled = true

	res := h.openAsync("/w/a")
	require.Eventually(t, func() bool { return h.api.progressCalls.Load() > 0 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.sup.Close(ctx))

	r := waitResult(t, res)
	assert.ErrorIs(t, r.err, ErrClosed)
	assert.True(t, h.spawner.proc(0).StopRequested())
	assert.Equal(t, 0, h.sup.Registry().Len())
}

func TestClose_CancelledBootShowsNoError(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Boot.MaxAttempts = 100000
		c.Boot.VersionInterval = 5 * time.Millisecond
	})
	h.api.versionErr = errors.New("connection refused")

	res := h.openAsync("/w/a")
	require.Eventually(t, func() bool { return h.spawner.spawned() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.sup.Close(ctx))

	r := waitResult(t, res)
	assert.ErrorIs(t, r.err, ErrClosed)
	assert.Empty(t, h.history(t, events.EventWindowError))
	assert.Empty(t, h.windowsOfKind(window.KindError))
}

func TestOpenWorkspace_DevModeClaimedByOneBoot(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Dev = true })
	gate := make(chan struct{})
	h.api.progressGate = gate

	first := h.openAsync("/w/a")
	require.Eventually(t, func() bool { return h.api.progressCalls.Load() == 1 }, time.Second, time.Millisecond)
	second := h.openAsync("/w/b")
	require.Eventually(t, func() bool { return h.api.progressCalls.Load() == 2 }, time.Second, time.Millisecond)
	close(gate)

	require.NoError(t, waitResult(t, first).err)
	require.NoError(t, waitResult(t, second).err)

	assert.Equal(t, []string{"--port", "6806", "--wd", "/opt/siyuan", "--mode", "dev", "--workspace", "/w/a"}, h.spawner.argv(0))
	assert.Equal(t, []string{"--port", "7001", "--wd", "/opt/siyuan", "--workspace", "/w/b"}, h.spawner.argv(1))
}
