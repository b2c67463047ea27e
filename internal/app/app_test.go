// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wingedpig/deskshell/internal/config"
	"github.com/wingedpig/deskshell/internal/events"
	"github.com/wingedpig/deskshell/internal/instance"
	"github.com/wingedpig/deskshell/internal/window"
	"github.com/wingedpig/deskshell/pkg/client"
)

type dirs struct {
	app  string
	conf string
}

func newDirs(t *testing.T) dirs {
	t.Helper()
	root := t.TempDir()
	d := dirs{app: filepath.Join(root, "app"), conf: filepath.Join(root, "conf")}
	require.NoError(t, os.MkdirAll(d.app, 0o755))
	require.NoError(t, os.MkdirAll(d.conf, 0o755))
	return d
}

func (d dirs) writeConfig(t *testing.T, hjson string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(d.conf, config.FileName), []byte(hjson), 0o644))
}

func (d dirs) markWorkspace(t *testing.T) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(d.conf, WorkspaceFile), []byte(`{}`), 0o644))
}

func newApp(t *testing.T, d dirs, argv ...string) *App {
	t.Helper()
	a, err := New(Options{
		Argv:           argv,
		Env:            &config.Env{AppDir: d.app, ConfDir: d.conf},
		Logger:         zap.NewNop(),
		ForwardTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return a
}

func windowsOfKind(a *App, kind window.Kind) []string {
	var ids []string
	for _, id := range a.host.Windows() {
		if st, ok := a.host.State(id); ok && st.Kind == kind {
			ids = append(ids, id)
		}
	}
	return ids
}

func TestNew_ResolvesConfig(t *testing.T) {
	d := newDirs(t)
	d.writeConfig(t, `
{
  kernel: { default_port: 7000 }
  boot: { max_attempts: 3 }
}`)

	a, err := New(Options{
		Version: "3.1.0",
		Env:     &config.Env{AppDir: d.app, ConfDir: d.conf},
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	cfg := a.Config()
	assert.Equal(t, "3.1.0", cfg.App.Version)
	assert.Equal(t, d.conf, cfg.App.ConfDir)
	assert.Equal(t, filepath.Join(d.app, "kernel"), cfg.Kernel.Dir)
	assert.Equal(t, 7000, cfg.Kernel.DefaultPort)
	assert.Equal(t, 3, cfg.Boot.MaxAttempts)
	assert.Equal(t, filepath.Join(d.conf, "app.log"), cfg.Logging.File)
}

func TestNew_EnvVersionWins(t *testing.T) {
	d := newDirs(t)
	a, err := New(Options{
		Version: "3.1.0",
		Env:     &config.Env{AppDir: d.app, ConfDir: d.conf, AppVersion: "3.2.0"},
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, "3.2.0", a.Config().App.Version)
}

func TestNew_InvalidConfig(t *testing.T) {
	d := newDirs(t)
	d.writeConfig(t, `{ boot: { max_attempts: -1 } }`)

	_, err := New(Options{
		Env:    &config.Env{AppDir: d.app, ConfDir: d.conf},
		Logger: zap.NewNop(),
	})
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "boot.max_attempts")
}

func TestNew_ParsesLaunchArgs(t *testing.T) {
	d := newDirs(t)
	a := newApp(t, d, "--workspace=/w/a", "--port=6900", "--openAsHidden", "siyuan://blocks/1")

	assert.Equal(t, "/w/a", a.args.Workspace)
	assert.Equal(t, 6900, a.args.Port)
	assert.True(t, a.args.OpenAsHidden)
	assert.Equal(t, "siyuan://blocks/1", a.args.URL)
}

func TestFirstRun(t *testing.T) {
	d := newDirs(t)
	a := newApp(t, d)
	assert.True(t, a.FirstRun())

	d.markWorkspace(t)
	assert.False(t, a.FirstRun())
}

func TestInitialize_PublishesInstance(t *testing.T) {
	d := newDirs(t)
	a := newApp(t, d)

	require.NoError(t, a.Initialize(context.Background()))
	defer a.Shutdown(context.Background())

	rec, err := instance.ReadRecord(d.conf)
	require.NoError(t, err)
	assert.Equal(t, a.URL(), rec.URL())
	assert.Equal(t, os.Getpid(), rec.PID)
}

func TestStart_FirstRunShowsPicker(t *testing.T) {
	d := newDirs(t)
	a := newApp(t, d)
	ctx := context.Background()

	require.NoError(t, a.Initialize(ctx))
	defer a.Shutdown(ctx)
	require.NoError(t, a.Start(ctx))

	ids := windowsOfKind(a, window.KindInit)
	require.Len(t, ids, 1)
	st, _ := a.host.State(ids[0])
	assert.True(t, st.Visible)
	assert.Contains(t, st.URL, "file://")
	assert.Contains(t, st.URL, "init.html")
	assert.Equal(t, 0, a.supervisor.Registry().Len())
}

func TestStart_MissingKernelShowsError(t *testing.T) {
	d := newDirs(t)
	d.markWorkspace(t)
	a := newApp(t, d, "--workspace=/w/a")
	ctx := context.Background()

	require.NoError(t, a.Initialize(ctx))
	defer a.Shutdown(ctx)
	require.NoError(t, a.Start(ctx))

	require.Eventually(t, func() bool {
		hist, err := a.eventBus.History(events.EventFilter{Types: []string{events.EventWorkspaceFailed}})
		return err == nil && len(hist) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(windowsOfKind(a, window.KindBoot)) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, windowsOfKind(a, window.KindError), 1)
}

func TestInitialize_ForwardsToRunningInstance(t *testing.T) {
	d := newDirs(t)
	ctx := context.Background()

	owner := newApp(t, d)
	require.NoError(t, owner.Initialize(ctx))
	defer owner.Shutdown(ctx)
	require.NoError(t, owner.Start(ctx))

	second := newApp(t, d, "--workspace=/w/b")
	err := second.Initialize(ctx)
	assert.ErrorIs(t, err, ErrForwarded)
	assert.Nil(t, second.lock)
	assert.Nil(t, second.apiServer)
}

func TestInitialize_ForwardGivesUpWithoutOwner(t *testing.T) {
	d := newDirs(t)

	// Hold the lock without publishing an address.
	lock, err := instance.Acquire(d.conf, nil)
	require.NoError(t, err)
	defer lock.Release()

	a, err := New(Options{
		Env:            &config.Env{AppDir: d.app, ConfDir: d.conf},
		Logger:         zap.NewNop(),
		ForwardTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	err = a.Initialize(context.Background())
	assert.ErrorIs(t, err, instance.ErrNoRecord)
	assert.NotErrorIs(t, err, ErrForwarded)
}

func TestRun_StopShutsDown(t *testing.T) {
	d := newDirs(t)
	a := newApp(t, d)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := instance.ReadRecord(d.conf)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	a.Stop()
	a.Stop()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	_, err := instance.ReadRecord(d.conf)
	assert.ErrorIs(t, err, instance.ErrNoRecord)

	lock, err := instance.Acquire(d.conf, nil)
	require.NoError(t, err, "lock is released")
	lock.Release()
}

func TestRun_ContextCancel(t *testing.T) {
	d := newDirs(t)
	a := newApp(t, d)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := instance.ReadRecord(d.conf)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_ClosingPickerTerminates(t *testing.T) {
	d := newDirs(t)
	a := newApp(t, d)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(context.Background()) }()

	var c *client.Client
	require.Eventually(t, func() bool {
		rec, err := instance.ReadRecord(d.conf)
		if err != nil {
			return false
		}
		c = client.New(rec.URL())
		return true
	}, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	var picker string
	require.Eventually(t, func() bool {
		evts, err := c.Events.List(ctx, &client.ListOptions{Types: []string{events.EventWindowCreated}})
		if err != nil {
			return false
		}
		for _, e := range evts {
			if e.Payload["kind"] == string(window.KindInit) {
				picker = e.Window
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Commands.Send(ctx, client.Command{"cmd": "destroy", "windowId": picker}))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
