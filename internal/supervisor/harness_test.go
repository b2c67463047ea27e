// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wingedpig/deskshell/internal/events"
	"github.com/wingedpig/deskshell/internal/kernel"
	"github.com/wingedpig/deskshell/internal/metrics"
	"github.com/wingedpig/deskshell/internal/window"
	"github.com/wingedpig/deskshell/internal/workspace"
)

var fullHD = window.Display{
	Size:     window.Rect{Width: 1920, Height: 1080},
	WorkArea: window.Rect{Width: 1920, Height: 1040},
}

type fakeProc struct {
	pid  int
	once sync.Once
	done chan struct{}

	mu      sync.Mutex
	code    int
	stopped atomic.Bool
}

func newFakeProc(pid int) *fakeProc {
	return &fakeProc{pid: pid, done: make(chan struct{})}
}

func (p *fakeProc) PID() int              { return p.pid }
func (p *fakeProc) Done() <-chan struct{} { return p.done }
func (p *fakeProc) StopRequested() bool   { return p.stopped.Load() }

func (p *fakeProc) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *fakeProc) Stop() error {
	p.stopped.Store(true)
	p.exit(-1)
	return nil
}

func (p *fakeProc) exit(code int) {
	p.once.Do(func() {
		p.mu.Lock()
		p.code = code
		p.mu.Unlock()
		close(p.done)
	})
}

type fakeSpawner struct {
	mu      sync.Mutex
	missing bool
	args    [][]string
	procs   []*fakeProc
	onSpawn func(p *fakeProc)
}

func (s *fakeSpawner) Binary() string { return "/opt/siyuan/kernel/SiYuan-Kernel" }

func (s *fakeSpawner) Check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return fmt.Errorf("%w: %s", kernel.ErrKernelBinaryMissing, s.Binary())
	}
	return nil
}

func (s *fakeSpawner) Spawn(args []string) (kernel.Handle, error) {
	s.mu.Lock()
	p := newFakeProc(1000 + len(s.procs))
	s.args = append(s.args, args)
	s.procs = append(s.procs, p)
	onSpawn := s.onSpawn
	s.mu.Unlock()

	if onSpawn != nil {
		onSpawn(p)
	}
	return p, nil
}

func (s *fakeSpawner) spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

func (s *fakeSpawner) proc(i int) *fakeProc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[i]
}

func (s *fakeSpawner) argv(i int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.args[i]
}

type fakeAPI struct {
	mu         sync.Mutex
	version    string
	versionErr error
	network    kernel.Network
	exits      []int
	syncs      []int
	uiprocs    [][2]int

	// progressGate, when set, holds BootProgress until it is closed.
	progressGate  chan struct{}
	stalled       bool
	exitGate      chan struct{}
	progressCalls atomic.Int32
}

func (a *fakeAPI) Version(ctx context.Context, port int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version, a.versionErr
}

func (a *fakeAPI) BootProgress(ctx context.Context, port int) (int, error) {
	a.progressCalls.Add(1)
	a.mu.Lock()
	gate, stalled := a.progressGate, a.stalled
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if stalled {
		return 40, nil
	}
	return 100, nil
}

func (a *fakeAPI) Exit(ctx context.Context, port int) error {
	a.mu.Lock()
	gate := a.exitGate
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.exits = append(a.exits, port)
	return nil
}

func (a *fakeAPI) UIProc(ctx context.Context, port, pid int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uiprocs = append(a.uiprocs, [2]int{port, pid})
	return nil
}

func (a *fakeAPI) PerformSync(ctx context.Context, port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.syncs = append(a.syncs, port)
	return nil
}

func (a *fakeAPI) GetNetwork(ctx context.Context, port int) (kernel.Network, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.network, nil
}

func (a *fakeAPI) exited() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.exits...)
}

func (a *fakeAPI) synced() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.syncs...)
}

func (a *fakeAPI) uiprocCalls() [][2]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][2]int(nil), a.uiprocs...)
}

type fakePorts struct {
	mu       sync.Mutex
	next     int
	err      error
	released []int
}

func (p *fakePorts) Allocate(pinned int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	if pinned > 0 {
		return pinned, nil
	}
	p.next++
	return 7000 + p.next, nil
}

func (p *fakePorts) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, port)
}

func (p *fakePorts) releasedPorts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.released...)
}

type fakeProbe struct {
	online atomic.Bool
	calls  atomic.Int32
}

func (p *fakeProbe) Online(ctx context.Context) bool {
	p.calls.Add(1)
	return p.online.Load()
}

type harness struct {
	bus     *events.MemoryEventBus
	host    *window.BusHost
	spawner *fakeSpawner
	api     *fakeAPI
	ports   *fakePorts
	probe   *fakeProbe
	sup     *Supervisor
	router  *Router
	confDir string
}

func newHarness(t *testing.T, tweaks ...func(*Config)) *harness {
	t.Helper()

	bus := events.NewMemoryEventBus(events.MemoryBusConfig{HistoryMaxEvents: 10000})
	t.Cleanup(func() { bus.Close() })

	h := &harness{
		bus:     bus,
		host:    window.NewBusHost(bus, fullHD, nil),
		spawner: &fakeSpawner{},
		api:     &fakeAPI{version: "3.1.0"},
		ports:   &fakePorts{},
		probe:   &fakeProbe{},
		confDir: t.TempDir(),
	}

	cfg := Config{
		ProductName: "SiYuan",
		AppVersion:  "3.1.0",
		AppDir:      "/opt/siyuan",
		ConfDir:     h.confDir,
		KernelName:  "SiYuan-Kernel",
		DefaultPort: 6806,
		GOOS:        "linux",
		Boot: kernel.PollerConfig{
			MaxAttempts:      3,
			VersionInterval:  time.Millisecond,
			ProgressInterval: time.Millisecond,
		},
	}
	for _, tweak := range tweaks {
		tweak(&cfg)
	}

	h.sup = New(cfg, Options{
		Host:     h.host,
		Registry: workspace.NewRegistry(),
		Spawner:  h.spawner,
		API:      h.api,
		Ports:    h.ports,
		Bus:      bus,
		Metrics:  metrics.New(),
	})
	h.router = NewRouter(h.sup, h.probe, RouterConfig{
		Scheme:          "siyuan",
		PID:             4242,
		ResumeAttempts:  3,
		ResumeInterval:  time.Millisecond,
		OpenURLAttempts: 40,
		OpenURLInterval: 5 * time.Millisecond,
	})
	t.Cleanup(h.router.Close)
	return h
}

// open boots dir and returns its entry.
func (h *harness) open(t *testing.T, dir string) workspace.Entry {
	t.Helper()
	ok, err := h.sup.OpenWorkspace(context.Background(), OpenRequest{Workspace: dir})
	require.NoError(t, err)
	require.True(t, ok)
	e, found := h.sup.Registry().FindByWorkspace(dir)
	require.True(t, found)
	return e
}

func (h *harness) status(t *testing.T, id string) window.Status {
	t.Helper()
	st, ok := h.host.State(id)
	require.True(t, ok, "window %s should exist", id)
	return st
}

func (h *harness) history(t *testing.T, eventType string) []events.Event {
	t.Helper()
	evts, err := h.bus.History(events.EventFilter{Types: []string{eventType}})
	require.NoError(t, err)
	return evts
}

// messages returns the data of window messages sent on channel.
func (h *harness) messages(t *testing.T, channel string) []events.Event {
	t.Helper()
	var out []events.Event
	for _, e := range h.history(t, events.EventWindowMessage) {
		if e.Payload["channel"] == channel {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) windowsOfKind(kind window.Kind) []string {
	var ids []string
	for _, id := range h.host.Windows() {
		if st, ok := h.host.State(id); ok && st.Kind == kind {
			ids = append(ids, id)
		}
	}
	return ids
}

func (h *harness) statePath() string {
	return filepath.Join(h.confDir, StateFile)
}

func (h *harness) writeState(t *testing.T, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(h.statePath(), []byte(data), 0644))
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
