// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package supervisor boots kernels for workspaces, keeps their windows in
// step with the kernel processes and routes external commands to them.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/wingedpig/deskshell/internal/events"
	"github.com/wingedpig/deskshell/internal/kernel"
	"github.com/wingedpig/deskshell/internal/metrics"
	"github.com/wingedpig/deskshell/internal/window"
	"github.com/wingedpig/deskshell/internal/workspace"
)

const localServer = "http://127.0.0.1"

// ErrClosed is returned for boots requested or finished after Close.
var ErrClosed = errors.New("supervisor is closed")

// StateFile is the window geometry file kept in the configuration directory.
const StateFile = "windowState.json"

// Spawner launches kernel processes.
type Spawner interface {
	Binary() string
	Check() error
	Spawn(args []string) (kernel.Handle, error)
}

// KernelAPI is the kernel HTTP API used by the supervisor.
type KernelAPI interface {
	kernel.API
	UIProc(ctx context.Context, port, pid int) error
	PerformSync(ctx context.Context, port int) error
	GetNetwork(ctx context.Context, port int) (kernel.Network, error)
}

// PortAllocator hands out kernel ports.
type PortAllocator interface {
	Allocate(pinned int) (int, error)
	Release(p int)
}

// Config holds the static settings of a Supervisor.
type Config struct {
	ProductName string
	AppVersion  string
	AppDir      string // passed to kernels as --wd
	ConfDir     string
	KernelName  string
	Lang        string
	DefaultPort int
	Dev         bool
	GOOS        string
	Boot        kernel.PollerConfig
}

// Options are the collaborators of a Supervisor.
type Options struct {
	Host     window.Host
	Registry *workspace.Registry
	Spawner  Spawner
	API      KernelAPI
	Ports    PortAllocator
	Bus      events.EventBus
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// OpenRequest asks for a workspace to be opened.
type OpenRequest struct {
	Workspace    string `json:"workspace"`
	Port         int    `json:"port,omitempty"` // pinned kernel port
	Lang         string `json:"lang,omitempty"`
	OpenAsHidden bool   `json:"openAsHidden,omitempty"`
}

// Supervisor owns the boot sequence of every workspace.
type Supervisor struct {
	cfg      Config
	host     window.Host
	registry *workspace.Registry
	spawner  Spawner
	api      KernelAPI
	ports    PortAllocator
	bus      events.EventBus
	metrics  *metrics.Metrics
	logger   *zap.Logger
	coord    *Coordinator

	boots    singleflight.Group
	booting  atomic.Int32
	inflight sync.WaitGroup
	now      func() time.Time

	// life ends when Close is called and cancels every boot in flight.
	life     context.Context
	shutdown context.CancelFunc

	mu       sync.Mutex
	isClosed bool
	devBoot  bool // a boot holds the dev-mode default port
}

// New creates a supervisor and its shutdown coordinator.
func New(cfg Config, opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = workspace.NewRegistry()
	}
	cfg.Boot.AppVersion = cfg.AppVersion
	cfg.Boot.Production = !cfg.Dev

	life, shutdown := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:      cfg,
		host:     opts.Host,
		registry: opts.Registry,
		spawner:  opts.Spawner,
		api:      opts.API,
		ports:    opts.Ports,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		logger:   opts.Logger.Named("supervisor"),
		now:      time.Now,
		life:     life,
		shutdown: shutdown,
	}
	s.coord = NewCoordinator(opts.Host, opts.Registry, CoordinatorConfig{
		StatePath: filepath.Join(cfg.ConfDir, StateFile),
		GOOS:      cfg.GOOS,
		Logger:    opts.Logger,
		Busy:      func() bool { return s.booting.Load() > 0 },
		OnClosed:  s.closed,
	})
	return s
}

// Registry returns the workspace registry.
func (s *Supervisor) Registry() *workspace.Registry {
	return s.registry
}

// Coordinator returns the shutdown coordinator.
func (s *Supervisor) Coordinator() *Coordinator {
	return s.coord
}

// OpenWorkspace boots a kernel for req.Workspace and opens its main window.
// A workspace that is already open is shown instead. Concurrent requests for
// the same workspace share one boot. The result reports whether a main
// window is open for the workspace when the call returns.
func (s *Supervisor) OpenWorkspace(ctx context.Context, req OpenRequest) (bool, error) {
	if e, ok := s.registry.FindByWorkspace(req.Workspace); ok {
		s.showWindow(e.Window)
		return true, nil
	}

	if !s.enter() {
		return false, ErrClosed
	}
	defer s.inflight.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.life, cancel)
	defer stop()

	v, err, _ := s.boots.Do(req.Workspace, func() (interface{}, error) {
		return s.boot(ctx, req)
	})
	ok, _ := v.(bool)
	return ok, err
}

func (s *Supervisor) boot(ctx context.Context, req OpenRequest) (bool, error) {
	s.booting.Add(1)
	defer s.booting.Add(-1)

	log := s.logger.With(zap.String("workspace", req.Workspace))
	s.publish(ctx, events.EventWorkspaceBooting, "", req.Workspace, map[string]interface{}{
		"port": req.Port,
	})

	d := s.host.PrimaryDisplay()
	bootID, err := s.host.Create(window.Options{
		Kind:      window.KindBoot,
		Title:     s.cfg.ProductName,
		Bounds:    window.Rect{Width: d.Size.Width / 2, Height: d.WorkArea.Height / 2},
		Center:    true,
		Minimized: req.OpenAsHidden,
	})
	if err != nil {
		return s.failed(ctx, req, fmt.Errorf("create boot window: %w", err))
	}
	defer s.host.Destroy(bootID)

	if err := s.spawner.Check(); err != nil {
		log.Error("kernel program is missing", zap.String("path", s.spawner.Binary()), zap.Error(err))
		title, body := kernel.MissingBinaryNotice(s.spawner.Binary())
		s.showError(title, body)
		return s.failed(ctx, req, err)
	}

	devMode := s.claimDevPort()
	if devMode {
		defer s.releaseDevPort()
	}
	pinned := req.Port
	if devMode && pinned == 0 {
		pinned = s.cfg.DefaultPort
	}
	p, err := s.ports.Allocate(pinned)
	if err != nil {
		log.Error("allocate kernel port", zap.Error(err))
		return s.failed(ctx, req, err)
	}
	log = log.With(zap.Int("port", p))
	log.Info("got kernel port")

	lang := req.Lang
	if lang == "" {
		lang = s.cfg.Lang
	}
	args := kernel.BuildArgs(kernel.Args{
		Port:       p,
		WorkDir:    s.cfg.AppDir,
		Workspace:  req.Workspace,
		PinnedPort: req.Port,
		Lang:       lang,
		DevMode:    devMode,
	})
	log.Info("booting kernel",
		zap.String("ui_version", s.cfg.AppVersion),
		zap.String("binary", s.spawner.Binary()),
		zap.Strings("args", args))

	proc, err := s.spawner.Spawn(args)
	if err != nil {
		s.ports.Release(p)
		log.Error("spawn kernel", zap.Error(err))
		return s.failed(ctx, req, err)
	}
	log.Info("booted kernel process", zap.Int("pid", proc.PID()))
	go s.watchExit(proc, p)

	attempt := kernel.NewBootAttempt(p, args)
	poller := kernel.NewPoller(s.api, s.cfg.Boot, s.logger)
	poller.OnReachable = func(port int) {
		if err := s.host.Load(bootID, serverURL(port)+"/appearance/boot/index.html", ""); err != nil {
			log.Debug("load boot page", zap.Error(err))
		}
	}

	outcome := poller.AwaitBoot(ctx, attempt, proc)
	s.metrics.ObserveBoot(outcome.String(), time.Since(attempt.Started))

	if outcome == kernel.OutcomeSuccess && s.life.Err() != nil {
		log.Info("shutting down, stopping booted kernel")
		if err := proc.Stop(); err != nil {
			log.Warn("stop kernel", zap.Error(err))
		}
		s.ports.Release(p)
		return s.failed(ctx, req, ErrClosed)
	}
	if outcome != kernel.OutcomeSuccess {
		if outcome == kernel.OutcomeTimeout && attempt.Version == "" && ctx.Err() == nil {
			title, body := kernel.TimeoutNotice()
			s.showError(title, body)
		}
		if outcome != kernel.OutcomeProcessExited {
			if err := proc.Stop(); err != nil {
				log.Warn("stop kernel", zap.Error(err))
			}
		}
		s.ports.Release(p)
		err := attempt.Err()
		if s.life.Err() != nil {
			err = ErrClosed
		}
		return s.failed(ctx, req, err)
	}

	mainID, err := s.openMainWindow(ctx, p, req, proc)
	if err != nil {
		if serr := proc.Stop(); serr != nil {
			log.Warn("stop kernel", zap.Error(serr))
		}
		s.ports.Release(p)
		return s.failed(ctx, req, err)
	}

	s.metrics.SetWorkspaces(s.registry.Len())
	s.publish(ctx, events.EventWorkspaceOpened, mainID, req.Workspace, map[string]interface{}{
		"port": p,
		"pid":  proc.PID(),
	})
	return true, nil
}

// openMainWindow creates, loads and registers the main window of a booted
// kernel, then shows it the way the saved window state asks for.
func (s *Supervisor) openMainWindow(ctx context.Context, port int, req OpenRequest, proc kernel.Handle) (string, error) {
	d := s.host.PrimaryDisplay()
	st, err := window.LoadState(filepath.Join(s.cfg.ConfDir, StateFile), window.DefaultState(d))
	if err != nil {
		s.logger.Warn("read window state failed", zap.Error(err))
	}
	pl := window.Place(st, d)
	s.logger.Debug("window placement",
		zap.Int("x", pl.Bounds.X), zap.Int("y", pl.Bounds.Y),
		zap.Int("width", pl.Bounds.Width), zap.Int("height", pl.Bounds.Height),
		zap.Bool("center", pl.Center))

	mainID, err := s.host.Create(window.Options{
		Kind:       window.KindMain,
		Title:      s.cfg.ProductName,
		Bounds:     pl.Bounds,
		Center:     pl.Center,
		MinWidth:   window.MinWidth,
		MinHeight:  window.MinHeight,
		Hidden:     true,
		Fullscreen: st.Fullscreen,
		DevTools:   st.IsDevToolsOpened,
	})
	if err != nil {
		return "", fmt.Errorf("create main window: %w", err)
	}

	proxy := ""
	if nw, err := s.api.GetNetwork(ctx, port); err != nil {
		s.logger.Warn("get network proxy", zap.Int("port", port), zap.Error(err))
	} else {
		proxy = nw.Proxy.URL()
	}
	mainURL := fmt.Sprintf("%s/stage/build/app/index.html?v=%d", serverURL(port), s.now().UnixMilli())
	if err := s.host.Load(mainID, mainURL, proxy); err != nil {
		s.host.Destroy(mainID)
		return "", fmt.Errorf("load main window: %w", err)
	}

	err = s.registry.Register(workspace.Entry{
		Dir:     req.Workspace,
		Window:  mainID,
		Content: s.host.ContentID(mainID),
		Process: proc,
		Port:    port,
	})
	if err != nil {
		s.host.Destroy(mainID)
		return "", fmt.Errorf("register workspace: %w", err)
	}

	if req.OpenAsHidden && s.registry.Len() == 1 {
		s.host.Minimize(mainID)
	} else {
		s.host.Show(mainID)
		if st.IsMaximized {
			s.host.Maximize(mainID)
		} else {
			s.host.Unmaximize(mainID)
		}
	}
	return mainID, nil
}

// watchExit reacts to a kernel exit. Failures surface an error window and
// close whatever is bound to the kernel's port.
func (s *Supervisor) watchExit(proc kernel.Handle, port int) {
	<-proc.Done()

	code := proc.ExitCode()
	c := kernel.Classify(code, port)
	s.metrics.ObserveExit(c.Category.String())

	log := s.logger.With(zap.Int("pid", proc.PID()), zap.Int("port", port), zap.Int("code", code))
	log.Info("kernel exited", zap.Stringer("category", c.Category))

	entry, _ := s.registry.FindByPort(port)
	s.publish(context.Background(), events.EventKernelExited, entry.Window, entry.Dir, map[string]interface{}{
		"port":     port,
		"pid":      proc.PID(),
		"code":     code,
		"category": c.Category.String(),
	})

	if proc.StopRequested() || !c.IsError() {
		return
	}

	if code == kernel.CodeDatabaseLocked || code == kernel.CodeWorkspaceLocked {
		if pids := kernel.OtherKernelPIDs(s.cfg.KernelName, proc.PID()); len(pids) > 0 {
			log.Warn("other kernel processes are running", zap.Ints("pids", pids))
		}
	}
	if c.FocusFirstWorkspace {
		if first, ok := s.registry.First(); ok {
			s.showWindow(first.Window)
		}
	}

	errorWindow := s.showError(c.Title, c.Body)
	s.coord.Exit(port, errorWindow)
}

// Close cancels boots in flight and waits for them, then asks every kernel
// still running to exit and kills the ones that are still alive when ctx is
// done. Later OpenWorkspace calls fail with ErrClosed.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	s.isClosed = true
	s.mu.Unlock()
	s.shutdown()

	booted := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(booted)
	}()
	select {
	case <-booted:
	case <-ctx.Done():
		s.logger.Warn("boots still running at shutdown", zap.Int32("booting", s.booting.Load()))
	}

	var g errgroup.Group
	for _, e := range s.registry.Entries() {
		if e.Process == nil {
			continue
		}
		e := e
		g.Go(func() error {
			if err := s.api.Exit(ctx, e.Port); err != nil {
				s.logger.Debug("ask kernel to exit", zap.Int("port", e.Port), zap.Error(err))
			}
			select {
			case <-e.Process.Done():
				return nil
			case <-ctx.Done():
				s.logger.Warn("killing kernel", zap.Int("port", e.Port), zap.Int("pid", e.PID()))
				return e.Process.Stop()
			}
		})
	}
	return g.Wait()
}

// enter registers a boot in flight unless Close was called.
func (s *Supervisor) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return false
	}
	s.inflight.Add(1)
	return true
}

// claimDevPort reports whether a dev build boots this kernel in dev mode on
// the default port. Only the first workspace does, and only one boot at a
// time may hold the claim.
func (s *Supervisor) claimDevPort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Dev || s.devBoot || s.registry.Len() > 0 {
		return false
	}
	s.devBoot = true
	return true
}

func (s *Supervisor) releaseDevPort() {
	s.mu.Lock()
	s.devBoot = false
	s.mu.Unlock()
}

// closed runs after the coordinator removed an entry.
func (s *Supervisor) closed(e workspace.Entry) {
	s.ports.Release(e.Port)
	s.metrics.SetWorkspaces(s.registry.Len())
	s.publish(context.Background(), events.EventWorkspaceClosed, e.Window, e.Dir, map[string]interface{}{
		"port": e.Port,
	})
}

func (s *Supervisor) failed(ctx context.Context, req OpenRequest, err error) (bool, error) {
	s.publish(ctx, events.EventWorkspaceFailed, "", req.Workspace, map[string]interface{}{
		"error": err.Error(),
	})
	return false, err
}

// showWindow restores a minimized window and shows it.
func (s *Supervisor) showWindow(id string) {
	st, ok := s.host.State(id)
	if !ok {
		return
	}
	if st.Minimized {
		s.host.Restore(id)
	}
	s.host.Show(id)
}

// showError opens an error window and returns its id, or "" on failure.
func (s *Supervisor) showError(title, body string) string {
	s.logger.Error("showing error window", zap.String("title", title))
	id, err := s.host.ShowError(title, body)
	if err != nil {
		s.logger.Error("show error window", zap.Error(err))
		return ""
	}
	return id
}

func (s *Supervisor) publish(ctx context.Context, eventType, windowID, dir string, payload map[string]interface{}) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, events.Event{
		Type:      eventType,
		Window:    windowID,
		Workspace: dir,
		Payload:   payload,
	})
	if err != nil {
		s.logger.Debug("publish", zap.String("type", eventType), zap.Error(err))
	}
}

func serverURL(port int) string {
	return fmt.Sprintf("%s:%d", localServer, port)
}
