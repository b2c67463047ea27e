// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wingedpig/deskshell/internal/launch"
	"github.com/wingedpig/deskshell/internal/window"
	"github.com/wingedpig/deskshell/internal/workspace"
)

// RouterConfig configures a Router.
type RouterConfig struct {
	Scheme string // protocol URL scheme, without "://"
	GOOS   string
	PID    int // reported to kernels through uiproc

	ResumeAttempts int
	ResumeInterval time.Duration

	OpenURLAttempts int
	OpenURLInterval time.Duration
	OpenURLSettle   time.Duration
}

// Router resolves commands from window content, the tray, global hot-keys,
// the power monitor and second launches to supervisor operations.
type Router struct {
	cfg      RouterConfig
	sup      *Supervisor
	host     window.Host
	registry *workspace.Registry
	coord    *Coordinator
	probe    Prober
	logger   *zap.Logger

	mu       sync.Mutex
	bindings map[string]binding // accelerator -> hot-key

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRouter creates a router on top of sup.
func NewRouter(sup *Supervisor, probe Prober, cfg RouterConfig) *Router {
	if cfg.PID == 0 {
		cfg.PID = os.Getpid()
	}
	if cfg.GOOS == "" {
		cfg.GOOS = sup.cfg.GOOS
	}
	if cfg.ResumeAttempts <= 0 {
		cfg.ResumeAttempts = 7
	}
	if cfg.ResumeInterval <= 0 {
		cfg.ResumeInterval = time.Second
	}
	if cfg.OpenURLAttempts <= 0 {
		cfg.OpenURLAttempts = 10
	}
	if cfg.OpenURLInterval <= 0 {
		cfg.OpenURLInterval = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		cfg:      cfg,
		sup:      sup,
		host:     sup.host,
		registry: sup.registry,
		coord:    sup.coord,
		probe:    probe,
		logger:   sup.logger.Named("router"),
		bindings: make(map[string]binding),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Dispatch runs a command. Commands that wait on boots, the network or a
// workspace to appear run in the background and Dispatch returns at once.
func (r *Router) Dispatch(ctx context.Context, cmd Command) error {
	err := r.dispatch(ctx, cmd)
	r.sup.metrics.ObserveCommand(cmd.CommandName(), err)
	if err != nil {
		r.logger.Debug("command failed",
			zap.String("cmd", cmd.CommandName()),
			zap.String("window", WindowOf(cmd)),
			zap.Error(err))
	}
	return err
}

func (r *Router) dispatch(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case *Show:
		return r.show(c.Window)
	case *Hide:
		return r.host.Hide(c.Window)
	case *Minimize:
		return r.host.Minimize(c.Window)
	case *Maximize:
		return r.host.Maximize(c.Window)
	case *Restore:
		st, err := r.state(c.Window)
		if err != nil {
			return err
		}
		if st.Fullscreen {
			return r.host.SetFullscreen(c.Window, false)
		}
		return r.host.Unmaximize(c.Window)
	case *Focus:
		return r.host.Focus(c.Window)
	case *Destroy:
		return r.destroy(c.Window)
	case *CloseButtonBehavior:
		st, err := r.state(c.Window)
		if err != nil {
			return err
		}
		if st.Fullscreen {
			if err := r.host.SetFullscreen(c.Window, false); err != nil {
				return err
			}
		}
		return r.host.Hide(c.Window)
	case *OpenDevTools:
		return r.host.OpenDevTools(c.Window)
	case *CloseRequested:
		return r.coord.RequestClose(c.Window, false)
	case *SetAlwaysOnTop:
		return r.host.SetAlwaysOnTop(c.Window, c.On)
	case *WriteLog:
		r.logger.Info(c.Msg, zap.String("window", c.Window))
		return nil
	case *WindowEvent:
		return r.windowEvent(c)

	case *Init:
		return r.init(ctx, c)
	case *Quit:
		r.coord.Exit(c.Port, "")
		return nil
	case *OpenWorkspace:
		req := OpenRequest{Workspace: c.Workspace}
		r.async(func(ctx context.Context) {
			r.sup.OpenWorkspace(ctx, req)
		})
		return nil
	case *FirstInit:
		req := OpenRequest{Workspace: c.Workspace, Lang: c.Lang}
		initWindow := c.Window
		r.async(func(ctx context.Context) {
			r.sup.OpenWorkspace(ctx, req)
			if initWindow != "" {
				r.destroy(initWindow)
			}
		})
		return nil
	case *OpenWindow:
		return r.openWindow(c)
	case *SendWindows:
		r.host.Broadcast(window.ChannelSendWindows, c.Data)
		return nil

	case *Hotkeys:
		return r.bindHotkeys(c.Window, c.Hotkeys)
	case *UnregisterGlobalShortcut:
		r.unbindHotkey(c.Accelerator)
		return nil
	case *HotkeyFired:
		return r.hotkeyFired(c.Accelerator)
	case *ConfigTray:
		e, ok := r.registry.FindByWindow(c.Window)
		if !ok {
			return workspace.ErrNotFound
		}
		return r.hideWindow(e.Window)
	case *TrayToggle:
		return r.trayToggle(c.Window)
	case *TrayQuit:
		return r.coord.RequestClose(c.Window, true)
	case *TrayReset:
		r.coord.SetResetOnRestart(true)
		return r.coord.RequestClose(c.Window, true)

	case *OpenURL:
		url := c.URL
		r.async(func(ctx context.Context) {
			r.deliverURL(ctx, url)
		})
		return nil
	case *SecondInstance:
		return r.secondInstance(c.Argv)
	case *Activate:
		return r.activate()
	case *AppQuit:
		r.coord.QuitAll()
		return nil
	case *PowerResume:
		r.async(func(ctx context.Context) {
			r.resume(ctx)
		})
		return nil
	case *PowerShutdown:
		r.powerShutdown()
		return nil
	case *PowerSuspend:
		r.logger.Info("system suspend")
		return nil
	case *PowerLockScreen:
		r.logger.Info("system lock-screen")
		r.host.Broadcast(window.ChannelSendWindows, map[string]interface{}{"cmd": "lockscreenByMode"})
		return nil
	}
	return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
}

// Wait blocks until background work started by Dispatch has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Close cancels background work and waits for it.
func (r *Router) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Router) async(fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.ctx)
	}()
}

func (r *Router) state(id string) (window.Status, error) {
	st, ok := r.host.State(id)
	if !ok {
		return window.Status{}, fmt.Errorf("window %s: %w", id, window.ErrWindowNotFound)
	}
	return st, nil
}

func (r *Router) show(id string) error {
	st, err := r.state(id)
	if err != nil {
		return err
	}
	if st.Minimized {
		if err := r.host.Restore(id); err != nil {
			return err
		}
	}
	return r.host.Show(id)
}

// destroy closes a window. A workspace main window goes through the
// coordinator so that its entry and kernel port are released.
func (r *Router) destroy(id string) error {
	if e, ok := r.registry.FindByWindow(id); ok {
		r.coord.Exit(e.Port, "")
		return nil
	}
	if err := r.host.Destroy(id); err != nil {
		return err
	}
	r.coord.WindowDestroyed(id)
	return nil
}

func (r *Router) windowEvent(c *WindowEvent) error {
	if rep, ok := r.host.(window.Reporter); ok {
		if err := rep.Report(c.Window, c.Event); err != nil {
			return err
		}
	} else if _, ok := r.host.State(c.Window); !ok {
		return fmt.Errorf("window %s: %w", c.Window, window.ErrWindowNotFound)
	}
	if c.Event == window.ReportFocus {
		r.registry.Touch(c.Window)
	}
	return nil
}

// init handles the handshake a main window performs once its content has
// loaded the workspace. The first handshake of an entry creates its tray and
// reports the shell pid to the kernel. Later ones only refresh the tray menu.
func (r *Router) init(ctx context.Context, c *Init) error {
	target, ok := r.registry.FindByWindow(c.Window)
	if !ok {
		if target, ok = r.handshakeTarget(c.WorkspaceDir); !ok {
			return workspace.ErrNotFound
		}
	}

	first, err := r.registry.Initialize(target.Window, c.WorkspaceDir)
	if err != nil {
		return err
	}
	if !first {
		r.logger.Debug("tray menu refreshed", zap.String("workspace", target.Dir))
		return nil
	}

	if window.TrayPlatform(r.cfg.GOOS) {
		tooltip := fmt.Sprintf("%s - %s v%s", filepath.Base(c.WorkspaceDir), r.sup.cfg.ProductName, r.sup.cfg.AppVersion)
		tray, err := r.host.CreateTray(target.Window, tooltip)
		if err != nil {
			r.logger.Warn("create tray", zap.Error(err))
		} else if err := r.registry.SetTray(target.Window, tray); err != nil {
			r.host.DestroyTray(tray)
		}
	}

	port := c.Port
	if port == 0 {
		port = target.Port
	}
	return r.sup.api.UIProc(ctx, port, r.cfg.PID)
}

// handshakeTarget picks the entry a handshake from an unregistered window
// belongs to: the uninitialized entry opened for dir, else the first
// uninitialized entry without a directory.
func (r *Router) handshakeTarget(dir string) (workspace.Entry, bool) {
	var fallback *workspace.Entry
	for _, e := range r.registry.Entries() {
		if e.Initialized {
			continue
		}
		if e.Dir == dir {
			return e, true
		}
		if e.Dir == "" && fallback == nil {
			e := e
			fallback = &e
		}
	}
	if fallback == nil {
		return workspace.Entry{}, false
	}
	return *fallback, true
}

func (r *Router) openWindow(c *OpenWindow) error {
	d := r.host.PrimaryDisplay()
	opts := window.Options{
		Kind:      window.KindAux,
		URL:       c.URL,
		Bounds:    window.Rect{Width: c.Width, Height: c.Height},
		MinWidth:  window.MinWidth,
		MinHeight: window.MinHeight,
		Center:    c.Position == nil,
	}
	if opts.Bounds.Width == 0 {
		opts.Bounds.Width = d.Size.Width * 7 / 10
	}
	if opts.Bounds.Height == 0 {
		opts.Bounds.Height = d.Size.Height * 9 / 10
	}
	if c.Position != nil {
		opts.Bounds.X, opts.Bounds.Y = c.Position.X, c.Position.Y
	}

	id, err := r.host.Create(opts)
	if err != nil {
		return err
	}
	return r.host.Load(id, c.URL, "")
}

// deliverURL sends a protocol URL to every workspace window. While nothing
// is open yet it waits a bounded time for the first workspace to boot.
func (r *Router) deliverURL(ctx context.Context, url string) {
	if r.registry.Len() == 0 {
		for i := 0; i < r.cfg.OpenURLAttempts && r.registry.Len() == 0; i++ {
			if !sleep(ctx, r.cfg.OpenURLInterval) {
				return
			}
		}
		if !sleep(ctx, r.cfg.OpenURLSettle) {
			return
		}
	}

	entries := r.registry.Entries()
	if len(entries) == 0 {
		r.logger.Warn("no workspace to open url in", zap.String("url", url))
		return
	}
	r.logger.Info("open url", zap.String("url", url))
	for _, e := range entries {
		r.sendURL(e.Window, url)
	}
}

func (r *Router) sendURL(id, url string) {
	if err := r.host.Send(id, window.ChannelOpenURL, map[string]interface{}{"url": url}); err != nil {
		r.logger.Debug("send url", zap.String("window", id), zap.Error(err))
	}
}

// secondInstance handles a launch that was redirected into this process.
func (r *Router) secondInstance(argv []string) error {
	r.logger.Info("second-instance", zap.Strings("argv", argv))
	a := launch.Parse(argv, r.cfg.Scheme)

	if a.Workspace != "" {
		if e, ok := r.registry.FindByWorkspace(a.Workspace); ok {
			return r.show(e.Window)
		}
		req := OpenRequest{Workspace: a.Workspace, Port: a.Port}
		r.async(func(ctx context.Context) {
			r.sup.OpenWorkspace(ctx, req)
		})
		return nil
	}

	if a.URL != "" {
		for _, e := range r.registry.Entries() {
			r.sendURL(e.Window, a.URL)
		}
		return nil
	}

	if first, ok := r.registry.First(); ok {
		return r.show(first.Window)
	}
	return nil
}

// activate shows the latest active window, or workspace 0.
func (r *Router) activate() error {
	first, ok := r.registry.First()
	if !ok {
		return nil
	}
	id := first.Window
	if latest, ok := r.registry.LatestFocused(); ok {
		if _, alive := r.host.State(latest); alive {
			id = latest
		}
	}
	return r.host.Show(id)
}

// sleep waits for d. It returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
