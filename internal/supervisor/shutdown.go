// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wingedpig/deskshell/internal/window"
	"github.com/wingedpig/deskshell/internal/workspace"
)

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	StatePath string
	GOOS      string
	Logger    *zap.Logger

	// Busy reports whether a boot is in flight. The application is kept
	// alive while it returns true even if no window is left.
	Busy func() bool
	// OnClosed is called after an entry was removed from the registry.
	OnClosed func(workspace.Entry)
}

// Coordinator runs the save-then-close handshake with window content and
// the final teardown once the last workspace is gone.
//
// Windows are never destroyed on a close request. The request is forwarded
// to the content, which persists its state and answers with a quit command
// for its kernel port. Only then is the window torn down.
type Coordinator struct {
	host     window.Host
	registry *workspace.Registry
	cfg      CoordinatorConfig
	logger   *zap.Logger

	exitMu sync.Mutex // serializes Exit

	mu      sync.Mutex
	pending map[string]struct{} // windows asked to save and close
	reset   bool

	done chan struct{}
	once sync.Once
}

// NewCoordinator creates a coordinator.
func NewCoordinator(host window.Host, registry *workspace.Registry, cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Busy == nil {
		cfg.Busy = func() bool { return false }
	}
	return &Coordinator{
		host:     host,
		registry: registry,
		cfg:      cfg,
		logger:   cfg.Logger.Named("shutdown"),
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Done is closed when the application should terminate.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Terminate ends the application. It is idempotent.
func (c *Coordinator) Terminate() {
	c.once.Do(func() {
		c.logger.Info("exited ui")
		close(c.done)
	})
}

// SetResetOnRestart makes the final teardown empty the saved window state
// instead of writing the current geometry.
func (c *Coordinator) SetResetOnRestart(reset bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset = reset
}

// Pending returns the number of windows asked to save that have not closed yet.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// RequestClose asks a window's content to save and close. quit is passed on
// to the content and marks the request as part of quitting the application.
func (c *Coordinator) RequestClose(windowID string, quit bool) error {
	if err := c.host.Send(windowID, window.ChannelSaveClose, map[string]interface{}{"quit": quit}); err != nil {
		return err
	}
	c.mu.Lock()
	c.pending[windowID] = struct{}{}
	c.mu.Unlock()
	return nil
}

// QuitAll asks every workspace window to save and close. With no workspace
// open the application terminates right away.
func (c *Coordinator) QuitAll() {
	entries := c.registry.Entries()
	if len(entries) == 0 {
		c.Terminate()
		return
	}
	for _, e := range entries {
		if err := c.RequestClose(e.Window, true); err != nil {
			c.logger.Warn("request close", zap.String("window", e.Window), zap.Error(err))
		}
	}
}

// Exit tears down the workspace bound to port. Windows other than the main
// one that load content from port are destroyed. The main window is
// destroyed too unless it belongs to the last workspace, whose geometry is
// saved first. When the last workspace is gone the application terminates,
// or, if errorWindow is set, every window but the error window is closed.
func (c *Coordinator) Exit(port int, errorWindow string) {
	if port <= 0 {
		return
	}
	c.exitMu.Lock()
	defer c.exitMu.Unlock()

	main, hasMain := c.registry.FindByPort(port)
	for _, id := range c.host.Windows() {
		if hasMain && id == main.Window {
			continue
		}
		st, ok := c.host.State(id)
		if !ok || window.PortOf(st.URL) != port {
			continue
		}
		c.destroy(id)
	}
	if !hasMain {
		return
	}

	last := c.registry.Len() == 1
	if !last {
		c.destroy(main.Window)
	}
	c.registry.Unregister(main.Window)
	c.registry.Forget(main.Window)
	c.clearPending(main.Window)

	if main.Tray != "" && window.TrayPlatform(c.cfg.GOOS) {
		if err := c.host.DestroyTray(main.Tray); err != nil {
			c.logger.Debug("destroy tray", zap.Error(err))
		}
	}
	c.logger.Info("workspace closed", zap.String("workspace", main.Dir), zap.Int("port", port))
	if c.cfg.OnClosed != nil {
		c.cfg.OnClosed(main)
	}

	if c.registry.Len() == 0 {
		c.finish(main, errorWindow)
	}
}

// WindowDestroyed records that a window went away outside of Exit. Once the
// registry is empty and no window is left the application terminates.
func (c *Coordinator) WindowDestroyed(windowID string) {
	c.clearPending(windowID)
	c.registry.Forget(windowID)

	if c.registry.Len() > 0 || len(c.host.Windows()) > 0 || c.cfg.Busy() {
		return
	}
	c.Terminate()
}

func (c *Coordinator) finish(main workspace.Entry, errorWindow string) {
	c.persist(main.Window)

	if errorWindow != "" {
		for _, id := range c.host.Windows() {
			if id != errorWindow {
				c.destroy(id)
			}
		}
	} else {
		c.destroy(main.Window)
		c.Terminate()
	}
	c.host.UnregisterAllHotkeys()
}

// persist writes the geometry of the last main window, or empties the saved
// state when a reset was requested.
func (c *Coordinator) persist(mainWindow string) {
	if c.cfg.StatePath == "" {
		return
	}

	c.mu.Lock()
	reset := c.reset
	c.mu.Unlock()

	var err error
	if reset {
		err = window.ResetState(c.cfg.StatePath)
	} else {
		st, ok := c.host.State(mainWindow)
		if !ok {
			return
		}
		err = window.SaveState(c.cfg.StatePath, window.StateOf(st))
	}
	if err != nil {
		c.logger.Error("persist window state", zap.Error(err))
	}
}

func (c *Coordinator) destroy(id string) {
	if err := c.host.Destroy(id); err != nil {
		c.logger.Debug("destroy window", zap.String("window", id), zap.Error(err))
	}
	c.clearPending(id)
	c.registry.Forget(id)
}

func (c *Coordinator) clearPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
