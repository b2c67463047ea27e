// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the supervisor, the window host, the control API and the
// single-instance lock into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wingedpig/deskshell/internal/api"
	"github.com/wingedpig/deskshell/internal/api/handlers"
	"github.com/wingedpig/deskshell/internal/config"
	"github.com/wingedpig/deskshell/internal/events"
	"github.com/wingedpig/deskshell/internal/instance"
	"github.com/wingedpig/deskshell/internal/kernel"
	"github.com/wingedpig/deskshell/internal/launch"
	"github.com/wingedpig/deskshell/internal/logging"
	"github.com/wingedpig/deskshell/internal/metrics"
	"github.com/wingedpig/deskshell/internal/port"
	"github.com/wingedpig/deskshell/internal/supervisor"
	"github.com/wingedpig/deskshell/internal/watcher"
	"github.com/wingedpig/deskshell/internal/window"
)

// WorkspaceFile is written by the kernel once a workspace was chosen. Its
// absence marks the first run.
const WorkspaceFile = "workspace.json"

// ErrForwarded is returned by Initialize when another shell owns the
// configuration directory and the launch arguments were handed to it.
var ErrForwarded = errors.New("launch forwarded to running instance")

// DefaultDisplay is used until the renderer reports the real primary display.
var DefaultDisplay = window.Display{
	Size:     window.Rect{Width: 1920, Height: 1080},
	WorkArea: window.Rect{Width: 1920, Height: 1040},
}

// App is the main application container.
type App struct {
	mu sync.Mutex

	opts   Options
	config *config.Config
	args   launch.Args
	logger *zap.Logger

	lock          *instance.Lock
	eventBus      *events.MemoryEventBus
	host          *window.BusHost
	metrics       *metrics.Metrics
	supervisor    *supervisor.Supervisor
	router        *supervisor.Router
	kernelWatcher *watcher.KernelWatcher
	apiServer     *api.Server

	boots    sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// Options holds configuration options for the app.
type Options struct {
	Argv    []string // launch arguments without the program name
	Version string   // overrides app.version when set

	// Env overrides the process environment when set.
	Env *config.Env
	// Logger replaces the logger built from the configuration.
	Logger *zap.Logger
	// Display seeds the window host. Zero means DefaultDisplay.
	Display window.Display
	// ForwardTimeout bounds the hand-off to a running instance.
	ForwardTimeout time.Duration
}

// New resolves the configuration and builds the logger.
func New(opts Options) (*App, error) {
	var env config.Env
	if opts.Env != nil {
		env = *opts.Env
	} else {
		var err error
		if env, err = config.LoadEnv(); err != nil {
			return nil, err
		}
	}

	cfg, err := config.NewLoader().Resolve(context.Background(), env)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.Version != "" && env.AppVersion == "" {
		cfg.App.Version = opts.Version
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		if err := os.MkdirAll(cfg.App.ConfDir, 0o755); err != nil {
			return nil, fmt.Errorf("create conf dir: %w", err)
		}
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.App.Dev,
			File:        cfg.Logging.File,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}
	if opts.ForwardTimeout <= 0 {
		opts.ForwardTimeout = 10 * time.Second
	}
	if opts.Display == (window.Display{}) {
		opts.Display = DefaultDisplay
	}

	return &App{
		opts:   opts,
		config: cfg,
		args:   launch.Parse(opts.Argv, cfg.App.Scheme),
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Config returns the effective configuration.
func (app *App) Config() *config.Config {
	return app.config
}

// Logger returns the process logger.
func (app *App) Logger() *zap.Logger {
	return app.logger
}

// URL returns the base URL of the control API once Initialize succeeded.
func (app *App) URL() string {
	if app.apiServer == nil {
		return ""
	}
	return app.apiServer.URL()
}

// Initialize takes the single-instance lock and sets up all components. When
// another shell already owns the configuration directory the launch
// arguments are forwarded to it and ErrForwarded is returned.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config
	log := app.logger

	lock, err := instance.Acquire(cfg.App.ConfDir, log)
	if errors.Is(err, instance.ErrAlreadyRunning) {
		return app.forward(ctx)
	}
	if err != nil {
		return err
	}
	app.lock = lock

	log.Info("starting",
		zap.String("product", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("appDir", cfg.App.Dir),
		zap.String("confDir", cfg.App.ConfDir),
		zap.Bool("dev", cfg.App.Dev))

	app.eventBus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: cfg.Events.History.MaxEvents,
		HistoryMaxAge:    config.ParseDuration(cfg.Events.History.MaxAge, time.Hour),
		Logger:           log,
	})
	app.host = window.NewBusHost(app.eventBus, app.opts.Display, log)
	app.metrics = metrics.New()

	app.supervisor = supervisor.New(supervisor.Config{
		ProductName: cfg.App.Name,
		AppVersion:  cfg.App.Version,
		AppDir:      cfg.App.Dir,
		ConfDir:     cfg.App.ConfDir,
		KernelName:  cfg.Kernel.Name,
		Lang:        cfg.Kernel.Lang,
		DefaultPort: cfg.Kernel.DefaultPort,
		Dev:         cfg.App.Dev,
		GOOS:        runtime.GOOS,
		Boot: kernel.PollerConfig{
			MaxAttempts:      cfg.Boot.MaxAttempts,
			VersionInterval:  config.ParseDuration(cfg.Boot.VersionInterval, 200*time.Millisecond),
			ProgressInterval: config.ParseDuration(cfg.Boot.ProgressInterval, 100*time.Millisecond),
		},
	}, supervisor.Options{
		Host:    app.host,
		Spawner: kernel.NewSpawner(cfg.Kernel.Dir, cfg.Kernel.Name, log),
		API: kernel.NewClient(cfg.App.Name+"/"+cfg.App.Version,
			kernel.WithTimeout(config.ParseDuration(cfg.Boot.RequestTimeout, 5*time.Second))),
		Ports:   port.NewAllocator(""),
		Bus:     app.eventBus,
		Metrics: app.metrics,
		Logger:  log,
	})

	probe := supervisor.NewNetworkProbe(cfg.Resume.ProbeURL, 0)
	app.router = supervisor.NewRouter(app.supervisor, probe, supervisor.RouterConfig{
		Scheme:          cfg.App.Scheme,
		ResumeAttempts:  cfg.Resume.Attempts,
		ResumeInterval:  config.ParseDuration(cfg.Resume.Interval, time.Second),
		OpenURLAttempts: cfg.OpenURL.Attempts,
		OpenURLInterval: config.ParseDuration(cfg.OpenURL.Interval, 500*time.Millisecond),
		OpenURLSettle:   config.ParseDuration(cfg.OpenURL.Settle, 1500*time.Millisecond),
	})

	if cfg.Watch.IsEnabled() {
		debounce := config.ParseDuration(cfg.Watch.Debounce, 500*time.Millisecond)
		kw, err := watcher.NewKernelWatcher(app.eventBus, cfg.KernelExecutable(runtime.GOOS), debounce, log)
		if err != nil {
			log.Warn("kernel binary not watched", zap.Error(err))
		} else {
			app.kernelWatcher = kw
		}
	}

	app.apiServer = api.NewServer(
		api.ServerConfig{
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		},
		api.Dependencies{
			Workspaces: app.supervisor.Registry(),
			Opener:     app.supervisor,
			Dispatcher: app.router,
			EventBus:   app.eventBus,
			Metrics:    app.metrics,
			Info: handlers.Info{
				Product: cfg.App.Name,
				Version: cfg.App.Version,
				PID:     os.Getpid(),
				Started: time.Now(),
			},
			Logger: log,
		},
	)
	if err := app.apiServer.Listen(); err != nil {
		return err
	}
	if err := app.lock.Publish(app.apiServer.Addr()); err != nil {
		return err
	}

	return nil
}

// forward hands the launch arguments to the running instance.
func (app *App) forward(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, app.opts.ForwardTimeout)
	defer cancel()

	argv := app.opts.Argv
	if argv == nil {
		argv = []string{}
	}
	app.logger.Info("another instance is running, forwarding launch", zap.Strings("argv", argv))
	if err := instance.Forward(ctx, app.config.App.ConfDir, argv, 100*time.Millisecond); err != nil {
		return err
	}
	return ErrForwarded
}

// Start serves the control API and opens the first window.
func (app *App) Start(ctx context.Context) error {
	go func() {
		app.logger.Info("control api listening", zap.String("url", app.apiServer.URL()))
		if err := app.apiServer.Serve(); err != nil {
			app.logger.Error("control api", zap.Error(err))
		}
	}()

	if pids := kernel.OtherKernelPIDs(app.config.Kernel.Name, os.Getpid()); len(pids) > 0 {
		app.logger.Info("kernel processes already running", zap.Ints("pids", pids))
	}

	if app.FirstRun() {
		if err := app.showInit(); err != nil {
			return err
		}
	} else {
		req := supervisor.OpenRequest{
			Workspace:    app.args.Workspace,
			Port:         app.args.Port,
			OpenAsHidden: app.args.OpenAsHidden,
		}
		app.boots.Add(1)
		go func() {
			defer app.boots.Done()
			if _, err := app.supervisor.OpenWorkspace(ctx, req); err != nil {
				app.logger.Error("open workspace", zap.String("workspace", req.Workspace), zap.Error(err))
			}
		}()
	}

	if app.args.URL != "" {
		if err := app.router.Dispatch(ctx, &supervisor.OpenURL{URL: app.args.URL}); err != nil {
			app.logger.Warn("open url", zap.Error(err))
		}
	}
	return nil
}

// FirstRun reports whether no workspace was ever chosen.
func (app *App) FirstRun() bool {
	_, err := os.Stat(filepath.Join(app.config.App.ConfDir, WorkspaceFile))
	return errors.Is(err, os.ErrNotExist)
}

// showInit opens the workspace picker. Its choice comes back as a firstInit
// command.
func (app *App) showInit() error {
	page := filepath.Join(app.config.App.Dir, "app", "electron", "init.html")
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(page)}

	d := app.host.PrimaryDisplay()
	id, err := app.host.Create(window.Options{
		Kind:      window.KindInit,
		Title:     app.config.App.Name,
		URL:       u.String(),
		Bounds:    window.Rect{Width: d.WorkArea.Width * 4 / 5, Height: d.WorkArea.Height * 4 / 5},
		Center:    true,
		MinWidth:  window.MinWidth,
		MinHeight: window.MinHeight,
	})
	if err != nil {
		return fmt.Errorf("create init window: %w", err)
	}
	app.logger.Info("first run, showing workspace picker", zap.String("window", id))
	return app.host.Show(id)
}

// Run starts the app and blocks until shutdown.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		if !errors.Is(err, ErrForwarded) {
			app.releaseLock()
		}
		return err
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	coord := app.supervisor.Coordinator()
	quitting := false
	for done := false; !done; {
		select {
		case sig := <-sigCh:
			if quitting {
				app.logger.Warn("second signal, terminating", zap.String("signal", sig.String()))
				coord.Terminate()
				continue
			}
			app.logger.Info("received signal, closing workspaces", zap.String("signal", sig.String()))
			quitting = true
			coord.QuitAll()
		case <-ctx.Done():
			app.logger.Info("context cancelled, shutting down")
			done = true
		case <-app.done:
			app.logger.Info("shutdown requested")
			done = true
		case <-coord.Done():
			done = true
		}
	}

	return app.Shutdown(context.Background())
}

// Shutdown stops every component. Kernels that do not exit within the
// timeout are killed.
func (app *App) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	log := app.logger
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if app.router != nil {
		app.router.Close()
	}

	if app.supervisor != nil {
		if app.eventBus != nil {
			app.eventBus.Publish(shutdownCtx, events.Event{Type: events.EventAppQuit})
		}
		// Cancels the launch boot too, so boots.Wait below returns.
		if err := app.supervisor.Close(shutdownCtx); err != nil {
			log.Warn("stop kernels", zap.Error(err))
		}
	}
	app.boots.Wait()

	if app.apiServer != nil {
		if err := app.apiServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("shut down control api", zap.Error(err))
		}
	}

	if app.kernelWatcher != nil {
		app.kernelWatcher.Close()
	}

	app.releaseLock()

	if app.eventBus != nil {
		app.eventBus.Close()
	}

	log.Info("shutdown complete")
	log.Sync()
	return nil
}

func (app *App) releaseLock() {
	if app.lock == nil {
		return
	}
	if err := app.lock.Release(); err != nil {
		app.logger.Warn("release instance lock", zap.Error(err))
	}
	app.lock = nil
}

// Stop signals the app to shut down. Safe to call multiple times.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}
