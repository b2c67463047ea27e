// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrBootTimeout is returned when the kernel never answered in time.
	ErrBootTimeout = errors.New("kernel boot timed out")
	// ErrVersionMismatch is returned when a kernel from another release owns the port.
	ErrVersionMismatch = errors.New("kernel version mismatch")
)

// Default polling parameters.
const (
	DefaultMaxAttempts      = 15
	DefaultVersionInterval  = 200 * time.Millisecond
	DefaultProgressInterval = 100 * time.Millisecond
)

// Outcome is the terminal state of a boot attempt.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeVersionMismatch
	OutcomeTimeout
	OutcomeProcessExited
	// OutcomeKernelError means the version endpoint answered with a
	// non-zero code. The kernel is up but refuses to serve.
	OutcomeKernelError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeVersionMismatch:
		return "version_mismatch"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeProcessExited:
		return "process_exited"
	case OutcomeKernelError:
		return "kernel_error"
	default:
		return "pending"
	}
}

// BootAttempt tracks one spawn-and-poll cycle.
type BootAttempt struct {
	ID       string
	Port     int
	Args     []string
	Attempts int
	Progress int
	Version  string
	Outcome  Outcome
	ExitCode int
	Started  time.Time
}

// NewBootAttempt creates an attempt for a kernel spawned on port with args.
func NewBootAttempt(port int, args []string) *BootAttempt {
	return &BootAttempt{
		ID:      uuid.New().String(),
		Port:    port,
		Args:    args,
		Started: time.Now(),
	}
}

// Err converts the outcome into an error. Success yields nil.
func (a *BootAttempt) Err() error {
	switch a.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeVersionMismatch:
		return ErrVersionMismatch
	case OutcomeProcessExited:
		c := Classify(a.ExitCode, a.Port)
		return &ExitError{Code: a.ExitCode, Category: c.Category}
	default:
		return ErrBootTimeout
	}
}

// API is the subset of the kernel API used while booting.
type API interface {
	Version(ctx context.Context, port int) (string, error)
	BootProgress(ctx context.Context, port int) (int, error)
	Exit(ctx context.Context, port int) error
}

// Exiter exposes the exit notification of a spawned kernel.
type Exiter interface {
	Done() <-chan struct{}
	ExitCode() int
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	AppVersion       string
	Production       bool
	MaxAttempts      int
	VersionInterval  time.Duration
	ProgressInterval time.Duration
}

// Poller waits for a freshly spawned kernel to become ready.
type Poller struct {
	api    API
	cfg    PollerConfig
	logger *zap.Logger

	// OnReachable is called once the version probe succeeds.
	OnReachable func(port int)
}

// NewPoller creates a poller. Zero config fields take their defaults.
func NewPoller(api API, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.VersionInterval <= 0 {
		cfg.VersionInterval = DefaultVersionInterval
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{api: api, cfg: cfg, logger: logger}
}

// AwaitBoot polls the kernel on attempt.Port until it reports full boot
// progress, or until the retry budget runs out. An exit of proc at any point
// aborts polling and yields OutcomeProcessExited. The outcome is also stored
// on attempt.
func (p *Poller) AwaitBoot(ctx context.Context, attempt *BootAttempt, proc Exiter) Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-proc.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	attempt.Outcome = p.await(ctx, attempt, proc)
	if attempt.Outcome == OutcomeProcessExited {
		attempt.ExitCode = proc.ExitCode()
	}

	p.logger.Info("kernel boot finished",
		zap.String("attempt", attempt.ID),
		zap.Int("port", attempt.Port),
		zap.Stringer("outcome", attempt.Outcome),
		zap.Int("attempts", attempt.Attempts),
		zap.Duration("elapsed", time.Since(attempt.Started)))

	return attempt.Outcome
}

func (p *Poller) await(ctx context.Context, attempt *BootAttempt, proc Exiter) Outcome {
	port := attempt.Port

	var version string
	for {
		attempt.Attempts++
		v, err := p.api.Version(ctx, port)
		if exited(proc) {
			return OutcomeProcessExited
		}
		if err == nil {
			version = v
			break
		}
		if IsAPIError(err) {
			p.logger.Error("kernel version probe rejected", zap.Int("port", port), zap.Error(err))
			return OutcomeKernelError
		}
		if attempt.Attempts >= p.cfg.MaxAttempts {
			p.logger.Error("kernel unreachable", zap.Int("port", port), zap.Int("attempts", attempt.Attempts), zap.Error(err))
			return OutcomeTimeout
		}
		p.logger.Debug("kernel not ready", zap.Int("port", port), zap.Int("attempt", attempt.Attempts), zap.Error(err))

		if o, ok := p.sleep(ctx, proc, p.cfg.VersionInterval); !ok {
			return o
		}
	}

	attempt.Version = version
	if p.cfg.Production && version != p.cfg.AppVersion {
		p.logger.Warn("kernel version mismatch",
			zap.Int("port", port),
			zap.String("kernel", version),
			zap.String("app", p.cfg.AppVersion))
		if err := p.api.Exit(ctx, port); err != nil {
			p.logger.Warn("exit stale kernel", zap.Int("port", port), zap.Error(err))
		}
		return OutcomeVersionMismatch
	}

	if p.OnReachable != nil {
		p.OnReachable(port)
	}

	for {
		progress, err := p.api.BootProgress(ctx, port)
		if exited(proc) {
			return OutcomeProcessExited
		}
		if err != nil {
			p.logger.Error("boot progress unavailable", zap.Int("port", port), zap.Error(err))
			if ctx.Err() == nil {
				if err := p.api.Exit(ctx, port); err != nil {
					p.logger.Warn("exit kernel", zap.Int("port", port), zap.Error(err))
				}
			}
			return OutcomeTimeout
		}
		attempt.Progress = progress
		if progress >= 100 {
			return OutcomeSuccess
		}

		if o, ok := p.sleep(ctx, proc, p.cfg.ProgressInterval); !ok {
			return o
		}
	}
}

// sleep waits for d. It reports false with the outcome to return when the
// process exits or ctx is done first.
func (p *Poller) sleep(ctx context.Context, proc Exiter, d time.Duration) (Outcome, bool) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return OutcomePending, true
	case <-proc.Done():
		return OutcomeProcessExited, false
	case <-ctx.Done():
		if exited(proc) {
			return OutcomeProcessExited, false
		}
		return OutcomeTimeout, false
	}
}

func exited(proc Exiter) bool {
	select {
	case <-proc.Done():
		return true
	default:
		return false
	}
}
