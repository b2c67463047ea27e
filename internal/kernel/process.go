// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrKernelBinaryMissing is returned when the kernel executable is not installed.
var ErrKernelBinaryMissing = errors.New("kernel binary missing")

// Handle is a running kernel process as seen by the supervisor.
type Handle interface {
	PID() int
	// Done is closed exactly once, when the process has exited.
	Done() <-chan struct{}
	// ExitCode is valid after Done is closed.
	ExitCode() int
	// StopRequested reports whether the exit was asked for by Stop.
	StopRequested() bool
	// Stop kills the process and marks the exit as requested.
	Stop() error
}

// Args are the inputs used to derive the kernel command line.
type Args struct {
	Port       int
	WorkDir    string
	Workspace  string
	PinnedPort int
	Lang       string
	DevMode    bool
}

// BuildArgs derives the kernel's argument list.
func BuildArgs(a Args) []string {
	args := []string{"--port", strconv.Itoa(a.Port), "--wd", a.WorkDir}
	if a.DevMode {
		args = append(args, "--mode", "dev")
	}
	if a.Workspace != "" {
		args = append(args, "--workspace", a.Workspace)
	}
	if a.PinnedPort > 0 {
		args = append(args, "--port", strconv.Itoa(a.PinnedPort))
	}
	if a.Lang != "" {
		args = append(args, "--lang", a.Lang)
	}
	return args
}

// BinaryName returns the kernel executable name for goos.
func BinaryName(name, goos string) string {
	if goos == "windows" {
		return name + ".exe"
	}
	return name
}

// Spawner launches kernel processes from a fixed executable.
type Spawner struct {
	binary string
	logger *zap.Logger
}

// NewSpawner creates a spawner for the kernel executable named name inside
// dir. The platform suffix is added automatically.
func NewSpawner(dir, name string, logger *zap.Logger) *Spawner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Spawner{
		binary: filepath.Join(dir, BinaryName(name, runtime.GOOS)),
		logger: logger,
	}
}

// Binary returns the absolute path of the kernel executable.
func (s *Spawner) Binary() string {
	return s.binary
}

// Check verifies that the kernel executable exists.
func (s *Spawner) Check() error {
	info, err := os.Stat(s.binary)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrKernelBinaryMissing, s.binary)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrKernelBinaryMissing, s.binary)
	}
	return nil
}

// Spawn starts the kernel with args. The kernel's stdio is discarded.
func (s *Spawner) Spawn(args []string) (Handle, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}

	cmd := exec.Command(s.binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start kernel: %w", err)
	}

	p := &Process{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		logger:    s.logger,
	}
	go p.waitForExit()

	return p, nil
}

// Process is a spawned kernel.
type Process struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	logger    *zap.Logger

	mu            sync.Mutex
	exitCode      int
	stopRequested bool
	done          chan struct{}
}

// PID returns the OS process id.
func (p *Process) PID() int {
	return p.pid
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code once Done is closed.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// StopRequested reports whether Stop was called.
func (p *Process) StopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopRequested
}

// Stop kills the process. It is a no-op once the process has exited.
func (p *Process) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	p.mu.Lock()
	p.stopRequested = true
	p.mu.Unlock()

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill kernel %d: %w", p.pid, err)
	}
	<-p.done
	return nil
}

func (p *Process) waitForExit() {
	err := p.cmd.Wait()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()

	p.logger.Info("kernel process exited",
		zap.Int("pid", p.pid),
		zap.Int("code", code),
		zap.Duration("uptime", time.Since(p.startedAt)))

	close(p.done)
}
