// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package instance keeps a single shell process per configuration
// directory. The owner holds a file lock and records the address of its
// control API; later launches forward their arguments to it and exit.
package instance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/wingedpig/deskshell/pkg/client"
)

const (
	// LockFile is held by the owning process for its whole life.
	LockFile = "deskshell.lock"
	// RecordFile holds the Record of the owning process.
	RecordFile = "instance.json"
)

var (
	// ErrAlreadyRunning is returned by Acquire when another process owns the lock.
	ErrAlreadyRunning = errors.New("another instance is running")
	// ErrNoRecord is returned when the owner has not published its address.
	ErrNoRecord = errors.New("instance record not found")
)

// Record describes the owning process.
type Record struct {
	PID     int       `json:"pid"`
	Addr    string    `json:"addr"`
	Started time.Time `json:"started"`
}

// URL returns the base URL of the owner's control API.
func (r Record) URL() string {
	return "http://" + r.Addr
}

// Lock is the single-instance lock of a configuration directory.
type Lock struct {
	dir    string
	lock   *flock.Flock
	logger *zap.Logger
}

// Acquire takes the lock in dir without blocking.
func Acquire(dir string, logger *zap.Logger) (*Lock, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fileLock := flock.New(filepath.Join(dir, LockFile))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}
	return &Lock{dir: dir, lock: fileLock, logger: logger.Named("instance")}, nil
}

// Publish records addr as the control API address of this process.
func (l *Lock) Publish(addr string) error {
	rec := Record{PID: os.Getpid(), Addr: addr, Started: time.Now()}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(l.dir, RecordFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing instance record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing instance record: %w", err)
	}
	l.logger.Info("published instance", zap.String("addr", addr), zap.Int("pid", rec.PID))
	return nil
}

// Release removes the record and unlocks.
func (l *Lock) Release() error {
	if err := os.Remove(filepath.Join(l.dir, RecordFile)); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("remove instance record", zap.Error(err))
	}
	return l.lock.Unlock()
}

// ReadRecord reads the record published by the owner of dir.
func ReadRecord(dir string) (Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, RecordFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNoRecord
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parsing instance record: %w", err)
	}
	if rec.Addr == "" {
		return Record{}, ErrNoRecord
	}
	return rec, nil
}

// Forward hands argv to the owner of dir. The owner may still be starting,
// so a missing record or a refused connection is retried every interval
// until ctx is done.
func Forward(ctx context.Context, dir string, argv []string, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	var lastErr error
	for {
		rec, err := ReadRecord(dir)
		if err == nil {
			c := client.New(rec.URL(), client.WithTimeout(5*time.Second))
			err = c.Instance.Forward(ctx, argv)
			var apiErr *client.APIError
			if err == nil || errors.As(err, &apiErr) {
				return err
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("forward to running instance: %w", lastErr)
		case <-time.After(interval):
		}
	}
}
