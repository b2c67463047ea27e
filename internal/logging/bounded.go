// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Line limits of the application log file.
const (
	MaxLogLines  = 1024
	keepLogStart = 512
)

// BoundedFile is an append-only log file that never grows past MaxLogLines.
// Once the file holds more lines, the older half is dropped before the next
// append. It implements zapcore.WriteSyncer.
type BoundedFile struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewBoundedFile creates a bounded log writer for path.
func NewBoundedFile(path string) *BoundedFile {
	return &BoundedFile{path: path, now: time.Now}
}

// Path returns the log file path.
func (f *BoundedFile) Path() string {
	return f.path
}

// Write prunes the file if needed and appends p prefixed with a timestamp.
func (f *BoundedFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.prune(); err != nil {
		return 0, err
	}

	out, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("open log: %w", err)
	}
	defer out.Close()

	line := make([]byte, 0, len(p)+21)
	line = append(line, f.now().Format("2006-01-02 15:04:05 ")...)
	line = append(line, p...)
	if len(p) == 0 || p[len(p)-1] != '\n' {
		line = append(line, '\n')
	}
	if _, err := out.Write(line); err != nil {
		return 0, fmt.Errorf("append log: %w", err)
	}
	return len(p), nil
}

// Sync is a no-op; every Write closes the file.
func (f *BoundedFile) Sync() error {
	return nil
}

// prune must be called with f.mu held.
func (f *BoundedFile) prune() error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}

	lines := bytes.Split(data, []byte("\n"))
	if len(lines) <= MaxLogLines {
		return nil
	}

	kept := bytes.Join(lines[keepLogStart:MaxLogLines], []byte("\n"))
	kept = append(kept, '\n')
	if err := os.WriteFile(f.path, kept, 0644); err != nil {
		return fmt.Errorf("prune log: %w", err)
	}
	return nil
}
