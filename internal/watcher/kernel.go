// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher reports changes to the kernel binary on disk.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wingedpig/deskshell/internal/events"
)

const defaultSettle = 250 * time.Millisecond

// KernelWatcher watches the directory holding the kernel binary. Bursts of
// file system events are collapsed: once the binary has been quiet for the
// settle duration its presence decides what is published.
//
// A missing binary publishes events.EventKernelBinaryRemoved once. A binary
// that was written, created or replaced publishes
// events.EventKernelBinaryChanged.
type KernelWatcher struct {
	bus    events.EventBus
	logger *zap.Logger
	binary string
	settle time.Duration

	fs *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	present bool
	closed  bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewKernelWatcher starts watching binary. The directory containing it must
// exist; the binary itself may be missing.
func NewKernelWatcher(bus events.EventBus, binary string, settle time.Duration, logger *zap.Logger) (*KernelWatcher, error) {
	if settle <= 0 {
		settle = defaultSettle
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(binary)
	if err != nil {
		abs = filepath.Clean(binary)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	_, statErr := os.Stat(abs)
	w := &KernelWatcher{
		bus:     bus,
		logger:  logger.Named("watcher"),
		binary:  abs,
		settle:  settle,
		fs:      fsWatcher,
		present: statErr == nil,
		closeCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Binary returns the absolute path being watched.
func (w *KernelWatcher) Binary() string {
	return w.binary
}

// Present reports whether the binary existed at the last settle.
func (w *KernelWatcher) Present() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.present
}

// Close stops the watcher. Pending notifications are dropped.
func (w *KernelWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *KernelWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Debug("fsnotify", zap.Error(err))
		}
	}
}

func (w *KernelWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.binary {
		return
	}
	// Running the binary touches its mode bits on some platforms.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.settle, w.settled)
}

func (w *KernelWatcher) settled() {
	info, err := os.Stat(w.binary)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	wasPresent := w.present
	w.present = err == nil
	w.mu.Unlock()

	if err != nil {
		if !wasPresent {
			return
		}
		w.logger.Warn("kernel binary removed", zap.String("path", w.binary))
		w.publish(events.EventKernelBinaryRemoved, map[string]interface{}{
			"path": w.binary,
		})
		return
	}

	w.logger.Info("kernel binary changed", zap.String("path", w.binary), zap.Time("modTime", info.ModTime()))
	w.publish(events.EventKernelBinaryChanged, map[string]interface{}{
		"path":    w.binary,
		"size":    info.Size(),
		"modTime": info.ModTime().Format(time.RFC3339),
	})
}

func (w *KernelWatcher) publish(eventType string, payload map[string]interface{}) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(context.Background(), events.Event{Type: eventType, Payload: payload}); err != nil {
		w.logger.Debug("publish", zap.String("type", eventType), zap.Error(err))
	}
}
