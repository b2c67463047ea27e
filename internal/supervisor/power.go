// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// resume waits for the network after the system woke up, then asks every
// kernel to sync. Nothing is synced if the network stays offline.
func (r *Router) resume(ctx context.Context) error {
	r.logger.Info("system resume")

	online := false
	for i := 0; i < r.cfg.ResumeAttempts; i++ {
		if r.probe != nil && r.probe.Online(ctx) {
			online = true
			break
		}
		r.logger.Info("network is offline")
		if i == r.cfg.ResumeAttempts-1 {
			break
		}
		if !sleep(ctx, r.cfg.ResumeInterval) {
			return ctx.Err()
		}
	}
	if !online {
		r.logger.Warn("network is offline, do not sync after system resume")
		return ErrNetworkUnreachable
	}

	r.eachKernel(ctx, "sync after system resume", r.sup.api.PerformSync)
	return nil
}

// powerShutdown asks every kernel to exit in the background and returns at
// once.
func (r *Router) powerShutdown() {
	r.logger.Info("system shutdown")
	r.async(func(ctx context.Context) {
		r.eachKernel(ctx, "exit kernel on system shutdown", r.sup.api.Exit)
	})
}

// eachKernel calls fn for the port of every open workspace concurrently.
// Failures are logged.
func (r *Router) eachKernel(ctx context.Context, what string, fn func(ctx context.Context, port int) error) {
	var g errgroup.Group
	for _, e := range r.registry.Entries() {
		port := e.Port
		g.Go(func() error {
			r.logger.Info(what, zap.Int("port", port))
			if err := fn(ctx, port); err != nil {
				r.logger.Warn(what+" failed", zap.Int("port", port), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()
}
