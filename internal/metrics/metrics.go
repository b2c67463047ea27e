// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes supervisor counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the supervisor's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	BootTotal      *prometheus.CounterVec
	BootDuration   prometheus.Histogram
	KernelExits    *prometheus.CounterVec
	WorkspacesOpen prometheus.Gauge
	Commands       *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BootTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_boot_total",
				Help: "Kernel boot attempts by outcome",
			},
			[]string{"outcome"},
		),
		BootDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deskshell_boot_duration_seconds",
				Help:    "Time from spawn to boot outcome",
				Buckets: []float64{.25, .5, 1, 2, 3, 5, 10, 20, 40, 80},
			},
		),
		KernelExits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_kernel_exit_total",
				Help: "Kernel process exits by category",
			},
			[]string{"category"},
		),
		WorkspacesOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskshell_workspaces_open",
				Help: "Number of registered workspaces",
			},
		),
		Commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_commands_total",
				Help: "Dispatched commands by name and result",
			},
			[]string{"command", "result"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_http_requests_total",
				Help: "Control API requests",
			},
			[]string{"method", "status"},
		),
	}
}

// ObserveBoot records a finished boot attempt.
func (m *Metrics) ObserveBoot(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BootTotal.WithLabelValues(outcome).Inc()
	m.BootDuration.Observe(elapsed.Seconds())
}

// ObserveExit records a kernel exit.
func (m *Metrics) ObserveExit(category string) {
	if m == nil {
		return
	}
	m.KernelExits.WithLabelValues(category).Inc()
}

// SetWorkspaces updates the open workspace gauge.
func (m *Metrics) SetWorkspaces(n int) {
	if m == nil {
		return
	}
	m.WorkspacesOpen.Set(float64(n))
}

// ObserveCommand records a dispatched command.
func (m *Metrics) ObserveCommand(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Commands.WithLabelValues(name, result).Inc()
}

// ObserveRequest records a control API request.
func (m *Metrics) ObserveRequest(method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
