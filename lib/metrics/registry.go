// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metrics wires the domain events of discover.DeviceFinder and
// dbserver.Manager to Prometheus collectors. It is pure adapter code: a
// single Registry satisfies both discover.Metrics and dbserver.Metrics
// by duck typing, so one instance can be shared between the two
// components.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry exposes the counters and gauges cmd/prolinkctl registers
// against a Prometheus registerer and serves over /metrics.
type Registry struct {
	devicesLive    prometheus.Gauge
	devicesFound   prometheus.Counter
	devicesLost    prometheus.Counter
	probeOutcomes  *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// NewRegistry constructs and registers a Registry against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		devicesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "prolink",
			Subsystem: "discover",
			Name:      "devices_live",
			Help:      "Number of devices currently present in the device directory.",
		}),
		devicesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prolink",
			Subsystem: "discover",
			Name:      "devices_found_total",
			Help:      "Total number of device-found notifications delivered.",
		}),
		devicesLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prolink",
			Subsystem: "discover",
			Name:      "devices_lost_total",
			Help:      "Total number of device-lost notifications delivered.",
		}),
		probeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prolink",
			Subsystem: "dbserver",
			Name:      "probe_outcomes_total",
			Help:      "Total DBServer port probes, by outcome.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "prolink",
			Subsystem: "dbserver",
			Name:      "active_sessions",
			Help:      "Number of invokeWithClientSession calls currently in flight.",
		}),
	}
	reg.MustRegister(m.devicesLive, m.devicesFound, m.devicesLost, m.probeOutcomes, m.activeSessions)
	return m
}

// DeviceFound implements discover.Metrics.
func (m *Registry) DeviceFound() { m.devicesFound.Inc() }

// DeviceLost implements discover.Metrics.
func (m *Registry) DeviceLost() { m.devicesLost.Inc() }

// LiveDeviceCount implements discover.Metrics.
func (m *Registry) LiveDeviceCount(n int) { m.devicesLive.Set(float64(n)) }

// ProbeSucceeded implements dbserver.Metrics.
func (m *Registry) ProbeSucceeded() { m.probeOutcomes.WithLabelValues("success").Inc() }

// ProbeRefused implements dbserver.Metrics.
func (m *Registry) ProbeRefused() { m.probeOutcomes.WithLabelValues("refused").Inc() }

// ProbeFailed implements dbserver.Metrics.
func (m *Registry) ProbeFailed() { m.probeOutcomes.WithLabelValues("failed").Inc() }

// SessionOpened implements dbserver.Metrics.
func (m *Registry) SessionOpened() { m.activeSessions.Inc() }

// SessionClosed implements dbserver.Metrics.
func (m *Registry) SessionClosed() { m.activeSessions.Dec() }
