// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package dbserver implements ConnectionManager: DBServer port discovery
// per device, session brokering, and safe source-device-number selection
// (spec.md §4.2).
package dbserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/prolinkgo/prolink/internal/slogutil"
	"github.com/prolinkgo/prolink/lib/discover"
	"github.com/prolinkgo/prolink/lib/vcdj"
)

const (
	// DefaultSocketTimeout is used for both TCP connect and TCP read on
	// DBServer-related sockets (spec.md §6 "socketTimeout").
	DefaultSocketTimeout = 10 * time.Second

	portUnknown = -1

	defaultProbeRate  = rate.Limit(20)
	defaultProbeBurst = 5

	defaultMaxConcurrentSessions = int64(8)
)

// Manager is ConnectionManager: it rides on a discover.DeviceFinder to
// learn which devices exist, probes each for its DBServer port, and
// brokers single-use client sessions against those ports.
type Manager struct {
	finder *discover.DeviceFinder
	vcdj   vcdj.VirtualCdj

	probeLimiter *rate.Limiter
	sessionSem   *semaphore.Weighted

	// queryPort is DBServerQueryPort in production; tests override it to
	// point probes at an in-process listener.
	queryPort int

	metrics       Metrics
	panicReporter PanicReporter

	mu            sync.Mutex
	running       bool
	socketTimeout time.Duration
	ports         map[int]int
	addresses     map[int]net.IP
	listener      discover.Listener
}

// Option configures a Manager built by New.
type Option func(*Manager)

// WithSocketTimeout overrides DefaultSocketTimeout.
func WithSocketTimeout(d time.Duration) Option {
	return func(m *Manager) { m.socketTimeout = d }
}

// WithProbeRateLimit overrides the default pacing applied to outgoing
// port probes (spec.md §3 addition: a rate.Limiter bounds issuance, not
// per-probe behavior).
func WithProbeRateLimit(r rate.Limit, burst int) Option {
	return func(m *Manager) { m.probeLimiter = rate.NewLimiter(r, burst) }
}

// WithMaxConcurrentSessions overrides the default cap on concurrent
// InvokeWithClientSession calls (spec.md §3 addition).
func WithMaxConcurrentSessions(n int64) Option {
	return func(m *Manager) { m.sessionSem = semaphore.NewWeighted(n) }
}

// WithMetrics attaches an optional Metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithPanicReporter attaches an optional PanicReporter, invoked when a
// probe goroutine panics.
func WithPanicReporter(r PanicReporter) Option {
	return func(m *Manager) { m.panicReporter = r }
}

// New constructs a stopped Manager riding on finder, using v for
// source-device-number selection.
func New(finder *discover.DeviceFinder, v vcdj.VirtualCdj, opts ...Option) *Manager {
	m := &Manager{
		finder:        finder,
		vcdj:          v,
		socketTimeout: DefaultSocketTimeout,
		probeLimiter:  rate.NewLimiter(defaultProbeRate, defaultProbeBurst),
		sessionSem:    semaphore.NewWeighted(defaultMaxConcurrentSessions),
		queryPort:     DBServerQueryPort,
		ports:         make(map[int]int),
		addresses:     make(map[int]net.IP),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsRunning reports whether start() has been called and stop() has not
// since been called.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetSocketTimeout returns the timeout currently applied to DBServer
// connect and read operations.
func (m *Manager) GetSocketTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.socketTimeout
}

// SetSocketTimeout changes the timeout applied to DBServer connect and
// read operations; it takes effect on the next probe or session.
func (m *Manager) SetSocketTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.socketTimeout = d
}

// GetPlayerDBServerPort returns the known TCP DBServer port for
// deviceNumber, or -1 if it is unknown (never probed, or the probe
// failed, or the device is not currently live).
func (m *Manager) GetPlayerDBServerPort(deviceNumber int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	port, ok := m.ports[deviceNumber]
	if !ok {
		return portUnknown
	}
	return port
}

// Start is idempotent: it ensures the device finder is running,
// registers CM's own listener, and enqueues a port-probe for every
// device already present in the finder's directory.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.finder.Start(); err != nil {
		return err
	}

	l := &discover.ListenerFuncs{
		Found: m.handleDeviceFound,
		Lost:  m.handleDeviceLost,
	}

	m.mu.Lock()
	m.running = true
	m.listener = l
	m.ports = make(map[int]int)
	m.addresses = make(map[int]net.IP)
	m.mu.Unlock()

	m.finder.AddListener(l)

	if devices, err := m.finder.CurrentDevices(); err == nil {
		for _, d := range devices {
			m.noteAddress(d)
			m.enqueueProbe(d)
		}
	}
	return nil
}

// Stop is idempotent: it unregisters CM's device-finder listener and
// clears the port table. It does not stop the device finder.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	listener := m.listener
	m.listener = nil
	m.ports = make(map[int]int)
	m.addresses = make(map[int]net.IP)
	m.mu.Unlock()

	if listener != nil {
		m.finder.RemoveListener(listener)
	}
}

func (m *Manager) noteAddress(ann discover.DeviceAnnouncement) {
	m.mu.Lock()
	m.addresses[ann.Number] = ann.Address
	m.mu.Unlock()
}

func (m *Manager) handleDeviceFound(ann discover.DeviceAnnouncement) {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return
	}
	m.noteAddress(ann)
	m.enqueueProbe(ann)
}

// handleDeviceLost clears the port-table entry to "unknown", per
// spec.md §4.2 "Device-lost handling". In-flight sessions for the player
// are left alone; they complete or fail on their own socket timeouts.
func (m *Manager) handleDeviceLost(ann discover.DeviceAnnouncement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.ports[ann.Number] = portUnknown
	delete(m.addresses, ann.Number)
}

// enqueueProbe dispatches an asynchronous, independent port probe for
// ann (spec.md §4.2 "Port probe protocol"). Probes may run concurrently;
// probeLimiter only paces how fast new ones are issued.
func (m *Manager) enqueueProbe(ann discover.DeviceAnnouncement) {
	go m.runProbe(ann)
}

func (m *Manager) runProbe(ann discover.DeviceAnnouncement) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dbserver probe goroutine panicked", "device", ann.Number, "recover", r)
			if m.panicReporter != nil {
				m.panicReporter.CapturePanic("dbserver/probe", r)
			}
		}
	}()

	ctx := context.Background()
	if m.probeLimiter != nil {
		if err := m.probeLimiter.Wait(ctx); err != nil {
			return
		}
	}

	m.mu.Lock()
	running := m.running
	timeout := m.socketTimeout
	queryPort := m.queryPort
	m.mu.Unlock()
	if !running {
		return
	}

	port, refused, warn, err := probePort(ctx, ann.Address, queryPort, timeout)
	switch {
	case err != nil:
		slog.Warn("dbserver port probe failed", "device", ann.Number, slogutil.Address(&net.UDPAddr{IP: ann.Address}), slogutil.Error(err))
		if m.metrics != nil {
			m.metrics.ProbeFailed()
		}
		return
	case refused:
		slog.Info("device has no dbserver, leaving port unknown", "device", ann.Number)
		if m.metrics != nil {
			m.metrics.ProbeRefused()
		}
		return
	}
	if warn != "" {
		slog.Warn(warn, "device", ann.Number)
	}
	if m.metrics != nil {
		m.metrics.ProbeSucceeded()
	}

	m.mu.Lock()
	if m.running {
		m.ports[ann.Number] = port
	}
	m.mu.Unlock()
}

// InvokeWithClientSession opens a single-use TCP session to targetPlayer's
// DBServer, hands it to task along with a safely-chosen posing-as device
// number, and guarantees the socket is closed on every exit path
// (spec.md §4.2). description is used only for logging.
func (m *Manager) InvokeWithClientSession(ctx context.Context, targetPlayer int, description string, task func(*Client) (any, error)) (any, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil, ErrNotRunning
	}
	addr, haveAddr := m.addresses[targetPlayer]
	port, havePort := m.ports[targetPlayer]
	timeout := m.socketTimeout
	m.mu.Unlock()

	if !haveAddr || !havePort || port <= 0 {
		return nil, ErrNoSuchPlayer
	}

	devices, err := m.finder.CurrentDevices()
	if err != nil {
		return nil, err
	}
	source, err := chooseAskingPlayerNumber(targetPlayer, m.vcdj, devices)
	if err != nil {
		return nil, err
	}

	if m.sessionSem != nil {
		if err := m.sessionSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer m.sessionSem.Release(1)
	}

	sessionID := uuid.NewString()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp4", net.JoinHostPort(addr.String(), strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("prolink/dbserver: opening session %s (%s) to player %d: %w", sessionID, description, targetPlayer, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			slog.Debug("error closing dbserver session socket", "session", sessionID, slogutil.Error(cerr))
		}
	}()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	client := &Client{
		Conn:         conn,
		TargetPlayer: targetPlayer,
		SourcePlayer: source,
		SessionID:    sessionID,
	}
	slog.Debug("dbserver session opened", "session", sessionID, "description", description, "target", targetPlayer, "source", source)

	if m.metrics != nil {
		m.metrics.SessionOpened()
		defer m.metrics.SessionClosed()
	}

	return task(client)
}
