// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package discover implements DeviceFinder, the passive UDP listener
// that discovers Pro DJ Link devices on the local subnet and maintains
// an expiring directory of known devices (spec.md §4.1).
package discover

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/prolinkgo/prolink/internal/slogutil"
	"github.com/prolinkgo/prolink/internal/svcutil"
	"github.com/prolinkgo/prolink/lib/dispatch"
	"github.com/prolinkgo/prolink/lib/vcdj"
)

const (
	// DefaultMaxAge is the device expiration threshold of spec.md §6.
	DefaultMaxAge = 10 * time.Second
	// DefaultAnnouncementPort is the fixed UDP port announcements arrive
	// on (spec.md §6).
	DefaultAnnouncementPort = 50000

	// tickInterval is the read timeout used while the directory holds at
	// least one device, so expiration is re-checked even if no further
	// packet arrives (spec.md §4.1).
	tickInterval = 1000 * time.Millisecond

	maxDatagramSize = 2048
)

// Metrics is an optional observability hook; see lib/metrics.Registry for
// the Prometheus-backed implementation wired by cmd/prolinkctl.
type Metrics interface {
	DeviceFound()
	DeviceLost()
	LiveDeviceCount(n int)
}

// PresenceRecorder is an optional hook for recording found/lost
// transitions for diagnostics; see lib/history.Recorder. It never
// influences DeviceFinder's own state.
type PresenceRecorder interface {
	RecordFound(DeviceAnnouncement)
	RecordLost(DeviceAnnouncement)
}

// PanicReporter is an optional hook for forwarding panics recovered from
// listener callbacks; see lib/crashreporting.Reporter.
type PanicReporter interface {
	CapturePanic(label string, recovered any)
}

type listenFunc func(port int) (net.PacketConn, error)

func defaultListen(port int) (net.PacketConn, error) {
	return net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
}

// DeviceFinder is the singleton-shaped (but independently constructible,
// for tests) device-presence tracker of spec.md §4.1.
type DeviceFinder struct {
	vcdj             vcdj.VirtualCdj
	userExecutor     dispatch.Executor
	metrics          Metrics
	recorder         PresenceRecorder
	panicReporter    PanicReporter
	maxAge           time.Duration
	announcementPort int
	listen           listenFunc

	mu           sync.Mutex
	active       bool
	startTime    int64
	conn         net.PacketConn
	dir          *directory
	listeners    *listenerSet
	executor     dispatch.Executor
	ownsExecutor bool

	supervisor *suture.Supervisor
	cancel     context.CancelFunc
	doneCh     chan struct{}
}

// Option configures a DeviceFinder built by New.
type Option func(*DeviceFinder)

// WithVirtualCdj supplies the external VirtualCdj collaborator used for
// self-echo suppression (spec.md §4.1 packet acceptance policy, rule 3).
// If omitted, DeviceFinder behaves as though no virtual CDJ is active.
func WithVirtualCdj(v vcdj.VirtualCdj) Option {
	return func(f *DeviceFinder) { f.vcdj = v }
}

// WithExecutor supplies a host-owned serial dispatch.Executor (spec.md
// §6 "event-delivery collaborator"). The finder never closes an
// executor supplied this way; the host retains ownership. If omitted,
// DeviceFinder creates and owns its own default executor per
// activation.
func WithExecutor(e dispatch.Executor) Option {
	return func(f *DeviceFinder) { f.userExecutor = e }
}

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(f *DeviceFinder) { f.maxAge = d }
}

// WithAnnouncementPort overrides DefaultAnnouncementPort.
func WithAnnouncementPort(port int) Option {
	return func(f *DeviceFinder) { f.announcementPort = port }
}

// WithMetrics attaches an optional Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(f *DeviceFinder) { f.metrics = m }
}

// WithPresenceRecorder attaches an optional PresenceRecorder sink.
func WithPresenceRecorder(r PresenceRecorder) Option {
	return func(f *DeviceFinder) { f.recorder = r }
}

// WithPanicReporter attaches an optional PanicReporter, used only when
// DeviceFinder owns its default executor (see WithExecutor).
func WithPanicReporter(r PanicReporter) Option {
	return func(f *DeviceFinder) { f.panicReporter = r }
}

// New constructs an inactive DeviceFinder. Call Start to begin
// listening.
func New(opts ...Option) *DeviceFinder {
	f := &DeviceFinder{
		vcdj:             vcdj.NoopVirtualCdj{},
		maxAge:           DefaultMaxAge,
		announcementPort: DefaultAnnouncementPort,
		listen:           defaultListen,
		listeners:        &listenerSet{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsActive reports whether the announcement socket is currently bound.
func (f *DeviceFinder) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// StartTime returns the wall-clock ms at which the current activation
// began, or ErrNotActive if the finder is inactive.
func (f *DeviceFinder) StartTime() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return 0, ErrNotActive
	}
	return f.startTime, nil
}

// Start is idempotent: binds the announcement socket, records the
// activation time, and spawns the background receiver. It returns once
// the socket is bound.
func (f *DeviceFinder) Start() error {
	f.mu.Lock()
	if f.active {
		f.mu.Unlock()
		return nil
	}

	conn, err := f.listen(f.announcementPort)
	if err != nil {
		f.mu.Unlock()
		return &NetworkBindError{Port: f.announcementPort, Err: err}
	}

	if f.userExecutor != nil {
		f.executor = f.userExecutor
		f.ownsExecutor = false
	} else {
		var onPanic func(any)
		if f.panicReporter != nil {
			onPanic = func(r any) { f.panicReporter.CapturePanic("discover/listener", r) }
		}
		f.executor = dispatch.NewSerialExecutorWithPanicHandler(32, onPanic)
		f.ownsExecutor = true
	}

	f.conn = conn
	f.dir = newDirectory(f.maxAge)
	f.active = true
	f.startTime = time.Now().UnixMilli()

	sup := suture.New("device-finder", svcutil.SpecWithDebugLogger())
	sup.Add(svcutil.AsService(f.receiveLoop, "device-finder/recv"))
	f.supervisor = sup

	doneCh := make(chan struct{})
	f.doneCh = doneCh
	f.cancel = svcutil.RunSupervisor(context.Background(), sup, func() { close(doneCh) })

	f.mu.Unlock()
	return nil
}

// Stop is idempotent and safe to call from any goroutine: it closes the
// socket, drains the directory (delivering one device-lost notification
// per entry that was present), and waits for that delivery and the
// supervised receiver to fully unwind before returning.
func (f *DeviceFinder) Stop() {
	f.stopLocal()

	f.mu.Lock()
	cancel := f.cancel
	done := f.doneCh
	f.cancel = nil
	f.doneCh = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// stopLocal performs the idempotent, always-safe part of Stop: it may be
// called either from an external Stop() or from within the receiver
// loop's own goroutine reacting to an I/O failure. It must never wait on
// f.doneCh, since that channel only closes once the receiver loop (which
// may be the caller) has returned.
func (f *DeviceFinder) stopLocal() {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return
	}
	f.active = false
	conn := f.conn
	f.conn = nil
	drained := f.dir.drain()
	for _, ann := range drained {
		f.deliverLost(ann)
	}
	executor := f.executor
	owns := f.ownsExecutor
	f.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			slog.Debug("error closing announcement socket", slogutil.Error(err))
		}
	}

	// Closing an owned executor blocks until every notification already
	// submitted (including the drain above) has run, so Stop()'s
	// observable postcondition ("exactly N device-lost notifications
	// were delivered") holds by the time Stop returns.
	if owns && executor != nil {
		executor.Close()
	}
}

// CurrentDevices returns a snapshot of currently-live announcements,
// after applying expiration, or ErrNotActive if the finder is inactive.
func (f *DeviceFinder) CurrentDevices() ([]DeviceAnnouncement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return nil, ErrNotActive
	}
	f.expireLocked(time.Now())
	return f.dir.list(), nil
}

// GetLatestAnnouncementFrom linearly searches CurrentDevices for a
// device number; the directory is small enough (≤ ~8) that this is
// simpler and fast enough without a secondary index (spec.md §4.1).
func (f *DeviceFinder) GetLatestAnnouncementFrom(deviceNumber int) (DeviceAnnouncement, bool, error) {
	devices, err := f.CurrentDevices()
	if err != nil {
		return DeviceAnnouncement{}, false, err
	}
	for _, d := range devices {
		if d.Number == deviceNumber {
			return d, true, nil
		}
	}
	return DeviceAnnouncement{}, false, nil
}

// AddListener registers l for presence-change notifications. A nil or
// already-present listener is a no-op.
func (f *DeviceFinder) AddListener(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners.add(l)
}

// RemoveListener unregisters l. A nil or not-present listener is a
// no-op.
func (f *DeviceFinder) RemoveListener(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners.remove(l)
}

// expireLocked runs the expiration pass of spec.md §4.1 under f.mu,
// delivering a device-lost notification for every entry it removes.
// Callers must hold f.mu and have already verified f.active.
func (f *DeviceFinder) expireLocked(now time.Time) {
	removed := f.dir.removeExpired(now)
	for _, ann := range removed {
		f.deliverLost(ann)
	}
	if f.metrics != nil {
		f.metrics.LiveDeviceCount(len(f.dir.list()))
	}
}

// deliverFound and deliverLost snapshot the listener set and submit
// delivery to the executor, so that listeners never run on the receiver
// goroutine (spec.md §4.1 "Notification delivery"). Callers must hold
// f.mu.
func (f *DeviceFinder) deliverFound(ann DeviceAnnouncement) {
	if f.recorder != nil {
		f.recorder.RecordFound(ann)
	}
	if f.metrics != nil {
		f.metrics.DeviceFound()
	}
	listeners := f.listeners.snapshot()
	executor := f.executor
	executor.Submit(func() {
		for _, l := range listeners {
			l.DeviceFound(ann)
		}
	})
}

func (f *DeviceFinder) deliverLost(ann DeviceAnnouncement) {
	if f.recorder != nil {
		f.recorder.RecordLost(ann)
	}
	if f.metrics != nil {
		f.metrics.DeviceLost()
	}
	listeners := f.listeners.snapshot()
	executor := f.executor
	executor.Submit(func() {
		for _, l := range listeners {
			l.DeviceLost(ann)
		}
	})
}

// receiveLoop is the background receiver of spec.md §4.1. It runs as a
// suture.Service under f.supervisor until isActive() turns false.
func (f *DeviceFinder) receiveLoop(ctx context.Context) error {
	for {
		f.mu.Lock()
		if !f.active {
			f.mu.Unlock()
			return nil
		}
		conn := f.conn
		empty := f.dir.empty()
		f.mu.Unlock()

		if empty {
			_ = conn.SetReadDeadline(time.Time{})
		} else {
			_ = conn.SetReadDeadline(time.Now().Add(tickInterval))
		}

		buf := make([]byte, maxDatagramSize)
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				f.mu.Lock()
				if f.active {
					f.expireLocked(time.Now())
				}
				f.mu.Unlock()
				continue
			}

			f.mu.Lock()
			stillActive := f.active
			f.mu.Unlock()
			if !stillActive {
				// stop() closed our socket; exit silently.
				return nil
			}

			slog.Warn("device announcement socket failed, stopping device finder", slogutil.Error(err))
			go f.Stop()
			return nil
		}

		f.handlePacket(buf[:n], addr, time.Now())
	}
}

func (f *DeviceFinder) handlePacket(packet []byte, addr net.Addr, now time.Time) {
	srcIP := sourceIP(addr)

	if f.vcdj.IsActive() && srcIP != nil && srcIP.String() == f.vcdj.LocalAddress() {
		slog.Debug("ignoring self-echoed announcement", slogutil.Address(addr))
		return
	}

	ann, err := parseAnnouncement(packet, srcIP, now)
	if err != nil {
		slog.Debug("rejected device announcement datagram", slogutil.Address(addr), slogutil.Error(err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}
	if f.dir.put(ann) {
		f.deliverFound(ann)
	}
	f.expireLocked(now)
}

func sourceIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil
		}
		return net.ParseIP(host)
	}
}
