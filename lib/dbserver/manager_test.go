// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dbserver

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prolinkgo/prolink/lib/discover"
	"github.com/prolinkgo/prolink/lib/vcdj"
)

// fakeProbeMetrics records which Metrics methods runProbe invoked, so
// tests can assert on the probe outcome classification (spec.md §4.2)
// without reaching into unexported Manager state.
type fakeProbeMetrics struct {
	mu                              sync.Mutex
	succeeded, refused, failed      int
	sessionsOpened, sessionsClosed  int
}

func (f *fakeProbeMetrics) ProbeSucceeded() { f.mu.Lock(); f.succeeded++; f.mu.Unlock() }
func (f *fakeProbeMetrics) ProbeRefused()   { f.mu.Lock(); f.refused++; f.mu.Unlock() }
func (f *fakeProbeMetrics) ProbeFailed()    { f.mu.Lock(); f.failed++; f.mu.Unlock() }
func (f *fakeProbeMetrics) SessionOpened()  { f.mu.Lock(); f.sessionsOpened++; f.mu.Unlock() }
func (f *fakeProbeMetrics) SessionClosed()  { f.mu.Lock(); f.sessionsClosed++; f.mu.Unlock() }

func (f *fakeProbeMetrics) snapshot() (succeeded, refused, failed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.succeeded, f.refused, f.failed
}

// acceptOnceAndRespond runs a one-shot TCP listener bound to 127.0.0.1
// that reads a single request and writes back resp, for driving
// Manager.runProbe end-to-end through its queryPort test seam.
func acceptOnceAndRespond(t *testing.T, resp []byte) (port int, done <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, len(queryFrame))
		_, _ = conn.Read(buf)
		if resp != nil {
			_, _ = conn.Write(resp)
		}
	}()
	return p, doneCh
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	finder := discover.New(discover.WithAnnouncementPort(0))
	m := New(finder, vcdj.NoopVirtualCdj{})
	t.Cleanup(finder.Stop)
	return m
}

func TestManagerGetPlayerDBServerPortDefaultsUnknown(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, -1, m.GetPlayerDBServerPort(3))
}

func TestManagerStartStopIsIdempotentAndTogglesRunning(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Start())
	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	m.Stop()
	m.Stop()
	assert.False(t, m.IsRunning())
}

func TestManagerDeviceLostClearsPort(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	defer m.Stop()

	ann := discover.DeviceAnnouncement{Number: 2, Address: net.ParseIP("10.0.0.5")}

	// Seed the port table directly: handleDeviceFound's own probe side
	// effect is exercised by TestManagerRunProbeRecordsSuccess and the manager's own
	// listener wiring by TestManagerStartStopIsIdempotentAndTogglesRunning;
	// here only handleDeviceLost's bookkeeping is under test.
	m.mu.Lock()
	m.ports[2] = 4444
	m.addresses[2] = ann.Address
	m.mu.Unlock()

	m.handleDeviceLost(ann)

	assert.Equal(t, -1, m.GetPlayerDBServerPort(2))
	m.mu.Lock()
	_, stillTracked := m.addresses[2]
	m.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestManagerInvokeWithClientSessionFailsWhenNotRunning(t *testing.T) {
	m := newTestManager(t)
	_, err := m.InvokeWithClientSession(context.Background(), 2, "test", func(*Client) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestManagerInvokeWithClientSessionFailsForUnknownPlayer(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	defer m.Stop()

	_, err := m.InvokeWithClientSession(context.Background(), 9, "test", func(*Client) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrNoSuchPlayer)
}

func TestManagerInvokeWithClientSessionOpensAndClosesSocket(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan struct{})
	closed := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		close(accepted)
		// Reads until the client side closes the connection.
		_, _ = io.Copy(io.Discard, conn)
		conn.Close()
		close(closed)
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	m := newTestManager(t)
	// A virtual CDJ holding a real player number (1..4) can always be
	// posed as, so source-number selection succeeds with no live devices.
	m.vcdj = &fakeVCDJ{deviceNumber: 3}
	require.NoError(t, m.Start())
	defer m.Stop()

	m.mu.Lock()
	m.addresses[2] = net.ParseIP(host)
	m.ports[2] = port
	m.mu.Unlock()

	called := false
	result, err := m.InvokeWithClientSession(context.Background(), 2, "test-session", func(c *Client) (any, error) {
		called = true
		assert.Equal(t, 2, c.TargetPlayer)
		_, werr := c.Conn.Write([]byte("hi"))
		return "ok", werr
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "ok", result)

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("session never connected to the fake dbserver")
	}

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("session socket was not closed after the task returned")
	}
}

// TestManagerRunProbeRecordsSuccess drives the real handleDeviceFound ->
// enqueueProbe -> runProbe -> probePort path (manager.go, spec.md §4.2)
// against an in-process DBServer stand-in, via the queryPort test seam.
func TestManagerRunProbeRecordsSuccess(t *testing.T) {
	port, serverDone := acceptOnceAndRespond(t, []byte{0x15, 0xB3}) // 5555

	fm := &fakeProbeMetrics{}
	finder := discover.New(discover.WithAnnouncementPort(0))
	m := New(finder, vcdj.NoopVirtualCdj{}, WithMetrics(fm))
	m.queryPort = port
	t.Cleanup(finder.Stop)

	require.NoError(t, m.Start())
	defer m.Stop()

	m.handleDeviceFound(discover.DeviceAnnouncement{Number: 7, Address: net.ParseIP("127.0.0.1")})

	require.Eventually(t, func() bool {
		return m.GetPlayerDBServerPort(7) == 5555
	}, 2*time.Second, 10*time.Millisecond)

	<-serverDone
	succeeded, refused, failed := fm.snapshot()
	assert.Equal(t, 1, succeeded)
	assert.Zero(t, refused)
	assert.Zero(t, failed)
}

// TestManagerRunProbeRecordsRefused exercises the "device declines the
// dbserver query port" branch: nothing listens on queryPort, so the
// dial itself fails with ECONNREFUSED and the port stays unknown.
func TestManagerRunProbeRecordsRefused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	require.NoError(t, ln.Close()) // nothing listens here now

	fm := &fakeProbeMetrics{}
	finder := discover.New(discover.WithAnnouncementPort(0))
	m := New(finder, vcdj.NoopVirtualCdj{}, WithMetrics(fm))
	m.queryPort = port
	t.Cleanup(finder.Stop)

	require.NoError(t, m.Start())
	defer m.Stop()

	m.handleDeviceFound(discover.DeviceAnnouncement{Number: 8, Address: net.ParseIP("127.0.0.1")})

	require.Eventually(t, func() bool {
		_, refused, _ := fm.snapshot()
		return refused == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, -1, m.GetPlayerDBServerPort(8))
}

// TestManagerRunProbeRecordsSuccessOnShortResponse exercises the
// "response shorter than 2 bytes" branch: runProbe still classifies it
// as a successful probe (a warning, not a failure) and the port stays
// unknown (spec.md §4.2).
func TestManagerRunProbeRecordsSuccessOnShortResponse(t *testing.T) {
	port, serverDone := acceptOnceAndRespond(t, []byte{0x01})

	fm := &fakeProbeMetrics{}
	finder := discover.New(discover.WithAnnouncementPort(0))
	m := New(finder, vcdj.NoopVirtualCdj{}, WithMetrics(fm))
	m.queryPort = port
	t.Cleanup(finder.Stop)

	require.NoError(t, m.Start())
	defer m.Stop()

	m.handleDeviceFound(discover.DeviceAnnouncement{Number: 9, Address: net.ParseIP("127.0.0.1")})

	require.Eventually(t, func() bool {
		succeeded, _, _ := fm.snapshot()
		return succeeded == 1
	}, 2*time.Second, 10*time.Millisecond)

	<-serverDone
	assert.Equal(t, -1, m.GetPlayerDBServerPort(9))
}
