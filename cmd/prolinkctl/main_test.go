// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prolinkgo/prolink/lib/config"
	"github.com/prolinkgo/prolink/lib/dbserver"
	"github.com/prolinkgo/prolink/lib/discover"
	"github.com/prolinkgo/prolink/lib/history"
	"github.com/prolinkgo/prolink/lib/metrics"
)

func parseArgs(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("prolinkctl"))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, ctx
}

func TestParseProbeCommandAppliesDefaults(t *testing.T) {
	cli, ctx := parseArgs(t, "probe", "3")

	assert.Equal(t, "probe", ctx.Command())
	assert.Equal(t, 3, cli.Probe.Device)
	assert.Equal(t, 2*time.Second, cli.Probe.Settle)
	assert.Equal(t, 5*time.Second, cli.Probe.Timeout)
}

func TestParseDiscoverCommandDefaultsToIndefinite(t *testing.T) {
	cli, ctx := parseArgs(t, "discover")

	assert.Equal(t, "discover", ctx.Command())
	assert.Zero(t, cli.Discover.Duration)
}

func TestParseServeCommandHonorsAddrFlag(t *testing.T) {
	cli, ctx := parseArgs(t, "serve", "--addr=127.0.0.1:9999")

	assert.Equal(t, "serve", ctx.Command())
	assert.Equal(t, "127.0.0.1:9999", cli.Serve.Addr)
}

func TestDevicesHandlerReturnsJSONArray(t *testing.T) {
	finder := discover.New(discover.WithAnnouncementPort(0))
	require.NoError(t, finder.Start())
	t.Cleanup(finder.Stop)

	manager := dbserver.New(finder, nil, dbserver.WithSocketTimeout(config.Default().SocketTimeout()))
	require.NoError(t, manager.Start())
	t.Cleanup(manager.Stop)

	handler := devicesHandler(finder, manager)
	req := httptest.NewRequest("GET", "/devices", nil)
	rec := httptest.NewRecorder()
	handler(rec, req, nil)

	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHistoryHandlerReturnsJSONArray(t *testing.T) {
	recorder := history.NewRecorder(history.DefaultCapacity, history.DefaultTTL)
	handler := historyHandler(recorder)

	req := httptest.NewRequest("GET", "/history", nil)
	rec := httptest.NewRecorder()
	handler(rec, req, nil)

	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestNewServeMuxExposesMetricsEndpoint(t *testing.T) {
	finder := discover.New(discover.WithAnnouncementPort(0))
	require.NoError(t, finder.Start())
	t.Cleanup(finder.Stop)

	reg := prometheus.NewRegistry()
	registry := metrics.NewRegistry(reg)
	manager := dbserver.New(finder, nil, dbserver.WithMetrics(registry))
	require.NoError(t, manager.Start())
	t.Cleanup(manager.Stop)

	recorder := history.NewRecorder(history.DefaultCapacity, history.DefaultTTL)
	mux := newServeMux(finder, manager, recorder, reg)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "prolink_")
}
