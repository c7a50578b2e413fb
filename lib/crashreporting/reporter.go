// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package crashreporting optionally forwards panics recovered in
// background goroutines (device-finder listener callbacks run on the
// notification executor, dbserver probes) to a Sentry-compatible DSN via
// github.com/getsentry/raven-go. It is always safe to use with no DSN
// configured: CapturePanic then only logs locally.
package crashreporting

import (
	"fmt"
	"log/slog"

	raven "github.com/getsentry/raven-go"
)

// Reporter captures recovered panics. The zero value (and a nil
// *Reporter) are both valid and behave as a pure local logger.
type Reporter struct {
	client *raven.Client
}

// NewReporter constructs a Reporter. If dsn is empty, the returned
// Reporter never talks to the network.
func NewReporter(dsn string) (*Reporter, error) {
	if dsn == "" {
		return &Reporter{}, nil
	}
	client, err := raven.New(dsn)
	if err != nil {
		return nil, fmt.Errorf("prolink/crashreporting: configuring sentry client: %w", err)
	}
	return &Reporter{client: client}, nil
}

// CapturePanic logs a recovered panic value and, if a DSN is configured,
// reports it asynchronously. label identifies the goroutine it came from
// (e.g. "discover/listener", "dbserver/probe").
func (r *Reporter) CapturePanic(label string, recovered any) {
	slog.Error("recovered panic", "goroutine", label, "value", fmt.Sprint(recovered))

	if r == nil || r.client == nil {
		return
	}

	packet := raven.NewPacket(
		fmt.Sprintf("panic in %s: %v", label, recovered),
		raven.NewException(fmt.Errorf("%v", recovered), raven.NewStacktrace(2, 3, nil)),
	)
	r.client.Capture(packet, map[string]string{"goroutine": label})
}

// Close blocks until any report already in flight has been sent.
func (r *Reporter) Close() {
	if r != nil && r.client != nil {
		r.client.Wait()
	}
}
