// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dbserver

// Metrics is an optional observability hook; see lib/metrics.Registry for
// the Prometheus-backed implementation wired by cmd/prolinkctl.
type Metrics interface {
	ProbeSucceeded()
	ProbeRefused()
	ProbeFailed()
	SessionOpened()
	SessionClosed()
}

// PanicReporter is an optional hook for forwarding panics recovered from
// probe goroutines; see lib/crashreporting.Reporter.
type PanicReporter interface {
	CapturePanic(label string, recovered any)
}
