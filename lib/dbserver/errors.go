// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dbserver

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrNoSuchPlayer is returned by InvokeWithClientSession when the
	// target player has no current device-finder entry or no known
	// DBServer port (spec.md §7).
	ErrNoSuchPlayer = errors.New("prolink/dbserver: target player is not known or has no discovered dbserver port")

	// ErrNoAvailableSourceNumber is returned when chooseAskingPlayerNumber
	// cannot find a device number safe to pose as (spec.md §4.2, §7).
	ErrNoAvailableSourceNumber = errors.New("prolink/dbserver: no available source device number for this query")

	// ErrNotRunning is returned by InvokeWithClientSession when the
	// manager's start() has not been called (or stop() has since been
	// called).
	ErrNotRunning = errors.New("prolink/dbserver: connection manager is not running")
)

// ProtocolError describes a malformed DBServer port-query response. It is
// logged by the probe goroutine rather than surfaced to any caller, so
// that an absent port is simply modeled as "unknown" (spec.md §7).
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("prolink/dbserver: %s", e.Reason)
}

// isConnectionRefusedError reports whether err indicates the remote end
// actively refused the connection, as opposed to a timeout or other
// transport failure.
func isConnectionRefusedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}
