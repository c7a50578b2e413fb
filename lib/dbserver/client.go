// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dbserver

import "net"

// Client is the opaque per-session collaborator InvokeWithClientSession
// hands to its task. Request framing and transaction semantics over the
// DBServer wire protocol are outside this library's scope (spec.md §4.2
// "The Client itself ... is outside the scope of this spec"); Client
// carries only what a task needs to address its own protocol messages.
type Client struct {
	// Conn is the open TCP connection to the target player's DBServer.
	// InvokeWithClientSession closes it on every exit path; the task must
	// not close it itself.
	Conn net.Conn
	// TargetPlayer is the device number the session was opened against.
	TargetPlayer int
	// SourcePlayer is the device number chosen by chooseAskingPlayerNumber
	// to pose as for this session's queries.
	SourcePlayer int
	// SessionID is a correlation identifier unique to this session, for
	// logs and metrics.
	SessionID string
}
