// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package slogutil provides small log/slog attribute helpers shared across
// the prolink packages, so that addresses and errors are logged with a
// consistent key regardless of which package emits the record.
package slogutil

import (
	"log/slog"
	"net"
)

// Address returns a slog attribute for a net.Addr, or a "none" placeholder
// if addr is nil (e.g. a Recv() that returned no packet).
func Address(addr net.Addr) slog.Attr {
	if addr == nil {
		return slog.String("address", "none")
	}
	return slog.String("address", addr.String())
}

// Error returns a slog attribute for an error, or an "error" attribute with
// a nil value if err is nil, so callers can use it unconditionally in an
// attr list.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Any("error", nil)
	}
	return slog.String("error", err.Error())
}
