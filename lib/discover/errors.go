// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"errors"
	"fmt"
)

// ErrNotActive is returned by DeviceFinder observer operations
// (currentDevices, startTime, getLatestAnnouncementFrom) when invoked
// while the finder is not ACTIVE (spec.md §7).
var ErrNotActive = errors.New("prolink/discover: device finder is not active")

// NetworkBindError wraps the underlying error from binding the
// announcement UDP socket (spec.md §7 "NetworkBindError").
type NetworkBindError struct {
	Port int
	Err  error
}

func (e *NetworkBindError) Error() string {
	return fmt.Sprintf("prolink/discover: cannot bind announcement socket on port %d: %v", e.Port, e.Err)
}

func (e *NetworkBindError) Unwrap() error { return e.Err }
