// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package vcdj

// NoopVirtualCdj is a VirtualCdj that is always inactive. It lets
// DeviceFinder and ConnectionManager run (and be tested) without a real
// virtual CDJ on the network: self-echo suppression and the "virtual
// device is always safe to speak as" fast path in source-number
// selection both degrade to their documented "VirtualCdj inactive"
// behavior.
type NoopVirtualCdj struct{}

var _ VirtualCdj = NoopVirtualCdj{}

func (NoopVirtualCdj) IsActive() bool      { return false }
func (NoopVirtualCdj) LocalAddress() string { return "" }
func (NoopVirtualCdj) DeviceNumber() int    { return 0 }
func (NoopVirtualCdj) LatestStatusFor(int) (Status, bool) {
	return nil, false
}
