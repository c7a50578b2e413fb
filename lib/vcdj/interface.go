// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package vcdj defines the narrow interfaces DeviceFinder and
// ConnectionManager rely on from the external "virtual CDJ" subsystem.
// The event-dispatch (serial executor) interface lives in lib/dispatch.
// A full virtual CDJ implementation (status-beacon emission, per-player
// status tracking) is not part of this library; see spec.md §1/§6.
package vcdj

// Status is the subset of a CDJ status update that ConnectionManager's
// source-device-number selection (spec.md §4.2) needs.
type Status interface {
	// TrackSourcePlayer returns the device number the status's owner is
	// currently drawing media from, or 0 if it is not currently linked
	// to any source player.
	TrackSourcePlayer() int
	// IsCDJ reports whether the status describes a real CDJ (as opposed
	// to, e.g., a mixer channel status or a rekordbox status).
	IsCDJ() bool
}

// VirtualCdj is the external collaborator that impersonates a CDJ on the
// network. DeviceFinder only calls IsActive/LocalAddress (self-echo
// suppression); ConnectionManager additionally calls DeviceNumber and
// LatestStatusFor (source-device-number selection).
type VirtualCdj interface {
	// IsActive reports whether the virtual CDJ currently holds a socket
	// on the network.
	IsActive() bool
	// LocalAddress returns the local IPv4 address the virtual CDJ is
	// bound to. Only meaningful while IsActive.
	LocalAddress() string
	// DeviceNumber returns the device number currently claimed by the
	// virtual CDJ.
	DeviceNumber() int
	// LatestStatusFor returns the most recently observed status for the
	// given device number, or ok == false if none has been seen.
	LatestStatusFor(deviceNumber int) (status Status, ok bool)
}
