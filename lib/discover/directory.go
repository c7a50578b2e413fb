// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import "time"

// directory is the Device Directory of spec.md §3: a mapping from network
// address to the most recent DeviceAnnouncement seen for it. Spec.md §5
// requires the directory, startTime, active flag, socket handle and
// listener set to all be guarded by a single instance-wide mutex, so
// directory deliberately holds no lock of its own — every method here
// assumes the caller (DeviceFinder) already holds that mutex.
type directory struct {
	entries map[string]DeviceAnnouncement
	maxAge  time.Duration
}

func newDirectory(maxAge time.Duration) *directory {
	return &directory{
		entries: make(map[string]DeviceAnnouncement),
		maxAge:  maxAge,
	}
}

// put inserts or unconditionally overwrites the entry for ann.Key(),
// returning true iff this key was not previously present (spec.md §4.1:
// "determine whether its address is a new key").
func (d *directory) put(ann DeviceAnnouncement) bool {
	_, existed := d.entries[ann.Key()]
	d.entries[ann.Key()] = ann
	return !existed
}

// removeExpired deletes every entry whose age exceeds maxAge as of now
// and returns the removed announcements, for device-lost delivery.
func (d *directory) removeExpired(now time.Time) []DeviceAnnouncement {
	var removed []DeviceAnnouncement
	cutoff := now.Add(-d.maxAge)
	for key, ann := range d.entries {
		if time.UnixMilli(ann.Timestamp).Before(cutoff) {
			delete(d.entries, key)
			removed = append(removed, ann)
		}
	}
	return removed
}

// drain removes every entry unconditionally and returns them, used by
// stop() to deliver one device-lost notification per prior entry
// (spec.md §4.1 "stop()").
func (d *directory) drain() []DeviceAnnouncement {
	all := make([]DeviceAnnouncement, 0, len(d.entries))
	for _, ann := range d.entries {
		all = append(all, ann)
	}
	d.entries = make(map[string]DeviceAnnouncement)
	return all
}

// list returns a snapshot of current entries without mutating anything.
func (d *directory) list() []DeviceAnnouncement {
	out := make([]DeviceAnnouncement, 0, len(d.entries))
	for _, ann := range d.entries {
		out = append(out, ann)
	}
	return out
}

// empty reports whether the directory currently holds no entries, used
// by the receiver loop to pick the dynamic read timeout of spec.md §4.1.
func (d *directory) empty() bool {
	return len(d.entries) == 0
}
