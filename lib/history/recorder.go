// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package history records a bounded, self-expiring log of DeviceFinder
// presence transitions, for diagnostics and the CLI demo's /history view
// (SPEC_FULL.md §7). It plays no part in DeviceFinder's own directory or
// expiration logic; it is a pure observer wired in via
// discover.PresenceRecorder.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/prolinkgo/prolink/lib/discover"
)

const (
	// DefaultCapacity bounds how many transitions are retained regardless
	// of age, so a flapping device cannot grow this unbounded.
	DefaultCapacity = 256
	// DefaultTTL bounds how long a retained transition survives
	// regardless of capacity pressure.
	DefaultTTL = 10 * time.Minute
)

// Kind distinguishes a found transition from a lost one.
type Kind string

const (
	KindFound Kind = "found"
	KindLost  Kind = "lost"
)

// Event is one recorded presence transition.
type Event struct {
	Kind         Kind
	Announcement discover.DeviceAnnouncement
	RecordedAt   int64 // ms since epoch
}

// Recorder implements discover.PresenceRecorder, which DeviceFinder calls
// directly on each found/lost transition, backed by an expirable LRU, so
// old transitions age out on their own without an explicit sweep.
type Recorder struct {
	mu    sync.Mutex
	seq   uint64
	cache *expirable.LRU[uint64, Event]
}

var _ discover.PresenceRecorder = (*Recorder)(nil)

// NewRecorder constructs a Recorder. A non-positive capacity or ttl
// falls back to the package defaults.
func NewRecorder(capacity int, ttl time.Duration) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Recorder{cache: expirable.NewLRU[uint64, Event](capacity, nil, ttl)}
}

// RecordFound appends a found transition.
func (r *Recorder) RecordFound(ann discover.DeviceAnnouncement) {
	r.record(KindFound, ann)
}

// RecordLost appends a lost transition.
func (r *Recorder) RecordLost(ann discover.DeviceAnnouncement) {
	r.record(KindLost, ann)
}

func (r *Recorder) record(kind Kind, ann discover.DeviceAnnouncement) {
	r.mu.Lock()
	r.seq++
	key := r.seq
	r.mu.Unlock()

	r.cache.Add(key, Event{
		Kind:         kind,
		Announcement: ann,
		RecordedAt:   time.Now().UnixMilli(),
	})
}

// Recent returns every transition still retained, oldest first.
func (r *Recorder) Recent() []Event {
	keys := r.cache.Keys()
	out := make([]Event, 0, len(keys))
	for _, k := range keys {
		if ev, ok := r.cache.Get(k); ok {
			out = append(out, ev)
		}
	}
	return out
}

// String renders an Event for human-readable diagnostic output.
func (e Event) String() string {
	return fmt.Sprintf("[%d] %s %s (#%d, %s)", e.RecordedAt, e.Kind, e.Announcement.Name, e.Announcement.Number, e.Announcement.Address)
}
