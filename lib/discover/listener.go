// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

// Listener receives presence-change notifications from a DeviceFinder.
// Calls are delivered on the configured dispatch.Executor, never on the
// receiver thread (spec.md §4.1 "Notification delivery").
type Listener interface {
	DeviceFound(DeviceAnnouncement)
	DeviceLost(DeviceAnnouncement)
}

// ListenerFuncs adapts two plain funcs into a Listener; either may be
// nil, in which case that event is simply not delivered to this
// listener. A ListenerFuncs value is not comparable, so the listener set
// never treats one as already present and RemoveListener never finds
// one; a *ListenerFuncs is compared by pointer identity.
type ListenerFuncs struct {
	Found func(DeviceAnnouncement)
	Lost  func(DeviceAnnouncement)
}

func (l ListenerFuncs) DeviceFound(a DeviceAnnouncement) {
	if l.Found != nil {
		l.Found(a)
	}
}

func (l ListenerFuncs) DeviceLost(a DeviceAnnouncement) {
	if l.Lost != nil {
		l.Lost(a)
	}
}

// sameListener compares two Listener values for identity, tolerating
// listener implementations that are not comparable (e.g. ListenerFuncs,
// whose func fields make `==` panic at runtime on interface comparison).
func sameListener(a, b Listener) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// listenerSet is the Subscriber Set of spec.md §3. Like directory, it
// holds no lock of its own: DeviceFinder's single instance-wide mutex
// guards it, per spec.md §5.
type listenerSet struct {
	listeners []Listener
}

func (s *listenerSet) add(l Listener) {
	if l == nil {
		return
	}
	for _, existing := range s.listeners {
		if sameListener(existing, l) {
			return
		}
	}
	s.listeners = append(s.listeners, l)
}

func (s *listenerSet) remove(l Listener) {
	if l == nil {
		return
	}
	for i, existing := range s.listeners {
		if sameListener(existing, l) {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// snapshot returns a copy of the current listener slice, safe to iterate
// without holding the owning DeviceFinder's mutex.
func (s *listenerSet) snapshot() []Listener {
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}
