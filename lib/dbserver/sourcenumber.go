// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dbserver

import (
	"github.com/prolinkgo/prolink/lib/discover"
	"github.com/prolinkgo/prolink/lib/vcdj"
)

const (
	minRealPlayerNumber = 1
	maxRealPlayerNumber = 4
	rekordboxThreshold  = 15 // device numbers above this are rekordbox, per spec.md §4.2
)

// chooseAskingPlayerNumber implements spec.md §4.2's source-device-number
// selection policy: real CDJs only answer metadata queries from device
// numbers 1..4, while rekordbox (device numbers > 15) answers from any
// source. candidates is the caller's current device-finder snapshot.
func chooseAskingPlayerNumber(targetPlayer int, v vcdj.VirtualCdj, candidates []discover.DeviceAnnouncement) (int, error) {
	own := v.DeviceNumber()
	if targetPlayer > rekordboxThreshold || isRealPlayerNumber(own) {
		return own, nil
	}

	for _, c := range candidates {
		if !isRealPlayerNumber(c.Number) || c.Number == targetPlayer {
			continue
		}
		status, ok := v.LatestStatusFor(c.Number)
		if !ok || !status.IsCDJ() {
			continue
		}
		if status.TrackSourcePlayer() != targetPlayer {
			return c.Number, nil
		}
	}

	return 0, ErrNoAvailableSourceNumber
}

func isRealPlayerNumber(n int) bool {
	return n >= minRealPlayerNumber && n <= maxRealPlayerNumber
}
