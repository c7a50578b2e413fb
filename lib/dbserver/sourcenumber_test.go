// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dbserver

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prolinkgo/prolink/lib/discover"
	"github.com/prolinkgo/prolink/lib/vcdj"
)

type fakeStatus struct {
	sourcePlayer int
	isCDJ        bool
}

func (s fakeStatus) TrackSourcePlayer() int { return s.sourcePlayer }
func (s fakeStatus) IsCDJ() bool            { return s.isCDJ }

type fakeVCDJ struct {
	active       bool
	localAddress string
	deviceNumber int
	statuses     map[int]fakeStatus
}

func (v *fakeVCDJ) IsActive() bool       { return v.active }
func (v *fakeVCDJ) LocalAddress() string { return v.localAddress }
func (v *fakeVCDJ) DeviceNumber() int    { return v.deviceNumber }
func (v *fakeVCDJ) LatestStatusFor(n int) (vcdj.Status, bool) {
	s, ok := v.statuses[n]
	if !ok {
		return nil, false
	}
	return s, true
}

func candidate(number int) discover.DeviceAnnouncement {
	return discover.DeviceAnnouncement{Number: number, Address: net.ParseIP("10.0.0.1")}
}

func TestChooseAskingPlayerNumberPrefersOwnRealNumber(t *testing.T) {
	v := &fakeVCDJ{deviceNumber: 3}
	n, err := chooseAskingPlayerNumber(9, v, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestChooseAskingPlayerNumberAcceptsRekordboxTargetRegardlessOfOwnNumber(t *testing.T) {
	v := &fakeVCDJ{deviceNumber: 25}
	n, err := chooseAskingPlayerNumber(17, v, nil)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestChooseAskingPlayerNumberStealsIdleCandidate(t *testing.T) {
	v := &fakeVCDJ{
		deviceNumber: 25,
		statuses: map[int]fakeStatus{
			2: {isCDJ: true, sourcePlayer: 0},
		},
	}
	candidates := []discover.DeviceAnnouncement{candidate(2), candidate(4)}

	n, err := chooseAskingPlayerNumber(4, v, candidates)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestChooseAskingPlayerNumberSkipsCandidateLinkedToTarget(t *testing.T) {
	v := &fakeVCDJ{
		deviceNumber: 25,
		statuses: map[int]fakeStatus{
			2: {isCDJ: true, sourcePlayer: 4},
		},
	}
	candidates := []discover.DeviceAnnouncement{candidate(2)}

	_, err := chooseAskingPlayerNumber(4, v, candidates)
	assert.ErrorIs(t, err, ErrNoAvailableSourceNumber)
}

func TestChooseAskingPlayerNumberSkipsNonCDJStatus(t *testing.T) {
	v := &fakeVCDJ{
		deviceNumber: 25,
		statuses: map[int]fakeStatus{
			2: {isCDJ: false, sourcePlayer: 0},
		},
	}
	candidates := []discover.DeviceAnnouncement{candidate(2)}

	_, err := chooseAskingPlayerNumber(4, v, candidates)
	assert.ErrorIs(t, err, ErrNoAvailableSourceNumber)
}

func TestChooseAskingPlayerNumberSkipsTargetItself(t *testing.T) {
	v := &fakeVCDJ{deviceNumber: 25}
	candidates := []discover.DeviceAnnouncement{candidate(4)}

	_, err := chooseAskingPlayerNumber(4, v, candidates)
	assert.ErrorIs(t, err, ErrNoAvailableSourceNumber)
}
