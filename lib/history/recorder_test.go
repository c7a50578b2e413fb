// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package history

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prolinkgo/prolink/lib/discover"
)

func TestRecorderRecordsFoundAndLost(t *testing.T) {
	r := NewRecorder(10, time.Minute)
	ann := discover.DeviceAnnouncement{Number: 2, Address: net.ParseIP("10.0.0.2")}

	r.RecordFound(ann)
	r.RecordLost(ann)

	events := r.Recent()
	require.Len(t, events, 2)
	assert.Equal(t, KindFound, events[0].Kind)
	assert.Equal(t, KindLost, events[1].Kind)
}

func TestRecorderCapacityBound(t *testing.T) {
	r := NewRecorder(2, time.Minute)
	ann := discover.DeviceAnnouncement{Number: 1, Address: net.ParseIP("10.0.0.1")}

	r.RecordFound(ann)
	r.RecordLost(ann)
	r.RecordFound(ann)

	assert.LessOrEqual(t, len(r.Recent()), 2)
}

func TestRecorderDefaultsApplyForNonPositiveArgs(t *testing.T) {
	r := NewRecorder(0, 0)
	assert.NotNil(t, r.cache)
}
