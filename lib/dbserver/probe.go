// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dbserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/prolinkgo/prolink/lib/netutil"
)

const (
	// DBServerQueryPort is the fixed TCP port every device listens on for
	// the "what port is your DBServer on" query (spec.md §6).
	DBServerQueryPort = 12523

	queryFrameBody = "RemoteDBServer"
)

// queryFrame is the fixed 19-byte request: a 4-byte big-endian length
// prefix (15, covering the ASCII body and the trailing zero byte), the
// 14-byte body itself, and the trailing zero byte (spec.md §4.2 "Port
// probe protocol").
var queryFrame = buildQueryFrame()

func buildQueryFrame() []byte {
	frame := netutil.PutUint32(nil, uint32(len(queryFrameBody)+1))
	frame = append(frame, []byte(queryFrameBody)...)
	frame = append(frame, 0x00)
	return frame
}

// probePort performs one DBServer port-query probe against ip:queryPort,
// per spec.md §4.2. refused reports a clean connection-refused (the
// device is a non-DBServer participant, e.g. a mixer channel); warn is
// a non-empty advisory message when a response arrived but did not
// match the expected 2-byte shape exactly; err is any other transport
// or I/O failure.
//
// queryPort is a parameter (rather than the hardcoded DBServerQueryPort
// constant) so tests can point it at an in-process listener; Manager
// passes its queryPort field, which is DBServerQueryPort unless a test
// overrides it.
func probePort(ctx context.Context, ip net.IP, queryPort int, timeout time.Duration) (port int, refused bool, warn string, err error) {
	dialer := net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(queryPort))

	conn, dialErr := dialer.DialContext(ctx, "tcp4", addr)
	if dialErr != nil {
		if isConnectionRefusedError(dialErr) {
			return -1, true, "", nil
		}
		return -1, false, "", dialErr
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(queryFrame); err != nil {
		return -1, false, "", fmt.Errorf("writing dbserver query frame: %w", err)
	}

	buf := make([]byte, 8)
	n, readErr := conn.Read(buf)
	if n >= 2 {
		p, _ := netutil.Uint16(buf[:2])
		if n != 2 {
			warn = fmt.Sprintf("dbserver query response from %s was %d bytes, expected 2", ip, n)
		}
		return int(p), false, warn, nil
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		return -1, false, "", readErr
	}
	return -1, false, fmt.Sprintf("dbserver query response from %s was too short (%d bytes)", ip, n), nil
}
