// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"fmt"
	"net"
	"time"

	"github.com/prolinkgo/prolink/lib/netutil"
)

// Packet layout for a device announcement, per spec.md §4.1/§6. Offsets
// for name/device-number/MAC/IP mirror the dysentery-derived layout also
// used by reference Pro DJ Link clients; the header and packet-type
// check follow spec.md's acceptance policy exactly.
const (
	announcePacketLen = 54

	headerLen    = 10
	packetTypeOf = 0x0A
	deviceAnnouncementType = 0x06

	nameOffset   = 0x0C
	nameLen      = 20
	numberOffset = 0x24
	macOffset    = 0x26
	macLen       = 6
	ipOffset     = 0x2C
	ipLen        = 4
)

// announceHeader is the fixed ten-byte prefix spec.md §4.1 requires at the
// start of every accepted device announcement.
var announceHeader = make([]byte, headerLen)

// DeviceAnnouncement is an immutable value describing one sighting of a
// device (spec.md §3). Identity for directory keying is Address.
type DeviceAnnouncement struct {
	Name      string
	Number    int
	Address   net.IP
	Mac       net.HardwareAddr
	Timestamp int64 // ms since epoch
}

// Key is the Device Directory map key for this announcement: the source
// IPv4 address, per spec.md §3 "Identity for map keying is the address."
func (a DeviceAnnouncement) Key() string {
	return a.Address.String()
}

// errRejected classifies a datagram that failed the acceptance policy.
// It is never surfaced to callers; the receiver loop logs it at debug
// level and moves on, per spec.md §4.1 "Rejected datagrams are ignored
// silently at log-debug level."
type errRejected struct{ reason string }

func (e *errRejected) Error() string { return e.reason }

// parseAnnouncement applies spec.md §4.1's packet acceptance policy
// (length, header, packet-type byte) and, if accepted, decodes a
// DeviceAnnouncement from packet. srcIP is the UDP datagram's source
// address; spec.md §6 allows the embedded IPv4 field to be ignored in
// favor of it, and this parser does so.
func parseAnnouncement(packet []byte, srcIP net.IP, now time.Time) (DeviceAnnouncement, error) {
	if len(packet) != announcePacketLen {
		return DeviceAnnouncement{}, &errRejected{fmt.Sprintf("wrong length %d", len(packet))}
	}
	if !netutil.HasHeaderAt(packet, 0, announceHeader) {
		return DeviceAnnouncement{}, &errRejected{"bad header"}
	}
	typeByte, _ := netutil.ByteAt(packet, packetTypeOf)
	if typeByte != deviceAnnouncementType {
		return DeviceAnnouncement{}, &errRejected{fmt.Sprintf("not an announcement packet (type=0x%02x)", typeByte)}
	}

	nameField, _ := netutil.FieldAt(packet, nameOffset, nameLen)
	numberByte, _ := netutil.ByteAt(packet, numberOffset)
	macField, _ := netutil.FieldAt(packet, macOffset, macLen)

	return DeviceAnnouncement{
		Name:      netutil.TrimmedASCII(nameField),
		Number:    int(numberByte),
		Address:   srcIP,
		Mac:       net.HardwareAddr(append([]byte(nil), macField...)),
		Timestamp: now.UnixMilli(),
	}, nil
}
