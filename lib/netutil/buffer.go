// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package netutil holds the small wire-format helpers shared by the
// discover and dbserver packages: fixed-width big-endian integer decoding
// and the packet-header validation used to recognize Pro DJ Link traffic.
package netutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Uint16 decodes a big-endian uint16 from the first two bytes of b.
func Uint16(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("netutil: need 2 bytes for uint16, got %d", len(b))
	}
	return binary.BigEndian.Uint16(b[:2]), nil
}

// Uint32 decodes a big-endian uint32 from the first four bytes of b.
func Uint32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("netutil: need 4 bytes for uint32, got %d", len(b))
	}
	return binary.BigEndian.Uint32(b[:4]), nil
}

// PutUint16 appends the big-endian encoding of v to dst.
func PutUint16(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

// PutUint32 appends the big-endian encoding of v to dst.
func PutUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// HasHeaderAt reports whether b is at least offset+len(header) bytes long
// and contains header verbatim starting at offset.
func HasHeaderAt(b []byte, offset int, header []byte) bool {
	if offset < 0 || len(b) < offset+len(header) {
		return false
	}
	return bytes.Equal(b[offset:offset+len(header)], header)
}

// ByteAt returns b[offset] and true, or 0 and false if b is too short.
func ByteAt(b []byte, offset int) (byte, bool) {
	if offset < 0 || offset >= len(b) {
		return 0, false
	}
	return b[offset], true
}

// FieldAt returns the length-byte slice of b starting at offset, or nil
// and false if b is too short.
func FieldAt(b []byte, offset, length int) ([]byte, bool) {
	if offset < 0 || length < 0 || len(b) < offset+length {
		return nil, false
	}
	return b[offset : offset+length], true
}

// TrimmedASCII trims trailing NUL bytes from b and returns it as a string,
// used for fixed-width device-name fields.
func TrimmedASCII(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}
