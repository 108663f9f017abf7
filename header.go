// Copyright (c) 2024 Neomantra Corp

package nsefeed

import (
	"encoding/binary"
	"time"
)

// RHeader is the fixed 8-byte header present on every snapshot record:
// transcode (u16), timestamp (u32 epoch seconds, exchange wall clock), and
// message_length (u16), all little-endian.
type RHeader struct {
	Transcode     uint16 `json:"transcode"`
	Timestamp     uint32 `json:"timestamp"`
	MessageLength uint16 `json:"message_length"`
}

// Fill_Raw decodes a RHeader from the first RHeader_Size bytes of b.
func (h *RHeader) Fill_Raw(b []byte) error {
	if len(b) < RHeader_Size {
		return unexpectedBytesError("RHeader.Fill_Raw", len(b), RHeader_Size)
	}
	h.Transcode = binary.LittleEndian.Uint16(b[0:2])
	h.Timestamp = binary.LittleEndian.Uint32(b[2:6])
	h.MessageLength = binary.LittleEndian.Uint16(b[6:8])
	return nil
}

// EventTime returns the header's Timestamp as a time.Time, via
// TimestampToTime.
func (h *RHeader) EventTime() time.Time {
	return TimestampToTime(h.Timestamp)
}
