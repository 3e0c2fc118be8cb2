// Package venus speaks the binary command protocol of SkyTraq Venus family
// GNSS receivers: framed request/response messages used for the startup
// handshake, plus the periodic navigation-data message the base station
// consumes for its survey check.
//
// Wire framing: 0xA0 0xA1 <len_hi> <len_lo> <payload...> <checksum> 0x0D 0x0A
// where checksum is the XOR of all payload bytes.
package venus

import (
	"encoding/binary"
	"fmt"
)

const (
	startA = 0xA0
	startB = 0xA1
	endA   = 0x0D
	endB   = 0x0A
)

// Overhead is the number of framing bytes around a payload.
const Overhead = 7

// MaxPayload bounds payload length when scanning a byte stream for frames;
// real receiver messages are well under this.
const MaxPayload = 1024

// Checksum returns the XOR of all payload bytes.
func Checksum(payload []byte) byte {
	var cs byte
	for _, b := range payload {
		cs ^= b
	}
	return cs
}

// EncodeFrame wraps payload in receiver framing.
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+Overhead)
	out = append(out, startA, startB)
	out = append(out, byte(len(payload)>>8), byte(len(payload)))
	out = append(out, payload...)
	out = append(out, Checksum(payload), endA, endB)
	return out
}

// DecodeFrame validates a complete frame and returns its payload.
func DecodeFrame(raw []byte) ([]byte, error) {
	if len(raw) < Overhead {
		return nil, fmt.Errorf("venus: short frame (%d bytes)", len(raw))
	}
	if raw[0] != startA || raw[1] != startB {
		return nil, fmt.Errorf("venus: bad start bytes %#02x %#02x", raw[0], raw[1])
	}
	plen := int(binary.BigEndian.Uint16(raw[2:4]))
	if len(raw) != plen+Overhead {
		return nil, fmt.Errorf("venus: length mismatch: header says %d, frame has %d payload bytes", plen, len(raw)-Overhead)
	}
	payload := raw[4 : 4+plen]
	if cs := Checksum(payload); cs != raw[4+plen] {
		return nil, fmt.Errorf("venus: checksum mismatch: calculated %#02x, frame has %#02x", cs, raw[4+plen])
	}
	if raw[len(raw)-2] != endA || raw[len(raw)-1] != endB {
		return nil, fmt.Errorf("venus: bad end bytes")
	}
	return payload, nil
}

// QuerySoftwareVersion is the fixed probe sent during baud detection.
// Message id 0x02, software type 0x01 (system code).
func QuerySoftwareVersion() []byte {
	return EncodeFrame([]byte{0x02, 0x01})
}

// AckSignature is the 5-byte prefix of the receiver's ACK to any request:
// start bytes, payload length 2, ACK message id 0x83. Detection matches it
// with a sliding window so leading NMEA traffic cannot hide it.
var AckSignature = []byte{startA, startB, 0x00, 0x02, 0x83}
