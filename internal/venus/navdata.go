package venus

import (
	"encoding/binary"
	"fmt"
)

// MsgNavData is the message id of the periodic binary navigation-data output.
const MsgNavData = 0xA8

// navDataLen is the fixed payload length of a navigation-data message.
const navDataLen = 59

// NavData is the decoded navigation-data message. The receiver reports ECEF
// position alongside geodetic coordinates, which is what the base-station
// survey check consumes.
type NavData struct {
	FixMode byte // 0 = no fix, 1 = 2D, 2 = 3D, 3 = 3D+DGNSS
	NumSV   int
	Week    int
	TOWSec  float64

	LatDeg float64
	LonDeg float64
	AltM   float64 // above mean sea level

	// ECEF position in meters.
	ECEFX float64
	ECEFY float64
	ECEFZ float64
}

// ParseNavData decodes a navigation-data payload (message id 0xA8).
// All multi-byte fields are big-endian; positions are fixed-point
// (1e-7 degrees, centimeters).
func ParseNavData(payload []byte) (NavData, error) {
	if len(payload) != navDataLen {
		return NavData{}, fmt.Errorf("venus: nav data payload is %d bytes, want %d", len(payload), navDataLen)
	}
	if payload[0] != MsgNavData {
		return NavData{}, fmt.Errorf("venus: message id %#02x is not nav data", payload[0])
	}

	s32 := func(off int) int32 {
		return int32(binary.BigEndian.Uint32(payload[off : off+4]))
	}

	out := NavData{
		FixMode: payload[1],
		NumSV:   int(payload[2]),
		Week:    int(binary.BigEndian.Uint16(payload[3:5])),
		TOWSec:  float64(binary.BigEndian.Uint32(payload[5:9])) / 100,

		LatDeg: float64(s32(9)) * 1e-7,
		LonDeg: float64(s32(13)) * 1e-7,
		AltM:   float64(s32(21)) / 100,

		ECEFX: float64(s32(35)) / 100,
		ECEFY: float64(s32(39)) / 100,
		ECEFZ: float64(s32(43)) / 100,
	}
	return out, nil
}
