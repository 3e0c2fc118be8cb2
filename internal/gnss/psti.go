package gnss

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EventKind enumerates the proprietary $PSTI subtypes the router understands.
// Decoding to a closed enum keeps dispatch away from raw string compares and
// makes an unhandled variant visible at the switch.
type EventKind int

const (
	// EventRTKStatus carries RTK correction age and ambiguity ratio ($PSTI,030).
	EventRTKStatus EventKind = iota
	// EventBaseline carries ENU offsets from the base station ($PSTI,032).
	EventBaseline
	// EventCycleSlips carries per-constellation cycle-slip counts ($PSTI,033).
	EventCycleSlips
)

type Event struct {
	Kind EventKind

	AgeSec int
	Ratio  int

	EastM  float64
	NorthM float64
	UpM    float64

	SlipsGPS int
	SlipsBDS int
	SlipsGAL int
}

// parsePSTI decodes a $PSTI sentence into a typed event. Unknown subtypes
// and malformed sentences return ok=false; both are ignored upstream so a
// receiver firmware update cannot break parsing.
func parsePSTI(line string) (Event, bool) {
	payload, err := stripChecksum(line)
	if err != nil {
		return Event{}, false
	}
	f := strings.Split(payload, ",")
	if len(f) < 2 || f[0] != "PSTI" {
		return Event{}, false
	}

	switch f[1] {
	case "030":
		// ...,mode,RTK age,RTK ratio: age is field 14, ratio field 15.
		if len(f) < 16 {
			return Event{}, false
		}
		return Event{
			Kind:   EventRTKStatus,
			AgeSec: intField(f[14]),
			Ratio:  intField(f[15]),
		}, true

	case "032":
		// ...,status,mode,east,north,up: projections are fields 6-8, meters.
		if len(f) < 9 {
			return Event{}, false
		}
		return Event{
			Kind:   EventBaseline,
			EastM:  floatField(f[6]),
			NorthM: floatField(f[7]),
			UpM:    floatField(f[8]),
		}, true

	case "033":
		// Cycle-slip counts for GPS, BDS, GAL in fields 4-6.
		if len(f) < 7 {
			return Event{}, false
		}
		return Event{
			Kind:     EventCycleSlips,
			SlipsGPS: intField(f[4]),
			SlipsBDS: intField(f[5]),
			SlipsGAL: intField(f[6]),
		}, true
	}
	return Event{}, false
}

// stripChecksum validates "$...*hh" framing and the XOR checksum, returning
// the payload between '$' and '*'.
func stripChecksum(line string) (string, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return "", fmt.Errorf("gnss: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 {
		return "", fmt.Errorf("gnss: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return "", fmt.Errorf("gnss: short checksum")
	}
	want, err := strconv.ParseUint(ck[:2], 16, 8)
	if err != nil {
		return "", fmt.Errorf("gnss: bad checksum digits")
	}
	var got byte
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != byte(want) {
		return "", fmt.Errorf("gnss: checksum mismatch: calculated %#02x, sentence has %#02x", got, want)
	}
	return payload, nil
}

// intField parses a numeric field, tolerating decimals and treating empty or
// junk fields as zero: receivers blank these out when there is no RTK link.
func intField(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(math.Round(v))
}

func floatField(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
