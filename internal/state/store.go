// Package state holds the live data model the poll loop writes into and the
// presentation boundary reads from. The loop is the single writer; readers
// always get copies.
package state

import (
	"sync"
	"time"

	"rtklink/internal/power"
)

// FixKind is the solution type reported in the position/fix-quality sentence.
type FixKind int

const (
	FixInvalid FixKind = iota
	FixGPS
	FixDGPS
	FixRTK
	FixRTKFloat
	FixUnknown
)

func (k FixKind) String() string {
	switch k {
	case FixInvalid:
		return "Invalid"
	case FixGPS:
		return "GPS"
	case FixDGPS:
		return "DGPS"
	case FixRTK:
		return "RTK Fix"
	case FixRTKFloat:
		return "RTK Float"
	}
	return "Unknown"
}

// Solution is the current solution-quality view. Each field group is
// overwritten wholesale when its sentence arrives; no history is kept.
type Solution struct {
	FixKind FixKind

	// RTK correction age and ambiguity ratio, from the RTK status sentence.
	AgeSec int
	Ratio  int

	// Baseline offsets from the base station, meters.
	EastM  float64
	NorthM float64
	UpM    float64

	// Cycle-slip counters per constellation.
	SlipsGPS int
	SlipsBDS int
	SlipsGAL int
}

// Position is the last parsed geodetic position plus receiver UTC clock.
type Position struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
	Date   string
	Time   string
	Valid  bool
}

type Store struct {
	mu sync.RWMutex

	sol Solution
	pos Position

	bat    power.Record
	batAt  time.Time
	hasBat bool
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) SetFixKind(k FixKind) {
	s.mu.Lock()
	s.sol.FixKind = k
	s.mu.Unlock()
}

func (s *Store) SetRTKStatus(ageSec, ratio int) {
	s.mu.Lock()
	s.sol.AgeSec = ageSec
	s.sol.Ratio = ratio
	s.mu.Unlock()
}

func (s *Store) SetBaseline(eastM, northM, upM float64) {
	s.mu.Lock()
	s.sol.EastM = eastM
	s.sol.NorthM = northM
	s.sol.UpM = upM
	s.mu.Unlock()
}

func (s *Store) SetCycleSlips(gps, bds, gal int) {
	s.mu.Lock()
	s.sol.SlipsGPS = gps
	s.sol.SlipsBDS = bds
	s.sol.SlipsGAL = gal
	s.mu.Unlock()
}

func (s *Store) SetLatLonAlt(latDeg, lonDeg, altM float64) {
	s.mu.Lock()
	s.pos.LatDeg = latDeg
	s.pos.LonDeg = lonDeg
	s.pos.AltM = altM
	s.pos.Valid = true
	s.mu.Unlock()
}

func (s *Store) SetClock(date, tod string) {
	s.mu.Lock()
	s.pos.Date = date
	s.pos.Time = tod
	s.mu.Unlock()
}

func (s *Store) SetBattery(rec power.Record, now time.Time) {
	s.mu.Lock()
	s.bat = rec
	s.batAt = now
	s.hasBat = true
	s.mu.Unlock()
}

func (s *Store) Solution() Solution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sol
}

func (s *Store) Position() Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pos
}

// Battery returns the most recent companion-board record, when it arrived,
// and whether one has arrived at all.
func (s *Store) Battery() (power.Record, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bat, s.batAt, s.hasBat
}
