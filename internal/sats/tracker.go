// Package sats maintains the live satellites-in-view model, one map per
// constellation, fed by GSV sentences and trimmed by staleness.
package sats

import (
	"sort"
	"sync"
	"time"
)

// Constellation identifies which GSV family a satellite was reported in.
type Constellation int

const (
	GPS Constellation = iota
	BDS
	GAL

	// NumConstellations sizes per-constellation arrays.
	NumConstellations
)

func (c Constellation) String() string {
	switch c {
	case GPS:
		return "GPS"
	case BDS:
		return "BDS"
	case GAL:
		return "GAL"
	}
	return "UNKNOWN"
}

// StaleAfter is how long a satellite stays in the model without being
// re-reported. Eviction runs per completed GSV sequence, so the bound is
// tied to sentence cadence rather than loop tick rate.
const StaleAfter = 5 * time.Second

// Record is one visible satellite's most recent sighting.
type Record struct {
	PRN          int `json:"prn"`
	ElevationDeg int `json:"elevation_deg"`
	AzimuthDeg   int `json:"azimuth_deg"`
	SNRDB        int `json:"snr_db"`
}

type entry struct {
	rec    Record
	seenAt time.Time
}

type Tracker struct {
	mu      sync.RWMutex
	timeout time.Duration
	sets    [NumConstellations]map[int]entry
}

func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = StaleAfter
	}
	t := &Tracker{timeout: timeout}
	for i := range t.sets {
		t.sets[i] = make(map[int]entry)
	}
	return t
}

// Upsert inserts or overwrites the record for (constellation, prn).
func (t *Tracker) Upsert(c Constellation, prn, elevDeg, azDeg, snrDB int, now time.Time) {
	if c < 0 || c >= NumConstellations {
		return
	}
	t.mu.Lock()
	t.sets[c][prn] = entry{
		rec:    Record{PRN: prn, ElevationDeg: elevDeg, AzimuthDeg: azDeg, SNRDB: snrDB},
		seenAt: now,
	}
	t.mu.Unlock()
}

// EvictStale removes every record last seen before now minus the timeout.
func (t *Tracker) EvictStale(c Constellation, now time.Time) {
	if c < 0 || c >= NumConstellations {
		return
	}
	cutoff := now.Add(-t.timeout)
	t.mu.Lock()
	for prn, e := range t.sets[c] {
		if e.seenAt.Before(cutoff) {
			delete(t.sets[c], prn)
		}
	}
	t.mu.Unlock()
}

// Snapshot returns the constellation's records sorted by PRN.
func (t *Tracker) Snapshot(c Constellation) []Record {
	if c < 0 || c >= NumConstellations {
		return nil
	}
	t.mu.RLock()
	out := make([]Record, 0, len(t.sets[c]))
	for _, e := range t.sets[c] {
		out = append(out, e.rec)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PRN < out[j].PRN })
	return out
}

// Count returns how many satellites are currently tracked for c.
func (t *Tracker) Count(c Constellation) int {
	if c < 0 || c >= NumConstellations {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sets[c])
}
