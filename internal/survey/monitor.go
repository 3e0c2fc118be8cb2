// Package survey classifies the base station's position survey from repeated
// ECEF position reports. The station is "surveyed" once consecutive reports
// agree to within a millimeter-scale RSS delta.
package survey

import (
	"math"
	"sync"
)

type State int

const (
	Incomplete State = iota
	Complete
)

func (s State) String() string {
	if s == Complete {
		return "Complete"
	}
	return "Incomplete"
}

// Thresholds preserved verbatim from the deployed firmware; changing them
// changes device behavior in the field.
const (
	minValidRSS = 1.0
	stableDelta = 0.001
)

type Monitor struct {
	mu          sync.RWMutex
	prevRSS     float64
	state       State
	latDeg      float64
	lonDeg      float64
	hasPosition bool
	reports     uint64
}

type Snapshot struct {
	State       string  `json:"state"`
	LatDeg      float64 `json:"lat_deg"`
	LonDeg      float64 `json:"lon_deg"`
	HasPosition bool    `json:"has_position"`
	Reports     uint64  `json:"reports"`
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Observe classifies one ECEF position report (meters) and returns the new
// state. An RSS at or below the validity floor means no fix yet: the state
// is Incomplete and the published position is left alone. Above the floor,
// lat/lon from this report are published whether or not the survey is
// stable, so the dashboard always shows the best available position.
func (m *Monitor) Observe(x, y, z, latDeg, lonDeg float64) State {
	rss := math.Sqrt(x*x + y*y + z*z)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case rss > minValidRSS && math.Abs(rss-m.prevRSS) < stableDelta:
		m.state = Complete
		m.latDeg, m.lonDeg = latDeg, lonDeg
		m.hasPosition = true
	case rss > minValidRSS:
		m.state = Incomplete
		m.latDeg, m.lonDeg = latDeg, lonDeg
		m.hasPosition = true
	default:
		m.state = Incomplete
	}
	m.prevRSS = rss
	m.reports++
	return m.state
}

// State returns the current classification.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		State:       m.state.String(),
		LatDeg:      m.latDeg,
		LonDeg:      m.lonDeg,
		HasPosition: m.hasPosition,
		Reports:     m.reports,
	}
}
