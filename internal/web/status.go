// Package web serves the diagnostics surface: a JSON status endpoint for
// curl/scripts and a websocket that pushes the same snapshot on a timer for
// the dashboard.
package web

import (
	"time"

	"rtklink/internal/gnss"
	"rtklink/internal/link"
	"rtklink/internal/power"
	"rtklink/internal/rtcm"
	"rtklink/internal/sats"
	"rtklink/internal/state"
	"rtklink/internal/survey"
)

// Providers wires the live components into the status endpoint. Survey and
// Telemetry are nil when the unit does not run them.
type Providers struct {
	Role     string
	BaudRate int

	Store   *state.Store
	Tracker *sats.Tracker
	Survey  *survey.Monitor
	Relay   *rtcm.Relay

	Link      func() link.Snapshot
	Router    func() gnss.RouterSnapshot
	Telemetry func() power.ConsumerSnapshot
}

type Status struct {
	p     Providers
	start time.Time
}

func NewStatus(p Providers, nowUTC time.Time) *Status {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	return &Status{p: p, start: nowUTC.UTC()}
}

type SolutionView struct {
	FixKind  string  `json:"fix_kind"`
	AgeSec   int     `json:"age_sec"`
	Ratio    int     `json:"ratio"`
	EastM    float64 `json:"east_m"`
	NorthM   float64 `json:"north_m"`
	UpM      float64 `json:"up_m"`
	SlipsGPS int     `json:"slips_gps"`
	SlipsBDS int     `json:"slips_bds"`
	SlipsGAL int     `json:"slips_gal"`
}

type PositionView struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	AltM   float64 `json:"alt_m"`
	Date   string  `json:"date,omitempty"`
	Time   string  `json:"time,omitempty"`
	Valid  bool    `json:"valid"`
}

type BatteryView struct {
	power.Record
	LastSeenUTC string `json:"last_seen_utc"`
}

type StatusSnapshot struct {
	Service   string `json:"service"`
	Role      string `json:"role"`
	NowUTC    string `json:"now_utc"`
	UptimeSec int64  `json:"uptime_sec"`
	BaudRate  int    `json:"baud_rate"`

	Solution   SolutionView             `json:"solution"`
	Position   PositionView             `json:"position"`
	Satellites map[string][]sats.Record `json:"satellites"`

	Survey  *survey.Snapshot `json:"survey,omitempty"`
	Battery *BatteryView     `json:"battery,omitempty"`

	Relay     rtcm.Snapshot           `json:"relay"`
	Link      link.Snapshot           `json:"link"`
	Router    gnss.RouterSnapshot     `json:"router"`
	Telemetry *power.ConsumerSnapshot `json:"telemetry,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	nowUTC = nowUTC.UTC()

	sol := s.p.Store.Solution()
	pos := s.p.Store.Position()

	snap := StatusSnapshot{
		Service:   "rtklink",
		Role:      s.p.Role,
		NowUTC:    nowUTC.Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start).Seconds()),
		BaudRate:  s.p.BaudRate,
		Solution: SolutionView{
			FixKind:  sol.FixKind.String(),
			AgeSec:   sol.AgeSec,
			Ratio:    sol.Ratio,
			EastM:    sol.EastM,
			NorthM:   sol.NorthM,
			UpM:      sol.UpM,
			SlipsGPS: sol.SlipsGPS,
			SlipsBDS: sol.SlipsBDS,
			SlipsGAL: sol.SlipsGAL,
		},
		Position: PositionView{
			LatDeg: pos.LatDeg,
			LonDeg: pos.LonDeg,
			AltM:   pos.AltM,
			Date:   pos.Date,
			Time:   pos.Time,
			Valid:  pos.Valid,
		},
		Satellites: map[string][]sats.Record{},
		Relay:      s.p.Relay.Snapshot(),
		Link:       s.p.Link(),
		Router:     s.p.Router(),
	}

	for c := sats.Constellation(0); c < sats.NumConstellations; c++ {
		snap.Satellites[c.String()] = s.p.Tracker.Snapshot(c)
	}

	if s.p.Survey != nil {
		sv := s.p.Survey.Snapshot()
		snap.Survey = &sv
	}
	if s.p.Telemetry != nil {
		tel := s.p.Telemetry()
		snap.Telemetry = &tel
	}
	if rec, at, ok := s.p.Store.Battery(); ok {
		snap.Battery = &BatteryView{
			Record:      rec,
			LastSeenUTC: at.UTC().Format(time.RFC3339Nano),
		}
	}
	return snap
}
