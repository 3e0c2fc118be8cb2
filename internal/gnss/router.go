package gnss

import (
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"rtklink/internal/sats"
	"rtklink/internal/state"
	"rtklink/internal/survey"
	"rtklink/internal/venus"
)

// gsvSeq tracks multi-part satellites-in-view sequencing for one
// constellation. Message 1 of a cycle resets it; later messages must arrive
// with consecutive indices or their slots are discarded.
type gsvSeq struct {
	expected  int // total satellites declared by message 1
	lastIndex int // last message index applied
	remaining int // satellite slots still unapplied in this cycle
}

// Router dispatches decoded receiver output into the data model. Standard
// sentences go through go-nmea; $PSTI and binary frames are decoded here.
type Router struct {
	store   *state.Store
	tracker *sats.Tracker
	survey  *survey.Monitor // nil on rover units

	seq [sats.NumConstellations]gsvSeq

	mu         sync.Mutex
	sentences  uint64
	frames     uint64
	parseErrs  uint64
	gsvDropped uint64
	lastErr    string
}

type RouterSnapshot struct {
	Sentences        uint64 `json:"sentences"`
	Frames           uint64 `json:"frames"`
	ParseErrors      uint64 `json:"parse_errors"`
	GSVOutOfSequence uint64 `json:"gsv_out_of_sequence"`
	LastError        string `json:"last_error,omitempty"`
}

// NewRouter builds a router. mon may be nil for rover units, which never see
// ECEF position reports.
func NewRouter(store *state.Store, tracker *sats.Tracker, mon *survey.Monitor) *Router {
	return &Router{store: store, tracker: tracker, survey: mon}
}

func (r *Router) HandleToken(now time.Time, tok Token) {
	if tok.Frame != nil {
		r.HandleFrame(now, tok.Frame)
		return
	}
	r.HandleLine(now, tok.Line)
}

// HandleLine routes one complete sentence. Unrecognized sentences and parse
// failures are ignored so newer receiver firmware cannot break the loop.
func (r *Router) HandleLine(now time.Time, line string) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '$' {
		return
	}

	payload, err := stripChecksum(line)
	if err != nil {
		r.noteErr(err.Error())
		return
	}
	f := strings.Split(payload, ",")

	if f[0] == "PSTI" {
		if ev, ok := parsePSTI(line); ok {
			r.applyEvent(ev)
			r.count(&r.sentences)
		}
		return
	}

	// While the receiver has no fix it blanks the position fields, which the
	// sentence library rejects outright. Handle those here so the model still
	// tracks the downgrade.
	if strings.HasSuffix(f[0], "GGA") && len(f) > 6 && (f[6] == "" || f[6] == "0") {
		r.store.SetFixKind(state.FixInvalid)
		r.count(&r.sentences)
		return
	}
	if strings.HasSuffix(f[0], "RMC") && len(f) > 2 && f[2] != "A" {
		r.count(&r.sentences)
		return
	}

	sent, err := nmea.Parse(line)
	if err != nil {
		r.noteErr(err.Error())
		return
	}

	switch m := sent.(type) {
	case nmea.GGA:
		r.store.SetFixKind(fixKindFromQuality(m.FixQuality))
		if m.FixQuality != nmea.Invalid {
			r.store.SetLatLonAlt(m.Latitude, m.Longitude, m.Altitude)
		}
		r.count(&r.sentences)
	case nmea.RMC:
		if m.Validity == "A" {
			r.store.SetClock(m.Date.String(), m.Time.String())
		}
		r.count(&r.sentences)
	case nmea.GSV:
		r.handleGSV(now, m)
		r.count(&r.sentences)
	}
}

// HandleFrame routes one binary frame payload. Only the navigation-data
// message matters here, and only the base station acts on it.
func (r *Router) HandleFrame(now time.Time, payload []byte) {
	if len(payload) == 0 || payload[0] != venus.MsgNavData {
		return
	}
	nav, err := venus.ParseNavData(payload)
	if err != nil {
		r.noteErr(err.Error())
		return
	}
	r.count(&r.frames)
	if r.survey != nil {
		r.survey.Observe(nav.ECEFX, nav.ECEFY, nav.ECEFZ, nav.LatDeg, nav.LonDeg)
	}
}

func (r *Router) applyEvent(ev Event) {
	switch ev.Kind {
	case EventRTKStatus:
		r.store.SetRTKStatus(ev.AgeSec, ev.Ratio)
	case EventBaseline:
		r.store.SetBaseline(ev.EastM, ev.NorthM, ev.UpM)
	case EventCycleSlips:
		r.store.SetCycleSlips(ev.SlipsGPS, ev.SlipsBDS, ev.SlipsGAL)
	}
}

// gsvSlotsPerMessage is fixed by NMEA 0183: each GSV message carries at most
// four satellite blocks.
const gsvSlotsPerMessage = 4

func (r *Router) handleGSV(now time.Time, m nmea.GSV) {
	c, ok := constellationForTalker(m.Talker)
	if !ok {
		return
	}

	st := r.seq[c]
	msg := int(m.MessageNumber)
	total := int(m.TotalMessages)

	if msg == 1 {
		st = gsvSeq{
			expected:  int(m.NumberSVsInView),
			lastIndex: 0,
			remaining: int(m.NumberSVsInView),
		}
	}

	if msg != st.lastIndex+1 {
		// Out of sequence: drop this message's slots but keep the cycle
		// alive; the next correctly indexed message resumes normally.
		r.count(&r.gsvDropped)
		r.seq[c] = st
		return
	}
	st.lastIndex = msg

	slots := m.Info
	if len(slots) > gsvSlotsPerMessage {
		slots = slots[:gsvSlotsPerMessage]
	}
	for _, sv := range slots {
		if st.remaining <= 0 {
			break
		}
		st.remaining--
		if sv.SVPRNNumber <= 0 {
			continue
		}
		r.tracker.Upsert(c, int(sv.SVPRNNumber), int(sv.Elevation), int(sv.Azimuth), int(sv.SNR), now)
	}

	if msg == total {
		// Eviction once per completed cycle keeps its cadence tied to
		// sentence arrival, not loop tick rate.
		r.tracker.EvictStale(c, now)
	}
	r.seq[c] = st
}

func constellationForTalker(talker string) (sats.Constellation, bool) {
	switch talker {
	case "GP":
		return sats.GPS, true
	case "GB", "BD":
		return sats.BDS, true
	case "GA":
		return sats.GAL, true
	}
	return 0, false
}

func fixKindFromQuality(q string) state.FixKind {
	switch q {
	case nmea.Invalid:
		return state.FixInvalid
	case nmea.GPS:
		return state.FixGPS
	case nmea.DGPS:
		return state.FixDGPS
	case nmea.RTK:
		return state.FixRTK
	case nmea.FRTK:
		return state.FixRTKFloat
	}
	return state.FixUnknown
}

func (r *Router) count(field *uint64) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

func (r *Router) noteErr(msg string) {
	r.mu.Lock()
	r.parseErrs++
	r.lastErr = msg
	r.mu.Unlock()
}

func (r *Router) Snapshot() RouterSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RouterSnapshot{
		Sentences:        r.sentences,
		Frames:           r.frames,
		ParseErrors:      r.parseErrs,
		GSVOutOfSequence: r.gsvDropped,
		LastError:        r.lastErr,
	}
}
