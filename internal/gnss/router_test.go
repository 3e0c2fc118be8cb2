package gnss

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"rtklink/internal/sats"
	"rtklink/internal/state"
	"rtklink/internal/survey"
	"rtklink/internal/venus"
)

func newTestRouter() (*Router, *state.Store, *sats.Tracker, *survey.Monitor) {
	store := state.NewStore()
	tracker := sats.NewTracker(sats.StaleAfter)
	mon := survey.NewMonitor()
	return NewRouter(store, tracker, mon), store, tracker, mon
}

func routerNow() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestHandleLine_GGASetsFixAndPosition(t *testing.T) {
	r, store, _, _ := newTestRouter()

	r.HandleLine(routerNow(), sentence("GNGGA,123519,4744.1234,N,00956.4567,E,4,12,0.8,545.4,M,46.9,M,,"))

	if got := store.Solution().FixKind; got != state.FixRTK {
		t.Fatalf("fix=%v, want FixRTK", got)
	}
	pos := store.Position()
	if !pos.Valid {
		t.Fatalf("position not marked valid")
	}
	if math.Abs(pos.LatDeg-47.735390) > 1e-4 || math.Abs(pos.LonDeg-9.940945) > 1e-4 {
		t.Fatalf("lat=%f lon=%f", pos.LatDeg, pos.LonDeg)
	}
	if math.Abs(pos.AltM-545.4) > 0.01 {
		t.Fatalf("alt=%f", pos.AltM)
	}
}

func TestHandleLine_InvalidGGAKeepsPositionUnset(t *testing.T) {
	r, store, _, _ := newTestRouter()

	r.HandleLine(routerNow(), sentence("GNGGA,123519,,,,,0,00,,,M,,M,,"))

	if got := store.Solution().FixKind; got != state.FixInvalid {
		t.Fatalf("fix=%v, want FixInvalid", got)
	}
	if store.Position().Valid {
		t.Fatalf("invalid fix must not publish a position")
	}
}

func TestHandleLine_FixQualityMapping(t *testing.T) {
	tests := []struct {
		quality string
		want    state.FixKind
	}{
		{"0", state.FixInvalid},
		{"1", state.FixGPS},
		{"2", state.FixDGPS},
		{"4", state.FixRTK},
		{"5", state.FixRTKFloat},
	}
	for _, tc := range tests {
		r, store, _, _ := newTestRouter()
		r.HandleLine(routerNow(), sentence("GNGGA,123519,4744.1234,N,00956.4567,E,"+tc.quality+",12,0.8,545.4,M,46.9,M,,"))
		if got := store.Solution().FixKind; got != tc.want {
			t.Fatalf("quality %s: fix=%v, want %v", tc.quality, got, tc.want)
		}
	}
}

func TestHandleLine_RMCSetsClock(t *testing.T) {
	r, store, _, _ := newTestRouter()

	r.HandleLine(routerNow(), sentence("GNRMC,123519,A,4744.1234,N,00956.4567,E,0.0,0.0,010325,,,D"))

	pos := store.Position()
	if pos.Date == "" || pos.Time == "" {
		t.Fatalf("clock not set: date=%q time=%q", pos.Date, pos.Time)
	}
}

func TestHandleLine_VoidRMCIgnored(t *testing.T) {
	r, store, _, _ := newTestRouter()

	r.HandleLine(routerNow(), sentence("GNRMC,123519,V,,,,,,,010325,,,N"))

	if pos := store.Position(); pos.Date != "" || pos.Time != "" {
		t.Fatalf("void RMC must not set the clock")
	}
}

func TestHandleLine_GSVCycle(t *testing.T) {
	r, _, tracker, _ := newTestRouter()
	now := routerNow()

	r.HandleLine(now, sentence("GPGSV,2,1,06,01,40,100,30,02,41,101,31,03,42,102,32,04,43,103,33"))
	r.HandleLine(now, sentence("GPGSV,2,2,06,05,44,104,34,06,45,105,35"))

	if got := tracker.Count(sats.GPS); got != 6 {
		t.Fatalf("tracked=%d, want 6", got)
	}
	recs := tracker.Snapshot(sats.GPS)
	if recs[0].PRN != 1 || recs[0].SNRDB != 30 {
		t.Fatalf("first record %+v", recs[0])
	}
	if recs[5].PRN != 6 || recs[5].ElevationDeg != 45 {
		t.Fatalf("last record %+v", recs[5])
	}
	if snap := r.Snapshot(); snap.GSVOutOfSequence != 0 {
		t.Fatalf("unexpected drops: %+v", snap)
	}
}

func TestHandleLine_GSVPerConstellation(t *testing.T) {
	r, _, tracker, _ := newTestRouter()
	now := routerNow()

	r.HandleLine(now, sentence("GPGSV,1,1,01,10,40,100,30"))
	r.HandleLine(now, sentence("GBGSV,1,1,01,25,41,101,31"))
	r.HandleLine(now, sentence("GAGSV,1,1,01,03,42,102,32"))

	if tracker.Count(sats.GPS) != 1 || tracker.Count(sats.BDS) != 1 || tracker.Count(sats.GAL) != 1 {
		t.Fatalf("counts: gps=%d bds=%d gal=%d",
			tracker.Count(sats.GPS), tracker.Count(sats.BDS), tracker.Count(sats.GAL))
	}
}

func TestHandleLine_GSVOutOfSequenceDropped(t *testing.T) {
	r, _, tracker, _ := newTestRouter()
	now := routerNow()

	// Message 2 with no message 1.
	r.HandleLine(now, sentence("GPGSV,2,2,06,05,44,104,34,06,45,105,35"))
	if got := tracker.Count(sats.GPS); got != 0 {
		t.Fatalf("tracked=%d, want 0", got)
	}
	if snap := r.Snapshot(); snap.GSVOutOfSequence != 1 {
		t.Fatalf("drops=%d, want 1", snap.GSVOutOfSequence)
	}

	// A fresh cycle afterwards proceeds normally.
	r.HandleLine(now, sentence("GPGSV,2,1,06,01,40,100,30,02,41,101,31,03,42,102,32,04,43,103,33"))
	r.HandleLine(now, sentence("GPGSV,2,2,06,05,44,104,34,06,45,105,35"))
	if got := tracker.Count(sats.GPS); got != 6 {
		t.Fatalf("tracked=%d after recovery, want 6", got)
	}
}

func TestHandleLine_GSVGapInsideCycle(t *testing.T) {
	r, _, tracker, _ := newTestRouter()
	now := routerNow()

	r.HandleLine(now, sentence("GPGSV,3,1,09,01,40,100,30,02,41,101,31,03,42,102,32,04,43,103,33"))
	// Message 2 lost; message 3 must not be applied.
	r.HandleLine(now, sentence("GPGSV,3,3,09,09,44,104,34"))

	if got := tracker.Count(sats.GPS); got != 4 {
		t.Fatalf("tracked=%d, want only message 1's 4", got)
	}
	if snap := r.Snapshot(); snap.GSVOutOfSequence != 1 {
		t.Fatalf("drops=%d, want 1", snap.GSVOutOfSequence)
	}
}

func TestHandleLine_BadChecksumCounted(t *testing.T) {
	r, _, _, _ := newTestRouter()

	good := sentence("GNGGA,123519,4744.1234,N,00956.4567,E,1,08,0.9,545.4,M,46.9,M,,")
	r.HandleLine(routerNow(), good[:len(good)-2]+"00")

	if snap := r.Snapshot(); snap.ParseErrors != 1 {
		t.Fatalf("parse_errors=%d, want 1", snap.ParseErrors)
	}
}

func TestHandleLine_PSTIUpdatesSolution(t *testing.T) {
	r, store, _, _ := newTestRouter()

	f := make([]string, 16)
	f[0], f[1], f[14], f[15] = "PSTI", "030", "2.0", "48.7"
	r.HandleLine(routerNow(), pstiSentence(f))

	sol := store.Solution()
	if sol.AgeSec != 2 || sol.Ratio != 49 {
		t.Fatalf("age=%d ratio=%d", sol.AgeSec, sol.Ratio)
	}
}

func buildNavFrame(t *testing.T, latDeg, lonDeg, x, y, z float64) []byte {
	t.Helper()
	p := make([]byte, 59)
	p[0] = venus.MsgNavData
	p[1] = 2
	p[2] = 9
	put := func(off int, v int32) {
		binary.BigEndian.PutUint32(p[off:off+4], uint32(v))
	}
	put(9, int32(math.Round(latDeg*1e7)))
	put(13, int32(math.Round(lonDeg*1e7)))
	put(35, int32(math.Round(x*100)))
	put(39, int32(math.Round(y*100)))
	put(43, int32(math.Round(z*100)))
	return p
}

func TestHandleFrame_DrivesSurvey(t *testing.T) {
	r, _, _, mon := newTestRouter()
	now := routerNow()

	r.HandleFrame(now, buildNavFrame(t, 47.7351, 9.9412, 4100000, 700000, 4700000))
	r.HandleFrame(now, buildNavFrame(t, 47.7351, 9.9412, 4100000, 700000, 4700000))

	if mon.State() != survey.Complete {
		t.Fatalf("survey=%v after identical reports, want Complete", mon.State())
	}
	snap := mon.Snapshot()
	if !snap.HasPosition || snap.LatDeg != 47.7351 {
		t.Fatalf("survey position %+v", snap)
	}
	if rs := r.Snapshot(); rs.Frames != 2 {
		t.Fatalf("frames=%d, want 2", rs.Frames)
	}
}

func TestHandleFrame_NilSurveyIsSafe(t *testing.T) {
	store := state.NewStore()
	tracker := sats.NewTracker(sats.StaleAfter)
	r := NewRouter(store, tracker, nil) // rover

	r.HandleFrame(routerNow(), buildNavFrame(t, 1, 2, 3, 4, 5))

	if snap := r.Snapshot(); snap.Frames != 1 {
		t.Fatalf("frames=%d, want 1", snap.Frames)
	}
}
