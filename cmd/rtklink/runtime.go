package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"rtklink/internal/config"
	"rtklink/internal/gnss"
	"rtklink/internal/link"
	"rtklink/internal/power"
	"rtklink/internal/rtcm"
	"rtklink/internal/sats"
	"rtklink/internal/state"
	"rtklink/internal/storage"
	"rtklink/internal/survey"
	"rtklink/internal/venus"
	"rtklink/internal/web"
)

// runtime owns every live component and drives them from a single poll loop.
// Components never spawn their own goroutines; the loop hands each one the
// current time and lets it do a bounded amount of work.
type runtime struct {
	cfg  config.Config
	baud int

	gnssPort io.ReadWriteCloser
	readBuf  []byte
	splitter *gnss.Splitter
	router   *gnss.Router

	store   *state.Store
	tracker *sats.Tracker
	survey  *survey.Monitor

	relay    *rtcm.Relay
	listener *link.Listener
	dialer   *link.Dialer
	rtcmPort io.ReadWriteCloser

	telemetry     *power.Consumer
	telemetryPort io.ReadWriteCloser

	sessionLog *storage.Store
	lastLog    time.Time

	status *web.Status
}

func newRuntime(cfg config.Config, nowUTC time.Time) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		readBuf:  make([]byte, 1024),
		splitter: gnss.NewSplitter(),
		store:    state.NewStore(),
		tracker:  sats.NewTracker(sats.StaleAfter),
	}

	det := venus.NewDetector(
		venus.PortOpener{Device: cfg.GNSS.Device},
		venus.DetectorConfig{Rates: cfg.GNSS.BaudRates, Timeout: cfg.GNSS.HandshakeTimeout},
	)
	port, baud, err := det.Detect()
	if err != nil {
		return nil, fmt.Errorf("gnss %s: %w", cfg.GNSS.Device, err)
	}
	rt.gnssPort = port
	rt.baud = baud
	log.Printf("gnss device=%s baud=%d", cfg.GNSS.Device, baud)

	if cfg.Role == "base" {
		rt.survey = survey.NewMonitor()
	}
	rt.router = gnss.NewRouter(rt.store, rt.tracker, rt.survey)

	switch cfg.Role {
	case "base":
		ln, err := link.Listen(cfg.Corrections.Listen)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.listener = ln
		src, err := venus.OpenPort(cfg.Corrections.Device, cfg.Corrections.Baud)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("corrections %s: %w", cfg.Corrections.Device, err)
		}
		rt.rtcmPort = src
		rt.relay = rtcm.NewRelay(src, ln, rtcm.Config{
			Capacity: cfg.Corrections.BufferBytes,
			Gap:      cfg.Corrections.BurstGap,
		})
	case "rover":
		d, err := link.NewDialer(link.DialerConfig{
			Addr:          cfg.Corrections.Addr,
			RetryInterval: cfg.Corrections.RetryInterval,
		})
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.dialer = d
		rt.relay = rtcm.NewRelay(d, rtcm.WriterSink{W: port}, rtcm.Config{
			Capacity: cfg.Corrections.BufferBytes,
			Gap:      cfg.Corrections.BurstGap,
		})
	}

	if cfg.Telemetry.Enable {
		tp, err := venus.OpenPort(cfg.Telemetry.Device, cfg.Telemetry.Baud)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("telemetry %s: %w", cfg.Telemetry.Device, err)
		}
		rt.telemetryPort = tp
		rt.telemetry = power.NewConsumer(tp, rt.store.SetBattery)
	}

	if cfg.Log.Enable {
		sl, err := storage.Open(cfg.Log.Path)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.sessionLog = sl
	}

	rt.status = web.NewStatus(rt.statusProviders(), nowUTC)
	return rt, nil
}

func (rt *runtime) statusProviders() web.Providers {
	p := web.Providers{
		Role:     rt.cfg.Role,
		BaudRate: rt.baud,
		Store:    rt.store,
		Tracker:  rt.tracker,
		Survey:   rt.survey,
		Relay:    rt.relay,
		Router:   rt.router.Snapshot,
	}
	if rt.listener != nil {
		p.Link = rt.listener.Snapshot
	} else {
		p.Link = rt.dialer.Snapshot
	}
	if rt.telemetry != nil {
		p.Telemetry = rt.telemetry.Snapshot
	}
	return p
}

// step runs one poll-loop iteration.
func (rt *runtime) step(ctx context.Context, now time.Time) {
	n, err := rt.gnssPort.Read(rt.readBuf)
	if n > 0 {
		for _, tok := range rt.splitter.Feed(rt.readBuf[:n]) {
			rt.router.HandleToken(now, tok)
		}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		log.Printf("gnss read error: %v", err)
	}

	if rt.listener != nil {
		rt.listener.Poll(now)
	}
	if rt.dialer != nil {
		rt.dialer.Poll(now)
	}
	rt.relay.Poll(now)

	if rt.telemetry != nil {
		rt.telemetry.Poll(now)
	}

	if rt.sessionLog != nil && now.Sub(rt.lastLog) >= rt.cfg.Log.Interval {
		rt.lastLog = now
		if err := rt.sessionLog.Append(ctx, rt.buildLogRow(now)); err != nil {
			log.Printf("session log append failed: %v", err)
		}
	}
}

func (rt *runtime) buildLogRow(now time.Time) storage.Row {
	sol := rt.store.Solution()
	pos := rt.store.Position()
	row := storage.Row{
		At:       now,
		FixKind:  sol.FixKind.String(),
		AgeSec:   sol.AgeSec,
		Ratio:    sol.Ratio,
		EastM:    sol.EastM,
		NorthM:   sol.NorthM,
		UpM:      sol.UpM,
		SlipsGPS: sol.SlipsGPS,
		SlipsBDS: sol.SlipsBDS,
		SlipsGAL: sol.SlipsGAL,
		LatDeg:   pos.LatDeg,
		LonDeg:   pos.LonDeg,
		SatsGPS:  rt.tracker.Count(sats.GPS),
		SatsBDS:  rt.tracker.Count(sats.BDS),
		SatsGAL:  rt.tracker.Count(sats.GAL),
	}
	if rt.survey != nil {
		row.SurveyState = rt.survey.State().String()
	}
	return row
}

func (rt *runtime) run(ctx context.Context) {
	ticker := time.NewTicker(rt.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rt.step(ctx, now)
		}
	}
}

func (rt *runtime) close() {
	if rt.sessionLog != nil {
		_ = rt.sessionLog.Close()
	}
	if rt.telemetryPort != nil {
		_ = rt.telemetryPort.Close()
	}
	if rt.rtcmPort != nil {
		_ = rt.rtcmPort.Close()
	}
	if rt.listener != nil {
		rt.listener.Close()
	}
	if rt.dialer != nil {
		rt.dialer.Close()
	}
	if rt.gnssPort != nil {
		_ = rt.gnssPort.Close()
	}
}
