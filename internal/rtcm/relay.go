// Package rtcm relays correction-data bursts between a byte source and a
// transport. The receiver emits RTCM3 in bursts separated by hundreds of
// milliseconds of silence, so an idle gap on the line is the only burst
// delimiter; the relay forwards each accumulated burst in a single write.
package rtcm

import (
	"io"
	"log"
	"sync"
	"time"
)

// Sink is where completed bursts go: the base station's TCP link to the
// rover, or the rover's local receiver serial port.
type Sink interface {
	// Connected reports whether writes can currently reach the other end.
	Connected() bool
	Write(p []byte) (int, error)
}

// WriterSink adapts an always-available writer (a local serial port).
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Connected() bool { return s.W != nil }

func (s WriterSink) Write(p []byte) (int, error) { return s.W.Write(p) }

// Config controls burst capture. Zero values get defaults.
type Config struct {
	// Capacity bounds one burst; excess bytes are dropped, not buffered.
	Capacity int

	// Gap is the idle time on the source that ends a burst.
	Gap time.Duration
}

const (
	defaultCapacity = 4096
	defaultGap      = 50 * time.Millisecond
)

type Relay struct {
	src  io.Reader
	sink Sink
	gap  time.Duration

	buf      []byte
	scratch  []byte
	inBurst  bool
	overflow bool
	lastByte time.Time

	mu             sync.Mutex
	bursts         uint64
	forwardedBytes uint64
	discardedBytes uint64
	overflows      uint64
	lastForward    time.Time
	lastErr        string
}

type Snapshot struct {
	Bursts         uint64 `json:"bursts"`
	ForwardedBytes uint64 `json:"forwarded_bytes"`
	DiscardedBytes uint64 `json:"discarded_bytes"`
	Overflows      uint64 `json:"overflows"`
	LastForwardUTC string `json:"last_forward_utc,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

func NewRelay(src io.Reader, sink Sink, cfg Config) *Relay {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.Gap <= 0 {
		cfg.Gap = defaultGap
	}
	return &Relay{
		src:     src,
		sink:    sink,
		gap:     cfg.Gap,
		buf:     make([]byte, 0, cfg.Capacity),
		scratch: make([]byte, 4096),
	}
}

// maxReadsPerPoll bounds source draining within one poll so a babbling
// source cannot starve the rest of the loop.
const maxReadsPerPoll = 16

// Poll drains whatever the source has buffered and, once the source has been
// idle for the configured gap, forwards the accumulated burst in one write.
// It never blocks beyond the source's own read timeout.
func (r *Relay) Poll(now time.Time) {
	for i := 0; i < maxReadsPerPoll; i++ {
		n, err := r.src.Read(r.scratch)
		if n > 0 {
			r.ingest(now, r.scratch[:n])
		}
		if err != nil || n == 0 {
			break
		}
	}

	if r.inBurst && now.Sub(r.lastByte) >= r.gap {
		r.flush(now)
	}
}

func (r *Relay) ingest(now time.Time, p []byte) {
	r.lastByte = now

	if !r.sink.Connected() {
		// Nothing to forward to. Keep draining so the serial buffer does
		// not back up, but drop the bytes.
		r.buf = r.buf[:0]
		r.inBurst = false
		r.overflow = false
		r.addDiscarded(len(p))
		return
	}

	r.inBurst = true
	room := cap(r.buf) - len(r.buf)
	if room >= len(p) {
		r.buf = append(r.buf, p...)
		return
	}

	if room > 0 {
		r.buf = append(r.buf, p[:room]...)
	}
	dropped := len(p) - room
	r.addDiscarded(dropped)
	if !r.overflow {
		r.overflow = true
		r.mu.Lock()
		r.overflows++
		r.mu.Unlock()
		log.Printf("rtcm: burst exceeds %d byte capacity, dropping excess", cap(r.buf))
	}
}

func (r *Relay) flush(now time.Time) {
	if len(r.buf) > 0 && r.sink.Connected() {
		if _, err := r.sink.Write(r.buf); err != nil {
			r.mu.Lock()
			r.lastErr = err.Error()
			r.mu.Unlock()
			log.Printf("rtcm: forward of %d byte burst failed: %v", len(r.buf), err)
		} else {
			r.mu.Lock()
			r.bursts++
			r.forwardedBytes += uint64(len(r.buf))
			r.lastForward = now
			r.lastErr = ""
			r.mu.Unlock()
		}
	}
	r.buf = r.buf[:0]
	r.inBurst = false
	r.overflow = false
}

func (r *Relay) addDiscarded(n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.discardedBytes += uint64(n)
	r.mu.Unlock()
}

func (r *Relay) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Snapshot{
		Bursts:         r.bursts,
		ForwardedBytes: r.forwardedBytes,
		DiscardedBytes: r.discardedBytes,
		Overflows:      r.overflows,
		LastError:      r.lastErr,
	}
	if !r.lastForward.IsZero() {
		out.LastForwardUTC = r.lastForward.UTC().Format(time.RFC3339Nano)
	}
	return out
}
