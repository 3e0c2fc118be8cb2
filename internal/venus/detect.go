package venus

import (
	"errors"
	"io"
	"log"
	"time"

	"go.uber.org/ratelimit"
)

// Opener opens the receiver serial device at a requested baud rate.
// Implementations must bound individual reads (a read timeout) so the
// detector's deadline loop can make progress while the line is silent.
type Opener interface {
	Open(baud int) (io.ReadWriteCloser, error)
}

// DefaultBaudRates are the candidate rates probed in order. First match wins.
var DefaultBaudRates = []int{4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// ErrNoBaudRate means every candidate rate was probed without a valid ACK.
// Continuing would misparse everything downstream, so callers treat this as
// fatal rather than falling back to a guess.
var ErrNoBaudRate = errors.New("venus: receiver did not acknowledge at any candidate baud rate")

// DetectorConfig controls baud detection. Zero values get defaults.
type DetectorConfig struct {
	// Rates overrides DefaultBaudRates.
	Rates []int

	// Timeout bounds how long one candidate rate waits for the ACK.
	Timeout time.Duration

	// Now supplies the clock; tests inject a fake.
	Now func() time.Time

	// Limiter paces probe attempts so a slow-to-settle UART isn't hammered.
	Limiter ratelimit.Limiter
}

type Detector struct {
	opener  Opener
	rates   []int
	timeout time.Duration
	now     func() time.Time
	rl      ratelimit.Limiter
}

func NewDetector(opener Opener, cfg DetectorConfig) *Detector {
	d := &Detector{
		opener:  opener,
		rates:   cfg.Rates,
		timeout: cfg.Timeout,
		now:     cfg.Now,
		rl:      cfg.Limiter,
	}
	if len(d.rates) == 0 {
		d.rates = DefaultBaudRates
	}
	if d.timeout <= 0 {
		d.timeout = 250 * time.Millisecond
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.rl == nil {
		d.rl = ratelimit.New(4) // at most 4 probe attempts per second
	}
	return d
}

// Detect probes each candidate rate in order: open the port, send the
// query-software-version frame, and scan the reply for the ACK signature
// until the per-candidate deadline. On success the port is returned still
// open at the matched rate. On total failure every port is closed and
// ErrNoBaudRate is returned.
func (d *Detector) Detect() (io.ReadWriteCloser, int, error) {
	for _, rate := range d.rates {
		d.rl.Take()

		port, err := d.opener.Open(rate)
		if err != nil {
			log.Printf("venus: open at baud=%d failed: %v", rate, err)
			continue
		}
		if d.probe(port) {
			log.Printf("venus: receiver detected baud=%d", rate)
			return port, rate, nil
		}
		_ = port.Close()
	}
	return nil, 0, ErrNoBaudRate
}

// probe sends the query frame and watches for the ACK signature with a
// sliding window over the incoming bytes.
func (d *Detector) probe(port io.ReadWriteCloser) bool {
	if _, err := port.Write(QuerySoftwareVersion()); err != nil {
		return false
	}

	deadline := d.now().Add(d.timeout)
	window := make([]byte, 0, len(AckSignature))
	scratch := make([]byte, 256)

	for d.now().Before(deadline) {
		n, err := port.Read(scratch)
		for _, b := range scratch[:n] {
			window = append(window, b)
			if len(window) > len(AckSignature) {
				copy(window, window[1:])
				window = window[:len(AckSignature)]
			}
			if len(window) == len(AckSignature) && matches(window, AckSignature) {
				return true
			}
		}
		if err != nil && err != io.EOF {
			return false
		}
	}
	return false
}

func matches(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
