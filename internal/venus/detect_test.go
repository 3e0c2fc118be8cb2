package venus

import (
	"errors"
	"io"
	"testing"
	"time"

	"go.uber.org/ratelimit"
)

// fakeClock advances on every reading so deadline loops terminate without
// real sleeps.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

// scriptPort replays canned read chunks; once exhausted, reads behave like a
// quiet serial line with a sub-100ms timeout (0, io.EOF).
type scriptPort struct {
	chunks [][]byte
	writes [][]byte
	closed bool
}

func (p *scriptPort) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.chunks[0])
	p.chunks[0] = p.chunks[0][n:]
	if len(p.chunks[0]) == 0 {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *scriptPort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *scriptPort) Close() error {
	p.closed = true
	return nil
}

type fakeOpener struct {
	ports map[int]*scriptPort
}

func (o *fakeOpener) Open(baud int) (io.ReadWriteCloser, error) {
	p, ok := o.ports[baud]
	if !ok {
		return nil, errors.New("no such rate")
	}
	return p, nil
}

func testDetector(o Opener) *Detector {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), step: 50 * time.Millisecond}
	return NewDetector(o, DetectorConfig{
		Timeout: 250 * time.Millisecond,
		Now:     clk.Now,
		Limiter: ratelimit.NewUnlimited(),
	})
}

func TestDetect_FindsAcknowledgingRate(t *testing.T) {
	ack := EncodeFrame([]byte{0x83, 0x02})
	noise := []byte("$GNGGA,123519,,,,,0,00,,,M,,M,,*5C\r\n")

	ports := map[int]*scriptPort{}
	for _, rate := range DefaultBaudRates {
		ports[rate] = &scriptPort{chunks: [][]byte{append([]byte(nil), noise...)}}
	}
	// Split the ACK across two reads, behind NMEA traffic, so the sliding
	// window has to do real work.
	ports[115200] = &scriptPort{chunks: [][]byte{
		append([]byte(nil), noise...),
		ack[:3],
		ack[3:],
	}}

	port, baud, err := testDetector(&fakeOpener{ports: ports}).Detect()
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if baud != 115200 {
		t.Fatalf("baud=%d, want 115200", baud)
	}
	if port != ports[115200] {
		t.Fatalf("returned port is not the matched one")
	}
	if ports[115200].closed {
		t.Fatalf("matched port must stay open")
	}
	if len(ports[115200].writes) != 1 {
		t.Fatalf("expected one probe write, got %d", len(ports[115200].writes))
	}
	// Rates probed before the match must be closed again.
	for _, rate := range DefaultBaudRates {
		if rate == 115200 {
			break
		}
		if !ports[rate].closed {
			t.Fatalf("rate %d left open", rate)
		}
	}
}

func TestDetect_ExhaustedReturnsErrNoBaudRate(t *testing.T) {
	ports := map[int]*scriptPort{}
	for _, rate := range DefaultBaudRates {
		ports[rate] = &scriptPort{chunks: [][]byte{[]byte("garbage bytes, no ack")}}
	}

	_, _, err := testDetector(&fakeOpener{ports: ports}).Detect()
	if !errors.Is(err, ErrNoBaudRate) {
		t.Fatalf("err=%v, want ErrNoBaudRate", err)
	}
	for rate, p := range ports {
		if !p.closed {
			t.Fatalf("rate %d left open after failure", rate)
		}
	}
}

func TestDetect_SkipsUnopenableRates(t *testing.T) {
	ack := EncodeFrame([]byte{0x83, 0x02})
	ports := map[int]*scriptPort{
		9600: {chunks: [][]byte{ack}},
	}
	d := NewDetector(&fakeOpener{ports: ports}, DetectorConfig{
		Rates:   []int{4800, 9600},
		Timeout: 250 * time.Millisecond,
		Now:     (&fakeClock{t: time.Unix(0, 0), step: 100 * time.Millisecond}).Now,
		Limiter: ratelimit.NewUnlimited(),
	})
	_, baud, err := d.Detect()
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if baud != 9600 {
		t.Fatalf("baud=%d, want 9600", baud)
	}
}
