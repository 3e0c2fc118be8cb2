package link

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// DialerConfig controls the rover's outbound correction connection.
// Zero values get defaults.
type DialerConfig struct {
	Addr string

	// RetryInterval paces reconnect attempts while disconnected.
	RetryInterval time.Duration

	// DialTimeout bounds a single connect attempt.
	DialTimeout time.Duration

	// ReadTimeout bounds one Read so the poll loop never stalls on a quiet
	// link; expiry reads as "no data right now".
	ReadTimeout time.Duration
}

// Dialer is the rover end. It presents the connection as a byte source for
// the relay: no connection or no pending data both read as (0, nil), and the
// next Poll re-dials after the retry interval.
type Dialer struct {
	cfg DialerConfig

	mu          sync.Mutex
	conn        net.Conn
	lastAttempt time.Time
	attempts    uint64
	bytesIn     uint64
	lastErr     string
}

func NewDialer(cfg DialerConfig) (*Dialer, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("link: dialer addr is required")
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Millisecond
	}
	return &Dialer{cfg: cfg}, nil
}

// Poll dials the base station when disconnected, at most once per retry
// interval.
func (d *Dialer) Poll(now time.Time) {
	d.mu.Lock()
	if d.conn != nil || now.Sub(d.lastAttempt) < d.cfg.RetryInterval {
		d.mu.Unlock()
		return
	}
	d.lastAttempt = now
	d.attempts++
	d.mu.Unlock()

	conn, err := net.DialTimeout("tcp", d.cfg.Addr, d.cfg.DialTimeout)
	if err != nil {
		d.mu.Lock()
		d.lastErr = err.Error()
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	d.conn = conn
	d.lastErr = ""
	d.mu.Unlock()
	log.Printf("link: connected to base station %s", d.cfg.Addr)
}

func (d *Dialer) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// Read drains pending correction bytes. Timeouts and disconnection read as
// (0, nil); hard errors drop the connection for the next Poll to rebuild.
func (d *Dialer) Read(p []byte) (int, error) {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return 0, nil
	}

	_ = conn.SetReadDeadline(time.Now().Add(d.cfg.ReadTimeout))
	n, err := conn.Read(p)
	if n > 0 {
		d.mu.Lock()
		d.bytesIn += uint64(n)
		d.mu.Unlock()
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, nil
		}
		d.mu.Lock()
		d.lastErr = err.Error()
		if d.conn == conn {
			d.conn = nil
		}
		d.mu.Unlock()
		_ = conn.Close()
		return n, nil
	}
	return n, nil
}

// Write sends bytes to the base station; unused on a typical rover but kept
// so either endpoint can sit on either side of a relay.
func (d *Dialer) Write(p []byte) (int, error) {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return 0, fmt.Errorf("link: not connected")
	}
	n, err := conn.Write(p)
	if err != nil {
		d.mu.Lock()
		d.lastErr = err.Error()
		if d.conn == conn {
			d.conn = nil
		}
		d.mu.Unlock()
		_ = conn.Close()
	}
	return n, err
}

func (d *Dialer) Close() {
	d.mu.Lock()
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
	d.mu.Unlock()
}

func (d *Dialer) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	state := "disconnected"
	if d.conn != nil {
		state = "connected"
	}
	return Snapshot{
		Addr:      d.cfg.Addr,
		State:     state,
		Attempts:  d.attempts,
		BytesIn:   d.bytesIn,
		LastError: d.lastErr,
	}
}
