// Package link carries correction bursts between the boards: the base
// station listens for the rover on a fixed TCP port, the rover dials out
// with bounded retry. Payloads are raw RTCM bursts; the transport adds no
// framing of its own.
package link

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// Snapshot is the diagnostics view both endpoints expose.
type Snapshot struct {
	Addr      string `json:"addr"`
	State     string `json:"state"`
	Accepts   uint64 `json:"accepts,omitempty"`
	Attempts  uint64 `json:"attempts,omitempty"`
	BytesIn   uint64 `json:"bytes_in,omitempty"`
	BytesOut  uint64 `json:"bytes_out,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Listener is the base-station end. It keeps at most one rover connection;
// a newly accepted connection replaces the previous one.
type Listener struct {
	ln *net.TCPListener

	mu       sync.Mutex
	conn     net.Conn
	accepts  uint64
	bytesOut uint64
	lastErr  string
}

func Listen(addr string) (*Listener, error) {
	a, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("link: resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", a)
	if err != nil {
		return nil, fmt.Errorf("link: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Poll accepts a pending rover connection, if any. The accept deadline keeps
// it from blocking the loop for more than a millisecond.
func (l *Listener) Poll(now time.Time) {
	_ = l.ln.SetDeadline(now.Add(time.Millisecond))
	conn, err := l.ln.Accept()
	if err != nil {
		return // deadline or transient; nothing to do
	}

	l.mu.Lock()
	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.conn = conn
	l.accepts++
	l.mu.Unlock()
	log.Printf("link: rover connected from %s", conn.RemoteAddr())
}

func (l *Listener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Write forwards one burst to the connected rover. A write error drops the
// connection; the rover re-dials on its own schedule.
func (l *Listener) Write(p []byte) (int, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return 0, fmt.Errorf("link: no rover connected")
	}

	n, err := conn.Write(p)
	l.mu.Lock()
	l.bytesOut += uint64(n)
	if err != nil {
		l.lastErr = err.Error()
		_ = conn.Close()
		if l.conn == conn {
			l.conn = nil
		}
	}
	l.mu.Unlock()
	return n, err
}

func (l *Listener) Close() {
	l.mu.Lock()
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.mu.Unlock()
	_ = l.ln.Close()
}

func (l *Listener) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := "listening"
	if l.conn != nil {
		state = "connected"
	}
	return Snapshot{
		Addr:      l.ln.Addr().String(),
		State:     state,
		Accepts:   l.accepts,
		BytesOut:  l.bytesOut,
		LastError: l.lastErr,
	}
}
