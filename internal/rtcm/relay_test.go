package rtcm

import (
	"bytes"
	"testing"
	"time"
)

// queueReader hands out one queued chunk per Read; empty queue reads as a
// quiet serial line.
type queueReader struct {
	chunks [][]byte
}

func (q *queueReader) push(p []byte) {
	q.chunks = append(q.chunks, append([]byte(nil), p...))
}

func (q *queueReader) Read(b []byte) (int, error) {
	if len(q.chunks) == 0 {
		return 0, nil
	}
	n := copy(b, q.chunks[0])
	q.chunks[0] = q.chunks[0][n:]
	if len(q.chunks[0]) == 0 {
		q.chunks = q.chunks[1:]
	}
	return n, nil
}

type recordSink struct {
	connected bool
	writes    [][]byte
}

func (s *recordSink) Connected() bool { return s.connected }

func (s *recordSink) Write(p []byte) (int, error) {
	s.writes = append(s.writes, append([]byte(nil), p...))
	return len(p), nil
}

func fill(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestRelay_ForwardsBurstsAtGapBoundaries(t *testing.T) {
	src := &queueReader{}
	sink := &recordSink{connected: true}
	r := NewRelay(src, sink, Config{Capacity: 4096, Gap: 50 * time.Millisecond})
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	src.push(fill(500, 0xD3))
	src.push(fill(300, 0x11))
	r.Poll(t0)
	if len(sink.writes) != 0 {
		t.Fatalf("burst forwarded before gap elapsed")
	}

	// Source idle for the gap: the burst goes out in one write.
	r.Poll(t0.Add(60 * time.Millisecond))
	if len(sink.writes) != 1 {
		t.Fatalf("writes=%d, want 1", len(sink.writes))
	}
	if len(sink.writes[0]) != 800 {
		t.Fatalf("burst size=%d, want 800", len(sink.writes[0]))
	}

	t1 := t0.Add(time.Second)
	src.push(fill(200, 0x22))
	r.Poll(t1)
	r.Poll(t1.Add(50 * time.Millisecond))
	if len(sink.writes) != 2 {
		t.Fatalf("writes=%d, want 2", len(sink.writes))
	}
	if len(sink.writes[1]) != 200 {
		t.Fatalf("second burst size=%d, want 200", len(sink.writes[1]))
	}

	snap := r.Snapshot()
	if snap.Bursts != 2 || snap.ForwardedBytes != 1000 {
		t.Fatalf("bursts=%d forwarded=%d", snap.Bursts, snap.ForwardedBytes)
	}
	if snap.DiscardedBytes != 0 || snap.Overflows != 0 {
		t.Fatalf("unexpected discards: %+v", snap)
	}
}

func TestRelay_OverflowDropsExcessButStillForwards(t *testing.T) {
	src := &queueReader{}
	sink := &recordSink{connected: true}
	r := NewRelay(src, sink, Config{Capacity: 1024, Gap: 50 * time.Millisecond})
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	src.push(fill(700, 0xD3))
	src.push(fill(824, 0xD3)) // 500 bytes past capacity
	r.Poll(t0)
	r.Poll(t0.Add(60 * time.Millisecond))

	if len(sink.writes) != 1 {
		t.Fatalf("writes=%d, want 1", len(sink.writes))
	}
	if len(sink.writes[0]) != 1024 {
		t.Fatalf("forwarded %d bytes, want exactly the 1024 byte capacity", len(sink.writes[0]))
	}
	snap := r.Snapshot()
	if snap.DiscardedBytes != 500 {
		t.Fatalf("discarded=%d, want 500", snap.DiscardedBytes)
	}
	if snap.Overflows != 1 {
		t.Fatalf("overflows=%d, want 1", snap.Overflows)
	}

	// The next burst starts from an empty buffer.
	t1 := t0.Add(time.Second)
	src.push(fill(100, 0x33))
	r.Poll(t1)
	r.Poll(t1.Add(50 * time.Millisecond))
	if len(sink.writes) != 2 || len(sink.writes[1]) != 100 {
		t.Fatalf("post-overflow burst not forwarded cleanly: %d writes", len(sink.writes))
	}
}

func TestRelay_DisconnectedSinkDrainsAndDiscards(t *testing.T) {
	src := &queueReader{}
	sink := &recordSink{connected: false}
	r := NewRelay(src, sink, Config{})
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	src.push(fill(600, 0xD3))
	r.Poll(t0)
	r.Poll(t0.Add(100 * time.Millisecond))

	if len(sink.writes) != 0 {
		t.Fatalf("wrote to disconnected sink")
	}
	snap := r.Snapshot()
	if snap.DiscardedBytes != 600 {
		t.Fatalf("discarded=%d, want 600", snap.DiscardedBytes)
	}
	if snap.Bursts != 0 {
		t.Fatalf("bursts=%d, want 0", snap.Bursts)
	}

	// Reconnect: traffic flows again.
	sink.connected = true
	t1 := t0.Add(time.Second)
	src.push(fill(250, 0xD3))
	r.Poll(t1)
	r.Poll(t1.Add(50 * time.Millisecond))
	if len(sink.writes) != 1 || len(sink.writes[0]) != 250 {
		t.Fatalf("burst after reconnect not forwarded")
	}
}
