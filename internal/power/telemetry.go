// Package power consumes battery telemetry pushed from the companion board's
// fuel gauge. The inter-board transport handles framing and CRC; this side
// sees a stream of fixed-size records of little-endian float32 fields,
// arriving roughly every two seconds.
package power

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// RecordSize is the wire size of one telemetry record: nine float32 fields.
const RecordSize = 36

type Record struct {
	VoltageV         float32 `json:"voltage_v"`
	AvgVoltageV      float32 `json:"avg_voltage_v"`
	CurrentMA        float32 `json:"current_ma"`
	AvgCurrentMA     float32 `json:"avg_current_ma"`
	CapacityMAH      float32 `json:"capacity_mah"`
	BatteryAgePct    float32 `json:"battery_age_pct"`
	CycleCount       float32 `json:"cycle_count"`
	StateOfChargePct float32 `json:"state_of_charge_pct"`
	TemperatureC     float32 `json:"temperature_c"`
}

// DecodeRecord decodes one record from exactly RecordSize bytes.
func DecodeRecord(p []byte) (Record, error) {
	if len(p) != RecordSize {
		return Record{}, fmt.Errorf("power: record is %d bytes, want %d", len(p), RecordSize)
	}
	f := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(p[i*4 : i*4+4]))
	}
	return Record{
		VoltageV:         f(0),
		AvgVoltageV:      f(1),
		CurrentMA:        f(2),
		AvgCurrentMA:     f(3),
		CapacityMAH:      f(4),
		BatteryAgePct:    f(5),
		CycleCount:       f(6),
		StateOfChargePct: f(7),
		TemperatureC:     f(8),
	}, nil
}

// Consumer accumulates bytes from the inter-board link and emits decoded
// records. The link delivers record-aligned payloads, so any whole
// RecordSize chunk is one record.
type Consumer struct {
	src      io.Reader
	onRecord func(Record, time.Time)

	pending []byte
	scratch []byte

	mu      sync.Mutex
	records uint64
	lastErr string
	lastAt  time.Time
}

type ConsumerSnapshot struct {
	Records     uint64 `json:"records"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

func NewConsumer(src io.Reader, onRecord func(Record, time.Time)) *Consumer {
	return &Consumer{
		src:      src,
		onRecord: onRecord,
		pending:  make([]byte, 0, 2*RecordSize),
		scratch:  make([]byte, 256),
	}
}

// Poll drains whatever the link has buffered and emits every complete record.
func (c *Consumer) Poll(now time.Time) {
	for {
		n, err := c.src.Read(c.scratch)
		if n > 0 {
			c.pending = append(c.pending, c.scratch[:n]...)
		}
		if err != nil || n == 0 {
			break
		}
	}

	for len(c.pending) >= RecordSize {
		rec, err := DecodeRecord(c.pending[:RecordSize])
		c.pending = c.pending[RecordSize:]
		if err != nil {
			c.mu.Lock()
			c.lastErr = err.Error()
			c.mu.Unlock()
			continue
		}
		c.mu.Lock()
		c.records++
		c.lastAt = now
		c.lastErr = ""
		c.mu.Unlock()
		if c.onRecord != nil {
			c.onRecord(rec, now)
		}
	}
	if len(c.pending) == 0 {
		// Reclaim the shifted prefix between records.
		c.pending = make([]byte, 0, 2*RecordSize)
	}
}

func (c *Consumer) Snapshot() ConsumerSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := ConsumerSnapshot{Records: c.records, LastError: c.lastErr}
	if !c.lastAt.IsZero() {
		out.LastSeenUTC = c.lastAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}
