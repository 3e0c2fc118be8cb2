package venus

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

// PortOpener opens a local serial device with tarm/serial. The read timeout
// keeps reads from blocking the poll loop; on Linux, timeouts under 100 ms
// make reads return immediately with whatever is buffered.
type PortOpener struct {
	Device      string
	ReadTimeout time.Duration
}

func (o PortOpener) Open(baud int) (io.ReadWriteCloser, error) {
	rt := o.ReadTimeout
	if rt <= 0 {
		rt = 5 * time.Millisecond
	}
	return serial.OpenPort(&serial.Config{Name: o.Device, Baud: baud, ReadTimeout: rt})
}

// OpenPort opens a serial device at a fixed, known rate (correction and
// telemetry links, which don't need detection).
func OpenPort(device string, baud int) (io.ReadWriteCloser, error) {
	return PortOpener{Device: device}.Open(baud)
}
