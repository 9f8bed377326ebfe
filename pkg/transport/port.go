// Package transport implements the hardware-abstraction-layer adapter
// named as an external collaborator in spec §1: byte-level serial I/O and
// a monotonic microsecond clock. It provides no periodic tick source;
// the physics and comms loops each run their own time.Ticker. Grounded on
// the teacher's pkg/usock.New serial-config pattern, but opened through
// go.bug.st/serial rather than the teacher's actually-imported
// github.com/tarm/serial (see DESIGN.md).
package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Port wraps a serial device with a non-blocking ReadAvailable, required
// by spec §5 so the comms loop never blocks on I/O.
type Port struct {
	port serial.Port
}

// Open configures and opens devicePath at baudRate, 8N1, with a short
// read timeout so Read calls return promptly with whatever bytes are
// available rather than blocking — the comms loop's non-blocking poll
// point (spec §5).
func Open(devicePath string, baudRate int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to open %s: %w", devicePath, err)
	}
	if err := p.SetReadTimeout(time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("transport: failed to set read timeout: %w", err)
	}
	return &Port{port: p}, nil
}

// ReadAvailable reads whatever bytes are currently available into buf,
// returning immediately (bounded by the short timeout set in Open) with
// n == 0 on no data rather than blocking for a full buffer.
func (p *Port) ReadAvailable(buf []byte) (int, error) {
	n, err := p.port.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("transport: read failed: %w", err)
	}
	return n, nil
}

// Write transmits raw bytes, best-effort: a failure bumps error_count at
// the caller (spec §7) but never aborts the comms loop.
func (p *Port) Write(raw []byte) error {
	_, err := p.port.Write(raw)
	if err != nil {
		return fmt.Errorf("transport: write failed: %w", err)
	}
	return nil
}

// Close releases the underlying device.
func (p *Port) Close() error {
	return p.port.Close()
}

// NowMicros is the monotonic microsecond clock named in spec §1's HAL
// interface, derived from the runtime monotonic clock via time.Since.
func NowMicros(epoch time.Time) uint64 {
	return uint64(time.Since(epoch).Microseconds())
}
