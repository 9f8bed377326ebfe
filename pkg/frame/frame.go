// Package frame implements the byte-stuffed SLIP-style framing layer
// described in spec §4.1/§6: frames are delimited by END bytes, with END
// and ESC bytes inside the payload escaped. It is reentrant per Decoder
// but carries explicit state and performs no hidden allocation beyond the
// growable internal buffer, matching spec §9's "no heap allocation
// required" note loosely — ports to hosted environments may use growable
// buffers, which is what this Decoder does.
package frame

const (
	END     byte = 0xC0
	ESC     byte = 0xDB
	ESCEnd  byte = 0xDC
	ESCEsc  byte = 0xDD
	maxSize      = 3 + 255 + 2 // dest+src+ctrl + data + crc_lo+crc_hi
)

// state is the three-state decoder described in spec §4.1.
type state int

const (
	stateIdle state = iota
	stateInFrame
	stateEscaped
)

// Decoder is a byte-stuffed frame decoder. Zero value is ready to use.
type Decoder struct {
	st         state
	buf        []byte
	FrameError bool // sticky per spec §4.1/§7; caller clears via ClearError
}

// Feed processes a single received byte. It returns (frame, true) when a
// complete, non-empty frame has just closed. A frame_error is recorded via
// FrameError and the decoder returns to idle without producing a frame.
func (d *Decoder) Feed(b byte) (frame []byte, ok bool) {
	switch d.st {
	case stateIdle:
		if b == END {
			d.st = stateInFrame
			d.buf = d.buf[:0]
		}
		// any other byte outside a frame is ignored
		return nil, false

	case stateInFrame:
		switch b {
		case END:
			if len(d.buf) == 0 {
				// two adjacent ENDs: keep-alive, stay in frame, length reset
				return nil, false
			}
			out := d.buf
			d.buf = nil
			d.st = stateIdle
			return out, true
		case ESC:
			d.st = stateEscaped
			return nil, false
		default:
			d.buf = append(d.buf, b)
			return nil, false
		}

	case stateEscaped:
		switch b {
		case ESCEnd:
			d.buf = append(d.buf, END)
			d.st = stateInFrame
			return nil, false
		case ESCEsc:
			d.buf = append(d.buf, ESC)
			d.st = stateInFrame
			return nil, false
		default:
			// ESCAPE_INVALID, or END_IN_ESCAPE if b == END: either way this
			// aborts the current frame and sets the sticky error flag.
			d.FrameError = true
			d.buf = nil
			d.st = stateIdle
			return nil, false
		}
	}
	return nil, false
}

// ClearError clears the sticky frame_error flag so callers can distinguish
// newly-reported errors from previously-seen ones.
func (d *Decoder) ClearError() { d.FrameError = false }

// Encode returns payload wrapped in END bytes with END/ESC bytes inside the
// payload escaped, ready for transmission.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, END)
	for _, b := range payload {
		switch b {
		case END:
			out = append(out, ESC, ESCEnd)
		case ESC:
			out = append(out, ESC, ESCEsc)
		default:
			out = append(out, b)
		}
	}
	out = append(out, END)
	return out
}
