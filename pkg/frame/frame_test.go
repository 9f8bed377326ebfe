package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, d *Decoder, encoded []byte) [][]byte {
	t.Helper()
	var frames [][]byte
	for _, b := range encoded {
		if f, ok := d.Feed(b); ok {
			cp := make([]byte, len(f))
			copy(cp, f)
			frames = append(frames, cp)
		}
	}
	return frames
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x01},
		{0x01, 0x00, 0x80},
		{END, ESC, 0x00, END, ESC},
		make([]byte, 255),
	}
	for i := range payloads[4] {
		payloads[4][i] = byte(i)
	}

	for _, p := range payloads {
		enc := Encode(p)
		var d Decoder
		frames := decodeAll(t, &d, enc)
		if len(p) == 0 {
			// An empty payload between two ENDs is a keep-alive: no frame.
			assert.Empty(t, frames)
			continue
		}
		require.Len(t, frames, 1)
		assert.Equal(t, p, frames[0])
		assert.False(t, d.FrameError)
	}
}

func TestDecoderNoStateLeakBetweenFrames(t *testing.T) {
	var d Decoder
	enc1 := Encode([]byte{0x01, 0x02, 0x03})
	enc2 := Encode([]byte{0xAA, 0xBB})
	frames := decodeAll(t, &d, append(enc1, enc2...))
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, frames[0])
	assert.Equal(t, []byte{0xAA, 0xBB}, frames[1])
}

func TestStrayEndBeforeFrameStillDecodes(t *testing.T) {
	var d Decoder
	// Simulate noise: a stray END outside a frame opens a frame in the idle
	// state, and the good frame's own leading END then reads as a
	// keep-alive, so the good frame still decodes intact.
	good := Encode([]byte{0x01, 0x02, 0x03})

	stream := append([]byte{END}, good...)
	frames := decodeAll(t, &d, stream)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, frames[0])
}

func TestInvalidEscapeSetsFrameErrorAndRecovers(t *testing.T) {
	var d Decoder
	bad := []byte{END, 0x01, ESC, 0x55, END} // ESC followed by invalid byte
	frames := decodeAll(t, &d, bad)
	assert.Empty(t, frames)
	assert.True(t, d.FrameError)

	d.ClearError()
	good := Encode([]byte{0x09, 0x08})
	frames = decodeAll(t, &d, good)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x09, 0x08}, frames[0])
}

func TestTwoConsecutiveEndsProduceNoFrame(t *testing.T) {
	var d Decoder
	frames := decodeAll(t, &d, []byte{END, END, END})
	assert.Empty(t, frames)
}

func TestChecksumVerify(t *testing.T) {
	data := []byte{0x01, 0x00, 0x80}
	var frame []byte
	frame = append(frame, data...)
	frame = AppendChecksum(frame, data)
	assert.True(t, Verify(frame))

	for bit := 0; bit < len(frame)*8; bit++ {
		corrupted := append([]byte(nil), frame...)
		corrupted[bit/8] ^= 1 << uint(bit%8)
		assert.False(t, Verify(corrupted), "single-bit flip at bit %d should fail verification", bit)
	}
}

func TestChecksumDeterministic(t *testing.T) {
	data := []byte{0x01, 0x00, 0x80}
	assert.Equal(t, Checksum(data), Checksum(append([]byte(nil), data...)))
}
