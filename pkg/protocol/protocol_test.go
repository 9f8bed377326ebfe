package protocol

import (
	"testing"

	"github.com/nsrw/wheelhil/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConcreteVectorFromSpec(t *testing.T) {
	data := []byte{0x01, 0x00, 0x80}
	crc := frame.Checksum(data)
	raw := append(append([]byte{}, data...), byte(crc&0xFF), byte(crc>>8))

	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(1), p.Dest)
	assert.Equal(t, byte(0), p.Src)
	assert.Equal(t, ControlByte(0x80), p.Ctrl)
	assert.Empty(t, p.Data)
	assert.True(t, p.Ctrl.Poll())
}

func TestParseTooShort(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, ErrTooShort, err.(*ParseError).Code)
}

func TestParseBadLength(t *testing.T) {
	_, err := Parse(make([]byte, 3+MaxData+2+1))
	require.Error(t, err)
	assert.Equal(t, ErrBadLen, err.(*ParseError).Code)
}

func TestParseBadCRCReturnsBadCRCCode(t *testing.T) {
	stats := NewStats()
	raw := Encode(Packet{Dest: 1, Src: 2, Ctrl: MakeControl(true, false, false, CmdPing)})
	raw[len(raw)-1] ^= 0xFF // corrupt one CRC byte

	_, err := Parse(raw)
	require.Error(t, err)
	assert.Equal(t, ErrBadCRC, err.(*ParseError).Code)
	// Parse carries no counters; the caller counts the rejection.
	stats.ParseErrors.Add(1)
	assert.Equal(t, uint32(1), stats.ParseErrors.Load())
}

func TestParseNullPtr(t *testing.T) {
	_, err := Parse(nil)
	require.Error(t, err)
	assert.Equal(t, ErrNullPtr, err.(*ParseError).Code)
}

func TestEncodeParseRoundTrip(t *testing.T) {
	p := Packet{Dest: 3, Src: 4, Ctrl: MakeControl(true, true, false, CmdPoke), Data: []byte{0xAA, 0xBB}}
	raw := Encode(p)
	got, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, p.Dest, got.Dest)
	assert.Equal(t, p.Src, got.Src)
	assert.Equal(t, p.Ctrl, got.Ctrl)
	assert.Equal(t, p.Data, got.Data)
}

func TestAccepted(t *testing.T) {
	assert.True(t, Accepted(2, 2))
	assert.True(t, Accepted(Broadcast, 2))
	assert.False(t, Accepted(3, 2))
}

func TestPingReplyVectorFromSpec(t *testing.T) {
	// "PING (ctrl=0x80, addr 1->2) yields a reply dest=1, src=2, ctrl=0x00|A, no data".
	req := Packet{Dest: 2, Src: 1, Ctrl: ControlByte(0x80)}
	require.True(t, ShouldReply(req))

	reply := BuildReply(req, 2, CommandResult{Status: ACK})
	assert.Equal(t, byte(1), reply.Dest)
	assert.Equal(t, byte(2), reply.Src)
	assert.False(t, reply.Ctrl.Poll())
	assert.True(t, reply.Ctrl.A())
	assert.Equal(t, CmdPing, reply.Ctrl.Command())
	assert.Empty(t, reply.Data)

	raw := Encode(reply)
	back, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, reply.Dest, back.Dest)
	assert.Equal(t, reply.Src, back.Src)
	assert.Equal(t, reply.Ctrl, back.Ctrl)
	assert.Equal(t, reply.Data, back.Data)
}

func TestShouldReplySuppressedWhenPollClear(t *testing.T) {
	req := Packet{Dest: 2, Src: 1, Ctrl: ControlByte(0x00)}
	assert.False(t, ShouldReply(req))
}

func TestDispatcherUnknownCodeReturnsFalse(t *testing.T) {
	d := NewDispatcher()
	d.Register(CmdPing, func(data []byte) CommandResult { return CommandResult{Status: ACK} })

	_, ok := d.Dispatch(0x1F, nil)
	assert.False(t, ok, "unknown/unregistered code must not dispatch")
}

func TestDispatcherRegisterAndDispatch(t *testing.T) {
	d := NewDispatcher()
	d.Register(CmdPeek, func(data []byte) CommandResult {
		if len(data) == 0 {
			return CommandResult{Status: NACK}
		}
		return CommandResult{Status: ACK, Data: []byte{0x42}}
	})

	res, ok := d.Dispatch(CmdPeek, []byte{0x01})
	require.True(t, ok)
	assert.Equal(t, ACK, res.Status)
	assert.Equal(t, []byte{0x42}, res.Data)

	res, ok = d.Dispatch(CmdPeek, nil)
	require.True(t, ok)
	assert.Equal(t, NACK, res.Status)
}

func TestDispatcherRegisterOutOfRangePanics(t *testing.T) {
	d := NewDispatcher()
	assert.Panics(t, func() { d.Register(32, func([]byte) CommandResult { return CommandResult{} }) })
	assert.Panics(t, func() { d.Register(-1, func([]byte) CommandResult { return CommandResult{} }) })
}
