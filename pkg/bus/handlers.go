package bus

import (
	"encoding/binary"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/nsrw/wheelhil/pkg/catalog"
	"github.com/nsrw/wheelhil/pkg/mailbox"
	"github.com/nsrw/wheelhil/pkg/physics"
	"github.com/nsrw/wheelhil/pkg/protocol"
	"github.com/nsrw/wheelhil/pkg/telemetry"
)

// mailboxKindFromByte maps the wire-level setpoint-kind byte of an
// APPLICATION_COMMAND payload to a mailbox.Kind.
func mailboxKindFromByte(b byte) (mailbox.Kind, bool) {
	switch b {
	case 0:
		return mailbox.SetMode, true
	case 1:
		return mailbox.SetSpeed, true
	case 2:
		return mailbox.SetCurrent, true
	case 3:
		return mailbox.SetTorque, true
	case 4:
		return mailbox.SetPWM, true
	default:
		return mailbox.None, false
	}
}

func le32(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }

// telemetrySubBlock is the CBOR-encoded payload of an
// APPLICATION_TELEMETRY (0x07) reply; the request's sub-id byte
// (data[0]) is currently ignored since the reference model only exposes
// one coherent block, but is accepted for forward compatibility with a
// real integrator that might expose several.
type telemetrySubBlock struct {
	SpeedRPM    float32 `cbor:"speed_rpm"`
	CurrentA    float32 `cbor:"current_a"`
	TorqueMNm   float32 `cbor:"torque_mNm"`
	PowerW      float32 `cbor:"power_w"`
	BusVoltageV float32 `cbor:"bus_voltage_v"`
	FaultBits   uint32  `cbor:"fault_bits"`
	WarningBits uint32  `cbor:"warning_bits"`
	LatchBits   uint32  `cbor:"latch_bits"`
	TickCount   uint64  `cbor:"tick_count"`
	JitterUs    int32   `cbor:"jitter_us"`
}

// registerHandlers installs every command handler from spec §4.2's
// table into d, closing over the collaborators each needs. Grounded on
// the teacher's HandleUSockMessage decode-route-call shape, now keyed on
// a numeric 5-bit code instead of a CBOR map key.
func registerHandlers(d *protocol.Dispatcher, reg *catalog.Registry, mb *mailbox.Mailbox, limits *physics.LimitsBox, lastSnapshot func() telemetry.Snapshot, nowUsFn func() uint64) {
	d.Register(protocol.CmdPing, func(data []byte) protocol.CommandResult {
		return protocol.CommandResult{Status: protocol.ACK}
	})

	d.Register(protocol.CmdPeek, func(data []byte) protocol.CommandResult {
		if len(data) < 4 {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		id := binary.LittleEndian.Uint32(data[:4])
		f, ok := reg.FindFieldByID(id)
		if !ok {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		val, err := f.Get()
		if err != nil {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		encoded, err := cbor.Marshal(val)
		if err != nil {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		return protocol.CommandResult{Status: protocol.ACK, Data: encoded}
	})

	d.Register(protocol.CmdPoke, func(data []byte) protocol.CommandResult {
		if len(data) < 4 {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		id := binary.LittleEndian.Uint32(data[:4])
		f, ok := reg.FindFieldByID(id)
		if !ok {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		var val string
		if err := cbor.Unmarshal(data[4:], &val); err != nil {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		if err := f.Set(val); err != nil {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		return protocol.CommandResult{Status: protocol.ACK}
	})

	d.Register(protocol.CmdApplicationTelemetry, func(data []byte) protocol.CommandResult {
		snap := lastSnapshot()
		block := telemetrySubBlock{
			SpeedRPM:    snap.SpeedRPM,
			CurrentA:    snap.CurrentA,
			TorqueMNm:   snap.TorqueMNm,
			PowerW:      snap.PowerW,
			BusVoltageV: snap.BusVoltageV,
			FaultBits:   snap.FaultBits,
			WarningBits: snap.WarningBits,
			LatchBits:   snap.LatchBits,
			TickCount:   snap.TickCount,
			JitterUs:    snap.LastTickJitterUs,
		}
		encoded, err := cbor.Marshal(block)
		if err != nil {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		return protocol.CommandResult{Status: protocol.ACK, Data: encoded}
	})

	d.Register(protocol.CmdApplicationCommand, func(data []byte) protocol.CommandResult {
		if len(data) < 9 {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		kind, ok := mailboxKindFromByte(data[0])
		if !ok {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		p1 := le32(data[1:5])
		p2 := le32(data[5:9])
		if !mb.TrySend(kind, p1, p2, nowUsFn()) {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		return protocol.CommandResult{Status: protocol.ACK}
	})

	d.Register(protocol.CmdClearFault, func(data []byte) protocol.CommandResult {
		if !mb.TrySend(mailbox.ClearFault, 0, 0, nowUsFn()) {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		return protocol.CommandResult{Status: protocol.ACK}
	})

	d.Register(protocol.CmdConfigureProtection, func(data []byte) protocol.CommandResult {
		if len(data) < 20 {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		l := physics.ProtectionLimits{
			VoltageV: le32(data[0:4]),
			SpeedRPM: le32(data[4:8]),
			CurrentA: le32(data[8:12]),
			PowerW:   le32(data[12:16]),
			DutyPct:  le32(data[16:20]),
		}
		if !l.InRange() {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		limits.Store(l)
		return protocol.CommandResult{Status: protocol.ACK}
	})

	d.Register(protocol.CmdTripLCL, func(data []byte) protocol.CommandResult {
		if !mb.TrySend(mailbox.TripLCL, 0, 0, nowUsFn()) {
			return protocol.CommandResult{Status: protocol.NACK}
		}
		return protocol.CommandResult{Status: protocol.ACK}
	})
}
