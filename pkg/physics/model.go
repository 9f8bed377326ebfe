// Package physics implements the tick-function adapter shim named in
// spec §1/§3 plus a deliberately simple ReferenceModel so this repository
// is runnable and testable end-to-end. The real wheel integrator is an
// external collaborator per §1 Non-goals; ReferenceModel stands in for
// it, satisfying the same TickFunc contract a real model would.
package physics

import "github.com/nsrw/wheelhil/pkg/telemetry"

// Fault and warning bit assignments, consulted by the scenario engine's
// device actions (set_fault_bits/clear_fault_bits/overspeed_fault/
// trip_lcl, spec §4.3) and exposed read-only through the catalog.
const (
	FaultOverspeed uint32 = 1 << iota
	FaultLCLTrip
	FaultOvercurrent
	FaultOvervoltage
	FaultOverpower
)

// ProtectionLimits holds the thresholds CONFIGURE_PROTECTION (0x0A)
// updates, consulted by ReferenceModel.Step to synthesize latched
// faults. Zero means "no limit" for a given field.
type ProtectionLimits struct {
	VoltageV float32
	SpeedRPM float32
	CurrentA float32
	PowerW   float32
	DutyPct  float32
}

// InRange reports whether l is a plausible set of thresholds, the
// validation CONFIGURE_PROTECTION's NACK path performs (spec §4.2).
func (l ProtectionLimits) InRange() bool {
	if l.VoltageV < 0 || l.SpeedRPM < 0 || l.CurrentA < 0 || l.PowerW < 0 {
		return false
	}
	if l.DutyPct < 0 || l.DutyPct > 100 {
		return false
	}
	return true
}

// ReferenceModel is a first-order speed/current integrator: it chases a
// commanded setpoint with a fixed time constant and derives torque and
// power from the resulting speed/current against a fixed 28 V bus,
// synthesizing the wheel's momentum from its moment of inertia. It is a stand-in for
// the real physics integrator named in spec §1 as an external
// collaborator, not a faithful reaction-wheel simulation.
type ReferenceModel struct {
	Mode       telemetry.Mode
	SetpointA  float32 // commanded value in the unit implied by Mode
	SpeedRPM   float32
	CurrentA   float32
	MomentInertiaKgM2 float32

	Limits ProtectionLimits

	FaultBits   uint32
	WarningBits uint32
	LatchBits   uint32

	// Injected limits from scenario physics actions (spec §4.3);
	// 0 means "not overridden".
	OverrideLimitPowerW   float32
	OverrideLimitCurrentA float32
	OverrideLimitSpeedRPM float32
	OverrideTorqueMNm     *float32

	tickCount uint64
}

const timeConstantS = 0.25

// NewReferenceModel returns a model with a plausible small-wheel moment
// of inertia and CURRENT mode at rest.
func NewReferenceModel() *ReferenceModel {
	return &ReferenceModel{
		Mode:              telemetry.ModeCurrent,
		MomentInertiaKgM2: 0.004,
	}
}

// ApplyMailboxCommand updates the setpoint/mode from a dispatched
// mailbox command kind, mirroring the SET_MODE/SET_SPEED/SET_CURRENT/
// SET_TORQUE/SET_PWM/CLEAR_FAULT/RESET kinds of spec §3.
func (m *ReferenceModel) ApplyMailboxCommand(kindName string, p1, p2 float32) {
	switch kindName {
	case "SET_MODE":
		if p1 >= 0 && p1 <= float32(telemetry.ModePWM) {
			m.Mode = telemetry.Mode(p1)
		}
	case "SET_SPEED":
		m.Mode = telemetry.ModeSpeed
		m.SetpointA = p1
	case "SET_CURRENT":
		m.Mode = telemetry.ModeCurrent
		m.SetpointA = p1
	case "SET_TORQUE":
		m.Mode = telemetry.ModeTorque
		m.SetpointA = p1
	case "SET_PWM":
		m.Mode = telemetry.ModePWM
		m.SetpointA = p1
	case "CLEAR_FAULT":
		m.FaultBits = 0
		m.LatchBits = 0
	case "TRIP_LCL":
		m.TriggerLCLTrip()
	case "RESET":
		*m = *NewReferenceModel()
	}
}

// Step advances the model by dtS seconds and returns a coherent
// Snapshot, satisfying the TickFunc contract.
func (m *ReferenceModel) Step(dtS float32, nowUs uint64, jitterUs int32) telemetry.Snapshot {
	alpha := dtS / (timeConstantS + dtS)
	switch m.Mode {
	case telemetry.ModeSpeed:
		m.SpeedRPM += (m.SetpointA - m.SpeedRPM) * alpha
		m.CurrentA += (m.SpeedRPM/1000 - m.CurrentA) * alpha
	default:
		m.CurrentA += (m.SetpointA - m.CurrentA) * alpha
		m.SpeedRPM += (m.CurrentA*1000 - m.SpeedRPM) * alpha
	}

	if limit := m.OverrideLimitSpeedRPM; limit > 0 && m.SpeedRPM > limit {
		m.SpeedRPM = limit
	}
	if limit := m.OverrideLimitCurrentA; limit > 0 && m.CurrentA > limit {
		m.CurrentA = limit
	}

	torqueMNm := m.CurrentA * 26.5 // notional Kt in mN·m/A
	if m.OverrideTorqueMNm != nil {
		torqueMNm = *m.OverrideTorqueMNm
	}

	const busVoltageV = 28.0
	powerW := m.CurrentA * busVoltageV
	if limit := m.OverrideLimitPowerW; limit > 0 && powerW > limit {
		powerW = limit
		m.CurrentA = powerW / busVoltageV
	}

	angularVelocity := m.SpeedRPM * 2 * 3.14159265 / 60
	momentum := angularVelocity * m.MomentInertiaKgM2 * 1000

	m.evaluateProtection(busVoltageV, powerW)

	dir := telemetry.DirStopped
	switch {
	case m.SpeedRPM > 0.5:
		dir = telemetry.DirForward
	case m.SpeedRPM < -0.5:
		dir = telemetry.DirReverse
	}

	m.tickCount++
	return telemetry.Snapshot{
		AngularVelocityRadS: angularVelocity,
		SpeedRPM:            m.SpeedRPM,
		MomentumMNms:        momentum,
		CurrentA:            m.CurrentA,
		TorqueMNm:           torqueMNm,
		PowerW:              powerW,
		BusVoltageV:         busVoltageV,
		Mode:                m.Mode,
		Direction:           dir,
		FaultBits:           m.FaultBits,
		WarningBits:         m.WarningBits,
		LatchBits:           m.LatchBits,
		TickCount:           m.tickCount,
		LastTickJitterUs:    jitterUs,
		TimestampUs:         nowUs,
	}
}

func (m *ReferenceModel) evaluateProtection(busVoltageV, powerW float32) {
	if m.Limits.SpeedRPM > 0 && m.SpeedRPM > m.Limits.SpeedRPM {
		m.FaultBits |= FaultOverspeed
		m.LatchBits |= FaultOverspeed
	}
	if m.Limits.CurrentA > 0 && m.CurrentA > m.Limits.CurrentA {
		m.FaultBits |= FaultOvercurrent
		m.LatchBits |= FaultOvercurrent
	}
	if m.Limits.VoltageV > 0 && busVoltageV > m.Limits.VoltageV {
		m.FaultBits |= FaultOvervoltage
		m.LatchBits |= FaultOvervoltage
	}
	if m.Limits.PowerW > 0 && powerW > m.Limits.PowerW {
		m.FaultBits |= FaultOverpower
		m.LatchBits |= FaultOverpower
	}
}

// TriggerOverspeedFault latches the overspeed condition unconditionally,
// for the scenario engine's overspeed_fault device action (spec §4.3).
func (m *ReferenceModel) TriggerOverspeedFault() {
	m.FaultBits |= FaultOverspeed
	m.LatchBits |= FaultOverspeed
}

// TriggerLCLTrip latches the LCL-trip condition, for the scenario
// engine's trip_lcl device action and the TRIP_LCL (0x0B) command.
func (m *ReferenceModel) TriggerLCLTrip() {
	m.FaultBits |= FaultLCLTrip
	m.LatchBits |= FaultLCLTrip
}

// SetFaultBits / ClearFaultBits / FlipStatusBits implement the scenario
// engine's corresponding device actions (spec §4.3) directly on the
// fault/status words.
func (m *ReferenceModel) SetFaultBits(bits uint32)   { m.FaultBits |= bits }
func (m *ReferenceModel) ClearFaultBits(bits uint32) { m.FaultBits &^= bits }
func (m *ReferenceModel) FlipStatusBits(bits uint32) { m.WarningBits ^= bits }
