package scenario

import (
	"fmt"

	"github.com/nsrw/wheelhil/pkg/telemetry"
)

// ActivationState is one of the three states named in spec §4.3.
type ActivationState int

const (
	StateEmpty ActivationState = iota
	StateLoaded
	StateActive
)

func (s ActivationState) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateLoaded:
		return "LOADED"
	case StateActive:
		return "ACTIVE"
	default:
		return "?"
	}
}

// TransportSlot is the currently active transport-layer injection, per
// spec §4.3. Zero value means "no injection".
type TransportSlot struct {
	InjectCRCError bool
	DropFramesPct  uint32
	DelayReplyMs   uint32
	ForceNack      bool
}

// PhysicsSlot is the currently active physics-layer override.
type PhysicsSlot struct {
	LimitPowerW       float32
	LimitCurrentA     float32
	LimitSpeedRPM     float32
	OverrideTorqueMNm *float32
}

// DeviceSink receives the device-layer actions of spec §4.3, satisfied
// by *physics.ReferenceModel without either package importing the other.
type DeviceSink interface {
	SetFaultBits(bits uint32)
	ClearFaultBits(bits uint32)
	FlipStatusBits(bits uint32)
	TriggerOverspeedFault()
	TriggerLCLTrip()
}

// Engine holds the single active scenario and its three action slots
// (spec §4.3: "one of three active-action slots (transport, device,
// physics)").
type Engine struct {
	scenario *Scenario
	state    ActivationState
	t0Ms     uint64

	triggeredCount int

	transport      TransportSlot
	transportOn    bool
	transportEndMs uint64

	physics      PhysicsSlot
	physicsOn    bool
	physicsEndMs uint64
}

// NewEngine returns an engine with no scenario loaded.
func NewEngine() *Engine { return &Engine{} }

// State reports the current activation state.
func (e *Engine) State() ActivationState { return e.state }

// TriggeredCount reports how many events have fired since the scenario
// was last activated.
func (e *Engine) TriggeredCount() int { return e.triggeredCount }

// Load installs s as the loaded-but-inactive scenario, sorting its
// events by TMs (spec §3) and resetting any prior state (spec §4.3:
// "load -> LOADED (resets any prior state; LOADED->LOADED allowed and
// replaces)").
func (e *Engine) Load(s *Scenario) error {
	if s == nil {
		return fmt.Errorf("scenario: nil scenario")
	}
	if len(s.Events) > MaxEvents {
		return fmt.Errorf("scenario: %d events exceeds capacity %d", len(s.Events), MaxEvents)
	}
	sortEvents(s.Events)
	e.scenario = s
	e.state = StateLoaded
	e.t0Ms = 0
	e.triggeredCount = 0
	e.clearSlots()
	return nil
}

// Activate resets triggered flags and action slots and sets T0 = nowMs
// (spec §4.3). Reactivating from ACTIVE first deactivates.
func (e *Engine) Activate(nowMs uint64) error {
	if e.state == StateEmpty {
		return fmt.Errorf("scenario: no scenario loaded")
	}
	if e.state == StateActive {
		e.Deactivate()
	}
	for _, ev := range e.scenario.Events {
		ev.Triggered = false
		ev.TriggerTimeMs = 0
	}
	e.triggeredCount = 0
	e.clearSlots()
	e.t0Ms = nowMs
	e.state = StateActive
	return nil
}

// Deactivate clears the action slots and returns to LOADED.
func (e *Engine) Deactivate() {
	if e.state != StateActive {
		return
	}
	e.clearSlots()
	e.state = StateLoaded
}

func (e *Engine) clearSlots() {
	e.transport = TransportSlot{}
	e.transportOn = false
	e.transportEndMs = 0
	e.physics = PhysicsSlot{}
	e.physicsOn = false
	e.physicsEndMs = 0
}

// TransportSlot returns the currently active transport injection, if
// any.
func (e *Engine) TransportSlot() (TransportSlot, bool) { return e.transport, e.transportOn }

// PhysicsSlot returns the currently active physics override, if any.
func (e *Engine) PhysicsSlot() (PhysicsSlot, bool) { return e.physics, e.physicsOn }

// Update advances the timeline to nowMs: expires slots past their
// duration, then evaluates every untriggered event whose time gate has
// passed against snap/lastCmdCode, applying and marking any that fire
// (spec §4.3). Conditions are evaluated against the last published
// snapshot, never in-flight state, breaking the cycle spec §9 describes.
func (e *Engine) Update(nowMs uint64, snap telemetry.Snapshot, lastCmdCode int, device DeviceSink) {
	if e.state != StateActive {
		return
	}

	if e.transportOn && e.transportEndMs != 0 && nowMs >= e.transportEndMs {
		e.transport = TransportSlot{}
		e.transportOn = false
		e.transportEndMs = 0
	}
	if e.physicsOn && e.physicsEndMs != 0 && nowMs >= e.physicsEndMs {
		e.physics = PhysicsSlot{}
		e.physicsOn = false
		e.physicsEndMs = 0
	}

	elapsed := nowMs - e.t0Ms
	for _, ev := range e.scenario.Events {
		if ev.Triggered {
			continue
		}
		if elapsed < uint64(ev.TMs) {
			continue
		}
		if !ev.Condition.Holds(snap, lastCmdCode) {
			continue
		}
		ev.Triggered = true
		ev.TriggerTimeMs = uint32(nowMs)
		e.triggeredCount++
		e.applyAction(ev, nowMs, device)
	}
}

func (e *Engine) applyAction(ev *Event, nowMs uint64, device DeviceSink) {
	a := ev.Action

	if a.HasTransport() {
		slot := TransportSlot{}
		if a.InjectCRCError != nil {
			slot.InjectCRCError = *a.InjectCRCError
		}
		if a.DropFramesPct != nil {
			slot.DropFramesPct = *a.DropFramesPct
		}
		if a.DelayReplyMs != nil {
			slot.DelayReplyMs = *a.DelayReplyMs
		}
		if a.ForceNack != nil {
			slot.ForceNack = *a.ForceNack
		}
		e.transport = slot
		e.transportOn = true
		if ev.DurationMs > 0 {
			e.transportEndMs = nowMs + uint64(ev.DurationMs)
		} else {
			e.transportEndMs = 0
		}
	}

	if a.HasPhysics() {
		slot := PhysicsSlot{}
		if a.LimitPowerW != nil {
			slot.LimitPowerW = *a.LimitPowerW
		}
		if a.LimitCurrentA != nil {
			slot.LimitCurrentA = *a.LimitCurrentA
		}
		if a.LimitSpeedRPM != nil {
			slot.LimitSpeedRPM = *a.LimitSpeedRPM
		}
		slot.OverrideTorqueMNm = a.OverrideTorqueMNm
		e.physics = slot
		e.physicsOn = true
		if ev.DurationMs > 0 {
			e.physicsEndMs = nowMs + uint64(ev.DurationMs)
		} else {
			e.physicsEndMs = 0
		}
	}

	// Device actions are applied once, at trigger time, regardless of
	// duration (spec §4.3: "instant fault triggers are applied once at
	// trigger time regardless of slot").
	if device == nil {
		return
	}
	if a.SetFaultBits != nil {
		device.SetFaultBits(*a.SetFaultBits)
	}
	if a.ClearFaultBits != nil {
		device.ClearFaultBits(*a.ClearFaultBits)
	}
	if a.FlipStatusBits != nil {
		device.FlipStatusBits(*a.FlipStatusBits)
	}
	if a.OverspeedFault != nil && *a.OverspeedFault {
		device.TriggerOverspeedFault()
	}
	if a.TripLCL != nil && *a.TripLCL {
		device.TriggerLCLTrip()
	}
}
