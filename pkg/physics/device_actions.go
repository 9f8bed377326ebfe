package physics

import "sync/atomic"

// pendingDeviceActions accumulates the scenario engine's device-layer
// fault injections (spec §4.3: set_fault_bits, clear_fault_bits,
// flip_status_bits, overspeed_fault, trip_lcl) between physics ticks.
// Several device actions may fire from the comms goroutine before the
// next tick drains them, so bits are merged rather than overwritten.
type pendingDeviceActions struct {
	setBits   uint32
	clearBits uint32
	flipBits  uint32
	overspeed bool
	lclTrip   bool
}

// DeviceActionBox is a spin-locked accumulator satisfying
// scenario.DeviceSink by structural typing (see that interface's doc
// comment). The comms goroutine, where the scenario engine runs, queues
// actions here instead of calling ReferenceModel directly; the physics
// goroutine alone drains and applies them once per tick. Same
// one-writer/one-drainer, bounded-critical-section discipline as
// mailbox.Mailbox, generalized from a single command slot to a merged
// bit accumulator since an event's action bag can set several device
// fields at once.
type DeviceActionBox struct {
	locked  atomic.Bool
	pending pendingDeviceActions
}

func (b *DeviceActionBox) lock() {
	for !b.locked.CompareAndSwap(false, true) {
		// spin; the critical section is a bounded constant-time merge.
	}
}

func (b *DeviceActionBox) unlock() { b.locked.Store(false) }

// SetFaultBits merges bits into the pending set-mask.
func (b *DeviceActionBox) SetFaultBits(bits uint32) {
	b.lock()
	b.pending.setBits |= bits
	b.unlock()
}

// ClearFaultBits merges bits into the pending clear-mask.
func (b *DeviceActionBox) ClearFaultBits(bits uint32) {
	b.lock()
	b.pending.clearBits |= bits
	b.unlock()
}

// FlipStatusBits merges bits into the pending flip-mask via XOR, so two
// flips of the same bit between drains cancel out.
func (b *DeviceActionBox) FlipStatusBits(bits uint32) {
	b.lock()
	b.pending.flipBits ^= bits
	b.unlock()
}

// TriggerOverspeedFault marks the overspeed latch pending.
func (b *DeviceActionBox) TriggerOverspeedFault() {
	b.lock()
	b.pending.overspeed = true
	b.unlock()
}

// TriggerLCLTrip marks the LCL-trip latch pending.
func (b *DeviceActionBox) TriggerLCLTrip() {
	b.lock()
	b.pending.lclTrip = true
	b.unlock()
}

// Drain returns and clears whatever has accumulated since the last
// drain. Called once per tick from the physics goroutine, which is the
// only goroutine allowed to apply the result to a ReferenceModel.
func (b *DeviceActionBox) Drain() (setBits, clearBits, flipBits uint32, overspeed, lclTrip bool) {
	b.lock()
	p := b.pending
	b.pending = pendingDeviceActions{}
	b.unlock()
	return p.setBits, p.clearBits, p.flipBits, p.overspeed, p.lclTrip
}

// Apply drains b and applies the result to model. Only ever called from
// the physics goroutine.
func (b *DeviceActionBox) Apply(model *ReferenceModel) {
	setBits, clearBits, flipBits, overspeed, lclTrip := b.Drain()
	if setBits != 0 {
		model.SetFaultBits(setBits)
	}
	if clearBits != 0 {
		model.ClearFaultBits(clearBits)
	}
	if flipBits != 0 {
		model.FlipStatusBits(flipBits)
	}
	if overspeed {
		model.TriggerOverspeedFault()
	}
	if lclTrip {
		model.TriggerLCLTrip()
	}
}
