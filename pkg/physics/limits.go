package physics

import "sync/atomic"

// LimitsBox is a wait-free single-slot holder for ProtectionLimits,
// written by the comms context (CONFIGURE_PROTECTION, spec §4.2) and
// read once per tick by the physics context — the same one-writer,
// wait-free-reader shape as the mailbox and telemetry queue, sized for a
// single infrequently-updated value rather than a command or a stream.
type LimitsBox struct {
	v atomic.Pointer[ProtectionLimits]
}

// Store installs new limits, visible to the next physics tick.
func (b *LimitsBox) Store(l ProtectionLimits) {
	b.v.Store(&l)
}

// Load returns the current limits, or the zero value (no limits) if none
// have been configured yet.
func (b *LimitsBox) Load() ProtectionLimits {
	p := b.v.Load()
	if p == nil {
		return ProtectionLimits{}
	}
	return *p
}
