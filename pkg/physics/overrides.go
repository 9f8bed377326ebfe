package physics

import "sync/atomic"

// ScenarioOverrides mirrors the scenario engine's physics action slot
// (spec §4.3: limit_power_w, limit_current_a, limit_speed_rpm,
// override_torque_mNm). A zero value means "no override", matching
// ReferenceModel's own "0 == not overridden" convention for its
// OverrideLimit* fields.
type ScenarioOverrides struct {
	LimitPowerW       float32
	LimitCurrentA     float32
	LimitSpeedRPM     float32
	OverrideTorqueMNm *float32
}

// OverridesBox is a wait-free single-slot holder for ScenarioOverrides,
// written by the comms context once per Step (from the scenario engine's
// live physics slot) and read once per tick by the physics context — the
// same single-slot, atomic-pointer-swap shape as LimitsBox, since like
// CONFIGURE_PROTECTION's thresholds a scenario physics override is a
// whole-value replacement rather than an accumulating stream of actions.
type OverridesBox struct {
	v atomic.Pointer[ScenarioOverrides]
}

// Store installs new overrides, visible to the next physics tick.
func (b *OverridesBox) Store(o ScenarioOverrides) {
	b.v.Store(&o)
}

// Load returns the current overrides, or the zero value (no overrides)
// if none have been set yet.
func (b *OverridesBox) Load() ScenarioOverrides {
	p := b.v.Load()
	if p == nil {
		return ScenarioOverrides{}
	}
	return *p
}
