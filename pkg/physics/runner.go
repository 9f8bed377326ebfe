package physics

import (
	"context"
	"time"

	"github.com/nsrw/wheelhil/pkg/mailbox"
	"github.com/nsrw/wheelhil/pkg/telemetry"
)

// TickFunc is the black-box adapter contract named in spec §1/§3: given
// the elapsed time since the last tick, the current time, and the tick's
// jitter, produce a coherent telemetry snapshot. Pending commands reach
// the model separately, through ApplyMailboxCommand. ReferenceModel.Step satisfies
// it; a real integrator would too.
type TickFunc func(dtS float32, nowUs uint64, jitterUs int32) telemetry.Snapshot

// Runner drives a TickFunc at a fixed period from its own goroutine,
// standing in for the physics execution context of spec §2/§5: it reads
// at most one pending command per tick, never blocks beyond its ticker
// wait, and publishes to the telemetry queue wait-free.
type Runner struct {
	mb            *mailbox.Mailbox
	queue         *telemetry.Queue
	model         *ReferenceModel
	limits        *LimitsBox
	overrides     *OverridesBox
	deviceActions *DeviceActionBox
	period        time.Duration
	nowUs         func() uint64

	maxJitterUs int32
}

// NewRunner wires a mailbox, a telemetry queue, and a reference model
// into a runner ticking at period (cmd/wheelhil passes 10 ms, 100 Hz).
// nowUs supplies a monotonic microsecond
// clock; tests may inject a fake one. limits may be nil, in which case
// CONFIGURE_PROTECTION thresholds are never consulted; overrides/
// deviceActions may be nil, in which case the scenario engine's physics-
// and device-layer fault injections are never consulted.
func NewRunner(mb *mailbox.Mailbox, q *telemetry.Queue, model *ReferenceModel, limits *LimitsBox, overrides *OverridesBox, deviceActions *DeviceActionBox, period time.Duration, nowUs func() uint64) *Runner {
	return &Runner{mb: mb, queue: q, model: model, limits: limits, overrides: overrides, deviceActions: deviceActions, period: period, nowUs: nowUs}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func mailboxKindName(k mailbox.Kind) string {
	switch k {
	case mailbox.SetMode:
		return "SET_MODE"
	case mailbox.SetSpeed:
		return "SET_SPEED"
	case mailbox.SetCurrent:
		return "SET_CURRENT"
	case mailbox.SetTorque:
		return "SET_TORQUE"
	case mailbox.SetPWM:
		return "SET_PWM"
	case mailbox.ClearFault:
		return "CLEAR_FAULT"
	case mailbox.Reset:
		return "RESET"
	case mailbox.TripLCL:
		return "TRIP_LCL"
	default:
		return ""
	}
}

// Run blocks until ctx is canceled, ticking the model at r.period. Never
// blocks beyond the ticker wait (spec §5): mailbox reads and queue
// publishes are both wait-free.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	periodUs := int32(r.period.Microseconds())
	lastUs := r.nowUs()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := r.nowUs()
			jitter := int32(now-lastUs) - periodUs
			lastUs = now
			if abs32(jitter) > r.maxJitterUs {
				r.maxJitterUs = abs32(jitter)
			}

			if cmd, ok := r.mb.TryRead(); ok {
				r.model.ApplyMailboxCommand(mailboxKindName(cmd.Kind), cmd.P1, cmd.P2)
			}
			if r.limits != nil {
				r.model.Limits = r.limits.Load()
			}
			if r.deviceActions != nil {
				r.deviceActions.Apply(r.model)
			}
			if r.overrides != nil {
				ov := r.overrides.Load()
				r.model.OverrideLimitPowerW = ov.LimitPowerW
				r.model.OverrideLimitCurrentA = ov.LimitCurrentA
				r.model.OverrideLimitSpeedRPM = ov.LimitSpeedRPM
				r.model.OverrideTorqueMNm = ov.OverrideTorqueMNm
			}

			snap := r.model.Step(float32(r.period.Seconds()), now, jitter)
			snap.MaxJitterUs = r.maxJitterUs
			r.queue.Publish(snap)
		}
	}
}
