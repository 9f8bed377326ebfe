// Package scenario implements the timed, conditional, durated
// fault-injection timeline described in spec §3/§4.3: a single active
// scenario drives transport/device/physics action slots against a
// snapshot of live wheel telemetry, generalized from the teacher's
// flat Redis-command-string switch in pkg/service/redis_handlers.go into
// a structured, timestamped, conditional action bag.
package scenario

import (
	"sort"

	"github.com/nsrw/wheelhil/pkg/telemetry"
)

// Condition gates an Event behind independently-flagged predicates
// combined by logical AND (spec §3/§4.3). A nil pointer field is a
// wildcard.
type Condition struct {
	ModeIn  *telemetry.Mode
	RPMGt   *float32
	RPMLt   *float32
	CmdCode *int
}

// Holds reports whether c is satisfied by snap and the most recently
// dispatched command code (-1 if none has been dispatched yet).
func (c *Condition) Holds(snap telemetry.Snapshot, lastCmdCode int) bool {
	if c == nil {
		return true
	}
	if c.ModeIn != nil && snap.Mode != *c.ModeIn {
		return false
	}
	if c.RPMGt != nil && !(snap.SpeedRPM > *c.RPMGt) {
		return false
	}
	if c.RPMLt != nil && !(snap.SpeedRPM < *c.RPMLt) {
		return false
	}
	if c.CmdCode != nil && lastCmdCode != *c.CmdCode {
		return false
	}
	return true
}

// Action is a bag of independently-flagged injections (spec §4.3/§6).
// A nil pointer field means "not set".
type Action struct {
	// Transport
	InjectCRCError *bool
	DropFramesPct  *uint32
	DelayReplyMs   *uint32
	ForceNack      *bool

	// Device
	SetFaultBits   *uint32
	ClearFaultBits *uint32
	FlipStatusBits *uint32
	OverspeedFault *bool
	TripLCL        *bool

	// Physics
	LimitPowerW       *float32
	LimitCurrentA     *float32
	LimitSpeedRPM     *float32
	OverrideTorqueMNm *float32
}

// HasTransport / HasDevice / HasPhysics report which of the three active
// slots (spec §4.3) this action occupies.
func (a Action) HasTransport() bool {
	return a.InjectCRCError != nil || a.DropFramesPct != nil || a.DelayReplyMs != nil || a.ForceNack != nil
}

func (a Action) HasDevice() bool {
	return a.SetFaultBits != nil || a.ClearFaultBits != nil || a.FlipStatusBits != nil ||
		a.OverspeedFault != nil || a.TripLCL != nil
}

func (a Action) HasPhysics() bool {
	return a.LimitPowerW != nil || a.LimitCurrentA != nil || a.LimitSpeedRPM != nil || a.OverrideTorqueMNm != nil
}

// Event is one scheduled action on the timeline (spec §3).
type Event struct {
	TMs           uint32
	DurationMs    uint32
	Condition     *Condition
	Action        Action
	Triggered     bool
	TriggerTimeMs uint32
}

// Scenario is a named, ordered timeline of events (spec §3).
type Scenario struct {
	Name        string
	Description string
	Events      []*Event
}

// MaxEvents is the fixed event capacity named in spec §1 Non-goals
// ("the engine has a fixed event capacity").
const MaxEvents = 256

// sortEvents orders events by TMs ascending, ties keeping source order
// (spec §3: "Events are sorted by t_ms at load time; ties keep source
// order"), via a stable sort.
func sortEvents(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].TMs < events[j].TMs })
}
