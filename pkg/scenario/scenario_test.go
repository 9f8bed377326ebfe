package scenario

import (
	"testing"

	"github.com/nsrw/wheelhil/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	faultsSet     uint32
	faultsCleared uint32
	statusFlipped uint32
	overspeed     bool
	lclTrip       bool
}

func (d *fakeDevice) SetFaultBits(bits uint32)   { d.faultsSet |= bits }
func (d *fakeDevice) ClearFaultBits(bits uint32) { d.faultsCleared |= bits }
func (d *fakeDevice) FlipStatusBits(bits uint32) { d.statusFlipped ^= bits }
func (d *fakeDevice) TriggerOverspeedFault()     { d.overspeed = true }
func (d *fakeDevice) TriggerLCLTrip()            { d.lclTrip = true }

func u32p(v uint32) *uint32   { return &v }
func f32p(v float32) *float32 { return &v }
func boolp(v bool) *bool      { return &v }

func TestLoadSortsEventsByTMs(t *testing.T) {
	s := &Scenario{Name: "reorder", Events: []*Event{
		{TMs: 5000}, {TMs: 2000}, {TMs: 3000},
	}}
	e := NewEngine()
	require.NoError(t, e.Load(s))

	var got []uint32
	for _, ev := range s.Events {
		got = append(got, ev.TMs)
	}
	assert.Equal(t, []uint32{2000, 3000, 5000}, got)
}

func TestEngineRejectsOverCapacity(t *testing.T) {
	events := make([]*Event, MaxEvents+1)
	for i := range events {
		events[i] = &Event{}
	}
	e := NewEngine()
	err := e.Load(&Scenario{Name: "too-big", Events: events})
	assert.Error(t, err)
}

func TestTransportSlotTimeline(t *testing.T) {
	s := &Scenario{Name: "timeline", Events: []*Event{
		{TMs: 1000, Action: Action{InjectCRCError: boolp(true)}},
		{TMs: 2000, DurationMs: 1000, Action: Action{DropFramesPct: u32p(50)}},
	}}
	e := NewEngine()
	require.NoError(t, e.Load(s))
	require.NoError(t, e.Activate(0))

	dev := &fakeDevice{}
	snap := telemetry.Snapshot{}

	e.Update(500, snap, -1, dev)
	_, active := e.TransportSlot()
	assert.False(t, active, "nothing should be active before t=1000")

	e.Update(1500, snap, -1, dev)
	slot, active := e.TransportSlot()
	require.True(t, active)
	assert.True(t, slot.InjectCRCError)

	e.Update(2500, snap, -1, dev)
	slot, active = e.TransportSlot()
	require.True(t, active)
	assert.Equal(t, uint32(50), slot.DropFramesPct)

	e.Update(3500, snap, -1, dev)
	_, active = e.TransportSlot()
	assert.False(t, active, "slot should be cleared after duration elapses")
}

func TestDeactivateDuringActiveDurationCancelsSlot(t *testing.T) {
	s := &Scenario{Name: "cancel", Events: []*Event{
		{TMs: 0, DurationMs: 10000, Action: Action{DropFramesPct: u32p(100)}},
	}}
	e := NewEngine()
	require.NoError(t, e.Load(s))
	require.NoError(t, e.Activate(0))

	e.Update(100, telemetry.Snapshot{}, -1, nil)
	_, active := e.TransportSlot()
	require.True(t, active)

	e.Deactivate()
	_, active = e.TransportSlot()
	assert.False(t, active)
}

func TestOverspeedFaultTriggeredOnceAndCounted(t *testing.T) {
	s := &Scenario{Name: "overspeed", Events: []*Event{
		{TMs: 5000, Action: Action{OverspeedFault: boolp(true)}},
	}}
	e := NewEngine()
	require.NoError(t, e.Load(s))
	require.NoError(t, e.Activate(0))

	dev := &fakeDevice{}
	e.Update(4999, telemetry.Snapshot{}, -1, dev)
	assert.False(t, dev.overspeed)
	assert.Equal(t, 0, e.TriggeredCount())

	e.Update(5000, telemetry.Snapshot{}, -1, dev)
	assert.True(t, dev.overspeed)
	assert.Equal(t, 1, e.TriggeredCount())

	e.Update(6000, telemetry.Snapshot{}, -1, dev)
	assert.Equal(t, 1, e.TriggeredCount(), "already-triggered events never re-fire")
}

func TestConditionGatesEventUntilSatisfied(t *testing.T) {
	mode := telemetry.ModeSpeed
	s := &Scenario{Name: "cond", Events: []*Event{
		{TMs: 0, Condition: &Condition{ModeIn: &mode}, Action: Action{TripLCL: boolp(true)}},
	}}
	e := NewEngine()
	require.NoError(t, e.Load(s))
	require.NoError(t, e.Activate(0))

	dev := &fakeDevice{}
	e.Update(100, telemetry.Snapshot{Mode: telemetry.ModeCurrent}, -1, dev)
	assert.False(t, dev.lclTrip, "condition not yet satisfied")

	e.Update(200, telemetry.Snapshot{Mode: telemetry.ModeSpeed}, -1, dev)
	assert.True(t, dev.lclTrip)
}

func TestActivationStateMachine(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, StateEmpty, e.State())

	require.NoError(t, e.Load(&Scenario{Name: "sm"}))
	assert.Equal(t, StateLoaded, e.State())

	require.NoError(t, e.Activate(0))
	assert.Equal(t, StateActive, e.State())

	e.Deactivate()
	assert.Equal(t, StateLoaded, e.State())
}

func TestLoadJSONParsesScheduleAndRejectsMissingFields(t *testing.T) {
	doc := []byte(`{
		"name": "Frame Drop 50%",
		"schedule": [
			{"t_ms": 2000, "duration_ms": 1000, "action": {"drop_frames_pct": 50}}
		]
	}`)
	s, err := LoadJSON(doc)
	require.NoError(t, err)
	assert.Equal(t, "Frame Drop 50%", s.Name)
	require.Len(t, s.Events, 1)
	assert.Equal(t, uint32(2000), s.Events[0].TMs)
	require.NotNil(t, s.Events[0].Action.DropFramesPct)
	assert.Equal(t, uint32(50), *s.Events[0].Action.DropFramesPct)

	_, err = LoadJSON([]byte(`{"schedule": []}`))
	assert.Error(t, err, "missing name must fail")

	_, err = LoadJSON([]byte(`{"name": "no-schedule"}`))
	assert.Error(t, err, "missing schedule must fail")
}

func TestLoadJSONConcreteOverspeedScenario(t *testing.T) {
	doc := []byte(`{"name":"Overspeed","schedule":[{"t_ms":5000,"action":{"overspeed_fault":true}}]}`)
	s, err := LoadJSON(doc)
	require.NoError(t, err)

	e := NewEngine()
	require.NoError(t, e.Load(s))
	require.NoError(t, e.Activate(0))

	dev := &fakeDevice{}
	e.Update(5000, telemetry.Snapshot{}, -1, dev)
	assert.True(t, dev.overspeed)
	assert.Equal(t, 1, e.TriggeredCount())
	e.Update(9000, telemetry.Snapshot{}, -1, dev)
	assert.Equal(t, 1, e.TriggeredCount())
}
