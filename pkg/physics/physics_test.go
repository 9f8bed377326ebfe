package physics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nsrw/wheelhil/pkg/mailbox"
	"github.com/nsrw/wheelhil/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceModelChasesSpeedSetpoint(t *testing.T) {
	m := NewReferenceModel()
	m.ApplyMailboxCommand("SET_SPEED", 1000, 0)

	var snap telemetry.Snapshot
	for i := 0; i < 50; i++ {
		snap = m.Step(0.01, uint64(i)*10000, 0)
	}
	assert.Equal(t, telemetry.ModeSpeed, snap.Mode)
	assert.InDelta(t, 1000, snap.SpeedRPM, 50, "should converge close to the commanded speed")
	assert.Greater(t, snap.TickCount, uint64(0))
}

func TestReferenceModelClearFaultResetsLatches(t *testing.T) {
	m := NewReferenceModel()
	m.TriggerOverspeedFault()
	require.NotZero(t, m.FaultBits)
	m.ApplyMailboxCommand("CLEAR_FAULT", 0, 0)
	assert.Zero(t, m.FaultBits)
	assert.Zero(t, m.LatchBits)
}

func TestReferenceModelProtectionLimitsLatchFaults(t *testing.T) {
	m := NewReferenceModel()
	m.Limits.SpeedRPM = 500
	m.ApplyMailboxCommand("SET_SPEED", 5000, 0)

	var snap telemetry.Snapshot
	for i := 0; i < 200; i++ {
		snap = m.Step(0.01, uint64(i)*10000, 0)
	}
	assert.NotZero(t, snap.FaultBits&FaultOverspeed)
}

func TestReferenceModelTorqueOverride(t *testing.T) {
	m := NewReferenceModel()
	override := float32(42)
	m.OverrideTorqueMNm = &override
	snap := m.Step(0.01, 0, 0)
	assert.Equal(t, float32(42), snap.TorqueMNm)
}

func TestProtectionLimitsInRangeRejectsNegativeAndOverDuty(t *testing.T) {
	assert.True(t, ProtectionLimits{DutyPct: 50}.InRange())
	assert.False(t, ProtectionLimits{DutyPct: 150}.InRange())
	assert.False(t, ProtectionLimits{CurrentA: -1}.InRange())
}

func TestLimitsBoxLoadDefaultsToZeroValue(t *testing.T) {
	var box LimitsBox
	assert.Equal(t, ProtectionLimits{}, box.Load())

	box.Store(ProtectionLimits{CurrentA: 12})
	assert.Equal(t, float32(12), box.Load().CurrentA)
}

func TestRunnerConsumesMailboxAndPublishesSnapshots(t *testing.T) {
	var mb mailbox.Mailbox
	q := telemetry.NewQueue(16)
	model := NewReferenceModel()

	var clockUs atomic.Uint64
	nowUs := func() uint64 { return clockUs.Add(10000) }

	r := NewRunner(&mb, q, model, nil, nil, nil, time.Millisecond, nowUs)

	require.True(t, mb.TrySend(mailbox.SetSpeed, 1000, 0, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	s, ok := q.ReadLatest()
	require.True(t, ok, "runner should have published at least one snapshot")
	assert.Equal(t, telemetry.ModeSpeed, s.Mode)
}
