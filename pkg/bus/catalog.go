package bus

import (
	"unsafe"

	"github.com/nsrw/wheelhil/pkg/catalog"
	"github.com/nsrw/wheelhil/pkg/protocol"
	"github.com/nsrw/wheelhil/pkg/scenario"
	"github.com/nsrw/wheelhil/pkg/telemetry"
)

// telemetryMirror, statsMirror, and scenarioMirror hold plain copies of
// values that are otherwise owned by another execution context or an
// atomic counter. PEEK (0x02) addresses catalog fields by a pointer into
// live storage (spec §4.5: "one writer per datum"), so rather than hand
// PEEK a pointer straight into the physics model or a cross-goroutine
// atomic, each mirror is refreshed once per Step from this single
// comms-context goroutine and read back by the same goroutine a moment
// later when dispatching PEEK — no new writer is introduced.
type telemetryMirror struct {
	speedRPM    float32
	currentA    float32
	torqueMNm   float32
	powerW      float32
	busVoltageV float32
	mode        uint32
	faultBits   uint32
	warningBits uint32
	latchBits   uint32
	tickCount   uint32
}

func (m *telemetryMirror) refresh(s telemetry.Snapshot) {
	m.speedRPM = s.SpeedRPM
	m.currentA = s.CurrentA
	m.torqueMNm = s.TorqueMNm
	m.powerW = s.PowerW
	m.busVoltageV = s.BusVoltageV
	m.mode = uint32(s.Mode)
	m.faultBits = s.FaultBits
	m.warningBits = s.WarningBits
	m.latchBits = s.LatchBits
	m.tickCount = uint32(s.TickCount)
}

type statsMirror struct {
	parseErrors uint32
	wrongAddr   uint32
	cmdErrors   uint32
	slipErrors  uint32
	errorCount  uint32
	lastCmdErr  uint32
}

func (m *statsMirror) refresh(s *protocol.Stats) {
	m.parseErrors = s.ParseErrors.Load()
	m.wrongAddr = s.WrongAddr.Load()
	m.cmdErrors = s.CmdErrors.Load()
	m.slipErrors = s.SlipErrors.Load()
	m.errorCount = s.ErrorCount.Load()
	m.lastCmdErr = s.LastCmdErr.Load()
}

type scenarioMirror struct {
	state          uint32
	triggeredCount uint32
}

func (m *scenarioMirror) refresh(e *scenario.Engine) {
	m.state = uint32(e.State())
	m.triggeredCount = uint32(e.TriggeredCount())
}

// faultInjectionMirror backs the fault-injection table's two console/PEEK-
// visible fields: the name of the scenario to arm, and the write-triggered
// rising edge that arms it (spec §4.5).
type faultInjectionMirror struct {
	selected string
	trigger  bool
}

// Field id bases, one block per table, wide enough that no subsystem's
// table can ever collide with another's (spec §4.5: ids are opaque to
// PEEK/POKE, assignment is this package's business alone).
const (
	idBaseTelemetry      = 0x1000
	idBaseStats          = 0x2000
	idBaseScenario       = 0x3000
	idBaseFaultInjection = 0x4000
)

// registerFaultInjectionTable installs the write-triggered scenario-arming
// table spec §4.5 names: "the fault-injection table owns a write-triggered
// trigger field whose rising edge launches a selected registered
// scenario". Setting "selected" picks a scenario by name out of scenarios;
// writing "true" to "trigger" loads and activates it via engine, mirroring
// the console grammar's `d t s fault_injection.trigger true`.
func registerFaultInjectionTable(reg *catalog.Registry, fim *faultInjectionMirror, engine *scenario.Engine, scenarios map[string]*scenario.Scenario, nowMs func() uint64) {
	launch := func(string) {
		if !fim.trigger {
			return
		}
		fim.trigger = false
		s, ok := scenarios[fim.selected]
		if !ok {
			return
		}
		if err := engine.Load(s); err != nil {
			return
		}
		_ = engine.Activate(nowMs())
	}

	reg.Register(&catalog.Table{
		ID:   4,
		Name: "fault_injection",
		Fields: []*catalog.Field{
			{ID: idBaseFaultInjection + 0, Name: "selected", Type: catalog.TypeString, Access: catalog.RW, Ptr: unsafe.Pointer(&fim.selected)},
			{ID: idBaseFaultInjection + 1, Name: "trigger", Type: catalog.TypeBool, Access: catalog.RW, Ptr: unsafe.Pointer(&fim.trigger), OnSet: launch},
		},
	})
}

// registerCatalogTables installs the read-only tables this package owns
// into reg: live telemetry, protocol error counters, and scenario
// engine state, each backed by one of the mirrors above rather than a
// pointer into another goroutine's storage.
func registerCatalogTables(reg *catalog.Registry, tm *telemetryMirror, sm *statsMirror, scm *scenarioMirror) {
	reg.Register(&catalog.Table{
		ID:   1,
		Name: "telemetry",
		Fields: []*catalog.Field{
			{ID: idBaseTelemetry + 0, Name: "speed_rpm", Type: catalog.TypeFloat, Units: "rpm", Access: catalog.RO, Ptr: unsafe.Pointer(&tm.speedRPM)},
			{ID: idBaseTelemetry + 1, Name: "current_a", Type: catalog.TypeFloat, Units: "A", Access: catalog.RO, Ptr: unsafe.Pointer(&tm.currentA)},
			{ID: idBaseTelemetry + 2, Name: "torque_mNm", Type: catalog.TypeFloat, Units: "mN*m", Access: catalog.RO, Ptr: unsafe.Pointer(&tm.torqueMNm)},
			{ID: idBaseTelemetry + 3, Name: "power_w", Type: catalog.TypeFloat, Units: "W", Access: catalog.RO, Ptr: unsafe.Pointer(&tm.powerW)},
			{ID: idBaseTelemetry + 4, Name: "bus_voltage_v", Type: catalog.TypeFloat, Units: "V", Access: catalog.RO, Ptr: unsafe.Pointer(&tm.busVoltageV)},
			{ID: idBaseTelemetry + 5, Name: "mode", Type: catalog.TypeEnum, Access: catalog.RO, Ptr: unsafe.Pointer(&tm.mode), EnumLabels: []string{"CURRENT", "SPEED", "TORQUE", "PWM"}},
			{ID: idBaseTelemetry + 6, Name: "fault_bits", Type: catalog.TypeHex, Access: catalog.RO, Ptr: unsafe.Pointer(&tm.faultBits)},
			{ID: idBaseTelemetry + 7, Name: "warning_bits", Type: catalog.TypeHex, Access: catalog.RO, Ptr: unsafe.Pointer(&tm.warningBits)},
			{ID: idBaseTelemetry + 8, Name: "latch_bits", Type: catalog.TypeHex, Access: catalog.RO, Ptr: unsafe.Pointer(&tm.latchBits)},
			{ID: idBaseTelemetry + 9, Name: "tick_count", Type: catalog.TypeU32, Access: catalog.RO, Ptr: unsafe.Pointer(&tm.tickCount)},
		},
	})

	reg.Register(&catalog.Table{
		ID:   2,
		Name: "protocol_stats",
		Fields: []*catalog.Field{
			{ID: idBaseStats + 0, Name: "parse_errors", Type: catalog.TypeU32, Access: catalog.RO, Ptr: unsafe.Pointer(&sm.parseErrors)},
			{ID: idBaseStats + 1, Name: "wrong_addr", Type: catalog.TypeU32, Access: catalog.RO, Ptr: unsafe.Pointer(&sm.wrongAddr)},
			{ID: idBaseStats + 2, Name: "cmd_errors", Type: catalog.TypeU32, Access: catalog.RO, Ptr: unsafe.Pointer(&sm.cmdErrors)},
			{ID: idBaseStats + 3, Name: "slip_errors", Type: catalog.TypeU32, Access: catalog.RO, Ptr: unsafe.Pointer(&sm.slipErrors)},
			{ID: idBaseStats + 4, Name: "error_count", Type: catalog.TypeU32, Access: catalog.RO, Ptr: unsafe.Pointer(&sm.errorCount)},
			{ID: idBaseStats + 5, Name: "last_cmd_err", Type: catalog.TypeU32, Access: catalog.RO, Ptr: unsafe.Pointer(&sm.lastCmdErr)},
		},
	})

	reg.Register(&catalog.Table{
		ID:   3,
		Name: "scenario",
		Fields: []*catalog.Field{
			{ID: idBaseScenario + 0, Name: "state", Type: catalog.TypeEnum, Access: catalog.RO, Ptr: unsafe.Pointer(&scm.state), EnumLabels: []string{"EMPTY", "LOADED", "ACTIVE"}},
			{ID: idBaseScenario + 1, Name: "triggered_count", Type: catalog.TypeU32, Access: catalog.RO, Ptr: unsafe.Pointer(&scm.triggeredCount)},
		},
	})
}
