package bridge

import (
	"testing"
	"unsafe"

	"github.com/nsrw/wheelhil/pkg/catalog"
	"github.com/nsrw/wheelhil/pkg/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoard() (*CommandBoard, *float32) {
	var speed float32 = 100
	reg := catalog.NewRegistry()
	reg.Register(&catalog.Table{ID: 1, Name: "wheel", Fields: []*catalog.Field{
		{ID: 10, Name: "speed_rpm", Type: catalog.TypeFloat, Access: catalog.RW, Ptr: unsafe.Pointer(&speed)},
	}})

	engine := scenario.NewEngine()
	board := &CommandBoard{
		Registry: reg,
		Engine:   engine,
		Scenarios: map[string]*scenario.Scenario{
			"drop50": {Name: "drop50"},
		},
		NowMs: func() uint64 { return 1000 },
	}
	return board, &speed
}

func TestApplyFieldSet(t *testing.T) {
	board, speed := newTestBoard()
	require.NoError(t, board.Apply("d t s wheel.speed_rpm 2500"))
	assert.Equal(t, float32(2500), *speed)
}

func TestApplyActivateAndDeactivate(t *testing.T) {
	board, _ := newTestBoard()
	require.NoError(t, board.Apply("activate drop50"))
	assert.Equal(t, scenario.StateActive, board.Engine.State())

	require.NoError(t, board.Apply("deactivate"))
	assert.Equal(t, scenario.StateLoaded, board.Engine.State())
}

func TestApplyUnknownScenarioFails(t *testing.T) {
	board, _ := newTestBoard()
	assert.Error(t, board.Apply("activate nonexistent"))
}

func TestApplyRejectsNonSetConsoleCommands(t *testing.T) {
	board, _ := newTestBoard()
	assert.Error(t, board.Apply("d t g wheel.speed_rpm"), "only field writes are accepted from the command list")
}

func TestApplyUnrecognizedCommand(t *testing.T) {
	board, _ := newTestBoard()
	assert.Error(t, board.Apply("frobnicate"))
}
