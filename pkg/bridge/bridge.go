package bridge

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/nsrw/wheelhil/pkg/catalog"
	"github.com/nsrw/wheelhil/pkg/scenario"
	"github.com/nsrw/wheelhil/pkg/telemetry"
)

// KeyScenarioTriggerList is the Redis list watched by WatchCommands, the
// direct analog of the teacher's KeyBLECommandList.
const KeyScenarioTriggerList = "scenario:trigger"

// KeyTelemetry is the Redis hash/channel telemetry is mirrored to.
const KeyTelemetry = "telemetry"

// CommandBoard wires a registry and a scenario engine to the commands a
// Redis list watcher can apply, mirroring the teacher's WatchRedisCommands
// command-string switch but generalized to two verbs: catalog field
// writes via the §6 console grammar, and named-scenario activation.
type CommandBoard struct {
	Registry  *catalog.Registry
	Engine    *scenario.Engine
	Scenarios map[string]*scenario.Scenario
	NowMs     func() uint64
}

// Apply interprets one command string pulled off KeyScenarioTriggerList.
// Recognized forms: "activate <name>", "deactivate", and any console
// grammar `d t s <t>.<f> <v>` field write (spec §4.5/§6).
func (b *CommandBoard) Apply(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("bridge: empty command")
	}

	switch fields[0] {
	case "activate":
		if len(fields) != 2 {
			return fmt.Errorf("bridge: \"activate\" requires a scenario name")
		}
		s, ok := b.Scenarios[fields[1]]
		if !ok {
			return fmt.Errorf("bridge: unknown scenario %q", fields[1])
		}
		if err := b.Engine.Load(s); err != nil {
			return fmt.Errorf("bridge: load %q: %w", fields[1], err)
		}
		if err := b.Engine.Activate(b.NowMs()); err != nil {
			return fmt.Errorf("bridge: activate %q: %w", fields[1], err)
		}
		return nil
	case "deactivate":
		b.Engine.Deactivate()
		return nil
	default:
		cmd, err := catalog.ParseConsoleCommand(command)
		if err != nil {
			return fmt.Errorf("bridge: unrecognized command %q: %w", command, err)
		}
		return b.applyConsoleCommand(cmd)
	}
}

func (b *CommandBoard) applyConsoleCommand(cmd catalog.ConsoleCommand) error {
	if cmd.Kind != catalog.CmdTableSet {
		return fmt.Errorf("bridge: only field writes are accepted from the command list")
	}
	f, ok := b.Registry.FindField(cmd.Table, cmd.Field)
	if !ok {
		return fmt.Errorf("bridge: unknown field %s.%s", cmd.Table, cmd.Field)
	}
	return f.Set(cmd.Value)
}

// WatchCommands blocks on KeyScenarioTriggerList via BRPOP until stopCh
// closes, applying every command it receives, in the exact shape of the
// teacher's WatchRedisCommands loop.
func WatchCommands(client *Client, board *CommandBoard, stopCh <-chan struct{}) {
	log.Printf("bridge: watching command list %s", KeyScenarioTriggerList)
	for {
		select {
		case <-stopCh:
			log.Println("bridge: stopping command watcher")
			return
		default:
			result, err := client.BRPop(time.Second, KeyScenarioTriggerList)
			if err != nil {
				log.Printf("bridge: BRPOP error: %v", err)
				time.Sleep(time.Second)
				continue
			}
			if result == nil {
				continue
			}
			command := result[1]
			if err := board.Apply(command); err != nil {
				log.Printf("bridge: %v", err)
			}
		}
	}
}

// PublishTelemetry mirrors one telemetry snapshot into the Redis hash and
// publishes it on the telemetry channel, adapted directly from the
// teacher's WriteAndPublishInt/WriteAndPublishString helpers.
func PublishTelemetry(client *Client, snap telemetry.Snapshot) error {
	fields := map[string]int64{
		"speed_rpm":      int64(snap.SpeedRPM),
		"current_a_mA":   int64(snap.CurrentA * 1000),
		"torque_mNm":     int64(snap.TorqueMNm),
		"power_w":        int64(snap.PowerW),
		"bus_voltage_mV": int64(snap.BusVoltageV * 1000),
		"fault_bits":     int64(snap.FaultBits),
		"tick_count":     int64(snap.TickCount),
	}
	for field, value := range fields {
		if err := client.WriteAndPublishInt(KeyTelemetry, field, value); err != nil {
			return fmt.Errorf("bridge: publish telemetry.%s: %w", field, err)
		}
	}
	if err := client.WriteAndPublishString(KeyTelemetry, "mode", snap.Mode.String()); err != nil {
		return fmt.Errorf("bridge: publish telemetry.mode: %w", err)
	}
	return nil
}

// FormatFloat is a small helper used by callers that need to stash a
// float reading as a Redis string field rather than a scaled integer.
func FormatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
