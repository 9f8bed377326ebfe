package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nsrw/wheelhil/pkg/bridge"
	"github.com/nsrw/wheelhil/pkg/bus"
	"github.com/nsrw/wheelhil/pkg/catalog"
	"github.com/nsrw/wheelhil/pkg/mailbox"
	"github.com/nsrw/wheelhil/pkg/physics"
	"github.com/nsrw/wheelhil/pkg/scenario"
	"github.com/nsrw/wheelhil/pkg/telemetry"
	"github.com/nsrw/wheelhil/pkg/transport"
)

// Configuration flags, the same shape as the teacher's.
var (
	serialDevice = flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baudRate     = flag.Int("baud", 115200, "Serial baud rate")
	ownAddr      = flag.Uint("addr", 2, "This device's bus address")
	redisAddr    = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass    = flag.String("redis-pass", "", "Redis password")
	redisDB      = flag.Int("redis-db", 0, "Redis database number")
	scenarioDir  = flag.String("scenario-dir", "", "Directory of scenario JSON files to preload (optional)")
)

const (
	busTickPeriod       = time.Millisecond
	physicsTickPeriod   = 10 * time.Millisecond
	telemetryMirrorTick = 50 * time.Millisecond
	telemetryQueueDepth = 64
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting reaction-wheel HIL emulator")
	log.Printf("Serial device: %s", *serialDevice)
	log.Printf("Baud rate: %d", *baudRate)
	log.Printf("Bus address: 0x%02X", *ownAddr)
	log.Printf("Redis address: %s", *redisAddr)

	redisClient, err := bridge.New(*redisAddr, *redisPass, *redisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Printf("Connected to Redis")

	port, err := transport.Open(*serialDevice, *baudRate)
	if err != nil {
		log.Fatalf("Failed to open serial device: %v", err)
	}
	defer port.Close()
	log.Printf("Opened serial device")

	scenarios, err := loadScenarios(*scenarioDir)
	if err != nil {
		log.Fatalf("Failed to load scenarios: %v", err)
	}
	log.Printf("Loaded %d scenario(s) from %s", len(scenarios), *scenarioDir)

	var mb mailbox.Mailbox
	queue := telemetry.NewQueue(telemetryQueueDepth)
	model := physics.NewReferenceModel()
	var limits physics.LimitsBox
	var overrides physics.OverridesBox
	var deviceActions physics.DeviceActionBox
	reg := catalog.NewRegistry()
	engine := scenario.NewEngine()

	epoch := time.Now()
	nowUs := func() uint64 { return transport.NowMicros(epoch) }
	nowMs := func() uint64 { return uint64(time.Since(epoch).Milliseconds()) }

	runner := physics.NewRunner(&mb, queue, model, &limits, &overrides, &deviceActions, physicsTickPeriod, nowUs)
	loop := bus.NewLoop(byte(*ownAddr), port, port, &mb, queue, &limits, &overrides, &deviceActions, reg, engine, nowUs)
	loop.RegisterScenarios(scenarios, nowMs)

	board := &bridge.CommandBoard{Registry: reg, Engine: engine, Scenarios: scenarios, NowMs: nowMs}

	stopCh := make(chan struct{})
	physicsCtx, cancelPhysics := context.WithCancel(context.Background())
	go runner.Run(physicsCtx)
	go bridge.WatchCommands(redisClient, board, stopCh)
	go runBusLoop(loop, nowMs, stopCh)
	go runTelemetryMirror(redisClient, loop, stopCh)

	log.Printf("Running; send SIGINT/SIGTERM to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("Shutting down...")
	close(stopCh)
	cancelPhysics()
}

// runBusLoop ticks the comms-context run loop at busTickPeriod until
// stopCh closes, grounded on USOCK.readLoop's per-iteration shape (see
// pkg/bus package doc comment).
func runBusLoop(loop *bus.Loop, nowMs func() uint64, stopCh <-chan struct{}) {
	ticker := time.NewTicker(busTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			loop.Step(nowMs())
		}
	}
}

// runTelemetryMirror periodically mirrors the comms loop's cached
// telemetry snapshot out to Redis, the same "write-and-publish on a
// cadence" role the teacher gave its periodic vehicle-state updates.
func runTelemetryMirror(client *bridge.Client, loop *bus.Loop, stopCh <-chan struct{}) {
	ticker := time.NewTicker(telemetryMirrorTick)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := bridge.PublishTelemetry(client, loop.LastSnapshot()); err != nil {
				log.Printf("main: %v", err)
			}
		}
	}
}

// loadScenarios reads every *.json file in dir and parses it with
// scenario.LoadJSON, keyed by its parsed scenario name. An empty dir is
// valid: the engine simply starts with nothing loaded.
func loadScenarios(dir string) (map[string]*scenario.Scenario, error) {
	out := make(map[string]*scenario.Scenario)
	if dir == "" {
		return out, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		s, err := scenario.LoadJSON(data)
		if err != nil {
			return nil, err
		}
		out[s.Name] = s
	}
	return out, nil
}
