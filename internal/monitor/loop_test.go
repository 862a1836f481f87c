package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/gpustated/gpustated/internal/control"
	"github.com/gpustated/gpustated/internal/device"
	"github.com/gpustated/gpustated/internal/hw/hwtest"
)

func testParams() control.Params {
	return control.Params{
		PstateHigh:          16,
		PstateLow:           8,
		FallbackClocks:      true,
		HysteresisThreshold: 30,
		TemperatureCeiling:  80,
		PollInterval:        0,
	}
}

// newRig builds a loop over n fake cards, all managed, all idle and cool.
func newRig(t *testing.T, n int, params control.Params) (*Loop, []*hwtest.FakeGPU, *device.Table) {
	t.Helper()

	var gpus []*hwtest.FakeGPU
	for i := 0; i < n; i++ {
		gpus = append(gpus, &hwtest.FakeGPU{
			Bus:         uint32(i + 1),
			Name:        "Fake GPU",
			Temperature: 40,
			MemClocks:   []uint32{405, 810},
			CoreClocks:  []uint32{300, 420},
		})
	}
	perf := &hwtest.FakePerf{GPUs: gpus}
	tel := &hwtest.FakeTelemetry{GPUs: gpus}

	table, err := device.Reconcile(perf, tel)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if _, err := table.MarkManaged(nil); err != nil {
		t.Fatalf("MarkManaged() error = %v", err)
	}

	ctrl := control.New(perf, tel, params)
	return New(table, ctrl, tel, params), gpus, table
}

// mustTick runs n ticks and fails the test on any error.
func mustTick(t *testing.T, l *Loop, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := l.tick(); err != nil {
			t.Fatalf("tick %d error = %v", i+1, err)
		}
	}
}

func TestBaselineForcesLow(t *testing.T) {
	l, gpus, table := newRig(t, 2, testParams())

	if err := l.Baseline(); err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}
	for i, rec := range table.Records() {
		if rec.Level != device.LevelLow {
			t.Errorf("gpu %d: Level = %v, want low", i, rec.Level)
		}
		if gpus[i].Pstate != 8 {
			t.Errorf("gpu %d: pstate = %d, want 8", i, gpus[i].Pstate)
		}
	}
	// Baseline runs before any sensor sampling.
	for i, g := range gpus {
		if g.TemperatureRead != 0 {
			t.Errorf("gpu %d: sensors read before baseline completed", i)
		}
	}
}

func TestActivityPromotesToHigh(t *testing.T) {
	l, gpus, table := newRig(t, 1, testParams())
	if err := l.Baseline(); err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}

	gpus[0].Utilization = 55
	mustTick(t, l, 1)

	rec := table.Records()[0]
	if rec.Level != device.LevelHigh {
		t.Fatalf("Level = %v, want high", rec.Level)
	}
	if gpus[0].Pstate != 16 {
		t.Errorf("pstate = %d, want 16", gpus[0].Pstate)
	}
}

func TestThermalCeilingForcesLowImmediately(t *testing.T) {
	// Ceiling 80, sampled temperature 85: the device is forced LOW on that
	// very tick, with no hysteresis deferral and no utilization check.
	l, gpus, table := newRig(t, 1, testParams())
	if err := l.Baseline(); err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}
	rec := table.Records()[0]

	// Promote, then idle a few ticks so the counter is mid-range.
	gpus[0].Utilization = 55
	mustTick(t, l, 1)
	gpus[0].Utilization = 0
	mustTick(t, l, 5)
	if rec.Level != device.LevelHigh || rec.Hysteresis != 5 {
		t.Fatalf("setup: Level = %v, Hysteresis = %d", rec.Level, rec.Hysteresis)
	}

	utilReads := gpus[0].UtilizationRead
	gpus[0].Temperature = 85
	gpus[0].Utilization = 100 // must be ignored while over the ceiling
	mustTick(t, l, 1)

	if rec.Level != device.LevelLow {
		t.Errorf("Level = %v, want low", rec.Level)
	}
	if gpus[0].UtilizationRead != utilReads {
		t.Error("utilization was sampled on an over-ceiling tick")
	}

	// Still over the ceiling and already LOW: no further transition work.
	forced := len(gpus[0].ForcedPstates)
	mustTick(t, l, 3)
	if len(gpus[0].ForcedPstates) != forced {
		t.Error("over-ceiling device already LOW was re-forced")
	}
}

func TestHysteresisDemotesOnExactTick(t *testing.T) {
	// Threshold 30: a device idle from HIGH transitions to LOW exactly on
	// the 31st consecutive idle tick.
	l, gpus, table := newRig(t, 1, testParams())
	if err := l.Baseline(); err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}
	rec := table.Records()[0]

	gpus[0].Utilization = 55
	mustTick(t, l, 1)
	gpus[0].Utilization = 0

	mustTick(t, l, 30)
	if rec.Level != device.LevelHigh {
		t.Fatalf("demoted after %d idle ticks, before the threshold", 30)
	}
	if rec.Hysteresis != 30 {
		t.Fatalf("Hysteresis = %d after 30 idle ticks", rec.Hysteresis)
	}

	mustTick(t, l, 1)
	if rec.Level != device.LevelLow {
		t.Error("not demoted on the 31st idle tick")
	}
	if rec.Hysteresis != 0 {
		t.Errorf("Hysteresis = %d after demotion, want 0", rec.Hysteresis)
	}
}

func TestActivityResetsHysteresis(t *testing.T) {
	l, gpus, table := newRig(t, 1, testParams())
	if err := l.Baseline(); err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}
	rec := table.Records()[0]

	gpus[0].Utilization = 55
	mustTick(t, l, 1)
	gpus[0].Utilization = 0
	mustTick(t, l, 20)
	if rec.Hysteresis != 20 {
		t.Fatalf("Hysteresis = %d, want 20", rec.Hysteresis)
	}

	// One busy sample while HIGH resets the counter immediately.
	gpus[0].Utilization = 1
	mustTick(t, l, 1)
	if rec.Hysteresis != 0 {
		t.Errorf("Hysteresis = %d after activity, want 0", rec.Hysteresis)
	}
	if rec.Level != device.LevelHigh {
		t.Errorf("Level = %v, want high", rec.Level)
	}
}

func TestIdleLowDeviceDoesNothing(t *testing.T) {
	l, gpus, _ := newRig(t, 1, testParams())
	if err := l.Baseline(); err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}

	forced := len(gpus[0].ForcedPstates)
	mustTick(t, l, 50)
	if len(gpus[0].ForcedPstates) != forced {
		t.Error("idle LOW device performed transition work")
	}
}

func TestDevicesVisitedInCanonicalOrder(t *testing.T) {
	l, gpus, _ := newRig(t, 3, testParams())
	if err := l.Baseline(); err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}

	// A fatal sensor failure on device 1 must still let device 0 be
	// sampled first, and must stop device 2 from being reached.
	gpus[1].TemperatureErr = errors.New("GPU is lost")
	if err := l.tick(); err == nil {
		t.Fatal("tick succeeded despite sensor failure")
	}
	if gpus[0].TemperatureRead != 1 {
		t.Errorf("gpu 0 temperature reads = %d, want 1", gpus[0].TemperatureRead)
	}
	if gpus[2].TemperatureRead != 0 {
		t.Errorf("gpu 2 sampled after a fatal failure on gpu 1")
	}
}

func TestSensorFailureIsFatal(t *testing.T) {
	l, gpus, _ := newRig(t, 1, testParams())
	if err := l.Baseline(); err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}

	gpus[0].UtilizationErr = errors.New("GPU is lost")
	if err := l.tick(); err == nil {
		t.Fatal("tick succeeded despite utilization read failure")
	}
}

func TestRunStopsAtTickBoundary(t *testing.T) {
	l, gpus, table := newRig(t, 1, testParams())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The baseline ran, but no tick sampled sensors after the stop.
	if table.Records()[0].Level != device.LevelLow {
		t.Error("baseline did not run")
	}
	if gpus[0].TemperatureRead != 0 {
		t.Error("tick ran after stop was requested")
	}
}

func TestShutdownResetsEveryDeviceDespiteFailures(t *testing.T) {
	l, gpus, table := newRig(t, 3, testParams())
	if err := l.Baseline(); err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}

	// All three are still on the native path; device 0 now rejects it.
	gpus[0].ForceErr = errors.New("not supported")
	err := l.Shutdown()
	if err == nil {
		t.Fatal("Shutdown() error = nil, want failure from gpu 0")
	}

	// The failure on device 0 must not stop devices 1 and 2 from being
	// reset to the high state.
	for i := 1; i < 3; i++ {
		if gpus[i].Pstate != 16 {
			t.Errorf("gpu %d: pstate = %d, want 16", i, gpus[i].Pstate)
		}
		if table.Records()[i].Level != device.LevelHigh {
			t.Errorf("gpu %d: Level = %v, want high", i, table.Records()[i].Level)
		}
	}
}

// recordingSink captures telemetry samples.
type recordingSink struct {
	temps []uint32
	utils []uint32
}

func (s *recordingSink) RecordTemperature(_ int, c uint32) { s.temps = append(s.temps, c) }
func (s *recordingSink) RecordUtilization(_ int, p uint32) { s.utils = append(s.utils, p) }

func TestTelemetrySinkReceivesSamples(t *testing.T) {
	l, gpus, _ := newRig(t, 1, testParams())
	sink := &recordingSink{}
	l.SetTelemetrySink(sink)
	if err := l.Baseline(); err != nil {
		t.Fatalf("Baseline() error = %v", err)
	}

	gpus[0].Temperature = 42
	gpus[0].Utilization = 7
	mustTick(t, l, 1)

	if len(sink.temps) != 1 || sink.temps[0] != 42 {
		t.Errorf("temps = %v, want [42]", sink.temps)
	}
	if len(sink.utils) != 1 || sink.utils[0] != 7 {
		t.Errorf("utils = %v, want [7]", sink.utils)
	}

	// Over the ceiling: the temperature sample is recorded, utilization is
	// not read and therefore not recorded.
	gpus[0].Temperature = 90
	mustTick(t, l, 1)
	if len(sink.temps) != 2 {
		t.Errorf("temps = %v, want two samples", sink.temps)
	}
	if len(sink.utils) != 1 {
		t.Errorf("utils = %v, want one sample", sink.utils)
	}
}
