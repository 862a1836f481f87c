package control

import (
	"errors"
	"testing"

	"github.com/gpustated/gpustated/internal/device"
	"github.com/gpustated/gpustated/internal/hw/hwtest"
)

// captureSink records every event it receives.
type captureSink struct {
	events []StatusEvent
}

func (s *captureSink) StatusChanged(ev StatusEvent) {
	s.events = append(s.events, ev)
}

func defaultParams() Params {
	return Params{
		PstateHigh:          16,
		PstateLow:           8,
		FallbackClocks:      true,
		HysteresisThreshold: 30,
		TemperatureCeiling:  80,
	}
}

// newRig builds a one-device controller over a fake card.
func newRig(t *testing.T, params Params) (*Controller, *device.Record, *hwtest.FakeGPU, *captureSink) {
	t.Helper()

	gpu := &hwtest.FakeGPU{
		Bus:        1,
		Name:       "Fake GPU",
		MemClocks:  []uint32{810, 5001, 405},
		CoreClocks: []uint32{420, 300, 1200},
	}
	perf := &hwtest.FakePerf{GPUs: []*hwtest.FakeGPU{gpu}}
	tel := &hwtest.FakeTelemetry{GPUs: []*hwtest.FakeGPU{gpu}}

	table, err := device.Reconcile(perf, tel)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if _, err := table.MarkManaged(nil); err != nil {
		t.Fatalf("MarkManaged() error = %v", err)
	}

	sink := &captureSink{}
	ctrl := New(perf, tel, params)
	ctrl.SetEvents(sink)
	return ctrl, table.Records()[0], gpu, sink
}

func TestSetLevelNativePath(t *testing.T) {
	ctrl, rec, gpu, sink := newRig(t, defaultParams())

	if err := ctrl.SetLevel(rec, device.LevelHigh); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}

	if gpu.Pstate != 16 {
		t.Errorf("forced pstate = %d, want 16", gpu.Pstate)
	}
	if rec.Level != device.LevelHigh {
		t.Errorf("Level = %v, want high", rec.Level)
	}
	if rec.Path != device.PathNative {
		t.Errorf("Path = %v, want native", rec.Path)
	}
	if rec.Hysteresis != 0 {
		t.Errorf("Hysteresis = %d, want 0", rec.Hysteresis)
	}
	if len(sink.events) != 1 {
		t.Fatalf("got %d events, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Device != 0 || ev.Level != device.LevelHigh || ev.Path != device.PathNative {
		t.Errorf("event = %+v", ev)
	}
}

func TestSetLevelIsAlwaysIssued(t *testing.T) {
	// A request for the band the record already shows still goes to the
	// hardware; idempotence is never assumed.
	ctrl, rec, gpu, _ := newRig(t, defaultParams())

	for i := 0; i < 3; i++ {
		if err := ctrl.SetLevel(rec, device.LevelLow); err != nil {
			t.Fatalf("SetLevel() #%d error = %v", i, err)
		}
	}
	if len(gpu.ForcedPstates) != 3 {
		t.Errorf("native path saw %d calls, want 3", len(gpu.ForcedPstates))
	}
}

func TestFallbackEngagesOnceAndSticks(t *testing.T) {
	// Native rejection with fallback enabled: minimum clocks are queried
	// exactly once, the path flips to override, the request is served via
	// explicit clocks, and the native path is never used again.
	ctrl, rec, gpu, _ := newRig(t, defaultParams())
	gpu.ForceErr = errors.New("not supported")

	if err := ctrl.SetLevel(rec, device.LevelLow); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}

	if rec.Path != device.PathOverride {
		t.Fatalf("Path = %v, want override", rec.Path)
	}
	if gpu.MemQueryCount != 1 || gpu.CoreQueryCount != 1 {
		t.Errorf("clock queries = (%d,%d), want (1,1)", gpu.MemQueryCount, gpu.CoreQueryCount)
	}
	if rec.MinMemClock != 405 || rec.MinCoreClock != 300 {
		t.Errorf("cached minimums = (%d,%d), want (405,300)", rec.MinMemClock, rec.MinCoreClock)
	}
	// LOW with no explicit low clocks pins the cached minimums.
	if gpu.AppMemClock != 405 || gpu.AppCoreClock != 300 {
		t.Errorf("applied clocks = (%d,%d), want (405,300)", gpu.AppMemClock, gpu.AppCoreClock)
	}

	nativeCalls := len(gpu.ForcedPstates)
	for i := 0; i < 3; i++ {
		if err := ctrl.SetLevel(rec, device.LevelLow); err != nil {
			t.Fatalf("SetLevel() after fallback error = %v", err)
		}
	}
	if len(gpu.ForcedPstates) != nativeCalls {
		t.Errorf("native path called again after fallback: %d -> %d calls",
			nativeCalls, len(gpu.ForcedPstates))
	}
	if gpu.MemQueryCount != 1 {
		t.Errorf("minimum clocks re-queried: %d queries", gpu.MemQueryCount)
	}
}

func TestFallbackDisabledIsFatal(t *testing.T) {
	params := defaultParams()
	params.FallbackClocks = false
	ctrl, rec, gpu, _ := newRig(t, params)
	gpu.ForceErr = errors.New("not supported")

	err := ctrl.SetLevel(rec, device.LevelLow)
	if !errors.Is(err, ErrFallbackDisabled) {
		t.Fatalf("SetLevel() error = %v, want ErrFallbackDisabled", err)
	}
	if rec.Path != device.PathNative {
		t.Errorf("Path = %v, want native (no fallback)", rec.Path)
	}
	if gpu.MemQueryCount != 0 {
		t.Errorf("clocks queried despite disabled fallback")
	}
}

func TestOverrideHighWithAutoClocksResets(t *testing.T) {
	// HIGH with both explicit high clocks zero resets to driver-managed
	// clocks; the record carries the auto sentinel, not literal zero.
	ctrl, rec, gpu, _ := newRig(t, defaultParams())
	gpu.ForceErr = errors.New("not supported")

	if err := ctrl.SetLevel(rec, device.LevelHigh); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}

	if gpu.ResetCalls != 1 {
		t.Errorf("ResetApplicationClocks calls = %d, want 1", gpu.ResetCalls)
	}
	if gpu.SetClockCalls != 0 {
		t.Errorf("SetApplicationClocks calls = %d, want 0", gpu.SetClockCalls)
	}
	if rec.CurrentMemClock != device.ClockAuto || rec.CurrentCoreClock != device.ClockAuto {
		t.Errorf("recorded clocks = (%d,%d), want auto sentinel",
			rec.CurrentMemClock, rec.CurrentCoreClock)
	}
	if rec.CurrentMemClock == 0 {
		t.Error("auto sentinel must not be literal zero")
	}
}

func TestOverrideExplicitClocks(t *testing.T) {
	params := defaultParams()
	params.HighMemClock = 5001
	params.HighCoreClock = 1200
	params.LowMemClock = 810
	params.LowCoreClock = 420
	ctrl, rec, gpu, _ := newRig(t, params)
	gpu.ForceErr = errors.New("not supported")

	if err := ctrl.SetLevel(rec, device.LevelHigh); err != nil {
		t.Fatalf("SetLevel(high) error = %v", err)
	}
	if gpu.AppMemClock != 5001 || gpu.AppCoreClock != 1200 {
		t.Errorf("high clocks = (%d,%d), want (5001,1200)", gpu.AppMemClock, gpu.AppCoreClock)
	}
	if rec.CurrentMemClock != 5001 || rec.CurrentCoreClock != 1200 {
		t.Errorf("recorded clocks = (%d,%d)", rec.CurrentMemClock, rec.CurrentCoreClock)
	}

	if err := ctrl.SetLevel(rec, device.LevelLow); err != nil {
		t.Fatalf("SetLevel(low) error = %v", err)
	}
	if gpu.AppMemClock != 810 || gpu.AppCoreClock != 420 {
		t.Errorf("low clocks = (%d,%d), want (810,420)", gpu.AppMemClock, gpu.AppCoreClock)
	}
}

func TestFallbackFailsWithoutClockTable(t *testing.T) {
	ctrl, rec, gpu, _ := newRig(t, defaultParams())
	gpu.ForceErr = errors.New("not supported")
	gpu.MemClocks = nil

	err := ctrl.SetLevel(rec, device.LevelLow)
	if !errors.Is(err, ErrNoSupportedClocks) {
		t.Fatalf("SetLevel() error = %v, want ErrNoSupportedClocks", err)
	}
}

func TestUnmanagedDeviceIsUntouched(t *testing.T) {
	ctrl, rec, gpu, sink := newRig(t, defaultParams())
	rec.Managed = false

	if err := ctrl.SetLevel(rec, device.LevelHigh); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	if len(gpu.ForcedPstates) != 0 || gpu.SetClockCalls != 0 {
		t.Error("unmanaged device received hardware calls")
	}
	if len(sink.events) != 0 {
		t.Error("unmanaged device emitted events")
	}
}

func TestResetDefaults(t *testing.T) {
	t.Run("native path forces high", func(t *testing.T) {
		ctrl, rec, gpu, _ := newRig(t, defaultParams())

		if err := ctrl.ResetDefaults(rec); err != nil {
			t.Fatalf("ResetDefaults() error = %v", err)
		}
		if gpu.Pstate != 16 {
			t.Errorf("pstate = %d, want 16", gpu.Pstate)
		}
		if rec.Level != device.LevelHigh {
			t.Errorf("Level = %v, want high", rec.Level)
		}
	})

	t.Run("override path resets clocks", func(t *testing.T) {
		ctrl, rec, gpu, _ := newRig(t, defaultParams())
		gpu.ForceErr = errors.New("not supported")
		if err := ctrl.SetLevel(rec, device.LevelLow); err != nil {
			t.Fatalf("SetLevel() error = %v", err)
		}
		nativeCalls := len(gpu.ForcedPstates)

		if err := ctrl.ResetDefaults(rec); err != nil {
			t.Fatalf("ResetDefaults() error = %v", err)
		}
		if gpu.ResetCalls != 1 {
			t.Errorf("ResetApplicationClocks calls = %d, want 1", gpu.ResetCalls)
		}
		if len(gpu.ForcedPstates) != nativeCalls {
			t.Error("override-path device touched the native path at reset")
		}
		if rec.CurrentMemClock != device.ClockAuto {
			t.Errorf("recorded mem clock = %d, want auto sentinel", rec.CurrentMemClock)
		}
	})
}
