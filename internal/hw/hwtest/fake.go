// Package hwtest provides deterministic in-memory implementations of the hw
// provider interfaces for tests.
//
// A FakeGPU models one physical card. The same *FakeGPU can be listed by
// both FakePerf and FakeTelemetry, in different orders, which is exactly the
// situation the identity reconciler exists for. All mutations are recorded
// on the FakeGPU so tests can assert on the calls a scenario produced.
package hwtest

import (
	"errors"

	"github.com/gpustated/gpustated/internal/hw"
)

// FakeGPU is one simulated card. Fields are mutated directly by tests
// between ticks; error fields, when non-nil, are returned by the
// corresponding provider call.
type FakeGPU struct {
	Bus  uint32
	Name string

	// Sensor values returned by the telemetry provider.
	Temperature uint32
	Utilization uint32

	// Clock tables for the override path.
	MemClocks  []uint32
	CoreClocks []uint32

	// Error injection.
	BusErr         error
	TemperatureErr error
	UtilizationErr error
	ForceErr       error
	MemClocksErr   error
	CoreClocksErr  error
	SetClocksErr   error
	ResetErr       error

	// Observed effects.
	Pstate          uint32
	ForcedPstates   []uint32
	AppMemClock     uint32
	AppCoreClock    uint32
	SetClockCalls   int
	ResetCalls      int
	MemQueryCount   int
	CoreQueryCount  int
	TemperatureRead int
	UtilizationRead int
}

// FakePerf implements hw.PerfAPI over a list of fake cards.
type FakePerf struct {
	GPUs []*FakeGPU

	InitErr     error
	EnumErr     error
	Initialized bool
	Shutdowns   int
}

func (f *FakePerf) Init() error {
	if f.InitErr != nil {
		return f.InitErr
	}
	f.Initialized = true
	return nil
}

func (f *FakePerf) Shutdown() error {
	f.Shutdowns++
	f.Initialized = false
	return nil
}

func (f *FakePerf) EnumDevices() ([]hw.Handle, error) {
	if f.EnumErr != nil {
		return nil, f.EnumErr
	}
	handles := make([]hw.Handle, len(f.GPUs))
	for i, g := range f.GPUs {
		handles[i] = perfHandle{g}
	}
	return handles, nil
}

func (f *FakePerf) BusID(h hw.Handle) (uint32, error) {
	g := h.(perfHandle).gpu
	if g.BusErr != nil {
		return 0, g.BusErr
	}
	return g.Bus, nil
}

func (f *FakePerf) ForcePerformanceState(h hw.Handle, pstate uint32) error {
	g := h.(perfHandle).gpu
	g.ForcedPstates = append(g.ForcedPstates, pstate)
	if g.ForceErr != nil {
		return g.ForceErr
	}
	g.Pstate = pstate
	return nil
}

// perfHandle wraps a FakeGPU so perf handles and telemetry handles are
// distinct types; passing one to the wrong provider panics in tests.
type perfHandle struct {
	gpu *FakeGPU
}

// FakeTelemetry implements hw.TelemetryAPI over a list of fake cards.
// Its device order is the canonical order.
type FakeTelemetry struct {
	GPUs []*FakeGPU

	InitErr     error
	EnumErr     error
	Initialized bool
	Shutdowns   int
}

func (f *FakeTelemetry) Init() error {
	if f.InitErr != nil {
		return f.InitErr
	}
	f.Initialized = true
	return nil
}

func (f *FakeTelemetry) Shutdown() error {
	f.Shutdowns++
	f.Initialized = false
	return nil
}

func (f *FakeTelemetry) EnumDevices() ([]hw.Handle, error) {
	if f.EnumErr != nil {
		return nil, f.EnumErr
	}
	handles := make([]hw.Handle, len(f.GPUs))
	for i, g := range f.GPUs {
		handles[i] = g
	}
	return handles, nil
}

func (f *FakeTelemetry) BusID(h hw.Handle) (uint32, error) {
	g := h.(*FakeGPU)
	if g.BusErr != nil {
		return 0, g.BusErr
	}
	return g.Bus, nil
}

func (f *FakeTelemetry) Name(h hw.Handle) (string, error) {
	return h.(*FakeGPU).Name, nil
}

func (f *FakeTelemetry) Temperature(h hw.Handle) (uint32, error) {
	g := h.(*FakeGPU)
	g.TemperatureRead++
	if g.TemperatureErr != nil {
		return 0, g.TemperatureErr
	}
	return g.Temperature, nil
}

func (f *FakeTelemetry) Utilization(h hw.Handle) (uint32, error) {
	g := h.(*FakeGPU)
	g.UtilizationRead++
	if g.UtilizationErr != nil {
		return 0, g.UtilizationErr
	}
	return g.Utilization, nil
}

func (f *FakeTelemetry) SupportedMemoryClocks(h hw.Handle) ([]uint32, error) {
	g := h.(*FakeGPU)
	g.MemQueryCount++
	if g.MemClocksErr != nil {
		return nil, g.MemClocksErr
	}
	return g.MemClocks, nil
}

func (f *FakeTelemetry) SupportedGraphicsClocks(h hw.Handle, memClockMHz uint32) ([]uint32, error) {
	g := h.(*FakeGPU)
	g.CoreQueryCount++
	if g.CoreClocksErr != nil {
		return nil, g.CoreClocksErr
	}
	found := false
	for _, c := range g.MemClocks {
		if c == memClockMHz {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.New("fake: unsupported memory clock")
	}
	return g.CoreClocks, nil
}

func (f *FakeTelemetry) SetApplicationClocks(h hw.Handle, memClockMHz, coreClockMHz uint32) error {
	g := h.(*FakeGPU)
	g.SetClockCalls++
	if g.SetClocksErr != nil {
		return g.SetClocksErr
	}
	g.AppMemClock = memClockMHz
	g.AppCoreClock = coreClockMHz
	return nil
}

func (f *FakeTelemetry) ResetApplicationClocks(h hw.Handle) error {
	g := h.(*FakeGPU)
	g.ResetCalls++
	if g.ResetErr != nil {
		return g.ResetErr
	}
	g.AppMemClock = 0
	g.AppCoreClock = 0
	return nil
}
