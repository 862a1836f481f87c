package device

import (
	"fmt"

	"github.com/gpustated/gpustated/internal/hw"
)

// Reconcile enumerates both providers and builds the canonical device
// table. The telemetry provider's order is canonical; for each of its
// devices the matching native handle is found by PCI bus id.
//
// Bus ids are read exactly once per device per provider. Any read failure,
// count mismatch, duplicate bus id, or unmatched bus id is fatal: a partial
// or guessed mapping would let later control calls land on the wrong
// physical card.
func Reconcile(perf hw.PerfAPI, tel hw.TelemetryAPI) (*Table, error) {
	telHandles, err := tel.EnumDevices()
	if err != nil {
		return nil, fmt.Errorf("enumerating telemetry devices: %w", err)
	}
	perfHandles, err := perf.EnumDevices()
	if err != nil {
		return nil, fmt.Errorf("enumerating native devices: %w", err)
	}

	if len(telHandles) != len(perfHandles) {
		return nil, fmt.Errorf("%w: telemetry reports %d, native reports %d",
			ErrCountMismatch, len(telHandles), len(perfHandles))
	}

	// One bus read per native device, keyed for the matching pass. Device
	// counts are capped by the hardware, but a map keeps the pass linear
	// and makes duplicate detection free.
	byBus := make(map[uint32]hw.Handle, len(perfHandles))
	for i, h := range perfHandles {
		bus, err := perf.BusID(h)
		if err != nil {
			return nil, fmt.Errorf("reading bus id of native device %d: %w", i, err)
		}
		if _, ok := byBus[bus]; ok {
			return nil, fmt.Errorf("%w: bus %d reported twice by native provider", ErrDuplicateBus, bus)
		}
		byBus[bus] = h
	}

	records := make([]*Record, 0, len(telHandles))
	seen := make(map[uint32]bool, len(telHandles))
	for i, h := range telHandles {
		bus, err := tel.BusID(h)
		if err != nil {
			return nil, fmt.Errorf("reading bus id of device %d: %w", i, err)
		}
		if seen[bus] {
			return nil, fmt.Errorf("%w: bus %d reported twice by telemetry provider", ErrDuplicateBus, bus)
		}
		seen[bus] = true

		native, ok := byBus[bus]
		if !ok {
			return nil, fmt.Errorf("%w: device %d (bus %d) has no native handle", ErrBusMismatch, i, bus)
		}

		name, err := tel.Name(h)
		if err != nil {
			return nil, fmt.Errorf("reading name of device %d: %w", i, err)
		}

		records = append(records, &Record{
			Index:            i,
			Perf:             native,
			Telemetry:        h,
			Bus:              bus,
			Name:             name,
			Path:             PathNative,
			Level:            LevelLow,
			CurrentMemClock:  ClockAuto,
			CurrentCoreClock: ClockAuto,
		})
	}

	return &Table{records: records}, nil
}
