package device

import (
	"fmt"

	"github.com/gpustated/gpustated/internal/hw"
)

// Level is a named performance band. The daemon only distinguishes two.
type Level int

const (
	// LevelLow is the idle band. Every managed device is forced LOW once at
	// startup before the first sensor sample.
	LevelLow Level = iota

	// LevelHigh is the active band.
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelHigh:
		return "high"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ControlPath identifies which provider currently controls a device.
type ControlPath int

const (
	// PathNative drives the device through discrete performance states.
	// Every device starts here.
	PathNative ControlPath = iota

	// PathOverride pins explicit application clocks instead. A device moves
	// here at most once, when the native path rejects a request, and never
	// moves back.
	PathOverride
)

func (p ControlPath) String() string {
	switch p {
	case PathNative:
		return "native"
	case PathOverride:
		return "override"
	default:
		return fmt.Sprintf("path(%d)", int(p))
	}
}

// ClockAuto is the sentinel recorded in CurrentMemClock/CurrentCoreClock
// when the device's clocks are driver-managed rather than pinned. It is
// deliberately distinct from a literal zero, which is a valid "not yet
// populated" value for the cached minimums.
const ClockAuto = ^uint32(0)

// Record is the daemon's state for one physical GPU.
type Record struct {
	// Index is the canonical device index, assigned once by Reconcile and
	// stable for the life of the process.
	Index int

	// Perf is the native-path handle; Telemetry is the sensor/override-path
	// handle. Each belongs exclusively to the provider that produced it.
	Perf      hw.Handle
	Telemetry hw.Handle

	// Bus is the PCI bus id both handles were matched on.
	Bus uint32

	// Name is the device name reported by the telemetry provider.
	Name string

	// Managed reports whether this daemon controls the device.
	Managed bool

	// Path is the active control path.
	Path ControlPath

	// Level is the last successfully applied performance band.
	Level Level

	// Hysteresis counts consecutive idle ticks observed while HIGH. It is
	// reset on every level change and on any non-zero utilization sample.
	Hysteresis uint

	// MinMemClock and MinCoreClock cache the lowest supported clocks (MHz).
	// Populated lazily; only meaningful once Path is PathOverride or after
	// the startup prefetch succeeded.
	MinMemClock  uint32
	MinCoreClock uint32

	// CurrentMemClock and CurrentCoreClock are the last applied application
	// clocks, or ClockAuto when the driver manages them.
	CurrentMemClock  uint32
	CurrentCoreClock uint32
}
