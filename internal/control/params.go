package control

import "time"

// Params are the policy parameters shared by the controller and the
// monitoring loop. They are fixed at startup and never mutated afterwards.
type Params struct {
	// PstateHigh and PstateLow are the discrete performance states the
	// native path forces for the HIGH and LOW bands.
	PstateHigh uint32
	PstateLow  uint32

	// Explicit clocks (MHz) for the override path. Zero means auto: for the
	// HIGH band auto resets clocks to driver management, for the LOW band
	// it selects the device's lowest supported clocks.
	HighMemClock  uint32
	HighCoreClock uint32
	LowMemClock   uint32
	LowCoreClock  uint32

	// FallbackClocks enables the one-way fallback to the override path when
	// the native path rejects a request.
	FallbackClocks bool

	// HysteresisThreshold is the number of consecutive idle ticks a device
	// may spend HIGH before it is demoted.
	HysteresisThreshold uint

	// TemperatureCeiling (degrees Celsius) forces LOW immediately when
	// exceeded, bypassing hysteresis.
	TemperatureCeiling uint32

	// PollInterval is the sleep between monitoring ticks.
	PollInterval time.Duration
}
