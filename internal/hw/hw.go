package hw

// Handle is an opaque device handle owned by the provider that produced it.
// A Handle is only meaningful to the API that returned it; the device table
// keeps one per provider and hands each back to its owner.
type Handle any

// PerfAPI is the native control path: a library that can enumerate physical
// GPUs and force a discrete performance state.
//
// All calls are synchronous and must complete before the caller proceeds.
// Implementations translate vendor status codes into error text; a nil error
// always means the vendor call reported success.
type PerfAPI interface {
	// Init loads and initialises the underlying library. It must be called
	// before any other method.
	Init() error

	// Shutdown releases the underlying library. No other method may be
	// called afterwards.
	Shutdown() error

	// EnumDevices returns a handle for every physical GPU the library sees,
	// in the library's own order.
	EnumDevices() ([]Handle, error)

	// BusID returns the PCI bus id for the device. Bus ids are the shared
	// physical key used to correlate handles across providers.
	BusID(h Handle) (uint32, error)

	// ForcePerformanceState forces the device into the given discrete
	// performance state.
	ForcePerformanceState(h Handle, pstate uint32) error
}

// TelemetryAPI is the sensor and override control path: a library that can
// enumerate GPUs, read their sensors, and drive explicit application clocks
// when the native path is unavailable.
type TelemetryAPI interface {
	// Init loads and initialises the underlying library.
	Init() error

	// Shutdown releases the underlying library.
	Shutdown() error

	// EnumDevices returns a handle for every GPU, in the library's own
	// order. This order is the canonical device order for the daemon.
	EnumDevices() ([]Handle, error)

	// BusID returns the PCI bus id for the device.
	BusID(h Handle) (uint32, error)

	// Name returns the marketing name of the device.
	Name(h Handle) (string, error)

	// Temperature returns the current GPU core temperature in degrees
	// Celsius.
	Temperature(h Handle) (uint32, error)

	// Utilization returns the current GPU utilization percentage.
	// Zero means the device is idle.
	Utilization(h Handle) (uint32, error)

	// SupportedMemoryClocks returns the memory clocks (MHz) the device
	// supports for application clock pinning.
	SupportedMemoryClocks(h Handle) ([]uint32, error)

	// SupportedGraphicsClocks returns the graphics clocks (MHz) compatible
	// with the given memory clock.
	SupportedGraphicsClocks(h Handle, memClockMHz uint32) ([]uint32, error)

	// SetApplicationClocks pins the device to the given memory and graphics
	// clocks (MHz).
	SetApplicationClocks(h Handle, memClockMHz, coreClockMHz uint32) error

	// ResetApplicationClocks returns clock management to the driver.
	ResetApplicationClocks(h Handle) error
}
