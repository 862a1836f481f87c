// Package nvapi adapts the NVIDIA driver's NvAPI to hw.PerfAPI.
//
// NvAPI ships with the display driver but has no import library on either
// platform: the only documented entry point is nvapi_QueryInterface, which
// maps a fixed interface id to a function pointer. This package loads the
// library at runtime (nvapi64.dll/nvapi.dll on Windows, libnvidia-api.so on
// Linux), resolves the handful of entry points the daemon needs, and calls
// them through the platform's foreign-function mechanism.
package nvapi

import (
	"fmt"
	"unsafe"

	"github.com/gpustated/gpustated/internal/hw"
)

// maxPhysicalGPUs is NVAPI_MAX_PHYSICAL_GPUS, the fixed size of the handle
// array NvAPI_EnumPhysicalGPUs fills.
const maxPhysicalGPUs = 64

// Interface ids accepted by nvapi_QueryInterface.
const (
	idInitialize        = 0x0150e828
	idUnload            = 0xd22bdd7e
	idGetErrorMessage   = 0x6c2d048c
	idEnumPhysicalGPUs  = 0xe5ac921f
	idGPUGetBusID       = 0x1be0b8e5
	idGPUSetForcePstate = 0x025bfb10
)

// statusOK is NVAPI_OK.
const statusOK int32 = 0

// shortString is NvAPI_ShortString, a fixed 64-byte C string buffer.
type shortString [64]byte

func (s *shortString) String() string {
	for i, b := range s {
		if b == 0 {
			return string(s[:i])
		}
	}
	return string(s[:])
}

// API implements hw.PerfAPI on top of NvAPI. Handles returned by EnumDevices
// are NvPhysicalGpuHandle values carried as uintptr.
//
// API is not safe for concurrent use; the daemon drives it from the single
// loop goroutine.
type API struct {
	lib            uintptr
	queryInterface uintptr

	fnInitialize       uintptr
	fnUnload           uintptr
	fnGetErrorMessage  uintptr
	fnEnumPhysicalGPUs uintptr
	fnGetBusID         uintptr
	fnSetForcePstate   uintptr
}

// New returns an NvAPI-backed performance-state provider. Init must be
// called before any other method.
func New() *API {
	return &API{}
}

// Init loads the NvAPI library, resolves the required entry points through
// nvapi_QueryInterface, and calls NvAPI_Initialize.
func (a *API) Init() error {
	lib, query, err := openLibrary()
	if err != nil {
		return err
	}
	a.lib = lib
	a.queryInterface = query

	a.fnInitialize = a.resolve(idInitialize)
	a.fnUnload = a.resolve(idUnload)
	a.fnGetErrorMessage = a.resolve(idGetErrorMessage)
	a.fnEnumPhysicalGPUs = a.resolve(idEnumPhysicalGPUs)
	a.fnGetBusID = a.resolve(idGPUGetBusID)
	a.fnSetForcePstate = a.resolve(idGPUSetForcePstate)

	for _, fn := range []struct {
		name string
		addr uintptr
	}{
		{"NvAPI_Initialize", a.fnInitialize},
		{"NvAPI_Unload", a.fnUnload},
		{"NvAPI_EnumPhysicalGPUs", a.fnEnumPhysicalGPUs},
		{"NvAPI_GPU_GetBusId", a.fnGetBusID},
		{"NvAPI_GPU_SetForcePstate", a.fnSetForcePstate},
	} {
		if fn.addr == 0 {
			a.close()
			return fmt.Errorf("nvapi: %s is not exported by this driver", fn.name)
		}
	}

	if err := a.status("NvAPI_Initialize", call(a.fnInitialize)); err != nil {
		a.close()
		return err
	}
	return nil
}

// Shutdown calls NvAPI_Unload and releases the library.
func (a *API) Shutdown() error {
	if a.lib == 0 {
		return nil
	}
	err := a.status("NvAPI_Unload", call(a.fnUnload))
	a.close()
	return err
}

// EnumDevices returns a handle for every physical GPU, in NvAPI's own order.
func (a *API) EnumDevices() ([]hw.Handle, error) {
	var handles [maxPhysicalGPUs]uintptr
	var count uint32

	ret := call(a.fnEnumPhysicalGPUs,
		uintptr(unsafe.Pointer(&handles)),
		uintptr(unsafe.Pointer(&count)))
	if err := a.status("NvAPI_EnumPhysicalGPUs", ret); err != nil {
		return nil, err
	}

	out := make([]hw.Handle, 0, count)
	for i := uint32(0); i < count && i < maxPhysicalGPUs; i++ {
		out = append(out, handles[i])
	}
	return out, nil
}

// BusID returns the PCI bus id of the device.
func (a *API) BusID(h hw.Handle) (uint32, error) {
	var bus uint32
	ret := call(a.fnGetBusID, h.(uintptr), uintptr(unsafe.Pointer(&bus)))
	if err := a.status("NvAPI_GPU_GetBusId", ret); err != nil {
		return 0, err
	}
	return bus, nil
}

// ForcePerformanceState forces the device into the given performance state.
func (a *API) ForcePerformanceState(h hw.Handle, pstate uint32) error {
	ret := call(a.fnSetForcePstate, h.(uintptr), uintptr(pstate), 0)
	return a.status("NvAPI_GPU_SetForcePstate", ret)
}

// resolve maps an interface id to a function pointer, or 0 when the driver
// does not export it.
func (a *API) resolve(id uint32) uintptr {
	return call(a.queryInterface, uintptr(id))
}

// status converts an NvAPI_Status return value into an error, using
// NvAPI_GetErrorMessage for the description when available.
func (a *API) status(op string, ret uintptr) error {
	code := int32(ret)
	if code == statusOK {
		return nil
	}
	return fmt.Errorf("%s: %s", op, a.errorMessage(code))
}

// errorMessage translates a status code into the driver's description.
func (a *API) errorMessage(code int32) string {
	if a.fnGetErrorMessage == 0 {
		return fmt.Sprintf("status %d", code)
	}
	var buf shortString
	ret := call(a.fnGetErrorMessage,
		uintptr(uint32(code)),
		uintptr(unsafe.Pointer(&buf)))
	if int32(ret) != statusOK {
		return fmt.Sprintf("status %d", code)
	}
	return buf.String()
}

// close releases the library handle and clears all resolved pointers.
func (a *API) close() {
	if a.lib != 0 {
		_ = closeLibrary(a.lib)
	}
	*a = API{}
}
