//go:build windows

package nvapi

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// libraryNames are tried in order; 64-bit processes get nvapi64.dll.
var libraryNames = []string{"nvapi64.dll", "nvapi.dll"}

// openLibrary loads the NvAPI DLL and resolves nvapi_QueryInterface.
func openLibrary() (lib, query uintptr, err error) {
	var handle windows.Handle
	for _, name := range libraryNames {
		handle, err = windows.LoadLibrary(name)
		if err == nil {
			break
		}
	}
	if handle == 0 {
		return 0, 0, fmt.Errorf("nvapi: loading driver library: %w", err)
	}

	addr, err := windows.GetProcAddress(handle, "nvapi_QueryInterface")
	if err != nil {
		_ = windows.FreeLibrary(handle)
		return 0, 0, fmt.Errorf("nvapi: resolving nvapi_QueryInterface: %w", err)
	}
	return uintptr(handle), addr, nil
}

// closeLibrary releases the DLL.
func closeLibrary(lib uintptr) error {
	return windows.FreeLibrary(windows.Handle(lib))
}

// call invokes a resolved NvAPI function pointer.
func call(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := syscall.SyscallN(fn, args...)
	return r1
}
