//go:build linux

package nvapi

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// libraryNames are tried in order; the versioned name is what driver
// packages actually install.
var libraryNames = []string{"libnvidia-api.so.1", "libnvidia-api.so"}

// openLibrary loads the NvAPI shared object and resolves
// nvapi_QueryInterface.
func openLibrary() (lib, query uintptr, err error) {
	for _, name := range libraryNames {
		lib, err = purego.Dlopen(name, purego.RTLD_LAZY|purego.RTLD_LOCAL)
		if err == nil {
			break
		}
	}
	if lib == 0 {
		return 0, 0, fmt.Errorf("nvapi: loading driver library: %w", err)
	}

	query, err = purego.Dlsym(lib, "nvapi_QueryInterface")
	if err != nil {
		_ = purego.Dlclose(lib)
		return 0, 0, fmt.Errorf("nvapi: resolving nvapi_QueryInterface: %w", err)
	}
	return lib, query, nil
}

// closeLibrary releases the shared object.
func closeLibrary(lib uintptr) error {
	return purego.Dlclose(lib)
}

// call invokes a resolved NvAPI function pointer.
func call(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(fn, args...)
	return r1
}
