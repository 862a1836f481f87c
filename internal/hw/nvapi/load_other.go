//go:build !linux && !windows

package nvapi

import "errors"

// NvAPI only exists on platforms NVIDIA ships display drivers for.

func openLibrary() (lib, query uintptr, err error) {
	return 0, 0, errors.New("nvapi: not supported on this platform")
}

func closeLibrary(_ uintptr) error {
	return nil
}

func call(_ uintptr, _ ...uintptr) uintptr {
	return 0
}
