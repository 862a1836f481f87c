package control

import "errors"

// Domain errors for the control package. Check with errors.Is().
var (
	// ErrNoSupportedClocks is returned when the override path reports an
	// empty clock table; fallback cannot work without one.
	ErrNoSupportedClocks = errors.New("control: device reports no supported clocks")

	// ErrFallbackDisabled is returned when the native path rejects a
	// request and clock fallback is switched off.
	ErrFallbackDisabled = errors.New("control: native path failed and clock fallback is disabled")
)
