package device

import "errors"

// Domain errors for the device package. Check with errors.Is().
var (
	// ErrCountMismatch is returned when the two providers report different
	// device counts; a bijection between them cannot exist.
	ErrCountMismatch = errors.New("device: provider device counts differ")

	// ErrBusMismatch is returned when a bus id seen by one provider has no
	// counterpart in the other. Matching is never best-effort: a silently
	// skipped device would leave later control calls targeting the wrong
	// card.
	ErrBusMismatch = errors.New("device: no matching device for bus id")

	// ErrDuplicateBus is returned when a provider reports the same bus id
	// twice; bus ids are the physical key and must be unique.
	ErrDuplicateBus = errors.New("device: duplicate bus id")

	// ErrNoManagedDevices is returned when the configured selection leaves
	// nothing for the daemon to control.
	ErrNoManagedDevices = errors.New("device: no devices to manage")
)
