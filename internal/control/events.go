package control

import (
	"time"

	"github.com/gpustated/gpustated/internal/device"
)

// StatusEvent describes one successful performance-level transition.
type StatusEvent struct {
	// Device is the canonical device index.
	Device int

	// Level is the band the device entered.
	Level device.Level

	// Path is the control path that served the transition.
	Path device.ControlPath

	// MemClock and CoreClock are the application clocks in effect after the
	// transition, or device.ClockAuto when the driver manages them (always
	// the case on the native path).
	MemClock  uint32
	CoreClock uint32

	// At is when the transition completed.
	At time.Time
}

// EventSink receives status events. Implementations must not block the
// caller; the monitoring loop emits events from its only goroutine.
type EventSink interface {
	StatusChanged(ev StatusEvent)
}

// FanoutSink forwards each event to every wrapped sink, in order.
type FanoutSink []EventSink

func (f FanoutSink) StatusChanged(ev StatusEvent) {
	for _, s := range f {
		s.StatusChanged(ev)
	}
}
