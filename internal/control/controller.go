package control

import (
	"fmt"
	"time"

	"github.com/gpustated/gpustated/internal/device"
	"github.com/gpustated/gpustated/internal/hw"
)

// Logger is the logging interface the controller needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Controller drives devices through the active control path.
type Controller struct {
	perf   hw.PerfAPI
	tel    hw.TelemetryAPI
	params Params
	events EventSink
	log    Logger
}

// New creates a controller over the two hardware providers.
func New(perf hw.PerfAPI, tel hw.TelemetryAPI, params Params) *Controller {
	return &Controller{
		perf:   perf,
		tel:    tel,
		params: params,
		log:    noopLogger{},
	}
}

// SetLogger attaches a logger. Pass nil to silence the controller.
func (c *Controller) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	c.log = l
}

// SetEvents attaches a sink for status events. May be nil.
func (c *Controller) SetEvents(sink EventSink) {
	c.events = sink
}

// SetLevel moves the device into the given band via its active control
// path. The call is always issued, even when the record already shows the
// requested band; only the fallback bookkeeping below is stateful.
//
// On the native path a rejected request either aborts (fallback disabled)
// or permanently degrades the device to the override path: the lowest
// supported clocks are queried once, cached on the record, and this and all
// future requests are served by pinning explicit clocks.
func (c *Controller) SetLevel(rec *device.Record, level device.Level) error {
	if !rec.Managed {
		return nil
	}

	if rec.Path == device.PathNative {
		pstate := c.pstateFor(level)
		err := c.perf.ForcePerformanceState(rec.Perf, pstate)
		if err == nil {
			rec.Level = level
			rec.Hysteresis = 0
			rec.CurrentMemClock = device.ClockAuto
			rec.CurrentCoreClock = device.ClockAuto
			c.log.Info("entered performance state",
				"gpu", rec.Index, "pstate", pstate, "level", level.String())
			c.emit(rec)
			return nil
		}

		if !c.params.FallbackClocks {
			return fmt.Errorf("gpu %d: forcing performance state %d: %w: %w",
				rec.Index, pstate, ErrFallbackDisabled, err)
		}

		c.log.Warn("performance state control rejected, falling back to clock control",
			"gpu", rec.Index, "pstate", pstate, "error", err)

		if rec.MinMemClock == 0 && rec.MinCoreClock == 0 {
			if qerr := c.DiscoverMinimumClocks(rec); qerr != nil {
				return qerr
			}
		}
		rec.Path = device.PathOverride
	}

	return c.applyClocks(rec, level)
}

// applyClocks serves a band change on the override path.
func (c *Controller) applyClocks(rec *device.Record, level device.Level) error {
	switch {
	case level == device.LevelHigh && c.params.HighMemClock == 0 && c.params.HighCoreClock == 0:
		// Auto means hand the clocks back to the driver, not pin them to
		// zero.
		if err := c.tel.ResetApplicationClocks(rec.Telemetry); err != nil {
			return fmt.Errorf("gpu %d: resetting clocks: %w", rec.Index, err)
		}
		rec.CurrentMemClock = device.ClockAuto
		rec.CurrentCoreClock = device.ClockAuto
		c.log.Info("clocks reset to auto", "gpu", rec.Index, "level", level.String())

	default:
		var mem, core uint32
		if level == device.LevelHigh {
			mem, core = c.params.HighMemClock, c.params.HighCoreClock
		} else {
			mem, core = c.params.LowMemClock, c.params.LowCoreClock
			if mem == 0 {
				mem = rec.MinMemClock
			}
			if core == 0 {
				core = rec.MinCoreClock
			}
		}
		if err := c.tel.SetApplicationClocks(rec.Telemetry, mem, core); err != nil {
			return fmt.Errorf("gpu %d: setting clocks to %d/%d MHz: %w", rec.Index, mem, core, err)
		}
		rec.CurrentMemClock = mem
		rec.CurrentCoreClock = core
		c.log.Info("clocks set",
			"gpu", rec.Index, "mem_mhz", mem, "core_mhz", core, "level", level.String())
	}

	rec.Level = level
	rec.Hysteresis = 0
	c.emit(rec)
	return nil
}

// DiscoverMinimumClocks queries and caches the device's lowest supported
// memory clock and the lowest core clock compatible with it. Results are
// cached on the record; callers skip the call when the cache is populated.
func (c *Controller) DiscoverMinimumClocks(rec *device.Record) error {
	mems, err := c.tel.SupportedMemoryClocks(rec.Telemetry)
	if err != nil {
		return fmt.Errorf("gpu %d: querying supported memory clocks: %w", rec.Index, err)
	}
	if len(mems) == 0 {
		return fmt.Errorf("gpu %d: %w (memory)", rec.Index, ErrNoSupportedClocks)
	}
	minMem := mems[0]
	for _, clk := range mems[1:] {
		if clk < minMem {
			minMem = clk
		}
	}

	cores, err := c.tel.SupportedGraphicsClocks(rec.Telemetry, minMem)
	if err != nil {
		return fmt.Errorf("gpu %d: querying supported core clocks for %d MHz: %w", rec.Index, minMem, err)
	}
	if len(cores) == 0 {
		return fmt.Errorf("gpu %d: %w (core, mem %d MHz)", rec.Index, ErrNoSupportedClocks, minMem)
	}
	minCore := cores[0]
	for _, clk := range cores[1:] {
		if clk < minCore {
			minCore = clk
		}
	}

	rec.MinMemClock = minMem
	rec.MinCoreClock = minCore
	c.log.Info("lowest supported clocks",
		"gpu", rec.Index, "mem_mhz", minMem, "core_mhz", minCore)
	return nil
}

// ResetDefaults drives the device toward a sane unmanaged state at
// shutdown. A device still on the native path is forced into the HIGH
// state; a device on the override path gets its clocks handed back to the
// driver instead.
func (c *Controller) ResetDefaults(rec *device.Record) error {
	if !rec.Managed {
		return nil
	}

	if rec.Path == device.PathOverride {
		if err := c.tel.ResetApplicationClocks(rec.Telemetry); err != nil {
			return fmt.Errorf("gpu %d: resetting clocks: %w", rec.Index, err)
		}
		rec.CurrentMemClock = device.ClockAuto
		rec.CurrentCoreClock = device.ClockAuto
		c.log.Info("clocks reset to auto", "gpu", rec.Index)
		return nil
	}

	pstate := c.params.PstateHigh
	if err := c.perf.ForcePerformanceState(rec.Perf, pstate); err != nil {
		return fmt.Errorf("gpu %d: forcing performance state %d: %w", rec.Index, pstate, err)
	}
	rec.Level = device.LevelHigh
	rec.Hysteresis = 0
	c.log.Info("entered performance state", "gpu", rec.Index, "pstate", pstate)
	c.emit(rec)
	return nil
}

// pstateFor maps a band to its configured discrete performance state.
func (c *Controller) pstateFor(level device.Level) uint32 {
	if level == device.LevelHigh {
		return c.params.PstateHigh
	}
	return c.params.PstateLow
}

// emit reports the record's state to the event sink, if any.
func (c *Controller) emit(rec *device.Record) {
	if c.events == nil {
		return
	}
	c.events.StatusChanged(StatusEvent{
		Device:    rec.Index,
		Level:     rec.Level,
		Path:      rec.Path,
		MemClock:  rec.CurrentMemClock,
		CoreClock: rec.CurrentCoreClock,
		At:        time.Now().UTC(),
	})
}
