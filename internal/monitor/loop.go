package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/gpustated/gpustated/internal/control"
	"github.com/gpustated/gpustated/internal/device"
	"github.com/gpustated/gpustated/internal/hw"
)

// Logger is the logging interface the loop needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TelemetrySink receives raw sensor samples as they are read. Utilization
// is only reported for ticks where it was actually sampled; a device over
// the thermal ceiling skips the utilization read entirely.
type TelemetrySink interface {
	RecordTemperature(dev int, celsius uint32)
	RecordUtilization(dev int, percent uint32)
}

// Loop owns the device table and drives the control policy.
type Loop struct {
	table  *device.Table
	ctrl   *control.Controller
	tel    hw.TelemetryAPI
	params control.Params
	log    Logger
	sink   TelemetrySink
}

// New creates a monitoring loop over the given table and controller.
func New(table *device.Table, ctrl *control.Controller, tel hw.TelemetryAPI, params control.Params) *Loop {
	return &Loop{
		table:  table,
		ctrl:   ctrl,
		tel:    tel,
		params: params,
		log:    noopLogger{},
	}
}

// SetLogger attaches a logger. Pass nil to silence the loop.
func (l *Loop) SetLogger(log Logger) {
	if log == nil {
		log = noopLogger{}
	}
	l.log = log
}

// SetTelemetrySink attaches an optional sink for raw sensor samples.
func (l *Loop) SetTelemetrySink(sink TelemetrySink) {
	l.sink = sink
}

// Baseline forces every managed device LOW so the first policy decision
// starts from a known state. It must run before the first tick.
func (l *Loop) Baseline() error {
	for _, rec := range l.table.Records() {
		if err := l.ctrl.SetLevel(rec, device.LevelLow); err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
	}
	return nil
}

// Run executes the baseline and then ticks until the context is cancelled
// or a fatal error occurs. Cancellation is checked once per tick boundary;
// the sleep between ticks also honours it.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Baseline(); err != nil {
		return err
	}
	l.log.Info("monitoring loop started",
		"devices", l.table.ManagedCount(),
		"interval", l.params.PollInterval.String(),
	)

	for {
		if ctx.Err() != nil {
			l.log.Info("stop requested, leaving monitoring loop")
			return nil
		}
		if err := l.tick(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			l.log.Info("stop requested, leaving monitoring loop")
			return nil
		case <-time.After(l.params.PollInterval):
		}
	}
}

// tick processes every managed device once, in canonical index order.
// Sensor read failures are fatal: a controller that cannot see the card
// must not keep driving it.
func (l *Loop) tick() error {
	for _, rec := range l.table.Records() {
		if !rec.Managed {
			continue
		}

		temp, err := l.tel.Temperature(rec.Telemetry)
		if err != nil {
			return fmt.Errorf("gpu %d: reading temperature: %w", rec.Index, err)
		}
		if l.sink != nil {
			l.sink.RecordTemperature(rec.Index, temp)
		}

		// Thermal check first, always. Over the ceiling nothing else is
		// consulted this tick, not even utilization.
		if temp > l.params.TemperatureCeiling {
			if rec.Level != device.LevelLow {
				l.log.Warn("temperature above ceiling, forcing low",
					"gpu", rec.Index, "temp_c", temp, "ceiling_c", l.params.TemperatureCeiling)
				if err := l.ctrl.SetLevel(rec, device.LevelLow); err != nil {
					return err
				}
			}
			continue
		}

		util, err := l.tel.Utilization(rec.Telemetry)
		if err != nil {
			return fmt.Errorf("gpu %d: reading utilization: %w", rec.Index, err)
		}
		if l.sink != nil {
			l.sink.RecordUtilization(rec.Index, util)
		}

		if util != 0 {
			if rec.Level != device.LevelHigh {
				if err := l.ctrl.SetLevel(rec, device.LevelHigh); err != nil {
					return err
				}
			} else {
				rec.Hysteresis = 0
			}
			continue
		}

		// Idle and under the ceiling. A device already LOW has nothing to
		// do; a HIGH device is demoted only after the hysteresis delay.
		if rec.Level != device.LevelLow {
			rec.Hysteresis++
			if rec.Hysteresis > l.params.HysteresisThreshold {
				if err := l.ctrl.SetLevel(rec, device.LevelLow); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Shutdown drives every managed device toward its default state. Failures
// are logged per device but do not stop the remaining devices from being
// reset; the first error is returned after all devices were attempted.
func (l *Loop) Shutdown() error {
	var firstErr error
	for _, rec := range l.table.Records() {
		if err := l.ctrl.ResetDefaults(rec); err != nil {
			l.log.Error("resetting device to defaults", "gpu", rec.Index, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
