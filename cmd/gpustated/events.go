package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gpustated/gpustated/internal/control"
	"github.com/gpustated/gpustated/internal/device"
	"github.com/gpustated/gpustated/internal/infrastructure/influxdb"
	"github.com/gpustated/gpustated/internal/infrastructure/logging"
	"github.com/gpustated/gpustated/internal/infrastructure/mqtt"
	"github.com/gpustated/gpustated/internal/journal"
)

// journalWriteTimeout bounds each journal insert so a wedged disk cannot
// stall the monitoring loop for more than one tick's worth of time.
const journalWriteTimeout = 2 * time.Second

// logSink logs every transition.
type logSink struct {
	log *logging.Logger
}

func (s *logSink) StatusChanged(ev control.StatusEvent) {
	s.log.Info("level transition",
		"device", ev.Device,
		"level", ev.Level.String(),
		"path", ev.Path.String(),
		"mem_clock_mhz", clockValue(ev.MemClock),
		"core_clock_mhz", clockValue(ev.CoreClock),
	)
}

// statePayload is the JSON body published to the per-GPU state topic.
type statePayload struct {
	Level     string `json:"level"`
	Path      string `json:"path"`
	MemClock  uint32 `json:"mem_clock_mhz,omitempty"`
	CoreClock uint32 `json:"core_clock_mhz,omitempty"`
	Timestamp string `json:"timestamp"`
}

// mqttSink publishes transitions as retained per-GPU state messages.
type mqttSink struct {
	client *mqtt.Client
	log    *logging.Logger
}

func (s *mqttSink) StatusChanged(ev control.StatusEvent) {
	payload := statePayload{
		Level:     ev.Level.String(),
		Path:      ev.Path.String(),
		MemClock:  clockValue(ev.MemClock),
		CoreClock: clockValue(ev.CoreClock),
		Timestamp: ev.At.UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("encoding state payload", "device", ev.Device, "error", err)
		return
	}

	topic := mqtt.Topics{}.GPUState(ev.Device)
	if err := s.client.PublishRetained(topic, data); err != nil {
		// A broker outage must not affect control decisions.
		s.log.Warn("publishing state", "topic", topic, "error", err)
	}
}

// influxSink records transitions as time-series points. It also serves as
// the loop's telemetry sink for temperature and utilization samples.
type influxSink struct {
	client *influxdb.Client
}

func (s *influxSink) StatusChanged(ev control.StatusEvent) {
	s.client.WriteTransition(ev.Device, ev.Level.String(), ev.Path.String(),
		clockValue(ev.MemClock), clockValue(ev.CoreClock))
}

func (s *influxSink) RecordTemperature(dev int, celsius uint32) {
	s.client.WriteTemperature(dev, celsius)
}

func (s *influxSink) RecordUtilization(dev int, percent uint32) {
	s.client.WriteUtilization(dev, percent)
}

// journalSink appends transitions to the SQLite audit journal.
type journalSink struct {
	journal *journal.Journal
	log     *logging.Logger
}

func (s *journalSink) StatusChanged(ev control.StatusEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	err := s.journal.RecordTransition(ctx, ev.Device, ev.Level.String(), ev.Path.String(),
		clockValue(ev.MemClock), clockValue(ev.CoreClock))
	if err != nil {
		s.log.Warn("journalling transition", "device", ev.Device, "error", err)
	}
}

// clockValue maps driver-managed clocks to zero for display and storage.
func clockValue(clock uint32) uint32 {
	if clock == device.ClockAuto {
		return 0
	}
	return clock
}
