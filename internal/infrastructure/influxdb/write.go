package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTemperature records a GPU temperature sample.
//
// The write is non-blocking; data is batched and sent asynchronously.
// The device tag is the canonical index, stable for the daemon's lifetime.
func (c *Client) WriteTemperature(device int, celsius uint32) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"gpu_temperature",
		map[string]string{
			"device": strconv.Itoa(device),
		},
		map[string]interface{}{
			"celsius": int64(celsius),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteUtilization records a GPU utilization sample.
func (c *Client) WriteUtilization(device int, percent uint32) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"gpu_utilization",
		map[string]string{
			"device": strconv.Itoa(device),
		},
		map[string]interface{}{
			"percent": int64(percent),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTransition records a power-level transition.
//
// Level and path are recorded as tags so dashboards can count transitions
// per band and spot devices that have degraded to clock control.
func (c *Client) WriteTransition(device int, level string, path string, memClock uint32, coreClock uint32) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"gpu_transition",
		map[string]string{
			"device": strconv.Itoa(device),
			"level":  level,
			"path":   path,
		},
		map[string]interface{}{
			"mem_clock_mhz":  int64(memClock),
			"core_clock_mhz": int64(coreClock),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
