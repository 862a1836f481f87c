// Package influxdb provides InfluxDB connectivity for gpustated.
//
// It wraps the official influxdb-client-go v2 library with patterns for
// connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Per-GPU temperature and utilization samples
//   - Power-level transitions (band, control path, applied clocks)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "gpustated",
//	    Bucket: "gpu_metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteTemperature(0, 63)
//	client.WriteUtilization(0, 97)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a
// callback. Connection and health check errors are returned directly.
// A failed write never stalls the monitoring loop.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). At a 100 ms tick this keeps network overhead to a
// handful of requests per flush interval.
package influxdb
