// Package control applies performance-level decisions to devices.
//
// The Controller exposes one operation the monitoring loop cares about,
// SetLevel, and hides the two control paths behind it. A device starts on
// the native path (discrete performance states). When the native path
// rejects a request and clock fallback is enabled, the controller queries
// and caches the device's lowest supported clocks, flips the device to the
// override path permanently, and serves that request and all future ones by
// pinning explicit application clocks.
//
// Every successful transition is reported through an EventSink so external
// consumers (log, MQTT, InfluxDB, the SQLite journal) observe the same
// stream of state changes.
package control
