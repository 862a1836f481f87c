// Package hw defines the capability surface gpustated needs from the two
// NVIDIA driver libraries.
//
// Two independent providers exist for every GPU:
//
//   - PerfAPI: the native control path. It can enumerate devices and force a
//     discrete performance state (NVAPI).
//   - TelemetryAPI: the sensor and override control path. It can enumerate
//     devices, read temperature and utilization, and pin or reset explicit
//     application clocks (NVML).
//
// The two providers enumerate devices in unrelated orders; handles from one
// provider must never be passed to the other. The device package correlates
// the two orderings by PCI bus id and stores one handle per provider on each
// device record.
//
// Adapters for the real libraries live in the nvapi and nvmlapi
// sub-packages. Deterministic in-memory providers for tests live in hwtest.
package hw
