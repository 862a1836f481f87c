// Package monitor runs the per-device decision loop.
//
// Each tick visits every managed device in canonical index order, reads its
// sensors, and applies the policy: temperature above the ceiling forces LOW
// immediately, any activity promotes to HIGH, and sustained idleness demotes
// to LOW after a hysteresis delay. The thermal check always wins; a device
// over the ceiling is never promoted no matter what utilization says.
//
// The loop is the sole owner of the device table. Cancellation is observed
// at tick boundaries only: a stop request arriving mid-tick lets the
// in-flight device call finish and takes effect before the next tick.
package monitor
