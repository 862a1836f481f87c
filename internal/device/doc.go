// Package device owns the per-GPU records the daemon operates on.
//
// A Record holds everything the controller knows about one physical card:
// the canonical index, one native handle per hardware provider, the current
// performance level, the hysteresis counter, and the active control path.
//
// Records are created once at startup by Reconcile, which correlates the two
// providers' independently-ordered device lists by PCI bus id. After that
// the table has a single owner (the monitoring loop) and is never mutated
// from anywhere else, so the package uses no synchronisation.
package device
