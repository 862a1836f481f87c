// Package config loads and validates the daemon configuration.
//
// Configuration is layered: hardcoded defaults, then the YAML file, then
// GPUSTATED_* environment variable overrides. The defaults alone form a
// working configuration, so a missing file section never breaks startup.
package config
