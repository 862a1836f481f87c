package mqtt

import "fmt"

// Topic prefixes for gpustated MQTT topics.
//
// The hierarchy is flat: gpustated/{subsystem}/{detail...}. State topics
// are retained so a dashboard connecting late still sees the current
// picture.
const (
	// TopicPrefix is the base for all gpustated topics.
	TopicPrefix = "gpustated"

	// TopicPrefixDaemon is the base for daemon-level topics.
	TopicPrefixDaemon = "gpustated/daemon"

	// TopicPrefixGPU is the base for per-GPU topics.
	TopicPrefixGPU = "gpustated/gpu"
)

// Topics provides builders for gpustated MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.GPUState(0)
//	// Returns: "gpustated/gpu/0/state"
type Topics struct{}

// DaemonStatus returns the daemon status topic.
//
// Example: gpustated/daemon/status
func (Topics) DaemonStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixDaemon)
}

// GPUState returns the state topic for a GPU by canonical index.
//
// Example: gpustated/gpu/0/state
func (Topics) GPUState(index int) string {
	return fmt.Sprintf("%s/%d/state", TopicPrefixGPU, index)
}

// AllGPUStates returns a pattern matching every per-GPU state topic.
// Intended for subscribers, not the daemon itself.
//
// Pattern: gpustated/gpu/+/state
func (Topics) AllGPUStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixGPU)
}
