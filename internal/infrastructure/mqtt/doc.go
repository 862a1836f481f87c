// Package mqtt provides MQTT client connectivity for gpustated.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// gpustated publishes its status and per-GPU state transitions so that
// dashboards and home-lab automation can observe what the daemon is doing.
// The flow is strictly one-way: the daemon publishes, it never subscribes,
// so the broker carries no control path back into the controller.
//
//	gpustated → MQTT Broker → dashboards / automation
//
// # Security Considerations
//
//   - TLS is recommended for non-local brokers (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.GPUState(0)
//	client.PublishRetained(topic, []byte(`{"level":"high","path":"native"}`))
package mqtt
