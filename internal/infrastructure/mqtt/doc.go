// Package mqtt provides MQTT client connectivity for fleet-core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The broker is an optional mirror of the WebSocket hub: device status
// changes are republished to retained kioskfleet/status/{device_id}
// topics so external systems (monitoring walls, alerting) can follow
// the fleet without holding a WebSocket connection. The authoritative
// path stays in-process; the mirror is best effort.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
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
//	topic := mqtt.Topics{}.DeviceStatus("kiosk-lobby-01")
//	client.PublishRetained(topic, []byte(`{"status":"online"}`))
package mqtt
