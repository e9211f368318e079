// Package hub manages WebSocket connections for real-time fleet events.
//
// The hub is the fan-out point for device status changes: the heartbeat
// pipeline and staleness sweeper notify it after each committed
// transition, and it broadcasts the change to every subscribed
// connection. It also routes operator-dispatched commands to the target
// device's connection.
//
// # Channels
//
// Connections subscribe to named channels:
//
//	device.status_changed    all fleet status transitions
//	device.lifecycle         device registered/deleted events
//	device.{device_id}       events for a single device
//
// Device connections are auto-subscribed to their own channel and may
// not subscribe to any other. Operator connections subscribe freely.
//
// # Delivery Semantics
//
// Delivery is fire and forget. Messages for a slow client are dropped
// once its send buffer fills; the client reconciles via the REST API on
// reconnect. Command routing reports ErrDeviceNotConnected when no
// connection exists for the target, but a queued command carries no
// delivery guarantee beyond the buffer.
package hub
