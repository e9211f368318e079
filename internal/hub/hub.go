package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kioskfleet/fleet-core/internal/device"
	"github.com/kioskfleet/fleet-core/internal/infrastructure/config"
	"github.com/kioskfleet/fleet-core/internal/infrastructure/logging"
)

// Hub manages WebSocket connections and broadcasts events.
//
// Delivery is fire and forget: a slow client's buffer fills and messages
// for it are dropped rather than blocking the broadcast path. Clients are
// expected to reconcile via the REST API after reconnecting.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// New creates a new WebSocket hub.
func New(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
//
// Device connections are automatically subscribed to their own channel and
// the shared fleet channel so commands and fleet-wide pushes reach them
// without an explicit subscribe.
// Operator connections (admin, viewer) are automatically subscribed to the
// fleet-wide status and lifecycle channels; per-device channels remain
// opt-in via a subscribe message.
func (h *Hub) Register(client *Client) {
	client.mu.Lock()
	if client.deviceID != "" {
		client.subscriptions[DeviceChannel(client.deviceID)] = struct{}{}
		client.subscriptions[ChannelFleet] = struct{}{}
	} else {
		client.subscriptions[ChannelStatus] = struct{}{}
		client.subscriptions[ChannelDevices] = struct{}{}
	}
	client.mu.Unlock()

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected",
		"device_id", client.deviceID,
		"clients", h.ClientCount(),
	)
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast sends an event to all clients subscribed to the given channel.
// Lock ordering: hub lock is acquired first, then released before per-client
// subscription checks. This avoids holding both hub and client locks
// simultaneously.
func (h *Hub) Broadcast(channel string, payload any) {
	msg := Message{
		Type:      TypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sentCount := 0
	for _, client := range clients {
		if client.isSubscribed(channel) {
			client.trySend(data)
			sentCount++
		}
	}
	if sentCount > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sentCount)
	}
}

// DeviceStatusChanged broadcasts a status change to the fleet status
// channel and the device's own channel. It implements device.Notifier.
func (h *Hub) DeviceStatusChanged(change device.StatusChange) {
	payload := statusEventPayload{
		DeviceID:       change.DeviceID,
		DeviceIDString: change.DeviceID,
		Status:         change.Status,
		LastSeen:       change.LastSeen,
	}
	h.Broadcast(ChannelStatus, payload)
	h.Broadcast(DeviceChannel(change.DeviceID), payload)
}

// RouteCommand delivers a command to the target device's connection.
//
// Delivery is fire and forget: the command is queued on the device's send
// buffer and no acknowledgement is awaited. If the device has no active
// connection, ErrDeviceNotConnected is returned; callers treat that as a
// drop, nothing is queued for later delivery.
func (h *Hub) RouteCommand(cmd CommandPayload) error {
	msg := Message{
		Type:      TypeCommand,
		ID:        cmd.CommandID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   cmd,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var target *Client
	for client := range h.clients {
		if client.deviceID == cmd.DeviceID {
			target = client
			break
		}
	}
	h.mu.RUnlock()

	if target == nil {
		return ErrDeviceNotConnected
	}

	target.trySend(data)
	h.logger.Debug("command routed", "device_id", cmd.DeviceID, "command", cmd.Command)
	return nil
}

// IsDeviceConnected reports whether a device has an active connection.
func (h *Hub) IsDeviceConnected(deviceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.deviceID == deviceID {
			return true
		}
	}
	return false
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}
