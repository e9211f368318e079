package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kioskfleet/fleet-core/internal/auth"
	"github.com/kioskfleet/fleet-core/internal/hub"
)

// upgrader upgrades HTTP connections to WebSocket.
//
// Origin checking is delegated to the CORS middleware, which runs before
// the upgrade on the same route.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket upgrades an authenticated request to a WebSocket
// connection and attaches it to the hub.
//
// Operator connections (viewer/admin) are auto-subscribed to the
// fleet-wide status and lifecycle channels; per-device channels are
// opt-in via subscribe messages. Device connections are bound to the
// device identity in their token and auto-subscribed to their own
// channel plus the fleet channel.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	var userID, deviceID string
	if claims.Role == auth.RoleDevice {
		deviceID = claims.DeviceID
	} else {
		userID = claims.Subject
	}

	client := hub.NewClient(s.hub, conn, userID, claims.Role, deviceID)
	s.hub.Register(client)

	s.logger.Info("websocket client connected",
		"user_id", userID,
		"device_id", deviceID,
		"role", string(claims.Role),
	)

	go client.WritePump(s.wsCfg)
	go client.ReadPump(s.wsCfg)
}
