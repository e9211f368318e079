package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kioskfleet/fleet-core/internal/device"
	"github.com/kioskfleet/fleet-core/internal/hub"
)

// CommandSpec describes one entry in the command catalog.
type CommandSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters,omitempty"`
}

// commandCatalog is the set of commands operators can dispatch to devices.
// The server validates the command name only; parameter semantics are the
// device agent's concern.
var commandCatalog = []CommandSpec{
	{
		Name:        "restart",
		Description: "Restart the device",
		Parameters:  []string{"delay_seconds"},
	},
	{
		Name:        "update",
		Description: "Apply a pending software update",
		Parameters:  []string{"version", "force"},
	},
	{
		Name:        "install_app",
		Description: "Install an application package",
		Parameters:  []string{"package_url", "checksum"},
	},
	{
		Name:        "uninstall_app",
		Description: "Remove an installed application",
		Parameters:  []string{"package_name"},
	},
	{
		Name:        "configure",
		Description: "Apply a configuration payload",
		Parameters:  []string{"config"},
	},
}

// isKnownCommand reports whether name is in the command catalog.
func isKnownCommand(name string) bool {
	for _, spec := range commandCatalog {
		if spec.Name == name {
			return true
		}
	}
	return false
}

// handleListCommands returns the command catalog.
func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": commandCatalog,
		"count":    len(commandCatalog),
	})
}

// dispatchCommandRequest is the body for a command dispatch.
type dispatchCommandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// dispatchCommandResponse acknowledges a queued command.
type dispatchCommandResponse struct {
	CommandID string `json:"command_id"`
	DeviceID  string `json:"device_id"`
	Command   string `json:"command"`
	Queued    bool   `json:"queued"`
}

// handleDispatchCommand routes a command to a connected device.
//
// Delivery is fire and forget: 202 means the dispatch was accepted, not
// that the device executed it. A device without an active connection is
// a silent no-op (queued: false); commands are never spooled for offline
// devices and never retried.
func (s *Server) handleDispatchCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var req dispatchCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !isKnownCommand(req.Command) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown command: "+req.Command)
		return
	}

	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	cmd := hub.CommandPayload{
		CommandID:  uuid.NewString(),
		DeviceID:   id,
		Command:    req.Command,
		Parameters: req.Parameters,
	}
	if claims := claimsFromContext(ctx); claims != nil {
		cmd.IssuedBy = claims.Subject
	}

	queued := true
	if err := s.hub.RouteCommand(cmd); err != nil {
		if !errors.Is(err, hub.ErrDeviceNotConnected) {
			writeInternalError(w, "failed to route command")
			return
		}
		// No live connection: dropped, not spooled.
		queued = false
		s.logger.Debug("command dropped, device not connected",
			"device_id", id,
			"command", req.Command,
		)
	}

	if queued {
		s.logger.Info("command dispatched",
			"device_id", id,
			"command", req.Command,
			"command_id", cmd.CommandID,
			"issued_by", cmd.IssuedBy,
		)
	}

	writeJSON(w, http.StatusAccepted, dispatchCommandResponse{
		CommandID: cmd.CommandID,
		DeviceID:  id,
		Command:   req.Command,
		Queued:    queued,
	})
}
