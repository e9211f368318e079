package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kioskfleet/fleet-core/internal/device"
	"github.com/kioskfleet/fleet-core/internal/hub"
)

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - status: filter by status (offline, online, maintenance, error)
//   - group_id: filter by group
//   - type: filter by device type (kiosk, tablet, display, signage)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := device.Status(statusStr)
		if !device.IsValidStatus(status) {
			writeBadRequest(w, "invalid status filter")
			return
		}
		devices, err := s.repo.ListByStatus(ctx, status)
		if err != nil {
			writeInternalError(w, "failed to list devices")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	if groupID := r.URL.Query().Get("group_id"); groupID != "" {
		devices, err := s.repo.ListByGroup(ctx, groupID)
		if err != nil {
			writeInternalError(w, "failed to list devices")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	if typeStr := r.URL.Query().Get("type"); typeStr != "" {
		devices, err := s.repo.ListByType(ctx, device.DeviceType(typeStr))
		if err != nil {
			writeInternalError(w, "failed to list devices")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	devices, err := s.repo.List(ctx)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice registers a new device.
//
// Devices always start offline; a posted status is ignored. The caller
// supplies the device ID (it is baked into the device's provisioning
// token, so the server never generates it).
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev.Status = device.StatusOffline
	dev.LastSeen = nil
	dev.LastHeartbeat = nil
	if claims := claimsFromContext(r.Context()); claims != nil {
		dev.CreatedBy = claims.Subject
	}

	if err := device.ValidateDevice(&dev); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.repo.Create(r.Context(), &dev); err != nil {
		if errors.Is(err, device.ErrDeviceExists) {
			writeConflict(w, "device ID already registered")
			return
		}
		writeInternalError(w, "failed to create device")
		return
	}

	s.hub.Broadcast(hub.ChannelDevices, map[string]any{
		"event":     "registered",
		"device_id": dev.ID,
	})

	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice partially updates a device's descriptive fields.
// Status, last_seen, and last_heartbeat cannot be changed here.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	// Decode partial update onto a copy of the existing device, then
	// restore the fields the endpoint must not touch.
	updated := existing.DeepCopy()
	if err := json.NewDecoder(r.Body).Decode(updated); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	updated.ID = existing.ID
	updated.Status = existing.Status
	updated.LastSeen = existing.LastSeen
	updated.LastHeartbeat = existing.LastHeartbeat
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt

	if err := device.ValidateDevice(updated); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteDevice removes a device and its logs.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	if s.cache != nil {
		s.cache.Invalidate(id)
	}

	s.hub.Broadcast(hub.ChannelDevices, map[string]any{
		"event":     "deleted",
		"device_id": id,
	})

	w.WriteHeader(http.StatusNoContent)
}

// statusResponse is the payload for the fast-path status read.
type statusResponse struct {
	DeviceID string        `json:"device_id"`
	Status   device.Status `json:"status"`
	LastSeen *time.Time    `json:"last_seen,omitempty"`
	Source   string        `json:"source"`
}

// handleGetStatus returns a device's current status, cache first.
//
// A cache hit avoids the database entirely; a miss reads the store and
// repopulates the cache. The cache is never authoritative: operators who
// need certainty read the full device record instead.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.cache != nil {
		if cached, ok := s.cache.Get(id); ok {
			lastSeen := cached.LastSeen
			writeJSON(w, http.StatusOK, statusResponse{
				DeviceID: id,
				Status:   cached.Status,
				LastSeen: &lastSeen,
				Source:   "cache",
			})
			return
		}
	}

	dev, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device status")
		return
	}

	if s.cache != nil && dev.LastSeen != nil {
		s.cache.Set(id, device.CachedStatus{
			Status:   dev.Status,
			LastSeen: *dev.LastSeen,
		})
	}

	writeJSON(w, http.StatusOK, statusResponse{
		DeviceID: id,
		Status:   dev.Status,
		LastSeen: dev.LastSeen,
		Source:   "store",
	})
}

// setStatusRequest is the body for an operator status override.
type setStatusRequest struct {
	Status device.Status `json:"status"`
}

// handleSetStatus applies an operator status override.
//
// Overrides are unconditional: they are the only way in or out of
// maintenance and error. Watchers are notified like any other transition.
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !device.IsValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid status")
		return
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if err := s.repo.SetStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to set device status")
		return
	}

	now := time.Now().UTC()
	lastSeen := now
	if existing.LastSeen != nil {
		lastSeen = *existing.LastSeen
	}

	if s.cache != nil {
		s.cache.Set(id, device.CachedStatus{
			Status:   req.Status,
			LastSeen: lastSeen,
		})
	}

	if existing.Status != req.Status {
		s.notifier.DeviceStatusChanged(device.StatusChange{
			DeviceID: id,
			Status:   req.Status,
			LastSeen: lastSeen,
		})
	}

	writeJSON(w, http.StatusOK, statusResponse{
		DeviceID: id,
		Status:   req.Status,
		LastSeen: &lastSeen,
		Source:   "store",
	})
}

// fleetStats summarises the fleet for dashboards.
type fleetStats struct {
	Total       int                       `json:"total"`
	ByStatus    map[device.Status]int     `json:"by_status"`
	ByType      map[device.DeviceType]int `json:"by_type"`
	Connections int                       `json:"websocket_clients"`
}

// handleFleetStats returns aggregate fleet counts.
func (s *Server) handleFleetStats(w http.ResponseWriter, r *http.Request) {
	devices, err := s.repo.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	stats := fleetStats{
		Total:    len(devices),
		ByStatus: make(map[device.Status]int),
		ByType:   make(map[device.DeviceType]int),
	}
	for i := range devices {
		stats.ByStatus[devices[i].Status]++
		stats.ByType[devices[i].Type]++
	}
	stats.Connections = s.hub.ClientCount()

	writeJSON(w, http.StatusOK, stats)
}

// handleListLogs returns a device's log entries, newest first.
//
// Query parameters:
//   - level: filter by level (debug, info, warn, error, fatal)
//   - limit: maximum entries to return (default 100)
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	// Confirm the device exists so unknown IDs 404 instead of returning
	// an empty list.
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	level := device.LogLevel(r.URL.Query().Get("level"))
	if level != "" && !device.IsValidLogLevel(level) {
		writeBadRequest(w, "invalid log level filter")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	logs, err := s.repo.ListLogs(ctx, id, level, limit)
	if err != nil {
		writeInternalError(w, "failed to list device logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}
