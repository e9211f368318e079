package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kioskfleet/fleet-core/internal/auth"
	"github.com/kioskfleet/fleet-core/internal/device"
	"github.com/kioskfleet/fleet-core/internal/heartbeat"
)

// handleHeartbeat ingests a device heartbeat.
//
// Device tokens are scoped to their own device: a device may only post
// heartbeats for the ID baked into its token. Admin tokens may post for
// any device (used by provisioning tooling and tests).
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := claimsFromContext(r.Context())
	if claims != nil && claims.Role == auth.RoleDevice && claims.DeviceID != id {
		writeForbidden(w, "device token is not valid for this device")
		return
	}

	var report heartbeat.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.pipeline.Ingest(r.Context(), id, report)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not registered")
			return
		}
		writeInternalError(w, "failed to process heartbeat")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
