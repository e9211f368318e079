package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kioskfleet/fleet-core/internal/device"
)

// handleListGroups returns all device groups.
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list groups")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups, "count": len(groups)})
}

// handleGetGroup returns a single group with its member devices.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrGroupNotFound) {
			writeNotFound(w, "group not found")
			return
		}
		writeInternalError(w, "failed to get group")
		return
	}

	members, err := s.repo.ListByGroup(ctx, id)
	if err != nil {
		writeInternalError(w, "failed to list group members")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group":   group,
		"devices": members,
		"count":   len(members),
	})
}

// handleCreateGroup creates a new device group.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var group device.Group
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if group.ID == "" {
		group.ID = device.GenerateID()
	}

	if err := device.ValidateGroup(&group); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.groups.Create(r.Context(), &group); err != nil {
		switch {
		case errors.Is(err, device.ErrGroupExists):
			writeConflict(w, "group ID already exists")
		case errors.Is(err, device.ErrGroupNotFound):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "parent group does not exist")
		default:
			writeInternalError(w, "failed to create group")
		}
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

// handleUpdateGroup modifies a group. Reparenting that would create a
// cycle in the group tree is rejected.
func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	existing, err := s.groups.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrGroupNotFound) {
			writeNotFound(w, "group not found")
			return
		}
		writeInternalError(w, "failed to get group")
		return
	}

	updated := *existing
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	if err := device.ValidateGroup(&updated); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.groups.Update(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, device.ErrGroupNotFound):
			writeNotFound(w, "group not found")
		case errors.Is(err, device.ErrGroupCycle):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "reparenting would create a cycle")
		default:
			writeInternalError(w, "failed to update group")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteGroup removes a group. Member devices and child groups are
// detached (group_id / parent_id nulled), never deleted.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.groups.Delete(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrGroupNotFound) {
			writeNotFound(w, "group not found")
			return
		}
		writeInternalError(w, "failed to delete group")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
