package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/roomgate/internal/controller"
	"github.com/nerrad567/roomgate/internal/guestpin"
)

// PinRequest is the body of PUT /external/pins/{id}.
type PinRequest struct {
	Pin string `json:"pin"`
}

// handleSyncPin sets a room's guest PIN on its lock and in the store.
func (s *Server) handleSyncPin(w http.ResponseWriter, r *http.Request) {
	if s.pins == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "guest PIN service not configured")
		return
	}

	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	roomID := chi.URLParam(r, "id")
	if err := s.pins.Sync(r.Context(), roomID, req.Pin); err != nil {
		s.writePinError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "status": "synced"})
}

// handleDeletePin clears a room's guest PIN.
func (s *Server) handleDeletePin(w http.ResponseWriter, r *http.Request) {
	if s.pins == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "guest PIN service not configured")
		return
	}

	roomID := chi.URLParam(r, "id")
	if err := s.pins.Delete(r.Context(), roomID); err != nil {
		s.writePinError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "status": "deleted"})
}

func (s *Server) writePinError(w http.ResponseWriter, roomID string, err error) {
	var derr *controller.DispatchError
	switch {
	case errors.Is(err, guestpin.ErrInvalidPin):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "pin must be 4 to 8 digits")
	case errors.Is(err, guestpin.ErrRoomNotFound):
		writeNotFound(w, "room not found")
	case errors.Is(err, guestpin.ErrNoPinController):
		writeError(w, http.StatusConflict, ErrCodeValidation, "room has no pin controller")
	case errors.As(err, &derr):
		writeDispatchError(w, err, "")
	case errors.Is(err, guestpin.ErrPersistFailed):
		s.logger.Error("guest pin store out of sync", "room_id", roomID, "error", err)
		writeInternalError(w, "pin changed on the lock but not recorded")
	default:
		s.logger.Error("guest pin update failed", "room_id", roomID, "error", err)
		writeInternalError(w, "pin update failed")
	}
}
