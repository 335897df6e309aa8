package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/roomgate/internal/controller"
	"github.com/nerrad567/roomgate/internal/protocol"
)

// maxCommandTimeout caps the timeout a caller may request.
const maxCommandTimeout = 30 * time.Second

// CommandRequest is the body of POST /controllers/{id}/commands.
type CommandRequest struct {
	Params         map[string]string `json:"params"`
	TimeoutSeconds float64           `json:"timeout_seconds,omitempty"`
}

// CommandResponse is returned for a delivered and accepted command.
type CommandResponse struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	Response  string `json:"response"`
}

// handleListControllers returns every registered controller with its
// cached address.
func (s *Server) handleListControllers(w http.ResponseWriter, _ *http.Request) {
	reg := s.controllers.Registry()
	entries := reg.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"controllers": entries,
		"count":       len(entries),
		"resolved":    reg.CachedCount(),
	})
}

// handleGetController returns one controller.
func (s *Server) handleGetController(w http.ResponseWriter, r *http.Request) {
	entry, err := s.controllers.Registry().Entry(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "controller not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleGetControllerByHostname looks a controller up by its discovery
// hostname, case-insensitively.
func (s *Server) handleGetControllerByHostname(w http.ResponseWriter, r *http.Request) {
	reg := s.controllers.Registry()
	id, ok := reg.IDByHostname(chi.URLParam(r, "hostname"))
	if !ok {
		writeNotFound(w, "controller not found")
		return
	}
	entry, err := reg.Entry(id)
	if err != nil {
		writeNotFound(w, "controller not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleDispatch sends a raw command to a controller.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Params[protocol.ParamCommand] == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "params.CMD is required")
		return
	}
	if req.TimeoutSeconds < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "timeout_seconds must not be negative")
		return
	}

	timeout := time.Duration(req.TimeoutSeconds * float64(time.Second))
	if timeout > maxCommandTimeout {
		timeout = maxCommandTimeout
	}

	commandID := uuid.NewString()
	body, err := s.controllers.Dispatch(r.Context(), id, protocol.Command(req.Params), timeout)
	if err != nil {
		s.logger.Info("command not delivered",
			"controller_id", id,
			"command_id", commandID,
			"command", req.Params[protocol.ParamCommand],
			"error", err,
		)
		writeDispatchError(w, err, body)
		return
	}

	writeJSON(w, http.StatusOK, CommandResponse{
		CommandID: commandID,
		Status:    "ok",
		Response:  body,
	})
}

// handleStatus fetches GET_STATUS and returns it parsed.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := s.controllers.Dispatch(r.Context(), id, protocol.NewCommand(protocol.CmdGetStatus), 0)
	if err != nil {
		writeDispatchError(w, err, body)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"controller_id": id,
		"status":        protocol.ParseStatus(body),
	})
}

// handlePins fetches GET_PINS and returns the pin bit string.
func (s *Server) handlePins(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := s.controllers.Dispatch(r.Context(), id, protocol.NewCommand(protocol.CmdGetPins), 0)
	if err != nil {
		writeDispatchError(w, err, body)
		return
	}

	pins, ok := protocol.ParsePinStates(body)
	if !ok {
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "controller reply has no pin states")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"controller_id": id,
		"pins":          pins,
	})
}

// handleResolve queues a background resolution. queued is false when one
// is already pending for the controller or the backlog is full.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	queued, err := s.controllers.TriggerResolve(id)
	if errors.Is(err, controller.ErrUnknownDevice) {
		writeNotFound(w, "controller not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to queue resolution")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"controller_id": id,
		"queued":        queued,
	})
}
