package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/roomgate/internal/controller"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DispatchErrorResponse is returned when a command could not be delivered
// or was refused.
type DispatchErrorResponse struct {
	Error
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`

	// Response is the controller's reply when it rejected the command.
	Response string `json:"response,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeUnauthorized     = "unauthorised"
	ErrCodeInternal         = "internal_error"
	ErrCodeValidation       = "validation_error"
	ErrCodeUnknownDevice    = "unknown_device"
	ErrCodeNotReady         = "not_ready"
	ErrCodeConnectionFailed = "connection_failed"
	ErrCodeDeviceRejected   = "device_rejected"
)

// retryAfterSeconds is sent with every retryable dispatch error.
const retryAfterSeconds = 2

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDispatchError maps a dispatch failure to its HTTP status. body is
// the controller's reply, included for rejections.
func writeDispatchError(w http.ResponseWriter, err error, body string) {
	var derr *controller.DispatchError
	if !errors.As(err, &derr) {
		writeInternalError(w, "dispatch failed")
		return
	}

	status, code := dispatchStatus(derr.Kind)
	resp := DispatchErrorResponse{
		Error:     Error{Status: status, Code: code, Message: derr.Message},
		Kind:      derr.Kind.String(),
		Retryable: derr.Retryable(),
	}
	if derr.Kind == controller.KindDeviceRejected {
		resp.Response = body
	}
	if resp.Retryable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, status, resp)
}

func dispatchStatus(kind controller.ErrorKind) (int, string) {
	switch kind {
	case controller.KindUnknownDevice:
		return http.StatusNotFound, ErrCodeUnknownDevice
	case controller.KindNotReadyYet:
		return http.StatusServiceUnavailable, ErrCodeNotReady
	case controller.KindConnectionFailed:
		return http.StatusServiceUnavailable, ErrCodeConnectionFailed
	case controller.KindDeviceRejected:
		return http.StatusUnprocessableEntity, ErrCodeDeviceRejected
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
