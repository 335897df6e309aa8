package controller

import (
	"fmt"
	"time"

	"github.com/nerrad567/roomgate/internal/protocol"
)

// Device is the static description of one room controller.
// It never changes after the Registry is built.
type Device struct {
	// ID is the stable logical identifier, usually the room number.
	ID string `json:"id"`

	// Hostname is the discovery name the controller advertises.
	Hostname string `json:"hostname"`

	// Port is the controller's HTTP port.
	Port int `json:"port"`

	// PinControllerID is the door-lock slot used for guest PIN commands.
	PinControllerID string `json:"pin_controller_id,omitempty"`
}

// Validate checks the record is usable.
func (d Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if err := protocol.ValidateHostname(d.Hostname); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDevice, d.ID, err)
	}
	if err := protocol.ValidatePort(d.Port); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDevice, d.ID, err)
	}
	return nil
}

// StoredDevice is a Device as persisted by a Repository.
type StoredDevice struct {
	Device

	// GuestPIN is the last PIN accepted by the controller, or empty.
	GuestPIN string `json:"guest_pin,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Endpoint is where a command can be sent right now.
type Endpoint struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Entry is a point-in-time view of a registered controller.
type Entry struct {
	Device

	// Address is the cached address, or empty while unresolved.
	Address string `json:"address,omitempty"`

	// ResolvedAt is when Address was last set.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Outcome labels the result of a resolution or dispatch for observers.
type Outcome string

// Outcomes reported to observers.
const (
	OutcomeOK               Outcome = "ok"
	OutcomeUnknownDevice    Outcome = "unknown_device"
	OutcomeNotReady         Outcome = "not_ready"
	OutcomeConnectionFailed Outcome = "connection_failed"
	OutcomeDeviceRejected   Outcome = "device_rejected"
	OutcomeResolutionFailed Outcome = "resolution_failed"
	OutcomeParseFailed      Outcome = "parse_failed"
)
