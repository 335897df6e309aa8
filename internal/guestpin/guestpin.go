// Package guestpin keeps a room's door-lock guest PIN in step between the
// room controller and the gateway's store.
//
// The controller is always written first. The store is only updated after
// the controller acknowledged the change, so a stored PIN is one the door
// actually accepts.
package guestpin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/roomgate/internal/controller"
	"github.com/nerrad567/roomgate/internal/protocol"
)

// DefaultTimeout bounds one PIN command to the controller.
const DefaultTimeout = 5 * time.Second

// Guest slot parameters understood by the lock firmware.
const (
	guestSlot = "G1"

	// guestValidity is the slot's validity window as the firmware encodes it.
	guestValidity = "1200010130"

	guestClear = guestSlot + "X"
)

var (
	// ErrRoomNotFound is returned when no controller has the room's ID.
	ErrRoomNotFound = errors.New("guestpin: room not found")

	// ErrNoPinController is returned when the room has no lock slot configured.
	ErrNoPinController = errors.New("guestpin: room has no pin controller")

	// ErrInvalidPin is returned for PINs that are not 4 to 8 digits.
	ErrInvalidPin = errors.New("guestpin: pin must be 4 to 8 digits")

	// ErrPersistFailed is returned when the controller accepted the change
	// but the store could not record it. The door and the store disagree
	// until the next successful call.
	ErrPersistFailed = errors.New("guestpin: controller updated but store write failed")
)

// Logger is the logging surface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dispatcher sends a command to a controller. *controller.Service
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string, cmd protocol.Command, timeout time.Duration) (string, error)
}

// Store reads and records guest PINs. controller.Repository implements it.
type Store interface {
	Get(ctx context.Context, id string) (*controller.StoredDevice, error)
	SetGuestPin(ctx context.Context, id, pin string) error
}

// Service syncs guest PINs. Calls for the same room are serialised; calls
// for different rooms run concurrently.
type Service struct {
	dispatcher Dispatcher
	store      Store
	timeout    time.Duration
	logger     Logger

	mu    sync.Mutex
	rooms map[string]*sync.Mutex
}

// NewService returns a Service using DefaultTimeout.
func NewService(d Dispatcher, store Store) *Service {
	return &Service{
		dispatcher: d,
		store:      store,
		timeout:    DefaultTimeout,
		logger:     noopLogger{},
		rooms:      make(map[string]*sync.Mutex),
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// ValidatePin reports whether pin is 4 to 8 ASCII digits.
func ValidatePin(pin string) error {
	if len(pin) < 4 || len(pin) > 8 {
		return ErrInvalidPin
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPin
		}
	}
	return nil
}

// Sync sets the room's guest PIN on its controller and then in the store.
// Dispatch failures are returned unchanged so callers can inspect the
// controller.DispatchError.
func (s *Service) Sync(ctx context.Context, roomID, pin string) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}
	return s.apply(ctx, roomID, guestSlot+","+pin+","+guestValidity, pin)
}

// Delete clears the room's guest PIN on its controller and in the store.
func (s *Service) Delete(ctx context.Context, roomID string) error {
	return s.apply(ctx, roomID, guestClear, "")
}

// Current returns the stored guest PIN for a room, or "" if none is set.
func (s *Service) Current(ctx context.Context, roomID string) (string, error) {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return "", err
	}
	return room.GuestPIN, nil
}

func (s *Service) apply(ctx context.Context, roomID, password, stored string) error {
	unlock := s.lock(roomID)
	defer unlock()

	room, err := s.room(ctx, roomID)
	if err != nil {
		return err
	}
	if room.PinControllerID == "" {
		return fmt.Errorf("%w: %s", ErrNoPinController, roomID)
	}

	cmd := protocol.NewCommand(protocol.CmdSetPassword,
		"ID", room.PinControllerID,
		"PASSWORD", password,
	)
	if _, err := s.dispatcher.Dispatch(ctx, roomID, cmd, s.timeout); err != nil {
		return err
	}

	if err := s.store.SetGuestPin(ctx, roomID, stored); err != nil {
		s.logger.Error("guest pin changed on controller but not stored",
			"controller_id", roomID, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrPersistFailed, roomID, err)
	}

	if stored == "" {
		s.logger.Info("guest pin cleared", "controller_id", roomID)
	} else {
		s.logger.Info("guest pin synced", "controller_id", roomID)
	}
	return nil
}

func (s *Service) room(ctx context.Context, roomID string) (*controller.StoredDevice, error) {
	room, err := s.store.Get(ctx, roomID)
	if errors.Is(err, controller.ErrDeviceNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading room %s: %w", roomID, err)
	}
	return room, nil
}

func (s *Service) lock(roomID string) func() {
	s.mu.Lock()
	m, ok := s.rooms[roomID]
	if !ok {
		m = &sync.Mutex{}
		s.rooms[roomID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
