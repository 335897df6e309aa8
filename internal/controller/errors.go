package controller

import "errors"

// Domain errors for the controller package.
//
// Dispatch failures are returned as *DispatchError and still match these
// sentinels with errors.Is:
//
//	if errors.Is(err, controller.ErrNotReady) {
//	    // retry shortly
//	}
var (
	// ErrUnknownDevice is returned when a controller ID is not registered.
	ErrUnknownDevice = errors.New("controller: unknown device")

	// ErrNotReady is returned when a controller has no cached address yet.
	ErrNotReady = errors.New("controller: address not resolved yet")

	// ErrConnectionFailed is returned when a send to the cached address failed.
	ErrConnectionFailed = errors.New("controller: connection failed")

	// ErrDeviceRejected is returned when the controller answered without the
	// expected acknowledgement.
	ErrDeviceRejected = errors.New("controller: device rejected command")

	// ErrResolutionFailed is returned when a discovery request failed at the
	// transport level or returned a non-success status.
	ErrResolutionFailed = errors.New("controller: resolution failed")

	// ErrParseFailed is returned when a discovery reply carried no address.
	ErrParseFailed = errors.New("controller: no address in discovery reply")

	// ErrDuplicateDevice is returned when two records share an ID or an
	// endpoint.
	ErrDuplicateDevice = errors.New("controller: duplicate device")

	// ErrInvalidDevice is returned when a record fails validation.
	ErrInvalidDevice = errors.New("controller: invalid device")

	// ErrDeviceNotFound is returned by a Repository when an ID has no row.
	ErrDeviceNotFound = errors.New("controller: not found")
)

// ErrorKind classifies a dispatch failure.
type ErrorKind int

// Dispatch failure kinds.
const (
	// KindUnknownDevice is a caller or configuration error. Retrying will not help.
	KindUnknownDevice ErrorKind = iota + 1

	// KindNotReadyYet means discovery is in progress. Retry after a short delay.
	KindNotReadyYet

	// KindConnectionFailed means the cached address went stale and
	// re-resolution has been queued. Retry after a short delay.
	KindConnectionFailed

	// KindDeviceRejected means the controller refused the command.
	KindDeviceRejected
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindUnknownDevice:
		return "UnknownDevice"
	case KindNotReadyYet:
		return "NotReadyYet"
	case KindConnectionFailed:
		return "ConnectionFailed"
	case KindDeviceRejected:
		return "DeviceRejected"
	default:
		return "Unknown"
	}
}

// Retryable reports whether the same call may succeed shortly without change.
func (k ErrorKind) Retryable() bool {
	return k == KindNotReadyYet || k == KindConnectionFailed
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnknownDevice:
		return ErrUnknownDevice
	case KindNotReadyYet:
		return ErrNotReady
	case KindConnectionFailed:
		return ErrConnectionFailed
	case KindDeviceRejected:
		return ErrDeviceRejected
	default:
		return nil
	}
}

func (k ErrorKind) outcome() Outcome {
	switch k {
	case KindUnknownDevice:
		return OutcomeUnknownDevice
	case KindNotReadyYet:
		return OutcomeNotReady
	case KindConnectionFailed:
		return OutcomeConnectionFailed
	case KindDeviceRejected:
		return OutcomeDeviceRejected
	default:
		return OutcomeOK
	}
}

// Human-readable dispatch failure messages.
const (
	msgUnknownDevice    = "device unknown"
	msgNotReady         = "resolving"
	msgConnectionFailed = "connection failed, retry shortly"
	msgDeviceRejected   = "device rejected command"
)

// DispatchError is the typed failure returned by Dispatcher.Dispatch.
type DispatchError struct {
	// DeviceID is the controller the command was addressed to.
	DeviceID string

	// Kind classifies the failure.
	Kind ErrorKind

	// Message is a short human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return "controller " + e.DeviceID + ": " + e.Message + ": " + e.Err.Error()
	}
	return "controller " + e.DeviceID + ": " + e.Message
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *DispatchError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether the caller should try again shortly.
func (e *DispatchError) Retryable() bool {
	return e.Kind.Retryable()
}

func newDispatchError(id string, kind ErrorKind, cause error) *DispatchError {
	msg := ""
	switch kind {
	case KindUnknownDevice:
		msg = msgUnknownDevice
	case KindNotReadyYet:
		msg = msgNotReady
	case KindConnectionFailed:
		msg = msgConnectionFailed
	case KindDeviceRejected:
		msg = msgDeviceRejected
	}
	return &DispatchError{DeviceID: id, Kind: kind, Message: msg, Err: cause}
}
