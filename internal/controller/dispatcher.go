package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/roomgate/internal/protocol"
)

// DefaultCommandTimeout bounds a command round-trip when the caller gives none.
const DefaultCommandTimeout = 3 * time.Second

// Trigger queues a background resolution without blocking.
type Trigger interface {
	Trigger(id string) bool
}

// Dispatcher sends commands to controllers at their cached address.
type Dispatcher struct {
	registry       *Registry
	trigger        Trigger
	client         *http.Client
	acks           protocol.Acknowledgements
	defaultTimeout time.Duration
	observer       Observer
	logger         Logger
}

// DispatcherConfig holds configuration for a Dispatcher.
type DispatcherConfig struct {
	// Registry supplies cached addresses.
	Registry *Registry

	// Trigger queues re-resolution after a miss or a failed send.
	Trigger Trigger

	// Client sends the commands. Default: NewHTTPClient().
	Client *http.Client

	// Acknowledgements maps command kinds to their acceptance phrase.
	// Default: protocol.DefaultAcknowledgements().
	Acknowledgements protocol.Acknowledgements

	// DefaultTimeout applies when Dispatch is called with a zero timeout.
	// Default: 3 seconds.
	DefaultTimeout time.Duration
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	client := cfg.Client
	if client == nil {
		client = NewHTTPClient()
	}
	acks := cfg.Acknowledgements
	if acks == nil {
		acks = protocol.DefaultAcknowledgements()
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Dispatcher{
		registry:       cfg.Registry,
		trigger:        cfg.Trigger,
		client:         client,
		acks:           acks,
		defaultTimeout: timeout,
		observer:       noopObserver{},
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetObserver sets the observer notified after every dispatch.
func (d *Dispatcher) SetObserver(observer Observer) {
	d.observer = observer
}

// Dispatch sends cmd to controller id and returns the raw reply.
//
// It never waits for discovery. Failures are *DispatchError values:
//   - KindUnknownDevice: id is not registered; nothing is queued
//   - KindNotReadyYet: no cached address; one resolution is queued
//   - KindConnectionFailed: the send failed; the cached address is cleared
//     and one resolution is queued
//   - KindDeviceRejected: the reply lacked the acknowledgement for the
//     command kind; the cached address is kept and the reply is returned
//     alongside the error
//
// A zero timeout selects the configured default.
func (d *Dispatcher) Dispatch(ctx context.Context, id string, cmd protocol.Command, timeout time.Duration) (string, error) {
	start := time.Now()
	body, err := d.dispatch(ctx, id, cmd, timeout)

	ev := DispatchEvent{
		DeviceID: id,
		Command:  cmd.Kind(),
		Outcome:  OutcomeOK,
		Duration: time.Since(start),
		Err:      err,
		Time:     start,
	}
	var de *DispatchError
	if errors.As(err, &de) {
		ev.Outcome = de.Kind.outcome()
	}
	d.observer.ObserveDispatch(ev)

	return body, err
}

func (d *Dispatcher) dispatch(ctx context.Context, id string, cmd protocol.Command, timeout time.Duration) (string, error) {
	ep, err := d.registry.CachedAddress(id)
	switch {
	case errors.Is(err, ErrUnknownDevice):
		return "", newDispatchError(id, KindUnknownDevice, nil)
	case errors.Is(err, ErrNotReady):
		d.schedule(id)
		return "", newDispatchError(id, KindNotReadyYet, nil)
	}

	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := get(reqCtx, d.client, protocol.URL(ep.Address, ep.Port, cmd))
	if err != nil {
		if ctx.Err() != nil {
			// Caller went away; the controller is not at fault.
			return "", newDispatchError(id, KindConnectionFailed, ctx.Err())
		}
		d.logger.Warn("controller send failed, invalidating address",
			"controller_id", id, "address", ep.Address, "command", cmd.Kind(), "error", err)
		d.registry.ClearAddress(id)
		d.schedule(id)
		return "", newDispatchError(id, KindConnectionFailed, err)
	}

	if !d.acks.Accepted(cmd.Kind(), body) {
		expected, _ := d.acks.Expected(cmd.Kind())
		d.logger.Warn("controller rejected command",
			"controller_id", id, "command", cmd.Kind(), "expected", expected)
		return body, newDispatchError(id, KindDeviceRejected, nil)
	}

	d.logger.Debug("command dispatched", "controller_id", id, "command", cmd.Kind())
	return body, nil
}

func (d *Dispatcher) schedule(id string) {
	if d.trigger == nil {
		return
	}
	d.trigger.Trigger(id)
}
