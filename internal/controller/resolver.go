package controller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/roomgate/internal/protocol"
)

// Resolver defaults.
const (
	// DefaultDiscoveryTimeout bounds a single discovery request.
	DefaultDiscoveryTimeout = 5 * time.Second

	// maxReplyBytes caps how much of a controller reply is read.
	maxReplyBytes = 64 << 10
)

// AddressResolver performs a discovery round-trip for one controller.
type AddressResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Resolver asks a controller for its current IP address via its discovery
// hostname and records the answer in the Registry.
//
// Concurrent calls for the same ID share one request.
type Resolver struct {
	registry *Registry
	client   *http.Client
	timeout  time.Duration
	group    singleflight.Group
	observer Observer
	logger   Logger
}

// NewResolver creates a resolver writing into registry.
// A zero timeout selects DefaultDiscoveryTimeout.
func NewResolver(registry *Registry, client *http.Client, timeout time.Duration) *Resolver {
	if client == nil {
		client = NewHTTPClient()
	}
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	return &Resolver{
		registry: registry,
		client:   client,
		timeout:  timeout,
		observer: noopObserver{},
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// SetObserver sets the observer notified after every attempt.
func (r *Resolver) SetObserver(observer Observer) {
	r.observer = observer
}

// Resolve performs one discovery attempt for id.
//
// On success the address is cached and returned. A transport failure or
// non-success status clears the cached address and returns
// ErrResolutionFailed. A reply without a recognisable address returns
// ErrParseFailed and leaves the cached address as it was.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, error) {
	dev, err := r.registry.Lookup(id)
	if err != nil {
		r.observer.ObserveResolution(ResolutionEvent{
			DeviceID: id, Outcome: OutcomeUnknownDevice, Err: err, Time: time.Now(),
		})
		return "", err
	}

	v, err, shared := r.group.Do(id, func() (any, error) {
		return r.resolve(ctx, dev)
	})
	if shared {
		r.logger.Debug("joined in-flight resolution", "controller_id", id)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil //nolint:forcetypeassert // resolve always returns a string
}

func (r *Resolver) resolve(ctx context.Context, dev Device) (string, error) {
	start := time.Now()
	address, outcome, err := r.discover(ctx, dev)

	switch outcome {
	case OutcomeOK:
		r.registry.SetAddress(dev.ID, address)
	case OutcomeResolutionFailed:
		r.registry.ClearAddress(dev.ID)
		r.logger.Warn("controller resolution failed", "controller_id", dev.ID, "hostname", dev.Hostname, "error", err)
	case OutcomeParseFailed:
		r.logger.Warn("controller discovery reply had no address", "controller_id", dev.ID, "hostname", dev.Hostname)
	}

	r.observer.ObserveResolution(ResolutionEvent{
		DeviceID: dev.ID,
		Address:  address,
		Outcome:  outcome,
		Duration: time.Since(start),
		Err:      err,
		Time:     start,
	})
	return address, err
}

func (r *Resolver) discover(ctx context.Context, dev Device) (string, Outcome, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	target := protocol.URL(dev.Hostname, dev.Port, protocol.NewCommand(protocol.CmdGetIPAddress))
	body, err := get(reqCtx, r.client, target)
	if err != nil {
		return "", OutcomeResolutionFailed, fmt.Errorf("%w: %s: %w", ErrResolutionFailed, dev.ID, err)
	}

	address, ok := protocol.ParseAddress(body)
	if !ok {
		return "", OutcomeParseFailed, fmt.Errorf("%w: %s", ErrParseFailed, dev.ID)
	}
	return address, OutcomeOK, nil
}

// statusError reports a non-success HTTP status from a controller.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.code, http.StatusText(e.code))
}

// get issues a single GET and returns the reply body. Non-2xx statuses are
// errors.
func get(ctx context.Context, client *http.Client, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBytes)) //nolint:errcheck // draining only
		return "", &statusError{code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("reading reply: %w", err)
	}
	return string(data), nil
}

// NewHTTPClient returns the client used for controller traffic.
// Keep-alives are off: every request opens its own connection, which the
// single-threaded controller firmware expects.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib default
	transport.DisableKeepAlives = true
	transport.Proxy = nil
	return &http.Client{Transport: transport}
}
