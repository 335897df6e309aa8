package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/roomgate/internal/controller"
	"github.com/nerrad567/roomgate/internal/infrastructure/mqtt"
)

// DefaultQueueSize bounds events waiting to be published.
const DefaultQueueSize = 256

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessagePublisher sends a JSON payload to a topic. *mqtt.Client
// implements it.
type MessagePublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// AddressMessage is published retained on roomgate/controller/{id}/address.
// An empty Address means the cached address was cleared.
type AddressMessage struct {
	DeviceID  string    `json:"device_id"`
	Address   string    `json:"address"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// DispatchMessage is published on roomgate/controller/{id}/dispatch.
type DispatchMessage struct {
	DeviceID   string    `json:"device_id"`
	Command    string    `json:"command"`
	Outcome    string    `json:"outcome"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type message struct {
	topic    string
	payload  any
	retained bool
}

// Publisher forwards controller events to MQTT off the request path.
type Publisher struct {
	bus    MessagePublisher
	queue  chan message
	logger Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewPublisher returns a Publisher with room for queueSize pending events.
// A non-positive size selects DefaultQueueSize.
func NewPublisher(bus MessagePublisher, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Publisher{
		bus:    bus,
		queue:  make(chan message, queueSize),
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger. Call before Start.
func (p *Publisher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// Start launches the publishing worker. It stops when ctx is cancelled or
// Stop is called.
func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop stops the worker after it has published whatever is still queued.
// Safe to call more than once.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

// ObserveResolution implements controller.Observer. Only outcomes that
// change the cached address are published.
func (p *Publisher) ObserveResolution(ev controller.ResolutionEvent) {
	switch ev.Outcome {
	case controller.OutcomeOK, controller.OutcomeResolutionFailed:
	default:
		return
	}
	address := ev.Address
	if ev.Outcome != controller.OutcomeOK {
		address = ""
	}
	p.enqueue(message{
		topic: mqtt.Topics{}.ControllerAddress(ev.DeviceID),
		payload: AddressMessage{
			DeviceID:  ev.DeviceID,
			Address:   address,
			Outcome:   string(ev.Outcome),
			Timestamp: ev.Time.UTC(),
		},
		retained: true,
	})
}

// ObserveDispatch implements controller.Observer. Dispatches to unknown
// ids are not published.
func (p *Publisher) ObserveDispatch(ev controller.DispatchEvent) {
	if ev.Outcome == controller.OutcomeUnknownDevice {
		return
	}
	msg := DispatchMessage{
		DeviceID:   ev.DeviceID,
		Command:    ev.Command,
		Outcome:    string(ev.Outcome),
		DurationMS: float64(ev.Duration.Microseconds()) / 1000,
		Timestamp:  ev.Time.UTC(),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	p.enqueue(message{
		topic:   mqtt.Topics{}.ControllerDispatch(ev.DeviceID),
		payload: msg,
	})
}

// Stats returns the number of published and dropped events.
func (p *Publisher) Stats() (published, dropped uint64) {
	return p.published.Load(), p.dropped.Load()
}

func (p *Publisher) enqueue(msg message) {
	select {
	case p.queue <- msg:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.logger.Warn("event queue full, dropping event",
				"topic", msg.topic,
				"dropped_total", n,
			)
		}
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case <-p.done:
			p.drain()
			return
		case msg := <-p.queue:
			p.publish(msg)
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case msg := <-p.queue:
			p.publish(msg)
		default:
			return
		}
	}
}

func (p *Publisher) publish(msg message) {
	if err := p.bus.PublishJSON(msg.topic, msg.payload, msg.retained); err != nil {
		p.logger.Debug("event publish failed", "topic", msg.topic, "error", err)
		return
	}
	p.published.Add(1)
}

var _ controller.Observer = (*Publisher)(nil)
