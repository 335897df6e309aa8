package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/roomgate/internal/controller"
	"github.com/nerrad567/roomgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/roomgate/internal/protocol"
)

// DefaultMaxInflightCommands bounds MQTT commands being dispatched at once.
const DefaultMaxInflightCommands = 32

// Bus is the MQTT surface the listener needs. *mqtt.Client implements it.
type Bus interface {
	MessagePublisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Dispatcher sends a command to a controller. *controller.Service
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string, cmd protocol.Command, timeout time.Duration) (string, error)
}

// CommandRequest is the payload accepted on roomgate/command/{id}.
type CommandRequest struct {
	RequestID      string            `json:"request_id,omitempty"`
	Params         map[string]string `json:"params"`
	TimeoutSeconds float64           `json:"timeout_seconds,omitempty"`
}

// CommandResponse is published on roomgate/response/{id}.
type CommandResponse struct {
	RequestID string `json:"request_id"`
	DeviceID  string `json:"device_id"`
	Status    string `json:"status"`
	Response  string `json:"response,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error kinds that do not come from the dispatcher.
const (
	kindBadRequest = "BadRequest"
	kindBusy       = "Busy"
)

// ErrBadRequest is reported for malformed command payloads.
var ErrBadRequest = errors.New("events: malformed command request")

// CommandListener dispatches commands received over MQTT.
type CommandListener struct {
	dispatcher Dispatcher
	bus        Bus
	qos        byte
	logger     Logger
	maxTimeout time.Duration

	mu     sync.Mutex
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewCommandListener returns a listener dispatching through d and replying
// over b. At most limit commands run at once; further commands are answered
// with a retryable Busy error.
func NewCommandListener(b Bus, d Dispatcher, qos byte, limit int) *CommandListener {
	if limit <= 0 {
		limit = DefaultMaxInflightCommands
	}
	l := &CommandListener{
		dispatcher: d,
		bus:        b,
		qos:        qos,
		logger:     noopLogger{},
		maxTimeout: 30 * time.Second,
	}
	l.group.SetLimit(limit)
	return l
}

// SetLogger sets the logger. Call before Start.
func (l *CommandListener) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

// Start subscribes to the command wildcard.
func (l *CommandListener) Start(ctx context.Context) error {
	l.mu.Lock()
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	if err := l.bus.Subscribe(mqtt.Topics{}.AllCommands(), l.qos, l.handle); err != nil {
		l.cancel()
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	l.logger.Info("listening for MQTT commands", "topic", mqtt.Topics{}.AllCommands())
	return nil
}

// Stop unsubscribes, cancels in-flight dispatches and waits for them.
// Commands delivered after Stop are dropped.
func (l *CommandListener) Stop() {
	if err := l.bus.Unsubscribe(mqtt.Topics{}.AllCommands()); err != nil {
		l.logger.Debug("unsubscribe commands failed", "error", err)
	}

	l.mu.Lock()
	l.closed = true
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	_ = l.group.Wait()
}

// handle is the MQTT message handler. It never blocks on the dispatch.
func (l *CommandListener) handle(topic string, payload []byte) error {
	id, ok := mqtt.Topics{}.CommandDeviceID(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrBadRequest, topic)
	}

	var req CommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		l.reply(CommandResponse{DeviceID: id, Status: StatusError, ErrorKind: kindBadRequest, Error: "invalid JSON"})
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Params[protocol.ParamCommand] == "" {
		l.reply(CommandResponse{RequestID: req.RequestID, DeviceID: id, Status: StatusError, ErrorKind: kindBadRequest, Error: "params.CMD is required"})
		return fmt.Errorf("%w: missing %s", ErrBadRequest, protocol.ParamCommand)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("listener stopped, dropping command", "controller_id", id, "request_id", req.RequestID)
		return nil
	}
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// TryGo runs under mu so Stop cannot start waiting while a dispatch is
	// being added.
	started := l.group.TryGo(func() error {
		l.reply(l.execute(ctx, id, req))
		return nil
	})
	l.mu.Unlock()

	if !started {
		l.logger.Warn("too many MQTT commands in flight, rejecting", "controller_id", id)
		l.reply(CommandResponse{
			RequestID: req.RequestID,
			DeviceID:  id,
			Status:    StatusError,
			ErrorKind: kindBusy,
			Error:     "too many commands in flight",
			Retryable: true,
		})
	}
	return nil
}

func (l *CommandListener) execute(ctx context.Context, id string, req CommandRequest) CommandResponse {
	timeout := time.Duration(req.TimeoutSeconds * float64(time.Second))
	if timeout > l.maxTimeout {
		timeout = l.maxTimeout
	}

	body, err := l.dispatcher.Dispatch(ctx, id, protocol.Command(req.Params), timeout)
	resp := CommandResponse{RequestID: req.RequestID, DeviceID: id, Response: body}
	if err == nil {
		resp.Status = StatusOK
		return resp
	}

	resp.Status = StatusError
	resp.Error = err.Error()
	var derr *controller.DispatchError
	if errors.As(err, &derr) {
		resp.ErrorKind = derr.Kind.String()
		resp.Error = derr.Message
		resp.Retryable = derr.Retryable()
	}
	return resp
}

func (l *CommandListener) reply(resp CommandResponse) {
	if err := l.bus.PublishJSON(mqtt.Topics{}.Response(resp.DeviceID), resp, false); err != nil {
		l.logger.Warn("command reply failed", "controller_id", resp.DeviceID, "error", err)
	}
}
