package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/roomgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/roomgate/internal/protocol"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// fakeBus records publishes and holds subscribed handlers.
type fakeBus struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]mqtt.MessageHandler
	fail     error
	block    chan struct{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBus) PublishJSON(topic string, v any, retained bool) error {
	if b.block != nil {
		<-b.block
	}
	if b.fail != nil {
		return b.fail
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.messages = append(b.messages, published{topic: topic, payload: payload, retained: retained})
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if b.fail != nil {
		return b.fail
	}
	b.mu.Lock()
	b.handlers[topic] = handler
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	delete(b.handlers, topic)
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	b.mu.Lock()
	h := b.handlers[mqtt.Topics{}.AllCommands()]
	b.mu.Unlock()
	if h == nil {
		t.Fatal("no command handler subscribed")
	}
	return h(topic, []byte(payload))
}

func (b *fakeBus) snapshot() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.messages...)
}

func (b *fakeBus) waitMessages(t *testing.T, n int) []published {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs := b.snapshot()
		if len(msgs) >= n {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d messages, want %d", len(msgs), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type dispatchCall struct {
	id      string
	cmd     protocol.Command
	timeout time.Duration
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	fn    func(ctx context.Context, id string, cmd protocol.Command) (string, error)
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, id string, cmd protocol.Command, timeout time.Duration) (string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, dispatchCall{id: id, cmd: cmd, timeout: timeout})
	d.mu.Unlock()
	if d.fn == nil {
		return "", errors.New("no dispatch behaviour")
	}
	return d.fn(ctx, id, cmd)
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}
