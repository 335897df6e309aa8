package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/roomgate/internal/controller"
)

func TestPublisherAddressEvents(t *testing.T) {
	bus := newFakeBus()
	p := NewPublisher(bus, 8)
	p.Start(context.Background())

	now := time.Now()
	p.ObserveResolution(controller.ResolutionEvent{DeviceID: "R101", Address: "10.0.0.5", Outcome: controller.OutcomeOK, Time: now})
	p.ObserveResolution(controller.ResolutionEvent{DeviceID: "R101", Outcome: controller.OutcomeResolutionFailed, Time: now})
	p.ObserveResolution(controller.ResolutionEvent{DeviceID: "R101", Outcome: controller.OutcomeParseFailed, Time: now})
	p.ObserveResolution(controller.ResolutionEvent{DeviceID: "ghost", Outcome: controller.OutcomeUnknownDevice, Time: now})
	p.Stop()

	msgs := bus.snapshot()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2 (ok and cleared)", len(msgs))
	}

	for i, wantAddr := range []string{"10.0.0.5", ""} {
		if msgs[i].topic != "roomgate/controller/R101/address" || !msgs[i].retained {
			t.Errorf("message %d: topic %q retained %v", i, msgs[i].topic, msgs[i].retained)
		}
		var got AddressMessage
		if err := json.Unmarshal(msgs[i].payload, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Address != wantAddr {
			t.Errorf("message %d: address %q, want %q", i, got.Address, wantAddr)
		}
	}
}

func TestPublisherDispatchEvents(t *testing.T) {
	bus := newFakeBus()
	p := NewPublisher(bus, 8)
	p.Start(context.Background())

	p.ObserveDispatch(controller.DispatchEvent{
		DeviceID: "R101",
		Command:  "ESP_SET_PIN",
		Outcome:  controller.OutcomeDeviceRejected,
		Duration: 2 * time.Millisecond,
		Err:      errors.New("controller R101: device rejected command"),
		Time:     time.Now(),
	})
	p.ObserveDispatch(controller.DispatchEvent{DeviceID: "nope", Outcome: controller.OutcomeUnknownDevice})
	p.Stop()

	msgs := bus.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "roomgate/controller/R101/dispatch" || msgs[0].retained {
		t.Errorf("topic %q retained %v", msgs[0].topic, msgs[0].retained)
	}
	var got DispatchMessage
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Outcome != "device_rejected" || got.DurationMS != 2 || got.Error == "" {
		t.Errorf("payload = %+v", got)
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	bus := newFakeBus()
	bus.block = make(chan struct{})
	p := NewPublisher(bus, 1)
	p.Start(context.Background())

	ev := controller.DispatchEvent{DeviceID: "R101", Command: "GET_STATUS", Outcome: controller.OutcomeOK}

	// The first event is taken by the worker, which then blocks on the bus.
	p.ObserveDispatch(ev)
	deadline := time.Now().Add(time.Second)
	for len(p.queue) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never took the first event")
		}
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	for range 5 {
		p.ObserveDispatch(ev)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("observe blocked for %v", elapsed)
	}

	close(bus.block)
	p.Stop()

	published, dropped := p.Stats()
	if published != 2 || dropped != 4 {
		t.Errorf("published=%d dropped=%d, want 2 and 4", published, dropped)
	}
}

func TestPublisherPublishErrorIsNotFatal(t *testing.T) {
	bus := newFakeBus()
	bus.fail = errors.New("mqtt: client not connected")
	p := NewPublisher(bus, 0)
	p.Start(context.Background())

	p.ObserveDispatch(controller.DispatchEvent{DeviceID: "R101", Outcome: controller.OutcomeOK})
	p.Stop()
	p.Stop()

	if published, _ := p.Stats(); published != 0 {
		t.Errorf("published = %d, want 0", published)
	}
}
