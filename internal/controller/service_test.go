package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/roomgate/internal/protocol"
)

func TestServiceWarmUpThenDispatch(t *testing.T) {
	fc := newFakeController(t)
	fc.reply(protocol.CmdGetIPAddress, "TCP/IP Address = 127.0.0.1\n")
	fc.reply(protocol.CmdESPResetPin, "PIN set LOW")

	cfg := DefaultConfig()
	cfg.WarmUpSpacing = 0
	cfg.RefreshInterval = time.Hour
	obs := &recordingObserver{}

	svc, err := NewService([]Device{fc.device("101")}, cfg, obs, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	svc.Start(context.Background())
	defer svc.Stop()

	if !waitFor(t, 2*time.Second, func() bool { return svc.Registry().CachedCount() == 1 }) {
		t.Fatal("warm-up did not resolve the controller")
	}

	ep, err := svc.CachedAddress("101")
	if err != nil || ep.Address != "127.0.0.1" {
		t.Fatalf("CachedAddress() = %+v, %v", ep, err)
	}

	body, err := svc.Dispatch(context.Background(), "101", protocol.NewCommand(protocol.CmdESPResetPin, "PIN", "4"), 0)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if body != "PIN set LOW" {
		t.Errorf("body = %q", body)
	}
}

func TestServiceTriggerResolve(t *testing.T) {
	fc := newFakeController(t)
	fc.reply(protocol.CmdGetIPAddress, "TCP/IP Address = 10.1.2.3\n")

	cfg := DefaultConfig()
	cfg.RefreshInterval = time.Hour
	svc, err := NewService([]Device{fc.device("101")}, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	defer svc.Stop()

	if _, err := svc.TriggerResolve("999"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("TriggerResolve(999) error = %v, want ErrUnknownDevice", err)
	}

	started, err := svc.TriggerResolve("101")
	if err != nil || !started {
		t.Fatalf("TriggerResolve(101) = %v, %v", started, err)
	}
	if !waitFor(t, 2*time.Second, func() bool {
		ep, err := svc.CachedAddress("101")
		return err == nil && ep.Address == "10.1.2.3"
	}) {
		t.Error("triggered resolution did not update the cache")
	}
}

func TestServiceStopIdempotent(t *testing.T) {
	// Port 1 on loopback refuses connections, so warm-up fails fast.
	svc, err := NewService([]Device{{ID: "101", Hostname: "127.0.0.1", Port: 1}}, DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	svc.Start(context.Background())
	svc.Stop()
	svc.Stop()

	if started, _ := svc.TriggerResolve("101"); started {
		t.Error("TriggerResolve() after Stop() started a task")
	}
}

func TestServiceStartTwiceWarmsUpOnce(t *testing.T) {
	fc := newFakeController(t)
	fc.reply(protocol.CmdGetIPAddress, "TCP/IP Address = 127.0.0.1\n")

	cfg := DefaultConfig()
	cfg.WarmUpSpacing = 0
	cfg.RefreshInterval = time.Hour
	svc, err := NewService([]Device{fc.device("101")}, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	svc.Start(context.Background())
	svc.Start(context.Background())

	if !waitFor(t, 2*time.Second, func() bool { return svc.Registry().CachedCount() == 1 }) {
		t.Fatal("warm-up did not resolve the controller")
	}
	time.Sleep(50 * time.Millisecond)
	svc.Stop()

	if got := fc.count(protocol.CmdGetIPAddress); got != 1 {
		t.Errorf("discovery requests = %d, want 1", got)
	}
}

func TestServiceStartAfterStopIsNoop(t *testing.T) {
	fc := newFakeController(t)
	fc.reply(protocol.CmdGetIPAddress, "TCP/IP Address = 127.0.0.1\n")

	cfg := DefaultConfig()
	cfg.WarmUpSpacing = 0
	svc, err := NewService([]Device{fc.device("101")}, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	svc.Stop()
	svc.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	if got := fc.count(protocol.CmdGetIPAddress); got != 0 {
		t.Errorf("discovery requests after Stop = %d, want 0", got)
	}
}

func TestNewServiceRejectsDuplicates(t *testing.T) {
	_, err := NewService([]Device{
		{ID: "101", Hostname: "a.local", Port: 80},
		{ID: "101", Hostname: "b.local", Port: 80},
	}, DefaultConfig(), nil, nil)
	if !errors.Is(err, ErrDuplicateDevice) {
		t.Errorf("error = %v, want ErrDuplicateDevice", err)
	}
}
