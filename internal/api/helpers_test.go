package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/roomgate/internal/controller"
	"github.com/nerrad567/roomgate/internal/infrastructure/config"
	"github.com/nerrad567/roomgate/internal/infrastructure/logging"
	"github.com/nerrad567/roomgate/internal/metrics"
)

const testAPIKey = "test-key-0123456789abcdef"

// fakeController answers sysctrl.cgi requests from a table keyed by CMD.
type fakeController struct {
	srv *httptest.Server

	mu      sync.Mutex
	replies map[string]string
}

func newFakeController(t *testing.T, replies map[string]string) *fakeController {
	t.Helper()
	f := &fakeController{replies: replies}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		body, ok := f.replies[r.URL.Query().Get("CMD")]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeController) device(id string) controller.Device {
	return controller.Device{
		ID:              id,
		Hostname:        "127.0.0.1",
		Port:            f.srv.Listener.Addr().(*net.TCPAddr).Port,
		PinControllerID: "3",
	}
}

type fakePins struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *fakePins) Sync(_ context.Context, roomID, pin string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "sync "+roomID+" "+pin)
	return p.err
}

func (p *fakePins) Delete(_ context.Context, roomID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "delete "+roomID)
	return p.err
}

type testEnv struct {
	srv     *Server
	svc     *controller.Service
	pins    *fakePins
	metrics *metrics.Metrics
	handler http.Handler
}

type envOption func(*Deps)

func withKeysEnabled(d *Deps) {
	d.Security.APIKeys = config.APIKeyConfig{Enabled: true, Key: testAPIKey}
}

func withoutKey(d *Deps) {
	d.Security.APIKeys = config.APIKeyConfig{}
}

// newTestEnv builds a server over a real controller service. Devices
// whose id is in resolved start with 127.0.0.1 cached.
func newTestEnv(t *testing.T, devices []controller.Device, resolved []string, opts ...envOption) *testEnv {
	t.Helper()

	cfg := controller.DefaultConfig()
	cfg.DiscoveryTimeout = time.Second
	cfg.CommandTimeout = time.Second
	svc, err := controller.NewService(devices, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(svc.Stop)
	for _, id := range resolved {
		svc.Registry().SetAddress(id, "127.0.0.1")
	}

	pins := &fakePins{}
	m := metrics.New(svc.Registry())
	deps := Deps{
		Config:      config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		Security:    config.SecurityConfig{APIKeys: config.APIKeyConfig{Key: testAPIKey}},
		Logger:      logging.Discard(),
		Controllers: svc,
		GuestPins:   pins,
		Metrics:     m,
		Version:     "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{srv: srv, svc: svc, pins: pins, metrics: m, handler: srv.buildRouter()}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}
