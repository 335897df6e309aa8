package controller

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeController is an httptest server speaking the controller protocol.
// Replies are keyed by the CMD query parameter.
type fakeController struct {
	srv *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

func newFakeController(t *testing.T) *fakeController {
	t.Helper()

	f := &fakeController{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeController) serve(w http.ResponseWriter, r *http.Request) {
	cmd := r.URL.Query().Get("CMD")

	f.mu.Lock()
	f.hits[cmd]++
	h, ok := f.handlers[cmd]
	f.mu.Unlock()

	if r.URL.Path != "/sysctrl.cgi" || !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

// reply makes cmd answer with body.
func (f *fakeController) reply(cmd, body string) {
	f.handle(cmd, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func (f *fakeController) handle(cmd string, h http.HandlerFunc) {
	f.mu.Lock()
	f.handlers[cmd] = h
	f.mu.Unlock()
}

func (f *fakeController) count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[cmd]
}

func (f *fakeController) host() string {
	return "127.0.0.1"
}

func (f *fakeController) port() int {
	return f.srv.Listener.Addr().(*net.TCPAddr).Port
}

// device returns a Device whose discovery hostname points at the fake.
func (f *fakeController) device(id string) Device {
	return Device{ID: id, Hostname: f.host(), Port: f.port()}
}

// recordingTrigger counts Trigger calls per controller.
type recordingTrigger struct {
	mu    sync.Mutex
	calls map[string]int
}

func newRecordingTrigger() *recordingTrigger {
	return &recordingTrigger{calls: make(map[string]int)}
}

func (r *recordingTrigger) Trigger(id string) bool {
	r.mu.Lock()
	r.calls[id]++
	r.mu.Unlock()
	return true
}

func (r *recordingTrigger) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func (r *recordingTrigger) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

// fakeResolver records calls and delegates to fn.
type fakeResolver struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, id string) (string, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	fn := f.fn
	f.mu.Unlock()

	if fn == nil {
		return "10.0.0.1", nil
	}
	return fn(ctx, id)
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeResolver) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// recordingObserver stores every event.
type recordingObserver struct {
	mu          sync.Mutex
	resolutions []ResolutionEvent
	dispatches  []DispatchEvent
}

func (o *recordingObserver) ObserveResolution(ev ResolutionEvent) {
	o.mu.Lock()
	o.resolutions = append(o.resolutions, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveDispatch(ev DispatchEvent) {
	o.mu.Lock()
	o.dispatches = append(o.dispatches, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) lastDispatch() DispatchEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.dispatches) == 0 {
		return DispatchEvent{}
	}
	return o.dispatches[len(o.dispatches)-1]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func mustRegistry(t *testing.T, devices ...Device) *Registry {
	t.Helper()
	r, err := NewRegistry(devices)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}
