package controller

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxPendingResolutions bounds concurrent background resolutions.
const DefaultMaxPendingResolutions = 16

// backlogFactor sizes the backlog as a multiple of the concurrency limit.
const backlogFactor = 4

// Scheduler runs fire-and-forget resolutions off the request path.
//
// At most one resolution per controller is in flight or queued; a trigger
// for a controller that is already pending is dropped. When every worker is
// busy the trigger waits in a bounded FIFO backlog and a finishing worker
// picks it up. Only when the backlog is also full is the trigger dropped,
// leaving the controller to the periodic refresh. Trigger never blocks.
type Scheduler struct {
	resolver AddressResolver
	logger   Logger
	limit    int
	capacity int

	mu      sync.Mutex
	group   errgroup.Group
	running int
	pending map[string]struct{}
	backlog []string
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler allowing at most limit concurrent
// resolutions. A non-positive limit selects DefaultMaxPendingResolutions.
func NewScheduler(resolver AddressResolver, limit int) *Scheduler {
	if limit <= 0 {
		limit = DefaultMaxPendingResolutions
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		resolver: resolver,
		logger:   noopLogger{},
		limit:    limit,
		capacity: limit * backlogFactor,
		pending:  make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Trigger queues a resolution for id and returns immediately.
// It reports whether a resolution was started or queued.
func (s *Scheduler) Trigger(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, busy := s.pending[id]; busy {
		s.logger.Debug("resolution already pending", "controller_id", id)
		return false
	}

	if s.running < s.limit {
		s.running++
		s.pending[id] = struct{}{}
		// Go runs under mu so Close cannot start waiting while a worker is
		// being added.
		s.group.Go(func() error {
			s.work(id)
			return nil
		})
		return true
	}

	if len(s.backlog) >= s.capacity {
		s.logger.Warn("resolution backlog full, trigger dropped", "controller_id", id)
		return false
	}
	s.pending[id] = struct{}{}
	s.backlog = append(s.backlog, id)
	return true
}

// Pending returns the number of resolutions running or queued.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels in-flight resolutions, discards the backlog and waits for
// workers to return. Triggers after Close are ignored. Safe to call more
// than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for _, id := range s.backlog {
		delete(s.pending, id)
	}
	s.backlog = nil
	s.mu.Unlock()

	s.cancel()
	_ = s.group.Wait() //nolint:errcheck // tasks never return errors
}

// work resolves id, then keeps draining the backlog until it is empty.
func (s *Scheduler) work(id string) {
	for {
		s.run(id)

		next, ok := s.next(id)
		if !ok {
			return
		}
		id = next
	}
}

// next marks done as finished and pops the oldest queued id. When there is
// nothing left the worker slot is released.
func (s *Scheduler) next(done string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, done)
	if s.closed || len(s.backlog) == 0 {
		s.running--
		return "", false
	}
	id := s.backlog[0]
	s.backlog = s.backlog[1:]
	return id, true
}

func (s *Scheduler) run(id string) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("background resolution panicked", "controller_id", id, "panic", fmt.Sprint(p))
		}
	}()

	if _, err := s.resolver.Resolve(s.ctx, id); err != nil {
		s.logger.Debug("background resolution failed", "controller_id", id, "error", err)
	}
}
