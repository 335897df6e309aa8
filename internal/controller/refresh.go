package controller

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Refresh defaults.
const (
	// DefaultRefreshInterval is the sleep between refresh passes.
	DefaultRefreshInterval = 60 * time.Second

	// DefaultRefreshSpacing is the pause between controllers within a pass.
	DefaultRefreshSpacing = time.Second

	// DefaultWarmUpSpacing is the pause between controllers during warm-up.
	DefaultWarmUpSpacing = 500 * time.Millisecond
)

// IDLister lists the controllers to refresh.
type IDLister interface {
	IDs() []string
}

// PassResult summarises one sweep over the controllers.
type PassResult struct {
	Attempted int
	Resolved  int
	Failed    int
}

// Refresher periodically re-resolves every controller so cached addresses
// stay warm without waiting for a failed send.
//
// It alternates between sleeping for the interval and a pass that resolves
// each controller in turn with a short pause in between. A failure or panic
// for one controller is logged and the pass moves on.
type Refresher struct {
	ids      IDLister
	resolver AddressResolver
	interval time.Duration
	spacing  time.Duration
	logger   Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRefresher creates a refresher. A zero interval selects
// DefaultRefreshInterval; a negative spacing selects DefaultRefreshSpacing
// and zero disables spacing.
func NewRefresher(ids IDLister, resolver AddressResolver, interval, spacing time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if spacing < 0 {
		spacing = DefaultRefreshSpacing
	}
	return &Refresher{
		ids:      ids,
		resolver: resolver,
		interval: interval,
		spacing:  spacing,
		logger:   noopLogger{},
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for the refresher.
func (f *Refresher) SetLogger(logger Logger) {
	f.logger = logger
}

// Start runs the refresh loop in a goroutine until ctx is cancelled or
// Stop is called.
func (f *Refresher) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.Run(ctx)
	}()
}

// Stop signals the loop to exit and waits for it.
// Safe to call multiple times.
func (f *Refresher) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
		f.wg.Wait()
	})
}

// Run sleeps for the interval, runs a pass, and repeats until ctx is
// cancelled or Stop is called. The interval is measured from the end of
// each pass, so a slow pass never runs back to back with the next.
func (f *Refresher) Run(ctx context.Context) {
	timer := time.NewTimer(f.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-timer.C:
			res := f.Pass(ctx)
			f.logger.Debug("refresh pass complete",
				"attempted", res.Attempted, "resolved", res.Resolved, "failed", res.Failed)
			timer.Reset(f.interval)
		}
	}
}

// Pass resolves every controller once.
func (f *Refresher) Pass(ctx context.Context) PassResult {
	return resolveAll(ctx, f.done, f.ids.IDs(), f.resolver, f.spacing, f.logger)
}

// WarmUp resolves each of ids once with spacing between them and returns.
// It is meant to run in its own goroutine at startup; dispatch works while
// it is still running.
func WarmUp(ctx context.Context, ids []string, resolver AddressResolver, spacing time.Duration, logger Logger) PassResult {
	if logger == nil {
		logger = noopLogger{}
	}
	logger.Info("controller warm-up started", "count", len(ids))
	res := resolveAll(ctx, nil, ids, resolver, spacing, logger)
	logger.Info("controller warm-up finished",
		"attempted", res.Attempted, "resolved", res.Resolved, "failed", res.Failed)
	return res
}

// resolveAll resolves ids in order, pausing between them. It stops early if
// ctx is cancelled or done is closed.
func resolveAll(ctx context.Context, done <-chan struct{}, ids []string, resolver AddressResolver, spacing time.Duration, logger Logger) PassResult {
	var res PassResult
	for i, id := range ids {
		if i > 0 && spacing > 0 {
			select {
			case <-ctx.Done():
				return res
			case <-done:
				return res
			case <-time.After(spacing):
			}
		} else if ctx.Err() != nil {
			return res
		}

		res.Attempted++
		if err := safeResolve(ctx, resolver, id); err != nil {
			res.Failed++
			logger.Warn("controller refresh failed", "controller_id", id, "error", err)
			continue
		}
		res.Resolved++
	}
	return res
}

// safeResolve converts a panic in the resolver into an error.
func safeResolve(ctx context.Context, resolver AddressResolver, id string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resolver panic: %v", p)
		}
	}()
	_, err = resolver.Resolve(ctx, id)
	return err
}
