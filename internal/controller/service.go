package controller

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/roomgate/internal/protocol"
)

// Config holds the tunables for a Service.
type Config struct {
	DiscoveryTimeout      time.Duration
	RefreshInterval       time.Duration
	RefreshSpacing        time.Duration
	WarmUpSpacing         time.Duration
	CommandTimeout        time.Duration
	MaxPendingResolutions int

	// Acknowledgements overrides protocol.DefaultAcknowledgements when set.
	Acknowledgements protocol.Acknowledgements

	// Client is shared by the Resolver and Dispatcher. Default: NewHTTPClient().
	Client *http.Client
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		DiscoveryTimeout:      DefaultDiscoveryTimeout,
		RefreshInterval:       DefaultRefreshInterval,
		RefreshSpacing:        DefaultRefreshSpacing,
		WarmUpSpacing:         DefaultWarmUpSpacing,
		CommandTimeout:        DefaultCommandTimeout,
		MaxPendingResolutions: DefaultMaxPendingResolutions,
	}
}

// Service wires the Registry, Resolver, Scheduler, Dispatcher and Refresher
// together and owns their background work.
type Service struct {
	registry   *Registry
	resolver   *Resolver
	scheduler  *Scheduler
	dispatcher *Dispatcher
	refresher  *Refresher

	warmUpSpacing time.Duration
	logger        Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewService builds a service for the given controllers.
// observer may be nil.
func NewService(devices []Device, cfg Config, observer Observer, logger Logger) (*Service, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if observer == nil {
		observer = noopObserver{}
	}
	client := cfg.Client
	if client == nil {
		client = NewHTTPClient()
	}

	registry, err := NewRegistry(devices)
	if err != nil {
		return nil, err
	}
	registry.SetLogger(logger)

	resolver := NewResolver(registry, client, cfg.DiscoveryTimeout)
	resolver.SetLogger(logger)
	resolver.SetObserver(observer)

	scheduler := NewScheduler(resolver, cfg.MaxPendingResolutions)
	scheduler.SetLogger(logger)

	dispatcher := NewDispatcher(DispatcherConfig{
		Registry:         registry,
		Trigger:          scheduler,
		Client:           client,
		Acknowledgements: cfg.Acknowledgements,
		DefaultTimeout:   cfg.CommandTimeout,
	})
	dispatcher.SetLogger(logger)
	dispatcher.SetObserver(observer)

	refresher := NewRefresher(registry, resolver, cfg.RefreshInterval, cfg.RefreshSpacing)
	refresher.SetLogger(logger)

	return &Service{
		registry:      registry,
		resolver:      resolver,
		scheduler:     scheduler,
		dispatcher:    dispatcher,
		refresher:     refresher,
		warmUpSpacing: cfg.WarmUpSpacing,
		logger:        logger,
	}, nil
}

// Start launches the warm-up task and the refresh loop and returns at once.
// Only the first call has any effect, and Start after Stop does nothing.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)

		ids := s.registry.IDs()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			WarmUp(ctx, ids, s.resolver, s.warmUpSpacing, s.logger)
		}()

		s.refresher.Start(ctx)
		s.logger.Info("controller service started", "controllers", len(ids))
	})
}

// Stop halts background work and waits for queued resolutions to drain.
// Safe to call multiple times.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		// Waits for a concurrent Start and blocks any later one.
		s.startOnce.Do(func() {})
		if s.cancel != nil {
			s.cancel()
		}
		s.refresher.Stop()
		s.wg.Wait()
		s.scheduler.Close()
		s.logger.Info("controller service stopped")
	})
}

// Dispatch sends a command. See Dispatcher.Dispatch.
func (s *Service) Dispatch(ctx context.Context, id string, cmd protocol.Command, timeout time.Duration) (string, error) {
	return s.dispatcher.Dispatch(ctx, id, cmd, timeout)
}

// CachedAddress returns the best-known endpoint for id.
func (s *Service) CachedAddress(id string) (Endpoint, error) {
	return s.registry.CachedAddress(id)
}

// TriggerResolve queues a background resolution for id.
// Returns ErrUnknownDevice for an unregistered id.
func (s *Service) TriggerResolve(id string) (bool, error) {
	if _, err := s.registry.Lookup(id); err != nil {
		return false, err
	}
	return s.scheduler.Trigger(id), nil
}

// Registry returns the underlying registry.
func (s *Service) Registry() *Registry {
	return s.registry
}
