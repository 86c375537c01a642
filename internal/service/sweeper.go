package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camlink/gimbal-bridge/internal/registry"
	"github.com/rs/zerolog"
)

// Sweeper periodically runs the registry staleness check so offline
// transitions are detected even when nobody is querying. The lazy
// query-time sweep in the facade uses the same registry timeout, so both
// mechanisms agree.
type Sweeper struct {
	registry *registry.Registry
	interval time.Duration
	logger   zerolog.Logger

	onTransition TransitionFunc

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSweeper creates a new staleness sweeper.
func NewSweeper(reg *registry.Registry, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		registry: reg,
		interval: interval,
		logger:   logger.With().Str("component", "staleness-sweeper").Logger(),
	}
}

// SetTransitionHandler sets the callback fired for transitions the sweep
// causes. Must be called before Start.
func (s *Sweeper) SetTransitionHandler(fn TransitionFunc) {
	s.onTransition = fn
}

// Start begins the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	if s.started.Load() {
		return
	}
	s.started.Store(true)

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, t := range s.registry.MarkStaleIfTimedOut(now) {
					if s.onTransition != nil {
						s.onTransition(t)
					}
				}
			}
		}
	}()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("offline_timeout", s.registry.OfflineTimeout()).
		Msg("Staleness sweeper started")
}

// Stop stops the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if !s.started.Load() {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.started.Store(false)
	s.logger.Info().Msg("Staleness sweeper stopped")
}
