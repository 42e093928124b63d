package hub

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is a low-frequency garbage collector for per-connection state
// orphaned by races between unregister and the rest of the hub. Every pass
// is corrective and idempotent.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	sweep    func() int // hub-level ancillary state GC
	logger   zerolog.Logger
}

// NewSweeper creates a cleanup sweeper.
func NewSweeper(registry *Registry, interval time.Duration, sweep func() int, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		sweep:    sweep,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep performs one pass over the user index and ancillary state.
func (s *Sweeper) Sweep() {
	removed := s.registry.CompactUserIndex()
	orphans := 0
	if s.sweep != nil {
		orphans = s.sweep()
	}
	if removed > 0 || orphans > 0 {
		s.logger.Debug().
			Int("index_entries", removed).
			Int("orphaned_state", orphans).
			Msg("sweep completed")
	}
}
