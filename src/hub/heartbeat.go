package hub

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/docflow/eventhub/src/types"
)

// Monitor evicts silent connections and pings live ones on a fixed period.
type Monitor struct {
	registry    *Registry
	broadcaster *Broadcaster
	interval    time.Duration
	timeout     time.Duration
	closeConn   func(id, reason string)
	logger      zerolog.Logger

	dropped  atomic.Uint64
	hbSent   atomic.Uint64
	hbFailed atomic.Uint64
}

// NewMonitor creates a heartbeat monitor. closeConn performs the hub-level
// forced closure (unregister + lifecycle event).
func NewMonitor(registry *Registry, broadcaster *Broadcaster, interval, timeout time.Duration, closeConn func(id, reason string), logger zerolog.Logger) *Monitor {
	return &Monitor{
		registry:    registry,
		broadcaster: broadcaster,
		interval:    interval,
		timeout:     timeout,
		closeConn:   closeConn,
		logger:      logger.With().Str("component", "heartbeat").Logger(),
	}
}

// Run ticks until the context is cancelled. Each tick fully evicts stale
// connections before pinging, so a stale connection never sees a late ping.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Tick()
		case <-ctx.Done():
			return
		}
	}
}

// Tick performs one evict-then-ping pass.
func (m *Monitor) Tick() {
	threshold := time.Now().Add(-m.timeout)

	for _, c := range m.registry.All() {
		if c.LastHeartbeat().Before(threshold) {
			m.dropped.Add(1)
			m.logger.Info().
				Str("connection_id", c.ID).
				Time("last_heartbeat", c.LastHeartbeat()).
				Msg("evicting stale connection")
			m.closeConn(c.ID, "heartbeat timeout")
		}
	}

	if m.registry.Len() == 0 {
		return
	}
	delivered, failed := m.broadcaster.SendCounted(types.NewMessage(types.EventHeartbeat, map[string]any{
		"server_time": time.Now().UTC().Format(time.RFC3339),
	}))
	m.hbSent.Add(uint64(delivered))
	m.hbFailed.Add(uint64(failed))
}

// Dropped returns the number of connections evicted for heartbeat timeout.
func (m *Monitor) Dropped() uint64 { return m.dropped.Load() }

// HeartbeatsSent returns successful ping deliveries.
func (m *Monitor) HeartbeatsSent() uint64 { return m.hbSent.Load() }

// HeartbeatsFailed returns ping deliveries that failed.
func (m *Monitor) HeartbeatsFailed() uint64 { return m.hbFailed.Load() }
