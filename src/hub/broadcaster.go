package hub

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/docflow/eventhub/src/types"
)

// Broadcaster resolves a message's recipient set and fans it out with
// bounded concurrency, so one stalled socket cannot hold up the rest of a
// batch. Delivery is at-most-once: a failed write is never retried, the
// offending connection is force-closed instead.
type Broadcaster struct {
	registry    *Registry
	concurrency int
	logger      zerolog.Logger

	// onDeliveryFailure closes the affected connection; wired by the Hub.
	onDeliveryFailure func(id, reason string)

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry, concurrency int, logger zerolog.Logger) *Broadcaster {
	if concurrency <= 0 {
		concurrency = 32
	}
	return &Broadcaster{
		registry:    registry,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Send delivers a message to every connection passing the target, role and
// subscription filters, returning the number of successful writes. It blocks
// until all candidate writes finish, which preserves per-connection ordering
// for sequential callers.
func (b *Broadcaster) Send(msg types.Message) int {
	delivered, _ := b.SendCounted(msg)
	return delivered
}

// SendCounted is Send with this batch's write-failure count alongside, so
// callers tracking per-batch outcomes (the heartbeat tick) see actual write
// errors rather than inferring them from registry size.
func (b *Broadcaster) SendCounted(msg types.Message) (int, int) {
	candidates := b.resolve(msg)
	if len(candidates) == 0 {
		return 0, 0
	}

	var (
		wg          sync.WaitGroup
		delivered   atomic.Int64
		writeErrors atomic.Int64
		sem         = make(chan struct{}, b.concurrency)
	)
	for _, c := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(c *Connection) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.Write(msg); err != nil {
				b.failed.Add(1)
				writeErrors.Add(1)
				b.logger.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Str("type", msg.Type).
					Msg("delivery failed, closing connection")
				if b.onDeliveryFailure != nil {
					b.onDeliveryFailure(c.ID, "delivery failure")
				}
				return
			}
			b.sent.Add(1)
			delivered.Add(1)
		}(c)
	}
	wg.Wait()

	return int(delivered.Load()), int(writeErrors.Load())
}

// Unicast sends to all of one user's connections.
func (b *Broadcaster) Unicast(userID string, msg types.Message) int {
	conns := b.registry.GetByUser(userID)
	if len(conns) == 0 {
		return 0
	}
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}
	msg.TargetConnectionIDs = ids
	return b.Send(msg)
}

// resolve applies steps 1-3 of the routing algorithm: explicit targets or
// the full registry, then the role filter, then the subscription filter.
func (b *Broadcaster) resolve(msg types.Message) []*Connection {
	var candidates []*Connection
	if len(msg.TargetConnectionIDs) > 0 {
		candidates = make([]*Connection, 0, len(msg.TargetConnectionIDs))
		for _, id := range msg.TargetConnectionIDs {
			if c, ok := b.registry.Get(id); ok {
				candidates = append(candidates, c)
			}
		}
	} else {
		candidates = b.registry.All()
	}

	out := candidates[:0]
	for _, c := range candidates {
		if len(msg.RequiredRoles) > 0 && !c.HasAnyRole(msg.RequiredRoles) {
			continue
		}
		if !c.WantsType(msg.Type) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Sent returns the total number of successful deliveries.
func (b *Broadcaster) Sent() uint64 { return b.sent.Load() }

// Failed returns the total number of failed deliveries.
func (b *Broadcaster) Failed() uint64 { return b.failed.Load() }
