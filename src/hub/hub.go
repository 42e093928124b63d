package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docflow/eventhub/src/auth"
	"github.com/docflow/eventhub/src/types"
)

// ErrNotRunning is returned for connect attempts against a stopped hub.
var ErrNotRunning = errors.New("hub is not running")

// Options configure a Hub.
type Options struct {
	HeartbeatInterval time.Duration // period between heartbeat ticks
	HeartbeatTimeout  time.Duration // silence before eviction
	CleanupInterval   time.Duration // period between sweeper passes
	MaxConnections    int           // hard cap, <= 0 for unlimited
	SendConcurrency   int           // fan-out worker bound
}

// DefaultOptions returns the defaults used when a field is zero.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  90 * time.Second,
		CleanupInterval:   5 * time.Minute,
		MaxConnections:    1000,
		SendConcurrency:   32,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = def.HeartbeatInterval
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = def.CleanupInterval
	}
	if o.SendConcurrency <= 0 {
		o.SendConcurrency = def.SendConcurrency
	}
	return o
}

// Hub is the composition root: it owns the registry, broadcaster, heartbeat
// monitor, cleanup sweeper and event emitter, and exposes the API used by
// the rest of the system.
type Hub struct {
	opts        Options
	registry    *Registry
	broadcaster *Broadcaster
	emitter     *Emitter
	monitor     *Monitor
	sweeper     *Sweeper
	authn       *auth.Authenticator
	logger      zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// inbound counts client messages per connection id. Entries for closed
	// connections are removed on disconnect; the sweeper catches leftovers.
	statsMu sync.Mutex
	inbound map[string]uint64
}

// New wires a hub from its parts. Call Start before accepting connections.
func New(opts Options, authn *auth.Authenticator, logger zerolog.Logger) *Hub {
	opts = opts.withDefaults()
	logger = logger.With().Str("component", "hub").Logger()

	registry := NewRegistry(opts.MaxConnections)
	broadcaster := NewBroadcaster(registry, opts.SendConcurrency, logger)

	h := &Hub{
		opts:        opts,
		registry:    registry,
		broadcaster: broadcaster,
		emitter:     NewEmitter(logger),
		authn:       authn,
		logger:      logger,
		inbound:     make(map[string]uint64),
	}
	broadcaster.onDeliveryFailure = h.Disconnect
	h.monitor = NewMonitor(registry, broadcaster, opts.HeartbeatInterval, opts.HeartbeatTimeout, h.Disconnect, logger)
	h.sweeper = NewSweeper(registry, opts.CleanupInterval, h.sweepInbound, logger)
	return h
}

// Start spawns the heartbeat monitor and cleanup sweeper. Calling Start on a
// running hub is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		h.monitor.Run(ctx)
	}()
	go func() {
		defer h.wg.Done()
		h.sweeper.Run(ctx)
	}()

	h.running = true
	h.logger.Info().
		Dur("heartbeat_interval", h.opts.HeartbeatInterval).
		Dur("heartbeat_timeout", h.opts.HeartbeatTimeout).
		Int("max_connections", h.opts.MaxConnections).
		Msg("hub started")
}

// Stop cancels the background tasks and force-closes every live connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.cancel()
	h.mu.Unlock()

	h.wg.Wait()
	for _, c := range h.registry.All() {
		h.Disconnect(c.ID, "server shutdown")
	}
	h.logger.Info().Msg("hub stopped")
}

// Running reports the hub lifecycle state.
func (h *Hub) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Connect registers a new connection, optionally authenticating it. A bad
// token is not fatal: the connection proceeds anonymous. The returned id is
// unique for the hub's lifetime and never reused.
func (h *Hub) Connect(conn types.Conn, token string, clientInfo map[string]string) (string, error) {
	if !h.Running() {
		_ = conn.WriteClose(types.CloseGoingAway, "server shutdown")
		_ = conn.Close()
		return "", ErrNotRunning
	}

	c := NewConnection(uuid.New().String(), conn, clientInfo)
	if token != "" {
		identity, err := h.authn.Authenticate(token)
		if err != nil {
			h.logger.Warn().Err(err).Str("connection_id", c.ID).Msg("connect token rejected, proceeding anonymous")
		} else {
			c.SetIdentity(identity.UserID, identity.Roles)
		}
	}

	if err := h.registry.Register(c); err != nil {
		c.Close(types.CloseCapacityExceeded, "capacity exceeded")
		h.logger.Warn().Str("connection_id", c.ID).Msg("connection rejected at capacity")
		return "", err
	}

	// Re-check after the registration is visible: a Stop racing this
	// connect may already have snapshotted the registry, and a connection
	// admitted after that snapshot would never be force-closed.
	if !h.Running() {
		h.registry.Unregister(c.ID)
		c.Close(types.CloseGoingAway, "server shutdown")
		return "", ErrNotRunning
	}

	ack := types.NewMessage(types.EventConnectionEstablished, map[string]any{
		"connection_id":      c.ID,
		"authenticated":      c.Authenticated(),
		"user_id":            nullableUser(c.UserID()),
		"heartbeat_interval": h.opts.HeartbeatInterval.Seconds(),
	})
	if err := c.Write(ack); err != nil {
		h.registry.Unregister(c.ID)
		c.Close(types.CloseNormal, "handshake failed")
		return "", fmt.Errorf("handshake ack: %w", err)
	}
	c.markEstablished()

	h.logger.Info().
		Str("connection_id", c.ID).
		Str("user_id", c.UserID()).
		Bool("authenticated", c.Authenticated()).
		Msg("connection established")
	h.emitter.Emit(types.EventConnectionEstablished, map[string]any{
		"connection_id": c.ID,
		"user_id":       nullableUser(c.UserID()),
		"authenticated": c.Authenticated(),
	})
	return c.ID, nil
}

// Disconnect force-closes one connection and removes it from the registry.
// Unknown ids are a no-op. Removal claims ownership: when two paths race to
// disconnect the same id (heartbeat eviction against a read error, say),
// only the winner closes the socket and emits connection_closed.
func (h *Hub) Disconnect(id, reason string) {
	c, ok := h.registry.Unregister(id)
	if !ok {
		return
	}

	code := types.CloseNormal
	if reason == "server shutdown" {
		code = types.CloseGoingAway
	}
	c.Close(code, reason)

	h.statsMu.Lock()
	delete(h.inbound, id)
	h.statsMu.Unlock()

	h.logger.Info().Str("connection_id", id).Str("reason", reason).Msg("connection closed")
	h.emitter.Emit(types.EventConnectionClosed, map[string]any{
		"connection_id": id,
		"user_id":       nullableUser(c.UserID()),
		"reason":        reason,
	})
}

// ReadPump consumes inbound messages for a connection until it closes.
// The transport layer calls this on the goroutine serving the socket.
func (h *Hub) ReadPump(id string) {
	c, ok := h.registry.Get(id)
	if !ok {
		return
	}
	for {
		var msg types.Message
		if err := c.Read(&msg); err != nil {
			h.Disconnect(id, "client disconnected")
			return
		}
		h.handleInbound(c, msg)
	}
}

// handleInbound dispatches one client message. Control messages are a closed
// set; everything else flows to application handlers as client_message.
func (h *Hub) handleInbound(c *Connection, msg types.Message) {
	h.statsMu.Lock()
	h.inbound[c.ID]++
	h.statsMu.Unlock()

	switch ctl := types.ParseControl(msg).(type) {
	case types.HeartbeatResponse:
		c.TouchHeartbeat()

	case types.Subscribe:
		c.Subscribe(ctl.EventTypes)
		h.sendTo(c, types.NewMessage(types.EventSubscriptionConfirmed, map[string]any{
			"event_types": ctl.EventTypes,
		}))

	case types.Unsubscribe:
		c.Unsubscribe(ctl.EventTypes)
		h.sendTo(c, types.NewMessage(types.EventUnsubscriptionConfirmed, map[string]any{
			"event_types": ctl.EventTypes,
		}))

	case types.Authenticate:
		h.reauthenticate(c, ctl.Token)

	case types.Unknown:
		h.emitter.Emit(types.EventClientMessage, map[string]any{
			"connection_id": c.ID,
			"user_id":       nullableUser(c.UserID()),
			"type":          ctl.RawType,
			"data":          ctl.Payload,
		})
	}
}

// reauthenticate upgrades an existing connection in place. Failure answers
// that connection only and leaves its current identity untouched.
func (h *Hub) reauthenticate(c *Connection, token string) {
	identity, err := h.authn.Authenticate(token)
	if err != nil {
		kind := "invalid"
		if errors.Is(err, auth.ErrExpiredToken) {
			kind = "expired"
		}
		h.sendTo(c, types.NewMessage(types.EventAuthenticationError, map[string]any{
			"error": kind,
		}))
		return
	}

	old := c.UserID()
	c.SetIdentity(identity.UserID, identity.Roles)
	h.registry.Rebind(c.ID, old, identity.UserID)
	h.sendTo(c, types.NewMessage(types.EventAuthenticationSuccess, map[string]any{
		"user_id": identity.UserID,
		"roles":   identity.Roles,
	}))
	h.logger.Info().Str("connection_id", c.ID).Str("user_id", identity.UserID).Msg("connection authenticated")
}

// sendTo funnels a direct response through the broadcaster so delivery
// failures and counters follow the one policy.
func (h *Hub) sendTo(c *Connection, msg types.Message) {
	msg.TargetConnectionIDs = []string{c.ID}
	h.broadcaster.Send(msg)
}

// Broadcast fans an event out to every connection passing the role and
// subscription filters, returning the delivered count.
func (h *Hub) Broadcast(eventType string, data map[string]any, requiredRoles ...string) int {
	msg := types.NewMessage(eventType, data)
	msg.RequiredRoles = requiredRoles
	return h.broadcaster.Send(msg)
}

// Unicast delivers an event to all of one user's connections.
func (h *Hub) Unicast(userID, eventType string, data map[string]any) int {
	return h.broadcaster.Unicast(userID, types.NewMessage(eventType, data))
}

// Subscribe adds event types to a connection's subscriptions.
func (h *Hub) Subscribe(connID string, eventTypes []string) bool {
	c, ok := h.registry.Get(connID)
	if !ok {
		return false
	}
	c.Subscribe(eventTypes)
	return true
}

// Unsubscribe removes event types from a connection's subscriptions.
// Removing types that were never subscribed still succeeds.
func (h *Hub) Unsubscribe(connID string, eventTypes []string) bool {
	c, ok := h.registry.Get(connID)
	if !ok {
		return false
	}
	c.Unsubscribe(eventTypes)
	return true
}

// On registers an application handler for a lifecycle event.
func (h *Hub) On(eventType string, fn Handler) uint64 {
	return h.emitter.On(eventType, fn)
}

// Off unregisters a handler previously added with On.
func (h *Hub) Off(eventType string, id uint64) bool {
	return h.emitter.Off(eventType, id)
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() types.Stats {
	return types.Stats{
		Active:           h.registry.Len(),
		Authenticated:    h.registry.AuthenticatedLen(),
		TotalEver:        h.registry.TotalEver(),
		Sent:             h.broadcaster.Sent(),
		Failed:           h.broadcaster.Failed(),
		HeartbeatsSent:   h.monitor.HeartbeatsSent(),
		HeartbeatsFailed: h.monitor.HeartbeatsFailed(),
		Dropped:          h.monitor.Dropped(),
		UniqueUsers:      h.registry.UniqueUsers(),
	}
}

// ListConnections returns summaries of every live connection.
func (h *Hub) ListConnections() []types.ConnectionSummary {
	conns := h.registry.All()
	out := make([]types.ConnectionSummary, 0, len(conns))

	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	for _, c := range conns {
		s := c.Summary()
		s.MessagesReceived = h.inbound[c.ID]
		out = append(out, s)
	}
	return out
}

// sweepInbound drops inbound counters whose connection is gone. Called by
// the cleanup sweeper.
func (h *Hub) sweepInbound() int {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()

	removed := 0
	for id := range h.inbound {
		if _, ok := h.registry.Get(id); !ok {
			delete(h.inbound, id)
			removed++
		}
	}
	return removed
}

// nullableUser renders an empty user id as JSON null.
func nullableUser(userID string) any {
	if userID == "" {
		return nil
	}
	return userID
}
