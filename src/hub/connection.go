package hub

import (
	"sync"
	"time"

	"github.com/docflow/eventhub/src/types"
)

// Connection state machine: NEW until the handshake ack is written,
// ESTABLISHED while live, CLOSED is terminal.
type connState int32

const (
	stateNew connState = iota
	stateEstablished
	stateClosed
)

// Connection wraps one WebSocket and owns its socket handle exclusively.
type Connection struct {
	ID string

	conn    types.Conn
	writeMu sync.Mutex // serializes frames onto the socket

	mu            sync.RWMutex
	state         connState
	userID        string
	roles         []string
	authenticated bool
	subscriptions map[string]struct{}
	clientInfo    map[string]string
	connectedAt   time.Time
	lastHeartbeat time.Time

	closeOnce sync.Once
}

// NewConnection creates a Connection in the NEW state.
func NewConnection(id string, conn types.Conn, clientInfo map[string]string) *Connection {
	now := time.Now()
	return &Connection{
		ID:            id,
		conn:          conn,
		subscriptions: make(map[string]struct{}),
		clientInfo:    clientInfo,
		connectedAt:   now,
		lastHeartbeat: now,
	}
}

// Write delivers one message to the socket. Writes are serialized so that
// concurrent broadcasts cannot interleave frames.
func (c *Connection) Write(msg types.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Read blocks for the next inbound message.
func (c *Connection) Read(msg *types.Message) error {
	return c.conn.ReadJSON(msg)
}

// Close tears down the socket, best-effort sending a close frame first.
// Safe to call more than once.
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosed
		c.mu.Unlock()

		c.writeMu.Lock()
		_ = c.conn.WriteClose(code, reason)
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}

func (c *Connection) markEstablished() {
	c.mu.Lock()
	if c.state == stateNew {
		c.state = stateEstablished
	}
	c.mu.Unlock()
}

// Closed reports whether the connection reached its terminal state.
func (c *Connection) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateClosed
}

// SetIdentity mutates the connection's principal in place after a successful
// authentication.
func (c *Connection) SetIdentity(userID string, roles []string) {
	c.mu.Lock()
	c.userID = userID
	c.roles = append([]string(nil), roles...)
	c.authenticated = true
	c.mu.Unlock()
}

// UserID returns the owning user id, empty if anonymous.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Authenticated reports whether the connection carries a verified principal.
func (c *Connection) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// HasAnyRole reports whether the connection is authenticated and holds at
// least one of the given roles.
func (c *Connection) HasAnyRole(roles []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.authenticated {
		return false
	}
	for _, want := range roles {
		for _, have := range c.roles {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Subscribe adds event types to the subscription set.
func (c *Connection) Subscribe(eventTypes []string) {
	c.mu.Lock()
	for _, t := range eventTypes {
		c.subscriptions[t] = struct{}{}
	}
	c.mu.Unlock()
}

// Unsubscribe removes event types. Removing an absent type is a no-op.
func (c *Connection) Unsubscribe(eventTypes []string) {
	c.mu.Lock()
	for _, t := range eventTypes {
		delete(c.subscriptions, t)
	}
	c.mu.Unlock()
}

// WantsType applies the subscription filter. An empty subscription set
// receives everything; system types always pass. The default-open empty-set
// behavior is intentional and load-bearing for pre-subscription clients.
func (c *Connection) WantsType(eventType string) bool {
	if types.IsSystemType(eventType) {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	_, ok := c.subscriptions[eventType]
	return ok
}

// TouchHeartbeat records liveness from a heartbeat_response.
func (c *Connection) TouchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

// LastHeartbeat returns the most recent liveness timestamp.
func (c *Connection) LastHeartbeat() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeartbeat
}

// Summary returns a point-in-time copy of the connection's metadata.
func (c *Connection) Summary() types.ConnectionSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		subs = append(subs, t)
	}
	return types.ConnectionSummary{
		ID:              c.ID,
		UserID:          c.userID,
		Authenticated:   c.authenticated,
		Roles:           append([]string(nil), c.roles...),
		Subscriptions:   subs,
		ConnectedAt:     c.connectedAt,
		LastHeartbeatAt: c.lastHeartbeat,
		ClientInfo:      c.clientInfo,
	}
}
