package hub

import (
	"errors"
	"sync"
)

// ErrCapacityExceeded is returned when registration would pass the
// configured connection cap.
var ErrCapacityExceeded = errors.New("connection capacity exceeded")

// Registry owns the set of live connections and its two indices: by
// connection id and by user id. All mutation happens under one mutex; raw
// maps never leave the registry.
type Registry struct {
	mu             sync.RWMutex
	maxConnections int
	byID           map[string]*Connection
	byUser         map[string]map[string]struct{}
	totalEver      uint64
}

// NewRegistry creates an empty registry. max <= 0 means unlimited.
func NewRegistry(max int) *Registry {
	return &Registry{
		maxConnections: max,
		byID:           make(map[string]*Connection),
		byUser:         make(map[string]map[string]struct{}),
	}
}

// Register inserts a connection, indexing by user when it arrived
// pre-authenticated. Fails with ErrCapacityExceeded at the cap.
func (r *Registry) Register(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConnections > 0 && len(r.byID) >= r.maxConnections {
		return ErrCapacityExceeded
	}
	r.byID[c.ID] = c
	r.totalEver++

	if uid := c.UserID(); uid != "" {
		r.bindLocked(c.ID, uid)
	}
	return nil
}

// Unregister removes a connection from both indices and returns it. The
// user entry is deleted, not left empty, when its last connection goes.
// Absent ids report false. Removal is an ownership claim: for a given id at
// most one caller ever observes ok, so concurrent disconnect paths cannot
// both finalize the same connection.
func (r *Registry) Unregister(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	if uid := c.UserID(); uid != "" {
		r.unbindLocked(id, uid)
	}
	return c, true
}

// Rebind moves a connection between user-index entries after an in-place
// re-authentication.
func (r *Registry) Rebind(id, oldUserID, newUserID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return
	}
	if oldUserID != "" {
		r.unbindLocked(id, oldUserID)
	}
	if newUserID != "" {
		r.bindLocked(id, newUserID)
	}
}

func (r *Registry) bindLocked(id, userID string) {
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[userID] = set
	}
	set[id] = struct{}{}
}

func (r *Registry) unbindLocked(id, userID string) {
	set, ok := r.byUser[userID]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
}

// Get looks up a connection by id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// GetByUser returns all live connections held by a user. Unknown users yield
// an empty slice.
func (r *Registry) GetByUser(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for id := range set {
		if c, ok := r.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// All returns a point-in-time snapshot, safe to iterate while the registry
// mutates underneath.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// AuthenticatedLen counts live authenticated connections.
func (r *Registry) AuthenticatedLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.byID {
		if c.Authenticated() {
			n++
		}
	}
	return n
}

// UniqueUsers returns the number of distinct users with live connections.
func (r *Registry) UniqueUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// TotalEver returns the count of registrations since startup.
func (r *Registry) TotalEver() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalEver
}

// CompactUserIndex drops user-index entries that lost a race with
// unregister: ids no longer registered and sets left empty. Corrective and
// idempotent, never touches a live connection.
func (r *Registry) CompactUserIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for uid, set := range r.byUser {
		for id := range set {
			if _, ok := r.byID[id]; !ok {
				delete(set, id)
				removed++
			}
		}
		if len(set) == 0 {
			delete(r.byUser, uid)
		}
	}
	return removed
}
