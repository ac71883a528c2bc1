package server

import (
	"sort"
	"sync"
)

// SessionRegistry tracks which identity is logged in on which connection.
// Both directions live under one mutex so they can never disagree: at most
// one connection per identity and at most one identity per connection.
type SessionRegistry struct {
	mu         sync.RWMutex
	byIdentity map[string]*SafeConn
	byConn     map[*SafeConn]string
	metrics    *Metrics
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byIdentity: make(map[string]*SafeConn),
		byConn:     make(map[*SafeConn]string),
	}
}

// SetMetrics attaches metrics to the registry
func (r *SessionRegistry) SetMetrics(metrics *Metrics) {
	r.metrics = metrics
}

// Bind makes conn the session for identity. If identity was already bound to
// a different connection, that connection is returned as superseded; it stays
// open but no longer carries a session. If conn was bound to a different
// identity, that binding is dropped first.
func (r *SessionRegistry) Bind(identity string, conn *SafeConn) (superseded *SafeConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byConn[conn]; ok && prev != identity {
		delete(r.byIdentity, prev)
	}
	if old, ok := r.byIdentity[identity]; ok && old != conn {
		delete(r.byConn, old)
		superseded = old
	}
	r.byIdentity[identity] = conn
	r.byConn[conn] = identity

	// Set under the lock so the gauge always matches the map
	if r.metrics != nil {
		r.metrics.RecordActiveSessions(len(r.byIdentity))
		if superseded != nil {
			r.metrics.RecordSessionSuperseded()
		}
	}
	return superseded
}

// Unbind removes whatever session conn carries. Unbinding a connection with
// no session is a no-op, so cleanup paths may call it freely.
func (r *SessionRegistry) Unbind(conn *SafeConn) (identity string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok = r.byConn[conn]
	if ok {
		delete(r.byConn, conn)
		// Only drop the forward entry if it still points at this conn
		if r.byIdentity[identity] == conn {
			delete(r.byIdentity, identity)
		}
	}
	if ok && r.metrics != nil {
		r.metrics.RecordActiveSessions(len(r.byIdentity))
	}
	return identity, ok
}

// Lookup returns the connection bound to identity.
func (r *SessionRegistry) Lookup(identity string) (*SafeConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byIdentity[identity]
	return conn, ok
}

// IsOnline reports whether identity currently has a session.
func (r *SessionRegistry) IsOnline(identity string) bool {
	_, ok := r.Lookup(identity)
	return ok
}

// IdentityOf returns the identity bound to conn, if any.
func (r *SessionRegistry) IdentityOf(conn *SafeConn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.byConn[conn]
	return identity, ok
}

// Online returns the identities with a live session, sorted.
func (r *SessionRegistry) Online() []string {
	r.mu.RLock()
	identities := make([]string, 0, len(r.byIdentity))
	for identity := range r.byIdentity {
		identities = append(identities, identity)
	}
	r.mu.RUnlock()

	sort.Strings(identities)
	return identities
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
