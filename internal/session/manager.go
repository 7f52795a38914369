package session

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrSessionStopped is returned by Enqueue after the session has been
	// dropped.
	ErrSessionStopped = errors.New("session: session has been dropped")
	// ErrUnknownConnection is returned by SessionCreate for a connection id
	// the manager never registered (or already removed).
	ErrUnknownConnection = errors.New("session: unknown connection")
	// ErrUnauthorizedEffectiveUser is returned by SessionCreate when an
	// unprivileged real user requests an effective user other than itself
	// (§4.2).
	ErrUnauthorizedEffectiveUser = errors.New("session: unprivileged peer cannot assume a different effective user")
)

// Connection is one accepted socket, tracked by the fd-equivalent id the
// Connection Manager assigns it, along with the sessions opened over it.
type Connection struct {
	ID       uint64
	RealUser Credentials

	mu       sync.Mutex
	sessions map[uint32]struct{}
}

// Manager owns the connection table (by connection id) and the session
// table (by session id), the two keyed tables named in §4.2.
type Manager struct {
	mu          sync.RWMutex
	connections map[uint64]*Connection
	sessions    map[uint32]*Session

	nextConnID    uint64
	nextSessionID uint32
}

// NewManager creates an empty Session Manager.
func NewManager() *Manager {
	return &Manager{
		connections: make(map[uint64]*Connection),
		sessions:    make(map[uint32]*Session),
	}
}

// AddConnection registers a newly accepted connection under its peer's
// real-user credentials, returning the connection id to address it by.
func (m *Manager) AddConnection(real Credentials) *Connection {
	id := atomic.AddUint64(&m.nextConnID, 1)
	conn := &Connection{ID: id, RealUser: real, sessions: make(map[uint32]struct{})}

	m.mu.Lock()
	m.connections[id] = conn
	m.mu.Unlock()

	return conn
}

// RemoveConnection drops a connection and every session opened over it,
// returning the dropped session ids so the caller can release their engine
// state (overlays, locks) via engine.Handle.SessionEnd.
func (m *Manager) RemoveConnection(connID uint64) []uint32 {
	m.mu.Lock()
	conn, ok := m.connections[connID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.connections, connID)
	m.mu.Unlock()

	conn.mu.Lock()
	ids := make([]uint32, 0, len(conn.sessions))
	for id := range conn.sessions {
		ids = append(ids, id)
	}
	conn.mu.Unlock()

	for _, id := range ids {
		m.SessionDrop(id)
	}
	return ids
}

// SessionCreate opens a session bound to connID and datastore ds. If
// effectiveUser is nil the session's effective user is the connection's
// real user; otherwise it must equal the real user unless the real user is
// privileged (§4.2).
func (m *Manager) SessionCreate(connID uint64, ds string, effectiveUser *Credentials) (*Session, error) {
	m.mu.RLock()
	conn, ok := m.connections[connID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownConnection
	}

	effective := conn.RealUser
	if effectiveUser != nil {
		if *effectiveUser != conn.RealUser && !conn.RealUser.Privileged() {
			return nil, ErrUnauthorizedEffectiveUser
		}
		effective = *effectiveUser
	}

	id := atomic.AddUint32(&m.nextSessionID, 1)
	sess := newSession(id, connID, conn.RealUser, effective, ds)

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	conn.mu.Lock()
	conn.sessions[id] = struct{}{}
	conn.mu.Unlock()

	go sess.Run()

	return sess, nil
}

// SessionDrop stops a session's request queue and removes it from both
// tables. Safe to call more than once for the same id.
func (m *Manager) SessionDrop(id uint32) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.mu.RLock()
	conn := m.connections[sess.ConnectionID]
	m.mu.RUnlock()
	if conn != nil {
		conn.mu.Lock()
		delete(conn.sessions, id)
		conn.mu.Unlock()
	}

	sess.stop()
}

// Session looks up a session by id.
func (m *Manager) Session(id uint32) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Connection looks up a connection by id.
func (m *Manager) Connection(id uint64) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	return c, ok
}

// ActiveSessions implements metrics.StatsSource.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ActiveConnections implements metrics.StatsSource.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}
