package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownSession is returned when a session id or connection id does not
// resolve to a registered session.
var ErrUnknownSession = errors.New("unknown session")

// PlayerSession is the durable identity of one participant.
//
// ConnectionID is "" while no live connection is bound; RoomID is "" while the
// session is not a member of any room.
type PlayerSession struct {
	SessionID    string
	DisplayName  string
	ConnectionID string
	RoomID       string
}

// Connected reports whether a live connection is bound to the session.
func (s PlayerSession) Connected() bool {
	return s.ConnectionID != ""
}

// Binding describes the outcome of binding a connection to a session.
type Binding struct {
	Session PlayerSession
	// Resumed is true when the session existed before the call.
	Resumed bool
	// Superseded is the connection id previously bound to the session, or ""
	// when there was none or it equals the new connection.
	Superseded string
}

// Manager tracks all player sessions and the connection bound to each.
// All methods are safe for concurrent use. Returned PlayerSession values are
// copies.
//
// Invariant: a connection id resolves to at most one session, and a session's
// ConnectionID is non-empty iff the reverse mapping exists.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*PlayerSession // sessionID → session
	conns    map[string]string         // connectionID → sessionID
}

// NewManager creates an empty session Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*PlayerSession),
		conns:    make(map[string]string),
	}
}

// RegisterOrResume binds connID to sessionID, creating the session when it is
// unknown and updating its display name otherwise.
//
// Precondition: connID and sessionID must be non-empty.
// Postcondition: ByConnection(connID) resolves to sessionID. A known session
// keeps its RoomID.
func (m *Manager) RegisterOrResume(connID, sessionID, displayName string) (Binding, error) {
	if connID == "" || sessionID == "" {
		return Binding{}, fmt.Errorf("connection id and session id must be non-empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[sessionID]
	if !exists {
		m.unbindLocked(connID)
		sess = &PlayerSession{SessionID: sessionID, DisplayName: displayName}
		m.sessions[sessionID] = sess
		sess.ConnectionID = connID
		m.conns[connID] = sessionID
		return Binding{Session: *sess}, nil
	}
	sess.DisplayName = displayName
	superseded := m.rebindLocked(sess, connID)
	return Binding{Session: *sess, Resumed: true, Superseded: superseded}, nil
}

// Resume binds connID to an already known session.
//
// Precondition: connID and sessionID must be non-empty.
// Postcondition: Returns ErrUnknownSession when sessionID is not registered.
func (m *Manager) Resume(connID, sessionID string) (Binding, error) {
	if connID == "" || sessionID == "" {
		return Binding{}, fmt.Errorf("connection id and session id must be non-empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[sessionID]
	if !exists {
		return Binding{}, fmt.Errorf("session %q: %w", sessionID, ErrUnknownSession)
	}
	superseded := m.rebindLocked(sess, connID)
	return Binding{Session: *sess, Resumed: true, Superseded: superseded}, nil
}

// rebindLocked points sess at connID and returns the connection it replaced.
// Caller must hold m.mu.
func (m *Manager) rebindLocked(sess *PlayerSession, connID string) string {
	prev := sess.ConnectionID
	if prev == connID {
		return ""
	}
	if prev != "" {
		delete(m.conns, prev)
	}
	m.unbindLocked(connID)
	sess.ConnectionID = connID
	m.conns[connID] = sess.SessionID
	return prev
}

// unbindLocked detaches connID from whichever session currently holds it.
// Caller must hold m.mu.
func (m *Manager) unbindLocked(connID string) {
	sid, ok := m.conns[connID]
	if !ok {
		return
	}
	delete(m.conns, connID)
	if other, ok := m.sessions[sid]; ok && other.ConnectionID == connID {
		other.ConnectionID = ""
	}
}

// ByConnection resolves a live connection to its session.
func (m *Manager) ByConnection(connID string) (PlayerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sid, ok := m.conns[connID]
	if !ok {
		return PlayerSession{}, false
	}
	return *m.sessions[sid], true
}

// Get returns the session registered under sessionID.
func (m *Manager) Get(sessionID string) (PlayerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return PlayerSession{}, false
	}
	return *sess, true
}

// Detach invalidates the mapping for a lost connection. The session itself is
// retained.
//
// Postcondition: Returns the session that was bound to connID, or false when
// the connection resolved to no session.
func (m *Manager) Detach(connID string) (PlayerSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sid, ok := m.conns[connID]
	if !ok {
		return PlayerSession{}, false
	}
	delete(m.conns, connID)
	sess := m.sessions[sid]
	sess.ConnectionID = ""
	return *sess, true
}

// Drop removes a session and any connection mapping pointing at it.
//
// Postcondition: Returns false when sessionID was not registered.
func (m *Manager) Drop(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	if sess.ConnectionID != "" {
		delete(m.conns, sess.ConnectionID)
	}
	delete(m.sessions, sessionID)
	return true
}

// SetRoom records roomID as the session's current room.
//
// Precondition: roomID must be non-empty.
// Postcondition: Returns ErrUnknownSession when sessionID is not registered.
func (m *Manager) SetRoom(sessionID, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id must be non-empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %q: %w", sessionID, ErrUnknownSession)
	}
	sess.RoomID = roomID
	return nil
}

// ClearRoom removes the session's room reference. Unknown sessions are ignored.
func (m *Manager) ClearRoom(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[sessionID]; ok {
		sess.RoomID = ""
	}
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ConnectionCount returns the number of sessions with a live connection.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
