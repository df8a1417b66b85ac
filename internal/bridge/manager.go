package bridge

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// closer is the part of *websocket.Conn the manager needs.
type closer interface {
	Close(code websocket.StatusCode, reason string) error
}

type liveBridge struct {
	userID string
	conn   closer
}

// SessionManager tracks the live bridge of each practice session. A session
// has at most one bridge; a newer connection replaces the older one.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]liveBridge
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]liveBridge),
	}
}

// Register makes conn the live bridge of sessionID, closing any previous one.
// It reports whether a bridge was replaced.
func (m *SessionManager) Register(userID, sessionID string, conn closer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	replaced := false
	if existing, ok := m.active[sessionID]; ok && existing.conn != conn {
		_ = existing.conn.Close(websocket.StatusPolicyViolation, "session opened elsewhere")
		replaced = true
	}
	m.active[sessionID] = liveBridge{userID: userID, conn: conn}
	slog.Info("Practice bridge registered", "user_id", userID, "session_id", sessionID, "replaced", replaced)
	return replaced
}

// Unregister removes conn if it is still the live bridge of sessionID.
func (m *SessionManager) Unregister(sessionID string, conn closer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[sessionID]; ok && current.conn == conn {
		delete(m.active, sessionID)
		slog.Info("Practice bridge unregistered", "user_id", current.userID, "session_id", sessionID)
	}
}

// Active reports whether sessionID has a live bridge.
func (m *SessionManager) Active(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[sessionID]
	return ok
}

// Count returns the number of live bridges.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CloseUser closes every live bridge owned by userID.
func (m *SessionManager) CloseUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sid, b := range m.active {
		if b.userID != userID {
			continue
		}
		_ = b.conn.Close(websocket.StatusNormalClosure, "session closed")
		delete(m.active, sid)
		slog.Info("Practice bridge closed", "user_id", userID, "session_id", sid)
	}
}

// CloseAll closes every live bridge. It is used during server shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sid, b := range m.active {
		_ = b.conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(m.active, sid)
	}
}

// Close closes the live bridge of sessionID, if any.
func (m *SessionManager) Close(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.active[sessionID]; ok {
		_ = b.conn.Close(websocket.StatusNormalClosure, "session closed")
		delete(m.active, sessionID)
		slog.Info("Practice bridge closed", "user_id", b.userID, "session_id", sessionID)
	}
}
