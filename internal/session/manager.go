package session

import (
	"errors"
	"sync"
	"time"

	"labeling-service/internal/models"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is one annotator's labeling session. Current is the bill being
// shown right now; only that session's own submit advances it. The manager
// hands out snapshots, so the stored struct is only ever touched under the
// manager's lock.
type Session struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Current   *models.Bill `json:"current,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// Manager tracks active sessions in memory.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// Start opens a session for the given annotator.
func (m *Manager) Start(userID string) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	snapshot := *s
	return &snapshot
}

// Get returns a snapshot of the session. Two requests for the same
// session id each get their own copy; updates go through SetCurrent.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	snapshot := *s
	return &snapshot, nil
}

// SetCurrent records the bill now shown in the session.
func (m *Manager) SetCurrent(id string, bill *models.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Current = bill
	return nil
}

// End discards a session.
func (m *Manager) End(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
