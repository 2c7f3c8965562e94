package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrSessionNotFound = errors.New("discovery session not found")

// Manager holds every live session. Sessions are owned exclusively by the
// manager entry that created them; nothing is shared across scopes.
type Manager struct {
	loader Loader
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	onClose func(*Session)
}

func NewManager(loader Loader) *Manager {
	return &Manager{
		loader:   loader,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// SetClock replaces the time source used for idle tracking.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// OnClose registers a callback run after a session is removed.
func (m *Manager) OnClose(fn func(*Session)) {
	m.onClose = fn
}

// Create registers a new idle session for scope. Load is left to the caller.
func (m *Manager) Create(scope Scope, opts ...Option) *Session {
	id := uuid.New().String()
	opts = append([]Option{WithID(id), WithClock(m.now)}, opts...)
	s := NewSession(m.loader, scope, opts...)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes and forgets the session. Deleting an unknown id is an error.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.close(s)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than ttl and returns how many went.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.IdleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		log.Infof("Session %s: idle for more than %s, closing", s.ID, ttl)
		m.close(s)
	}
	return len(expired)
}

// RunJanitor sweeps on every tick until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval, ttl time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(ttl)
		case <-ctx.Done():
			return nil
		}
	}
}

// CloseAll closes every session, used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		m.close(s)
	}
}

func (m *Manager) close(s *Session) {
	s.Close()
	if m.onClose != nil {
		m.onClose(s)
	}
}
