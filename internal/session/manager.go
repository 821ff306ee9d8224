package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/relay"
)

// Manager owns the live sessions of a server.
type Manager struct {
	opts  Options
	relay relay.Streamer
	log   *zap.Logger
	newID func() string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty manager whose sessions share opts and st.
func NewManager(opts Options, st relay.Streamer, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		opts:     opts,
		relay:    st,
		log:      log,
		newID:    uuid.NewString,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new blank session.
func (m *Manager) Create() *Session {
	s := New(m.newID(), m.opts, m.relay, m.log)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()
	m.log.Info("session created", zap.String("session", s.ID()), zap.Int("sessions", n))
	return s
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete closes and forgets the session with id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Close()
	m.log.Info("session closed", zap.String("session", id))
	return nil
}

// List returns the sessions ordered by creation time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Created().Before(out[j].Created()) })
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
