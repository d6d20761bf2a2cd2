package explorer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager holds sessions by id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	lastUsed map[string]time.Time
	newOpts  func(id string) Options
	now      func() time.Time
}

// NewManager creates a manager. newOpts returns the options of a new
// session; it is called with the new session's id.
func NewManager(newOpts func(id string) Options) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		lastUsed: make(map[string]time.Time),
		newOpts:  newOpts,
		now:      time.Now,
	}
}

// Create starts a new session with a random id.
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	s := NewSession(id, m.newOpts(id))

	m.mu.Lock()
	m.sessions[id] = s
	m.lastUsed[id] = m.now()
	n := len(m.sessions)
	m.mu.Unlock()

	s.opts.Metrics.SetSessions(n)
	return s
}

// Get returns the session with the given id and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	m.lastUsed[id] = m.now()
	return s, nil
}

// GetOrCreate returns the session with the given id, or a new one when id
// is empty or unknown.
func (m *Manager) GetOrCreate(id string) *Session {
	if id != "" {
		if s, err := m.Get(id); err == nil {
			return s
		}
	}
	return m.Create()
}

// Close drops a session.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	delete(m.lastUsed, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if ok {
		s.opts.Metrics.SetSessions(n)
	}
}

// IDs returns the sorted ids of all sessions.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep closes the sessions not used for longer than maxIdle and returns
// their sorted ids.
func (m *Manager) Sweep(maxIdle time.Duration) []string {
	m.mu.Lock()
	cutoff := m.now().Add(-maxIdle)
	var (
		idle []string
		last *Session
	)
	for id, used := range m.lastUsed {
		if used.Before(cutoff) {
			idle = append(idle, id)
			last = m.sessions[id]
			delete(m.sessions, id)
			delete(m.lastUsed, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if last != nil {
		last.opts.Metrics.SetSessions(n)
	}
	sort.Strings(idle)
	return idle
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, maxIdle time.Duration, onSweep func(ids []string)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ids := m.Sweep(maxIdle); len(ids) > 0 && onSweep != nil {
				onSweep(ids)
			}
		}
	}
}
