// Package session maps browser sessions to their orchestrators.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/logger"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/orchestrator"
)

// Factory builds the orchestrator for a new session id
type Factory func(id string) *orchestrator.Orchestrator

type entry struct {
	orch     *orchestrator.Orchestrator
	lastSeen time.Time
}

// Manager keeps one orchestrator per session. Sessions idle for longer than
// the TTL are evicted, and the least recently used idle, complete or failed
// session makes room when the limit is reached. Evicted orchestrators are reset.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	max      int
	factory  Factory
	now      func() time.Time
}

// NewManager creates a session manager
func NewManager(ttl time.Duration, maxSessions int, factory Factory) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		max:      maxSessions,
		factory:  factory,
		now:      time.Now,
	}
}

// Get returns the live session for id and marks it as used. An expired
// session is evicted and reported as missing.
func (m *Manager) Get(id string) (*orchestrator.Orchestrator, bool) {
	if id == "" {
		return nil, false
	}
	now := m.now()

	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	if now.Sub(e.lastSeen) > m.ttl {
		delete(m.sessions, id)
		m.mu.Unlock()
		resetAll([]*orchestrator.Orchestrator{e.orch})
		return nil, false
	}
	e.lastSeen = now
	m.mu.Unlock()
	return e.orch, true
}

// Create registers a new session. When the limit is reached the least
// recently used sessions make room, except those still Processing; if every
// session is Processing, Create fails with an unavailable error.
func (m *Manager) Create() (string, *orchestrator.Orchestrator, error) {
	now := m.now()
	var evicted []*orchestrator.Orchestrator

	m.mu.Lock()
	if m.max > 0 && len(m.sessions) >= m.max {
		evicted = m.evictOldestLocked(len(m.sessions) - m.max + 1)
		if len(m.sessions) >= m.max {
			m.mu.Unlock()
			resetAll(evicted)
			logger.WithField("sessions", m.Len()).Warn("Session limit reached with every session processing")
			return "", nil, apperrors.NewUnavailableError("too many analyses in progress, try again shortly", nil)
		}
	}

	id := uuid.NewString()
	orch := m.factory(id)
	m.sessions[id] = &entry{orch: orch, lastSeen: now}
	m.mu.Unlock()

	resetAll(evicted)
	logger.WithFields(logrus.Fields{
		"session_id": id,
		"evicted":    len(evicted),
		"sessions":   m.Len(),
	}).Debug("Session created")
	return id, orch, nil
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts expired sessions and returns how many were removed
func (m *Manager) Sweep() int {
	now := m.now()
	var evicted []*orchestrator.Orchestrator

	m.mu.Lock()
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) > m.ttl {
			delete(m.sessions, id)
			evicted = append(evicted, e.orch)
		}
	}
	m.mu.Unlock()

	resetAll(evicted)
	if len(evicted) > 0 {
		logger.WithField("evicted", len(evicted)).Info("Expired sessions evicted")
	}
	return len(evicted)
}

// Run sweeps periodically until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close resets every session, cancelling in-flight work
func (m *Manager) Close() {
	m.mu.Lock()
	evicted := make([]*orchestrator.Orchestrator, 0, len(m.sessions))
	for id, e := range m.sessions {
		evicted = append(evicted, e.orch)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	resetAll(evicted)
}

// evictOldestLocked removes up to n sessions, least recently used first,
// skipping sessions with a submission in flight
func (m *Manager) evictOldestLocked(n int) []*orchestrator.Orchestrator {
	ids := make([]string, 0, len(m.sessions))
	for id, e := range m.sessions {
		if _, processing := e.orch.State().(orchestrator.Processing); !processing {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.sessions[ids[i]].lastSeen.Before(m.sessions[ids[j]].lastSeen)
	})
	if n > len(ids) {
		n = len(ids)
	}

	evicted := make([]*orchestrator.Orchestrator, 0, n)
	for _, id := range ids[:n] {
		evicted = append(evicted, m.sessions[id].orch)
		delete(m.sessions, id)
	}
	return evicted
}

func resetAll(orchs []*orchestrator.Orchestrator) {
	for _, o := range orchs {
		o.Reset(context.Background())
	}
}
