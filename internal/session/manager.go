package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Velsaravanan-kafka/Second-brain/internal/storage"
)

// Manager keeps one open session per owner.
type Manager struct {
	mu       sync.Mutex
	store    storage.Storage
	opts     []Option
	logger   *zap.Logger
	sessions map[string]*Session
}

func NewManager(store storage.Storage, opts ...Option) *Manager {
	return &Manager{
		store:    store,
		opts:     opts,
		logger:   buildOptions(opts).logger,
		sessions: make(map[string]*Session),
	}
}

// Session returns the owner's session, opening it on first use.
func (m *Manager) Session(ctx context.Context, ownerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[ownerID]; ok {
		return s, nil
	}
	s, err := New(ownerID, m.store, m.opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Open(ctx); err != nil {
		s.Close()
		return nil, err
	}
	m.sessions[ownerID] = s
	return s, nil
}

// Drop closes the owner's session so the next use reloads from the store.
func (m *Manager) Drop(ownerID string) {
	m.mu.Lock()
	s, ok := m.sessions[ownerID]
	delete(m.sessions, ownerID)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close flushes and closes every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for owner, s := range sessions {
		if err := s.Close(); err != nil {
			m.logger.Error("Failed to close session", zap.String("owner_id", owner), zap.Error(err))
		}
	}
	return nil
}
