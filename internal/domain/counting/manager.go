package counting

import (
	"context"
	"sync"

	"recuento/internal/core/apperror"
	"recuento/internal/core/clock"
	"recuento/internal/domain/catalog"
	"recuento/internal/remote"
	"recuento/pkg/logger"
)

// Manager holds at most one live session per user and enforces the
// rebinding discipline: switching warehouse tears the old session down
// synchronously before the new one binds.
type Manager struct {
	store     remote.Store
	catalog   *catalog.Service
	snapshots SnapshotStore
	clk       clock.Clock
	log       *logger.Logger
	cfg       Config

	mu       sync.Mutex
	sessions map[string]*Session // userID -> session
}

// NewManager creates a session manager.
func NewManager(store remote.Store, cat *catalog.Service, snapshots SnapshotStore, clk clock.Clock, log *logger.Logger, cfg Config) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		store:     store,
		catalog:   cat,
		snapshots: snapshots,
		clk:       clk,
		log:       log,
		cfg:       cfg,
		sessions:  make(map[string]*Session),
	}
}

// Bind returns the user's session for the warehouse, creating or rebinding
// as needed. An existing session for a different warehouse is closed first.
func (m *Manager) Bind(ctx context.Context, userID, warehouseID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[userID]; ok {
		if existing.Warehouse() == warehouseID {
			return existing, nil
		}
		existing.Close()
		delete(m.sessions, userID)
	}

	session, err := NewSession(ctx, userID, warehouseID, m.store, m.catalog, m.snapshots, m.clk, m.log, m.cfg)
	if err != nil {
		return nil, err
	}
	m.sessions[userID] = session
	return session, nil
}

// Get returns the user's live session.
func (m *Manager) Get(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}
	return nil, apperror.NewNoActiveSession()
}

// Release closes and removes the user's session (sign-out). The catalog's
// per-session source notice resets with it.
func (m *Manager) Release(userID string) {
	m.mu.Lock()
	session, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if ok {
		session.Close()
	}
	if m.catalog != nil {
		m.catalog.ResetNotices(userID)
	}
}

// Shutdown closes every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for userID, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
