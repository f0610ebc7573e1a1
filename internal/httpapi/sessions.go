package httpapi

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"outreach-platform/internal/calls"
	"outreach-platform/internal/monitor"
)

var ErrSessionNotFound = errors.New("httpapi: monitor session not found")

// Session is one live monitor view: its monitor, its local status store, and
// any dispatch run currently in flight. The store is shared between the
// monitor (fallback reads) and the dispatcher (optimistic writes); the two
// sources are never merged.
type Session struct {
	ID      string
	UserID  string
	GroupID string

	Store   *calls.Store
	Monitor *monitor.Monitor

	mu             sync.Mutex
	dispatchCancel context.CancelFunc
}

// BeginDispatch registers a dispatch run and returns its context. A second
// dispatch on the same session replaces the cancel handle only after the
// first was canceled or finished.
func (s *Session) BeginDispatch(parent context.Context) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatchCancel != nil {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	s.dispatchCancel = cancel
	return ctx, true
}

// EndDispatch clears the dispatch handle once the run returns.
func (s *Session) EndDispatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatchCancel != nil {
		s.dispatchCancel()
		s.dispatchCancel = nil
	}
}

// CancelDispatch requests cooperative cancellation of the active run, if any.
func (s *Session) CancelDispatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatchCancel == nil {
		return false
	}
	s.dispatchCancel()
	return true
}

// SessionManager holds the live monitor sessions keyed by id.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

func (m *SessionManager) Create(userID, groupID string, store *calls.Store, mon *monitor.Monitor) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		UserID:  userID,
		GroupID: groupID,
		Store:   store,
		Monitor: mon,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close stops the session's monitor, cancels any dispatch, clears its store,
// and forgets the session.
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.CancelDispatch()
	s.Monitor.Close()
	return nil
}

// CloseAll tears down every live session. Called on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.CancelDispatch()
		s.Monitor.Close()
	}
}
