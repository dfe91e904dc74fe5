package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/interopmesh/core"
	"github.com/hupe1980/interopmesh/dispatch"
	"github.com/hupe1980/interopmesh/logging"
)

// Factory builds the dispatcher of a new session.
type Factory func(id string, host dispatch.Host) *dispatch.Dispatcher

// Session is one connected peer.
type Session struct {
	ID         string
	Dispatcher *dispatch.Dispatcher
	Opened     time.Time
}

// Options configures a Manager.
type Options struct {
	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Manager is a concurrency-safe set of open sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  Factory
	logger   logging.Logger
}

// NewManager constructs an empty Manager creating dispatchers with factory.
func NewManager(factory Factory, optFns ...func(o *Options)) *Manager {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
		logger:   logging.Scoped(opts.Logger, "session", ""),
	}
}

// Open creates a session for host under a fresh id.
func (m *Manager) Open(host dispatch.Host) (*Session, error) {
	if host == nil {
		return nil, fmt.Errorf("session host must not be nil")
	}
	id := uuid.NewString()
	d := m.factory(id, host)
	if d == nil {
		return nil, fmt.Errorf("session factory returned no dispatcher for %s", id)
	}

	s := &Session{ID: id, Dispatcher: d, Opened: time.Now()}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session.opened", "session", id)
	return s, nil
}

// Get returns the open session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, core.Errorf(core.ErrNotFound, "no open session with id '%s'", id)
	}
	return s, nil
}

// Close tears down and forgets the session with the given id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return core.Errorf(core.ErrNotFound, "no open session with id '%s'", id)
	}
	return m.teardown(s)
}

// CloseAll tears down every open session concurrently.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error { return m.teardown(s) })
	}
	return g.Wait()
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) teardown(s *Session) error {
	if err := s.Dispatcher.Close(); err != nil {
		m.logger.Error("session.close.failed", "session", s.ID, "error", err)
		return fmt.Errorf("close session %s: %w", s.ID, err)
	}
	m.logger.Info("session.closed", "session", s.ID, "lifetime_ms", time.Since(s.Opened).Milliseconds())
	return nil
}
