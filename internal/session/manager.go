// Package session runs sales conversations on top of the rag service: a
// baseline context loaded once per session, then per-turn retrieval with
// supersession of stale turns.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrhollen/SalesAgent/internal/llm"
	"github.com/mrhollen/SalesAgent/internal/rag"
)

const (
	DefaultBaselineQuery     = "Company overview"
	DefaultBaselineMaxChunks = 15
	DefaultTurnMaxChunks     = 5
)

// Retriever builds formatted context for a query. *rag.Service implements it.
type Retriever interface {
	BuildContext(ctx context.Context, query, userID string, maxChunks int) (string, error)
}

type Config struct {
	BaselineQuery     string
	BaselineMaxChunks int
	TurnMaxChunks     int
	// ReplyModel is passed to the Responder; empty uses its default model.
	ReplyModel string
}

func (c Config) withDefaults() Config {
	if c.BaselineQuery == "" {
		c.BaselineQuery = DefaultBaselineQuery
	}
	if c.BaselineMaxChunks <= 0 {
		c.BaselineMaxChunks = DefaultBaselineMaxChunks
	}
	if c.TurnMaxChunks <= 0 {
		c.TurnMaxChunks = DefaultTurnMaxChunks
	}
	return c
}

// Manager starts, tracks and ends sessions.
type Manager struct {
	retriever Retriever
	responder llm.Responder
	cfg       Config
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

type Option func(*Manager)

// WithResponder makes every turn generate a reply from its instructions.
func WithResponder(r llm.Responder) Option {
	return func(m *Manager) {
		m.responder = r
	}
}

func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg.withDefaults()
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(retriever Retriever, opts ...Option) *Manager {
	m := &Manager{
		retriever: retriever,
		cfg:       Config{}.withDefaults(),
		logger:    slog.Default(),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start preloads the baseline context for profile.UserID and registers a
// new session. It fails with ErrEmptyContext when the user has nothing
// indexed; retrieval errors are returned as is.
func (m *Manager) Start(ctx context.Context, profile Profile) (*Session, error) {
	if profile.UserID == "" {
		return nil, fmt.Errorf("%w: user ID is required", rag.ErrInvalidInput)
	}

	baseline, err := m.retriever.BuildContext(ctx, m.cfg.BaselineQuery, profile.UserID, m.cfg.BaselineMaxChunks)
	if err != nil {
		return nil, fmt.Errorf("loading business context: %w", err)
	}
	if baseline == "" {
		return nil, fmt.Errorf("%w for user %s", ErrEmptyContext, profile.UserID)
	}

	sessionCtx, stop := context.WithCancel(context.Background())
	s := &Session{
		id:        uuid.NewString(),
		profile:   profile,
		baseline:  baseline,
		startedAt: time.Now(),
		manager:   m,
		logger:    m.logger,
		ctx:       sessionCtx,
		stop:      stop,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("session started", "session_id", s.id, "user_id", profile.UserID)

	return s, nil
}

// Get returns the live session with id, or ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End closes and forgets the session with id.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	s.Close()
	return nil
}

// Shutdown closes every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
