package chat

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/adapter"
	"github.com/m-mizutani/seeker/pkg/memory"
	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
)

// Manager owns the live sessions. Each session gets its own memory store;
// the embedder and the tools are shared.
type Manager struct {
	perceiver Perceiver
	planner   Planner
	tools     Toolbox
	embedder  adapter.Embedder
	opts      []Option

	mu       sync.Mutex
	sessions map[model.SessionID]*Session
}

// ManagerInput contains the collaborators shared by all sessions
type ManagerInput struct {
	Perceiver Perceiver
	Planner   Planner
	Tools     Toolbox
	Embedder  adapter.Embedder
}

func NewManager(input ManagerInput, opts ...Option) *Manager {
	return &Manager{
		perceiver: input.Perceiver,
		planner:   input.Planner,
		tools:     input.Tools,
		embedder:  input.Embedder,
		opts:      opts,
		sessions:  make(map[model.SessionID]*Session),
	}
}

// Create builds and starts a new session. Tool loading happens in the
// session loop; a failure there is reported by Session.Wait.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	if m.embedder == nil {
		return nil, goerr.New("embedder is required", goerr.T(ErrTagSessionSetup))
	}

	s, err := New(NewInput{
		Perceiver: m.perceiver,
		Planner:   m.planner,
		Tools:     m.tools,
		Memory:    memory.New(m.embedder),
	}, m.opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		m.remove(s.ID())
		return nil, err
	}

	logging.From(ctx).Info("session created", "session_id", s.ID())
	return s, nil
}

func (m *Manager) Get(id model.SessionID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) remove(id model.SessionID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	return s
}

// Destroy removes the session and waits for it to stop
func (m *Manager) Destroy(ctx context.Context, id model.SessionID) error {
	s := m.remove(id)
	if s == nil {
		return goerr.New("session not found", goerr.V("session_id", id))
	}

	if err := s.Close(ctx); err != nil {
		return goerr.Wrap(err, "failed to close session", goerr.V("session_id", id))
	}
	logging.From(ctx).Info("session destroyed", "session_id", id)
	return nil
}

// Close destroys every session. It returns the first error.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]model.SessionID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.Destroy(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
