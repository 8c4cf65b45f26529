package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/memory"
	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/tool"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
)

var (
	// ErrTagSessionSetup marks a session that could not be started
	ErrTagSessionSetup = goerr.NewTag("session_setup")

	ErrSessionClosed = goerr.New("session is closed")
)

// State is the position of a session in its request cycle
type State int32

const (
	StateIdle State = iota
	StateAwaitingInput
	StatePerceiving
	StateRetrieving
	StateDeciding
	StateActing
	StateAnswering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInput:
		return "awaiting_input"
	case StatePerceiving:
		return "perceiving"
	case StateRetrieving:
		return "retrieving"
	case StateDeciding:
		return "deciding"
	case StateActing:
		return "acting"
	case StateAnswering:
		return "answering"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// request is an input queue item. terminate asks the loop to stop once
// everything queued before it has been processed.
type request struct {
	text      string
	terminate bool
}

// Session is one conversation: its own memory scope, history and input
// queue. Requests are processed one at a time by a single goroutine.
type Session struct {
	id        model.SessionID
	perceiver Perceiver
	planner   Planner
	tools     Toolbox
	memory    *memory.Store
	cfg       config
	logger    *slog.Logger

	inbox  chan request
	events chan model.Event
	done   chan struct{}
	state  atomic.Int32
	err    error

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	closeMu   sync.Mutex
	closing   bool

	// owned by the loop goroutine
	catalog   *tool.Catalog
	history   []model.Turn
	topic     string
	hasTopic  bool
	createdAt time.Time
}

// NewInput contains the collaborators of a session
type NewInput struct {
	Perceiver Perceiver
	Planner   Planner
	Tools     Toolbox
	Memory    *memory.Store
}

func New(input NewInput, opts ...Option) (*Session, error) {
	switch {
	case input.Perceiver == nil:
		return nil, goerr.New("perceiver is required", goerr.T(ErrTagSessionSetup))
	case input.Planner == nil:
		return nil, goerr.New("planner is required", goerr.T(ErrTagSessionSetup))
	case input.Tools == nil:
		return nil, goerr.New("toolbox is required", goerr.T(ErrTagSessionSetup))
	case input.Memory == nil:
		return nil, goerr.New("memory store is required", goerr.T(ErrTagSessionSetup))
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	now := cfg.now()
	s := &Session{
		id:        model.NewSessionID(now),
		perceiver: input.Perceiver,
		planner:   input.Planner,
		tools:     input.Tools,
		memory:    input.Memory,
		cfg:       cfg,
		inbox:     make(chan request, cfg.queueSize),
		events:    make(chan model.Event, eventBufferSize),
		done:      make(chan struct{}),
		createdAt: now,
	}
	s.setState(StateIdle)
	return s, nil
}

func (s *Session) ID() model.SessionID {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Events returns the ordered outbound event stream. It is closed after the
// session stops. Emission blocks until the event is received, so the
// consumer must keep draining it.
func (s *Session) Events() <-chan model.Event {
	return s.events
}

// Start launches the session loop. The loop lives until Close is called or
// ctx is canceled.
func (s *Session) Start(ctx context.Context) error {
	started := false
	s.startOnce.Do(func() {
		started = true

		logger := s.cfg.logger
		if logger == nil {
			logger = logging.From(ctx)
		}
		s.logger = logger.With("session_id", s.id)
		s.ctx, s.cancel = context.WithCancel(logging.With(ctx, s.logger))

		go s.run()
	})

	if !started {
		return goerr.New("session already started", goerr.V("session_id", s.id))
	}
	return nil
}

// Submit queues user text. Requests are processed in submission order.
func (s *Session) Submit(ctx context.Context, text string) error {
	s.closeMu.Lock()
	closing := s.closing
	s.closeMu.Unlock()
	if closing {
		return goerr.Wrap(ErrSessionClosed, "cannot submit", goerr.V("session_id", s.id))
	}
	select {
	case <-s.done:
		return goerr.Wrap(ErrSessionClosed, "cannot submit", goerr.V("session_id", s.id))
	default:
	}

	select {
	case s.inbox <- request{text: text}:
		return nil
	case <-s.done:
		return goerr.Wrap(ErrSessionClosed, "cannot submit", goerr.V("session_id", s.id))
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "submit canceled", goerr.V("session_id", s.id))
	}
}

// Close queues the terminate request and waits for the loop to exit. The
// request being processed and everything queued before Close finish first.
// If ctx ends before that, the session is canceled and ctx's error returned.
func (s *Session) Close(ctx context.Context) error {
	s.closeMu.Lock()
	first := !s.closing
	s.closing = true
	s.closeMu.Unlock()

	// never started: nothing to drain
	s.startOnce.Do(func() {
		s.setState(StateStopped)
		close(s.events)
		close(s.done)
	})

	if first {
		select {
		case s.inbox <- request{terminate: true}:
		case <-s.done:
		case <-ctx.Done():
			s.abort()
			return goerr.Wrap(ctx.Err(), "close canceled", goerr.V("session_id", s.id))
		}
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.abort()
		return goerr.Wrap(ctx.Err(), "close canceled", goerr.V("session_id", s.id))
	}
}

func (s *Session) abort() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the session stops and returns the setup error, if any
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

func (s *Session) run() {
	defer close(s.done)
	defer close(s.events)
	defer s.setState(StateStopped)
	defer s.cancel()

	if err := s.setup(); err != nil {
		s.err = err
		return
	}

	s.setState(StateAwaitingInput)
	for {
		select {
		case req := <-s.inbox:
			if req.terminate {
				s.record()
				s.log("agent", "Agent stopped")
				return
			}
			s.processRequest(req.text)
			s.setState(StateAwaitingInput)

		case <-s.ctx.Done():
			s.record()
			s.logger.Info("session canceled", "error", s.ctx.Err())
			return
		}
	}
}

func (s *Session) setup() error {
	s.log("agent", "Starting search agent")

	catalog, err := s.tools.Catalog(s.ctx)
	if err != nil {
		err = goerr.Wrap(err, "failed to load tool catalog",
			goerr.T(ErrTagSessionSetup),
			goerr.V("session_id", s.id))
		s.logger.Error("session setup failed", "error", err)
		s.log("error", fmt.Sprintf("Failed to load tools: %v", err))
		return err
	}

	s.catalog = catalog
	s.log("agent", fmt.Sprintf("Loaded %d tools", catalog.Len()))
	s.emit(model.EventTools, catalog.Names())
	return nil
}

func (s *Session) record() {
	if s.cfg.recorder == nil || len(s.history) == 0 {
		return
	}

	history := &model.History{
		ID:        model.NewHistoryID(),
		SessionID: s.id,
		Topic:     s.topic,
		TurnCount: len(s.history),
		CreatedAt: s.createdAt,
		UpdatedAt: s.cfg.now(),
		Turns:     slices.Clone(s.history),
	}

	// the session context may already be canceled here
	ctx := context.WithoutCancel(s.ctx)
	if err := s.cfg.recorder.Save(ctx, history); err != nil {
		s.logger.Error("failed to save transcript", "error", err)
		s.log("error", fmt.Sprintf("Failed to save transcript: %v", err))
		return
	}
	s.log("agent", fmt.Sprintf("Transcript saved as %s", history.ID))
}

// emit delivers an event in order. It gives up only when the session is
// canceled.
func (s *Session) emit(typ model.EventType, data any) {
	select {
	case s.events <- model.Event{Type: typ, Data: data}:
	case <-s.ctx.Done():
	}
}

func (s *Session) log(stage, msg string) {
	s.logger.Info(msg, "stage", stage)
	s.emit(model.EventLog, model.LogData{
		Stage:     stage,
		Message:   msg,
		Timestamp: s.cfg.now().Format("15:04:05"),
	})
}

func (s *Session) layer(name string, status model.LayerStatus, data any) {
	s.emit(model.EventLayer, model.LayerData{Name: name, Status: status, Data: data})
}

func (s *Session) appendTurn(role model.Role, name, content string) {
	s.history = append(s.history, model.Turn{
		Role:      role,
		Name:      name,
		Content:   content,
		Timestamp: s.cfg.now(),
	})
}

// reply records an assistant turn and shows it to the user
func (s *Session) reply(content string) {
	s.appendTurn(model.RoleAssistant, "", content)
	s.emit(model.EventChat, model.ChatData{Role: model.RoleAssistant, Content: content})
}
