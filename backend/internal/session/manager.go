package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pizza-phone-agent/backend/internal/agent"
	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/internal/realtime"
	"pizza-phone-agent/backend/internal/tools"
	"pizza-phone-agent/backend/pkg/config"
	apperrors "pizza-phone-agent/backend/pkg/errors"
	"pizza-phone-agent/backend/pkg/logger"
)

// AIDialer creates the AI leg of a new session. handler receives
// everything the leg reads.
type AIDialer func(session realtime.SessionConfig, handler realtime.Handler, log *zap.Logger) AILeg

// RealtimeDialer returns a dialer backed by realtime.Client.
func RealtimeDialer(cfg *config.Config) AIDialer {
	return func(session realtime.SessionConfig, handler realtime.Handler, log *zap.Logger) AILeg {
		return realtime.NewClient(realtime.Options{
			URL:            cfg.RealtimeURL,
			APIKey:         cfg.OpenAIAPIKey,
			Model:          cfg.RealtimeModel,
			Session:        session,
			InitialBackoff: config.Ms(cfg.ReconnectInitialMs),
			MaxBackoff:     config.Ms(cfg.ReconnectMaxMs),
		}, handler, log)
	}
}

// Recorder stores finished calls.
type Recorder interface {
	RecordCall(ctx context.Context, summary CallSummary) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, summary CallSummary) error

// RecordCall calls f.
func (f RecorderFunc) RecordCall(ctx context.Context, summary CallSummary) error {
	return f(ctx, summary)
}

// Options wires a Manager.
type Options struct {
	Config    *config.Config
	Finalizer *order.Finalizer
	DialAI    AIDialer
	Recorder  Recorder
	Logger    *zap.Logger
	Now       func() time.Time
}

// Manager is the registry of live sessions, keyed by call id.
type Manager struct {
	cfg       *config.Config
	finalizer *order.Finalizer
	dialAI    AIDialer
	recorder  Recorder
	prompts   *agent.PromptBuilder
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DialAI == nil {
		opts.DialAI = RealtimeDialer(opts.Config)
	}
	return &Manager{
		cfg:       opts.Config,
		finalizer: opts.Finalizer,
		dialAI:    opts.DialAI,
		recorder:  opts.Recorder,
		prompts:   agent.NewPromptBuilder(opts.Config),
		logger:    opts.Logger,
		now:       opts.Now,
		sessions:  make(map[string]*Session),
	}
}

// Create starts a session for callID. A live session for the same call is
// torn down first; replaced reports whether that happened.
func (m *Manager) Create(ctx context.Context, callID, callerID string, caller CallerLeg, mn *menu.Menu) (s *Session, replaced bool) {
	if mn == nil {
		mn = menu.Static()
	}
	if prev := m.take(callID, nil); prev != nil {
		replaced = true
		m.logger.Warn("Replacing live session for call", zap.String("call_id", callID))
		m.teardown(ctx, prev)
	}

	s = m.newSession(callID, callerID, caller, mn)

	m.mu.Lock()
	raced := m.sessions[callID]
	m.sessions[callID] = s
	m.mu.Unlock()
	if raced != nil {
		replaced = true
		m.teardown(ctx, raced)
	}

	s.start()
	s.logger.Info("Session created",
		zap.Bool("replaced", replaced),
		zap.String("menu_source", mn.Source),
	)
	return s, replaced
}

func (m *Manager) newSession(callID, callerID string, caller CallerLeg, mn *menu.Menu) *Session {
	resolved := order.ResolveCallerID(callerID)
	log := logger.ForCall(m.logger, callID, resolved)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        callID,
		CallerID:  resolved,
		CreatedAt: m.now(),
		order:     order.New(callID, callerID, m.cfg.TaxRate),
		executor:  tools.NewExecutor(mn, log),
		finalizer: m.finalizer,
		prompts:   m.prompts,
		caller:    caller,
		logger:    log,
		events:    make(chan Event, eventBuffer),
		ctx:       ctx,
		cancel:    cancel,
		loopDone:  make(chan struct{}),
	}

	sessionCfg := realtime.NewSessionConfig(m.cfg,
		m.prompts.Instructions(mn, resolved),
		tools.ToRealtime(tools.GetAllTools(mn)),
	)
	s.ai = m.dialAI(sessionCfg, s, log)
	s.relay = NewRelay(m.cfg.PreConnectQueueFrames, func(payload string) error {
		return s.ai.Send(realtime.AppendAudio(payload))
	}, caller, log)
	s.arbiter = NewArbiter(ArbiterConfigFrom(m.cfg), s, s.schedule, m.now, log)
	s.aiState.Store(int32(AIDisconnected))
	return s
}

// Get returns the live session for callID.
func (m *Manager) Get(callID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	return s, ok
}

// Destroy tears down the live session for callID: the AI leg is closed,
// an unlogged order gets a last finalize attempt, and the call is
// recorded.
func (m *Manager) Destroy(ctx context.Context, callID string) error {
	s := m.take(callID, nil)
	if s == nil {
		return apperrors.NewSessionNotFound(callID)
	}
	m.teardown(ctx, s)
	return nil
}

// End tears down s if it is still the live session for its call. A
// session that was already replaced is closed without touching its
// successor.
func (m *Manager) End(ctx context.Context, s *Session) {
	m.take(s.ID, s)
	m.teardown(ctx, s)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List returns the live sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(live))
	for _, s := range live {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Shutdown tears down every live session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range live {
		s := s
		g.Go(func() error {
			m.teardown(gctx, s)
			return nil
		})
	}
	err := g.Wait()
	m.logger.Info("Sessions shut down", zap.Int("count", len(live)))
	return err
}

// take removes callID from the registry. With want set, only that exact
// session is removed.
func (m *Manager) take(callID string, want *Session) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok || (want != nil && s != want) {
		return nil
	}
	delete(m.sessions, callID)
	return s
}

func (m *Manager) teardown(ctx context.Context, s *Session) {
	summary, first := s.close(ctx)
	if !first || m.recorder == nil {
		return
	}
	if err := m.recorder.RecordCall(ctx, summary); err != nil {
		s.logger.Warn("Failed to record call", zap.Error(err))
	}
}
