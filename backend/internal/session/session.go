package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/agent"
	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/internal/realtime"
	"pizza-phone-agent/backend/internal/tools"
)

// AIState is the readiness of a session's AI leg.
type AIState int32

const (
	AIDisconnected AIState = iota
	AIConnecting
	AIReady
)

func (s AIState) String() string {
	switch s {
	case AIDisconnected:
		return "disconnected"
	case AIConnecting:
		return "connecting"
	case AIReady:
		return "ready"
	}
	return "unknown"
}

// AILeg is a session's connection to the model.
type AILeg interface {
	Start()
	Send(ev realtime.ClientEvent) error
	Close()
}

const (
	eventBuffer     = 256
	finalizeTimeout = 30 * time.Second
)

// Session is the live state of one phone call. All order and turn
// mutation happens on its event loop.
type Session struct {
	ID        string
	CallerID  string
	CreatedAt time.Time

	order     *order.Order
	executor  *tools.Executor
	finalizer *order.Finalizer
	prompts   *agent.PromptBuilder
	relay     *Relay
	arbiter   *Arbiter
	ai        AILeg
	caller    CallerLeg
	logger    *zap.Logger

	events   chan Event
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	aiState    atomic.Int32
	connected  bool // loop only
	greeted    bool // loop only
	reconnects int  // loop only

	finalizing sync.WaitGroup // hand-offs started by the loop
	closeOnce  sync.Once
	summary    CallSummary
}

// CallSummary is what a finished session reports.
type CallSummary struct {
	CallID      string        `json:"call_id"`
	CallerID    string        `json:"caller_id"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	Duration    time.Duration `json:"duration"`
	OrderID     string        `json:"order_id"`
	OrderLogged bool          `json:"order_logged"`
	Items       int           `json:"items"`
	Total       float64       `json:"total"`
	Reconnects  int           `json:"reconnects"`
	Relay       RelayStats    `json:"relay"`
	Turns       ArbiterStats  `json:"turns"`
}

// Info is a point-in-time view of a live session.
type Info struct {
	CallID    string    `json:"call_id"`
	CallerID  string    `json:"caller_id"`
	CreatedAt time.Time `json:"created_at"`
	AIState   string    `json:"ai_state"`
	Items     int       `json:"items"`
	Total     float64   `json:"total"`
	Confirmed bool      `json:"confirmed"`
	Logged    bool      `json:"logged"`
}

// Order returns the session's order.
func (s *Session) Order() *order.Order {
	return s.order
}

// AIState returns the current readiness of the AI leg.
func (s *Session) AIState() AIState {
	return AIState(s.aiState.Load())
}

// Info returns a snapshot for status endpoints.
func (s *Session) Info() Info {
	totals := s.order.Totals()
	return Info{
		CallID:    s.ID,
		CallerID:  s.CallerID,
		CreatedAt: s.CreatedAt,
		AIState:   s.AIState().String(),
		Items:     len(s.order.Items()),
		Total:     totals.Total,
		Confirmed: s.order.Confirmed(),
		Logged:    s.order.Logged(),
	}
}

// Done is closed once the session loop has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.loopDone
}

// PushCallerAudio hands one inbound frame to the loop. It blocks while
// the loop is busy and returns immediately once the session is closed.
func (s *Session) PushCallerAudio(payload string) {
	s.post(Event{Kind: EventCallerAudio, Payload: payload})
}

// HandleServerEvent implements realtime.Handler.
func (s *Session) HandleServerEvent(ev realtime.ServerEvent) {
	s.post(Event{Kind: EventAIServer, Server: ev})
}

// HandleConnState implements realtime.Handler.
func (s *Session) HandleConnState(state realtime.ConnState, reconnect bool) {
	s.post(Event{Kind: EventAIConn, Conn: state, Reconnect: reconnect})
}

// CreateResponse implements Responder.
func (s *Session) CreateResponse(instructions string) error {
	return s.ai.Send(realtime.CreateResponse(instructions))
}

// CancelResponse implements Responder.
func (s *Session) CancelResponse() error {
	return s.ai.Send(realtime.CancelResponse())
}

func (s *Session) post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// schedule runs fn on the loop after d.
func (s *Session) schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() {
		s.post(Event{Kind: EventTimer, Fire: fn})
	})
	return func() { t.Stop() }
}

func (s *Session) start() {
	go s.run()
	s.ai.Start()
}

func (s *Session) run() {
	defer close(s.loopDone)
	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) handle(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Session handler panicked",
				zap.String("event", ev.Kind.String()),
				zap.String("server_event", ev.Server.Type),
				zap.Any("panic", r),
			)
		}
	}()

	switch ev.Kind {
	case EventCallerAudio:
		s.relay.FromCaller(ev.Payload)
	case EventAIServer:
		s.handleServerEvent(ev.Server)
	case EventAIConn:
		s.handleConnState(ev.Conn, ev.Reconnect)
	case EventTimer:
		if ev.Fire != nil {
			ev.Fire()
		}
	case EventFinalized:
		s.logger.Info("Finalize attempt finished",
			zap.String("reason", ev.Reason),
			zap.String("outcome", ev.Outcome.String()),
			zap.Strings("missing", ev.Missing),
		)
	}
}

func (s *Session) handleConnState(state realtime.ConnState, reconnect bool) {
	switch state {
	case realtime.StateConnecting:
		s.setAIState(AIConnecting)
	case realtime.StateConnected:
		s.connected = true
		if reconnect {
			s.reconnects++
		}
		// Ready only once the model acknowledges the session.
		s.setAIState(AIConnecting)
	case realtime.StateDisconnected:
		if s.connected {
			s.logger.Warn("AI leg disconnected, reconnecting with order intact",
				zap.Int("items", len(s.order.Items())),
			)
		}
		s.connected = false
		s.setAIState(AIDisconnected)
		s.arbiter.Reset()
	}
}

func (s *Session) setAIState(state AIState) {
	prev := AIState(s.aiState.Swap(int32(state)))
	if prev == state {
		return
	}
	s.relay.SetReady(state == AIReady)
	s.logger.Debug("AI leg state changed",
		zap.String("from", prev.String()),
		zap.String("to", state.String()),
	)
}

func (s *Session) handleServerEvent(ev realtime.ServerEvent) {
	switch ev.Type {
	case realtime.EventSessionCreated, realtime.EventSessionUpdated:
		s.onSessionReady()

	case realtime.EventSpeechStarted:
		s.relay.BargeIn()
		s.arbiter.SpeechStarted()

	case realtime.EventSpeechStopped:
		s.arbiter.SpeechStopped()

	case realtime.EventInputCommitted:
		s.arbiter.InputCommitted()

	case realtime.EventResponseCreated:
		s.arbiter.ResponseCreated()

	case realtime.EventResponseAudioDelta:
		s.relay.FromAI(ev.Delta)

	case realtime.EventResponseAudioTranscriptDone:
		s.onAgentTranscript(ev.Transcript)

	case realtime.EventFunctionCallArgumentsDone:
		s.onToolCall(ev)

	case realtime.EventResponseDone:
		retryAfter, limited := ev.RateLimited()
		if status := ev.ResponseStatus(); status != realtime.ResponseStatusCompleted && status != realtime.ResponseStatusCancelled {
			s.logger.Warn("Response did not complete",
				zap.String("status", status),
				zap.Bool("rate_limited", limited),
			)
		}
		s.arbiter.ResponseDone(limited, retryAfter)

	case realtime.EventError:
		retryAfter, limited := ev.RateLimited()
		fields := []zap.Field{zap.Bool("rate_limited", limited)}
		if ev.Error != nil {
			fields = append(fields, zap.String("code", ev.Error.Code), zap.String("message", ev.Error.Message))
		}
		s.logger.Warn("AI leg reported an error", fields...)
		s.arbiter.CreateFailed(limited, retryAfter)
	}
}

func (s *Session) onSessionReady() {
	if s.AIState() == AIReady {
		return
	}
	s.setAIState(AIReady)

	if s.reconnects > 0 {
		if err := s.ai.Send(realtime.SystemMessage(s.prompts.ReconnectContext(s.order))); err != nil {
			s.logger.Warn("Failed to restore order context", zap.Error(err))
		}
	}
	if !s.greeted {
		s.greeted = true
		s.arbiter.Request(Request{
			Reason:       "greeting",
			Instructions: s.prompts.GreetingInstructions(),
			Greeting:     true,
			Critical:     true,
		})
	}
}

func (s *Session) onAgentTranscript(transcript string) {
	if !s.order.MarkAddressSpoken(transcript) {
		return
	}
	s.logger.Info("Delivery address read back to caller")
	if s.order.Confirmed() && !s.order.Logged() {
		s.finalizeAsync("address confirmed")
	}
}

func (s *Session) onToolCall(ev realtime.ServerEvent) {
	result := s.executor.Execute(s.ctx, &tools.ExecutionContext{
		CallID:   s.ID,
		CallerID: s.CallerID,
		Order:    s.order,
	}, tools.ToolCall{
		CallID:    ev.CallID,
		Name:      ev.Name,
		Arguments: ev.Arguments,
	})
	if result == nil {
		return
	}

	if err := s.ai.Send(realtime.FunctionCallOutput(ev.CallID, result.Output())); err != nil {
		s.logger.Warn("Failed to return tool result",
			zap.String("tool", ev.Name),
			zap.Error(err),
		)
	}
	if result.Finalize {
		s.finalizeAsync(ev.Name)
	}
	if result.RequestResponse {
		s.arbiter.Request(Request{Reason: ev.Name, Critical: result.Critical})
	}
}

// finalizeAsync hands the order off without blocking the loop.
func (s *Session) finalizeAsync(reason string) {
	s.finalizing.Add(1)
	go func() {
		defer s.finalizing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		defer cancel()
		outcome, missing := s.finalizer.Finalize(ctx, s.order)
		s.post(Event{Kind: EventFinalized, Outcome: outcome, Missing: missing, Reason: reason})
	}()
}

// close stops the loop, closes both legs and makes a last finalize
// attempt once any hand-off still in flight has settled. Only the first
// call does anything; first reports whether this was it.
func (s *Session) close(ctx context.Context) (summary CallSummary, first bool) {
	s.closeOnce.Do(func() {
		first = true
		s.cancel()
		<-s.loopDone
		s.ai.Close()
		if err := s.caller.Close(); err != nil {
			s.logger.Debug("Caller leg close", zap.Error(err))
		}
		s.awaitFinalizing(ctx)

		if !s.order.Logged() && len(s.order.Items()) > 0 {
			finalizeCtx, cancel := context.WithTimeout(ctx, finalizeTimeout)
			outcome, missing := s.finalizer.Finalize(finalizeCtx, s.order)
			cancel()
			s.logger.Info("Teardown finalize attempt",
				zap.String("outcome", outcome.String()),
				zap.Strings("missing", missing),
			)
		}

		ended := time.Now()
		s.summary = CallSummary{
			CallID:      s.ID,
			CallerID:    s.CallerID,
			StartedAt:   s.CreatedAt,
			EndedAt:     ended,
			Duration:    ended.Sub(s.CreatedAt),
			OrderID:     s.order.ID,
			OrderLogged: s.order.Logged(),
			Items:       len(s.order.Items()),
			Total:       s.order.Totals().Total,
			Reconnects:  s.reconnects,
			Relay:       s.relay.Stats(),
			Turns:       s.arbiter.Stats(),
		}
		s.logger.Info("Session closed",
			zap.Duration("duration", s.summary.Duration),
			zap.Bool("order_logged", s.summary.OrderLogged),
			zap.Int64("frames_queued", s.summary.Relay.Queued),
			zap.Int64("frames_dropped", s.summary.Relay.Dropped),
			zap.Int64("frames_to_ai", s.summary.Relay.ForwardedToAI),
			zap.Int64("frames_to_caller", s.summary.Relay.ForwardedToCaller),
		)
	})
	return s.summary, first
}

// awaitFinalizing blocks until hand-offs started by the loop return, so a
// failed one is retried at teardown instead of being mistaken for done.
func (s *Session) awaitFinalizing(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.finalizing.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Teardown gave up waiting for order hand-off", zap.Error(ctx.Err()))
	}
}
