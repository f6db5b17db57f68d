package session

import (
	"time"

	"go.uber.org/zap"

	"pizza-phone-agent/backend/pkg/config"
)

// TurnState is who holds the floor.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnCallerSpeaking
	TurnResponsePending
	TurnResponseActive
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnCallerSpeaking:
		return "caller_speaking"
	case TurnResponsePending:
		return "response_pending"
	case TurnResponseActive:
		return "response_active"
	}
	return "unknown"
}

// Request asks the arbiter for an AI response.
type Request struct {
	Reason       string
	Instructions string
	// Critical confirmations may start while the caller is talking.
	Critical bool
	// Greeting marks the opening response of the call.
	Greeting bool

	attempts int
}

// Responder sends response control messages to the AI leg.
type Responder interface {
	CreateResponse(instructions string) error
	CancelResponse() error
}

// Scheduler runs fn after d on the session loop. The returned func
// cancels it.
type Scheduler func(d time.Duration, fn func()) (cancel func())

// ArbiterConfig holds the turn-taking timings.
type ArbiterConfig struct {
	GreetingSilenceWindow time.Duration
	GreetingPassWindow    time.Duration
	Debounce              time.Duration
	RateLimitRetries      int
	RateLimitBackoff      time.Duration
}

// ArbiterConfigFrom reads the timings from cfg.
func ArbiterConfigFrom(cfg *config.Config) ArbiterConfig {
	return ArbiterConfig{
		GreetingSilenceWindow: config.Ms(cfg.GreetingSilenceWindowMs),
		GreetingPassWindow:    config.Ms(cfg.GreetingPassWindowMs),
		Debounce:              config.Ms(cfg.ResponseDebounceMs),
		RateLimitRetries:      cfg.RateLimitRetries,
		RateLimitBackoff:      config.Ms(cfg.RateLimitBackoffMs),
	}
}

// ArbiterStats counts arbitration decisions.
type ArbiterStats struct {
	Created   int64 `json:"created"`
	Dropped   int64 `json:"dropped"`
	Deferred  int64 `json:"deferred"`
	Cancelled int64 `json:"cancelled"`
	Retried   int64 `json:"retried"`
}

// Arbiter decides when the AI may speak. It is not safe for concurrent
// use; the session loop owns it.
type Arbiter struct {
	cfg       ArbiterConfig
	responder Responder
	schedule  Scheduler
	now       func() time.Time
	logger    *zap.Logger

	state       TurnState
	greetingAt  time.Time
	lastForced  time.Time
	inFlight    *Request
	deferred    *Request
	cancelDefer func()
	cancelRetry func()
	stats       ArbiterStats
}

// NewArbiter creates an idle arbiter.
func NewArbiter(cfg ArbiterConfig, responder Responder, schedule Scheduler, now func() time.Time, logger *zap.Logger) *Arbiter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arbiter{
		cfg:       cfg,
		responder: responder,
		schedule:  schedule,
		now:       now,
		logger:    logger,
	}
}

// State returns the current turn state.
func (a *Arbiter) State() TurnState {
	return a.state
}

// Stats returns the decision counters.
func (a *Arbiter) Stats() ArbiterStats {
	return a.stats
}

// GreetingIssuedAt is when the greeting was requested, zero before.
func (a *Arbiter) GreetingIssuedAt() time.Time {
	return a.greetingAt
}

// Request asks for a response. It returns true when response.create was
// sent now; otherwise the request was dropped or deferred.
func (a *Arbiter) Request(req Request) bool {
	now := a.now()

	if req.Greeting {
		if a.greetingAt.IsZero() {
			a.greetingAt = now
		} else if now.Sub(a.greetingAt) >= a.cfg.GreetingPassWindow {
			a.drop(req, "greeting pass window elapsed")
			return false
		}
		return a.attempt(req, false)
	}

	if until := a.silenceUntil(now); until > 0 {
		if req.Critical {
			a.deferFor(req, until)
		} else {
			a.drop(req, "post-greeting silence")
		}
		return false
	}
	return a.attempt(req, true)
}

// SpeechStarted moves the floor to the caller and cancels any response
// being prepared or played.
func (a *Arbiter) SpeechStarted() {
	prev := a.state
	a.state = TurnCallerSpeaking
	if prev == TurnResponsePending || prev == TurnResponseActive {
		if err := a.responder.CancelResponse(); err != nil {
			a.logger.Debug("Failed to cancel response", zap.Error(err))
		}
		a.stats.Cancelled++
		a.inFlight = nil
	}
	if a.deferred != nil && !a.deferred.Critical {
		a.deferred = nil
		a.stopDeferTimer()
	}
}

// SpeechStopped ends the caller's turn without forcing a response.
func (a *Arbiter) SpeechStopped() {
	if a.state == TurnCallerSpeaking {
		a.state = TurnIdle
	}
}

// InputCommitted ends the caller's turn without forcing a response.
func (a *Arbiter) InputCommitted() {
	a.SpeechStopped()
}

// ResponseCreated marks a response as playing, whichever side created it.
func (a *Arbiter) ResponseCreated() {
	a.state = TurnResponseActive
}

// ResponseDone closes the current response. A rate-limited failure is
// retried after retryAfter, or the configured back-off when zero.
func (a *Arbiter) ResponseDone(rateLimited bool, retryAfter time.Duration) {
	inFlight := a.inFlight
	a.inFlight = nil
	if a.state != TurnCallerSpeaking {
		a.state = TurnIdle
	}
	if rateLimited {
		a.retry(inFlight, retryAfter)
		return
	}
	a.fireDeferred()
}

// CreateFailed handles a response.create rejected before any response
// existed.
func (a *Arbiter) CreateFailed(rateLimited bool, retryAfter time.Duration) {
	if a.state != TurnResponsePending {
		return
	}
	a.ResponseDone(rateLimited, retryAfter)
}

// Reset returns to Idle and forgets pending work. The greeting time is kept.
func (a *Arbiter) Reset() {
	a.state = TurnIdle
	a.inFlight = nil
	a.deferred = nil
	a.stopDeferTimer()
	if a.cancelRetry != nil {
		a.cancelRetry()
		a.cancelRetry = nil
	}
}

func (a *Arbiter) attempt(req Request, debounce bool) bool {
	switch a.state {
	case TurnCallerSpeaking:
		if !req.Critical {
			a.drop(req, "caller speaking")
			return false
		}
	case TurnResponsePending, TurnResponseActive:
		a.setDeferred(req)
		return false
	}

	now := a.now()
	if debounce && !a.lastForced.IsZero() {
		if wait := a.cfg.Debounce - now.Sub(a.lastForced); wait > 0 {
			if req.Critical {
				a.deferFor(req, wait)
			} else {
				a.drop(req, "debounce")
			}
			return false
		}
	}

	if err := a.responder.CreateResponse(req.Instructions); err != nil {
		a.logger.Warn("Failed to request response",
			zap.String("reason", req.Reason),
			zap.Error(err),
		)
		return false
	}
	a.state = TurnResponsePending
	a.lastForced = now
	sent := req
	a.inFlight = &sent
	a.stats.Created++
	return true
}

func (a *Arbiter) retry(req *Request, after time.Duration) {
	r := Request{Reason: "rate limit retry"}
	if req != nil {
		r = *req
	}
	if r.attempts >= a.cfg.RateLimitRetries {
		a.logger.Warn("Giving up on rate-limited response",
			zap.String("reason", r.Reason),
			zap.Int("attempts", r.attempts),
		)
		a.stats.Dropped++
		a.fireDeferred()
		return
	}
	r.attempts++
	if after <= 0 {
		after = a.cfg.RateLimitBackoff
	}
	a.stats.Retried++
	a.logger.Info("Response rate limited, retrying",
		zap.String("reason", r.Reason),
		zap.Int("attempt", r.attempts),
		zap.Duration("after", after),
	)
	if a.cancelRetry != nil {
		a.cancelRetry()
	}
	a.cancelRetry = a.schedule(after, func() {
		a.cancelRetry = nil
		a.attempt(r, false)
	})
}

// setDeferred fills the single deferred slot. The latest request wins,
// except that a critical one is never replaced by a non-critical one.
func (a *Arbiter) setDeferred(req Request) {
	if a.deferred != nil && a.deferred.Critical && !req.Critical {
		a.drop(req, "deferred slot holds a critical request")
		return
	}
	r := req
	a.deferred = &r
	a.stats.Deferred++
}

func (a *Arbiter) deferFor(req Request, d time.Duration) {
	a.setDeferred(req)
	a.stopDeferTimer()
	a.cancelDefer = a.schedule(d, func() {
		a.cancelDefer = nil
		a.fireDeferred()
	})
}

func (a *Arbiter) fireDeferred() {
	if a.deferred == nil {
		return
	}
	req := *a.deferred
	a.deferred = nil
	a.stopDeferTimer()

	if until := a.silenceUntil(a.now()); until > 0 {
		a.deferFor(req, until)
		return
	}
	a.attempt(req, true)
}

func (a *Arbiter) stopDeferTimer() {
	if a.cancelDefer != nil {
		a.cancelDefer()
		a.cancelDefer = nil
	}
}

// silenceUntil returns how long the post-greeting silence still lasts.
func (a *Arbiter) silenceUntil(now time.Time) time.Duration {
	if a.greetingAt.IsZero() {
		return 0
	}
	return a.cfg.GreetingSilenceWindow - now.Sub(a.greetingAt)
}

func (a *Arbiter) drop(req Request, why string) {
	a.stats.Dropped++
	a.logger.Debug("Response request dropped",
		zap.String("reason", req.Reason),
		zap.String("why", why),
		zap.String("state", a.state.String()),
	)
}
