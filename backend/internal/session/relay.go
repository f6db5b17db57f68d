package session

import (
	"sync"

	"go.uber.org/zap"
)

// CallerLeg is the telephony side of a call.
type CallerLeg interface {
	SendMedia(payload string) error
	Clear() error
	Close() error
}

// RelayStats counts frames through the relay.
type RelayStats struct {
	Queued            int64 `json:"queued"`
	Dropped           int64 `json:"dropped"`
	Flushed           int64 `json:"flushed"`
	ForwardedToAI     int64 `json:"forwarded_to_ai"`
	ForwardedToCaller int64 `json:"forwarded_to_caller"`
	FailedToAI        int64 `json:"failed_to_ai"`
	FailedToCaller    int64 `json:"failed_to_caller"`
	Clears            int64 `json:"clears"`
}

// Relay moves audio between the two legs. Caller frames wait in a
// bounded queue, oldest dropped first, until the AI leg is ready; AI
// frames are never queued.
type Relay struct {
	toAI   func(payload string) error
	caller CallerLeg
	logger *zap.Logger

	mu    sync.Mutex
	buf   []string
	head  int
	size  int
	ready bool
	stats RelayStats
}

// NewRelay creates a relay holding at most capacity frames before the AI
// leg is ready.
func NewRelay(capacity int, toAI func(payload string) error, caller CallerLeg, logger *zap.Logger) *Relay {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		toAI:   toAI,
		caller: caller,
		logger: logger,
		buf:    make([]string, capacity),
	}
}

// FromCaller queues or forwards one caller frame.
func (r *Relay) FromCaller(payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		r.enqueueLocked(payload)
		return
	}
	r.forwardToAILocked(payload)
}

// FromAI plays one AI frame to the caller.
func (r *Relay) FromAI(payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.caller.SendMedia(payload); err != nil {
		r.stats.FailedToCaller++
		r.logger.Debug("Dropping AI audio frame", zap.Error(err))
		return
	}
	r.stats.ForwardedToCaller++
}

// SetReady switches between queueing and pass-through. Becoming ready
// flushes the queue once, in arrival order.
func (r *Relay) SetReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready == ready {
		return
	}
	r.ready = ready
	if !ready {
		return
	}

	flushed := 0
	for r.size > 0 {
		payload := r.buf[r.head]
		r.buf[r.head] = ""
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		r.forwardToAILocked(payload)
		flushed++
	}
	r.stats.Flushed += int64(flushed)
	if flushed > 0 {
		r.logger.Debug("Flushed queued caller audio", zap.Int("frames", flushed))
	}
}

// BargeIn stops AI audio the caller has not heard yet.
func (r *Relay) BargeIn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.caller.Clear(); err != nil {
		r.logger.Debug("Failed to clear caller playback", zap.Error(err))
		return
	}
	r.stats.Clears++
}

// Pending returns the number of queued caller frames.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Stats returns a copy of the counters.
func (r *Relay) Stats() RelayStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Relay) enqueueLocked(payload string) {
	if r.size == len(r.buf) {
		r.buf[r.head] = ""
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		r.stats.Dropped++
	}
	r.buf[(r.head+r.size)%len(r.buf)] = payload
	r.size++
	r.stats.Queued++
}

func (r *Relay) forwardToAILocked(payload string) {
	if err := r.toAI(payload); err != nil {
		r.stats.FailedToAI++
		r.logger.Debug("Dropping caller audio frame", zap.Error(err))
		return
	}
	r.stats.ForwardedToAI++
}
