package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	mu      sync.Mutex
	media   []string
	clears  int
	closed  bool
	sendErr error
}

func (c *fakeCaller) SendMedia(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.media = append(c.media, payload)
	return nil
}

func (c *fakeCaller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	return nil
}

func (c *fakeCaller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCaller) Clears() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

func (c *fakeCaller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type aiSink struct {
	frames []string
	err    error
}

func (s *aiSink) send(payload string) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, payload)
	return nil
}

func TestRelay_QueuesUntilReadyAndDropsOldest(t *testing.T) {
	ai := &aiSink{}
	r := NewRelay(3, ai.send, &fakeCaller{}, nil)

	for _, f := range []string{"f1", "f2", "f3", "f4", "f5"} {
		r.FromCaller(f)
	}
	assert.Empty(t, ai.frames)
	assert.Equal(t, 3, r.Pending())

	r.SetReady(true)
	assert.Equal(t, []string{"f3", "f4", "f5"}, ai.frames)
	assert.Equal(t, 0, r.Pending())

	r.FromCaller("f6")
	assert.Equal(t, []string{"f3", "f4", "f5", "f6"}, ai.frames)

	stats := r.Stats()
	assert.Equal(t, int64(5), stats.Queued)
	assert.Equal(t, int64(2), stats.Dropped)
	assert.Equal(t, int64(3), stats.Flushed)
	assert.Equal(t, int64(4), stats.ForwardedToAI)
}

func TestRelay_FlushesOnlyOnce(t *testing.T) {
	ai := &aiSink{}
	r := NewRelay(10, ai.send, &fakeCaller{}, nil)

	r.FromCaller("f1")
	r.SetReady(true)
	r.SetReady(true)
	assert.Equal(t, []string{"f1"}, ai.frames)
}

func TestRelay_RequeuesAfterReconnect(t *testing.T) {
	ai := &aiSink{}
	r := NewRelay(10, ai.send, &fakeCaller{}, nil)
	r.SetReady(true)
	r.FromCaller("f1")

	r.SetReady(false)
	r.FromCaller("f2")
	r.FromCaller("f3")
	assert.Equal(t, []string{"f1"}, ai.frames)

	r.SetReady(true)
	assert.Equal(t, []string{"f1", "f2", "f3"}, ai.frames)
}

func TestRelay_AIAudioIsNeverQueued(t *testing.T) {
	caller := &fakeCaller{}
	r := NewRelay(10, (&aiSink{}).send, caller, nil)

	r.FromAI("a1")
	r.FromAI("a2")
	assert.Equal(t, []string{"a1", "a2"}, caller.media)

	caller.sendErr = errors.New("socket closed")
	r.FromAI("a3")
	assert.Equal(t, int64(1), r.Stats().FailedToCaller)
	assert.Equal(t, int64(2), r.Stats().ForwardedToCaller)
}

func TestRelay_ForwardFailuresAreDropped(t *testing.T) {
	ai := &aiSink{err: errors.New("not open")}
	r := NewRelay(10, ai.send, &fakeCaller{}, nil)
	r.FromCaller("f1")
	r.SetReady(true)
	r.FromCaller("f2")

	require.Empty(t, ai.frames)
	assert.Equal(t, int64(2), r.Stats().FailedToAI)
	assert.Equal(t, 0, r.Pending())
}

func TestRelay_BargeInClearsPlayback(t *testing.T) {
	caller := &fakeCaller{}
	r := NewRelay(10, (&aiSink{}).send, caller, nil)
	r.BargeIn()
	assert.Equal(t, 1, caller.Clears())
	assert.Equal(t, int64(1), r.Stats().Clears)
}
