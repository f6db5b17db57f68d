package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/internal/realtime"
	"pizza-phone-agent/backend/pkg/config"
	apperrors "pizza-phone-agent/backend/pkg/errors"
)

const waitFor = 2 * time.Second

type fakeAI struct {
	mu      sync.Mutex
	started bool
	closed  bool
	sent    []realtime.ClientEvent
	config  realtime.SessionConfig
}

func (f *fakeAI) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
}

func (f *fakeAI) Send(ev realtime.ClientEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return apperrors.ErrTransportNotOpen
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeAI) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeAI) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeAI) ofType(eventType string) []realtime.ClientEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []realtime.ClientEvent
	for _, ev := range f.sent {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeAI) audio() []string {
	var out []string
	for _, ev := range f.ofType(realtime.EventInputAudioBufferAppend) {
		out = append(out, ev.Audio)
	}
	return out
}

func (f *fakeAI) items(itemType string) []*realtime.ConversationItem {
	var out []*realtime.ConversationItem
	for _, ev := range f.ofType(realtime.EventConversationItemCreate) {
		if ev.Item != nil && ev.Item.Type == itemType {
			out = append(out, ev.Item)
		}
	}
	return out
}

type fakeDialer struct {
	mu   sync.Mutex
	legs []*fakeAI
}

func (d *fakeDialer) dial(cfg realtime.SessionConfig, _ realtime.Handler, _ *zap.Logger) AILeg {
	d.mu.Lock()
	defer d.mu.Unlock()
	leg := &fakeAI{config: cfg}
	d.legs = append(d.legs, leg)
	return leg
}

type countingSink struct {
	mu       sync.Mutex
	receipts []order.Receipt
	err      error
}

func (s *countingSink) Submit(_ context.Context, r order.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *countingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}

// stallingSink blocks its first Submit until released and fails it;
// later submissions are accepted.
type stallingSink struct {
	started chan struct{}
	release chan struct{}

	mu       sync.Mutex
	calls    int
	accepted int
}

func newStallingSink() *stallingSink {
	return &stallingSink{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *stallingSink) Submit(_ context.Context, _ order.Receipt) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	if first {
		close(s.started)
		<-s.release
		return errors.New("pos timed out")
	}
	s.mu.Lock()
	s.accepted++
	s.mu.Unlock()
	return nil
}

func (s *stallingSink) counts() (calls, accepted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.accepted
}

type recorded struct {
	mu    sync.Mutex
	calls []CallSummary
}

func (r *recorded) record(_ context.Context, summary CallSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, summary)
	return nil
}

func (r *recorded) all() []CallSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CallSummary(nil), r.calls...)
}

type harness struct {
	mgr    *Manager
	dialer *fakeDialer
	sink   *countingSink
	rec    *recorded
}

func testConfig() *config.Config {
	return &config.Config{
		BusinessName:          "Tony's Pizza",
		BusinessGreeting:      "Thanks for calling Tony's Pizza, what can I get you?",
		BusinessLocation:      "Hoboken, NJ",
		TaxRate:               0.08,
		RealtimeModel:         "gpt-4o-realtime-preview",
		RealtimeVoice:         "alloy",
		PreConnectQueueFrames: 10,
		RateLimitRetries:      1,
		RateLimitBackoffMs:    10,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithSink(t, nil)
}

// newHarnessWithSink routes hand-offs to sink instead of the counting sink.
func newHarnessWithSink(t *testing.T, sink order.Sink) *harness {
	t.Helper()
	h := &harness{dialer: &fakeDialer{}, sink: &countingSink{}, rec: &recorded{}}
	if sink == nil {
		sink = h.sink
	}
	h.mgr = NewManager(Options{
		Config:    testConfig(),
		Finalizer: order.NewFinalizer(sink, zap.NewNop()),
		DialAI:    h.dialer.dial,
		Recorder:  RecorderFunc(h.rec.record),
		Logger:    zap.NewNop(),
	})
	t.Cleanup(func() { _ = h.mgr.Shutdown(context.Background()) })
	return h
}

func (h *harness) leg(i int) *fakeAI {
	h.dialer.mu.Lock()
	defer h.dialer.mu.Unlock()
	return h.dialer.legs[i]
}

// connect walks the AI leg through to ready.
func connect(s *Session, reconnect bool) {
	s.HandleConnState(realtime.StateConnecting, reconnect)
	s.HandleConnState(realtime.StateConnected, reconnect)
	s.HandleServerEvent(realtime.ServerEvent{Type: realtime.EventSessionUpdated})
}

func toolCall(s *Session, callID, name, args string) {
	s.HandleServerEvent(realtime.ServerEvent{
		Type:      realtime.EventFunctionCallArgumentsDone,
		CallID:    callID,
		Name:      name,
		Arguments: args,
	})
}

func TestSession_AudioQueuedUntilReady(t *testing.T) {
	h := newHarness(t)
	s, replaced := h.mgr.Create(context.Background(), "CA1", "+15551234567", &fakeCaller{}, menu.Static())
	require.False(t, replaced)
	ai := h.leg(0)

	s.PushCallerAudio("f1")
	s.PushCallerAudio("f2")
	require.Eventually(t, func() bool { return s.relay.Pending() == 2 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, ai.audio())

	connect(s, false)
	require.Eventually(t, func() bool { return s.AIState() == AIReady }, waitFor, 5*time.Millisecond)

	s.PushCallerAudio("f3")
	require.Eventually(t, func() bool { return len(ai.audio()) == 3 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"f1", "f2", "f3"}, ai.audio())

	creates := ai.ofType(realtime.EventResponseCreate)
	require.Len(t, creates, 1, "greeting")
	assert.Contains(t, creates[0].Response.Instructions, "Thanks for calling Tony's Pizza")
}

func TestSession_SessionConfigCarriesMenuAndTools(t *testing.T) {
	h := newHarness(t)
	h.mgr.Create(context.Background(), "CA1", "+15551234567", &fakeCaller{}, menu.Static())

	cfg := h.leg(0).config
	assert.Contains(t, cfg.Instructions, "pepperoni pizza")
	assert.Contains(t, cfg.Instructions, "(555) 123-4567")
	assert.NotEmpty(t, cfg.Tools)
}

func TestSession_ToolCallReturnsOutput(t *testing.T) {
	h := newHarness(t)
	s, _ := h.mgr.Create(context.Background(), "CA1", "+15551234567", &fakeCaller{}, menu.Static())
	ai := h.leg(0)
	connect(s, false)

	toolCall(s, "call_1", "add_item", `{"name":"pepperoni pizza","size":"large","quantity":2}`)
	require.Eventually(t, func() bool { return len(ai.items("function_call_output")) == 1 }, waitFor, 5*time.Millisecond)

	out := ai.items("function_call_output")[0]
	assert.Equal(t, "call_1", out.CallID)
	assert.Contains(t, out.Output, `"success":true`)
	assert.NotContains(t, out.Output, "request_response")
	assert.Len(t, s.Order().Items(), 1)

	// A repeated call id is not executed twice.
	toolCall(s, "call_1", "add_item", `{"name":"pepperoni pizza","size":"large","quantity":2}`)
	toolCall(s, "call_2", "get_order_summary", `{}`)
	require.Eventually(t, func() bool { return len(ai.items("function_call_output")) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 2, s.Order().Items()[0].Quantity)
}

func TestSession_ConfirmTwiceHandsOffOnce(t *testing.T) {
	h := newHarness(t)
	s, _ := h.mgr.Create(context.Background(), "CA1", "+15551234567", &fakeCaller{}, menu.Static())
	connect(s, false)

	toolCall(s, "c1", "add_item", `{"name":"soda","quantity":2}`)
	toolCall(s, "c2", "set_delivery_method", `{"method":"pickup"}`)
	toolCall(s, "c3", "set_customer_name", `{"name":"Dana"}`)
	toolCall(s, "c4", "confirm_order", `{}`)
	toolCall(s, "c5", "confirm_order", `{}`)

	require.Eventually(t, func() bool { return h.sink.Count() == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.Order().Logged() }, waitFor, 5*time.Millisecond)

	require.NoError(t, h.mgr.Destroy(context.Background(), "CA1"))
	assert.Equal(t, 1, h.sink.Count())

	calls := h.rec.all()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].OrderLogged)
	assert.Equal(t, 1, calls[0].Items)
	assert.InDelta(t, 6.46, calls[0].Total, 0.001)
}

func TestSession_DeliveryWaitsForAddressReadBack(t *testing.T) {
	h := newHarness(t)
	s, _ := h.mgr.Create(context.Background(), "CA1", "+15551234567", &fakeCaller{}, menu.Static())
	connect(s, false)

	toolCall(s, "c1", "add_item", `{"name":"cheese pizza","size":"medium"}`)
	toolCall(s, "c2", "set_delivery_method", `{"method":"delivery"}`)
	toolCall(s, "c3", "set_address", `{"address":"42 Elm Street"}`)
	toolCall(s, "c4", "set_customer_name", `{"name":"Dana"}`)
	toolCall(s, "c5", "confirm_order", `{}`)

	require.Eventually(t, func() bool { return s.Order().Confirmed() }, waitFor, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.sink.Count())

	s.HandleServerEvent(realtime.ServerEvent{
		Type:       realtime.EventResponseAudioTranscriptDone,
		Transcript: "Great, that's going to 42 Elm Street. Is that right?",
	})
	require.Eventually(t, func() bool { return h.sink.Count() == 1 }, waitFor, 5*time.Millisecond)
}

func TestSession_TeardownRetriesFailedHandOff(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("sheets unavailable")
	s, _ := h.mgr.Create(context.Background(), "CA1", "", &fakeCaller{}, menu.Static())
	connect(s, false)

	toolCall(s, "c1", "add_item", `{"name":"garlic knots"}`)
	toolCall(s, "c2", "set_delivery_method", `{"method":"pickup"}`)
	toolCall(s, "c3", "set_customer_name", `{"name":"Sam"}`)
	toolCall(s, "c4", "confirm_order", `{}`)
	require.Eventually(t, func() bool { return s.Order().Confirmed() }, waitFor, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, s.Order().Logged())

	h.sink.mu.Lock()
	h.sink.err = nil
	h.sink.mu.Unlock()

	require.NoError(t, h.mgr.Destroy(context.Background(), "CA1"))
	assert.Equal(t, 1, h.sink.Count())
	assert.True(t, h.rec.all()[0].OrderLogged)
}

func TestSession_HangUpDuringHandOffRetriesAtTeardown(t *testing.T) {
	sink := newStallingSink()
	h := newHarnessWithSink(t, sink)
	s, _ := h.mgr.Create(context.Background(), "CA1", "", &fakeCaller{}, menu.Static())
	connect(s, false)

	toolCall(s, "c1", "add_item", `{"name":"garlic knots"}`)
	toolCall(s, "c2", "set_delivery_method", `{"method":"pickup"}`)
	toolCall(s, "c3", "set_customer_name", `{"name":"Sam"}`)
	toolCall(s, "c4", "confirm_order", `{}`)

	select {
	case <-sink.started:
	case <-time.After(waitFor):
		t.Fatal("hand-off never started")
	}
	require.True(t, s.Order().Logged(), "claimed while the hand-off is in flight")

	destroyed := make(chan error, 1)
	go func() { destroyed <- h.mgr.Destroy(context.Background(), "CA1") }()

	time.Sleep(20 * time.Millisecond)
	close(sink.release)

	select {
	case err := <-destroyed:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("teardown did not finish")
	}

	calls, accepted := sink.counts()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, accepted)
	assert.True(t, s.Order().Logged())
	require.Len(t, h.rec.all(), 1)
	assert.True(t, h.rec.all()[0].OrderLogged)
}

func TestSession_BargeIn(t *testing.T) {
	h := newHarness(t)
	caller := &fakeCaller{}
	s, _ := h.mgr.Create(context.Background(), "CA1", "+15551234567", caller, menu.Static())
	ai := h.leg(0)
	connect(s, false)

	s.HandleServerEvent(realtime.ServerEvent{Type: realtime.EventResponseCreated})
	s.HandleServerEvent(realtime.ServerEvent{Type: realtime.EventResponseAudioDelta, Delta: "out1"})
	s.HandleServerEvent(realtime.ServerEvent{Type: realtime.EventSpeechStarted})

	require.Eventually(t, func() bool { return caller.Clears() == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(ai.ofType(realtime.EventResponseCancel)) == 1 }, waitFor, 5*time.Millisecond)
	caller.mu.Lock()
	assert.Equal(t, []string{"out1"}, caller.media)
	caller.mu.Unlock()
}

func TestSession_ReconnectRestoresContext(t *testing.T) {
	h := newHarness(t)
	s, _ := h.mgr.Create(context.Background(), "CA1", "+15551234567", &fakeCaller{}, menu.Static())
	ai := h.leg(0)
	connect(s, false)
	toolCall(s, "c1", "add_item", `{"name":"soda"}`)
	require.Eventually(t, func() bool { return len(s.Order().Items()) == 1 }, waitFor, 5*time.Millisecond)

	s.HandleConnState(realtime.StateDisconnected, false)
	require.Eventually(t, func() bool { return s.AIState() == AIDisconnected }, waitFor, 5*time.Millisecond)

	s.PushCallerAudio("during-outage")
	require.Eventually(t, func() bool { return s.relay.Pending() == 1 }, waitFor, 5*time.Millisecond)

	connect(s, true)
	require.Eventually(t, func() bool { return len(ai.items("message")) == 1 }, waitFor, 5*time.Millisecond)

	msg := ai.items("message")[0]
	assert.Equal(t, "system", msg.Role)
	require.Len(t, msg.Content, 1)
	assert.Contains(t, msg.Content[0].Text, "1 soda")
	assert.Contains(t, msg.Content[0].Text, "do not greet")
	assert.Contains(t, ai.audio(), "during-outage")
	assert.Len(t, ai.ofType(realtime.EventResponseCreate), 1, "no second greeting")

	require.NoError(t, h.mgr.Destroy(context.Background(), "CA1"))
	assert.Equal(t, 1, h.rec.all()[0].Reconnects)
}

func TestManager_CreateReplacesLiveSession(t *testing.T) {
	h := newHarness(t)
	first, _ := h.mgr.Create(context.Background(), "CA1", "+15551234567", &fakeCaller{}, nil)
	second, replaced := h.mgr.Create(context.Background(), "CA1", "+15551234567", &fakeCaller{}, nil)

	assert.True(t, replaced)
	assert.NotSame(t, first, second)
	assert.True(t, h.leg(0).Closed())
	assert.False(t, h.leg(1).Closed())
	assert.Equal(t, 1, h.mgr.Count())

	// Ending the replaced session leaves its successor alone.
	h.mgr.End(context.Background(), first)
	got, ok := h.mgr.Get("CA1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Len(t, h.rec.all(), 1)
}

func TestManager_DestroyIsIdempotent(t *testing.T) {
	h := newHarness(t)
	caller := &fakeCaller{}
	s, _ := h.mgr.Create(context.Background(), "CA1", "+15551234567", caller, nil)

	require.NoError(t, h.mgr.Destroy(context.Background(), "CA1"))
	err := h.mgr.Destroy(context.Background(), "CA1")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeSession))

	h.mgr.End(context.Background(), s)
	assert.Len(t, h.rec.all(), 1)
	assert.True(t, caller.Closed())
	assert.Equal(t, 0, h.mgr.Count())

	select {
	case <-s.Done():
	default:
		t.Fatal("loop still running after destroy")
	}

	// Posting to a closed session does not block.
	s.PushCallerAudio("late")
}

func TestManager_ListAndShutdown(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	tick := 0
	h.mgr.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	h.mgr.Create(context.Background(), "CA2", "+15551234567", &fakeCaller{}, nil)
	h.mgr.Create(context.Background(), "CA1", "anonymous", &fakeCaller{}, nil)

	infos := h.mgr.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "CA2", infos[0].CallID)
	assert.Equal(t, "CA1", infos[1].CallID)
	assert.Equal(t, AIDisconnected.String(), infos[0].AIState)
	assert.Equal(t, order.CallerBlocked, infos[1].CallerID)

	require.NoError(t, h.mgr.Shutdown(context.Background()))
	assert.Equal(t, 0, h.mgr.Count())
	assert.Len(t, h.rec.all(), 2)
}
