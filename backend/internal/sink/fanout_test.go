package sink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizza-phone-agent/backend/internal/order"
	apperrors "pizza-phone-agent/backend/pkg/errors"
)

type stubSink struct {
	name string

	mu    sync.Mutex
	calls int
	fail  []error // consumed one per call
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Submit(context.Context, order.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.fail) > 0 {
		err := s.fail[0]
		s.fail = s.fail[1:]
		return err
	}
	return nil
}

func (s *stubSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestFanout_RetriesOnlyFailedSinks(t *testing.T) {
	sheets := &stubSink{name: "sheets", fail: []error{apperrors.NewSinkFailed("sheets", true, errors.New("503"))}}
	pos := &stubSink{name: "pos"}
	f := NewFanout(nil).Add(sheets, true).Add(pos, true)
	r := order.Receipt{OrderID: "o1"}

	err := f.Submit(context.Background(), r)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeSink))
	assert.True(t, apperrors.IsRetryable(err))

	require.NoError(t, f.Submit(context.Background(), r))
	assert.Equal(t, 2, sheets.Calls())
	assert.Equal(t, 1, pos.Calls(), "pos already accepted the order")
}

func TestFanout_OptionalFailuresAreDropped(t *testing.T) {
	graph := &stubSink{name: "graph", fail: []error{errors.New("neo4j down")}}
	sheets := &stubSink{name: "sheets"}
	f := NewFanout(nil).Add(sheets, true).Add(graph, false)

	require.NoError(t, f.Submit(context.Background(), order.Receipt{OrderID: "o1"}))
	assert.Equal(t, 1, graph.Calls())
	assert.Equal(t, []string{"sheets", "graph"}, f.Names())
}

func TestFanout_ForgetsDeliveredOrders(t *testing.T) {
	sheets := &stubSink{name: "sheets"}
	f := NewFanout(nil).Add(sheets, true)

	require.NoError(t, f.Submit(context.Background(), order.Receipt{OrderID: "o1"}))
	assert.Empty(t, f.delivered)
}

func TestFanout_PermanentFailureIsNotRetryable(t *testing.T) {
	pos := &stubSink{name: "pos", fail: []error{apperrors.NewSinkFailed("pos", false, errors.New("400"))}}
	f := NewFanout(nil).Add(pos, true)

	err := f.Submit(context.Background(), order.Receipt{OrderID: "o1"})
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
}
