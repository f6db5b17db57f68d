// Package sink delivers finalized orders to the shop's systems: the
// spreadsheet order log, a point-of-sale webhook, the customer graph and
// the kitchen channel.
package sink

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pizza-phone-agent/backend/internal/order"
	apperrors "pizza-phone-agent/backend/pkg/errors"
)

// Named is an order sink with a stable name for logs and bookkeeping.
type Named interface {
	order.Sink
	Name() string
}

type target struct {
	sink     Named
	required bool
}

// Fanout submits each order to every registered sink in parallel. A
// failed required sink fails the submission; on the retry only the
// sinks that have not yet accepted the order are called again. Optional
// sink failures are logged and dropped.
type Fanout struct {
	targets []target
	logger  *zap.Logger

	mu        sync.Mutex
	delivered map[string]map[string]bool // order id -> sink names
}

// NewFanout creates an empty fan-out.
func NewFanout(logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{logger: logger, delivered: make(map[string]map[string]bool)}
}

// Add registers a sink.
func (f *Fanout) Add(s Named, required bool) *Fanout {
	f.targets = append(f.targets, target{sink: s, required: required})
	return f
}

// Names lists the registered sinks.
func (f *Fanout) Names() []string {
	names := make([]string, 0, len(f.targets))
	for _, t := range f.targets {
		names = append(names, t.sink.Name())
	}
	return names
}

// Submit implements order.Sink.
func (f *Fanout) Submit(ctx context.Context, r order.Receipt) error {
	var (
		mu     sync.Mutex
		failed []string
		errs   []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range f.targets {
		t := t
		if f.wasDelivered(r.OrderID, t.sink.Name()) {
			continue
		}
		g.Go(func() error {
			if err := t.sink.Submit(gctx, r); err != nil {
				if !t.required {
					f.logger.Warn("Optional order sink failed",
						zap.String("sink", t.sink.Name()),
						zap.String("order_id", r.OrderID),
						zap.Error(err),
					)
					f.markDelivered(r.OrderID, t.sink.Name())
					return nil
				}
				mu.Lock()
				failed = append(failed, t.sink.Name())
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			f.markDelivered(r.OrderID, t.sink.Name())
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		return apperrors.NewSinkFailed(strings.Join(failed, ","), apperrors.IsRetryable(joined), joined)
	}

	f.mu.Lock()
	delete(f.delivered, r.OrderID)
	f.mu.Unlock()
	return nil
}

func (f *Fanout) wasDelivered(orderID, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered[orderID][name]
}

func (f *Fanout) markDelivered(orderID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delivered[orderID] == nil {
		f.delivered[orderID] = make(map[string]bool)
	}
	f.delivered[orderID][name] = true
}

// LogSink only logs orders. It stands in when no real sink is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Name implements Named.
func (l *LogSink) Name() string { return "log" }

// Submit implements order.Sink.
func (l *LogSink) Submit(_ context.Context, r order.Receipt) error {
	l.logger.Info("Order received",
		zap.String("order_id", r.OrderID),
		zap.String("customer", r.CustomerName),
		zap.String("method", string(r.DeliveryMethod)),
		zap.String("items", ItemDetails(r.Items)),
		zap.Float64("total", r.Totals.Total),
	)
	return nil
}
