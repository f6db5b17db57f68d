package order

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sink accepts a finalized order. Implementations handle their own retries.
type Sink interface {
	Submit(ctx context.Context, r Receipt) error
}

// Outcome is the result of one finalize attempt.
type Outcome int

const (
	// OutcomeNotReady means a precondition is missing.
	OutcomeNotReady Outcome = iota
	// OutcomeAlreadyLogged means an earlier attempt holds the hand-off.
	OutcomeAlreadyLogged
	// OutcomeSubmitted means the sink accepted the order.
	OutcomeSubmitted
	// OutcomeFailed means the sink failed and the order can be retried.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotReady:
		return "not_ready"
	case OutcomeAlreadyLogged:
		return "already_logged"
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Finalizer hands ready orders to a sink at most once.
type Finalizer struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewFinalizer creates a finalizer for sink.
func NewFinalizer(sink Sink, logger *zap.Logger) *Finalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{sink: sink, logger: logger, now: time.Now}
}

// Finalize claims the order and submits it. A failed submission releases
// the claim so a later attempt can retry; sink errors are logged and
// never returned to the conversation.
func (f *Finalizer) Finalize(ctx context.Context, o *Order) (Outcome, []string) {
	receipt, missing, ok := o.claim(f.now())
	if !ok {
		if len(missing) > 0 {
			f.logger.Debug("Order not ready to finalize",
				zap.String("order_id", o.ID),
				zap.Strings("missing", missing),
			)
			return OutcomeNotReady, missing
		}
		return OutcomeAlreadyLogged, nil
	}

	if err := f.sink.Submit(ctx, receipt); err != nil {
		o.release()
		f.logger.Error("Order hand-off failed, will retry on next finalize",
			zap.String("order_id", o.ID),
			zap.String("call_id", o.CallID),
			zap.Error(err),
		)
		return OutcomeFailed, nil
	}

	f.logger.Info("Order handed off",
		zap.String("order_id", receipt.OrderID),
		zap.String("call_id", receipt.CallID),
		zap.Int("items", len(receipt.Items)),
		zap.Float64("total", receipt.Totals.Total),
	)
	return OutcomeSubmitted, nil
}
