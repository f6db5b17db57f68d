package calllog

import (
	"context"

	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/session"
)

// FromSummary turns a finished session into a call log row.
func FromSummary(clientSlug string, s session.CallSummary) Call {
	duration := int(s.Duration.Seconds())
	return Call{
		CallSID:     s.CallID,
		ClientSlug:  clientSlug,
		CallDate:    s.StartedAt.UTC().Format(dateLayout),
		DurationSec: duration,
		MinutesUsed: MinutesFor(duration),
		Answered:    true,
		AIHandled:   true,
		OrderID:     s.OrderID,
		OrderLogged: s.OrderLogged,
		OrderTotal:  s.Total,
	}
}

// Recorder logs every finished session to store.
func Recorder(store Store, clientSlug string, log *zap.Logger) session.RecorderFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, s session.CallSummary) error {
		c := FromSummary(clientSlug, s)
		inserted, err := store.LogCall(ctx, c)
		if err != nil {
			return err
		}
		if !inserted {
			log.Debug("Call already logged", zap.String("call_sid", c.CallSID))
		}
		return nil
	}
}
