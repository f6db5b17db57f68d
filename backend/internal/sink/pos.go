package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/order"
	apperrors "pizza-phone-agent/backend/pkg/errors"
)

const posSinkName = "pos"

// POSTicket is the body posted to the point-of-sale webhook.
type POSTicket struct {
	Source         string       `json:"source"`
	OrderID        string       `json:"order_id"`
	CallID         string       `json:"call_id"`
	CustomerName   string       `json:"customer_name"`
	CustomerPhone  string       `json:"customer_phone"`
	DeliveryMethod string       `json:"delivery_method"`
	Address        string       `json:"address,omitempty"`
	PaymentMethod  string       `json:"payment_method,omitempty"`
	Items          []order.Item `json:"items"`
	Subtotal       float64      `json:"subtotal"`
	Tax            float64      `json:"tax"`
	Total          float64      `json:"total"`
	ReadyAt        time.Time    `json:"ready_at"`
}

// POSSink posts orders to a point-of-sale webhook. The order id is sent
// as the idempotency key so retried deliveries create one ticket.
type POSSink struct {
	url     string
	apiKey  string
	client  *http.Client
	retries uint64
	backoff time.Duration
	logger  *zap.Logger
}

// NewPOSSink creates a webhook sink. client may be nil.
func NewPOSSink(url, apiKey string, client *http.Client, logger *zap.Logger) *POSSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &POSSink{
		url:     url,
		apiKey:  apiKey,
		client:  client,
		retries: 3,
		backoff: 500 * time.Millisecond,
		logger:  logger,
	}
}

// Name implements Named.
func (p *POSSink) Name() string { return posSinkName }

// Submit posts the ticket, retrying 429 and 5xx responses.
func (p *POSSink) Submit(ctx context.Context, r order.Receipt) error {
	body, err := json.Marshal(NewPOSTicket(r))
	if err != nil {
		return apperrors.NewSinkFailed(posSinkName, false, err)
	}

	rejected := false
	backoff := retry.WithMaxRetries(p.retries, retry.NewExponential(p.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", r.OrderID)
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			p.logger.Warn("POS webhook failed, retrying",
				zap.String("order_id", r.OrderID),
				zap.Int("status", resp.StatusCode),
			)
			return retry.RetryableError(fmt.Errorf("pos webhook returned %d", resp.StatusCode))
		default:
			rejected = true
			return fmt.Errorf("pos webhook rejected order: %d", resp.StatusCode)
		}
	})
	if err != nil {
		return apperrors.NewSinkFailed(posSinkName, !rejected, err)
	}
	p.logger.Info("Order posted to POS", zap.String("order_id", r.OrderID))
	return nil
}

// NewPOSTicket flattens a receipt for the webhook.
func NewPOSTicket(r order.Receipt) POSTicket {
	return POSTicket{
		Source:         "phone",
		OrderID:        r.OrderID,
		CallID:         r.CallID,
		CustomerName:   r.CustomerName,
		CustomerPhone:  r.CustomerPhone,
		DeliveryMethod: string(r.DeliveryMethod),
		Address:        r.Address,
		PaymentMethod:  string(r.PaymentMethod),
		Items:          r.Items,
		Subtotal:       r.Totals.Subtotal,
		Tax:            r.Totals.Tax,
		Total:          r.Totals.Total,
		ReadyAt:        ReadyAt(r),
	}
}
