package adapter

import (
	"context"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "pizza-phone-agent/backend/pkg/errors"
	"pizza-phone-agent/backend/pkg/logger"
)

// ModelChecker verifies that an API key can reach the realtime models
// before the server starts taking calls.
type ModelChecker struct {
	client *openai.Client
	logger *zap.Logger
}

// AccessReport is the result of a model access check.
type AccessReport struct {
	Model     string   `json:"model"`
	Available bool     `json:"available"`
	Realtime  []string `json:"realtime_models"`
	Total     int      `json:"total_models"`
}

// NewModelChecker creates a checker against baseURL (the REST root, e.g.
// https://api.openai.com/v1).
func NewModelChecker(baseURL, apiKey string) *ModelChecker {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &ModelChecker{
		client: openai.NewClientWithConfig(config),
		logger: logger.Get(),
	}
}

// RealtimeModels lists the model ids the key can use for realtime audio.
func (c *ModelChecker) RealtimeModels(ctx context.Context) ([]string, int, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, 0, apperrors.NewBaseError(apperrors.ErrorTypeTransport, "list models", err)
	}

	var realtime []string
	for _, m := range list.Models {
		if strings.Contains(m.ID, "realtime") {
			realtime = append(realtime, m.ID)
		}
	}
	sort.Strings(realtime)
	return realtime, len(list.Models), nil
}

// Check reports whether model is among the realtime models available to
// the key.
func (c *ModelChecker) Check(ctx context.Context, model string) (*AccessReport, error) {
	realtime, total, err := c.RealtimeModels(ctx)
	if err != nil {
		return nil, err
	}

	report := &AccessReport{Model: model, Realtime: realtime, Total: total}
	for _, id := range realtime {
		if id == model {
			report.Available = true
			break
		}
	}

	c.logger.Info("Model access check",
		zap.String("model", model),
		zap.Bool("available", report.Available),
		zap.Int("realtime_models", len(realtime)),
		zap.Int("total_models", total),
	)
	return report, nil
}
