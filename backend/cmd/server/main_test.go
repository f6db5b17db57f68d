package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/calllog"
	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/pkg/config"
	apperrors "pizza-phone-agent/backend/pkg/errors"
)

func TestBuildSinks_LogOnlyWhenNothingConfigured(t *testing.T) {
	set, err := buildSinks(context.Background(), &config.Config{}, zap.NewNop())
	require.NoError(t, err)
	defer set.Close()

	assert.Equal(t, []string{"log"}, set.Fanout.Names())
	assert.Nil(t, set.Graph)
}

func TestBuildSinks_POSAndKitchen(t *testing.T) {
	cfg := &config.Config{
		POSWebhookURL:          "http://pos.local/orders",
		DiscordBotToken:        "token",
		DiscordOrdersChannelID: "123",
	}
	set, err := buildSinks(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer set.Close()

	assert.Equal(t, []string{"pos", "discord"}, set.Fanout.Names())
}

func TestBuildSinks_SheetsNeedCredentials(t *testing.T) {
	_, err := buildSinks(context.Background(), &config.Config{GoogleSheetsID: "sheet"}, zap.NewNop())
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
}

func TestBuildMenuProvider_StaticWithoutSheet(t *testing.T) {
	p := buildMenuProvider(context.Background(), &config.Config{}, zap.NewNop())
	_, ok := p.(*menu.StaticProvider)
	assert.True(t, ok)
}

func TestBuildCallLog_InMemoryWithoutDatabase(t *testing.T) {
	store, closeFn := buildCallLog(context.Background(), &config.Config{}, zap.NewNop())
	defer closeFn()
	_, ok := store.(*calllog.MemoryStore)
	assert.True(t, ok)
}
