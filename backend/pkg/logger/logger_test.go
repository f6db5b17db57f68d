package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestForCall(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	ForCall(zap.New(core), "CA1", "5551234567").Info("hello")
	ForCall(zap.New(core), "CA2", "").Info("no caller")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, map[string]interface{}{"call_id": "CA1", "caller_id": "5551234567"}, entries[0].ContextMap())
	assert.Equal(t, map[string]interface{}{"call_id": "CA2"}, entries[1].ContextMap())
}

func TestInit(t *testing.T) {
	defer func() { Logger = nil }()

	assert.NoError(t, Init("production", "pizza-phone-agent"))
	assert.NotNil(t, Logger)
	assert.Same(t, Logger, Get())
}
