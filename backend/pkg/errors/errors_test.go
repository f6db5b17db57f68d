package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsErrorType_Wrapped(t *testing.T) {
	err := fmt.Errorf("hand-off: %w", NewSinkFailed("sheets", true, fmt.Errorf("502")))

	assert.True(t, IsErrorType(err, ErrorTypeSink))
	assert.False(t, IsErrorType(err, ErrorTypeMenu))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", NewRateLimited(time.Second, "slow down"), true},
		{"retryable sink", NewSinkFailed("sheets", true, nil), true},
		{"permanent sink", NewSinkFailed("sheets", false, nil), false},
		{"transport closed", NewTransportClosed("ai", nil), true},
		{"timeout", NewContextTimeout("call setup", 3*time.Second), false},
		{"validation", NewValidation("size", "What size?"), false},
		{"menu", NewMenuFetchFailed("sheet", nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestBaseError_Message(t *testing.T) {
	err := NewToolNotFound("order_pizza")
	assert.Equal(t, "[tool] tool not found: order_pizza", err.Error())

	wrapped := NewTransportClosed("ai", fmt.Errorf("EOF"))
	assert.Equal(t, "[transport] ai leg closed: EOF", wrapped.Error())
}
