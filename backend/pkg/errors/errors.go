package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeTransport represents telephony or AI transport errors
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeValidation represents order validation failures that are spoken back to the caller
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTool represents tool-call dispatch errors
	ErrorTypeTool ErrorType = "tool"
	// ErrorTypeSink represents order hand-off errors
	ErrorTypeSink ErrorType = "sink"
	// ErrorTypeMenu represents menu provider errors
	ErrorTypeMenu ErrorType = "menu"
	// ErrorTypeSession represents session registry errors
	ErrorTypeSession ErrorType = "session"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
	// ErrorTypeStorage represents call log database errors
	ErrorTypeStorage ErrorType = "storage"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// ErrType lets IsErrorType find the category through embedding.
func (e *BaseError) ErrType() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Transport Errors

// ErrTransportNotOpen is returned when a frame is written to a closed leg
var ErrTransportNotOpen = NewBaseError(ErrorTypeTransport, "transport not open", nil)

// ErrTransportClosed is returned when a transport closed unexpectedly
type ErrTransportClosed struct {
	*BaseError
	Leg string // "caller" or "ai"
}

func NewTransportClosed(leg string, err error) *ErrTransportClosed {
	return &ErrTransportClosed{
		BaseError: NewBaseError(ErrorTypeTransport, fmt.Sprintf("%s leg closed", leg), err),
		Leg:       leg,
	}
}

// ErrRateLimited is returned when the AI transport reports a rate limit
type ErrRateLimited struct {
	*BaseError
	RetryAfter time.Duration
}

func NewRateLimited(retryAfter time.Duration, message string) *ErrRateLimited {
	return &ErrRateLimited{
		BaseError:  NewBaseError(ErrorTypeTransport, fmt.Sprintf("rate limited: %s", message), nil),
		RetryAfter: retryAfter,
	}
}

// Validation Errors

// ErrValidation is an order validation failure carrying the prompt to speak
type ErrValidation struct {
	*BaseError
	Field  string
	Prompt string
}

func NewValidation(field, prompt string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s", field), nil),
		Field:     field,
		Prompt:    prompt,
	}
}

// Tool Errors

// ErrToolNotFound is returned when a requested tool is not found
type ErrToolNotFound struct {
	*BaseError
	ToolName string
}

func NewToolNotFound(toolName string) *ErrToolNotFound {
	return &ErrToolNotFound{
		BaseError: NewBaseError(ErrorTypeTool, fmt.Sprintf("tool not found: %s", toolName), nil),
		ToolName:  toolName,
	}
}

// ErrToolInvalidArguments is returned when tool arguments cannot be recovered
type ErrToolInvalidArguments struct {
	*BaseError
	ToolName string
	Raw      string
}

func NewToolInvalidArguments(toolName, raw string, err error) *ErrToolInvalidArguments {
	return &ErrToolInvalidArguments{
		BaseError: NewBaseError(ErrorTypeTool, fmt.Sprintf("invalid arguments for %s", toolName), err),
		ToolName:  toolName,
		Raw:       raw,
	}
}

// Sink Errors

// ErrSinkFailed is returned when an order hand-off fails
type ErrSinkFailed struct {
	*BaseError
	Sink      string
	Retryable bool
}

func NewSinkFailed(sink string, retryable bool, err error) *ErrSinkFailed {
	return &ErrSinkFailed{
		BaseError: NewBaseError(ErrorTypeSink, fmt.Sprintf("order hand-off to %s failed", sink), err),
		Sink:      sink,
		Retryable: retryable,
	}
}

// Menu Errors

// ErrMenuUnavailable is returned when no menu snapshot could be produced
var ErrMenuUnavailable = NewBaseError(ErrorTypeMenu, "menu unavailable", nil)

// ErrMenuFetchFailed is returned when the remote menu source cannot be read
type ErrMenuFetchFailed struct {
	*BaseError
	Source string
}

func NewMenuFetchFailed(source string, err error) *ErrMenuFetchFailed {
	return &ErrMenuFetchFailed{
		BaseError: NewBaseError(ErrorTypeMenu, fmt.Sprintf("failed to fetch menu from %s", source), err),
		Source:    source,
	}
}

// Session Errors

// ErrSessionNotFound is returned when no live session exists for a call
type ErrSessionNotFound struct {
	*BaseError
	CallID string
}

func NewSessionNotFound(callID string) *ErrSessionNotFound {
	return &ErrSessionNotFound{
		BaseError: NewBaseError(ErrorTypeSession, fmt.Sprintf("session not found: %s", callID), nil),
		CallID:    callID,
	}
}

// ErrSessionClosed is returned when events are posted to a finished session
var ErrSessionClosed = NewBaseError(ErrorTypeSession, "session closed", nil)

// Context Errors

// ErrContextTimeout is returned when context times out
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), nil),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Storage Errors

// ErrStorage wraps a call log database failure
type ErrStorage struct {
	*BaseError
	Operation string
}

func NewStorage(operation string, err error) *ErrStorage {
	return &ErrStorage{
		BaseError: NewBaseError(ErrorTypeStorage, fmt.Sprintf("call log %s failed", operation), err),
		Operation: operation,
	}
}

// Helper functions

type typed interface {
	ErrType() ErrorType
}

// IsErrorType checks if an error (or anything it wraps) is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var t typed
	if stderrors.As(err, &t) {
		return t.ErrType() == errType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	var rl *ErrRateLimited
	if stderrors.As(err, &rl) {
		return true
	}
	var sf *ErrSinkFailed
	if stderrors.As(err, &sf) {
		return sf.Retryable
	}
	var tc *ErrTransportClosed
	if stderrors.As(err, &tc) {
		return true
	}
	// Menu fetches are retried on the next cache refresh
	return IsErrorType(err, ErrorTypeMenu)
}
