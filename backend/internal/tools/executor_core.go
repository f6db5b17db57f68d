package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/order"
	apperrors "pizza-phone-agent/backend/pkg/errors"
	"pizza-phone-agent/backend/pkg/logger"
)

// ExecutionContext holds context for tool execution
type ExecutionContext struct {
	CallID   string
	CallerID string
	Order    *order.Order
}

// ToolCall is one function call emitted by the model.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments string
}

// ToolResult represents the result of a tool execution. The exported
// flags tell the session what to do next and are not sent to the model.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	// Prompt is what the agent should ask the caller next.
	Prompt string `json:"prompt,omitempty"`

	RequestResponse bool `json:"-"`
	Critical        bool `json:"-"`
	Finalize        bool `json:"-"`
}

// Output renders the result as a function-call output.
func (r *ToolResult) Output() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"result could not be encoded"}`
	}
	return string(b)
}

// Executor handles tool execution for one call. Each call id is
// processed at most once.
type Executor struct {
	menu   *menu.Menu
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewExecutor creates a new tool executor over m.
func NewExecutor(m *menu.Menu, log *zap.Logger) *Executor {
	if m == nil {
		m = menu.Static()
	}
	if log == nil {
		log = logger.Get()
	}
	return &Executor{
		menu:   m,
		logger: log,
		seen:   make(map[string]struct{}),
	}
}

// Menu returns the menu the executor resolves items against.
func (e *Executor) Menu() *menu.Menu {
	return e.menu
}

// Execute runs a tool call and returns the result. A nil result means
// the call was dropped: a repeated call id, or arguments nothing could be
// salvaged from. A panic inside a tool degrades to a failed result with
// no mutation.
func (e *Executor) Execute(ctx context.Context, execCtx *ExecutionContext, toolCall ToolCall) (result *ToolResult) {
	if !e.markSeen(toolCall.CallID) {
		e.logger.Debug("Ignoring repeated tool call",
			zap.String("tool", toolCall.Name),
			zap.String("tool_call_id", toolCall.CallID),
		)
		return nil
	}

	e.logger.Debug("Executing tool",
		zap.String("tool", toolCall.Name),
		zap.String("call_id", execCtx.CallID),
		zap.String("tool_call_id", toolCall.CallID),
	)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Tool panicked, order left unchanged",
				zap.String("tool", toolCall.Name),
				zap.String("call_id", execCtx.CallID),
				zap.Any("panic", r),
			)
			result = &ToolResult{Success: false, Error: "something went wrong, nothing was changed"}
		}
	}()

	switch toolCall.Name {
	// Order Tools
	case ToolAddItem:
		return e.executeAddItem(ctx, execCtx, toolCall)
	case ToolRemoveItem:
		return e.executeRemoveItem(ctx, execCtx, toolCall)
	case ToolGetOrderSummary:
		return e.executeOrderSummary(ctx, execCtx)
	case ToolConfirmOrder:
		return e.executeConfirmOrder(ctx, execCtx)

	// Customer Tools
	case ToolSetDeliveryMethod:
		return e.executeSetDeliveryMethod(ctx, execCtx, toolCall)
	case ToolSetAddress:
		return e.executeSetAddress(ctx, execCtx, toolCall)
	case ToolSetCustomerName:
		return e.executeSetCustomerName(ctx, execCtx, toolCall)
	case ToolSetCustomerPhone:
		return e.executeSetCustomerPhone(ctx, execCtx, toolCall)
	case ToolSetPaymentMethod:
		return e.executeSetPaymentMethod(ctx, execCtx, toolCall)

	// Menu Tools
	case ToolGetItemDescription:
		return e.executeItemDescription(ctx, execCtx, toolCall)

	default:
		err := apperrors.NewToolNotFound(toolCall.Name)
		e.logger.Warn("Unknown tool", zap.String("call_id", execCtx.CallID), zap.Error(err))
		return &ToolResult{Success: false, Error: err.Error()}
	}
}

// markSeen records id and reports whether it was new. Calls without an id
// are always processed.
func (e *Executor) markSeen(id string) bool {
	if id == "" {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.seen[id]; ok {
		return false
	}
	e.seen[id] = struct{}{}
	return true
}

// decode parses the call's arguments into dst. It returns false when the
// call must be dropped.
func (e *Executor) decode(execCtx *ExecutionContext, toolCall ToolCall, dst interface{}) bool {
	salvaged, err := decodeArguments(toolCall.Arguments, dst)
	if err != nil {
		e.logger.Warn("Dropping tool call with unreadable arguments",
			zap.String("call_id", execCtx.CallID),
			zap.Error(apperrors.NewToolInvalidArguments(toolCall.Name, toolCall.Arguments, err)),
		)
		return false
	}
	if salvaged {
		e.logger.Info("Recovered fields from malformed tool arguments",
			zap.String("tool", toolCall.Name),
			zap.String("call_id", execCtx.CallID),
			zap.String("arguments", toolCall.Arguments),
		)
	}
	return true
}

// prompt builds a validation result: nothing changed, the agent asks the
// caller for what is missing.
func prompt(errMsg, format string, args ...interface{}) *ToolResult {
	return &ToolResult{
		Success:         false,
		Error:           errMsg,
		Prompt:          fmt.Sprintf(format, args...),
		RequestResponse: true,
	}
}

// ignored builds a result for a value that was rejected without a follow-up.
func ignored(errMsg string) *ToolResult {
	return &ToolResult{Success: false, Error: errMsg}
}
