package tools

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/order"
)

// ============================================================================
// Customer Tool Implementations
// ============================================================================

func (e *Executor) executeSetDeliveryMethod(ctx context.Context, execCtx *ExecutionContext, toolCall ToolCall) *ToolResult {
	var args DeliveryMethodArgs
	if !e.decode(execCtx, toolCall, &args) {
		return nil
	}

	// Numbers here are usually a misheard address.
	if strings.IndexFunc(args.Method, unicode.IsDigit) >= 0 {
		e.logger.Warn("Rejecting numeric delivery method",
			zap.String("call_id", execCtx.CallID),
			zap.String("method", args.Method),
		)
		return ignored("delivery method must be pickup or delivery")
	}

	var method order.DeliveryMethod
	switch normalizeWord(args.Method) {
	case "pickup":
		method = order.DeliveryPickup
	case "delivery":
		method = order.DeliveryDelivery
	default:
		e.logger.Debug("Ignoring delivery method",
			zap.String("call_id", execCtx.CallID),
			zap.String("method", args.Method),
		)
		return ignored("delivery method must be pickup or delivery")
	}

	execCtx.Order.SetDeliveryMethod(method)
	result := &ToolResult{
		Success:         true,
		Message:         fmt.Sprintf("Order is for %s.", method),
		Data:            map[string]interface{}{"delivery_method": method, "missing": execCtx.Order.Missing()},
		RequestResponse: true,
		Critical:        true,
	}
	if method == order.DeliveryDelivery {
		if address, _ := execCtx.Order.Address(); address == "" {
			result.Prompt = "Ask for the delivery address."
		}
	}
	return result
}

func (e *Executor) executeSetAddress(ctx context.Context, execCtx *ExecutionContext, toolCall ToolCall) *ToolResult {
	var args AddressArgs
	if !e.decode(execCtx, toolCall, &args) {
		return nil
	}
	address := strings.Join(strings.Fields(args.Address), " ")
	if address == "" {
		return ignored("address is empty")
	}

	switched := execCtx.Order.SetAddress(address)
	readBack := fmt.Sprintf("Read the address back to the caller exactly: %s.", address)
	if switched {
		readBack = "The order was for pickup and is now for delivery. Tell the caller, then " +
			strings.ToLower(readBack[:1]) + readBack[1:]
	}

	e.logger.Info("Delivery address set",
		zap.String("call_id", execCtx.CallID),
		zap.Bool("switched_from_pickup", switched),
	)
	return &ToolResult{
		Success:         true,
		Message:         "Address saved.",
		Prompt:          readBack,
		Data:            map[string]interface{}{"address": address, "delivery_method": string(order.DeliveryDelivery)},
		RequestResponse: true,
		Critical:        true,
	}
}

func (e *Executor) executeSetCustomerName(ctx context.Context, execCtx *ExecutionContext, toolCall ToolCall) *ToolResult {
	var args CustomerNameArgs
	if !e.decode(execCtx, toolCall, &args) {
		return nil
	}
	name := strings.Join(strings.Fields(args.Name), " ")
	if name == "" {
		return &ToolResult{
			Success:         false,
			Error:           "name is required",
			Prompt:          "Ask the caller for a name for the order.",
			RequestResponse: true,
		}
	}

	execCtx.Order.SetCustomerName(name)
	return &ToolResult{
		Success:         true,
		Message:         fmt.Sprintf("Name set to %s.", name),
		Data:            map[string]interface{}{"customer_name": name, "missing": execCtx.Order.Missing()},
		RequestResponse: true,
		Critical:        true,
	}
}

func (e *Executor) executeSetCustomerPhone(ctx context.Context, execCtx *ExecutionContext, toolCall ToolCall) *ToolResult {
	var args CustomerPhoneArgs
	if !e.decode(execCtx, toolCall, &args) {
		return nil
	}

	phone, ok := execCtx.Order.SetCustomerPhone(args.Phone)
	if !ok {
		e.logger.Debug("Ignoring malformed phone number", zap.String("call_id", execCtx.CallID))
		return &ToolResult{
			Success: false,
			Error:   "phone number must have 10 digits",
			Data:    map[string]interface{}{"customer_phone": execCtx.Order.CustomerPhone()},
		}
	}
	return &ToolResult{
		Success:         true,
		Message:         fmt.Sprintf("Callback number set to %s.", order.FormatPhone(phone)),
		Data:            map[string]interface{}{"customer_phone": phone},
		RequestResponse: true,
	}
}

func (e *Executor) executeSetPaymentMethod(ctx context.Context, execCtx *ExecutionContext, toolCall ToolCall) *ToolResult {
	var args PaymentMethodArgs
	if !e.decode(execCtx, toolCall, &args) {
		return nil
	}

	var method order.PaymentMethod
	switch strings.ToLower(strings.TrimSpace(args.Method)) {
	case "cash":
		method = order.PaymentCash
	case "card":
		method = order.PaymentCard
	default:
		return ignored("payment method must be cash or card")
	}

	execCtx.Order.SetPaymentMethod(method)
	return &ToolResult{
		Success:         true,
		Message:         fmt.Sprintf("Paying by %s.", method),
		Data:            map[string]interface{}{"payment_method": method},
		RequestResponse: true,
	}
}

// normalizeWord lowercases s and drops spaces and hyphens, so "Pick-Up"
// and " pick up " both read "pickup".
func normalizeWord(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
