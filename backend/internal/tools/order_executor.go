package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/order"
)

// ============================================================================
// Order Tool Implementations
// ============================================================================

func (e *Executor) executeAddItem(ctx context.Context, execCtx *ExecutionContext, toolCall ToolCall) *ToolResult {
	var args AddItemArgs
	if !e.decode(execCtx, toolCall, &args) {
		return nil
	}

	item, ok := e.menu.Lookup(args.Name)
	if !ok {
		suggestions := e.menu.Suggest(args.Name, 3)
		e.logger.Warn("Dropping item that is not on the menu",
			zap.String("call_id", execCtx.CallID),
			zap.String("item", args.Name),
			zap.Strings("suggestions", suggestions),
		)
		return &ToolResult{
			Success: false,
			Error:   fmt.Sprintf("%q is not on the menu", args.Name),
			Data:    map[string]interface{}{"suggestions": suggestions},
		}
	}

	quantity := int(args.Quantity)
	if quantity < 1 {
		quantity = 1
	}

	if item.IsWings() {
		return e.addWings(execCtx, item, args, quantity)
	}

	size := ""
	if item.NeedsSize() {
		if strings.TrimSpace(args.Size) == "" {
			return prompt("size required",
				"Ask what size %s they want: %s.", item.Name, joinOr(item.Sizes))
		}
		normalized, ok := item.NormalizeSize(args.Size)
		if !ok {
			return prompt("unknown size",
				"The %s does not come in %s. Ask them to pick %s.", item.Name, args.Size, joinOr(item.Sizes))
		}
		size = normalized
	}

	price, ok := item.Price(size)
	if !ok || price <= 0 {
		return e.unpriced(execCtx, item.Name)
	}

	return e.addLine(execCtx, order.Item{
		Name:      item.Name,
		Category:  item.Category,
		Size:      size,
		Quantity:  quantity,
		UnitPrice: price,
		Modifiers: args.Modifiers,
	})
}

// addWings applies the wing rules: an enumerated piece count first, then a
// flavor, before anything is added.
func (e *Executor) addWings(execCtx *ExecutionContext, item menu.MenuItem, args AddItemArgs, quantity int) *ToolResult {
	wings := e.menu.Wings
	pieces := int(args.PieceCount)

	// "ten wings" sometimes arrives as quantity 10
	if pieces == 0 && wings.ValidPieceCount(quantity) {
		pieces = quantity
		quantity = 1
	}
	if pieces == 0 {
		return prompt("piece count required",
			"Ask how many pieces they want. Wings come in %s pieces.", wings.PieceCountList())
	}
	if !wings.ValidPieceCount(pieces) {
		return prompt("invalid piece count",
			"Wings don't come in %d pieces. Tell the caller they come in %s pieces and ask which they want.",
			pieces, wings.PieceCountList())
	}
	if quantity == pieces {
		quantity = 1
	}

	if strings.TrimSpace(args.Flavor) == "" {
		return prompt("flavor required",
			"Ask what flavor they want for the %d piece wings: %s.", pieces, joinOr(wings.Flavors))
	}
	flavor, ok := wings.MatchFlavor(args.Flavor)
	if !ok {
		return prompt("unknown flavor",
			"We don't have %s wings. Flavors are %s.", args.Flavor, joinOr(wings.Flavors))
	}

	dressing := ""
	if strings.TrimSpace(args.Dressing) != "" {
		if d, ok := wings.MatchDressing(args.Dressing); ok {
			dressing = d
		} else {
			e.logger.Debug("Ignoring unknown dressing",
				zap.String("call_id", execCtx.CallID),
				zap.String("dressing", args.Dressing),
			)
		}
	}

	price, ok := item.PriceForPieces(pieces)
	if !ok || price <= 0 {
		return e.unpriced(execCtx, item.Name)
	}

	return e.addLine(execCtx, order.Item{
		Name:       item.Name,
		Category:   item.Category,
		Quantity:   quantity,
		UnitPrice:  price,
		PieceCount: pieces,
		Flavor:     flavor,
		Dressing:   dressing,
		Modifiers:  args.Modifiers,
	})
}

func (e *Executor) addLine(execCtx *ExecutionContext, it order.Item) *ToolResult {
	line, merged := execCtx.Order.AddItem(it)
	totals := execCtx.Order.Totals()

	e.logger.Info("Item added",
		zap.String("call_id", execCtx.CallID),
		zap.String("item", line.Name),
		zap.Int("quantity", line.Quantity),
		zap.Bool("merged", merged),
		zap.Float64("subtotal", totals.Subtotal),
	)

	return &ToolResult{
		Success: true,
		Message: fmt.Sprintf("Added %s.", it.Describe()),
		Data: map[string]interface{}{
			"line":   line,
			"merged": merged,
			"totals": totals,
		},
		RequestResponse: true,
	}
}

// unpriced rejects items without a positive price, on every path.
func (e *Executor) unpriced(execCtx *ExecutionContext, name string) *ToolResult {
	e.logger.Warn("Rejecting item without a price",
		zap.String("call_id", execCtx.CallID),
		zap.String("item", name),
	)
	return prompt("item has no price",
		"Tell the caller the %s is not available right now and ask if they want something else.", name)
}

func (e *Executor) executeRemoveItem(ctx context.Context, execCtx *ExecutionContext, toolCall ToolCall) *ToolResult {
	var args RemoveItemArgs
	if !e.decode(execCtx, toolCall, &args) {
		return nil
	}
	if strings.TrimSpace(args.Name) == "" {
		return ignored("name is required")
	}

	name, size := args.Name, args.Size
	if item, ok := e.menu.Lookup(args.Name); ok {
		name = item.Name
		if size != "" {
			if normalized, ok := item.NormalizeSize(size); ok {
				size = normalized
			}
		}
	}

	removed, ok := execCtx.Order.RemoveItem(name, size, int(args.Quantity))
	if !ok {
		return prompt("item not in order",
			"There is no %s in the order. Tell the caller what is in the order.", args.Name)
	}

	totals := execCtx.Order.Totals()
	e.logger.Info("Item removed",
		zap.String("call_id", execCtx.CallID),
		zap.String("item", removed.Name),
		zap.Int("quantity", removed.Quantity),
	)
	return &ToolResult{
		Success: true,
		Message: fmt.Sprintf("Removed %s.", removed.Describe()),
		Data: map[string]interface{}{
			"removed": removed,
			"totals":  totals,
		},
		RequestResponse: true,
	}
}

func (e *Executor) executeOrderSummary(ctx context.Context, execCtx *ExecutionContext) *ToolResult {
	o := execCtx.Order
	return &ToolResult{
		Success: true,
		Message: o.Summary(),
		Data: map[string]interface{}{
			"items":   o.Items(),
			"totals":  o.Totals(),
			"missing": o.Missing(),
		},
		RequestResponse: true,
	}
}

func (e *Executor) executeConfirmOrder(ctx context.Context, execCtx *ExecutionContext) *ToolResult {
	o := execCtx.Order
	if !o.HasPricedItem() {
		return prompt("order is empty",
			"The order has no items yet. Ask the caller what they would like.")
	}

	o.Confirm()
	missing := o.Missing()
	result := &ToolResult{
		Success: true,
		Data: map[string]interface{}{
			"order_id": o.ID,
			"totals":   o.Totals(),
			"missing":  missing,
		},
		RequestResponse: true,
		Finalize:        true,
	}
	if len(missing) > 0 {
		result.Message = "Order confirmed."
		result.Prompt = fmt.Sprintf("Before the order can be sent we still need: %s. Ask for it.",
			strings.ReplaceAll(strings.Join(missing, ", "), "_", " "))
	} else {
		result.Message = "Order confirmed. Thank the caller and tell them the total."
	}

	e.logger.Info("Order confirmed",
		zap.String("call_id", execCtx.CallID),
		zap.String("order_id", o.ID),
		zap.Strings("missing", missing),
	)
	return result
}

func joinOr(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " or " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", or " + parts[len(parts)-1]
}
