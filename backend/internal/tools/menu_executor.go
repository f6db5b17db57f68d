package tools

import (
	"context"
	"fmt"
	"strings"
)

func (e *Executor) executeItemDescription(ctx context.Context, execCtx *ExecutionContext, toolCall ToolCall) *ToolResult {
	var args ItemDescriptionArgs
	if !e.decode(execCtx, toolCall, &args) {
		return nil
	}
	if strings.TrimSpace(args.Name) == "" {
		return &ToolResult{Success: false, Error: "name is required", RequestResponse: true}
	}

	item, ok := e.menu.Lookup(args.Name)
	if !ok {
		return &ToolResult{
			Success: false,
			Error:   "not found",
			Data: map[string]interface{}{
				"found":       false,
				"suggestions": e.menu.Suggest(args.Name, 3),
			},
			RequestResponse: true,
		}
	}

	if item.Description == "" {
		return &ToolResult{
			Success: true,
			Message: fmt.Sprintf("There is no description on file for %s. Do not make one up.", item.Name),
			Data: map[string]interface{}{
				"found":           true,
				"name":            item.Name,
				"has_description": false,
			},
			RequestResponse: true,
		}
	}

	return &ToolResult{
		Success: true,
		Data: map[string]interface{}{
			"found":           true,
			"name":            item.Name,
			"has_description": true,
			"description":     item.Description,
		},
		RequestResponse: true,
	}
}
