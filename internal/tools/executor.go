package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"notebridge/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// precondition declares that a tool may only run after another tool has
// completed successfully within the same session.
type precondition struct {
	requires string
	message  string
}

// sessionPreconditions maps tool names to their per-session prerequisites.
// edit_note must observe a successful read_note first so an assistant
// cannot blindly overwrite a note it has never seen.
var sessionPreconditions = map[string]precondition{
	"edit_note": {
		requires: "read_note",
		message:  "read_note must be called before edit_note",
	},
}

// Executor dispatches named tool invocations against a registry. Tool-level
// failures are reported in-band via CallToolResult.IsError; the executor
// never returns a transport-level error for them.
type Executor struct {
	registry *Registry
	host     *HostContext
}

// NewExecutor creates an executor bound to a registry and host context.
func NewExecutor(registry *Registry, host *HostContext) *Executor {
	return &Executor{registry: registry, host: host}
}

// Execute runs the named tool with the given arguments. The optional
// precondition state is consulted before dispatch and updated after a
// successful call; passing nil skips precondition handling (the bridge v1
// surface has no sessions).
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, pre PreconditionState) *mcp.CallToolResult {
	def, ok := e.registry.Get(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Error: Tool '%s' not found", name))
	}

	if pre != nil {
		if cond, hasCond := sessionPreconditions[name]; hasCond && !pre.PreconditionSatisfied(cond.requires) {
			return mcp.NewToolResultError(cond.message)
		}
	}

	result := e.invoke(ctx, def, args)
	result = NormalizeResult(result)

	if pre != nil && !result.IsError {
		pre.SatisfyPrecondition(name)
	}
	return result
}

// invoke calls the handler, converting returned errors and panics into
// in-band error results.
func (e *Executor) invoke(ctx context.Context, def Definition, args map[string]any) (result *mcp.CallToolResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Executor", fmt.Errorf("%v", r), "Tool %s panicked", def.Name)
			result = mcp.NewToolResultError(fmt.Sprintf("Error: %v", r))
		}
	}()

	if args == nil {
		args = make(map[string]any)
	}

	res, err := def.Handler(ctx, args, e.host)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error: %v", err))
	}
	if res == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error: tool %s returned no result", def.Name))
	}
	return res
}

// NormalizeResult coerces content items to the known text/image variants.
// An unknown content variant is serialized to a text item carrying its
// JSON form so clients never see a shape they cannot decode.
func NormalizeResult(result *mcp.CallToolResult) *mcp.CallToolResult {
	if result == nil {
		return &mcp.CallToolResult{}
	}

	for i, item := range result.Content {
		switch item.(type) {
		case mcp.TextContent, mcp.ImageContent:
			// Known variants pass through untouched.
		default:
			data, err := json.Marshal(item)
			if err != nil {
				data = []byte(fmt.Sprintf("%v", item))
			}
			result.Content[i] = mcp.TextContent{Type: "text", Text: string(data)}
		}
	}
	return result
}
