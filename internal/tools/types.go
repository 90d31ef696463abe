package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Source identifies where a tool definition came from. Builtin tools ship
// with the bridge; script tools are registered at runtime by a loader.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceScript  Source = "script"
)

// HostContext carries the host-side collaborators a tool handler may need.
// Handlers receive it explicitly instead of reading globals.
type HostContext struct {
	// VaultName is the display name of the vault this bridge serves.
	VaultName string

	// Vault is the host's vault accessor. The concrete vault implementation
	// lives in the host process; the bridge only passes it through.
	Vault any
}

// Handler executes a tool invocation. Arguments have already been decoded
// from the JSON-RPC request. A handler reports tool-level failures in-band
// via CallToolResult.IsError; a returned error means the invocation itself
// could not be carried out and is converted to an in-band error result.
type Handler func(ctx context.Context, args map[string]any, host *HostContext) (*mcp.CallToolResult, error)

// Definition is an immutable tool definition. Created at registration and
// never mutated; removal is by explicit unregistration.
type Definition struct {
	Name        string
	Description string
	InputSchema mcp.ToolInputSchema
	Handler     Handler
}

// Tool converts the definition to its wire representation.
func (d Definition) Tool() mcp.Tool {
	return mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema,
	}
}

// PreconditionState tracks which per-session prerequisites have been
// satisfied. The MCP session implements this; the executor consults and
// updates it around each call.
type PreconditionState interface {
	// PreconditionSatisfied reports whether the named prerequisite has been
	// observed in this session.
	PreconditionSatisfied(name string) bool

	// SatisfyPrecondition records the named prerequisite as observed. Flags
	// are never cleared within a session.
	SatisfyPrecondition(name string)
}
