package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePreconditions is a minimal PreconditionState for tests.
type fakePreconditions struct {
	satisfied map[string]bool
}

func newFakePreconditions() *fakePreconditions {
	return &fakePreconditions{satisfied: make(map[string]bool)}
}

func (f *fakePreconditions) PreconditionSatisfied(name string) bool { return f.satisfied[name] }
func (f *fakePreconditions) SatisfyPrecondition(name string)        { f.satisfied[name] = true }

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func newTestExecutor(t *testing.T, defs ...Definition) *Executor {
	t.Helper()
	r := NewRegistry()
	for _, def := range defs {
		require.NoError(t, r.Register(def, SourceBuiltin))
	}
	return NewExecutor(r, &HostContext{VaultName: "test-vault"})
}

func TestExecutor_ToolNotFound(t *testing.T) {
	e := newTestExecutor(t)

	result := e.Execute(context.Background(), "missing_tool", nil, nil)
	assert.True(t, result.IsError)
	assert.Equal(t, "Error: Tool 'missing_tool' not found", textOf(t, result))
}

func TestExecutor_HandlerErrorBecomesInBandResult(t *testing.T) {
	def := Definition{
		Name: "broken",
		Handler: func(ctx context.Context, args map[string]any, host *HostContext) (*mcp.CallToolResult, error) {
			return nil, errors.New("vault unavailable")
		},
	}
	e := newTestExecutor(t, def)

	result := e.Execute(context.Background(), "broken", nil, nil)
	assert.True(t, result.IsError)
	assert.Equal(t, "Error: vault unavailable", textOf(t, result))
}

func TestExecutor_HandlerPanicBecomesInBandResult(t *testing.T) {
	def := Definition{
		Name: "panicky",
		Handler: func(ctx context.Context, args map[string]any, host *HostContext) (*mcp.CallToolResult, error) {
			panic("nil note")
		},
	}
	e := newTestExecutor(t, def)

	result := e.Execute(context.Background(), "panicky", nil, nil)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "Error: nil note")
}

func TestExecutor_HostContextPassedToHandler(t *testing.T) {
	def := Definition{
		Name: "who_am_i",
		Handler: func(ctx context.Context, args map[string]any, host *HostContext) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(host.VaultName), nil
		},
	}
	e := newTestExecutor(t, def)

	result := e.Execute(context.Background(), "who_am_i", nil, nil)
	assert.False(t, result.IsError)
	assert.Equal(t, "test-vault", textOf(t, result))
}

func editAndReadDefs() []Definition {
	read := Definition{
		Name: "read_note",
		Handler: func(ctx context.Context, args map[string]any, host *HostContext) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("note body"), nil
		},
	}
	edit := Definition{
		Name: "edit_note",
		Handler: func(ctx context.Context, args map[string]any, host *HostContext) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("edited"), nil
		},
	}
	return []Definition{read, edit}
}

func TestExecutor_EditNoteRequiresReadNote(t *testing.T) {
	e := newTestExecutor(t, editAndReadDefs()...)
	pre := newFakePreconditions()

	result := e.Execute(context.Background(), "edit_note", nil, pre)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "read_note must be called before edit_note")

	// A successful read_note unlocks edit_note for the rest of the session.
	readResult := e.Execute(context.Background(), "read_note", nil, pre)
	require.False(t, readResult.IsError)

	result = e.Execute(context.Background(), "edit_note", nil, pre)
	assert.False(t, result.IsError)
	assert.Equal(t, "edited", textOf(t, result))
}

func TestExecutor_FailedReadNoteDoesNotUnlockEdit(t *testing.T) {
	read := Definition{
		Name: "read_note",
		Handler: func(ctx context.Context, args map[string]any, host *HostContext) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("note not found"), nil
		},
	}
	edit := Definition{
		Name: "edit_note",
		Handler: func(ctx context.Context, args map[string]any, host *HostContext) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("edited"), nil
		},
	}
	e := newTestExecutor(t, read, edit)
	pre := newFakePreconditions()

	failed := e.Execute(context.Background(), "read_note", nil, pre)
	require.True(t, failed.IsError)

	result := e.Execute(context.Background(), "edit_note", nil, pre)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "read_note must be called before edit_note")
}

func TestExecutor_NilPreconditionStateSkipsChecks(t *testing.T) {
	e := newTestExecutor(t, editAndReadDefs()...)

	// The v1 surface has no sessions, so edit_note runs unguarded.
	result := e.Execute(context.Background(), "edit_note", nil, nil)
	assert.False(t, result.IsError)
}

type opaqueContent struct {
	Kind  string `json:"kind"`
	Bytes int    `json:"bytes"`
}

func TestNormalizeResult_UnknownContentBecomesText(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "plain"},
			mcp.ImageContent{Type: "image", Data: "aGk=", MIMEType: "image/png"},
			mcp.EmbeddedResource{Type: "resource"},
		},
	}

	normalized := NormalizeResult(result)
	require.Len(t, normalized.Content, 3)

	assert.IsType(t, mcp.TextContent{}, normalized.Content[0])
	assert.IsType(t, mcp.ImageContent{}, normalized.Content[1])

	text, ok := normalized.Content[2].(mcp.TextContent)
	require.True(t, ok, "unknown variant should serialize to text, got %T", normalized.Content[2])
	assert.Contains(t, text.Text, "resource")
}

func TestExecutor_ArgumentsReachHandler(t *testing.T) {
	def := Definition{
		Name: "echo_path",
		Handler: func(ctx context.Context, args map[string]any, host *HostContext) (*mcp.CallToolResult, error) {
			path, _ := args["path"].(string)
			return mcp.NewToolResultText(fmt.Sprintf("path=%s", path)), nil
		},
	}
	e := newTestExecutor(t, def)

	result := e.Execute(context.Background(), "echo_path", map[string]any{"path": "daily/2026-08-24.md"}, nil)
	assert.Equal(t, "path=daily/2026-08-24.md", textOf(t, result))
}
