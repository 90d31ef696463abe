package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notebridge/internal/tools"
	"notebridge/internal/transport"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T, cfg Config) (*Bridge, *tools.Registry) {
	t.Helper()
	registry := tools.NewRegistry()

	read := tools.Definition{
		Name:        "read_note",
		Description: "Read a note from the vault",
		InputSchema: mcp.ToolInputSchema{Type: "object"},
		Handler: func(ctx context.Context, args map[string]any, host *tools.HostContext) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("note body"), nil
		},
	}
	edit := tools.Definition{
		Name:        "edit_note",
		Description: "Edit a note in the vault",
		InputSchema: mcp.ToolInputSchema{Type: "object"},
		Handler: func(ctx context.Context, args map[string]any, host *tools.HostContext) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("edited"), nil
		},
	}
	require.NoError(t, registry.Register(read, tools.SourceBuiltin))
	require.NoError(t, registry.Register(edit, tools.SourceBuiltin))

	cfg.Version = "0.0.1-test"
	cfg.VaultName = "test-vault"
	return NewBridge(cfg, registry), registry
}

func postMCP(t *testing.T, h http.Handler, sessionID, apiKey string, id any, method string, params any) *httptest.ResponseRecorder {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		req["id"] = id
	}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		r.Header.Set("MCP-Session-Id", sessionID)
	}
	if apiKey != "" {
		r.Header.Set("x-api-key", apiKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestBridge_HealthEndpoint(t *testing.T) {
	b, _ := newTestBridge(t, Config{})
	h := b.Handler()

	r := httptest.NewRequest(http.MethodGet, "/bridge/v1/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1", body["protocolVersion"])
	assert.Equal(t, "0.0.1-test", body["version"])
}

func TestBridge_V1ToolsListIncludesHash(t *testing.T) {
	b, registry := newTestBridge(t, Config{})
	h := b.Handler()

	r := httptest.NewRequest(http.MethodGet, "/bridge/v1/tools", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Tools []mcp.Tool `json:"tools"`
		Hash  string     `json:"hash"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tools, 2)
	assert.Equal(t, registry.Fingerprint(), body.Hash)
}

func TestBridge_V1CallTool(t *testing.T) {
	b, _ := newTestBridge(t, Config{})
	h := b.Handler()

	body := bytes.NewReader([]byte(`{"arguments":{"path":"inbox.md"}}`))
	r := httptest.NewRequest(http.MethodPost, "/bridge/v1/tools/read_note/call", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Success bool `json:"success"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "note body", result.Content[0].Text)
}

func TestBridge_V1CallUnknownToolIsInBand(t *testing.T) {
	b, _ := newTestBridge(t, Config{})
	h := b.Handler()

	r := httptest.NewRequest(http.MethodPost, "/bridge/v1/tools/nope/call", bytes.NewReader([]byte(`{"arguments":{}}`)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	// Tool-level failure: HTTP 200 with isError.
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Success bool `json:"success"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.True(t, result.IsError)
}

func TestBridge_V1CallValidation(t *testing.T) {
	b, _ := newTestBridge(t, Config{})
	h := b.Handler()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", `{not json`, http.StatusBadRequest},
		{"array arguments", `{"arguments":[1,2]}`, http.StatusBadRequest},
		{"scalar arguments", `{"arguments":"nope"}`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/bridge/v1/tools/read_note/call", bytes.NewReader([]byte(tc.body)))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			require.Equal(t, tc.status, w.Code)

			var errBody v1Error
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errBody))
			assert.NotEmpty(t, errBody.Error)
			assert.NotEmpty(t, errBody.Message)
		})
	}
}

func TestBridge_MCPRequiresAPIKey(t *testing.T) {
	b, _ := newTestBridge(t, Config{APIKey: "sekrit"})
	h := b.Handler()

	// Missing key.
	w := postMCP(t, h, "", "", 1, "initialize", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong key.
	w = postMCP(t, h, "", "wrong", 1, "initialize", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Correct key, case-insensitive header.
	w = postMCP(t, h, "", "sekrit", 1, "initialize", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("MCP-Session-Id"))

	// The v1 surface stays unauthenticated.
	r := httptest.NewRequest(http.MethodGet, "/bridge/v1/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBridge_MCPAndV1ShareToolSet(t *testing.T) {
	b, registry := newTestBridge(t, Config{})
	h := b.Handler()

	w := postMCP(t, h, "", "", 1, "initialize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessionID := w.Header().Get("MCP-Session-Id")

	w = postMCP(t, h, sessionID, "", 2, "tools/list", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result transport.ListToolsResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	v1Req := httptest.NewRequest(http.MethodGet, "/bridge/v1/tools", nil)
	v1Rec := httptest.NewRecorder()
	h.ServeHTTP(v1Rec, v1Req)
	var v1Body struct {
		Tools []mcp.Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(v1Rec.Body.Bytes(), &v1Body))

	require.Equal(t, len(v1Body.Tools), len(resp.Result.Tools))
	for i := range v1Body.Tools {
		assert.Equal(t, v1Body.Tools[i].Name, resp.Result.Tools[i].Name)
	}
	assert.Equal(t, registry.Fingerprint(), resp.Result.Meta["toolsHash"])
}

func TestBridge_EditNotePreconditionOverMCP(t *testing.T) {
	b, _ := newTestBridge(t, Config{})
	h := b.Handler()

	w := postMCP(t, h, "", "", 1, "initialize", nil)
	sessionID := w.Header().Get("MCP-Session-Id")
	require.NotEmpty(t, sessionID)

	callParams := map[string]any{"name": "edit_note", "arguments": map[string]any{"path": "a.md"}}
	w = postMCP(t, h, sessionID, "", 2, "tools/call", callParams)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "read_note must be called before edit_note")

	// A successful read_note unlocks edit_note within the session.
	readParams := map[string]any{"name": "read_note", "arguments": map[string]any{"path": "a.md"}}
	w = postMCP(t, h, sessionID, "", 3, "tools/call", readParams)
	require.Equal(t, http.StatusOK, w.Code)

	w = postMCP(t, h, sessionID, "", 4, "tools/call", callParams)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "edited")
	assert.NotContains(t, w.Body.String(), "read_note must be called")
}

func TestBridge_UnknownSessionIs404(t *testing.T) {
	b, _ := newTestBridge(t, Config{})
	h := b.Handler()

	w := postMCP(t, h, "bogus-session-id", "", 1, "tools/list", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBridge_RegistryChangeNotifiesSessions(t *testing.T) {
	b, registry := newTestBridge(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.monitorRegistryUpdates(ctx)

	h := b.Handler()
	w := postMCP(t, h, "", "", 1, "initialize", nil)
	sessionID := w.Header().Get("MCP-Session-Id")
	sess, ok := b.sessions.Get(sessionID)
	require.True(t, ok)

	require.NoError(t, registry.Register(tools.Definition{
		Name: "search_notes",
		Handler: func(ctx context.Context, args map[string]any, host *tools.HostContext) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("[]"), nil
		},
	}, tools.SourceScript))

	select {
	case n := <-sess.Notifications():
		assert.Equal(t, transport.MethodToolsListChanged, n.Method)
	case <-waitTimeout():
		t.Fatal("expected tools/list_changed notification")
	}
}

func waitTimeout() <-chan time.Time {
	return time.After(2 * time.Second)
}
