package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"notebridge/internal/oauth"
	"notebridge/internal/transport"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrUpstreamSessionExpired reports that the plugin bridge no longer knows
// the upstream session id, typically after a bridge restart.
var ErrUpstreamSessionExpired = errors.New("upstream session expired")

// upstreamTimeout bounds a single upstream round trip.
const upstreamTimeout = 30 * time.Second

// apiKeyHeader is the shared-secret header the plugin bridge expects when
// its API key check is enabled.
const apiKeyHeader = "X-Api-Key"

// upstreamResponse mirrors the JSON-RPC response envelope with the result
// left raw for per-method decoding.
type upstreamResponse struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      json.RawMessage     `json:"id"`
	Result  json.RawMessage     `json:"result,omitempty"`
	Error   *transport.RPCError `json:"error,omitempty"`
}

// UpstreamClient speaks Streamable HTTP to one plugin bridge. It is cheap
// to construct; the HTTP client is shared across instances.
type UpstreamClient struct {
	mcpURL     string
	v1BaseURL  string
	apiKey     string
	httpClient *http.Client

	nextID atomic.Int64
}

// NewUpstreamClient builds a client for the bridge a plugin token points at.
func NewUpstreamClient(token *oauth.PluginToken, httpClient *http.Client) *UpstreamClient {
	base := fmt.Sprintf("http://%s:%d", token.Host, token.Port)
	apiKey := ""
	if token.AuthEnabled {
		apiKey = token.Secret
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: upstreamTimeout}
	}
	return &UpstreamClient{
		mcpURL:     base + "/mcp",
		v1BaseURL:  base + "/bridge/v1",
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Initialize opens a fresh upstream MCP session and returns its id.
func (c *UpstreamClient) Initialize(ctx context.Context) (string, error) {
	params := map[string]any{
		"protocolVersion": transport.ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "notebridge-gateway", "version": "1"},
	}
	resp, headers, err := c.roundTrip(ctx, "", "initialize", params)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("upstream initialize failed: %s", resp.Error.Message)
	}

	sessionID := headers.Get(transport.HeaderSessionID)
	if sessionID == "" {
		return "", errors.New("upstream initialize returned no session id")
	}
	return sessionID, nil
}

// ListTools fetches the upstream tool set and its fingerprint.
func (c *UpstreamClient) ListTools(ctx context.Context, sessionID string) ([]mcp.Tool, string, error) {
	resp, _, err := c.roundTrip(ctx, sessionID, "tools/list", struct{}{})
	if err != nil {
		return nil, "", err
	}
	if resp.Error != nil {
		return nil, "", fmt.Errorf("upstream tools/list failed: %s", resp.Error.Message)
	}

	var result struct {
		Tools []mcp.Tool     `json:"tools"`
		Meta  map[string]any `json:"_meta"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, "", fmt.Errorf("failed to decode upstream tools/list result: %w", err)
	}

	hash := ""
	if raw, ok := result.Meta["toolsHash"].(string); ok {
		hash = raw
	}
	return result.Tools, hash, nil
}

// CallTool executes a tool on the upstream bridge. Tool-level failures come
// back in-band via the result's IsError flag.
func (c *UpstreamClient) CallTool(ctx context.Context, sessionID, name string, args map[string]any) (*mcp.CallToolResult, error) {
	params := map[string]any{"name": name, "arguments": args}
	resp, _, err := c.roundTrip(ctx, sessionID, "tools/call", params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("upstream tools/call failed: %s", resp.Error.Message)
	}
	return decodeCallToolResult(resp.Result)
}

// Close tears down the upstream session. Best effort: unknown sessions are
// not an error.
func (c *UpstreamClient) Close(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.mcpURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set(transport.HeaderSessionID, sessionID)
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// FetchTools reads the tool set and its fingerprint from the bridge's v1
// surface without holding an MCP session. Used by the change poller to
// refresh the cached tool view.
func (c *UpstreamClient) FetchTools(ctx context.Context) ([]mcp.Tool, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.v1BaseURL+"/tools", nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("bridge tools listing returned %d", resp.StatusCode)
	}

	var body struct {
		Tools []mcp.Tool `json:"tools"`
		Hash  string     `json:"hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("failed to decode bridge tools listing: %w", err)
	}
	return body.Tools, body.Hash, nil
}

func (c *UpstreamClient) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}

// roundTrip posts one JSON-RPC request and decodes the single response,
// whether the bridge answers plain JSON or an SSE-framed message event.
func (c *UpstreamClient) roundTrip(ctx context.Context, sessionID, method string, params any) (*upstreamResponse, http.Header, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, nil, err
	}
	id, err := json.Marshal(c.nextID.Add(1))
	if err != nil {
		return nil, nil, err
	}
	body, err := json.Marshal(transport.Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mcpURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(transport.HeaderSessionID, sessionID)
	}
	c.setAuth(req)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, httpResp.Body)
		return nil, nil, ErrUpstreamSessionExpired
	}
	if httpResp.StatusCode == http.StatusUnauthorized {
		return nil, nil, errors.New("plugin bridge rejected the configured API key")
	}

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	if strings.HasPrefix(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		payload, err = firstSSEData(payload)
		if err != nil {
			return nil, nil, err
		}
	}

	var resp upstreamResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return &resp, httpResp.Header, nil
}

// firstSSEData extracts the data payload of the first SSE event in a body.
func firstSSEData(body []byte) ([]byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
			continue
		}
		if line == "" && len(data) > 0 {
			break
		}
	}
	if len(data) == 0 {
		return nil, errors.New("upstream event stream carried no data")
	}
	return data, nil
}

// decodeCallToolResult rebuilds a typed tool result from its wire form.
// Known content types come back typed; anything else is preserved as text.
func decodeCallToolResult(raw json.RawMessage) (*mcp.CallToolResult, error) {
	var wire struct {
		Content []json.RawMessage `json:"content"`
		IsError bool              `json:"isError"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode upstream tool result: %w", err)
	}

	result := &mcp.CallToolResult{IsError: wire.IsError}
	for _, entry := range wire.Content {
		var kind struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(entry, &kind); err != nil {
			return nil, fmt.Errorf("failed to decode upstream content entry: %w", err)
		}

		switch kind.Type {
		case "text":
			var content mcp.TextContent
			if err := json.Unmarshal(entry, &content); err != nil {
				return nil, err
			}
			result.Content = append(result.Content, content)
		case "image":
			var content mcp.ImageContent
			if err := json.Unmarshal(entry, &content); err != nil {
				return nil, err
			}
			result.Content = append(result.Content, content)
		default:
			result.Content = append(result.Content, mcp.TextContent{Type: "text", Text: string(entry)})
		}
	}
	return result, nil
}
