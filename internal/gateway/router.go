package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"notebridge/internal/oauth"
	"notebridge/internal/transport"
	"notebridge/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrNoPluginConfigured reports that the authenticated user has no plugin
// bridge registered. tools/list answers an empty set; tools/call surfaces
// the message in-band.
var ErrNoPluginConfigured = errors.New("No plugin configuration found for user")

// Router is the gateway's tool backend: it binds each local MCP session to
// one session on the authenticated user's plugin bridge and proxies
// tools/list and tools/call through that binding.
type Router struct {
	store      *oauth.Store
	httpClient *http.Client
	cache      *toolCache
}

// NewRouter creates a router over the plugin binding store.
func NewRouter(store *oauth.Store) *Router {
	return &Router{
		store:      store,
		httpClient: &http.Client{Timeout: upstreamTimeout},
		cache:      newToolCache(),
	}
}

// Cache exposes the cached tool view so the poller can refresh it and the
// admin surface can evict deregistered plugins.
func (r *Router) Cache() *toolCache {
	return r.cache
}

// clientForUser resolves the user's plugin binding into an upstream client.
func (r *Router) clientForUser(userID string) (*UpstreamClient, *oauth.PluginToken, error) {
	token, ok := r.store.FindPluginTokenForUser(userID)
	if !ok {
		return nil, nil, ErrNoPluginConfigured
	}
	return NewUpstreamClient(token, r.httpClient), token, nil
}

// ensureUpstream returns the upstream client and session id bound to the
// local session, initializing the upstream session on first use.
func (r *Router) ensureUpstream(ctx context.Context, sess *transport.Session) (*UpstreamClient, string, error) {
	client, _, err := r.clientForUser(sess.UserID)
	if err != nil {
		return nil, "", err
	}

	if id := sess.UpstreamID(); id != "" {
		return client, id, nil
	}

	id, err := client.Initialize(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upstream session: %w", err)
	}
	sess.SetUpstreamID(id)
	logging.Debug("Gateway", "Session %s bound to upstream session %s", sess.ID, id)
	return client, id, nil
}

// reinitUpstream replaces an expired upstream binding with a fresh session.
func (r *Router) reinitUpstream(ctx context.Context, sess *transport.Session, client *UpstreamClient) (string, error) {
	logging.Info("Gateway", "Upstream session for %s expired; re-initializing", sess.ID)
	id, err := client.Initialize(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to re-open upstream session: %w", err)
	}
	sess.SetUpstreamID(id)
	return id, nil
}

// ListTools implements transport.ToolBackend. The cached upstream view is
// the source of truth: the poller keeps it fresh, and a bridge outage keeps
// serving the last known tool set. A live fetch happens only before the
// poller has seen the plugin. Users without a plugin binding see an empty
// tool set rather than an error.
func (r *Router) ListTools(ctx context.Context, sess *transport.Session) ([]mcp.Tool, string, error) {
	_, token, err := r.clientForUser(sess.UserID)
	if errors.Is(err, ErrNoPluginConfigured) {
		return []mcp.Tool{}, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	if toolList, hash, ok := r.cache.Get(token.ID); ok {
		return toolList, hash, nil
	}

	client, upstreamID, err := r.ensureUpstream(ctx, sess)
	if err != nil {
		return nil, "", err
	}
	toolList, hash, err := client.ListTools(ctx, upstreamID)
	if errors.Is(err, ErrUpstreamSessionExpired) {
		upstreamID, err = r.reinitUpstream(ctx, sess, client)
		if err != nil {
			return nil, "", err
		}
		toolList, hash, err = client.ListTools(ctx, upstreamID)
	}
	if err != nil {
		return nil, "", err
	}
	r.cache.Put(token.ID, toolList, hash)
	return toolList, hash, nil
}

// CallTool implements transport.ToolBackend. An expired upstream session is
// re-initialized exactly once before the failure propagates.
func (r *Router) CallTool(ctx context.Context, sess *transport.Session, name string, args map[string]any) (*mcp.CallToolResult, error) {
	client, upstreamID, err := r.ensureUpstream(ctx, sess)
	if err != nil {
		return nil, err
	}

	result, err := client.CallTool(ctx, upstreamID, name, args)
	if errors.Is(err, ErrUpstreamSessionExpired) {
		upstreamID, err = r.reinitUpstream(ctx, sess, client)
		if err != nil {
			return nil, err
		}
		result, err = client.CallTool(ctx, upstreamID, name, args)
	}
	return result, err
}

// CloseSession tears down the upstream session bound to a closing local
// session. Best effort; registered as the session table's close hook.
func (r *Router) CloseSession(sess *transport.Session) {
	upstreamID := sess.UpstreamID()
	if upstreamID == "" {
		return
	}
	client, _, err := r.clientForUser(sess.UserID)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Close(ctx, upstreamID); err != nil {
		logging.Debug("Gateway", "Upstream teardown for session %s failed: %v", sess.ID, err)
	}
}
