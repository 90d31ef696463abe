package bridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"notebridge/internal/tools"
	"notebridge/internal/transport"
	"notebridge/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// Config holds the plugin bridge settings.
type Config struct {
	// Host is the bind address; the bridge defaults to loopback because the
	// host process is the only intended local caller.
	Host string
	// Port is the listen port.
	Port int
	// APIKey guards /mcp when non-empty. The v1 surface stays open; the
	// host already restricts access to the loopback interface.
	APIKey string
	// VaultName names the vault for tool handlers and server info.
	VaultName string
	// Version is the bridge build version reported by health and initialize.
	Version string
	// SessionIdleTimeout overrides the default 30-minute idle reclamation.
	SessionIdleTimeout time.Duration
}

// Bridge is the tier A server: /mcp and /bridge/v1/* over one listener,
// sharing one tool registry.
type Bridge struct {
	config   Config
	registry *tools.Registry
	executor *tools.Executor
	sessions *transport.SessionTable
	core     *transport.ServerCore

	httpServer *http.Server

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewBridge creates a bridge over an existing registry. The registry is
// shared with the host's script loader, which registers and unregisters
// tools at runtime.
func NewBridge(cfg Config, registry *tools.Registry) *Bridge {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	sessions := transport.NewSessionTable(cfg.SessionIdleTimeout)
	executor := tools.NewExecutor(registry, &tools.HostContext{VaultName: cfg.VaultName})
	backend := &localBackend{registry: registry, executor: executor}
	core := transport.NewServerCore("notebridge", cfg.Version, backend, sessions)

	return &Bridge{
		config:   cfg,
		registry: registry,
		executor: executor,
		sessions: sessions,
		core:     core,
	}
}

// Handler returns the bridge's HTTP handler with both surfaces mounted.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()

	mcpHandler := transport.NewHandler(b.sessions, b.core, transport.HandlerOptions{
		UnknownSessionStatus: http.StatusNotFound,
	})
	mux.Handle("/mcp", requireAPIKey(b.config.APIKey, mcpHandler))

	mux.HandleFunc("GET /bridge/v1/health", b.handleHealth)
	mux.HandleFunc("GET /bridge/v1/tools", b.handleListTools)
	mux.HandleFunc("POST /bridge/v1/tools/{name}/call", b.handleCallTool)

	return mux
}

// Start begins serving and launches the background loops. It returns once
// the listener is running.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.httpServer != nil {
		return fmt.Errorf("bridge already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancelFunc = cancel

	addr := fmt.Sprintf("%s:%d", b.config.Host, b.config.Port)
	b.httpServer = &http.Server{
		Addr:              addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sessions.StartSweeper(runCtx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.monitorRegistryUpdates(runCtx)
	}()

	logging.Info("Bridge", "Starting plugin bridge on %s (vault=%s)", addr, b.config.VaultName)
	errCh := make(chan error, 1)
	go func() {
		if err := b.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Bridge", err, "HTTP server error")
			errCh <- err
		}
	}()

	// Give the listener a moment to surface bind failures as fatal errors.
	select {
	case err := <-errCh:
		cancel()
		return fmt.Errorf("failed to start bridge listener: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts the bridge down, closing all sessions.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	httpServer := b.httpServer
	cancel := b.cancelFunc
	b.httpServer = nil
	b.cancelFunc = nil
	b.mu.Unlock()

	if httpServer == nil {
		return fmt.Errorf("bridge not started")
	}

	logging.Info("Bridge", "Stopping plugin bridge")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("Bridge", err, "Error shutting down HTTP server")
	}

	b.sessions.CloseAll()
	b.wg.Wait()
	return nil
}

// monitorRegistryUpdates relays registry changes as listChanged
// notifications to every open MCP session.
func (b *Bridge) monitorRegistryUpdates(ctx context.Context) {
	updateChan := b.registry.GetUpdateChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updateChan:
			b.core.NotifyToolsListChanged()
		}
	}
}

// localBackend serves MCP requests straight from the local registry.
type localBackend struct {
	registry *tools.Registry
	executor *tools.Executor
}

func (l *localBackend) ListTools(ctx context.Context, sess *transport.Session) ([]mcp.Tool, string, error) {
	toolList, hash := l.registry.List()
	return toolList, hash, nil
}

func (l *localBackend) CallTool(ctx context.Context, sess *transport.Session, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return l.executor.Execute(ctx, name, args, sess), nil
}
