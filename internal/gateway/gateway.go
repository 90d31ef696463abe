package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"notebridge/internal/oauth"
	"notebridge/internal/transport"
	"notebridge/pkg/logging"
)

// Config holds the remote gateway settings.
type Config struct {
	// Host is the bind address; the gateway is meant to face the network.
	Host string
	// Port is the listen port.
	Port int
	// ExternalURL is the public base URL clients and the IdP see.
	ExternalURL string
	// Version is the gateway build version reported by health and initialize.
	Version string

	// IdP configures the upstream identity provider.
	IdP oauth.IdPConfig
	// AdminSecret guards the plugin management API.
	AdminSecret string
	// Scopes are the OAuth scopes the gateway advertises.
	Scopes []string

	// SessionIdleTimeout overrides the default 30-minute idle reclamation.
	SessionIdleTimeout time.Duration
	// PollInterval overrides the default 5-second tool change poll.
	PollInterval time.Duration
}

// Gateway is the tier B server: the OAuth authorization server, the
// protected /mcp endpoint, and the admin API on one listener.
type Gateway struct {
	config     Config
	store      *oauth.Store
	authServer *oauth.Server
	middleware *oauth.AuthMiddleware
	admin      *AdminAPI
	router     *Router
	sessions   *transport.SessionTable
	core       *transport.ServerCore
	poller     *Poller

	httpServer *http.Server

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewGateway assembles the gateway from its config.
func NewGateway(cfg Config) *Gateway {
	store := oauth.NewStore()
	idp := oauth.NewIdPClient(cfg.IdP, cfg.ExternalURL)
	authServer := oauth.NewServer(oauth.ServerConfig{
		ExternalURL: cfg.ExternalURL,
		Scopes:      cfg.Scopes,
	}, store, idp)
	middleware := oauth.NewAuthMiddleware(store, authServer.ResourceMetadataURL())

	router := NewRouter(store)
	sessions := transport.NewSessionTable(cfg.SessionIdleTimeout)
	sessions.SetOnClose(router.CloseSession)
	core := transport.NewServerCore("notebridge-gateway", cfg.Version, router, sessions)

	g := &Gateway{
		config:     cfg,
		store:      store,
		authServer: authServer,
		middleware: middleware,
		admin:      NewAdminAPI(cfg.AdminSecret, store, router.Cache()),
		router:     router,
		sessions:   sessions,
		core:       core,
	}
	g.poller = NewPoller(store, router.Cache(), cfg.PollInterval, core.NotifyToolsListChanged)
	return g
}

// Store exposes the gateway's token store, mainly for tests.
func (g *Gateway) Store() *oauth.Store {
	return g.store
}

// Handler returns the gateway's HTTP handler with all surfaces mounted.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mcpHandler := transport.NewHandler(g.sessions, g.core, transport.HandlerOptions{
		// Gateway clients treat 404 as "endpoint gone"; an unknown session
		// answers 400 so they re-initialize instead of giving up.
		UnknownSessionStatus: http.StatusBadRequest,
		ResolveUser: func(r *http.Request) string {
			user, _ := oauth.UserFromContext(r.Context())
			return user
		},
	})
	mux.Handle("/mcp", g.middleware.Wrap(mcpHandler))

	g.authServer.RegisterRoutes(mux)
	g.admin.RegisterRoutes(mux)

	mux.HandleFunc("GET /health", g.handleHealth)

	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": g.config.Version,
	})
}

// Start begins serving and launches the background loops. It returns once
// the listener is running.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.httpServer != nil {
		return fmt.Errorf("gateway already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancelFunc = cancel

	addr := fmt.Sprintf("%s:%d", g.config.Host, g.config.Port)
	g.httpServer = &http.Server{
		Addr:              addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.sessions.StartSweeper(runCtx)
	}()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.store.StartSweeper(runCtx)
	}()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.poller.Run(runCtx)
	}()

	logging.Info("Gateway", "Starting remote gateway on %s (external URL %s)", addr, g.config.ExternalURL)
	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Gateway", err, "HTTP server error")
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		cancel()
		return fmt.Errorf("failed to start gateway listener: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts the gateway down. Closing the session table tears down the
// bound upstream sessions through the router's close hook.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	httpServer := g.httpServer
	cancel := g.cancelFunc
	g.httpServer = nil
	g.cancelFunc = nil
	g.mu.Unlock()

	if httpServer == nil {
		return fmt.Errorf("gateway not started")
	}

	logging.Info("Gateway", "Stopping remote gateway")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("Gateway", err, "Error shutting down HTTP server")
	}

	g.sessions.CloseAll()
	g.wg.Wait()
	return nil
}
