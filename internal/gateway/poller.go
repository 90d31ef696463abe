package gateway

import (
	"context"
	"net/http"
	"time"

	"notebridge/internal/oauth"
	"notebridge/pkg/logging"
)

// DefaultPollInterval is how often registered bridges are polled for tool
// set changes.
const DefaultPollInterval = 5 * time.Second

// Poller refreshes the cached tool view of every registered plugin bridge
// and fires a callback when any fingerprint changes, driving
// tools/list_changed notifications to connected clients.
type Poller struct {
	store      *oauth.Store
	cache      *toolCache
	httpClient *http.Client
	interval   time.Duration
	onChange   func()
}

// NewPoller creates a poller over the shared tool cache. onChange runs once
// per sweep that observed at least one changed fingerprint.
func NewPoller(store *oauth.Store, cache *toolCache, interval time.Duration, onChange func()) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		store:      store,
		cache:      cache,
		httpClient: &http.Client{Timeout: upstreamTimeout},
		interval:   interval,
		onChange:   onChange,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.sweep(ctx) {
				p.onChange()
			}
		}
	}
}

// sweep polls every registered bridge once and swaps refreshed tool sets
// into the cache. Unreachable bridges keep their cached view, so a
// transient outage neither blanks tools/list nor fires spurious change
// notifications.
func (p *Poller) sweep(ctx context.Context) bool {
	changed := false
	for _, token := range p.store.ListPluginTokens() {
		client := NewUpstreamClient(token, p.httpClient)
		tools, hash, err := client.FetchTools(ctx)
		if err != nil {
			logging.Debug("Gateway", "Tool poll for plugin %s failed: %v", token.ID, err)
			continue
		}

		_, previous, seen := p.cache.Get(token.ID)
		p.cache.Put(token.ID, tools, hash)

		if seen && previous != hash {
			logging.Info("Gateway", "Tool set changed on plugin %s", token.ID)
			changed = true
		}
	}
	return changed
}
