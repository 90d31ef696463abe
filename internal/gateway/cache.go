package gateway

import (
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// toolCache holds the last known tool set of each registered plugin bridge,
// keyed by plugin record id. The poller refreshes it; tools/list serves
// from it, so a bridge outage never blanks the tool view mid-session.
type toolCache struct {
	mu      sync.RWMutex
	entries map[string]toolCacheEntry
}

type toolCacheEntry struct {
	tools []mcp.Tool
	hash  string
}

func newToolCache() *toolCache {
	return &toolCache{entries: make(map[string]toolCacheEntry)}
}

// Get returns the cached tool set for a plugin, if any.
func (c *toolCache) Get(pluginID string) ([]mcp.Tool, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[pluginID]
	return entry.tools, entry.hash, ok
}

// Put swaps in a freshly fetched tool set for a plugin.
func (c *toolCache) Put(pluginID string, tools []mcp.Tool, hash string) {
	c.mu.Lock()
	c.entries[pluginID] = toolCacheEntry{tools: tools, hash: hash}
	c.mu.Unlock()
}

// Delete drops a plugin's cached view, for deregistered plugins.
func (c *toolCache) Delete(pluginID string) {
	c.mu.Lock()
	delete(c.entries, pluginID)
	c.mu.Unlock()
}
