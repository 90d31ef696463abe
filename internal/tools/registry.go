package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"notebridge/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrDuplicateTool is returned when registering a tool whose name is
// already taken, regardless of source.
var ErrDuplicateTool = fmt.Errorf("tool already registered")

// Registry is the in-memory set of tool definitions shared by the MCP and
// bridge v1 surfaces. It maintains a stable fingerprint over the observable
// tool set so pollers can detect changes cheaply.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry

	// fingerprint is recomputed on every mutation so reads are O(1).
	fingerprint string

	// updateChan receives a signal after each mutation that changed the
	// observable tool set. Buffered so registration never blocks.
	updateChan chan struct{}
}

type entry struct {
	def    Definition
	source Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		entries:    make(map[string]entry),
		updateChan: make(chan struct{}, 16),
	}
	r.fingerprint = computeFingerprint(nil)
	return r
}

// Register adds a tool definition under the given source tag. Names are
// unique across sources; a duplicate name is rejected with ErrDuplicateTool.
func (r *Registry) Register(def Definition, source Source) error {
	if def.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}

	r.mu.Lock()
	if _, exists := r.entries[def.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}
	r.entries[def.Name] = entry{def: def, source: source}
	r.recomputeFingerprintLocked()
	r.mu.Unlock()

	logging.Debug("Registry", "Registered tool %s (source=%s)", def.Name, source)
	r.notifyUpdate()
	return nil
}

// Unregister removes a tool by name. An absent name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	if _, exists := r.entries[name]; !exists {
		r.mu.Unlock()
		return
	}
	delete(r.entries, name)
	r.recomputeFingerprintLocked()
	r.mu.Unlock()

	logging.Debug("Registry", "Unregistered tool %s", name)
	r.notifyUpdate()
}

// Get returns the definition for a tool name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.def, ok
}

// List returns the current tools in name-sorted order together with the
// current fingerprint. The returned slice is a snapshot.
func (r *Registry) List() ([]mcp.Tool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]mcp.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, e.def.Tool())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, r.fingerprint
}

// Fingerprint returns the current fingerprint of the tool set.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fingerprint
}

// GetUpdateChannel returns a channel that receives a signal whenever the
// observable tool set changes.
func (r *Registry) GetUpdateChannel() <-chan struct{} {
	return r.updateChan
}

func (r *Registry) notifyUpdate() {
	select {
	case r.updateChan <- struct{}{}:
	default:
		// A signal is already pending; coalesce.
	}
}

func (r *Registry) recomputeFingerprintLocked() {
	tools := make([]mcp.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.def.Tool())
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	r.fingerprint = computeFingerprint(tools)
}

// computeFingerprint hashes the canonical JSON serialization of the tool
// list. Each tool reduces to {name, description, inputSchema} with
// recursively sorted keys; tools are concatenated in name order and the
// SHA-256 digest is emitted as lowercase hex. The fingerprint is a pure
// function of the observable tool set: identical sets produce identical
// fingerprints independent of registration order.
func computeFingerprint(tools []mcp.Tool) string {
	h := sha256.New()
	for _, tool := range tools {
		canonical := map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": toPlain(tool.InputSchema),
		}
		// encoding/json emits map keys in sorted order with no
		// insignificant whitespace, which is exactly the canonical form.
		data, err := json.Marshal(canonical)
		if err != nil {
			// Tool schemas are plain JSON values; marshal cannot fail for
			// them. Guard anyway so a bad schema yields a distinct hash.
			data = []byte(fmt.Sprintf("%q", tool.Name))
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// toPlain round-trips a value through JSON so nested structs become plain
// maps, letting encoding/json apply key ordering recursively.
func toPlain(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil
	}
	return plain
}
