package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolsCommandRendersListing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bridge/v1/tools", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"tools": []map[string]any{
				{"name": "read_note", "description": "Read a note from the vault"},
				{"name": "search_notes", "description": "Search the vault"},
			},
			"hash": "abc123",
		})
	}))
	defer ts.Close()

	previous := toolsBridgeURL
	toolsBridgeURL = ts.URL
	defer func() { toolsBridgeURL = previous }()

	var out bytes.Buffer
	toolsCmd.SetOut(&out)
	require.NoError(t, runTools(toolsCmd, nil))

	rendered := out.String()
	assert.Contains(t, rendered, "read_note")
	assert.Contains(t, rendered, "search_notes")
	assert.Contains(t, rendered, "abc123")
}

func TestToolsCommandBridgeUnreachable(t *testing.T) {
	previous := toolsBridgeURL
	toolsBridgeURL = "http://127.0.0.1:1"
	defer func() { toolsBridgeURL = previous }()

	err := runTools(toolsCmd, nil)
	assert.Error(t, err)
}
