package bridge

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"notebridge/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// v1ProtocolVersion is the legacy bridge protocol revision.
const v1ProtocolVersion = "1"

// maxV1Body bounds a v1 call body at 1 MiB.
const maxV1Body = 1 << 20

// v1Error is the envelope for transport and validation failures on the v1
// surface. Tool execution failures never use it; they stay in-band.
type v1Error struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// v1CallRequest is the body of POST /bridge/v1/tools/{name}/call.
type v1CallRequest struct {
	Arguments json.RawMessage `json:"arguments"`
}

// v1CallResult is the body of a completed tool invocation.
type v1CallResult struct {
	Success bool          `json:"success"`
	Content []mcp.Content `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "ok",
		"version":         b.config.Version,
		"protocolVersion": v1ProtocolVersion,
	})
}

func (b *Bridge) handleListTools(w http.ResponseWriter, r *http.Request) {
	toolList, hash := b.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": toolList,
		"hash":  hash,
	})
}

func (b *Bridge) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxV1Body))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, v1Error{
				Error:   "payload_too_large",
				Message: "request body exceeds 1 MiB",
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, v1Error{
			Error:   "invalid_request",
			Message: "failed to read request body",
		})
		return
	}

	var req v1CallRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, v1Error{
			Error:   "invalid_request",
			Message: "request body must be a JSON object",
			Details: err.Error(),
		})
		return
	}

	args, err := decodeArguments(req.Arguments)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, v1Error{
			Error:   "invalid_arguments",
			Message: err.Error(),
		})
		return
	}

	logging.Debug("Bridge", "v1 call tool=%s", name)

	// The v1 surface has no sessions, so no precondition state applies.
	result := b.executor.Execute(r.Context(), name, args, nil)
	content := result.Content
	if content == nil {
		content = []mcp.Content{}
	}
	writeJSON(w, http.StatusOK, v1CallResult{
		Success: !result.IsError,
		Content: content,
		IsError: result.IsError,
	})
}

// decodeArguments enforces that arguments, when present, form a JSON
// object (not an array or scalar).
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errors.New("arguments must be a JSON object")
	}
	return args, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("Bridge", err, "Failed to encode response")
	}
}
