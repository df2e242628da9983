package mcp

import (
	"context"
	"encoding/json"
)

const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
)

// DefaultProtocolVersion is reported by initialize when the client sends none.
const DefaultProtocolVersion = "2024-11-05"

var (
	defaultProtocolVersion = json.RawMessage(`"` + DefaultProtocolVersion + `"`)
	defaultCapabilities    = json.RawMessage(`{}`)
)

// ServerInfo identifies the server in the initialize result.
type ServerInfo struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// InitializeResult is the success payload of initialize.
//
// ProtocolVersion and Capabilities hold whatever JSON the client sent for
// those members.
type InitializeResult struct {
	ProtocolVersion json.RawMessage `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
}

// Tool describes one tool in a tools/list result.
type Tool struct {
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolsListResult is the success payload of tools/list.
type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

// initialize echoes the client's protocolVersion and capabilities, falling
// back to defaults for members that are missing. Params that are not a JSON
// object have no members.
func (s *Server) initialize(_ context.Context, params json.RawMessage) (interface{}, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(params, &members); err != nil {
		members = nil
	}

	res := &InitializeResult{
		ProtocolVersion: defaultProtocolVersion,
		Capabilities:    defaultCapabilities,
		ServerInfo:      s.info,
	}
	if v, ok := members["protocolVersion"]; ok {
		res.ProtocolVersion = v
	}
	if v, ok := members["capabilities"]; ok {
		res.Capabilities = v
	}
	return res, nil
}

// toolsList ignores params and always reports a single empty tool entry.
func (s *Server) toolsList(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return &ToolsListResult{Tools: []Tool{{}}}, nil
}
