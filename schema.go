package mcp

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// MustString is a type that enforces string representation for fields that can be either string or integer
// on the wire, such as request IDs.
type MustString string

// JSONRPCMessage represents a JSON-RPC 2.0 message exchanged with a remote tool server.
//   - Request: JSONRPC, ID, Method, and Params are set
//   - Response: JSONRPC, ID, and either Result or Error are set
type JSONRPCMessage struct {
	// JSONRPC is always "2.0".
	JSONRPC string `json:"jsonrpc"`
	// ID uniquely identifies request-response pairs
	ID MustString `json:"id,omitempty"`
	// Method contains the RPC method name for requests
	Method string `json:"method,omitempty"`
	// Params contains the parameters for the method call
	Params json.RawMessage `json:"params,omitempty"`
	// Result contains the successful response data
	Result json.RawMessage `json:"result,omitempty"`
	// Error contains error details if the request failed
	Error *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents an error response in the JSON-RPC 2.0 protocol.
// Servers in the wild are loose about its shape, so Data is kept raw.
type JSONRPCError struct {
	// Code indicates the error type that occurred.
	Code int `json:"code"`
	// Message provides a short description of the error.
	Message string `json:"message"`
	// Data contains additional information about the error.
	Data json.RawMessage `json:"data,omitempty"`
}

// Info contains metadata about a server or client instance including its name and version.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool defines a callable tool with its input schema.
// InputSchema defines the expected format of arguments for CallTool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Content represents one item of a tool result content list.
type Content struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	Data     string      `json:"data,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
}

// ContentType represents the type of content in tool results.
type ContentType string

// InitializeResult is what a server reports about itself when a session is opened.
// Capabilities is kept opaque; the backend only stores and echoes it.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion,omitempty"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ServerInfo      Info            `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`
}

// ListToolsResult represents the result of a tools/list call.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolParams contains parameters for executing a specific tool.
type CallToolParams struct {
	// Name is the unique identifier of the tool to execute
	Name string `json:"name"`

	// Arguments is a JSON object of argument name-value pairs
	// Must satisfy required arguments defined in tool's InputSchema field
	Arguments map[string]any `json:"arguments"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Info           `json:"clientInfo"`
}

type inputSchema struct {
	Required []string `json:"required"`
}

// ContentTypeText marks a text content item. Items of other types are passed through
// as JSON.
const ContentTypeText ContentType = "text"

const (
	// JSONRPCVersion specifies the JSON-RPC protocol version used for communication.
	JSONRPCVersion = "2.0"
	// ProtocolVersion is the MCP protocol revision announced during initialize.
	ProtocolVersion = "2024-11-05"

	// MethodInitialize is the method name for opening a session with a server.
	MethodInitialize = "initialize"
	// MethodToolsList is the method name for retrieving a list of available tools.
	MethodToolsList = "tools/list"
	// MethodToolsCall is the method name for invoking a specific tool.
	MethodToolsCall = "tools/call"
)

// Required returns the names listed in the tool's inputSchema.required, in schema order.
// A missing or malformed schema yields no required fields.
func (t Tool) Required() []string {
	if len(t.InputSchema) == 0 {
		return nil
	}
	var s inputSchema
	if err := json.Unmarshal(t.InputSchema, &s); err != nil {
		return nil
	}
	return s.Required
}

// MissingRequired reports the first required field absent from args, in schema order.
// Only presence is checked; values are not validated against property shapes.
func (t Tool) MissingRequired(args map[string]any) (string, bool) {
	for _, field := range t.Required() {
		if _, ok := args[field]; !ok {
			return field, true
		}
	}
	return "", false
}

// UnmarshalJSON implements json.Unmarshaler to convert JSON data into MustString,
// handling both string and numeric input formats.
func (m *MustString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch v := v.(type) {
	case string:
		*m = MustString(v)
	case float64:
		*m = MustString(fmt.Sprintf("%d", int(v)))
	case int:
		*m = MustString(fmt.Sprintf("%d", v))
	default:
		return fmt.Errorf("invalid type: %T", v)
	}

	return nil
}

// MarshalJSON implements json.Marshaler to convert MustString into its JSON representation,
// always encoding as a string value.
func (m MustString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(m))
}

func (j JSONRPCError) Error() string {
	return fmt.Sprintf("request error, code: %d, message: %s", j.Code, j.Message)
}
