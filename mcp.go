package mcp

import (
	"context"

	json "github.com/goccy/go-json"
)

// RemoteClient is the set of remote procedures the backend consumes from a connected
// server. *Client implements it over HTTP; tests substitute their own.
type RemoteClient interface {
	// Initialize opens the protocol session and returns the server's self description.
	Initialize(ctx context.Context) (InitializeResult, error)
	// ListTools returns the server's tool catalog in server order.
	ListTools(ctx context.Context) ([]Tool, error)
	// CallTool invokes a tool by name and returns its raw result.
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

var _ RemoteClient = (*Client)(nil)
