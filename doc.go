// Package mcp implements the client side of the Model Context Protocol (MCP) as spoken by
// remote tool servers reachable over JSON-RPC 2.0 on plain HTTP POST. It provides the
// remote procedure client used by the chat backend, the wire schema it exchanges, the
// typed error kinds surfaced to callers, and the normalization of heterogeneous tool
// results into a single text form.
//
// A Client is bound to exactly one server URL and a fixed set of headers. Every call
// carries a freshly generated request id and is bounded by a deadline (30 seconds by
// default); the client never retries, leaving retry policy to the caller.
//
//	client := mcp.NewClient("https://tools.example.com/mcp",
//		mcp.WithHeaders(map[string]string{"Authorization": "Bearer token"}),
//	)
//	info, err := client.Initialize(ctx)
//	if err != nil {
//		return err
//	}
//	tools, err := client.ListTools(ctx)
//
// Failures are reported as *Error values carrying a Kind. Callers classify them with
// KindOf or IsKind instead of matching on messages:
//
//	if mcp.IsKind(err, mcp.KindUnexpectedContentType) {
//		// the URL most likely points at an HTML page, see Error.Hint
//	}
//
// Tool results come back from servers in several shapes. ParseToolResult turns the raw
// JSON into one of the ToolResult variants, and ToolResult.Text renders the canonical
// text form consumed by models and by the HTTP surface.
package mcp
