// Package mcptest provides an in-process MCP server speaking JSON-RPC over HTTP POST,
// for tests that exercise the remote procedure client end to end.
package mcptest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	mcp "github.com/nakad-pixel/Mcpclient"
)

// HandlerFunc answers a tools/call for one tool. The returned value is marshalled as
// the JSON-RPC result; a returned error becomes a JSON-RPC error object.
type HandlerFunc func(args map[string]any) (any, error)

// Tool is a tool served by the fake server.
type Tool struct {
	mcp.Tool
	Handler HandlerFunc
}

// Fault makes the server misbehave for a method. Zero value means a normal answer.
type Fault struct {
	// Status is written instead of 200 when non-zero.
	Status int
	// Body replaces the response body verbatim when non-empty.
	Body string
	// RPCError is sent as the JSON-RPC error member when non-nil.
	RPCError *mcp.JSONRPCError
	// Delay is slept before answering.
	Delay time.Duration
}

// Server is a fake MCP server. Use NewServer and Close.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	tools       []Tool
	faults      map[string]Fault
	calls       map[string]int
	headers     []http.Header
	initResult  mcp.InitializeResult
	lastRequest mcp.JSONRPCMessage
	pageSize    int
	loopCursor  bool
}

// NewServer starts a fake server advertising tools in the given order.
func NewServer(tools ...Tool) *Server {
	s := &Server{
		tools:  tools,
		faults: map[string]Fault{},
		calls:  map[string]int{},
		initResult: mcp.InitializeResult{
			ProtocolVersion: mcp.ProtocolVersion,
			Capabilities:    json.RawMessage(`{"tools":{"listChanged":false}}`),
			ServerInfo:      mcp.Info{Name: "mcptest", Version: "0.1.0"},
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// TextTool returns a tool answering with a single text content item produced by fn.
func TextTool(name string, required []string, fn func(args map[string]any) string) Tool {
	schema := map[string]any{"type": "object", "properties": map[string]any{}}
	if len(required) > 0 {
		schema["required"] = required
		props := map[string]any{}
		for _, r := range required {
			props[r] = map[string]any{"type": "string"}
		}
		schema["properties"] = props
	}
	bs, _ := json.Marshal(schema)
	return Tool{
		Tool: mcp.Tool{Name: name, Description: name + " tool", InputSchema: bs},
		Handler: func(args map[string]any) (any, error) {
			return map[string]any{
				"content": []map[string]any{{"type": "text", "text": fn(args)}},
			}, nil
		},
	}
}

// SetFault makes the server misbehave for method until cleared with ClearFault.
func (s *Server) SetFault(method string, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = f
}

// ClearFault restores normal answers for method.
func (s *Server) ClearFault(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, method)
}

// SetTools replaces the advertised tool catalog.
func (s *Server) SetTools(tools ...Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = tools
}

// SetPageSize makes tools/list answer at most n tools per page, with the offset of
// the next page as cursor. Zero disables paging. With loop set, every page points
// back to the first one.
func (s *Server) SetPageSize(n int, loop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
	s.loopCursor = loop
}

// Calls returns how many requests were received for method.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// LastRequest returns the last JSON-RPC request received.
func (s *Server) LastRequest() mcp.JSONRPCMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequest
}

// LastHeaders returns the headers of the last request received.
func (s *Server) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.headers) == 0 {
		return nil
	}
	return s.headers[len(s.headers)-1]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var msg mcp.JSONRPCMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[msg.Method]++
	s.headers = append(s.headers, r.Header.Clone())
	s.lastRequest = msg
	fault, faulty := s.faults[msg.Method]
	tools := append([]Tool(nil), s.tools...)
	initResult := s.initResult
	pageSize, loopCursor := s.pageSize, s.loopCursor
	s.mu.Unlock()

	if faulty {
		if fault.Delay > 0 {
			select {
			case <-time.After(fault.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if fault.Body != "" || fault.Status != 0 {
			status := fault.Status
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(fault.Body))
			return
		}
		if fault.RPCError != nil {
			writeMessage(w, mcp.JSONRPCMessage{JSONRPC: mcp.JSONRPCVersion, ID: msg.ID, Error: fault.RPCError})
			return
		}
	}

	var result any
	var rpcErr *mcp.JSONRPCError

	switch msg.Method {
	case mcp.MethodInitialize:
		result = initResult
	case mcp.MethodToolsList:
		result = listTools(tools, msg.Params, pageSize, loopCursor)
	case mcp.MethodToolsCall:
		result, rpcErr = callTool(tools, msg.Params)
	default:
		rpcErr = &mcp.JSONRPCError{Code: -32601, Message: fmt.Sprintf("method not found: %s", msg.Method)}
	}

	res := mcp.JSONRPCMessage{JSONRPC: mcp.JSONRPCVersion, ID: msg.ID, Error: rpcErr}
	if rpcErr == nil {
		bs, err := json.Marshal(result)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		res.Result = bs
	}
	writeMessage(w, res)
}

func listTools(tools []Tool, params json.RawMessage, pageSize int, loop bool) mcp.ListToolsResult {
	list := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		list = append(list, t.Tool)
	}
	if pageSize <= 0 {
		return mcp.ListToolsResult{Tools: list}
	}

	var p struct {
		Cursor string `json:"cursor"`
	}
	_ = json.Unmarshal(params, &p)
	start, _ := strconv.Atoi(p.Cursor)
	start = min(max(start, 0), len(list))
	end := min(start+pageSize, len(list))

	res := mcp.ListToolsResult{Tools: list[start:end]}
	switch {
	case loop:
		res.NextCursor = "0"
	case end < len(list):
		res.NextCursor = strconv.Itoa(end)
	}
	return res
}

func callTool(tools []Tool, params json.RawMessage) (any, *mcp.JSONRPCError) {
	var p mcp.CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &mcp.JSONRPCError{Code: -32602, Message: err.Error()}
	}
	for _, t := range tools {
		if t.Name != p.Name {
			continue
		}
		if t.Handler == nil {
			return nil, nil
		}
		v, err := t.Handler(p.Arguments)
		if err != nil {
			return nil, &mcp.JSONRPCError{Code: -32000, Message: err.Error()}
		}
		return v, nil
	}
	return nil, &mcp.JSONRPCError{Code: -32602, Message: fmt.Sprintf("unknown tool: %s", p.Name)}
}

func writeMessage(w http.ResponseWriter, msg mcp.JSONRPCMessage) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(msg)
}
