package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ClientOption is a function that configures a client.
type ClientOption func(*Client)

// Client implements the remote procedure client of the chat backend. It issues
// JSON-RPC 2.0 requests over HTTP POST to exactly one MCP server URL, with a fixed set
// of headers, and validates the shape of every response before handing back the
// result member of the envelope.
//
// A Client holds no session state of its own and is safe for concurrent use. It never
// retries a request; callers decide whether a failure is worth repeating.
//
// Instances should be created using NewClient.
type Client struct {
	serverURL       string
	headers         map[string]string
	httpClient      *http.Client
	timeout         time.Duration
	info            Info
	protocolVersion string
	maxPayloadSize  int64
	logger          zerolog.Logger
}

var (
	defaultClientTimeout        = 30 * time.Second
	defaultClientMaxPayloadSize = int64(10 << 20)
	defaultClientInfo           = Info{Name: "mcpclient", Version: "1.0.0"}
)

// maxToolPages bounds how many tools/list pages ListTools follows.
const maxToolPages = 100

// WithHTTPClient sets the HTTP client used to reach the server.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithClientTimeout sets the deadline applied to every call.
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHeaders sets extra headers sent with every request, typically authorization.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		c.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithClientInfo sets the client identification announced during initialize.
func WithClientInfo(info Info) ClientOption {
	return func(c *Client) {
		c.info = info
	}
}

// WithProtocolVersion overrides the protocol revision announced during initialize.
func WithProtocolVersion(version string) ClientOption {
	return func(c *Client) {
		c.protocolVersion = version
	}
}

// WithMaxPayloadSize caps the number of response bytes read from the server.
func WithMaxPayloadSize(size int64) ClientOption {
	return func(c *Client) {
		c.maxPayloadSize = size
	}
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client bound to serverURL. The URL is used as given; policy checks
// such as the HTTPS requirement belong to the caller that decides which servers may be
// contacted.
func NewClient(serverURL string, options ...ClientOption) *Client {
	c := &Client{
		serverURL: serverURL,
		headers:   map[string]string{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.timeout == 0 {
		c.timeout = defaultClientTimeout
	}
	if c.info.Name == "" {
		c.info = defaultClientInfo
	}
	if c.protocolVersion == "" {
		c.protocolVersion = ProtocolVersion
	}
	if c.maxPayloadSize == 0 {
		c.maxPayloadSize = defaultClientMaxPayloadSize
	}

	return c
}

// ServerURL returns the URL the client is bound to.
func (c *Client) ServerURL() string {
	return c.serverURL
}

// Initialize opens the protocol session with the server and returns what the server
// reports about itself.
func (c *Client) Initialize(ctx context.Context) (InitializeResult, error) {
	raw, err := c.Call(ctx, MethodInitialize, initializeParams{
		ProtocolVersion: c.protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      c.info,
	})
	if err != nil {
		return InitializeResult{}, err
	}

	var result InitializeResult
	if isNull(raw) {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return InitializeResult{}, WrapError(KindRemote, err, "failed to decode initialize result")
	}

	return result, nil
}

// ListTools retrieves the tools advertised by the server, in the order the server
// returns them. Paged catalogs are followed through nextCursor.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	tools := []Tool{}
	seen := map[string]bool{}
	cursor := ""
	for page := 0; ; page++ {
		if page == maxToolPages {
			return nil, Errorf(KindRemote, "tools/list returned more than %d pages", maxToolPages)
		}
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		raw, err := c.Call(ctx, MethodToolsList, params)
		if err != nil {
			return nil, err
		}
		if isNull(raw) {
			return tools, nil
		}

		var result ListToolsResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, WrapError(KindRemote, err, "failed to decode tools/list result")
		}
		tools = append(tools, result.Tools...)

		if result.NextCursor == "" {
			return tools, nil
		}
		if seen[result.NextCursor] {
			return nil, Errorf(KindRemote, "tools/list repeated cursor %q", result.NextCursor)
		}
		seen[result.NextCursor] = true
		cursor = result.NextCursor
	}
}

// CallTool executes a specific tool and returns its raw result. Use ParseToolResult to
// interpret it. A nil args map is sent as an empty object.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	return c.Call(ctx, MethodToolsCall, CallToolParams{
		Name:      name,
		Arguments: args,
	})
}

// Call sends a single JSON-RPC request and returns the result member of the response.
//
// The request is bounded by the client timeout, and by ctx. Expiry of the client
// timeout fails with KindTimeout. A response that is not a 2xx status fails with
// KindRemote, keeping status and body. A markup body (an HTML error page is the common
// cause) fails with KindUnexpectedContentType, a preview of the body and a hint keyed
// by status. A JSON-RPC error object fails with KindRemote carrying the object in
// Details.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	paramsBs, err := json.Marshal(params)
	if err != nil {
		return nil, WrapError(KindInvalidRequest, err, "failed to marshal params")
	}

	msgID := uuid.New().String()
	reqBs, err := json.Marshal(JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      MustString(msgID),
		Method:  method,
		Params:  paramsBs,
	})
	if err != nil {
		return nil, WrapError(KindInternal, err, "failed to marshal request")
	}

	cCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cCtx, http.MethodPost, c.serverURL, bytes.NewReader(reqBs))
	if err != nil {
		return nil, WrapError(KindInvalidRequest, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	c.logger.Debug().Str("method", method).Str("id", msgID).Str("url", c.serverURL).Msg("sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, cCtx, method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxPayloadSize))
	if err != nil {
		return nil, c.transportError(ctx, cCtx, method, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("id", msgID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("received response")

	return decodeResponse(method, resp.StatusCode, body)
}

func (c *Client) transportError(parent, cCtx context.Context, method string, err error) error {
	if errors.Is(cCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		c.logger.Warn().Str("method", method).Dur("timeout", c.timeout).Msg("request timed out")
		return WrapError(KindTimeout, err, fmt.Sprintf("MCP call %s timed out after %s", method, c.timeout))
	}
	if errors.Is(parent.Err(), context.DeadlineExceeded) {
		return WrapError(KindTimeout, err, fmt.Sprintf("MCP call %s timed out", method))
	}
	return WrapError(KindRemote, err, fmt.Sprintf("MCP call %s failed", method))
}

func decodeResponse(method string, status int, body []byte) (json.RawMessage, error) {
	text := string(body)

	if looksLikeHTML(text) {
		return nil, &Error{
			Kind:    KindUnexpectedContentType,
			Message: "server returned HTML instead of JSON",
			Status:  status,
			Body:    preview(text),
			Hint:    HintForStatus(status),
		}
	}

	if status < 200 || status > 299 {
		return nil, &Error{
			Kind:    KindRemote,
			Message: fmt.Sprintf("MCP call %s failed: %d %s", method, status, http.StatusText(status)),
			Status:  status,
			Body:    text,
			Hint:    HintForStatus(status),
		}
	}

	var msg struct {
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &Error{
			Kind:    KindRemote,
			Message: "invalid JSON response",
			Status:  status,
			Body:    preview(text),
			Hint:    "The server may be returning an error page. Verify the URL and server status.",
			Err:     err,
		}
	}

	if len(msg.Error) > 0 && !isNull(msg.Error) {
		return nil, remoteError(msg.Error)
	}

	if len(msg.Result) == 0 {
		return json.RawMessage("null"), nil
	}

	return msg.Result, nil
}

func remoteError(raw json.RawMessage) *Error {
	e := &Error{Kind: KindRemote, Message: "MCP error"}

	var rpcErr JSONRPCError
	if err := json.Unmarshal(raw, &rpcErr); err == nil {
		if rpcErr.Message != "" {
			e.Message = rpcErr.Message
		}
		e.Err = rpcErr
	}

	var details any
	if err := json.Unmarshal(raw, &details); err == nil {
		e.Details = details
	} else {
		e.Details = string(raw)
	}

	return e
}

func looksLikeHTML(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "<") || strings.HasPrefix(body, "The page")
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
