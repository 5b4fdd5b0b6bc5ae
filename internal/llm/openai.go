package llm

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
	"github.com/rs/zerolog"

	mcp "github.com/nakad-pixel/Mcpclient"
)

// OpenAIOption configures an OpenAI provider.
type OpenAIOption func(*OpenAI)

// OpenAI is a Provider for any service exposing the OpenAI chat completions API
// (OpenAI, OpenRouter, Groq, local gateways). The API key is looked up by service name
// on every request, so keys saved or removed at runtime take effect immediately.
type OpenAI struct {
	service    string
	baseURL    string
	keys       KeySource
	httpClient *http.Client
	timeout    time.Duration
	headers    map[string]string
	logger     zerolog.Logger
}

var defaultOpenAITimeout = 120 * time.Second

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// WithOpenAIHTTPClient sets the HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(o *OpenAI) {
		o.httpClient = client
	}
}

// WithOpenAITimeout sets the per request deadline.
func WithOpenAITimeout(timeout time.Duration) OpenAIOption {
	return func(o *OpenAI) {
		o.timeout = timeout
	}
}

// WithOpenAIHeaders adds headers to every request, such as the attribution headers
// OpenRouter asks for.
func WithOpenAIHeaders(headers map[string]string) OpenAIOption {
	return func(o *OpenAI) {
		o.headers = headers
	}
}

// WithOpenAILogger sets the logger.
func WithOpenAILogger(logger zerolog.Logger) OpenAIOption {
	return func(o *OpenAI) {
		o.logger = logger
	}
}

// NewOpenAI creates a provider for service reachable at baseURL, for example
// "https://openrouter.ai/api/v1".
func NewOpenAI(service, baseURL string, keys KeySource, options ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		keys:    keys,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = http.DefaultClient
	}
	if o.timeout == 0 {
		o.timeout = defaultOpenAITimeout
	}
	return o
}

// Complete sends the conversation to /chat/completions.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Reply, error) {
	key, ok := o.keys.GetKey(o.service)
	if !ok || key == "" {
		return Reply{}, mcp.Errorf(mcp.KindInvalidRequest, "no API key stored for service %q", o.service)
	}

	payload := chatRequest{
		Model:     req.Model,
		Messages:  toChatMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		payload.ToolChoice = "auto"
		for _, t := range req.Tools {
			payload.Tools = append(payload.Tools, chatTool{
				Type:     "function",
				Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
			})
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	cCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(cCtx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Reply{}, mcp.WrapError(mcp.KindInvalidRequest, err, "failed to create chat request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)
	for k, v := range o.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(cCtx.Err(), context.DeadlineExceeded) {
			return Reply{}, mcp.WrapError(mcp.KindTimeout, err, fmt.Sprintf("%s chat completion timed out", o.service))
		}
		return Reply{}, mcp.WrapError(mcp.KindRemote, err, fmt.Sprintf("%s chat completion failed", o.service))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, mcp.WrapError(mcp.KindRemote, err, "failed to read chat response")
	}

	o.logger.Debug().
		Str("service", o.service).
		Str("model", req.Model).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("chat completion")

	var decoded chatResponse
	decodeErr := json.Unmarshal(respBody, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if decodeErr == nil && decoded.Error != nil && decoded.Error.Message != "" {
			msg = decoded.Error.Message
		}
		return Reply{}, &mcp.Error{
			Kind:    mcp.KindRemote,
			Message: fmt.Sprintf("%s: %s", o.service, msg),
			Status:  resp.StatusCode,
			Body:    string(respBody),
		}
	}
	if decodeErr != nil {
		return Reply{}, mcp.WrapError(mcp.KindRemote, decodeErr, "invalid chat completion response")
	}
	if len(decoded.Choices) == 0 {
		return Reply{}, mcp.NewError(mcp.KindRemote, "chat completion returned no choices")
	}

	msg := decoded.Choices[0].Message
	reply := Reply{Model: req.Model}
	if msg.Content != nil {
		reply.Content = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				o.logger.Warn().Err(err).Str("tool", tc.Function.Name).Msg("unparsable tool call arguments")
				args = map[string]any{}
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	return reply, nil
}

// ValidateKey checks the stored key against the service's /models endpoint.
func (o *OpenAI) ValidateKey(ctx context.Context) error {
	key, ok := o.keys.GetKey(o.service)
	if !ok {
		return mcp.Errorf(mcp.KindInvalidRequest, "no API key stored for service %q", o.service)
	}

	cCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cCtx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return mcp.WrapError(mcp.KindInvalidRequest, err, "failed to create models request")
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return mcp.WrapError(mcp.KindRemote, err, "models request failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &mcp.Error{Kind: mcp.KindRemote, Message: "API key rejected", Status: resp.StatusCode}
	}
	return nil
}

func toChatMessages(msgs []Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		cm := chatMessage{Role: string(m.Role), Content: &content}
		switch m.Role {
		case RoleAssistant:
			if len(m.ToolCalls) > 0 && content == "" {
				cm.Content = nil
			}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				call := chatToolCall{ID: tc.ID, Type: "function"}
				call.Function.Name = tc.Name
				call.Function.Arguments = string(args)
				cm.ToolCalls = append(cm.ToolCalls, call)
			}
		case RoleTool:
			cm.ToolCallID = m.ToolCallID
			cm.Name = m.Name
		}
		out = append(out, cm)
	}
	return out
}
