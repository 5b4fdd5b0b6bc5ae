package llm

import (
	"context"
	"fmt"
	"strings"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/council"
	"github.com/nakad-pixel/Mcpclient/internal/session"
)

// SessionSource resolves session ids.
type SessionSource interface {
	GetSession(id string) (*session.Session, error)
}

// MCPTool is a Provider reaching models through llm_<model> tools on connected MCP
// servers, the same convention the consensus engine uses. The conversation is sent as
// a single transcript prompt and replies are text only.
type MCPTool struct {
	sessions   SessionSource
	sessionIDs []string
	dispatcher council.Dispatcher
}

// NewMCPTool creates a provider using the given sessions, in preference order.
func NewMCPTool(sessions SessionSource, dispatcher council.Dispatcher, sessionIDs ...string) *MCPTool {
	return &MCPTool{sessions: sessions, sessionIDs: sessionIDs, dispatcher: dispatcher}
}

// Complete picks the first session advertising the model's tool, or the first live
// session when none does, and calls the tool.
func (p *MCPTool) Complete(ctx context.Context, req Request) (Reply, error) {
	toolName := council.ToolName(req.Model)

	var target *session.Session
	var firstErr error
	for _, id := range p.sessionIDs {
		sess, err := p.sessions.GetSession(id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, ok := sess.Tool(toolName); ok {
			target = sess
			break
		}
		if target == nil {
			target = sess
		}
	}
	if target == nil {
		if firstErr != nil {
			return Reply{}, firstErr
		}
		return Reply{}, mcp.Errorf(mcp.KindInvalidRequest, "model %q needs a connected MCP session", req.Model)
	}

	args := map[string]any{
		"model":     req.Model,
		"prompt":    Transcript(req.Messages),
		"maxTokens": req.MaxTokens,
	}
	if req.Temperature != nil {
		args["temperature"] = *req.Temperature
	}
	result, _, err := p.dispatcher.Dispatch(ctx, target, toolName, args)
	if err != nil {
		return Reply{}, err
	}

	text, ok := council.ExtractResponse(result)
	if !ok {
		return Reply{}, mcp.Errorf(mcp.KindRemote, "model %q returned an empty response", req.Model)
	}
	return Reply{Model: req.Model, Content: text}, nil
}

// Transcript renders messages as a role prefixed plain text prompt.
func Transcript(msgs []Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case RoleTool:
			fmt.Fprintf(&b, "Tool result (%s):\n%s", m.Name, m.Content)
		case RoleAssistant:
			b.WriteString("Assistant: ")
			b.WriteString(m.Content)
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&b, "\n[called %s]", tc.Name)
			}
		case RoleSystem:
			b.WriteString("System: ")
			b.WriteString(m.Content)
		default:
			b.WriteString("User: ")
			b.WriteString(m.Content)
		}
	}
	return b.String()
}
