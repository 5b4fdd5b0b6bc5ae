package api

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/events"
)

type connectRequest struct {
	ServerID  string            `json:"serverId"`
	ServerURL string            `json:"serverUrl"`
	Headers   map[string]string `json:"headers"`
}

type connectResponse struct {
	SessionID    string          `json:"sessionId"`
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
	ServerInfo   mcp.Info        `json:"serverInfo"`
	ToolCount    int             `json:"toolCount"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ServerURL == "" {
		s.writeError(w, r, mcp.NewError(mcp.KindInvalidRequest, "serverUrl is required"))
		return
	}

	sess, err := s.deps.Sessions.CreateSession(r.Context(), req.ServerID, req.ServerURL, req.Headers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(events.TypeSession, "", map[string]any{"event": "connected", "session": sess.Summary()})

	writeData(w, http.StatusOK, connectResponse{
		SessionID:    sess.ID,
		Capabilities: sess.Capabilities,
		ServerInfo:   sess.ServerInfo,
		ToolCount:    len(sess.Tools()),
	})
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
	Refresh   bool   `json:"refresh"`
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SessionID == "" {
		s.writeError(w, r, mcp.NewError(mcp.KindInvalidRequest, "sessionId is required"))
		return
	}
	s.deps.Sessions.CloseSession(req.SessionID)
	s.publish(events.TypeSession, "", map[string]any{"event": "disconnected", "sessionId": req.SessionID})
	writeData(w, http.StatusOK, map[string]any{"disconnected": true, "sessionId": req.SessionID})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	req := sessionRequest{SessionID: r.URL.Query().Get("sessionId")}
	if v := r.URL.Query().Get("refresh"); v != "" {
		req.Refresh, _ = strconv.ParseBool(v)
	}
	if r.Method == http.MethodPost {
		if err := decode(r, &req, true); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.SessionID == "" {
		s.writeError(w, r, mcp.NewError(mcp.KindInvalidRequest, "sessionId is required"))
		return
	}

	if req.Refresh {
		if err := s.deps.Sessions.InvalidateTools(req.SessionID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	tools, err := s.deps.Sessions.Tools(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"tools": tools, "count": len(tools)})
}

type callRequest struct {
	SessionID string         `json:"sessionId"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

type callResponse struct {
	ToolName      string `json:"toolName"`
	Result        string `json:"result"`
	ExecutionTime int64  `json:"executionTime"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SessionID == "" || req.Tool == "" {
		s.writeError(w, r, mcp.NewError(mcp.KindInvalidRequest, "sessionId and tool are required"))
		return
	}

	sess, err := s.deps.Sessions.GetSession(req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	inv, err := s.deps.Gateway.Invoke(r.Context(), sess, req.Tool, req.Arguments)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, callResponse{
		ToolName:      inv.ToolName,
		Result:        inv.Result,
		ExecutionTime: inv.ExecutionTime.Milliseconds(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.deps.Sessions.Sessions()
	writeData(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}
