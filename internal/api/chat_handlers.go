package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/llm"
	"github.com/nakad-pixel/Mcpclient/internal/orchestrator"
)

type createChatRequest struct {
	ID           string   `json:"id"`
	Models       []string `json:"models"`
	Council      bool     `json:"council"`
	SessionIDs   []string `json:"sessionIds"`
	SystemPrompt string   `json:"systemPrompt"`
	MaxLoops     int      `json:"maxLoops"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    int      `json:"maxTokens"`
}

type chatView struct {
	ID         string              `json:"id"`
	State      orchestrator.State  `json:"state"`
	Config     orchestrator.Config `json:"config"`
	SessionIDs []string            `json:"sessionIds"`
	History    []llm.Message       `json:"history"`
	Error      string              `json:"error,omitempty"`
}

func viewOf(c *orchestrator.Conversation) chatView {
	v := chatView{
		ID:         c.ID(),
		State:      c.State(),
		Config:     c.Config(),
		SessionIDs: []string{},
		History:    c.History(),
	}
	if r := c.Router(); r != nil {
		v.SessionIDs = r.SessionIDs()
	}
	if err := c.Err(); err != nil {
		v.Error = err.Error()
	}
	return v
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) (*orchestrator.Conversation, bool) {
	c, err := s.deps.Conversations.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return c, true
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, id := range req.SessionIDs {
		if _, err := s.deps.Sessions.GetSession(id); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	c, err := s.deps.Conversations.Create(orchestrator.Config{
		ID:           req.ID,
		Models:       req.Models,
		Council:      req.Council,
		MaxLoops:     req.MaxLoops,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
	}, req.SessionIDs...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, viewOf(c))
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	ids := s.deps.Conversations.IDs()
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		c, err := s.deps.Conversations.Get(id)
		if err != nil {
			continue
		}
		out = append(out, map[string]any{"id": id, "state": c.State(), "models": c.Config().Models})
	}
	writeData(w, http.StatusOK, map[string]any{"conversations": out, "count": len(out)})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.conversation(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, viewOf(c))
}

type submitRequest struct {
	Input string `json:"input"`
}

type turnResponse struct {
	orchestrator.Turn
	State    orchestrator.State `json:"state"`
	Duration int64              `json:"duration"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	c, ok := s.conversation(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	turn, err := c.Submit(r.Context(), req.Input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, turnResponse{Turn: turn, State: c.State(), Duration: turn.Duration.Milliseconds()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	c, ok := s.conversation(w, r)
	if !ok {
		return
	}
	if err := c.Reset(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": c.ID(), "state": c.State()})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.deps.Conversations.Delete(id) {
		s.writeError(w, r, mcp.WrapError(mcp.KindInvalidRequest, orchestrator.ErrNotFound, "conversation "+id))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (s *Server) handleChatEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := s.conversation(w, r)
	if !ok {
		return
	}
	if s.deps.Events == nil {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "events are disabled", nil)
		return
	}
	s.deps.Events.Stream(w, r, c.ID())
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	transcripts, err := s.deps.History.List(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, mcp.WrapError(mcp.KindInternal, err, "list transcripts"))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"transcripts": transcripts, "count": len(transcripts)})
}
