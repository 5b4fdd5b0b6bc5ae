package api

import (
	"net/http"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/council"
)

type consensusRequest struct {
	SessionID   string   `json:"sessionId"`
	Prompt      string   `json:"prompt"`
	Models      []string `json:"models"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"maxTokens"`
}

type consensusResponse struct {
	council.Result
	ExecutionTime int64 `json:"executionTime"`
}

func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	var req consensusRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SessionID == "" {
		s.writeError(w, r, mcp.NewError(mcp.KindInvalidRequest, "sessionId is required"))
		return
	}
	sess, err := s.deps.Sessions.GetSession(req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Council.GetConsensus(r.Context(), sess, council.Request{
		Prompt:      req.Prompt,
		Models:      req.Models,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, consensusResponse{Result: res, ExecutionTime: res.ExecutionTime.Milliseconds()})
}

func (s *Server) handleCouncilInfo(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"message": "Council API available",
		"endpoints": map[string]string{
			"consensus": "POST /api/council/consensus",
		},
		"strategies": []council.Strategy{
			council.StrategySingleModel,
			council.StrategyMajorityVote,
			council.StrategyLongestResponse,
		},
		"defaults": map[string]any{
			"temperature": s.deps.CouncilTemperature,
			"maxTokens":   s.deps.CouncilMaxTokens,
		},
	})
}
