package api

import (
	"net/http"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/llm"
)

type keyRequest struct {
	ServiceName string `json:"serviceName"`
	APIKey      string `json:"apiKey"`
}

func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ServiceName == "" || req.APIKey == "" {
		s.writeError(w, r, mcp.NewError(mcp.KindInvalidRequest, "serviceName and apiKey are required"))
		return
	}
	if err := s.deps.Sessions.SetKey(r.Context(), req.ServiceName, req.APIKey); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"message": "API key for \"" + req.ServiceName + "\" saved",
		"service": req.ServiceName,
	})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	req := keyRequest{ServiceName: r.URL.Query().Get("service")}
	if req.ServiceName == "" {
		if err := decode(r, &req, true); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.ServiceName == "" {
		s.writeError(w, r, mcp.NewError(mcp.KindInvalidRequest, "serviceName is required"))
		return
	}
	removed, err := s.deps.Sessions.RemoveKey(r.Context(), req.ServiceName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"service": req.ServiceName, "removed": removed})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service == "" {
		s.writeError(w, r, mcp.NewError(mcp.KindInvalidRequest, "service query parameter is required"))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"service": service, "hasKey": s.deps.Sessions.HasKey(service)})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	services := s.deps.Sessions.ListServices()
	writeData(w, http.StatusOK, map[string]any{"services": services, "count": len(services)})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := []llm.Model{}
	if s.deps.Directory != nil {
		models = s.deps.Directory.Models()
	}
	type modelInfo struct {
		Name    string `json:"name"`
		Service string `json:"service"`
		HasKey  bool   `json:"hasKey"`
	}
	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, modelInfo{Name: m.Name, Service: m.Service, HasKey: s.deps.Sessions.HasKey(m.Service)})
	}
	writeData(w, http.StatusOK, map[string]any{"models": out, "count": len(out)})
}
