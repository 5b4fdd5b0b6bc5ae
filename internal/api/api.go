// Package api exposes the client over HTTP. Every JSON response uses the envelope
// {"success": true, "data": ...} or {"success": false, "error": {"code", "message",
// "details"}}.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nakad-pixel/Mcpclient/internal/council"
	"github.com/nakad-pixel/Mcpclient/internal/events"
	"github.com/nakad-pixel/Mcpclient/internal/gateway"
	"github.com/nakad-pixel/Mcpclient/internal/history"
	"github.com/nakad-pixel/Mcpclient/internal/llm"
	"github.com/nakad-pixel/Mcpclient/internal/orchestrator"
	"github.com/nakad-pixel/Mcpclient/internal/session"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// Deps are the services the handlers call.
type Deps struct {
	Sessions      *session.Store
	Gateway       *gateway.Gateway
	Council       *council.Engine
	Conversations *orchestrator.Manager
	Directory     *llm.Directory
	History       history.Recorder
	Events        *events.Broker
	Logger        zerolog.Logger
	Version       string

	// CouncilTemperature and CouncilMaxTokens are reported by GET /api/council.
	CouncilTemperature float64
	CouncilMaxTokens   int
}

// Server routes API requests.
type Server struct {
	deps    Deps
	router  chi.Router
	started time.Time
	now     func() time.Time
}

// New creates the API server.
func New(deps Deps) *Server {
	if deps.History == nil {
		deps.History = history.Nop{}
	}
	s := &Server{deps: deps, now: time.Now}
	s.started = s.now()
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.Method+" "+r.URL.Path, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "INVALID_REQUEST", "method not allowed", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/mcp", func(r chi.Router) {
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
			r.Get("/tools", s.handleTools)
			r.Post("/tools", s.handleTools)
			r.Post("/call", s.handleCall)
			r.Get("/sessions", s.handleSessions)
		})

		r.Route("/council", func(r chi.Router) {
			r.Get("/", s.handleCouncilInfo)
			r.Post("/consensus", s.handleConsensus)
		})

		r.Route("/llm", func(r chi.Router) {
			r.Get("/key", s.handleGetKey)
			r.Post("/key", s.handleSetKey)
			r.Delete("/key", s.handleDeleteKey)
			r.Get("/services", s.handleServices)
			r.Get("/models", s.handleModels)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", s.handleCreateChat)
			r.Get("/", s.handleListChats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetChat)
				r.Delete("/", s.handleDeleteChat)
				r.Post("/messages", s.handleSubmit)
				r.Post("/reset", s.handleReset)
				r.Get("/events", s.handleChatEvents)
				r.Get("/transcripts", s.handleTranscripts)
			})
		})

		r.Get("/events", s.handleEvents)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.deps.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", s.now().Sub(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// cors allows browser front ends on any origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC(),
		"uptime":    s.now().Sub(s.started).Seconds(),
		"version":   s.deps.Version,
		"sessions":  s.deps.Sessions.Count(),
	}
	if s.deps.Conversations != nil {
		data["conversations"] = len(s.deps.Conversations.IDs())
	}
	if s.deps.Events != nil {
		data["subscribers"] = s.deps.Events.Subscribers()
	}
	writeData(w, http.StatusOK, data)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "events are disabled", nil)
		return
	}
	s.deps.Events.ServeHTTP(w, r)
}

func (s *Server) publish(typ, conversation string, data any) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.Publish(events.Event{Type: typ, ConversationID: conversation, Data: data})
}
