// Package server exposes chat sessions, direct tool invocation and the MCP
// transport over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbangrammar/demoland-assistant/internal/chat"
	"github.com/urbangrammar/demoland-assistant/internal/toolkit"
)

// Name and Version identify the MCP server to clients.
const (
	Name    = "demoland-assistant"
	Version = "0.1.0"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// MCP mounts the streamable HTTP transport at /mcp.
	MCP bool
}

// Server routes HTTP requests to the tool registry and chat sessions.
type Server struct {
	tools    *toolkit.Registry
	sessions *chat.Store
	router   *chi.Mux
	log      *zap.Logger
}

// New builds a Server and mounts its routes. sessions may be nil, in which
// case the chat routes answer 503.
func New(tools *toolkit.Registry, sessions *chat.Store, opts Options) *Server {
	s := &Server{
		tools:    tools,
		sessions: sessions,
		router:   chi.NewRouter(),
		log:      zap.L().With(zap.String("component", "server")),
	}
	s.mount(opts)
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) mount(opts Options) {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Mcp-Session-Id"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/tools", func(r chi.Router) {
		r.Get("/", s.handleListTools)
		r.Post("/{name}", s.handleInvokeTool)
	})

	s.router.Route("/chat", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Post("/{id}", s.handleSend)
		r.Get("/{id}", s.handleHistory)
		r.Delete("/{id}", s.handleDeleteSession)
	})

	if opts.MCP {
		mcp := mcpserver.NewMCPServer(Name, Version, mcpserver.WithToolCapabilities(true))
		s.tools.Mount(mcp)
		s.router.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcp, mcpserver.WithStateLess(true)))
	}
}

// ListenAndServe serves on the given port until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	tools := s.tools.Tools()
	out := make([]toolInfo, len(tools))
	for i, t := range tools {
		out[i] = toolInfo{Name: t.Name, Description: t.Description, InputSchema: t.Definition.InputSchema}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.tools.Lookup(name); !ok {
		writeJSON(w, http.StatusNotFound, toolkit.NewErrorResponse(&toolkit.SchemaValidationError{Tool: name, Reason: "unknown tool"}))
		return
	}

	args := map[string]any{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			s.writeToolError(w, name, &toolkit.SchemaValidationError{Tool: name, Reason: "request body must be a JSON object"})
			return
		}
	}

	text, err := s.tools.Invoke(r.Context(), name, args)
	if err != nil {
		s.writeToolError(w, name, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (s *Server) writeToolError(w http.ResponseWriter, name string, err error) {
	status := toolStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("tool failed", zap.String("tool", name), zap.Error(err))
	}
	writeJSON(w, status, toolkit.NewErrorResponse(err))
}

// toolStatus maps a tool failure onto an HTTP status.
func toolStatus(err error) int {
	switch toolkit.ErrorCode(err) {
	case toolkit.CodeSchemaValidation:
		return http.StatusBadRequest
	case toolkit.CodeUnknownRegion, toolkit.CodeInvalidGeometryInput, toolkit.CodeUnknownSignatureCode:
		return http.StatusUnprocessableEntity
	case toolkit.CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case toolkit.CodeNoActiveScenario:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// turnStatus maps a failed chat turn onto an HTTP status and error code.
// Failures inside this service answer 500; a failing language model answers
// 502.
func turnStatus(err error) (int, string) {
	var toolErr *chat.ToolError
	switch {
	case errors.As(err, &toolErr):
		return http.StatusInternalServerError, toolkit.ErrorCode(toolErr.Err)
	case errors.Is(err, chat.ErrToolLoopLimit):
		return http.StatusInternalServerError, toolkit.CodeInternal
	case toolkit.ErrorCode(err) != toolkit.CodeInternal:
		return http.StatusInternalServerError, toolkit.ErrorCode(err)
	default:
		return http.StatusBadGateway, "model_error"
	}
}

type sessionResponse struct {
	ID    string     `json:"id"`
	Reply chat.Reply `json:"reply"`
}

type sendRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "chat_disabled", "chat is not configured")
		return
	}
	sess, greeting := s.sessions.Create()
	s.log.Info("session created", zap.String("session", sess.ID))
	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, Reply: greeting})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "chat_disabled", "chat is not configured")
		return nil, false
	}
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_session", fmt.Sprintf("no session %q", id))
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", `body must be {"text": "..."}`)
		return
	}

	reply, err := sess.Send(r.Context(), req.Text)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.log.Error("chat turn failed", zap.String("session", sess.ID), zap.Error(err))
		status, code := turnStatus(err)
		writeError(w, status, code, "the assistant could not answer")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.History())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.sessions == nil || !s.sessions.Delete(id) {
		writeError(w, http.StatusNotFound, "unknown_session", fmt.Sprintf("no session %q", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
