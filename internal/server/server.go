// Package server is the HTTP surface of the assistant: streaming chat over SSE
// and WebSocket, runtime settings, the assistant prompt, notifications and
// the MCP endpoint.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/daybook/pkg/adapters/llm"
	"github.com/wilhg/daybook/pkg/agent/tools"
	"github.com/wilhg/daybook/pkg/conversation"
	"github.com/wilhg/daybook/pkg/courses"
	"github.com/wilhg/daybook/pkg/errmodel"
	"github.com/wilhg/daybook/pkg/mcpserver"
	"github.com/wilhg/daybook/pkg/prompt"
	"github.com/wilhg/daybook/pkg/ratelimit"
	"github.com/wilhg/daybook/pkg/settings"
	"github.com/wilhg/daybook/pkg/store"
)

// UserHeader carries the acting user id.
const UserHeader = "X-User-ID"

// ModelFunc builds the model for one agent from a settings snapshot.
type ModelFunc func(ctx context.Context, s settings.Settings) (llm.LLM, error)

// Config wires the server's collaborators. Store, Settings and Prompts are
// required.
type Config struct {
	Store    store.Store
	Settings *settings.Store
	Prompts  *prompt.Store
	// Limiter defaults to one reading its caps from Settings.
	Limiter *ratelimit.Limiter
	// Courses defaults to the HTTP course API bound through Settings.
	Courses courses.Source
	// NewModel defaults to llm.New with the configured provider.
	NewModel  ModelFunc
	Estimator conversation.TokenEstimator
	Logger    *slog.Logger
	KeepAlive time.Duration
	Now       func() time.Time
	// MCPPermissions is what MCP clients may call. Nil means tools.ReadOnly;
	// the chat assistant is not restricted.
	MCPPermissions []string
}

// Server routes requests. Build it with New.
type Server struct {
	cfg      Config
	log      *slog.Logger
	journal  *conversation.Journal
	sessions *conversation.Sessions
	mux      *http.ServeMux
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(cfg.Settings)
	}
	if cfg.Courses == nil {
		cfg.Courses = courses.NewHTTPSource("", cfg.Settings)
	}
	if cfg.NewModel == nil {
		cfg.NewModel = func(ctx context.Context, s settings.Settings) (llm.LLM, error) {
			return llm.New(ctx, s.Model.Provider, s.ModelConfig())
		}
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MCPPermissions == nil {
		cfg.MCPPermissions = tools.ReadOnly
	}
	j := conversation.NewJournal(cfg.Store)
	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		journal:  j,
		sessions: conversation.NewSessions(j),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.mux.HandleFunc("POST /api/assistant/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/assistant/chat/sync", s.handleChatSync)
	s.mux.HandleFunc("GET /api/assistant/ws", s.handleWebSocket)

	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("PUT /api/settings/courses", s.handleBindCourses)

	s.mux.HandleFunc("GET /api/prompts/assistant", s.handleGetPrompt)
	s.mux.HandleFunc("PUT /api/prompts/assistant", s.handlePutPrompt)
	s.mux.HandleFunc("GET /api/prompts/assistant/diff", s.handlePromptDiff)

	s.mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	s.mux.HandleFunc("POST /api/notifications/{id}/read", s.handleMarkRead)

	s.mux.Handle("/mcp", mcpserver.Handler(s.mcpRegistry, s.log))
}

// Handler is the traced root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.withLogging(s.mux), "daybook")
}

// Limiter exposes the admission limiter, e.g. for periodic pruning.
func (s *Server) Limiter() *ratelimit.Limiter { return s.cfg.Limiter }

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

// userID reads the acting user. Authentication happens in front of this
// service.
func userID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		return 0, errmodel.Policy("unauthorized", "missing "+UserHeader+" header", nil)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errmodel.Policy("unauthorized", "invalid "+UserHeader+" header", map[string]any{"value": raw})
	}
	return id, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to write JSON response", "error", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errmodel.Validation("bad_json", "invalid JSON body: "+err.Error(), nil)
	}
	return nil
}
