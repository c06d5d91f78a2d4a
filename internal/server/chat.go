package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/wilhg/daybook/pkg/agent"
	"github.com/wilhg/daybook/pkg/agent/tools"
	"github.com/wilhg/daybook/pkg/conversation"
	"github.com/wilhg/daybook/pkg/errmodel"
	"github.com/wilhg/daybook/pkg/prompt"
	"github.com/wilhg/daybook/pkg/relay"
	"github.com/wilhg/daybook/pkg/runtime"
	"github.com/wilhg/daybook/pkg/settings"
)

// MaxMessageLength is the longest accepted chat message in characters.
const MaxMessageLength = 2000

// DefaultSession is used when a request names no session.
const DefaultSession = "default"

// SessionHeader echoes the session a streamed turn ran in.
const SessionHeader = "X-Session-ID"

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

func validateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return errmodel.Validation("empty_message", "message must not be empty", nil)
	}
	if n := utf8.RuneCountInString(msg); n > MaxMessageLength {
		return errmodel.Validation("message_too_long", "message is too long", map[string]any{"length": n, "max": MaxMessageLength})
	}
	return nil
}

// admit validates the message and charges it against the user's caps. It
// runs before any model or tool is built.
func (s *Server) admit(ctx context.Context, user int64, msg string) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	return s.cfg.Limiter.Allow(ctx, user)
}

// readChat decodes and admits a chat request; on failure the error response
// has been written.
func (s *Server) readChat(w http.ResponseWriter, r *http.Request) (int64, chatRequest, bool) {
	user, err := userID(r)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return 0, chatRequest{}, false
	}
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return 0, chatRequest{}, false
	}
	if req.SessionID == "" {
		req.SessionID = DefaultSession
	}
	if err := s.admit(r.Context(), user, req.Message); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return 0, chatRequest{}, false
	}
	return user, req, true
}

func (s *Server) registry(user int64, st settings.Settings, opts ...agent.RegistryOption) (*agent.Registry, error) {
	reg := agent.NewRegistry(opts...)
	err := tools.Register(reg, user, tools.Deps{
		Tasks:    s.cfg.Store,
		Ledger:   s.cfg.Store,
		Courses:  s.cfg.Courses,
		Now:      s.cfg.Now,
		Location: st.Location(),
	})
	if err != nil {
		return nil, errmodel.System("tools", "failed to register tools", nil, err)
	}
	return reg, nil
}

func (s *Server) mcpRegistry(r *http.Request) (*agent.Registry, error) {
	user, err := userID(r)
	if err != nil {
		return nil, err
	}
	return s.registry(user, s.cfg.Settings.Get(), agent.WithAllowedPermissions(s.cfg.MCPPermissions...))
}

// agent builds an orchestrator from the current settings and takes the
// session's turn lock. Call release when the turn ends.
func (s *Server) agent(ctx context.Context, user int64, session string) (*runtime.Orchestrator, func(), error) {
	st := s.cfg.Settings.Get()
	model, err := s.cfg.NewModel(ctx, st)
	if err != nil {
		return nil, nil, errmodel.Model("model_unavailable", "the language model is not available", map[string]any{"provider": st.Model.Provider}, err)
	}
	reg, err := s.registry(user, st)
	if err != nil {
		return nil, nil, err
	}
	key := conversation.Key(user, session)
	state, release, err := s.sessions.Acquire(ctx, key)
	if err != nil {
		return nil, nil, errmodel.System("session", "failed to load the conversation", map[string]any{"session": session}, err)
	}

	temperature := st.Model.Temperature
	opts := []runtime.Option{
		runtime.WithClock(s.cfg.Now),
		runtime.WithLocation(st.Location()),
		runtime.WithLogger(s.log.With("user", user, "session", session)),
		runtime.WithJournal(s.journal, key),
		runtime.WithModelParams(st.Model.Name, &temperature, st.Model.MaxTokens),
	}
	if p, ok := s.cfg.Prompts.Get(prompt.AssistantName, 0); ok {
		opts = append(opts, runtime.WithPrompt(p))
	}
	if s.cfg.Estimator != nil {
		opts = append(opts, runtime.WithTokenEstimator(s.cfg.Estimator))
	}
	return runtime.NewOrchestrator(model, reg, state, opts...), release, nil
}

// handleChat streams one turn as server-sent events.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user, req, ok := s.readChat(w, r)
	if !ok {
		return
	}
	orch, release, err := s.agent(r.Context(), user, req.SessionID)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	defer release()

	w.Header().Set(SessionHeader, req.SessionID)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sink := cancelOnFailure{Sink: relay.NewSSESink(w, 2*s.cfg.KeepAlive), cancel: cancel}
	if err := relay.Relay(ctx, orch.Process(ctx, req.Message), sink, s.cfg.KeepAlive); err != nil {
		s.log.Debug("chat stream ended early", "user", user, "error", err)
	}
}

// handleChatSync runs one turn and returns the whole answer.
func (s *Server) handleChatSync(w http.ResponseWriter, r *http.Request) {
	user, req, ok := s.readChat(w, r)
	if !ok {
		return
	}
	orch, release, err := s.agent(r.Context(), user, req.SessionID)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	defer release()

	var b strings.Builder
	for frag := range orch.Process(r.Context(), req.Message) {
		b.WriteString(frag)
	}
	s.writeJSON(w, http.StatusOK, chatResponse{Response: b.String(), SessionID: req.SessionID})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket runs one turn per inbound {"message": ...} frame, one at a
// time. Admission failures are reported as error frames and keep the
// connection open.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	session := r.URL.Query().Get("session_id")
	if session == "" {
		session = DefaultSession
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()
	sink := relay.NewWebSocketSink(conn, 2*s.cfg.KeepAlive)
	ctx := r.Context()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			err = errmodel.Validation("bad_json", "invalid JSON frame: "+err.Error(), nil)
			if s.writeErrorFrame(sink, err) != nil {
				return
			}
			continue
		}
		if err := s.admit(ctx, user, req.Message); err != nil {
			if s.writeErrorFrame(sink, err) != nil {
				return
			}
			continue
		}
		if err := s.wsTurn(ctx, user, session, req.Message, sink); err != nil {
			s.log.Debug("websocket turn ended early", "user", user, "error", err)
			return
		}
	}
}

func (s *Server) wsTurn(ctx context.Context, user int64, session, msg string, sink *relay.WebSocketSink) error {
	orch, release, err := s.agent(ctx, user, session)
	if err != nil {
		return s.writeErrorFrame(sink, err)
	}
	defer release()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return relay.Relay(ctx, orch.Process(ctx, msg), cancelOnFailure{Sink: sink, cancel: cancel}, s.cfg.KeepAlive)
}

func (s *Server) writeErrorFrame(sink *relay.WebSocketSink, err error) error {
	ce := errmodel.From(err)
	return sink.WriteFrame(relay.Frame{Error: ce.Message, Code: ce.Code})
}

// cancelOnFailure ends the turn once the client can no longer be written to,
// so Relay is not left waiting on a turn nobody will read.
type cancelOnFailure struct {
	relay.Sink
	cancel context.CancelFunc
}

func (c cancelOnFailure) Fragment(text string) error { return c.check(c.Sink.Fragment(text)) }
func (c cancelOnFailure) KeepAlive() error           { return c.check(c.Sink.KeepAlive()) }
func (c cancelOnFailure) Done() error                { return c.check(c.Sink.Done()) }

func (c cancelOnFailure) check(err error) error {
	if err != nil {
		c.cancel()
	}
	return err
}
