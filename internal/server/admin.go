package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/wilhg/daybook/pkg/courses"
	"github.com/wilhg/daybook/pkg/errmodel"
	"github.com/wilhg/daybook/pkg/prompt"
	"github.com/wilhg/daybook/pkg/store"
)

// Secrets are always masked on the way out; sending a masked value back
// keeps the stored secret.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Settings.Get().Redacted())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	next := s.cfg.Settings.Get()
	if err := decode(w, r, &next); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	saved, err := s.cfg.Settings.Update(next)
	if err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("invalid_settings", err.Error(), nil))
		return
	}
	s.log.Info("settings updated", "provider", saved.Model.Provider, "model", saved.Model.Name)
	s.writeJSON(w, http.StatusOK, saved.Redacted())
}

// handleBindCourses stores the caller's course API credential.
func (s *Server) handleBindCourses(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	var b courses.Binding
	if err := decode(w, r, &b); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	if b.APIKey == "" {
		errmodel.WriteHTTP(w, r, errmodel.Validation("missing_api_key", "api_key is required", nil))
		return
	}
	if err := s.cfg.Settings.Bind(user, b); err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("invalid_settings", err.Error(), nil))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	version, err := intParam(r, "version", 0)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	p, ok := s.cfg.Prompts.Get(prompt.AssistantName, version)
	if !ok {
		errmodel.WriteHTTP(w, r, errmodel.NotFound("prompt version not found", map[string]any{"version": version}))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"prompt":   p,
		"versions": len(s.cfg.Prompts.List(prompt.AssistantName)),
	})
}

type promptRequest struct {
	Body string            `json:"body"`
	Meta map[string]string `json:"meta,omitempty"`
}

// handlePutPrompt saves a new version after checking it renders with the
// data the orchestrator provides.
func (s *Server) handlePutPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decode(w, r, &req); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	p := prompt.Prompt{Name: prompt.AssistantName, Body: req.Body, Meta: req.Meta}
	if issues := prompt.Lint(p); len(issues) > 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": prompt.ErrLintFailed.Error(), "issues": issues})
		return
	}
	if _, err := prompt.Render(p, prompt.NewAssistantData(s.cfg.Now(), "", nil)); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  prompt.ErrLintFailed.Error(),
			"issues": []prompt.Issue{{Rule: "template.render", Message: err.Error()}},
		})
		return
	}
	saved, issues, err := s.cfg.Prompts.Save(p)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "issues": issues})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"prompt": saved})
}

func (s *Server) handlePromptDiff(w http.ResponseWriter, r *http.Request) {
	latest := len(s.cfg.Prompts.List(prompt.AssistantName))
	from, err := intParam(r, "from", latest-1)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	to, err := intParam(r, "to", latest)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.cfg.Prompts.Diff(prompt.AssistantName, from, to)))
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	notes, err := s.cfg.Store.ListNotifications(r.Context(), user, unread, limit)
	if err != nil {
		errmodel.WriteHTTP(w, r, errmodel.System("store", "failed to list notifications", nil, err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notifications": notes, "count": len(notes)})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_id", "notification id must be an integer", nil))
		return
	}
	if err := s.cfg.Store.MarkRead(r.Context(), user, id); err != nil {
		errmodel.WriteHTTP(w, r, notFoundOr(err, "notification not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errmodel.Validation("bad_query", name+" must be an integer", map[string]any{"value": raw})
	}
	return n, nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return errmodel.NotFound(msg, nil)
	}
	return errmodel.System("store", "store operation failed", nil, err)
}
