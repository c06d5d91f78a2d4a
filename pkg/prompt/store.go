// Package prompt stores versioned prompt templates, checks them before they
// are saved, and renders them for a model call.
package prompt

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"text/template"
)

// Prompt represents a versioned prompt artifact. Body is a text/template.
type Prompt struct {
	Name    string            `json:"name"`
	Version int               `json:"version"`
	Body    string            `json:"body"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Issue describes a lint finding.
type Issue struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

var secretMarkers = []string{"aws_secret_access_key", "begin private key", "sk-", "x-api-key:"}

// Lint runs basic checks on prompts.
func Lint(p Prompt) []Issue {
	var issues []Issue
	if p.Name == "" {
		issues = append(issues, Issue{Rule: "name.required", Message: "name is required"})
	}
	if strings.TrimSpace(p.Body) == "" {
		issues = append(issues, Issue{Rule: "body.required", Message: "body is empty"})
	}
	lower := strings.ToLower(p.Body)
	for _, m := range secretMarkers {
		if strings.Contains(lower, m) {
			issues = append(issues, Issue{Rule: "security.secrets", Message: "body appears to contain secrets-like content"})
			break
		}
	}
	if _, err := parse(p); err != nil {
		issues = append(issues, Issue{Rule: "template.parse", Message: err.Error()})
	}
	return issues
}

// Store is an in-memory versioned prompt store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]Prompt // name -> versions (ascending)
}

func NewStore() *Store { return &Store{data: make(map[string][]Prompt)} }

var ErrLintFailed = errors.New("prompt failed lint checks")

// Save adds a new version. If name exists, version increments by 1; otherwise starts at 1.
// Lint failures return ErrLintFailed with issues via out param.
func (s *Store) Save(p Prompt) (Prompt, []Issue, error) {
	issues := Lint(p)
	if len(issues) > 0 {
		return Prompt{}, issues, ErrLintFailed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.data[p.Name]
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1].Version + 1
	}
	np := Prompt{Name: p.Name, Version: next, Body: p.Body, Meta: p.Meta}
	s.data[p.Name] = append(versions, np)
	return np, nil, nil
}

// Get retrieves specific version; if version==0 returns latest.
func (s *Store) Get(name string, version int) (Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.data[name]
	if len(versions) == 0 {
		return Prompt{}, false
	}
	if version <= 0 {
		return versions[len(versions)-1], true
	}
	i := sort.Search(len(versions), func(i int) bool { return versions[i].Version >= version })
	if i < len(versions) && versions[i].Version == version {
		return versions[i], true
	}
	return Prompt{}, false
}

// List returns all versions for a name in ascending order.
func (s *Store) List(name string) []Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Prompt(nil), s.data[name]...)
}

// Seed saves p as version 1 when name has no versions yet.
func (s *Store) Seed(p Prompt) error {
	if _, ok := s.Get(p.Name, 0); ok {
		return nil
	}
	_, _, err := s.Save(p)
	return err
}

func parse(p Prompt) (*template.Template, error) {
	return template.New(p.Name).Option("missingkey=error").Parse(p.Body)
}

// Render executes the prompt body with data. Missing map keys are errors.
func Render(p Prompt, data any) (string, error) {
	t, err := parse(p)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
