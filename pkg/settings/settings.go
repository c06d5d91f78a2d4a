// Package settings holds the runtime-mutable configuration of the assistant:
// the model endpoint, rate caps, course API bindings and the reminder
// schedule. Settings live in a YAML file and are re-read by callers for every
// agent they build.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/wilhg/daybook/pkg/courses"
	"github.com/wilhg/daybook/pkg/ratelimit"
)

// Providers accepted in Model.Provider.
var Providers = []string{"openai", "gemini", "fake"}

const redacted = "********"

// Model selects and tunes the language model.
type Model struct {
	Provider    string  `yaml:"provider" json:"provider"`
	BaseURL     string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Name        string  `yaml:"name" json:"name"`
	APIKey      string  `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

// Courses configures the course API.
type Courses struct {
	APIURL   string                    `yaml:"api_url,omitempty" json:"api_url,omitempty"`
	Bindings map[int64]courses.Binding `yaml:"bindings,omitempty" json:"bindings,omitempty"`
}

// Settings is the whole file.
type Settings struct {
	Model    Model            `yaml:"model" json:"model"`
	Limits   ratelimit.Limits `yaml:"limits" json:"limits"`
	Courses  Courses          `yaml:"courses" json:"courses"`
	Timezone string           `yaml:"timezone" json:"timezone"`
	// ReminderSchedule is a cron spec, e.g. "@every 1m".
	ReminderSchedule string `yaml:"reminder_schedule" json:"reminder_schedule"`
}

// Default is used when no settings file exists yet.
func Default() Settings {
	return Settings{
		Model: Model{
			Provider:    "openai",
			Name:        "gpt-5-nano",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Limits:           ratelimit.Limits{PerMinute: 10, PerDay: 200},
		Timezone:         "Local",
		ReminderSchedule: "@every 1m",
	}
}

// Validate checks every field that a bad value would break at runtime.
func (s Settings) Validate() error {
	var errs []error
	known := false
	for _, p := range Providers {
		known = known || s.Model.Provider == p
	}
	if !known {
		errs = append(errs, fmt.Errorf("model.provider must be one of %s", strings.Join(Providers, ", ")))
	}
	if strings.TrimSpace(s.Model.Name) == "" {
		errs = append(errs, errors.New("model.name is required"))
	}
	if s.Model.Temperature < 0 || s.Model.Temperature > 2 {
		errs = append(errs, errors.New("model.temperature must be between 0 and 2"))
	}
	if s.Model.MaxTokens < 0 {
		errs = append(errs, errors.New("model.max_tokens must not be negative"))
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone: %w", err))
	}
	if _, err := cron.ParseStandard(s.ReminderSchedule); err != nil {
		errs = append(errs, fmt.Errorf("invalid reminder_schedule: %w", err))
	}
	return errors.Join(errs...)
}

// Location is the configured time zone, time.Local if it cannot be loaded.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ModelConfig is the factory configuration for llm.New.
func (s Settings) ModelConfig() map[string]any {
	cfg := map[string]any{"model": s.Model.Name}
	if s.Model.APIKey != "" {
		cfg["api_key"] = s.Model.APIKey
	}
	if s.Model.BaseURL != "" {
		cfg["base_url"] = s.Model.BaseURL
	}
	return cfg
}

// Redacted masks secrets for display.
func (s Settings) Redacted() Settings {
	out := s
	if out.Model.APIKey != "" {
		out.Model.APIKey = redacted
	}
	if len(s.Courses.Bindings) > 0 {
		out.Courses.Bindings = make(map[int64]courses.Binding, len(s.Courses.Bindings))
		for id, b := range s.Courses.Bindings {
			if b.APIKey != "" {
				b.APIKey = redacted
			}
			out.Courses.Bindings[id] = b
		}
	}
	return out
}

// keepSecrets restores masked secrets in s from prev, so a redacted document
// can be sent back unchanged.
func (s Settings) keepSecrets(prev Settings) Settings {
	if s.Model.APIKey == redacted {
		s.Model.APIKey = prev.Model.APIKey
	}
	for id, b := range s.Courses.Bindings {
		if b.APIKey == redacted {
			b.APIKey = prev.Courses.Bindings[id].APIKey
			s.Courses.Bindings[id] = b
		}
	}
	return s
}

// Load reads a settings file. Environment variables in it are expanded.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	s := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// Write validates s and replaces the file atomically.
func Write(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	content, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Store serves the current settings and persists updates. It implements
// ratelimit.LimitsSource and courses.Bindings.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// Open loads path, or writes initial to it when it does not exist. An empty
// path keeps the settings in memory only.
func Open(path string, initial Settings) (*Store, error) {
	if path == "" {
		if err := initial.Validate(); err != nil {
			return nil, err
		}
		return &Store{current: initial}, nil
	}
	s, err := Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Write(path, initial); err != nil {
			return nil, err
		}
		s = initial
	case err != nil:
		return nil, err
	default:
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("settings %s: %w", path, err)
		}
	}
	return &Store{path: path, current: s}, nil
}

func (st *Store) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Update validates and stores next. Masked secrets keep their current value.
func (st *Store) Update(next Settings) (Settings, error) {
	return st.apply(func(cur Settings) Settings { return next.keepSecrets(cur) })
}

// apply derives the next settings from the current ones under the write lock.
func (st *Store) apply(fn func(Settings) Settings) (Settings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	next := fn(st.current)
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if st.path != "" {
		if err := Write(st.path, next); err != nil {
			return Settings{}, err
		}
	}
	st.current = next
	return next, nil
}

func (st *Store) Limits(context.Context) (ratelimit.Limits, error) {
	return st.Get().Limits, nil
}

// Binding returns the course API credential of a user. A binding without its
// own URL uses the configured course API URL.
func (st *Store) Binding(_ context.Context, userID int64) (courses.Binding, bool, error) {
	s := st.Get()
	b, ok := s.Courses.Bindings[userID]
	if !ok || b.APIKey == "" {
		return courses.Binding{}, false, nil
	}
	if b.URL == "" {
		b.URL = s.Courses.APIURL
	}
	return b, true, nil
}

// Bind stores or replaces the course API credential of a user.
func (st *Store) Bind(userID int64, b courses.Binding) error {
	_, err := st.apply(func(cur Settings) Settings {
		bindings := make(map[int64]courses.Binding, len(cur.Courses.Bindings)+1)
		for k, v := range cur.Courses.Bindings {
			bindings[k] = v
		}
		bindings[userID] = b
		cur.Courses.Bindings = bindings
		return cur
	})
	return err
}
