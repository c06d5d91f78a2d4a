// Package courses fetches a user's class schedule from the school's course API.
package courses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Course is one class meeting. Periods is a period range such as "1-2".
type Course struct {
	CourseName string `json:"course_name"`
	Classroom  string `json:"classroom,omitempty"`
	Date       string `json:"date"`
	Teacher    string `json:"teacher,omitempty"`
	Periods    string `json:"periods"`
}

// ErrNotBound means the user has not bound a course API key.
var ErrNotBound = errors.New("no course API key is bound for this user; bind one in settings first")

// Source returns a user's courses, optionally limited to one date ("YYYY-MM-DD").
type Source interface {
	Courses(ctx context.Context, userID int64, date string) ([]Course, error)
}

// Binding is the per-user credential for the course API.
type Binding struct {
	APIKey string `json:"api_key" yaml:"api_key"`
	// URL overrides the source's default endpoint.
	URL string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
}

// Bindings looks up the binding of a user.
type Bindings interface {
	Binding(ctx context.Context, userID int64) (Binding, bool, error)
}

// StaticBindings is a fixed, concurrency-safe binding table.
type StaticBindings struct {
	mu sync.RWMutex
	m  map[int64]Binding
}

// NewStaticBindings copies m into a new table.
func NewStaticBindings(m map[int64]Binding) *StaticBindings {
	sb := &StaticBindings{m: map[int64]Binding{}}
	for k, v := range m {
		sb.m[k] = v
	}
	return sb
}

func (s *StaticBindings) Binding(_ context.Context, userID int64) (Binding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.m[userID]
	return b, ok && b.APIKey != "", nil
}

// Set binds or replaces a user's credential.
func (s *StaticBindings) Set(userID int64, b Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = b
}

// HTTPSource calls the course API with the user's key in the X-API-Key header.
type HTTPSource struct {
	client     *http.Client
	bindings   Bindings
	defaultURL string
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the HTTP client. Its transport is used as is.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// NewHTTPSource returns a source for defaultURL. Requests are traced with
// otelhttp and time out after 10 seconds.
func NewHTTPSource(defaultURL string, bindings Bindings, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		client:     &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		bindings:   bindings,
		defaultURL: defaultURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type envelope struct {
	Data []Course `json:"data"`
}

func (s *HTTPSource) Courses(ctx context.Context, userID int64, date string) ([]Course, error) {
	b, ok, err := s.bindings.Binding(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("course binding: %w", err)
	}
	if !ok {
		return nil, ErrNotBound
	}
	endpoint := b.URL
	if endpoint == "" {
		endpoint = s.defaultURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("course api url: %w", err)
	}
	if date != "" {
		q := u.Query()
		q.Set("date", date)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", b.APIKey)
	req.Header.Set("Accept", "application/json")
	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("course api unreachable: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 200))
		return nil, fmt.Errorf("course api error: HTTP %d: %s", res.StatusCode, body)
	}
	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("course api response: %w", err)
	}
	return filterDate(env.Data, date), nil
}

// StaticSource serves fixed schedules; handy for development and tests.
type StaticSource map[int64][]Course

func (s StaticSource) Courses(_ context.Context, userID int64, date string) ([]Course, error) {
	return filterDate(s[userID], date), nil
}

// filterDate keeps courses on date; the upstream API does not always honor
// the query parameter.
func filterDate(cs []Course, date string) []Course {
	out := make([]Course, 0, len(cs))
	for _, c := range cs {
		if date == "" || c.Date == date {
			out = append(out, c)
		}
	}
	return out
}
