// Package ratelimit admits or rejects assistant requests per user with a
// sliding one-minute window and a calendar-day quota.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wilhg/daybook/pkg/errmodel"
)

// Limits are the caps in force for one check. A cap <= 0 is unlimited.
type Limits struct {
	PerMinute int `json:"per_minute" yaml:"per_minute"`
	PerDay    int `json:"per_day" yaml:"per_day"`
}

// LimitsSource supplies the current caps. It is consulted on every check so
// configuration changes apply to the next request.
type LimitsSource interface {
	Limits(ctx context.Context) (Limits, error)
}

// StaticLimits is a LimitsSource with fixed caps.
type StaticLimits Limits

func (s StaticLimits) Limits(context.Context) (Limits, error) { return Limits(s), nil }

// window is the admission history of one user, oldest first. Timestamps are
// kept since the earlier of local midnight and one minute ago, so both caps
// can be evaluated.
type window struct {
	mu    sync.Mutex
	times []time.Time
}

// Limiter holds the per-user windows. The map lock only guards lookups; each
// window has its own lock so users never contend with each other.
type Limiter struct {
	limits LimitsSource
	now    func() time.Time
	loc    *time.Location

	mu      sync.Mutex
	windows map[int64]*window
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLocation sets the zone whose midnight starts a new day.
func WithLocation(loc *time.Location) Option {
	return func(l *Limiter) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// New returns a Limiter that reads its caps from limits on every check.
func New(limits LimitsSource, opts ...Option) *Limiter {
	l := &Limiter{limits: limits, now: time.Now, loc: time.Local, windows: map[int64]*window{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) window(user int64) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[user]
	if !ok {
		w = &window{}
		l.windows[user] = w
	}
	return w
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Allow records an admission for user, or returns a policy error with code
// rate_limited when a cap is reached. Rejected requests are not recorded.
func (l *Limiter) Allow(ctx context.Context, user int64) error {
	lim, err := l.limits.Limits(ctx)
	if err != nil {
		return errmodel.System("limits_unavailable", "rate limits could not be loaded", nil, err)
	}
	now := l.now().In(l.loc)
	minuteAgo := now.Add(-time.Minute)
	dayStart := midnight(now)
	keep := dayStart
	if minuteAgo.Before(keep) {
		keep = minuteAgo
	}

	w := l.window(user)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.times = trimBefore(w.times, keep)

	if lim.PerMinute > 0 && countAfter(w.times, minuteAgo) >= lim.PerMinute {
		return errmodel.RateLimited(
			fmt.Sprintf("Too many requests: at most %d per minute. Please wait a moment.", lim.PerMinute),
			map[string]any{"limit": "per_minute", "cap": lim.PerMinute})
	}
	if lim.PerDay > 0 && countSince(w.times, dayStart) >= lim.PerDay {
		return errmodel.RateLimited(
			fmt.Sprintf("Daily quota used up: at most %d requests per day. Please come back tomorrow.", lim.PerDay),
			map[string]any{"limit": "per_day", "cap": lim.PerDay})
	}
	w.times = append(w.times, now)
	return nil
}

// Prune drops windows with no admissions since the start of the current day.
// It returns the number of users removed.
func (l *Limiter) Prune() int {
	now := l.now().In(l.loc)
	keep := midnight(now)
	if m := now.Add(-time.Minute); m.Before(keep) {
		keep = m
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for user, w := range l.windows {
		w.mu.Lock()
		w.times = trimBefore(w.times, keep)
		empty := len(w.times) == 0
		w.mu.Unlock()
		if empty {
			delete(l.windows, user)
			removed++
		}
	}
	return removed
}

// Users reports how many users have a window.
func (l *Limiter) Users() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// trimBefore drops timestamps strictly before t.
func trimBefore(ts []time.Time, t time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(t) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// countAfter counts timestamps strictly after t.
func countAfter(ts []time.Time, t time.Time) int {
	n := 0
	for i := len(ts) - 1; i >= 0 && ts[i].After(t); i-- {
		n++
	}
	return n
}

// countSince counts timestamps at or after t.
func countSince(ts []time.Time, t time.Time) int {
	n := 0
	for i := len(ts) - 1; i >= 0 && !ts[i].Before(t); i-- {
		n++
	}
	return n
}
