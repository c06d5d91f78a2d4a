// Package reminder turns due task reminders into notifications on a cron
// schedule and runs periodic housekeeping jobs.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/wilhg/daybook/pkg/store"
)

// NotificationType marks notifications created for task reminders.
const NotificationType = "task_reminder"

// Pruner drops idle state, e.g. ratelimit.Limiter.
type Pruner interface {
	Prune() int
}

// Scheduler owns a cron runner. Jobs never overlap with themselves.
type Scheduler struct {
	cron   *cron.Cron
	tasks  store.TaskStore
	notes  store.NotificationStore
	log    *slog.Logger
	now    func() time.Time
	loc    *time.Location
	flight singleflight.Group
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock sets the time source used to find due reminders.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone reminder times are shown in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func New(tasks store.TaskStore, notes store.NotificationStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks: tasks,
		notes: notes,
		log:   slog.Default(),
		now:   time.Now,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithLocation(s.loc), cron.WithChain(cron.Recover(cronLogger{s.log})))
	return s
}

// Schedule registers the reminder job under spec, and p's Prune under the
// same spec when p is not nil.
func (s *Scheduler) Schedule(ctx context.Context, spec string, p Pruner) error {
	if _, err := s.cron.AddFunc(spec, func() { s.runJob(ctx, "reminders", s.fire) }); err != nil {
		return fmt.Errorf("schedule reminders %q: %w", spec, err)
	}
	if p == nil {
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.runJob(ctx, "prune", func(context.Context) (int, error) { return p.Prune(), nil })
	})
	return err
}

func (s *Scheduler) runJob(ctx context.Context, name string, job func(context.Context) (int, error)) {
	v, err, shared := s.flight.Do(name, func() (any, error) { return job(ctx) })
	if shared {
		return
	}
	if err != nil {
		s.log.Error("scheduled job failed", "job", name, "error", err)
		return
	}
	if n, _ := v.(int); n > 0 {
		s.log.Info("scheduled job done", "job", name, "count", n)
	}
}

// Start runs the scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce fires every due reminder now and reports how many notifications
// were created.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	return s.fire(ctx)
}

func (s *Scheduler) fire(ctx context.Context) (int, error) {
	due, err := s.tasks.DueReminders(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("due reminders: %w", err)
	}
	sent := 0
	for _, t := range due {
		n := store.Notification{
			UserID:  t.UserID,
			Type:    NotificationType,
			Title:   "Task reminder: " + t.Title,
			Message: s.message(t),
		}
		if _, err := s.notes.CreateNotification(ctx, n); err != nil {
			return sent, fmt.Errorf("notify task %d: %w", t.ID, err)
		}
		// A failure here repeats the reminder on the next run.
		if err := s.tasks.MarkReminded(ctx, t.ID); err != nil {
			return sent, fmt.Errorf("mark task %d reminded: %w", t.ID, err)
		}
		sent++
	}
	return sent, nil
}

func (s *Scheduler) message(t store.Task) string {
	when := t.Date
	if t.Time != "" {
		when += " " + t.Time
	}
	msg := fmt.Sprintf("%q is scheduled for %s.", t.Title, when)
	if t.Description != "" {
		msg += " " + t.Description
	}
	return msg
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(kv, "error", err)...)
}
