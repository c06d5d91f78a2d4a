// Package memstore is an in-memory Store implementation intended for tests,
// examples and single-process development.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wilhg/daybook/pkg/store"
)

// Store keeps every record in maps guarded by one RWMutex.
type Store struct {
	mu            sync.RWMutex
	now           func() time.Time
	seq           int64
	events        map[string][]store.EventRecord // session -> ordered events
	eventIDs      map[string]store.EventRecord
	tasks         map[int64]store.Task
	transactions  map[int64]store.Transaction
	notifications map[int64]store.Notification
}

// New creates an empty store.
func New() *Store {
	return &Store{
		now:           time.Now,
		events:        map[string][]store.EventRecord{},
		eventIDs:      map[string]store.EventRecord{},
		tasks:         map[int64]store.Task{},
		transactions:  map[int64]store.Transaction{},
		notifications: map[int64]store.Notification{},
	}
}

// WithClock replaces the clock used for created/updated timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// AppendEvent appends a new event with an incremented sequence per session.
func (s *Store) AppendEvent(_ context.Context, e store.EventRecord) (store.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	} else if existing, ok := s.eventIDs[e.EventID]; ok {
		return existing, nil
	}
	log := s.events[e.SessionID]
	e.Seq = int64(len(log)) + 1
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.events[e.SessionID] = append(log, e)
	s.eventIDs[e.EventID] = e
	return e, nil
}

// ListEvents lists events for a session after a given sequence.
func (s *Store) ListEvents(_ context.Context, sessionID string, afterSeq int64, limit int) ([]store.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.EventRecord
	for _, e := range s.events[sessionID] {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// LastSeq returns the last sequence for a session.
func (s *Store) LastSeq(_ context.Context, sessionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events[sessionID])), nil
}

func (s *Store) ListTasks(_ context.Context, userID int64, f store.TaskFilter) ([]store.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Task
	for _, t := range s.tasks {
		if t.UserID != userID {
			continue
		}
		if f.Date != "" && t.Date != f.Date {
			continue
		}
		if f.Completed != nil && t.Completed != *f.Completed {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.HasReminder != nil && t.HasReminder != *f.HasReminder {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) GetTask(_ context.Context, userID, id int64) (store.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return store.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) CreateTask(_ context.Context, t store.Task) (store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID()
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Priority == "" {
		t.Priority = store.PriorityMedium
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTask(_ context.Context, userID, id int64, p store.TaskPatch) (store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return store.Task{}, store.ErrNotFound
	}
	p.Apply(&t)
	t.UpdatedAt = s.now()
	s.tasks[id] = t
	return t, nil
}

func (s *Store) DeleteTask(_ context.Context, userID, id int64) (store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return store.Task{}, store.ErrNotFound
	}
	delete(s.tasks, id)
	return t, nil
}

func (s *Store) DueReminders(_ context.Context, now time.Time) ([]store.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Task
	for _, t := range s.tasks {
		if t.HasReminder && !t.Reminded && !t.Completed && t.ReminderTime != nil && !t.ReminderTime.After(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkReminded(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Reminded = true
	s.tasks[id] = t
	return nil
}

func (s *Store) ListTransactions(_ context.Context, userID int64, f store.TransactionFilter) ([]store.Transaction, error) {
	var from, to string
	if f.Month != "" {
		var err error
		if from, to, err = store.MonthRange(f.Month); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Transaction
	for _, t := range s.transactions {
		if t.UserID != userID {
			continue
		}
		if f.Date != "" && t.Date != f.Date {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if from != "" && (t.Date < from || t.Date > to) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, t store.Transaction) (store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID()
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id int64) (store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok || t.UserID != userID {
		return store.Transaction{}, store.ErrNotFound
	}
	delete(s.transactions, id)
	return t, nil
}

func (s *Store) CreateNotification(_ context.Context, n store.Notification) (store.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.nextID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID int64, unreadOnly bool, limit int) ([]store.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Notification
	for _, n := range s.notifications {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return store.ErrNotFound
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

var _ store.Store = (*Store)(nil)
