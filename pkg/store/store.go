// Package store defines the persistence collaborators consumed by the assistant:
// an append-only conversation event log, tasks, ledger transactions and
// notifications. Every owned-record operation takes the acting user id and
// must never read or mutate another user's rows.
//
// Implementations must provide identical semantics across backends (see
// memstore and entstore) so tests can run against either.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist for the acting user.
var ErrNotFound = errors.New("store: not found")

// DateLayout is the storage and wire format of calendar dates.
const DateLayout = "2006-01-02"

// EventRecord is the persisted representation of a conversation event.
// Payload holds the event data as JSON.
type EventRecord struct {
	EventID   string
	SessionID string
	Seq       int64
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// EventStore defines operations for per-session event logs. Seq is assigned by
// the store and increases by one per session; appending an EventID twice
// returns the existing record.
type EventStore interface {
	AppendEvent(ctx context.Context, e EventRecord) (EventRecord, error)
	ListEvents(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]EventRecord, error)
	LastSeq(ctx context.Context, sessionID string) (int64, error)
}

// Task priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task is a dated to-do item. Time is an optional "HH:MM-HH:MM" range.
type Task struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Completed    bool       `json:"completed"`
	Priority     string     `json:"priority"`
	Date         string     `json:"date"`
	Time         string     `json:"time"`
	HasReminder  bool       `json:"has_reminder"`
	ReminderTime *time.Time `json:"reminder_time"`
	Reminded     bool       `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TaskFilter narrows ListTasks. Zero values do not filter.
type TaskFilter struct {
	Date        string
	Completed   *bool
	Priority    string
	HasReminder *bool
	Limit       int
}

// TaskPatch lists the fields to change; nil leaves a field untouched.
// ClearReminderTime removes the reminder time.
type TaskPatch struct {
	Title             *string
	Description       *string
	Completed         *bool
	Priority          *string
	Date              *string
	Time              *string
	HasReminder       *bool
	ReminderTime      *time.Time
	ClearReminderTime bool
}

// TaskStore persists tasks. ListTasks orders by date then creation, newest first.
type TaskStore interface {
	ListTasks(ctx context.Context, userID int64, f TaskFilter) ([]Task, error)
	GetTask(ctx context.Context, userID, id int64) (Task, error)
	CreateTask(ctx context.Context, t Task) (Task, error)
	UpdateTask(ctx context.Context, userID, id int64, p TaskPatch) (Task, error)
	DeleteTask(ctx context.Context, userID, id int64) (Task, error)
	// DueReminders lists incomplete tasks of every user whose reminder time
	// is at or before now and that have not been reminded yet.
	DueReminders(ctx context.Context, now time.Time) ([]Task, error)
	MarkReminded(ctx context.Context, id int64) error
}

// Transaction kinds.
const (
	Income  = "income"
	Expense = "expense"
)

// Transaction is one ledger entry. Time is an optional "HH:MM:SS".
type Transaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TransactionFilter narrows ListTransactions. Month is "YYYY-MM"; zero values
// do not filter.
type TransactionFilter struct {
	Date     string
	Type     string
	Category string
	Month    string
	Limit    int
}

// LedgerStore persists transactions. ListTransactions orders by date then
// creation, newest first.
type LedgerStore interface {
	ListTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]Transaction, error)
	CreateTransaction(ctx context.Context, t Transaction) (Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id int64) (Transaction, error)
}

// Notification is a message surfaced to a user, e.g. a task reminder.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationStore persists notifications, newest first.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n Notification) (Notification, error)
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
}

// Store aggregates every collaborator.
type Store interface {
	EventStore
	TaskStore
	LedgerStore
	NotificationStore
	Close() error
}

// MonthRange returns the first and last date ("YYYY-MM-DD") of a "YYYY-MM" month.
func MonthRange(month string) (string, string, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return "", "", err
	}
	last := t.AddDate(0, 1, -1)
	return t.Format(DateLayout), last.Format(DateLayout), nil
}

// Apply copies the set fields of p onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Time != nil {
		t.Time = *p.Time
	}
	if p.HasReminder != nil {
		t.HasReminder = *p.HasReminder
	}
	if p.ClearReminderTime {
		t.ReminderTime = nil
	} else if p.ReminderTime != nil {
		rt := *p.ReminderTime
		t.ReminderTime = &rt
	}
	if p.ReminderTime != nil || p.ClearReminderTime || p.HasReminder != nil {
		t.Reminded = false
	}
}
