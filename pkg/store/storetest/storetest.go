// Package storetest holds the behavioural suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/daybook/pkg/store"
)

// Run executes the suite against a fresh store per subtest.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("Events", func(t *testing.T) { testEvents(t, open(t)) })
	t.Run("Tasks", func(t *testing.T) { testTasks(t, open(t)) })
	t.Run("TaskOwnership", func(t *testing.T) { testTaskOwnership(t, open(t)) })
	t.Run("Reminders", func(t *testing.T) { testReminders(t, open(t)) })
	t.Run("Ledger", func(t *testing.T) { testLedger(t, open(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, open(t)) })
}

func ptr[T any](v T) *T { return &v }

func testEvents(t *testing.T, st store.Store) {
	ctx := context.Background()
	payload, _ := json.Marshal(map[string]any{"hello": "world"})

	e1, err := st.AppendEvent(ctx, store.EventRecord{EventID: "e1", SessionID: "s1", Type: "message", Payload: payload})
	require.NoError(t, err)
	assert.EqualValues(t, 1, e1.Seq)
	e2, err := st.AppendEvent(ctx, store.EventRecord{EventID: "e2", SessionID: "s1", Type: "reset"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, e2.Seq)
	_, err = st.AppendEvent(ctx, store.EventRecord{EventID: "x1", SessionID: "s2", Type: "message"})
	require.NoError(t, err)

	dup, err := st.AppendEvent(ctx, store.EventRecord{EventID: "e1", SessionID: "s1", Type: "message"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, dup.Seq, "duplicate event id returns the stored record")

	events, err := st.ListEvents(ctx, "s1", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.JSONEq(t, `{"hello":"world"}`, string(events[0].Payload))
	assert.Equal(t, "reset", events[1].Type)

	after, err := st.ListEvents(ctx, "s1", 1, 0)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "e2", after[0].EventID)

	last, err := st.LastSeq(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, last)
	last, err = st.LastSeq(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func testTasks(t *testing.T, st store.Store) {
	ctx := context.Background()
	a, err := st.CreateTask(ctx, store.Task{UserID: 1, Title: "read", Date: "2025-03-01", Time: "09:00-10:00"})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	assert.Equal(t, store.PriorityMedium, a.Priority)
	b, err := st.CreateTask(ctx, store.Task{UserID: 1, Title: "gym", Date: "2025-03-02", Priority: store.PriorityHigh})
	require.NoError(t, err)
	_, err = st.CreateTask(ctx, store.Task{UserID: 1, Title: "done", Date: "2025-03-01", Completed: true})
	require.NoError(t, err)

	all, err := st.ListTasks(ctx, 1, store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, b.ID, all[0].ID, "newest date first")

	open, err := st.ListTasks(ctx, 1, store.TaskFilter{Date: "2025-03-01", Completed: ptr(false)})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "read", open[0].Title)

	high, err := st.ListTasks(ctx, 1, store.TaskFilter{Priority: store.PriorityHigh, Limit: 1})
	require.NoError(t, err)
	require.Len(t, high, 1)

	rt := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	up, err := st.UpdateTask(ctx, 1, a.ID, store.TaskPatch{Title: ptr("read book"), HasReminder: ptr(true), ReminderTime: &rt})
	require.NoError(t, err)
	assert.Equal(t, "read book", up.Title)
	assert.Equal(t, "09:00-10:00", up.Time, "untouched fields survive")
	require.NotNil(t, up.ReminderTime)
	assert.True(t, rt.Equal(*up.ReminderTime))

	up, err = st.UpdateTask(ctx, 1, a.ID, store.TaskPatch{ClearReminderTime: true})
	require.NoError(t, err)
	assert.Nil(t, up.ReminderTime)

	del, err := st.DeleteTask(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "read book", del.Title)
	_, err = st.GetTask(ctx, 1, a.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testTaskOwnership(t *testing.T, st store.Store) {
	ctx := context.Background()
	mine, err := st.CreateTask(ctx, store.Task{UserID: 1, Title: "mine", Date: "2025-03-01"})
	require.NoError(t, err)

	_, err = st.GetTask(ctx, 2, mine.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.UpdateTask(ctx, 2, mine.ID, store.TaskPatch{Title: ptr("stolen")})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.DeleteTask(ctx, 2, mine.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	others, err := st.ListTasks(ctx, 2, store.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, others)

	still, err := st.GetTask(ctx, 1, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", still.Title)
}

func testReminders(t *testing.T, st store.Store) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	due, err := st.CreateTask(ctx, store.Task{UserID: 1, Title: "due", Date: "2025-03-01", HasReminder: true, ReminderTime: ptr(now.Add(-time.Minute))})
	require.NoError(t, err)
	_, err = st.CreateTask(ctx, store.Task{UserID: 1, Title: "later", Date: "2025-03-01", HasReminder: true, ReminderTime: ptr(now.Add(time.Hour))})
	require.NoError(t, err)
	_, err = st.CreateTask(ctx, store.Task{UserID: 2, Title: "off", Date: "2025-03-01", HasReminder: false, ReminderTime: ptr(now.Add(-time.Hour))})
	require.NoError(t, err)

	got, err := st.DueReminders(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)

	require.NoError(t, st.MarkReminded(ctx, due.ID))
	got, err = st.DueReminders(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, got, "reminders fire once")
}

func testLedger(t *testing.T, st store.Store) {
	ctx := context.Background()
	for _, tx := range []store.Transaction{
		{UserID: 1, Type: store.Expense, Amount: 12.5, Category: "餐饮", Description: "lunch", Date: "2025-02-28"},
		{UserID: 1, Type: store.Expense, Amount: 30, Category: "交通", Description: "train", Date: "2025-03-01", Time: "08:10:00"},
		{UserID: 1, Type: store.Income, Amount: 200, Category: "兼职", Description: "tutoring", Date: "2025-03-15"},
		{UserID: 2, Type: store.Income, Amount: 999, Category: "其他", Description: "not mine", Date: "2025-03-15"},
	} {
		_, err := st.CreateTransaction(ctx, tx)
		require.NoError(t, err)
	}
	march, err := st.ListTransactions(ctx, 1, store.TransactionFilter{Month: "2025-03"})
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "2025-03-15", march[0].Date)

	expenses, err := st.ListTransactions(ctx, 1, store.TransactionFilter{Type: store.Expense})
	require.NoError(t, err)
	require.Len(t, expenses, 2)

	byCat, err := st.ListTransactions(ctx, 1, store.TransactionFilter{Category: "餐饮"})
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	assert.InDelta(t, 12.5, byCat[0].Amount, 0.0001)

	_, err = st.ListTransactions(ctx, 1, store.TransactionFilter{Month: "2025-13"})
	assert.Error(t, err)

	_, err = st.DeleteTransaction(ctx, 2, byCat[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	del, err := st.DeleteTransaction(ctx, 1, byCat[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "lunch", del.Description)
}

func testNotifications(t *testing.T, st store.Store) {
	ctx := context.Background()
	n1, err := st.CreateNotification(ctx, store.Notification{UserID: 1, Type: "task_reminder", Title: "a"})
	require.NoError(t, err)
	_, err = st.CreateNotification(ctx, store.Notification{UserID: 1, Type: "task_reminder", Title: "b"})
	require.NoError(t, err)

	require.NoError(t, st.MarkRead(ctx, 1, n1.ID))
	assert.ErrorIs(t, st.MarkRead(ctx, 2, n1.ID), store.ErrNotFound)

	unread, err := st.ListNotifications(ctx, 1, true, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "b", unread[0].Title)

	all, err := st.ListNotifications(ctx, 1, false, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].Title, "newest first")
}
