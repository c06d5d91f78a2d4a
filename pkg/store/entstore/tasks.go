package entstore

import (
	"context"
	"database/sql"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/wilhg/daybook/pkg/store"
)

var timeNow = time.Now

var taskColumns = []string{
	"id", "user_id", "title", "description", "completed", "priority", "date", "time",
	"has_reminder", "reminder_time", "reminded", "created_at", "updated_at",
}

func scanTask(r *entsql.Rows) (store.Task, error) {
	var (
		t                store.Task
		reminder         sql.NullInt64
		created, updated int64
	)
	err := r.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.Priority, &t.Date, &t.Time,
		&t.HasReminder, &reminder, &t.Reminded, &created, &updated)
	if err != nil {
		return store.Task{}, err
	}
	if reminder.Valid {
		rt := fromMillis(reminder.Int64)
		t.ReminderTime = &rt
	}
	t.CreatedAt, t.UpdatedAt = fromMillis(created), fromMillis(updated)
	return t, nil
}

func (s *Store) selectTasks(ctx context.Context, q querier, sel *entsql.Selector) ([]store.Task, error) {
	query, args := sel.Query()
	var out []store.Task
	err := queryRows(ctx, q, query, args, func(r *entsql.Rows) error {
		t, err := scanTask(r)
		out = append(out, t)
		return err
	})
	return out, err
}

func (s *Store) ListTasks(ctx context.Context, userID int64, f store.TaskFilter) ([]store.Task, error) {
	b := s.builder()
	preds := []*entsql.Predicate{entsql.EQ("user_id", userID)}
	if f.Date != "" {
		preds = append(preds, entsql.EQ("date", f.Date))
	}
	if f.Completed != nil {
		preds = append(preds, entsql.EQ("completed", *f.Completed))
	}
	if f.Priority != "" {
		preds = append(preds, entsql.EQ("priority", f.Priority))
	}
	if f.HasReminder != nil {
		preds = append(preds, entsql.EQ("has_reminder", *f.HasReminder))
	}
	sel := b.Select(taskColumns...).From(b.Table("tasks")).Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("date"), entsql.Desc("created_at"), entsql.Desc("id"))
	if f.Limit > 0 {
		sel = sel.Limit(f.Limit)
	}
	return s.selectTasks(ctx, s.drv, sel)
}

func (s *Store) getTask(ctx context.Context, q querier, userID, id int64) (store.Task, error) {
	b := s.builder()
	sel := b.Select(taskColumns...).From(b.Table("tasks")).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("user_id", userID)))
	out, err := s.selectTasks(ctx, q, sel)
	if err != nil {
		return store.Task{}, err
	}
	if len(out) == 0 {
		return store.Task{}, store.ErrNotFound
	}
	return out[0], nil
}

func (s *Store) GetTask(ctx context.Context, userID, id int64) (store.Task, error) {
	return s.getTask(ctx, s.drv, userID, id)
}

func (s *Store) CreateTask(ctx context.Context, t store.Task) (store.Task, error) {
	if t.Priority == "" {
		t.Priority = store.PriorityMedium
	}
	now := timeNow()
	t.CreatedAt, t.UpdatedAt = now, now
	ins := s.builder().Insert("tasks").Columns(taskColumns[1:]...).Values(
		t.UserID, t.Title, t.Description, t.Completed, t.Priority, t.Date, t.Time,
		t.HasReminder, nullMillis(t.ReminderTime), false, millis(now), millis(now),
	)
	id, err := s.insert(ctx, s.drv, ins)
	if err != nil {
		return store.Task{}, err
	}
	return s.GetTask(ctx, t.UserID, id)
}

// UpdateTask reads, patches and writes the row inside one transaction.
func (s *Store) UpdateTask(ctx context.Context, userID, id int64, p store.TaskPatch) (store.Task, error) {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return store.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()
	t, err := s.getTask(ctx, tx, userID, id)
	if err != nil {
		return store.Task{}, err
	}
	p.Apply(&t)
	q, args := s.builder().Update("tasks").
		Set("title", t.Title).
		Set("description", t.Description).
		Set("completed", t.Completed).
		Set("priority", t.Priority).
		Set("date", t.Date).
		Set("time", t.Time).
		Set("has_reminder", t.HasReminder).
		Set("reminder_time", nullMillis(t.ReminderTime)).
		Set("reminded", t.Reminded).
		Set("updated_at", millis(timeNow())).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("user_id", userID))).
		Query()
	if _, err := exec(ctx, tx, q, args); err != nil {
		return store.Task{}, err
	}
	if t, err = s.getTask(ctx, tx, userID, id); err != nil {
		return store.Task{}, err
	}
	return t, tx.Commit()
}

func (s *Store) DeleteTask(ctx context.Context, userID, id int64) (store.Task, error) {
	t, err := s.GetTask(ctx, userID, id)
	if err != nil {
		return store.Task{}, err
	}
	q, args := s.builder().Delete("tasks").
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("user_id", userID))).Query()
	res, err := exec(ctx, s.drv, q, args)
	if err != nil {
		return store.Task{}, err
	}
	return t, affected(res)
}

func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]store.Task, error) {
	b := s.builder()
	sel := b.Select(taskColumns...).From(b.Table("tasks")).Where(entsql.And(
		entsql.EQ("has_reminder", true),
		entsql.EQ("reminded", false),
		entsql.EQ("completed", false),
		entsql.NotNull("reminder_time"),
		entsql.LTE("reminder_time", millis(now)),
	)).OrderBy(entsql.Asc("id"))
	return s.selectTasks(ctx, s.drv, sel)
}

func (s *Store) MarkReminded(ctx context.Context, id int64) error {
	q, args := s.builder().Update("tasks").Set("reminded", true).Where(entsql.EQ("id", id)).Query()
	res, err := exec(ctx, s.drv, q, args)
	if err != nil {
		return err
	}
	return affected(res)
}
