package entstore

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/wilhg/daybook/pkg/store"
)

var notificationColumns = []string{"id", "user_id", "type", "title", "message", "is_read", "created_at"}

func (s *Store) CreateNotification(ctx context.Context, n store.Notification) (store.Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = timeNow()
	}
	ins := s.builder().Insert("notifications").Columns(notificationColumns[1:]...).
		Values(n.UserID, n.Type, n.Title, n.Message, n.Read, millis(n.CreatedAt))
	id, err := s.insert(ctx, s.drv, ins)
	if err != nil {
		return store.Notification{}, err
	}
	n.ID = id
	n.CreatedAt = fromMillis(millis(n.CreatedAt))
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]store.Notification, error) {
	preds := []*entsql.Predicate{entsql.EQ("user_id", userID)}
	if unreadOnly {
		preds = append(preds, entsql.EQ("is_read", false))
	}
	b := s.builder()
	sel := b.Select(notificationColumns...).From(b.Table("notifications")).
		Where(entsql.And(preds...)).OrderBy(entsql.Desc("id"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()
	var out []store.Notification
	err := queryRows(ctx, s.drv, query, args, func(r *entsql.Rows) error {
		var (
			n       store.Notification
			created int64
		)
		if err := r.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Read, &created); err != nil {
			return err
		}
		n.CreatedAt = fromMillis(created)
		out = append(out, n)
		return nil
	})
	return out, err
}

func (s *Store) MarkRead(ctx context.Context, userID, id int64) error {
	q, args := s.builder().Update("notifications").Set("is_read", true).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("user_id", userID))).Query()
	res, err := exec(ctx, s.drv, q, args)
	if err != nil {
		return err
	}
	return affected(res)
}

var _ store.Store = (*Store)(nil)
