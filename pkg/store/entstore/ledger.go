package entstore

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/wilhg/daybook/pkg/store"
)

var transactionColumns = []string{
	"id", "user_id", "type", "amount", "category", "description", "date", "time", "created_at", "updated_at",
}

func scanTransaction(r *entsql.Rows) (store.Transaction, error) {
	var (
		t                store.Transaction
		created, updated int64
	)
	err := r.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Category, &t.Description, &t.Date, &t.Time, &created, &updated)
	if err != nil {
		return store.Transaction{}, err
	}
	t.CreatedAt, t.UpdatedAt = fromMillis(created), fromMillis(updated)
	return t, nil
}

func (s *Store) selectTransactions(ctx context.Context, sel *entsql.Selector) ([]store.Transaction, error) {
	query, args := sel.Query()
	var out []store.Transaction
	err := queryRows(ctx, s.drv, query, args, func(r *entsql.Rows) error {
		t, err := scanTransaction(r)
		out = append(out, t)
		return err
	})
	return out, err
}

func (s *Store) ListTransactions(ctx context.Context, userID int64, f store.TransactionFilter) ([]store.Transaction, error) {
	preds := []*entsql.Predicate{entsql.EQ("user_id", userID)}
	if f.Date != "" {
		preds = append(preds, entsql.EQ("date", f.Date))
	}
	if f.Month != "" {
		from, to, err := store.MonthRange(f.Month)
		if err != nil {
			return nil, err
		}
		preds = append(preds, entsql.GTE("date", from), entsql.LTE("date", to))
	}
	if f.Type != "" {
		preds = append(preds, entsql.EQ("type", f.Type))
	}
	if f.Category != "" {
		preds = append(preds, entsql.EQ("category", f.Category))
	}
	b := s.builder()
	sel := b.Select(transactionColumns...).From(b.Table("transactions")).Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("date"), entsql.Desc("created_at"), entsql.Desc("id"))
	if f.Limit > 0 {
		sel = sel.Limit(f.Limit)
	}
	return s.selectTransactions(ctx, sel)
}

func (s *Store) getTransaction(ctx context.Context, userID, id int64) (store.Transaction, error) {
	b := s.builder()
	out, err := s.selectTransactions(ctx, b.Select(transactionColumns...).From(b.Table("transactions")).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("user_id", userID))))
	if err != nil {
		return store.Transaction{}, err
	}
	if len(out) == 0 {
		return store.Transaction{}, store.ErrNotFound
	}
	return out[0], nil
}

func (s *Store) CreateTransaction(ctx context.Context, t store.Transaction) (store.Transaction, error) {
	now := millis(timeNow())
	ins := s.builder().Insert("transactions").Columns(transactionColumns[1:]...).Values(
		t.UserID, t.Type, t.Amount, t.Category, t.Description, t.Date, t.Time, now, now,
	)
	id, err := s.insert(ctx, s.drv, ins)
	if err != nil {
		return store.Transaction{}, err
	}
	return s.getTransaction(ctx, t.UserID, id)
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id int64) (store.Transaction, error) {
	t, err := s.getTransaction(ctx, userID, id)
	if err != nil {
		return store.Transaction{}, err
	}
	q, args := s.builder().Delete("transactions").
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("user_id", userID))).Query()
	res, err := exec(ctx, s.drv, q, args)
	if err != nil {
		return store.Transaction{}, err
	}
	return t, affected(res)
}
