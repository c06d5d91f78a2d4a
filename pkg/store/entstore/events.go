package entstore

import (
	"context"
	"database/sql"
	"encoding/json"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/wilhg/daybook/pkg/store"
)

var eventColumns = []string{"event_id", "session_id", "seq", "type", "payload", "created_at"}

func scanEvent(r *entsql.Rows) (store.EventRecord, error) {
	var (
		e       store.EventRecord
		payload sql.NullString
		created int64
	)
	if err := r.Scan(&e.EventID, &e.SessionID, &e.Seq, &e.Type, &payload, &created); err != nil {
		return store.EventRecord{}, err
	}
	if payload.Valid && payload.String != "" {
		e.Payload = json.RawMessage(payload.String)
	}
	e.CreatedAt = fromMillis(created)
	return e, nil
}

// AppendEvent appends a new event with an incremented sequence per session.
// Appending an existing EventID returns the stored record (idempotent append).
func (s *Store) AppendEvent(ctx context.Context, e store.EventRecord) (store.EventRecord, error) {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return store.EventRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()
	b := s.builder()

	if e.EventID == "" {
		e.EventID = uuid.NewString()
	} else {
		q, args := b.Select(eventColumns...).From(b.Table("events")).Where(entsql.EQ("event_id", e.EventID)).Query()
		var existing *store.EventRecord
		err := queryRows(ctx, tx, q, args, func(r *entsql.Rows) error {
			ev, err := scanEvent(r)
			existing = &ev
			return err
		})
		if err != nil {
			return store.EventRecord{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	// Find current max seq for this session.
	q, args := b.Select("COALESCE(MAX(seq), 0)").From(b.Table("events")).Where(entsql.EQ("session_id", e.SessionID)).Query()
	var last int64
	if err := queryRows(ctx, tx, q, args, func(r *entsql.Rows) error { return r.Scan(&last) }); err != nil {
		return store.EventRecord{}, err
	}
	e.Seq = last + 1
	if e.CreatedAt.IsZero() {
		e.CreatedAt = timeNow()
	}
	ins := b.Insert("events").Columns(eventColumns...).
		Values(e.EventID, e.SessionID, e.Seq, e.Type, rawPayload(e.Payload), millis(e.CreatedAt))
	if _, err := s.insert(ctx, tx, ins); err != nil {
		return store.EventRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.EventRecord{}, err
	}
	e.CreatedAt = fromMillis(millis(e.CreatedAt))
	return e, nil
}

// ListEvents lists events for a session after a given sequence.
func (s *Store) ListEvents(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]store.EventRecord, error) {
	b := s.builder()
	sel := b.Select(eventColumns...).From(b.Table("events")).
		Where(entsql.And(entsql.EQ("session_id", sessionID), entsql.GT("seq", afterSeq))).
		OrderBy(entsql.Asc("seq"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	q, args := sel.Query()
	var out []store.EventRecord
	err := queryRows(ctx, s.drv, q, args, func(r *entsql.Rows) error {
		e, err := scanEvent(r)
		out = append(out, e)
		return err
	})
	return out, err
}

// LastSeq returns the last sequence for a session.
func (s *Store) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	b := s.builder()
	q, args := b.Select("COALESCE(MAX(seq), 0)").From(b.Table("events")).Where(entsql.EQ("session_id", sessionID)).Query()
	var last int64
	err := queryRows(ctx, s.drv, q, args, func(r *entsql.Rows) error { return r.Scan(&last) })
	return last, err
}
