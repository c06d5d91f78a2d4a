package entstore

import (
	"context"
	"fmt"
	"strings"
)

// schema is written once with dialect placeholders: {{id}} for the primary key
// column and {{real}} for floating point amounts.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id {{id}},
		event_id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		seq BIGINT NOT NULL,
		type TEXT NOT NULL,
		payload TEXT,
		created_at BIGINT NOT NULL,
		UNIQUE (session_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id {{id}},
		user_id BIGINT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		priority TEXT NOT NULL DEFAULT 'medium',
		date TEXT NOT NULL,
		time TEXT NOT NULL DEFAULT '',
		has_reminder BOOLEAN NOT NULL DEFAULT FALSE,
		reminder_time BIGINT,
		reminded BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_user_date ON tasks (user_id, date)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id {{id}},
		user_id BIGINT NOT NULL,
		type TEXT NOT NULL,
		amount {{real}} NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		date TEXT NOT NULL,
		time TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_user_date ON transactions (user_id, date)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id {{id}},
		user_id BIGINT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_user ON notifications (user_id, is_read)`,
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	id, float := "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	if s.postgres() {
		id, float = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	}
	r := strings.NewReplacer("{{id}}", id, "{{real}}", float)
	for _, stmt := range schema {
		if _, err := exec(ctx, s.drv, r.Replace(stmt), []any{}); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
