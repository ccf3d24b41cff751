package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		telegram_id BIGINT PRIMARY KEY,
		username TEXT,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		push_token TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS parking_spots (
		id SERIAL PRIMARY KEY,
		spot_number INTEGER NOT NULL,
		user_id BIGINT NOT NULL REFERENCES users(telegram_id),
		is_temporary_free BOOLEAN NOT NULL DEFAULT FALSE,
		free_until TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (spot_number, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS parking_spots_user_idx ON parking_spots (user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id SERIAL PRIMARY KEY,
		from_user_id BIGINT,
		to_spot INTEGER NOT NULL,
		message_text TEXT NOT NULL,
		reply_text TEXT,
		source TEXT NOT NULL DEFAULT 'private',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS guest_passes (
		id SERIAL PRIMARY KEY,
		host_user_id BIGINT NOT NULL REFERENCES users(telegram_id),
		guest_info TEXT NOT NULL,
		spot_number INTEGER,
		expires_at TIMESTAMPTZ NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS announcements (
		id SERIAL PRIMARY KEY,
		admin_id BIGINT NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS reminders (
		id SERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(telegram_id),
		spot_number INTEGER NOT NULL,
		text TEXT NOT NULL,
		remind_at TIMESTAMPTZ NOT NULL,
		fired BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS reminders_due_idx ON reminders (remind_at) WHERE NOT fired`,
	`CREATE TABLE IF NOT EXISTS moderators (
		telegram_id BIGINT PRIMARY KEY,
		added_by BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables if they do not exist yet
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
