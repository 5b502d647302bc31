package postgres

import (
	"context"
	"fmt"
)

// schema is idempotent so `migrate` can run on every deploy.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		email          TEXT PRIMARY KEY,
		display_name   TEXT NOT NULL DEFAULT '',
		photo_url      TEXT NOT NULL DEFAULT '',
		bio            TEXT NOT NULL DEFAULT '',
		role           TEXT NOT NULL DEFAULT 'user',
		password_hash  TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS contests (
		id                  UUID PRIMARY KEY,
		creator_email       TEXT NOT NULL,
		name                TEXT NOT NULL,
		description         TEXT NOT NULL DEFAULT '',
		type                TEXT NOT NULL DEFAULT '',
		image               TEXT NOT NULL DEFAULT '',
		instructions        TEXT NOT NULL DEFAULT '',
		entry_fee           NUMERIC(12,2) NOT NULL DEFAULT 0,
		prize_money         NUMERIC(12,2) NOT NULL DEFAULT 0,
		deadline            TIMESTAMPTZ NOT NULL,
		status              TEXT NOT NULL DEFAULT 'pending',
		is_ended            BOOLEAN NOT NULL DEFAULT false,
		participants        JSONB NOT NULL DEFAULT '[]'::jsonb,
		participants_count  INTEGER NOT NULL DEFAULT 0,
		winner_name         TEXT NOT NULL DEFAULT '',
		winner_email        TEXT NOT NULL DEFAULT '',
		winner_photo_url    TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT participants_count_matches CHECK (participants_count = jsonb_array_length(participants))
	)`,
	`CREATE INDEX IF NOT EXISTS contests_creator_idx ON contests (lower(creator_email))`,
	`CREATE INDEX IF NOT EXISTS contests_popular_idx ON contests (participants_count DESC)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id              UUID PRIMARY KEY,
		customer_email  TEXT NOT NULL,
		contest_id      UUID NOT NULL,
		currency        TEXT NOT NULL,
		transaction_id  TEXT NOT NULL UNIQUE,
		paid_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS payments_contest_email_idx ON payments (contest_id, lower(customer_email))`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id                 UUID PRIMARY KEY,
		contest_id         UUID NOT NULL,
		participant_email  TEXT NOT NULL,
		content            TEXT NOT NULL,
		is_paid            BOOLEAN NOT NULL DEFAULT false,
		contest_is_ended   BOOLEAN NOT NULL DEFAULT false,
		submitted_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS submissions_once_idx ON submissions (contest_id, lower(participant_email))`,
	`CREATE TABLE IF NOT EXISTS winners (
		id            UUID PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL,
		photo_url     TEXT NOT NULL DEFAULT '',
		contest_id    UUID NOT NULL UNIQUE,
		contest_name  TEXT NOT NULL,
		prize_money   NUMERIC(12,2) NOT NULL DEFAULT 0,
		declared_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS winners_email_idx ON winners (lower(email))`,
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	s.logger.Info().Int("statements", len(schema)).Msg("Schema migrated")
	return nil
}
