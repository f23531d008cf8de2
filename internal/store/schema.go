package store

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
)

// Schema is shared by the pocketbase migration and the tests.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		starts_at  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id                   TEXT PRIMARY KEY NOT NULL,
		event_id             TEXT NOT NULL DEFAULT '',
		name                 TEXT NOT NULL DEFAULT '',
		stock_limit          INTEGER NULL,
		grace_window_seconds INTEGER NULL,
		updated_at           INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id         TEXT PRIMARY KEY NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		postcode   TEXT NOT NULL DEFAULT '',
		age_range  TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id                TEXT PRIMARY KEY NOT NULL,
		product_id        TEXT NOT NULL REFERENCES products (id),
		profile_id        TEXT NULL REFERENCES profiles (id),
		status            TEXT NOT NULL DEFAULT 'pending',
		created_at        INTEGER NOT NULL,
		stripe_session_id TEXT NULL,
		refund_reason     TEXT NULL,
		amount_paid       TEXT NULL,
		checked_in_at     INTEGER NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_product_status ON tickets (product_id, status, created_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_session ON tickets (stripe_session_id)`,
}

// DropSchema reverses Schema.
var DropSchema = []string{
	`DROP TABLE IF EXISTS tickets`,
	`DROP TABLE IF EXISTS profiles`,
	`DROP TABLE IF EXISTS products`,
	`DROP TABLE IF EXISTS events`,
}

func Migrate(ctx context.Context, db dbx.Builder) error {
	return execAll(ctx, db, Schema)
}

func Rollback(ctx context.Context, db dbx.Builder) error {
	return execAll(ctx, db, DropSchema)
}

func execAll(ctx context.Context, db dbx.Builder, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.NewQuery(stmt).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
