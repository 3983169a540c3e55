package store

import (
	"context"
	"fmt"
	"strings"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS players (
		discord_id    TEXT PRIMARY KEY,
		steam_id      TEXT UNIQUE,
		balance       BIGINT NOT NULL DEFAULT 0,
		registered_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dino_storage (
		id         TEXT PRIMARY KEY,
		steam_id   TEXT NOT NULL,
		dino_class TEXT NOT NULL,
		growth     INTEGER NOT NULL DEFAULT 0,
		hunger     INTEGER NOT NULL DEFAULT 0,
		thirst     INTEGER NOT NULL DEFAULT 0,
		health     INTEGER NOT NULL DEFAULT 0,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dino_storage_steam ON dino_storage (steam_id)`,
	`CREATE TABLE IF NOT EXISTS pending_dino_storage (
		id           {{serial}},
		steam_id     TEXT NOT NULL,
		discord_id   TEXT NOT NULL,
		callback_url TEXT NOT NULL,
		dino_class   TEXT NOT NULL,
		growth       INTEGER NOT NULL DEFAULT 0,
		hunger       INTEGER NOT NULL DEFAULT 0,
		thirst       INTEGER NOT NULL DEFAULT 0,
		health       INTEGER NOT NULL DEFAULT 0,
		created_at   {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_steam ON pending_dino_storage (steam_id)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_created ON pending_dino_storage (created_at)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id              {{serial}},
		discord_id      TEXT NOT NULL,
		tier            TEXT NOT NULL,
		dino_slots      INTEGER NOT NULL DEFAULT 0,
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		auto_renewal    BOOLEAN NOT NULL DEFAULT FALSE,
		expiry_notified BOOLEAN NOT NULL DEFAULT FALSE,
		purchased_at    {{ts}} NOT NULL,
		expires_at      {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_owner ON subscriptions (discord_id)`,
}

// Migrate creates missing tables. It is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	r := strings.NewReplacer("{{ts}}", d.dialect.timestamp, "{{serial}}", d.dialect.serial)
	for _, stmt := range schemaStatements {
		if _, err := d.db.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
