package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		code             VARCHAR(20) PRIMARY KEY,
		name             VARCHAR(100) NOT NULL,
		category         VARCHAR(50) NOT NULL,
		unit             VARCHAR(20) NOT NULL,
		min_threshold    NUMERIC(18,4) NOT NULL DEFAULT 0 CHECK (min_threshold >= 0),
		unit_value       NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (unit_value >= 0),
		quantity         NUMERIC(18,4) NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		initial_quantity NUMERIC(18,4) NOT NULL DEFAULT 0,
		location         VARCHAR(50) NOT NULL DEFAULT '',
		supplier         VARCHAR(100) NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		retired          BOOLEAN NOT NULL DEFAULT FALSE,
		version          BIGINT NOT NULL DEFAULT 1,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS items_category_idx ON items (category)`,

	`CREATE TABLE IF NOT EXISTS movements (
		seq             BIGSERIAL PRIMARY KEY,
		id              UUID NOT NULL UNIQUE,
		item_code       VARCHAR(20) NOT NULL REFERENCES items (code),
		type            VARCHAR(10) NOT NULL CHECK (type IN ('inbound', 'outbound')),
		quantity        NUMERIC(18,4) NOT NULL CHECK (quantity > 0),
		balance_after   NUMERIC(18,4) NOT NULL CHECK (balance_after >= 0),
		occurred_at     TIMESTAMPTZ NOT NULL,
		actor           VARCHAR(50) NOT NULL,
		reason          TEXT NOT NULL DEFAULT '',
		opening         BOOLEAN NOT NULL DEFAULT FALSE,
		idempotency_key VARCHAR(200),
		recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS movements_idempotency_key_idx
		ON movements (idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS movements_item_time_idx ON movements (item_code, occurred_at, seq)`,

	`CREATE OR REPLACE FUNCTION movements_append_only() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'movements are append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS movements_append_only ON movements`,
	`CREATE TRIGGER movements_append_only BEFORE UPDATE OR DELETE ON movements
		FOR EACH ROW EXECUTE FUNCTION movements_append_only()`,

	`CREATE TABLE IF NOT EXISTS users (
		id            SERIAL PRIMARY KEY,
		username      VARCHAR(50) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          VARCHAR(20) NOT NULL DEFAULT 'operator',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the ledger and user tables. The fleet tables are owned by
// gorm's AutoMigrate in OpenGorm.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	return nil
}
