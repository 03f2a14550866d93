package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements are applied in order by Migrate. Every statement is
// idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS auctions (
		id                 TEXT PRIMARY KEY,
		lot_ref            TEXT NOT NULL,
		start_time         TIMESTAMPTZ NOT NULL,
		end_time           TIMESTAMPTZ NOT NULL,
		base_price         NUMERIC(12,2) NOT NULL CHECK (base_price >= 0),
		state              TEXT NOT NULL,
		extensions_applied INTEGER NOT NULL DEFAULT 0 CHECK (extensions_applied >= 0),
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (end_time > start_time)
	)`,
	// One live auction per lot; cancelled auctions accumulate as history.
	`CREATE UNIQUE INDEX IF NOT EXISTS auctions_live_lot_idx
		ON auctions (lot_ref) WHERE state <> 'CANCELLED'`,
	`CREATE INDEX IF NOT EXISTS auctions_state_idx ON auctions (state)`,
	`CREATE TABLE IF NOT EXISTS bids (
		id         TEXT PRIMARY KEY,
		auction_id TEXT NOT NULL REFERENCES auctions (id) ON DELETE CASCADE,
		bidder_id  TEXT NOT NULL,
		amount     NUMERIC(12,2) NOT NULL,
		placed_at  TIMESTAMPTZ NOT NULL,
		is_winning BOOLEAN NOT NULL DEFAULT false,
		version    BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bids_winning_idx
		ON bids (auction_id) WHERE is_winning`,
	`CREATE INDEX IF NOT EXISTS bids_auction_placed_idx ON bids (auction_id, placed_at)`,
	`CREATE TABLE IF NOT EXISTS antisniping_config (
		id                SMALLINT PRIMARY KEY CHECK (id = 1),
		enabled           BOOLEAN NOT NULL,
		threshold_seconds INTEGER NOT NULL,
		extension_seconds INTEGER NOT NULL,
		max_extensions    INTEGER NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS auction_events (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		auction_id  TEXT,
		occurred_at TIMESTAMPTZ NOT NULL,
		payload     JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS auction_events_auction_idx
		ON auction_events (auction_id, occurred_at)`,
}

// Migrate creates the tables and indexes auctiond needs.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
