// Package database provides the PostgreSQL connection pool and schema for
// auctiond.
//
// A single database holds:
//   - auctions, bids: the auction aggregate and its ledger
//   - antisniping_config: the editable anti-sniping singleton
//   - auction_events: the append-only archive of published bus events
package database
