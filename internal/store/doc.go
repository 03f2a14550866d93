// Package store persists auctions, bids and the anti-sniping configuration.
//
// Two implementations share the Store interface:
//   - Memory: maps guarded by a mutex, with one channel semaphore per auction
//   - Postgres: pgx over the schema in package database, locking rows with
//     SELECT ... FOR UPDATE under a transaction-scoped lock_timeout
//
// WithLock is the only mutual exclusion the auction engine relies on. Work
// done inside fn observes and mutates the auction atomically with respect to
// every other WithLock call for the same id.
package store
