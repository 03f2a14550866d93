// Package archive persists every bus event to the auction_events table.
//
// The writer is a bus.Publisher: events are queued without blocking the
// publisher and written in batches with pgx.Batch. Inserts are append-only
// and idempotent on the event id. The archive is an audit trail, not a
// delivery mechanism; a failed batch is logged and counted, never retried.
package archive
