// Package auction implements the auction aggregate and its bid ledger.
//
// Engine is the single entry point for commands (create, cancel, delete,
// place bid, edit anti-sniping settings) and queries (snapshot, bid history,
// listing, summary). Every mutation of one auction happens inside
// store.Store.WithLock, so bids for the same auction are totally ordered and
// the winning-bid flag moves atomically with them.
//
// Engine is also the scheduler.Driver: the clock calls Activate and Finalize,
// which use conditional state writes so a race with cancellation resolves to
// whichever write lands first.
//
// Events are published after the lock is released and never roll back the
// state change that produced them.
package auction
