// Package api is the Go client for the auction HTTP API and the wire types
// shared with the server.
//
// Endpoints (all under /api/v1):
//   - /auctions, /auctions/summary, /auctions/{id}
//   - /auctions/{id}/cancel, /auctions/{id}/bids
//   - /config/antisniping
//
// Errors returned by the server decode into *APIError; Reason carries the
// stable reason string (bid_too_low, lock_timeout, ...).
package api
