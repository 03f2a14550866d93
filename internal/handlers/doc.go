// Package handlers exposes the auction engine over HTTP.
//
// Commands (create, cancel, delete, bid, set config) and queries (snapshot,
// history, listing, summary) live under /api/v1. Errors are returned as
// {"error": reason, "message": text} with the status chosen by statusFor.
package handlers
