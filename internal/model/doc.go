// Package model defines the auction data types shared by every component.
//
// Conventions:
//   - Money: shopspring/decimal, two decimal places in storage (NUMERIC(12,2))
//   - Timestamps: timezone-aware time.Time, stored as timestamptz
//   - IDs: UUID strings for auctions and bids, opaque strings for lots and bidders
package model
