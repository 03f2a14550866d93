package store

import (
	"context"
	"errors"

	"github.com/rickgao/lot-auctions/internal/model"
)

var (
	// ErrNotFound is returned when the auction does not exist.
	ErrNotFound = errors.New("auction not found")

	// ErrLockTimeout is returned when the per-auction lock could not be
	// acquired before the context or the configured lock timeout expired.
	ErrLockTimeout = errors.New("auction lock timeout")

	// ErrLotBusy is returned by CreateAuction when the lot already has an
	// auction that is not cancelled.
	ErrLotBusy = errors.New("lot already has a live auction")

	// ErrWinnerExists is returned by InsertBid when a winning bid is inserted
	// while another bid of the same auction is still flagged as winning.
	ErrWinnerExists = errors.New("auction already has a winning bid")
)

// Reader is the read side shared by locked transactions and snapshots.
type Reader interface {
	// Auction loads one auction.
	Auction(ctx context.Context, id string) (model.Auction, error)

	// Bids returns every bid of the auction ordered by placement time.
	Bids(ctx context.Context, auctionID string) ([]model.Bid, error)

	// WinningBid returns the bid flagged as winning, if any.
	WinningBid(ctx context.Context, auctionID string) (model.Bid, bool, error)

	// BidCount returns the number of bids recorded for the auction.
	BidCount(ctx context.Context, auctionID string) (int, error)
}

// Tx is the read/write surface available inside WithLock.
type Tx interface {
	Reader

	// UpdateAuction saves the mutable fields of an auction: end_time, state,
	// extensions_applied and updated_at.
	UpdateAuction(ctx context.Context, a model.Auction) error

	// InsertBid appends a bid to the ledger.
	InsertBid(ctx context.Context, b model.Bid) error

	// ClearWinning unsets is_winning on every bid of the auction.
	ClearWinning(ctx context.Context, auctionID string) error

	// TransitionState moves the declared state to `to` only if it currently
	// is one of `from`. It reports whether the write happened.
	TransitionState(ctx context.Context, id string, from []model.State, to model.State) (bool, error)

	// DeleteAuction removes the auction and its bids.
	DeleteAuction(ctx context.Context, id string) error
}

// Store is the storage collaborator of the auction engine and the clock.
type Store interface {
	Tx

	// CreateAuction inserts a new auction. Returns ErrLotBusy if the lot
	// already has a non-cancelled auction.
	CreateAuction(ctx context.Context, a model.Auction) error

	// ListAuctions returns every auction ordered by start time.
	ListAuctions(ctx context.Context) ([]model.Auction, error)

	// ListNonTerminal returns auctions whose declared state is SCHEDULED
	// or ACTIVE.
	ListNonTerminal(ctx context.Context) ([]model.Auction, error)

	// AntiSniping reads the anti-sniping singleton.
	AntiSniping(ctx context.Context) (model.AntiSnipingConfig, error)

	// SaveAntiSniping replaces the anti-sniping singleton.
	SaveAntiSniping(ctx context.Context, cfg model.AntiSnipingConfig) error

	// WithLock runs fn while holding the exclusive lock of one auction.
	// Returns ErrNotFound if the auction does not exist and ErrLockTimeout
	// if the lock could not be acquired in time. An error from fn discards
	// any writes fn made where the implementation supports it.
	WithLock(ctx context.Context, id string, fn func(Tx) error) error

	// ReadSnapshot runs fn against a consistent read-only view.
	ReadSnapshot(ctx context.Context, id string, fn func(Reader) error) error
}

// IsNonTerminal reports whether the clock still has work for an auction in
// declared state s.
func IsNonTerminal(s model.State) bool {
	return s == model.StateScheduled || s == model.StateActive
}

func containsState(states []model.State, s model.State) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}
