package auction

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rickgao/lot-auctions/internal/model"
	"github.com/rickgao/lot-auctions/internal/store"
)

// Snapshot is a consistent read of one auction.
type Snapshot struct {
	Auction          model.Auction   `json:"auction"`
	ComputedState    model.State     `json:"computed_state"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	RemainingSeconds int             `json:"remaining_seconds"`
	WinningBid       *model.Bid      `json:"winning_bid"`
	BidCount         int             `json:"bid_count"`
}

// Overview is one row of the auction listing.
type Overview struct {
	Auction          model.Auction `json:"auction"`
	ComputedState    model.State   `json:"computed_state"`
	RemainingSeconds int           `json:"remaining_seconds"`
}

// Summary counts auctions by computed state.
type Summary struct {
	Scheduled int `json:"scheduled"`
	Active    int `json:"active"`
	Finished  int `json:"finished"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// currentPrice is the winning amount, or the base price when nobody bid.
func currentPrice(a model.Auction, winner *model.Bid) decimal.Decimal {
	if winner != nil {
		return winner.Amount
	}
	return a.BasePrice
}

// Snapshot returns the computed state, current price, remaining seconds,
// winning bid and bid count of one auction.
func (e *Engine) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	var snap Snapshot
	err := e.store.ReadSnapshot(ctx, id, func(r store.Reader) error {
		a, err := r.Auction(ctx, id)
		if err != nil {
			return err
		}
		w, ok, err := r.WinningBid(ctx, id)
		if err != nil {
			return err
		}
		n, err := r.BidCount(ctx, id)
		if err != nil {
			return err
		}

		now := e.now()
		snap = Snapshot{
			Auction:          a,
			ComputedState:    a.Computed(now),
			RemainingSeconds: a.RemainingSeconds(now),
			BidCount:         n,
		}
		if ok {
			snap.WinningBid = &w
		}
		snap.CurrentPrice = currentPrice(a, snap.WinningBid)
		return nil
	})
	if err != nil {
		return Snapshot{}, translate(err)
	}
	return snap, nil
}

// BidHistory returns every bid of the auction, newest first.
func (e *Engine) BidHistory(ctx context.Context, id string) ([]model.Bid, error) {
	var bids []model.Bid
	err := e.store.ReadSnapshot(ctx, id, func(r store.Reader) error {
		var err error
		bids, err = r.Bids(ctx, id)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	for i, j := 0, len(bids)-1; i < j; i, j = i+1, j-1 {
		bids[i], bids[j] = bids[j], bids[i]
	}
	if bids == nil {
		bids = []model.Bid{}
	}
	return bids, nil
}

// ListAuctions returns every auction with its computed state, ordered by
// start time.
func (e *Engine) ListAuctions(ctx context.Context) ([]Overview, error) {
	auctions, err := e.store.ListAuctions(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	out := make([]Overview, len(auctions))
	for i, a := range auctions {
		out[i] = Overview{
			Auction:          a,
			ComputedState:    a.Computed(now),
			RemainingSeconds: a.RemainingSeconds(now),
		}
	}
	return out, nil
}

// Summary counts auctions by computed state.
func (e *Engine) Summary(ctx context.Context) (Summary, error) {
	auctions, err := e.store.ListAuctions(ctx)
	if err != nil {
		return Summary{}, err
	}

	now := e.now()
	var s Summary
	for _, a := range auctions {
		switch a.Computed(now) {
		case model.StateScheduled:
			s.Scheduled++
		case model.StateActive:
			s.Active++
		case model.StateFinished:
			s.Finished++
		case model.StateCancelled:
			s.Cancelled++
		}
	}
	s.Total = len(auctions)
	return s, nil
}
