package auction

import (
	"context"
	"errors"

	"github.com/rickgao/lot-auctions/internal/bus"
	"github.com/rickgao/lot-auctions/internal/model"
	"github.com/rickgao/lot-auctions/internal/scheduler"
	"github.com/rickgao/lot-auctions/internal/store"
)

var _ scheduler.Driver = (*Engine)(nil)

// Load implements scheduler.Driver.
func (e *Engine) Load(ctx context.Context, id string) (model.Auction, bool, error) {
	a, err := e.store.Auction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Auction{}, false, nil
	}
	if err != nil {
		return model.Auction{}, false, err
	}
	return a, true, nil
}

// Activate implements scheduler.Driver. The write only applies if the
// auction is still SCHEDULED, so a concurrent cancellation wins or loses
// cleanly.
func (e *Engine) Activate(ctx context.Context, id string) (bool, error) {
	ok, err := e.store.TransitionState(ctx, id, []model.State{model.StateScheduled}, model.StateActive)
	if err != nil || !ok {
		return false, err
	}

	a, err := e.store.Auction(ctx, id)
	if err != nil {
		// The transition is committed; report it even if the reload failed.
		e.logger.Warn("reload after activation failed", "auction_id", id, "error", err)
		return true, nil
	}

	now := e.now()
	e.publish(bus.KindAuctionStarted, id, now, bus.AuctionStarted{
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
	})
	e.publish(bus.KindAuctionUpdated, id, now, bus.AuctionUpdated{
		Changes: map[string]any{"state": model.StateActive},
	})
	return true, nil
}

// Finalize implements scheduler.Driver. Under the auction lock it re-checks
// end_time, which a bid may have just extended, and only then moves the
// auction to FINISHED. auction_finished is published only by the call that
// performed the transition.
func (e *Engine) Finalize(ctx context.Context, id string) (scheduler.Outcome, error) {
	var (
		outcome scheduler.Outcome
		payload bus.AuctionFinished
	)

	err := e.withLock(ctx, id, func(tx store.Tx) error {
		a, err := tx.Auction(ctx, id)
		if err != nil {
			return err
		}
		if a.State != model.StateActive {
			outcome = scheduler.OutcomeGone
			return nil
		}
		if e.now().Before(a.EndTime) {
			outcome = scheduler.OutcomePending
			return nil
		}

		ok, err := tx.TransitionState(ctx, id, []model.State{model.StateActive}, model.StateFinished)
		if err != nil {
			return err
		}
		if !ok {
			outcome = scheduler.OutcomeGone
			return nil
		}

		winner, hasWinner, err := tx.WinningBid(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.BidCount(ctx, id)
		if err != nil {
			return err
		}

		payload = bus.AuctionFinished{BidCount: count, NoBids: !hasWinner}
		if hasWinner {
			amount := winner.Amount
			payload.Winner = &winner
			payload.FinalAmount = &amount
		}
		outcome = scheduler.OutcomeFinished
		return nil
	})
	if errors.Is(err, ErrAuctionNotFound) {
		return scheduler.OutcomeGone, nil
	}
	if err != nil {
		return scheduler.OutcomePending, err
	}
	if outcome != scheduler.OutcomeFinished {
		return outcome, nil
	}

	final := "none"
	if payload.FinalAmount != nil {
		final = payload.FinalAmount.StringFixed(2)
	}
	e.logger.Info("auction finalized",
		"auction_id", id,
		"bid_count", payload.BidCount,
		"final_amount", final,
	)

	now := e.now()
	e.publish(bus.KindAuctionFinished, id, now, payload)
	e.publish(bus.KindAuctionUpdated, id, now, bus.AuctionUpdated{
		Changes: map[string]any{"state": model.StateFinished},
	})
	return scheduler.OutcomeFinished, nil
}
