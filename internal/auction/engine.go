package auction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/lot-auctions/internal/antisnipe"
	"github.com/rickgao/lot-auctions/internal/bus"
	"github.com/rickgao/lot-auctions/internal/model"
	"github.com/rickgao/lot-auctions/internal/store"
)

// Waker is the clock as seen by the engine.
type Waker interface {
	// Schedule starts a clock task for a new auction.
	Schedule(auctionID string)

	// Wake signals the auction's clock task without blocking.
	Wake(auctionID string)
}

// Config holds engine settings.
type Config struct {
	LockTimeout time.Duration    // Max wait for the per-auction lock
	Now         func() time.Time // Clock source; nil means time.Now
}

// Engine is the auction aggregate and bid ledger.
type Engine struct {
	store       store.Store
	pub         bus.Publisher
	logger      *slog.Logger
	lockTimeout time.Duration
	now         func() time.Time

	mu    sync.RWMutex
	waker Waker
}

// NewEngine creates an engine over st publishing to pub.
func NewEngine(st store.Store, pub bus.Publisher, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = bus.Discard
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:       st,
		pub:         pub,
		logger:      logger,
		lockTimeout: cfg.LockTimeout,
		now:         now,
	}
}

// UseScheduler connects the clock. Until called, Schedule and Wake are no-ops.
func (e *Engine) UseScheduler(w Waker) {
	e.mu.Lock()
	e.waker = w
	e.mu.Unlock()
}

func (e *Engine) schedule(id string) {
	e.mu.RLock()
	w := e.waker
	e.mu.RUnlock()
	if w != nil {
		w.Schedule(id)
	}
}

func (e *Engine) wake(id string) {
	e.mu.RLock()
	w := e.waker
	e.mu.RUnlock()
	if w != nil {
		w.Wake(id)
	}
}

func (e *Engine) publish(kind bus.Kind, auctionID string, at time.Time, payload any) {
	bus.Dispatch(e.pub, bus.NewEvent(kind, auctionID, at, payload))
}

// withLock runs fn under the auction lock, bounding the wait by the
// configured lock timeout.
func (e *Engine) withLock(ctx context.Context, id string, fn func(store.Tx) error) error {
	if e.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lockTimeout)
		defer cancel()
	}
	return translate(e.store.WithLock(ctx, id, fn))
}

// -----------------------------------------------------------------------------
// Create / Cancel / Delete
// -----------------------------------------------------------------------------

// CreateRequest holds the fields of a new auction.
type CreateRequest struct {
	LotRef    string
	StartTime time.Time
	EndTime   time.Time
	BasePrice decimal.Decimal
}

// CreateAuction validates and stores a new SCHEDULED auction, then hands it
// to the clock.
func (e *Engine) CreateAuction(ctx context.Context, req CreateRequest) (model.Auction, error) {
	lot := strings.TrimSpace(req.LotRef)
	if lot == "" {
		return model.Auction{}, ErrInvalidLot
	}
	if !req.EndTime.After(req.StartTime) {
		return model.Auction{}, ErrInvalidWindow
	}
	if req.BasePrice.IsNegative() || !req.BasePrice.Equal(req.BasePrice.Round(2)) {
		return model.Auction{}, ErrInvalidPrice
	}

	now := e.now()
	a := model.Auction{
		ID:        uuid.NewString(),
		LotRef:    lot,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		BasePrice: req.BasePrice,
		State:     model.StateScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateAuction(ctx, a); err != nil {
		return model.Auction{}, translate(err)
	}

	e.logger.Info("auction created",
		"auction_id", a.ID,
		"lot_ref", a.LotRef,
		"start_time", a.StartTime,
		"end_time", a.EndTime,
	)

	e.publish(bus.KindAuctionCreated, a.ID, now, bus.AuctionCreated{Auction: a})
	e.schedule(a.ID)
	return a, nil
}

// CancelResult describes a completed cancellation.
type CancelResult struct {
	Auction             model.Auction
	AffectedBidderCount int
	BidCount            int
}

// CancelAuction moves a SCHEDULED or ACTIVE auction to CANCELLED.
// Cancelling twice returns ErrAlreadyCancelled without side effects.
func (e *Engine) CancelAuction(ctx context.Context, id string) (CancelResult, error) {
	var res CancelResult
	now := e.now()

	err := e.withLock(ctx, id, func(tx store.Tx) error {
		a, err := tx.Auction(ctx, id)
		if err != nil {
			return err
		}
		if a.State == model.StateCancelled {
			return ErrAlreadyCancelled
		}
		if a.State == model.StateFinished || a.Computed(now) == model.StateFinished {
			return ErrAlreadyFinished
		}

		ok, err := tx.TransitionState(ctx, id,
			[]model.State{model.StateScheduled, model.StateActive}, model.StateCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyFinished
		}

		bids, err := tx.Bids(ctx, id)
		if err != nil {
			return err
		}
		bidders := make(map[string]struct{}, len(bids))
		for _, b := range bids {
			bidders[b.BidderID] = struct{}{}
		}

		a.State = model.StateCancelled
		a.UpdatedAt = now
		res = CancelResult{Auction: a, AffectedBidderCount: len(bidders), BidCount: len(bids)}
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}

	e.logger.Info("auction cancelled",
		"auction_id", id,
		"affected_bidders", res.AffectedBidderCount,
	)

	e.publish(bus.KindAuctionCancelled, id, now, bus.AuctionCancelled{
		AffectedBidderCount: res.AffectedBidderCount,
		BidCount:            res.BidCount,
	})
	e.wake(id)
	return res, nil
}

// DeleteAuction removes an auction and its bids.
func (e *Engine) DeleteAuction(ctx context.Context, id string) error {
	var lot string
	err := e.withLock(ctx, id, func(tx store.Tx) error {
		a, err := tx.Auction(ctx, id)
		if err != nil {
			return err
		}
		lot = a.LotRef
		return tx.DeleteAuction(ctx, id)
	})
	if err != nil {
		return err
	}

	e.logger.Info("auction deleted", "auction_id", id, "lot_ref", lot)

	e.publish(bus.KindAuctionDeleted, id, e.now(), bus.AuctionDeleted{LotRef: lot})
	e.wake(id)
	return nil
}

// -----------------------------------------------------------------------------
// Bidding
// -----------------------------------------------------------------------------

// BidResult describes an accepted bid.
type BidResult struct {
	Bid          model.Bid
	Auction      model.Auction // After any anti-sniping extension
	CurrentPrice decimal.Decimal
	BidCount     int
	Superseded   *model.Bid // Previous winning bid, if any
	Extension    antisnipe.Decision
}

// PlaceBid accepts amount from bidderID if the auction is open and amount
// strictly exceeds the current price. Validation, the ledger update and any
// anti-sniping extension happen under the auction lock; events are
// published and the clock is woken after it is released.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (BidResult, error) {
	bidderID = strings.TrimSpace(bidderID)
	if bidderID == "" {
		return BidResult{}, fmt.Errorf("%w: bidder_id is required", ErrInvalidBid)
	}
	if amount.IsNegative() || !amount.Equal(amount.Round(2)) {
		return BidResult{}, fmt.Errorf("%w: amount must be non-negative with at most two decimals", ErrInvalidBid)
	}

	// Read fresh so edits apply to the next bid without restarting anything.
	cfg, err := e.store.AntiSniping(ctx)
	if err != nil {
		return BidResult{}, fmt.Errorf("load antisniping config: %w", err)
	}

	var res BidResult
	err = e.withLock(ctx, auctionID, func(tx store.Tx) error {
		a, err := tx.Auction(ctx, auctionID)
		if err != nil {
			return err
		}

		now := e.now()
		if a.State.Terminal() || a.Computed(now) != model.StateActive {
			return ErrAuctionNotOpen
		}

		prev, hasPrev, err := tx.WinningBid(ctx, auctionID)
		if err != nil {
			return err
		}
		current := a.BasePrice
		if hasPrev {
			current = prev.Amount
		}
		if !amount.GreaterThan(current) {
			return fmt.Errorf("%w: current price is %s", ErrBidTooLow, current.StringFixed(2))
		}

		count, err := tx.BidCount(ctx, auctionID)
		if err != nil {
			return err
		}

		if hasPrev {
			if err := tx.ClearWinning(ctx, auctionID); err != nil {
				return err
			}
		}
		bid := model.Bid{
			ID:        uuid.NewString(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			PlacedAt:  now,
			IsWinning: true,
			Version:   int64(count) + 1,
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}

		d := antisnipe.Evaluate(cfg, a.EndTime, a.ExtensionsApplied, now)
		if d.Extend {
			a.EndTime = d.NewEnd
			a.ExtensionsApplied = d.Extensions
			a.UpdatedAt = now
			if err := tx.UpdateAuction(ctx, a); err != nil {
				return err
			}
		}

		res = BidResult{
			Bid:          bid,
			Auction:      a,
			CurrentPrice: amount,
			BidCount:     count + 1,
			Extension:    d,
		}
		if hasPrev {
			p := prev
			p.IsWinning = false
			res.Superseded = &p
		}
		return nil
	})
	if err != nil {
		e.logger.Debug("bid rejected",
			"auction_id", auctionID,
			"bidder_id", bidderID,
			"amount", amount.String(),
			"reason", Reason(err),
		)
		return BidResult{}, err
	}

	e.logger.Info("bid accepted",
		"auction_id", auctionID,
		"bidder_id", bidderID,
		"amount", amount.String(),
		"version", res.Bid.Version,
		"extended", res.Extension.Extend,
	)

	at := res.Bid.PlacedAt
	e.publish(bus.KindNewBid, auctionID, at, bus.NewBid{
		Bid:          res.Bid,
		CurrentPrice: res.CurrentPrice,
		BidCount:     res.BidCount,
	})
	if res.Superseded != nil && res.Superseded.BidderID != bidderID {
		e.publish(bus.KindBidSuperseded, auctionID, at, bus.BidSuperseded{
			BidderID:     res.Superseded.BidderID,
			NewBid:       res.Bid,
			CurrentPrice: res.CurrentPrice,
		})
	}
	if res.Extension.Extend {
		e.publish(bus.KindAuctionUpdated, auctionID, at, bus.AuctionUpdated{
			Changes: map[string]any{
				"end_time":           res.Auction.EndTime,
				"extensions_applied": res.Auction.ExtensionsApplied,
			},
			TimeExtended: true,
		})
	}
	e.wake(auctionID)
	return res, nil
}

// -----------------------------------------------------------------------------
// Anti-sniping configuration
// -----------------------------------------------------------------------------

// AntiSniping returns the current anti-sniping settings.
func (e *Engine) AntiSniping(ctx context.Context) (model.AntiSnipingConfig, error) {
	return e.store.AntiSniping(ctx)
}

// SetAntiSniping validates and replaces the anti-sniping settings. They take
// effect on the next accepted bid.
func (e *Engine) SetAntiSniping(ctx context.Context, cfg model.AntiSnipingConfig) (model.AntiSnipingConfig, error) {
	if err := ValidateAntiSniping(cfg); err != nil {
		return model.AntiSnipingConfig{}, err
	}
	if err := e.store.SaveAntiSniping(ctx, cfg); err != nil {
		return model.AntiSnipingConfig{}, fmt.Errorf("save antisniping config: %w", err)
	}
	e.logger.Info("antisniping config updated",
		"enabled", cfg.Enabled,
		"threshold_seconds", cfg.ThresholdSeconds,
		"extension_seconds", cfg.ExtensionSeconds,
		"max_extensions", cfg.MaxExtensions,
	)
	return cfg, nil
}

// ValidateAntiSniping checks field ranges.
func ValidateAntiSniping(cfg model.AntiSnipingConfig) error {
	switch {
	case cfg.ThresholdSeconds < 0:
		return fmt.Errorf("%w: threshold_seconds must be >= 0", ErrInvalidConfig)
	case cfg.ExtensionSeconds < 1:
		return fmt.Errorf("%w: extension_seconds must be >= 1", ErrInvalidConfig)
	case cfg.MaxExtensions < 0:
		return fmt.Errorf("%w: max_extensions must be >= 0", ErrInvalidConfig)
	}
	return nil
}
