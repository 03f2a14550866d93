package auction

import (
	"errors"

	"github.com/rickgao/lot-auctions/internal/store"
)

var (
	ErrAuctionNotOpen    = errors.New("auction is not open for bidding")
	ErrBidTooLow         = errors.New("bid must exceed the current price")
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrAlreadyCancelled  = errors.New("auction is already cancelled")
	ErrAlreadyFinished   = errors.New("auction has already finished")
	ErrInvalidWindow     = errors.New("end time must be after start time")
	ErrLockTimeout       = errors.New("auction is busy, retry later")
	ErrLotHasLiveAuction = errors.New("lot already has a live auction")
	ErrInvalidLot        = errors.New("lot reference is required")
	ErrInvalidPrice      = errors.New("base price must be a non-negative amount with at most two decimals")
	ErrInvalidBid        = errors.New("invalid bid")
	ErrInvalidConfig     = errors.New("invalid anti-sniping configuration")
)

// reasons maps each sentinel to its stable, user-visible reason string.
var reasons = []struct {
	err    error
	reason string
}{
	{ErrAuctionNotOpen, "auction_not_open"},
	{ErrBidTooLow, "bid_too_low"},
	{ErrAuctionNotFound, "auction_not_found"},
	{ErrAlreadyCancelled, "already_cancelled"},
	{ErrAlreadyFinished, "already_finished"},
	{ErrInvalidWindow, "invalid_window"},
	{ErrLockTimeout, "lock_timeout"},
	{ErrLotHasLiveAuction, "lot_has_live_auction"},
	{ErrInvalidLot, "invalid_lot"},
	{ErrInvalidPrice, "invalid_price"},
	{ErrInvalidBid, "invalid_bid"},
	{ErrInvalidConfig, "invalid_config"},
}

// Reason returns the reason string for err, or "internal_error" for errors
// outside the taxonomy.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal_error"
}

// IsRetryable reports whether the caller may retry the same command.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// translate maps storage errors onto the engine's taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrAuctionNotFound
	case errors.Is(err, store.ErrLockTimeout):
		return ErrLockTimeout
	case errors.Is(err, store.ErrLotBusy):
		return ErrLotHasLiveAuction
	}
	return err
}
