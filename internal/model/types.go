package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Auction State
// -----------------------------------------------------------------------------

// State is the lifecycle state of an auction.
type State string

const (
	StateScheduled State = "SCHEDULED"
	StateActive    State = "ACTIVE"
	StateFinished  State = "FINISHED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateCancelled
}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	switch s {
	case StateScheduled, StateActive, StateFinished, StateCancelled:
		return true
	}
	return false
}

// ComputedState derives the live state of an auction from its declared state
// and the current time. It is the single source of truth for "is it open now".
func ComputedState(declared State, now, start, end time.Time) State {
	if declared == StateCancelled {
		return StateCancelled
	}
	if now.Before(start) {
		return StateScheduled
	}
	if !now.After(end) {
		return StateActive
	}
	return StateFinished
}

// -----------------------------------------------------------------------------
// Relational Types
// -----------------------------------------------------------------------------

// Auction is a timed ascending auction over one production lot.
type Auction struct {
	ID                string          `json:"id"`
	LotRef            string          `json:"lot_ref"`             // Opaque reference to the production lot
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`            // Moves forward on anti-sniping extensions
	BasePrice         decimal.Decimal `json:"base_price"`          // Minimum opening amount, never negative
	State             State           `json:"state"`               // Declared state, advanced by the clock or cancellation
	ExtensionsApplied int             `json:"extensions_applied"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Computed returns the live state of the auction at now.
func (a Auction) Computed(now time.Time) State {
	return ComputedState(a.State, now, a.StartTime, a.EndTime)
}

// Remaining returns the time left before the auction closes. Zero unless the
// auction is ACTIVE at now.
func (a Auction) Remaining(now time.Time) time.Duration {
	if a.Computed(now) != StateActive {
		return 0
	}
	return a.EndTime.Sub(now)
}

// RemainingSeconds returns Remaining truncated to whole seconds.
func (a Auction) RemainingSeconds(now time.Time) int {
	return int(a.Remaining(now) / time.Second)
}

// Bid is an accepted offer on an auction.
type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	PlacedAt  time.Time       `json:"placed_at"`
	IsWinning bool            `json:"is_winning"`
	Version   int64           `json:"version"` // 1-based position of the bid within its auction
}

// -----------------------------------------------------------------------------
// Configuration Types
// -----------------------------------------------------------------------------

// AntiSnipingConfig is the global, externally editable anti-sniping setting.
type AntiSnipingConfig struct {
	Enabled          bool `json:"enabled"`
	ThresholdSeconds int  `json:"threshold_seconds"`
	ExtensionSeconds int  `json:"extension_seconds"`
	MaxExtensions    int  `json:"max_extensions"` // 0 = unlimited
}

// DefaultAntiSniping returns the settings a fresh installation starts with.
func DefaultAntiSniping() AntiSnipingConfig {
	return AntiSnipingConfig{
		Enabled:          true,
		ThresholdSeconds: 120,
		ExtensionSeconds: 120,
		MaxExtensions:    5,
	}
}

// Threshold returns the threshold as a duration.
func (c AntiSnipingConfig) Threshold() time.Duration {
	return time.Duration(c.ThresholdSeconds) * time.Second
}

// Extension returns the extension as a duration.
func (c AntiSnipingConfig) Extension() time.Duration {
	return time.Duration(c.ExtensionSeconds) * time.Second
}
