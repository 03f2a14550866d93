package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/lot-auctions/internal/auction"
	"github.com/rickgao/lot-auctions/internal/model"
)

// CreateAuctionRequest is the body of POST /auctions.
type CreateAuctionRequest struct {
	LotRef    string          `json:"lot_ref"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	BasePrice decimal.Decimal `json:"base_price"`
}

// PlaceBidRequest is the body of POST /auctions/{id}/bids.
type PlaceBidRequest struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// BidResponse describes an accepted bid.
type BidResponse struct {
	Bid               model.Bid       `json:"bid"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	BidCount          int             `json:"bid_count"`
	EndTime           time.Time       `json:"end_time"`
	ExtensionsApplied int             `json:"extensions_applied"`
	TimeExtended      bool            `json:"time_extended"`
}

// CancelResponse describes a cancellation.
type CancelResponse struct {
	Auction             model.Auction `json:"auction"`
	AffectedBidderCount int           `json:"affected_bidder_count"`
	BidCount            int           `json:"bid_count"`
}

// AuctionsResponse is the body of GET /auctions.
type AuctionsResponse struct {
	Auctions []auction.Overview `json:"auctions"`
	Count    int                `json:"count"`
}

// BidsResponse is the body of GET /auctions/{id}/bids. Newest first.
type BidsResponse struct {
	Bids  []model.Bid `json:"bids"`
	Count int         `json:"count"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"` // Reason string
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Commit     string         `json:"commit"`
	Components map[string]any `json:"components"`
}
