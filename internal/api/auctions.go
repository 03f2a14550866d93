package api

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/rickgao/lot-auctions/internal/auction"
	"github.com/rickgao/lot-auctions/internal/model"
)

func auctionPath(id string) string {
	return "/api/v1/auctions/" + url.PathEscape(id)
}

// Health returns server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAuctions returns every auction with its computed state.
func (c *Client) ListAuctions(ctx context.Context) ([]auction.Overview, error) {
	var resp AuctionsResponse
	if err := c.get(ctx, "/api/v1/auctions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Auctions, nil
}

// Summary returns auction counts by computed state.
func (c *Client) Summary(ctx context.Context) (*auction.Summary, error) {
	var resp auction.Summary
	if err := c.get(ctx, "/api/v1/auctions/summary", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateAuction schedules a new auction.
func (c *Client) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*model.Auction, error) {
	var resp model.Auction
	if err := c.call(ctx, "POST", "/api/v1/auctions", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAuction returns a snapshot of one auction.
func (c *Client) GetAuction(ctx context.Context, id string) (*auction.Snapshot, error) {
	var resp auction.Snapshot
	if err := c.get(ctx, auctionPath(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteAuction removes an auction and its bids.
func (c *Client) DeleteAuction(ctx context.Context, id string) error {
	return c.call(ctx, "DELETE", auctionPath(id), nil, nil, nil)
}

// CancelAuction cancels a SCHEDULED or ACTIVE auction.
func (c *Client) CancelAuction(ctx context.Context, id string) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.call(ctx, "POST", auctionPath(id)+"/cancel", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListBids returns the bid history of an auction, newest first.
func (c *Client) ListBids(ctx context.Context, id string) ([]model.Bid, error) {
	var resp BidsResponse
	if err := c.get(ctx, auctionPath(id)+"/bids", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Bids, nil
}

// PlaceBid submits a bid.
func (c *Client) PlaceBid(ctx context.Context, id, bidderID string, amount decimal.Decimal) (*BidResponse, error) {
	var resp BidResponse
	req := PlaceBidRequest{BidderID: bidderID, Amount: amount}
	if err := c.call(ctx, "POST", auctionPath(id)+"/bids", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAntiSniping returns the anti-sniping settings.
func (c *Client) GetAntiSniping(ctx context.Context) (*model.AntiSnipingConfig, error) {
	var resp model.AntiSnipingConfig
	if err := c.get(ctx, "/api/v1/config/antisniping", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetAntiSniping replaces the anti-sniping settings.
func (c *Client) SetAntiSniping(ctx context.Context, cfg model.AntiSnipingConfig) (*model.AntiSnipingConfig, error) {
	var resp model.AntiSnipingConfig
	if err := c.call(ctx, "PUT", "/api/v1/config/antisniping", nil, cfg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
