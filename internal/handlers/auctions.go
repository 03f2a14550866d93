package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rickgao/lot-auctions/internal/api"
	"github.com/rickgao/lot-auctions/internal/auction"
	"github.com/rickgao/lot-auctions/internal/model"
)

// ListAuctions returns every auction with its computed state.
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListAuctions(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, api.AuctionsResponse{Auctions: list, Count: len(list)})
}

// Summary returns counts by computed state.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Summary(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// CreateAuction schedules a new auction.
func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req api.CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	a, err := h.engine.CreateAuction(r.Context(), auction.CreateRequest{
		LotRef:    req.LotRef,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		BasePrice: req.BasePrice,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// GetAuction returns a snapshot of one auction.
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// DeleteAuction removes an auction and its bids.
func (h *Handler) DeleteAuction(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteAuction(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelAuction cancels a SCHEDULED or ACTIVE auction.
func (h *Handler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.CancelAuction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, api.CancelResponse{
		Auction:             res.Auction,
		AffectedBidderCount: res.AffectedBidderCount,
		BidCount:            res.BidCount,
	})
}

// ListBids returns the bid history, newest first.
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.engine.BidHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, api.BidsResponse{Bids: bids, Count: len(bids)})
}

// PlaceBid submits a bid.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req api.PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	res, err := h.engine.PlaceBid(r.Context(), mux.Vars(r)["id"], req.BidderID, req.Amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, api.BidResponse{
		Bid:               res.Bid,
		CurrentPrice:      res.CurrentPrice,
		BidCount:          res.BidCount,
		EndTime:           res.Auction.EndTime,
		ExtensionsApplied: res.Auction.ExtensionsApplied,
		TimeExtended:      res.Extension.Extend,
	})
}

// GetAntiSniping returns the anti-sniping settings.
func (h *Handler) GetAntiSniping(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.engine.AntiSniping(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// SetAntiSniping replaces the anti-sniping settings.
func (h *Handler) SetAntiSniping(w http.ResponseWriter, r *http.Request) {
	var cfg model.AntiSnipingConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	saved, err := h.engine.SetAntiSniping(r.Context(), cfg)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}
