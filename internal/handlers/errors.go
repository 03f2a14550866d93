package handlers

import (
	"errors"
	"net/http"

	"github.com/rickgao/lot-auctions/internal/api"
	"github.com/rickgao/lot-auctions/internal/auction"
)

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrInvalidWindow),
		errors.Is(err, auction.ErrInvalidLot),
		errors.Is(err, auction.ErrInvalidPrice),
		errors.Is(err, auction.ErrInvalidBid),
		errors.Is(err, auction.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, auction.ErrAuctionNotOpen),
		errors.Is(err, auction.ErrBidTooLow),
		errors.Is(err, auction.ErrAlreadyCancelled),
		errors.Is(err, auction.ErrAlreadyFinished),
		errors.Is(err, auction.ErrLotHasLiveAuction):
		return http.StatusConflict
	case errors.Is(err, auction.ErrLockTimeout):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err as an ErrorResponse.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := api.ErrorResponse{Error: auction.Reason(err), Message: err.Error()}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		body.Message = "internal error"
	}
	if auction.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, status, body)
}

// badRequest rejects a body that could not be decoded.
func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid_request", Message: msg})
}
