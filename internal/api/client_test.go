package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/lot-auctions/internal/auction"
	"github.com/rickgao/lot-auctions/internal/model"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("http://localhost:8080/")

		if c.baseURL != "http://localhost:8080" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://localhost:8080")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with multiple options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		hc := &http.Client{}
		c := NewClient("http://localhost:8080",
			WithHTTPClient(hc),
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
		)
		if c.httpClient != hc {
			t.Error("custom HTTP client not set")
		}
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 || c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retries = %d/%v, want 10/500ms", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{StatusCode: 404, Message: "Not Found"}
		if got, want := err.Error(), "auction api error 404: Not Found"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}

		err = &APIError{StatusCode: 409, Reason: "bid_too_low", Message: "current price is 12.00"}
		if got, want := err.Error(), "auction api error 409: bid_too_low: current price is 12.00"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tests := []struct {
			code     int
			expected bool
		}{
			{500, true},
			{503, true},
			{429, true},
			{400, false},
			{404, false},
			{409, false},
		}

		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code}
			if got := err.IsRetryable(); got != tt.expected {
				t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
			}
		}
	})

	t.Run("ReasonOf", func(t *testing.T) {
		wrapped := errors.Join(errors.New("context"), &APIError{StatusCode: 409, Reason: "already_cancelled"})
		if got := ReasonOf(wrapped); got != "already_cancelled" {
			t.Errorf("ReasonOf() = %q, want already_cancelled", got)
		}
		if got := ReasonOf(errors.New("plain")); got != "" {
			t.Errorf("ReasonOf(plain) = %q, want empty", got)
		}
	})
}

// TestDoRequest tests the HTTP request functionality.
func TestDoRequest(t *testing.T) {
	t.Run("sends JSON body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", r.Header.Get("Content-Type"))
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"a":1}` {
				t.Errorf("body = %q", body)
			}
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		body, err := c.doRequest(context.Background(), http.MethodPost, "/test", nil, []byte(`{"a":1}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q, want %q", string(body), `{"status": "ok"}`)
		}
	})

	t.Run("decodes error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"bid_too_low","message":"bid_too_low: current price is 12.00"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil, nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != http.StatusConflict {
			t.Errorf("StatusCode = %d, want 409", apiErr.StatusCode)
		}
		if apiErr.Reason != "bid_too_low" {
			t.Errorf("Reason = %q, want bid_too_low", apiErr.Reason)
		}
		if !strings.Contains(apiErr.Message, "12.00") {
			t.Errorf("Message = %q", apiErr.Message)
		}
	})

	t.Run("non-JSON error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`upstream down`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil, nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.Reason != "" || apiErr.Message != "Bad Gateway" {
			t.Errorf("Reason/Message = %q/%q", apiErr.Reason, apiErr.Message)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		c := NewClient(server.URL)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.doRequest(ctx, http.MethodGet, "/test", nil, nil)
		if err == nil || !strings.Contains(err.Error(), "context canceled") {
			t.Errorf("error should contain 'context canceled', got %v", err)
		}
	})
}

// TestDoWithRetry tests the retry logic.
func TestDoWithRetry(t *testing.T) {
	failThenSucceed := func(failures int32, status int, body string) (*httptest.Server, *int32) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) <= failures {
				w.WriteHeader(status)
				w.Write([]byte(body))
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		return server, &attempts
	}

	t.Run("retries GET on 5xx", func(t *testing.T) {
		server, attempts := failThenSucceed(2, http.StatusInternalServerError, `error`)
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *attempts != 3 {
			t.Errorf("attempts = %d, want 3", *attempts)
		}
	})

	t.Run("does not retry POST on 500", func(t *testing.T) {
		server, attempts := failThenSucceed(1, http.StatusInternalServerError, `{"error":"internal_error"}`)
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodPost, "/test", nil, []byte(`{}`)); err == nil {
			t.Fatal("expected error, got nil")
		}
		if *attempts != 1 {
			t.Errorf("attempts = %d, want 1", *attempts)
		}
	})

	t.Run("retries POST on lock timeout", func(t *testing.T) {
		server, attempts := failThenSucceed(2, http.StatusServiceUnavailable, `{"error":"lock_timeout"}`)
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodPost, "/test", nil, []byte(`{}`)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *attempts != 3 {
			t.Errorf("attempts = %d, want 3", *attempts)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		server, attempts := failThenSucceed(5, http.StatusBadRequest, `{"error":"invalid_bid"}`)
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil, nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if *attempts != 1 {
			t.Errorf("attempts = %d, want 1", *attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		server, attempts := failThenSucceed(100, http.StatusInternalServerError, `error`)
		defer server.Close()

		c := NewClient(server.URL, WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil, nil)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error should contain 'max retries exceeded', got %v", err)
		}
		// 1 initial + 2 retries = 3 attempts
		if *attempts != 3 {
			t.Errorf("attempts = %d, want 3", *attempts)
		}
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		server, _ := failThenSucceed(100, http.StatusInternalServerError, `error`)
		defer server.Close()

		c := NewClient(server.URL, WithRetries(10, time.Second))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.doWithRetry(ctx, http.MethodGet, "/test", nil, nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	})
}

// TestEndpoints checks paths, methods and decoding of the typed calls.
func TestEndpoints(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		switch route {
		case "POST /api/v1/auctions":
			var req CreateAuctionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode create: %v", err)
			}
			json.NewEncoder(w).Encode(model.Auction{
				ID: "a1", LotRef: req.LotRef, StartTime: req.StartTime, EndTime: req.EndTime,
				BasePrice: req.BasePrice, State: model.StateScheduled,
			})
		case "GET /api/v1/auctions/a1":
			json.NewEncoder(w).Encode(auction.Snapshot{
				Auction:       model.Auction{ID: "a1"},
				ComputedState: model.StateActive,
				CurrentPrice:  decimal.RequireFromString("12.5"),
				BidCount:      1,
			})
		case "POST /api/v1/auctions/a1/bids":
			var req PlaceBidRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode bid: %v", err)
			}
			json.NewEncoder(w).Encode(BidResponse{
				Bid:          model.Bid{ID: "b1", AuctionID: "a1", BidderID: req.BidderID, Amount: req.Amount, IsWinning: true, Version: 1},
				CurrentPrice: req.Amount,
				BidCount:     1,
			})
		case "GET /api/v1/auctions/a1/bids":
			json.NewEncoder(w).Encode(BidsResponse{Bids: []model.Bid{{ID: "b2"}, {ID: "b1"}}, Count: 2})
		case "POST /api/v1/auctions/a1/cancel":
			json.NewEncoder(w).Encode(CancelResponse{AffectedBidderCount: 2, BidCount: 3})
		case "DELETE /api/v1/auctions/a1":
			w.WriteHeader(http.StatusNoContent)
		case "PUT /api/v1/config/antisniping":
			var cfg model.AntiSnipingConfig
			json.NewDecoder(r.Body).Decode(&cfg)
			json.NewEncoder(w).Encode(cfg)
		case "GET /api/v1/auctions/summary":
			json.NewEncoder(w).Encode(auction.Summary{Active: 1, Total: 1})
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"auction_not_found"}`))
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(0, time.Millisecond))
	ctx := context.Background()

	a, err := c.CreateAuction(ctx, CreateAuctionRequest{
		LotRef: "lot-9", StartTime: start, EndTime: start.Add(time.Hour), BasePrice: decimal.RequireFromString("10"),
	})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if a.ID != "a1" || a.LotRef != "lot-9" || !a.EndTime.Equal(start.Add(time.Hour)) {
		t.Errorf("CreateAuction = %+v", a)
	}

	snap, err := c.GetAuction(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAuction: %v", err)
	}
	if snap.ComputedState != model.StateActive || !snap.CurrentPrice.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("GetAuction = %+v", snap)
	}

	bid, err := c.PlaceBid(ctx, "a1", "alice", decimal.RequireFromString("13"))
	if err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if bid.Bid.BidderID != "alice" || !bid.CurrentPrice.Equal(decimal.RequireFromString("13")) {
		t.Errorf("PlaceBid = %+v", bid)
	}

	bids, err := c.ListBids(ctx, "a1")
	if err != nil || len(bids) != 2 || bids[0].ID != "b2" {
		t.Errorf("ListBids = %+v, %v", bids, err)
	}

	cancelled, err := c.CancelAuction(ctx, "a1")
	if err != nil || cancelled.AffectedBidderCount != 2 {
		t.Errorf("CancelAuction = %+v, %v", cancelled, err)
	}

	if err := c.DeleteAuction(ctx, "a1"); err != nil {
		t.Errorf("DeleteAuction: %v", err)
	}

	want := model.AntiSnipingConfig{Enabled: true, ThresholdSeconds: 30, ExtensionSeconds: 60, MaxExtensions: 3}
	got, err := c.SetAntiSniping(ctx, want)
	if err != nil || *got != want {
		t.Errorf("SetAntiSniping = %+v, %v", got, err)
	}

	summary, err := c.Summary(ctx)
	if err != nil || summary.Active != 1 {
		t.Errorf("Summary = %+v, %v", summary, err)
	}

	_, err = c.GetAuction(ctx, "missing")
	if ReasonOf(err) != "auction_not_found" {
		t.Errorf("GetAuction(missing) err = %v", err)
	}
}
