package auction

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"

	"github.com/rickgao/lot-auctions/internal/antisnipe"
	"github.com/rickgao/lot-auctions/internal/bus"
	"github.com/rickgao/lot-auctions/internal/model"
	"github.com/rickgao/lot-auctions/internal/scheduler"
	"github.com/rickgao/lot-auctions/internal/store"
)

func TestCreateAuction_Validation(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	now := f.clock.Now()

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{
			name: "missing lot",
			req:  CreateRequest{StartTime: now, EndTime: now.Add(time.Hour), BasePrice: dec("1")},
			want: ErrInvalidLot,
		},
		{
			name: "end equals start",
			req:  CreateRequest{LotRef: "lot", StartTime: now, EndTime: now, BasePrice: dec("1")},
			want: ErrInvalidWindow,
		},
		{
			name: "end before start",
			req:  CreateRequest{LotRef: "lot", StartTime: now, EndTime: now.Add(-time.Second), BasePrice: dec("1")},
			want: ErrInvalidWindow,
		},
		{
			name: "negative price",
			req:  CreateRequest{LotRef: "lot", StartTime: now, EndTime: now.Add(time.Hour), BasePrice: dec("-0.01")},
			want: ErrInvalidPrice,
		},
		{
			name: "sub-cent price",
			req:  CreateRequest{LotRef: "lot", StartTime: now, EndTime: now.Add(time.Hour), BasePrice: dec("1.005")},
			want: ErrInvalidPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateAuction(ctx, tt.req)
			check.True(t, errors.Is(err, tt.want))
		})
	}

	check.Equal(t, 0, f.events.count(bus.KindAuctionCreated))
}

func TestCreateAuction_SchedulesAndPublishes(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	now := f.clock.Now()

	a, err := f.engine.CreateAuction(ctx, CreateRequest{
		LotRef:    "lot-7",
		StartTime: now.Add(time.Minute),
		EndTime:   now.Add(time.Hour),
		BasePrice: dec("0"),
	})
	check.NoError(t, err)
	check.Equal(t, model.StateScheduled, a.State)
	check.Equal(t, []string{a.ID}, f.waker.scheduled)
	check.Equal(t, 1, f.events.count(bus.KindAuctionCreated))

	_, err = f.engine.CreateAuction(ctx, CreateRequest{
		LotRef:    "lot-7",
		StartTime: now.Add(2 * time.Hour),
		EndTime:   now.Add(3 * time.Hour),
		BasePrice: dec("5"),
	})
	check.True(t, errors.Is(err, ErrLotHasLiveAuction))

	// A cancelled auction frees the lot.
	_, err = f.engine.CancelAuction(ctx, a.ID)
	check.NoError(t, err)
	_, err = f.engine.CreateAuction(ctx, CreateRequest{
		LotRef:    "lot-7",
		StartTime: now.Add(2 * time.Hour),
		EndTime:   now.Add(3 * time.Hour),
		BasePrice: dec("5"),
	})
	check.NoError(t, err)
}

func TestPlaceBid_Rules(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "10.00", time.Hour)

	_, err := f.engine.PlaceBid(ctx, a.ID, "alice", dec("10.00"))
	check.True(t, errors.Is(err, ErrBidTooLow))

	res, err := f.engine.PlaceBid(ctx, a.ID, "alice", dec("10.01"))
	check.NoError(t, err)
	check.True(t, res.Bid.IsWinning)
	check.Equal(t, int64(1), res.Bid.Version)
	check.Nil(t, res.Superseded)

	_, err = f.engine.PlaceBid(ctx, a.ID, "bob", dec("10.01"))
	check.True(t, errors.Is(err, ErrBidTooLow))

	_, err = f.engine.PlaceBid(ctx, a.ID, "", dec("20"))
	check.True(t, errors.Is(err, ErrInvalidBid))

	_, err = f.engine.PlaceBid(ctx, a.ID, "bob", dec("20.001"))
	check.True(t, errors.Is(err, ErrInvalidBid))

	_, err = f.engine.PlaceBid(ctx, "missing", "bob", dec("20"))
	check.True(t, errors.Is(err, ErrAuctionNotFound))

	res, err = f.engine.PlaceBid(ctx, a.ID, "bob", dec("11"))
	check.NoError(t, err)
	check.Equal(t, int64(2), res.Bid.Version)
	check.NotNil(t, res.Superseded)
	check.Equal(t, "alice", res.Superseded.BidderID)

	check.Equal(t, 2, f.events.count(bus.KindNewBid))
	check.Equal(t, 1, f.events.count(bus.KindBidSuperseded))
	check.Equal(t, 2, f.waker.wakeCount(a.ID))

	ev, _ := f.events.last(bus.KindBidSuperseded)
	payload := ev.Payload.(bus.BidSuperseded)
	check.Equal(t, "alice", payload.BidderID)
	check.True(t, payload.CurrentPrice.Equal(dec("11")))
}

func TestPlaceBid_SameBidderRaisingIsNotSuperseded(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "1", time.Hour)

	_, err := f.engine.PlaceBid(ctx, a.ID, "alice", dec("2"))
	check.NoError(t, err)
	_, err = f.engine.PlaceBid(ctx, a.ID, "alice", dec("3"))
	check.NoError(t, err)

	check.Equal(t, 0, f.events.count(bus.KindBidSuperseded))
}

func TestPlaceBid_OnlyWhileActive(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	start := f.clock.Now().Add(time.Minute)

	a, err := f.engine.CreateAuction(ctx, CreateRequest{
		LotRef:    "lot-1",
		StartTime: start,
		EndTime:   start.Add(time.Minute),
		BasePrice: dec("1"),
	})
	check.NoError(t, err)

	// Before start
	_, err = f.engine.PlaceBid(ctx, a.ID, "alice", dec("2"))
	check.True(t, errors.Is(err, ErrAuctionNotOpen))

	// Computed state is authoritative even before the clock activates it.
	f.clock.Set(start)
	_, err = f.engine.PlaceBid(ctx, a.ID, "alice", dec("2"))
	check.NoError(t, err)

	// Inclusive end
	f.clock.Set(start.Add(time.Minute))
	_, err = f.engine.PlaceBid(ctx, a.ID, "bob", dec("3"))
	check.NoError(t, err)

	f.clock.Advance(time.Nanosecond)
	_, err = f.engine.PlaceBid(ctx, a.ID, "carol", dec("4"))
	check.True(t, errors.Is(err, ErrAuctionNotOpen))
}

func TestPlaceBid_CancelledRejectsImmediately(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "1", time.Hour)

	_, err := f.engine.CancelAuction(ctx, a.ID)
	check.NoError(t, err)

	_, err = f.engine.PlaceBid(ctx, a.ID, "alice", dec("2"))
	check.True(t, errors.Is(err, ErrAuctionNotOpen))
}

func TestPlaceBid_SingleWinnerIsMaximum(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "1.00", time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := dec(fmt.Sprintf("%d.00", 2+rand.Intn(100)))
			_, _ = f.engine.PlaceBid(ctx, a.ID, fmt.Sprintf("bidder-%d", i), amount)
		}(i)
	}
	wg.Wait()

	bids, err := f.store.Bids(ctx, a.ID)
	check.NoError(t, err)
	check.True(t, len(bids) > 0)

	winners := 0
	var max model.Bid
	for _, b := range bids {
		if b.IsWinning {
			winners++
		}
		if b.Amount.GreaterThan(max.Amount) {
			max = b
		}
	}
	check.Equal(t, 1, winners)

	w, ok, err := f.store.WinningBid(ctx, a.ID)
	check.NoError(t, err)
	check.True(t, ok)
	check.Equal(t, max.ID, w.ID)
}

func TestPlaceBid_AcceptedSequenceStrictlyIncreases(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "0", time.Hour)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []model.Bid
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := dec(fmt.Sprintf("%d.%02d", rand.Intn(50), rand.Intn(100)))
			res, err := f.engine.PlaceBid(ctx, a.ID, fmt.Sprintf("bidder-%d", i%7), amount)
			if err != nil {
				if !errors.Is(err, ErrBidTooLow) {
					t.Errorf("PlaceBid: %v", err)
				}
				return
			}
			mu.Lock()
			accepted = append(accepted, res.Bid)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Version < accepted[j].Version })
	for i := 1; i < len(accepted); i++ {
		prev, cur := accepted[i-1], accepted[i]
		check.Equal(t, prev.Version+1, cur.Version)
		if !cur.Amount.GreaterThan(prev.Amount) {
			t.Errorf("bid v%d (%s) does not exceed v%d (%s)", cur.Version, cur.Amount, prev.Version, prev.Amount)
		}
	}

	n, _ := f.store.BidCount(ctx, a.ID)
	check.Equal(t, len(accepted), n)
}

func TestPlaceBid_LockTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	f.engine.lockTimeout = 20 * time.Millisecond
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "1", time.Hour)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = f.store.WithLock(ctx, a.ID, func(tx store.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	_, err := f.engine.PlaceBid(ctx, a.ID, "alice", dec("2"))
	check.True(t, errors.Is(err, ErrLockTimeout))
	check.True(t, IsRetryable(err))
	check.Equal(t, "lock_timeout", Reason(err))
}

func TestAntiSniping_ThresholdScenario(t *testing.T) {
	// threshold=120s, extension=120s, max_extensions=2
	f := newFixture(t, model.AntiSnipingConfig{Enabled: true, ThresholdSeconds: 120, ExtensionSeconds: 120, MaxExtensions: 2})
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "10", 10*time.Minute)
	end := a.EndTime

	amounts := []string{"11", "12", "13"}
	for i, amount := range amounts {
		f.clock.Set(end.Add(-60 * time.Second))
		res, err := f.engine.PlaceBid(ctx, a.ID, "bidder", dec(amount))
		check.NoError(t, err)

		if i < 2 {
			check.True(t, res.Extension.Extend)
			check.True(t, res.Auction.EndTime.Equal(end.Add(120*time.Second)))
			check.Equal(t, i+1, res.Auction.ExtensionsApplied)
		} else {
			check.False(t, res.Extension.Extend)
			check.Equal(t, antisnipe.ReasonLimitReached, res.Extension.Reason)
			check.True(t, res.Auction.EndTime.Equal(end))
			check.Equal(t, 2, res.Auction.ExtensionsApplied)
		}
		end = res.Auction.EndTime
	}

	stored, _ := f.store.Auction(ctx, a.ID)
	check.Equal(t, 2, stored.ExtensionsApplied)
	check.True(t, stored.EndTime.Equal(a.EndTime.Add(240*time.Second)))
	check.Equal(t, 2, f.events.count(bus.KindAuctionUpdated)-1) // minus activation

	ev, _ := f.events.last(bus.KindAuctionUpdated)
	upd := ev.Payload.(bus.AuctionUpdated)
	check.True(t, upd.TimeExtended)
	check.Equal(t, 2, upd.Changes["extensions_applied"].(int))
}

func TestAntiSniping_ConfigReadPerBid(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "10", 10*time.Minute)
	f.clock.Set(a.EndTime.Add(-30 * time.Second))

	res, err := f.engine.PlaceBid(ctx, a.ID, "alice", dec("11"))
	check.NoError(t, err)
	check.False(t, res.Extension.Extend)

	_, err = f.engine.SetAntiSniping(ctx, model.AntiSnipingConfig{Enabled: true, ThresholdSeconds: 60, ExtensionSeconds: 30})
	check.NoError(t, err)

	res, err = f.engine.PlaceBid(ctx, a.ID, "bob", dec("12"))
	check.NoError(t, err)
	check.True(t, res.Extension.Extend)
	check.True(t, res.Auction.EndTime.Equal(a.EndTime.Add(30*time.Second)))
}

func TestSetAntiSniping_Validation(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()

	bad := []model.AntiSnipingConfig{
		{ThresholdSeconds: -1, ExtensionSeconds: 1},
		{ThresholdSeconds: 10, ExtensionSeconds: 0},
		{ThresholdSeconds: 10, ExtensionSeconds: 10, MaxExtensions: -1},
	}
	for _, cfg := range bad {
		_, err := f.engine.SetAntiSniping(ctx, cfg)
		check.True(t, errors.Is(err, ErrInvalidConfig))
	}

	got, err := f.engine.AntiSniping(ctx)
	check.NoError(t, err)
	check.Equal(t, noAntiSniping(), got)
}

func TestCancelAuction(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "1", time.Hour)

	_, _ = f.engine.PlaceBid(ctx, a.ID, "alice", dec("2"))
	_, _ = f.engine.PlaceBid(ctx, a.ID, "bob", dec("3"))
	_, _ = f.engine.PlaceBid(ctx, a.ID, "alice", dec("4"))

	res, err := f.engine.CancelAuction(ctx, a.ID)
	check.NoError(t, err)
	check.Equal(t, 2, res.AffectedBidderCount)
	check.Equal(t, 3, res.BidCount)
	check.Equal(t, model.StateCancelled, res.Auction.State)

	// Idempotent: error, no second side effect.
	_, err = f.engine.CancelAuction(ctx, a.ID)
	check.True(t, errors.Is(err, ErrAlreadyCancelled))
	check.Equal(t, 1, f.events.count(bus.KindAuctionCancelled))

	ev, _ := f.events.last(bus.KindAuctionCancelled)
	check.Equal(t, 2, ev.Payload.(bus.AuctionCancelled).AffectedBidderCount)
}

func TestCancelAuction_Finished(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "1", time.Minute)

	// Computed FINISHED, declared still ACTIVE
	f.clock.Advance(2 * time.Minute)
	_, err := f.engine.CancelAuction(ctx, a.ID)
	check.True(t, errors.Is(err, ErrAlreadyFinished))

	outcome, err := f.engine.Finalize(ctx, a.ID)
	check.NoError(t, err)
	check.Equal(t, scheduler.OutcomeFinished, outcome)

	_, err = f.engine.CancelAuction(ctx, a.ID)
	check.True(t, errors.Is(err, ErrAlreadyFinished))
	check.Equal(t, 0, f.events.count(bus.KindAuctionCancelled))

	_, err = f.engine.CancelAuction(ctx, "missing")
	check.True(t, errors.Is(err, ErrAuctionNotFound))
}

func TestFinalize_PublishesOnce(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "1", time.Minute)
	_, err := f.engine.PlaceBid(ctx, a.ID, "alice", dec("5"))
	check.NoError(t, err)

	f.clock.Advance(time.Minute)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[scheduler.Outcome]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := f.engine.Finalize(ctx, a.ID)
			if err != nil {
				t.Errorf("Finalize: %v", err)
				return
			}
			mu.Lock()
			outcomes[o]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	check.Equal(t, 1, outcomes[scheduler.OutcomeFinished])
	check.Equal(t, 9, outcomes[scheduler.OutcomeGone])
	check.Equal(t, 1, f.events.count(bus.KindAuctionFinished))

	ev, _ := f.events.last(bus.KindAuctionFinished)
	payload := ev.Payload.(bus.AuctionFinished)
	check.False(t, payload.NoBids)
	check.Equal(t, "alice", payload.Winner.BidderID)
	check.True(t, payload.FinalAmount.Equal(dec("5")))
	check.Equal(t, 1, payload.BidCount)
}

func TestFinalize_PendingBeforeEnd(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "1", time.Minute)

	f.clock.Advance(30 * time.Second)
	outcome, err := f.engine.Finalize(ctx, a.ID)
	check.NoError(t, err)
	check.Equal(t, scheduler.OutcomePending, outcome)

	f.clock.Advance(time.Minute)
	outcome, err = f.engine.Finalize(ctx, a.ID)
	check.NoError(t, err)
	check.Equal(t, scheduler.OutcomeFinished, outcome)

	ev, _ := f.events.last(bus.KindAuctionFinished)
	check.True(t, ev.Payload.(bus.AuctionFinished).NoBids)
}

func TestActivate_LosesToCancel(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	now := f.clock.Now()
	a, err := f.engine.CreateAuction(ctx, CreateRequest{
		LotRef:    "lot-1",
		StartTime: now.Add(time.Minute),
		EndTime:   now.Add(time.Hour),
		BasePrice: dec("1"),
	})
	check.NoError(t, err)

	_, err = f.engine.CancelAuction(ctx, a.ID)
	check.NoError(t, err)

	ok, err := f.engine.Activate(ctx, a.ID)
	check.NoError(t, err)
	check.False(t, ok)
	check.Equal(t, 0, f.events.count(bus.KindAuctionStarted))
}

func TestDeleteAuction(t *testing.T) {
	f := newFixture(t, noAntiSniping())
	ctx := context.Background()
	a := f.openAuction(t, "lot-1", "1", time.Hour)
	_, _ = f.engine.PlaceBid(ctx, a.ID, "alice", dec("2"))

	check.NoError(t, f.engine.DeleteAuction(ctx, a.ID))
	check.Equal(t, 1, f.events.count(bus.KindAuctionDeleted))

	_, err := f.engine.Snapshot(ctx, a.ID)
	check.True(t, errors.Is(err, ErrAuctionNotFound))

	err = f.engine.DeleteAuction(ctx, a.ID)
	check.True(t, errors.Is(err, ErrAuctionNotFound))

	_, ok, err := f.engine.Load(ctx, a.ID)
	check.NoError(t, err)
	check.False(t, ok)
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrBidTooLow, "bid_too_low"},
		{fmt.Errorf("%w: current price is 12.00", ErrBidTooLow), "bid_too_low"},
		{ErrAuctionNotOpen, "auction_not_open"},
		{ErrAlreadyCancelled, "already_cancelled"},
		{ErrAlreadyFinished, "already_finished"},
		{ErrInvalidWindow, "invalid_window"},
		{ErrLockTimeout, "lock_timeout"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tt := range tests {
		check.Equal(t, tt.want, Reason(tt.err))
	}
	check.False(t, IsRetryable(ErrBidTooLow))
}
