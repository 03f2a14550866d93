package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/lot-auctions/internal/model"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store. It is used by the memory storage driver
// and by tests.
type Memory struct {
	mu       sync.RWMutex
	auctions map[string]model.Auction
	bids     map[string][]model.Bid
	config   model.AntiSnipingConfig

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

// NewMemory creates an empty store whose anti-sniping singleton starts at seed.
func NewMemory(seed model.AntiSnipingConfig) *Memory {
	return &Memory{
		auctions: make(map[string]model.Auction),
		bids:     make(map[string][]model.Bid),
		config:   seed,
		locks:    make(map[string]chan struct{}),
	}
}

// CreateAuction implements Store.
func (m *Memory) CreateAuction(ctx context.Context, a model.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.auctions[a.ID]; ok {
		return fmt.Errorf("auction %s already exists", a.ID)
	}
	for _, existing := range m.auctions {
		if existing.LotRef == a.LotRef && existing.State != model.StateCancelled {
			return ErrLotBusy
		}
	}
	m.auctions[a.ID] = a
	return nil
}

// Auction implements Reader.
func (m *Memory) Auction(ctx context.Context, id string) (model.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.auctions[id]
	if !ok {
		return model.Auction{}, ErrNotFound
	}
	return a, nil
}

// Bids implements Reader.
func (m *Memory) Bids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]model.Bid(nil), m.bids[auctionID]...), nil
}

// WinningBid implements Reader.
func (m *Memory) WinningBid(ctx context.Context, auctionID string) (model.Bid, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := winningOf(m.bids[auctionID])
	return b, ok, nil
}

// BidCount implements Reader.
func (m *Memory) BidCount(ctx context.Context, auctionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.bids[auctionID]), nil
}

// UpdateAuction implements Tx.
func (m *Memory) UpdateAuction(ctx context.Context, a model.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.auctions[a.ID]
	if !ok {
		return ErrNotFound
	}
	cur.EndTime = a.EndTime
	cur.State = a.State
	cur.ExtensionsApplied = a.ExtensionsApplied
	cur.UpdatedAt = a.UpdatedAt
	m.auctions[a.ID] = cur
	return nil
}

// InsertBid implements Tx.
func (m *Memory) InsertBid(ctx context.Context, b model.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.auctions[b.AuctionID]; !ok {
		return ErrNotFound
	}
	if b.IsWinning {
		if _, ok := winningOf(m.bids[b.AuctionID]); ok {
			return ErrWinnerExists
		}
	}
	m.bids[b.AuctionID] = append(m.bids[b.AuctionID], b)
	return nil
}

// ClearWinning implements Tx.
func (m *Memory) ClearWinning(ctx context.Context, auctionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.bids[auctionID] {
		m.bids[auctionID][i].IsWinning = false
	}
	return nil
}

// TransitionState implements Tx.
func (m *Memory) TransitionState(ctx context.Context, id string, from []model.State, to model.State) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[id]
	if !ok {
		return false, nil
	}
	if !containsState(from, a.State) {
		return false, nil
	}
	a.State = to
	a.UpdatedAt = time.Now()
	m.auctions[id] = a
	return true, nil
}

// DeleteAuction implements Tx.
func (m *Memory) DeleteAuction(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.auctions[id]; !ok {
		return ErrNotFound
	}
	delete(m.auctions, id)
	delete(m.bids, id)
	return nil
}

// ListAuctions implements Store.
func (m *Memory) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	return m.list(func(model.Auction) bool { return true }), nil
}

// ListNonTerminal implements Store.
func (m *Memory) ListNonTerminal(ctx context.Context) ([]model.Auction, error) {
	return m.list(func(a model.Auction) bool { return IsNonTerminal(a.State) }), nil
}

func (m *Memory) list(keep func(model.Auction) bool) []model.Auction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Auction, 0, len(m.auctions))
	for _, a := range m.auctions {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// AntiSniping implements Store.
func (m *Memory) AntiSniping(ctx context.Context) (model.AntiSnipingConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config, nil
}

// SaveAntiSniping implements Store.
func (m *Memory) SaveAntiSniping(ctx context.Context, cfg model.AntiSnipingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
	return nil
}

// WithLock implements Store. Waiting for the lock is bounded by ctx.
func (m *Memory) WithLock(ctx context.Context, id string, fn func(Tx) error) error {
	sem := m.semaphore(id)

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ErrLockTimeout
	}
	defer func() { <-sem }()

	m.mu.RLock()
	_, ok := m.auctions[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	return fn(m)
}

func (m *Memory) semaphore(id string) chan struct{} {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	sem, ok := m.locks[id]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[id] = sem
	}
	return sem
}

// ReadSnapshot implements Store. fn sees a copy taken under one read lock.
func (m *Memory) ReadSnapshot(ctx context.Context, id string, fn func(Reader) error) error {
	m.mu.RLock()
	a, ok := m.auctions[id]
	bids := append([]model.Bid(nil), m.bids[id]...)
	m.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	return fn(&frozen{auction: a, bids: bids})
}

// frozen is a Reader over one copied auction.
type frozen struct {
	auction model.Auction
	bids    []model.Bid
}

func (f *frozen) Auction(ctx context.Context, id string) (model.Auction, error) {
	if id != f.auction.ID {
		return model.Auction{}, ErrNotFound
	}
	return f.auction, nil
}

func (f *frozen) Bids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if auctionID != f.auction.ID {
		return nil, nil
	}
	return append([]model.Bid(nil), f.bids...), nil
}

func (f *frozen) WinningBid(ctx context.Context, auctionID string) (model.Bid, bool, error) {
	if auctionID != f.auction.ID {
		return model.Bid{}, false, nil
	}
	b, ok := winningOf(f.bids)
	return b, ok, nil
}

func (f *frozen) BidCount(ctx context.Context, auctionID string) (int, error) {
	if auctionID != f.auction.ID {
		return 0, nil
	}
	return len(f.bids), nil
}

func winningOf(bids []model.Bid) (model.Bid, bool) {
	for _, b := range bids {
		if b.IsWinning {
			return b, true
		}
	}
	return model.Bid{}, false
}
