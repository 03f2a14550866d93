package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/lot-auctions/internal/bus"
	"github.com/rickgao/lot-auctions/internal/model"
	"github.com/rickgao/lot-auctions/internal/store"
)

// recorder keeps each published event once.
type recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recorder) Publish(topic bus.Topic, ev bus.Event) {
	if !bus.Home(topic, ev) {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(kind bus.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind bus.Kind) (bus.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return bus.Event{}, false
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// wakeRecorder is a Waker that counts calls.
type wakeRecorder struct {
	mu        sync.Mutex
	scheduled []string
	wakes     map[string]int
}

func (w *wakeRecorder) Schedule(id string) {
	w.mu.Lock()
	w.scheduled = append(w.scheduled, id)
	w.mu.Unlock()
}

func (w *wakeRecorder) Wake(id string) {
	w.mu.Lock()
	if w.wakes == nil {
		w.wakes = make(map[string]int)
	}
	w.wakes[id]++
	w.mu.Unlock()
}

func (w *wakeRecorder) wakeCount(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wakes[id]
}

type fixture struct {
	engine *Engine
	store  *store.Memory
	events *recorder
	clock  *fakeClock
	waker  *wakeRecorder
}

func newFixture(t *testing.T, cfg model.AntiSnipingConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemory(cfg),
		events: &recorder{},
		clock:  newFakeClock(),
		waker:  &wakeRecorder{},
	}
	f.engine = NewEngine(f.store, f.events, Config{LockTimeout: time.Second, Now: f.clock.Now}, nil)
	f.engine.UseScheduler(f.waker)
	return f
}

// openAuction creates an auction whose window is [now, now+window] and
// marks it ACTIVE.
func (f *fixture) openAuction(t *testing.T, lot, base string, window time.Duration) model.Auction {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()
	a, err := f.engine.CreateAuction(ctx, CreateRequest{
		LotRef:    lot,
		StartTime: now,
		EndTime:   now.Add(window),
		BasePrice: dec(base),
	})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if ok, err := f.engine.Activate(ctx, a.ID); err != nil || !ok {
		t.Fatalf("Activate = %v, %v", ok, err)
	}
	a.State = model.StateActive
	return a
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func noAntiSniping() model.AntiSnipingConfig {
	return model.AntiSnipingConfig{ThresholdSeconds: 120, ExtensionSeconds: 120}
}
