package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/lot-auctions/internal/model"
)

// Outcome is the result of a Finalize attempt.
type Outcome int

const (
	// OutcomePending means end_time has moved into the future; keep waiting.
	OutcomePending Outcome = iota
	// OutcomeFinished means this call moved the auction to FINISHED.
	OutcomeFinished
	// OutcomeGone means the auction is no longer ACTIVE or no longer exists.
	OutcomeGone
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeFinished:
		return "finished"
	case OutcomeGone:
		return "gone"
	}
	return "unknown"
}

// Driver performs the clock's reads and state transitions.
type Driver interface {
	// Load returns the auction, or false if it no longer exists.
	Load(ctx context.Context, auctionID string) (model.Auction, bool, error)

	// Activate moves SCHEDULED to ACTIVE. Returns false if the auction was
	// not SCHEDULED.
	Activate(ctx context.Context, auctionID string) (bool, error)

	// Finalize moves ACTIVE to FINISHED if end_time has passed.
	Finalize(ctx context.Context, auctionID string) (Outcome, error)
}

// Config holds scheduler settings.
type Config struct {
	RetryDelay time.Duration    // Wait after a failed driver call
	OpTimeout  time.Duration    // Deadline for each driver call
	Now        func() time.Time // Clock source; nil means time.Now
}

// Stats contains runtime statistics.
type Stats struct {
	Tasks      int
	Activated  int64
	Finalized  int64
	Retries    int64
	TasksEnded int64
}

type task struct {
	id   string
	wake chan struct{} // capacity 1: signals coalesce
}

// Scheduler runs one clock task per auction.
type Scheduler struct {
	driver Driver
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	tasks   map[string]*task
	started bool
	stopped bool

	// Stats
	statsMu   sync.Mutex
	activated int64
	finalized int64
	retries   int64
	ended     int64
}

// New creates a scheduler. Tasks scheduled before Start begin running when
// Start is called.
func New(driver Driver, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		driver: driver,
		cfg:    cfg,
		logger: logger,
		now:    now,
		tasks:  make(map[string]*task),
	}
}

// Start launches every task scheduled so far.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	for _, t := range s.tasks {
		s.spawn(t)
	}

	s.logger.Info("auction clock started", "tasks", len(s.tasks))
	return nil
}

// Stop cancels every task and waits for them, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("stopping auction clock")

	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("auction clock stopped")
	case <-ctx.Done():
		s.logger.Warn("auction clock stop timed out")
	}
	return nil
}

// Schedule registers a clock task for auctionID. A second call for an id
// that already has a task is ignored.
func (s *Scheduler) Schedule(auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if _, ok := s.tasks[auctionID]; ok {
		s.logger.Debug("auction already has a clock task", "auction_id", auctionID)
		return
	}

	t := &task{id: auctionID, wake: make(chan struct{}, 1)}
	s.tasks[auctionID] = t
	if s.started {
		s.spawn(t)
	}
}

// Wake signals the task of auctionID without blocking. Signals sent while
// one is already pending are merged.
func (s *Scheduler) Wake(auctionID string) {
	s.mu.Lock()
	t := s.tasks[auctionID]
	s.mu.Unlock()

	if t == nil {
		return
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Has reports whether auctionID has a running task.
func (s *Scheduler) Has(auctionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[auctionID]
	return ok
}

// Len returns the number of tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stats returns current statistics.
func (s *Scheduler) Stats() Stats {
	tasks := s.Len()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{
		Tasks:      tasks,
		Activated:  s.activated,
		Finalized:  s.finalized,
		Retries:    s.retries,
		TasksEnded: s.ended,
	}
}

// spawn must be called with mu held.
func (s *Scheduler) spawn(t *task) {
	s.wg.Add(1)
	go s.run(t)
}

func (s *Scheduler) remove(t *task) {
	s.mu.Lock()
	if s.tasks[t.id] == t {
		delete(s.tasks, t.id)
	}
	s.mu.Unlock()

	s.statsMu.Lock()
	s.ended++
	s.statsMu.Unlock()
}

func (s *Scheduler) count(field *int64) {
	s.statsMu.Lock()
	*field++
	s.statsMu.Unlock()
}

// run drives one auction until it is terminal, vanishes, or the scheduler
// stops.
func (s *Scheduler) run(t *task) {
	defer s.wg.Done()
	defer s.remove(t)

	logger := s.logger.With("auction_id", t.id)

	for {
		if s.ctx.Err() != nil {
			return
		}

		a, ok, err := s.load(t.id)
		if err != nil {
			logger.Warn("failed to load auction", "error", err)
			if !s.backoff() {
				return
			}
			continue
		}
		if !ok {
			logger.Info("auction vanished, clock task exiting")
			return
		}

		switch a.State {
		case model.StateScheduled:
			if wait := a.StartTime.Sub(s.now()); wait > 0 {
				logger.Debug("waiting for start", "in", wait)
				if !s.sleep(t, wait) {
					return
				}
				continue
			}

			activated, err := s.activate(t.id)
			if err != nil {
				logger.Warn("failed to activate auction", "error", err)
				if !s.backoff() {
					return
				}
				continue
			}
			if activated {
				s.count(&s.activated)
				logger.Info("auction activated", "end_time", a.EndTime)
			}

		case model.StateActive:
			if wait := a.EndTime.Sub(s.now()); wait > 0 {
				logger.Debug("waiting for end", "in", wait)
				if !s.sleep(t, wait) {
					return
				}
				continue
			}

			outcome, err := s.finalize(t.id)
			if err != nil {
				logger.Warn("failed to finalize auction", "error", err)
				if !s.backoff() {
					return
				}
				continue
			}
			switch outcome {
			case OutcomeFinished:
				s.count(&s.finalized)
				logger.Info("auction finished")
				return
			case OutcomeGone:
				logger.Info("auction no longer active, clock task exiting")
				return
			}
			// OutcomePending: end_time moved, loop and recompute.

		default:
			logger.Info("auction is terminal, clock task exiting", "state", a.State)
			return
		}
	}
}

func (s *Scheduler) load(id string) (model.Auction, bool, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.OpTimeout)
	defer cancel()
	return s.driver.Load(ctx, id)
}

func (s *Scheduler) activate(id string) (bool, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.OpTimeout)
	defer cancel()
	return s.driver.Activate(ctx, id)
}

func (s *Scheduler) finalize(id string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.OpTimeout)
	defer cancel()
	return s.driver.Finalize(ctx, id)
}

// sleep waits for d, a wake signal, or shutdown. Returns false on shutdown.
func (s *Scheduler) sleep(t *task, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-t.wake:
		return true
	}
}

// backoff waits RetryDelay after a failed driver call. Returns false on
// shutdown.
func (s *Scheduler) backoff() bool {
	s.count(&s.retries)

	timer := time.NewTimer(s.cfg.RetryDelay)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
