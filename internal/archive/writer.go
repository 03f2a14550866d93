package archive

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/lot-auctions/internal/bus"
)

var _ bus.Publisher = (*EventWriter)(nil)

// batchSender is the subset of *pgxpool.Pool the writer needs.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int // Initial queue capacity
	MaxQueueSize  int // Events beyond this are dropped
	FlushTimeout  time.Duration
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
		QueueSize:     1024,
		MaxQueueSize:  65536,
		FlushTimeout:  10 * time.Second,
	}
}

// Metrics contains writer statistics.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

type eventRow struct {
	ID         string
	Kind       string
	AuctionID  *string
	OccurredAt time.Time
	Payload    []byte
}

// EventWriter archives bus events.
type EventWriter struct {
	cfg    Config
	logger *slog.Logger
	db     batchSender

	input *bus.Queue[bus.Event]

	// Batching
	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewEventWriter creates a writer that inserts into db.
func NewEventWriter(cfg Config, db batchSender, logger *slog.Logger) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxQueueSize < cfg.QueueSize {
		cfg.MaxQueueSize = max(def.MaxQueueSize, cfg.QueueSize)
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}
	return &EventWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  bus.NewQueue[bus.Event](cfg.QueueSize, cfg.MaxQueueSize),
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Publish implements bus.Publisher. Each event is archived once, from its
// home topic.
func (w *EventWriter) Publish(topic bus.Topic, ev bus.Event) {
	if !bus.Home(topic, ev) {
		return
	}
	if !w.input.Send(ev) {
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
	}
}

// Start begins consuming events and writing to the database.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("event archive started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued events, writes them and shuts down.
func (w *EventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping event archive")

	// Closing the queue lets consumeLoop drain what is left and exit.
	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("event archive stopped")
	case <-ctx.Done():
		w.logger.Warn("event archive stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *EventWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the queue and accumulates batches until the queue
// is closed and empty.
func (w *EventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		ev, ok := w.input.Receive()
		if !ok {
			return
		}
		w.handleEvent(ev)
	}
}

// flushLoop periodically flushes the batch.
func (w *EventWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *EventWriter) handleEvent(ev bus.Event) {
	row, err := transform(ev)
	if err != nil {
		w.logger.Warn("failed to encode event payload", "kind", ev.Kind, "event_id", ev.ID, "error", err)
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts an event to a row. General-only events without an
// auction keep auction_id NULL.
func transform(ev bus.Event) (eventRow, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return eventRow{}, err
	}
	row := eventRow{
		ID:         ev.ID,
		Kind:       string(ev.Kind),
		OccurredAt: ev.At,
		Payload:    payload,
	}
	if ev.AuctionID != "" {
		id := ev.AuctionID
		row.AuctionID = &id
	}
	return row, nil
}

// flush writes the current batch to the database.
func (w *EventWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("event batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING. It
// runs on its own deadline so the final flush after Stop still works.
func (w *EventWriter) batchInsert(rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO auction_events (id, kind, auction_id, occurred_at, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Kind, r.AuctionID, r.OccurredAt, r.Payload)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
