package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

var _ Publisher = (*Relay)(nil)

// Sink is an external transport for encoded events.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// Send delivers one encoded event for topic.
	Send(ctx context.Context, topic Topic, data []byte) error

	// Close releases the underlying connection.
	Close() error
}

// RelayConfig holds relay settings.
type RelayConfig struct {
	BufferSize    int           // Initial queue capacity
	MaxBufferSize int           // Queue stops growing here and drops new events
	SendTimeout   time.Duration // Per-event deadline for Sink.Send
}

// RelayStats contains runtime statistics.
type RelayStats struct {
	Sent        int64
	SendErrors  int64
	EncodeError int64
	Queue       QueueStats
}

type relayMessage struct {
	topic Topic
	data  []byte
}

// Relay is a Publisher that forwards events to a Sink from a background
// goroutine. Publish only encodes and enqueues.
type Relay struct {
	sink   Sink
	cfg    RelayConfig
	logger *slog.Logger
	queue  *Queue[relayMessage]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	mu           sync.Mutex
	sent         int64
	sendErrors   int64
	encodeErrors int64
}

// NewRelay creates a relay for sink.
func NewRelay(sink Sink, cfg RelayConfig, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Relay{
		sink:   sink,
		cfg:    cfg,
		logger: logger.With("sink", sink.Name()),
		queue:  NewQueue[relayMessage](cfg.BufferSize, cfg.MaxBufferSize),
	}
}

// Publish implements Publisher.
func (r *Relay) Publish(topic Topic, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Warn("failed to encode event", "kind", ev.Kind, "error", err)
		r.mu.Lock()
		r.encodeErrors++
		r.mu.Unlock()
		return
	}

	if !r.queue.Send(relayMessage{topic: topic, data: data}) {
		r.logger.Debug("relay queue full or closed, event dropped",
			"kind", ev.Kind,
			"auction_id", ev.AuctionID,
		)
	}
}

// Start begins forwarding queued events.
func (r *Relay) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.forwardLoop()

	r.logger.Info("event relay started",
		"buffer", r.cfg.BufferSize,
		"max_buffer", r.cfg.MaxBufferSize,
	)
	return nil
}

// Stop drains the queue, bounded by ctx, then closes the sink.
func (r *Relay) Stop(ctx context.Context) error {
	r.logger.Info("stopping event relay")

	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event relay stopped")
	case <-ctx.Done():
		r.logger.Warn("event relay stop timed out", "pending", r.queue.Len())
		if r.cancel != nil {
			r.cancel()
		}
		<-done
	}

	if r.cancel != nil {
		r.cancel()
	}
	return r.sink.Close()
}

// Stats returns current statistics.
func (r *Relay) Stats() RelayStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RelayStats{
		Sent:        r.sent,
		SendErrors:  r.sendErrors,
		EncodeError: r.encodeErrors,
		Queue:       r.queue.Stats(),
	}
}

func (r *Relay) forwardLoop() {
	defer r.wg.Done()

	for {
		msg, ok := r.queue.Receive()
		if !ok {
			return
		}
		if r.ctx.Err() != nil {
			// Stop timed out; discard the rest.
			continue
		}
		r.forward(msg)
	}
}

func (r *Relay) forward(msg relayMessage) {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.SendTimeout)
	defer cancel()

	if err := r.sink.Send(ctx, msg.topic, msg.data); err != nil {
		r.logger.Warn("failed to relay event", "topic", msg.topic, "error", err)
		r.mu.Lock()
		r.sendErrors++
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.sent++
	r.mu.Unlock()
}
