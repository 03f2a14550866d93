package bus

import (
	"log/slog"
	"sync"
)

var _ Publisher = (*Hub)(nil)

// Hub is the in-process Publisher. Each subscription owns a buffered
// channel; Publish never waits on a slow subscriber.
type Hub struct {
	logger     *slog.Logger
	bufferSize int

	mu       sync.RWMutex
	topics   map[Topic]map[*Subscription]struct{}
	firehose map[*Subscription]struct{}

	statsMu   sync.Mutex
	published int64
	delivered int64
	dropped   int64
}

// HubStats contains runtime statistics.
type HubStats struct {
	Topics      int
	Subscribers int
	Published   int64
	Delivered   int64
	Dropped     int64
}

// NewHub creates a hub whose subscriptions buffer up to bufferSize events.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Hub{
		logger:     logger,
		bufferSize: bufferSize,
		topics:     make(map[Topic]map[*Subscription]struct{}),
		firehose:   make(map[*Subscription]struct{}),
	}
}

// Subscription is a stream of events from a Hub.
type Subscription struct {
	hub   *Hub
	topic Topic
	all   bool
	ch    chan Event
	once  sync.Once

	mu      sync.Mutex
	dropped int64
	closed  bool
}

// C returns the event channel. It is closed by Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Topic returns the subscribed topic; empty for SubscribeAll.
func (s *Subscription) Topic() Topic {
	return s.topic
}

// Dropped returns how many events this subscriber missed because its
// buffer was full.
func (s *Subscription) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)

		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// offer delivers ev without blocking. Returns false if it was dropped.
func (s *Subscription) offer(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.dropped++
		return false
	}
}

// Subscribe registers a subscriber for one topic.
func (h *Hub) Subscribe(topic Topic) *Subscription {
	s := &Subscription{hub: h, topic: topic, ch: make(chan Event, h.bufferSize)}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()

	return s
}

// SubscribeAll registers a subscriber that receives every event once,
// regardless of how many topics it was routed to.
func (h *Hub) SubscribeAll() *Subscription {
	s := &Subscription{hub: h, all: true, ch: make(chan Event, h.bufferSize)}

	h.mu.Lock()
	h.firehose[s] = struct{}{}
	h.mu.Unlock()

	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.all {
		delete(h.firehose, s)
		return
	}
	if subs, ok := h.topics[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, s.topic)
		}
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(topic Topic, ev Event) {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.topics[topic])+len(h.firehose))
	for s := range h.topics[topic] {
		targets = append(targets, s)
	}
	if Home(topic, ev) {
		for s := range h.firehose {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	var delivered, dropped int64
	for _, s := range targets {
		if s.offer(ev) {
			delivered++
		} else {
			dropped++
		}
	}

	h.statsMu.Lock()
	h.published++
	h.delivered += delivered
	h.dropped += dropped
	h.statsMu.Unlock()

	if dropped > 0 {
		h.logger.Debug("dropped event for slow subscribers",
			"kind", ev.Kind,
			"auction_id", ev.AuctionID,
			"topic", topic,
			"dropped", dropped,
		)
	}
}

// SubscriberCount returns the number of subscribers on topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Stats returns current statistics.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	subscribers := len(h.firehose)
	for _, subs := range h.topics {
		subscribers += len(subs)
	}
	topics := len(h.topics)
	h.mu.RUnlock()

	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return HubStats{
		Topics:      topics,
		Subscribers: subscribers,
		Published:   h.published,
		Delivered:   h.delivered,
		Dropped:     h.dropped,
	}
}
