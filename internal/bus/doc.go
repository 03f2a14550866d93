// Package bus fans auction events out to observers.
//
// Events are published to the General topic, to one topic per auction, or to
// both, depending on their kind (see Topics). Delivery is best-effort and
// at-most-once: a subscriber whose buffer is full misses the event, and
// nothing is replayed after a reconnect.
//
// Publishers:
//   - Hub: in-process subscriptions used by the WebSocket adapter
//   - Relay: forwards encoded events to an external Sink (Redis pub/sub or
//     NATS) from a background goroutine
//   - Fanout: publishes to several of the above
package bus
