// Package stream serves the notification bus to real-time observers.
//
// Two WebSocket endpoints are exposed:
//   - /ws/auctions       the General topic (catalogue changes)
//   - /ws/auctions/{id}  one auction's topic (bids, extensions, close)
//
// Every connection gets a "connected" frame first. Clients may send
// {"kind":"ping"} and {"kind":"request_state"}; everything else the server
// writes is a bus event. Delivery is best-effort: a connection whose send
// buffer is full misses events rather than slowing the bus.
package stream
