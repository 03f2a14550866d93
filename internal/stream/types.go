package stream

import (
	"errors"
	"time"
)

// Errors
var (
	ErrClosed     = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

// Frame kinds written by the server in addition to bus event kinds.
const (
	FrameConnected = "connected"
	FramePong      = "pong"
	FrameState     = "state"
	FrameError     = "error"
)

// Frame kinds accepted from clients.
const (
	ClientPing         = "ping"
	ClientRequestState = "request_state"
)

// Frame is a server-originated control message.
type Frame struct {
	Kind      string    `json:"kind"`
	AuctionID string    `json:"auction_id,omitempty"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

// ClientFrame is a message received from an observer.
type ClientFrame struct {
	Kind string `json:"kind"`
}

// Connected is the payload of the first frame on every connection.
type Connected struct {
	ConnID string `json:"conn_id"`
	Topic  string `json:"topic"`
	State  any    `json:"state,omitempty"` // Snapshot or Summary
}

// ErrorPayload reports a rejected client frame.
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Config holds connection settings.
type Config struct {
	PingInterval time.Duration // How often the server pings
	PongTimeout  time.Duration // Read deadline extended by each pong
	WriteTimeout time.Duration // Deadline for each write
	SendBuffer   int           // Outbound frames queued per connection
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 54 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	return c
}
