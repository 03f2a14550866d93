package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/rickgao/lot-auctions/internal/auction"
	"github.com/rickgao/lot-auctions/internal/bus"
)

// StateSource answers request_state frames.
type StateSource interface {
	Snapshot(ctx context.Context, auctionID string) (auction.Snapshot, error)
	Summary(ctx context.Context) (auction.Summary, error)
}

// Stats contains runtime statistics.
type Stats struct {
	Connections int
	Accepted    int64
	Sent        int64
	Dropped     int64
}

// Server upgrades HTTP requests to observer connections and feeds them
// from a Hub.
type Server struct {
	hub    *bus.Hub
	state  StateSource
	cfg    Config
	logger *slog.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}

	statsMu  sync.Mutex
	accepted int64
	sent     int64
	dropped  int64
}

// NewServer creates a stream server.
func NewServer(hub *bus.Hub, state StateSource, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:    hub,
		state:  state,
		cfg:    cfg.withDefaults(),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// Register adds the WebSocket routes to r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/ws/auctions", s.handleGeneral).Methods(http.MethodGet)
	r.HandleFunc("/ws/auctions/{id}", s.handleAuction).Methods(http.MethodGet)
}

// Close disconnects every observer.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	s.logger.Info("observer connections closed", "count", len(conns))
}

// Stats returns current statistics.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.conns)
	s.mu.Unlock()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{
		Connections: n,
		Accepted:    s.accepted,
		Sent:        s.sent,
		Dropped:     s.dropped,
	}
}

func (s *Server) handleGeneral(w http.ResponseWriter, r *http.Request) {
	summary, err := s.state.Summary(r.Context())
	if err != nil {
		s.logger.Error("failed to load summary for observer", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.serve(w, r, bus.General, "", summary)
}

func (s *Server) handleAuction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snap, err := s.state.Snapshot(r.Context(), id)
	if errors.Is(err, auction.ErrAuctionNotFound) {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to load snapshot for observer", "auction_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.serve(w, r, bus.AuctionTopic(id), id, snap)
}

// serve upgrades the request and runs the connection until either side
// closes it.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, topic bus.Topic, auctionID string, initial any) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	// Subscribe before the connected frame so nothing published after the
	// snapshot was taken is missed.
	sub := s.hub.Subscribe(topic)
	c := newConn(uuid.NewString(), ws, s.cfg, s.logger)
	s.track(c)

	s.logger.Debug("observer connected", "conn_id", c.id, "topic", topic)

	s.write(c, Frame{
		Kind:      FrameConnected,
		AuctionID: auctionID,
		At:        time.Now(),
		Payload:   Connected{ConnID: c.id, Topic: string(topic), State: initial},
	})

	go c.writeLoop()
	go c.readLoop(func(data []byte) { s.handleClient(c, auctionID, data) })

	go func() {
		defer func() {
			sub.Close()
			s.untrack(c)
			s.logger.Debug("observer disconnected",
				"conn_id", c.id,
				"topic", topic,
				"dropped", c.Dropped()+sub.Dropped(),
			)
		}()
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-sub.C():
				if !ok {
					c.Close()
					return
				}
				s.write(c, ev)
			}
		}
	}()
}

// handleClient answers one client frame.
func (s *Server) handleClient(c *conn, auctionID string, data []byte) {
	var in ClientFrame
	if err := json.Unmarshal(data, &in); err != nil {
		s.write(c, Frame{Kind: FrameError, At: time.Now(), Payload: ErrorPayload{Error: "invalid_frame", Message: err.Error()}})
		return
	}

	switch in.Kind {
	case ClientPing:
		s.write(c, Frame{Kind: FramePong, AuctionID: auctionID, At: time.Now()})

	case ClientRequestState:
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()

		var (
			state any
			err   error
		)
		if auctionID == "" {
			state, err = s.state.Summary(ctx)
		} else {
			state, err = s.state.Snapshot(ctx, auctionID)
		}
		if err != nil {
			s.write(c, Frame{Kind: FrameError, AuctionID: auctionID, At: time.Now(), Payload: ErrorPayload{Error: auction.Reason(err)}})
			return
		}
		s.write(c, Frame{Kind: FrameState, AuctionID: auctionID, At: time.Now(), Payload: state})

	default:
		s.write(c, Frame{Kind: FrameError, AuctionID: auctionID, At: time.Now(), Payload: ErrorPayload{Error: "unknown_kind", Message: in.Kind}})
	}
}

// write encodes v and queues it on c.
func (s *Server) write(c *conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode frame", "conn_id", c.id, "error", err)
		return
	}

	switch err := c.Send(data); {
	case err == nil:
		s.count(&s.sent)
	case errors.Is(err, ErrBufferFull):
		s.count(&s.dropped)
	}
}

func (s *Server) count(field *int64) {
	s.statsMu.Lock()
	*field++
	s.statsMu.Unlock()
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.count(&s.accepted)
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
