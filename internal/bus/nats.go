package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// natsPublisher is the part of *nats.Conn the sink uses.
type natsPublisher interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSSink publishes events to subjects named "<prefix>.general" and
// "<prefix>.<auction id>". Plain core NATS: no JetStream persistence.
type NATSSink struct {
	conn   natsPublisher
	prefix string
}

// ConnectNATS opens a NATS connection that logs disconnects and reconnects.
func ConnectNATS(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// NewNATSSink wraps a connected client.
func NewNATSSink(conn *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{conn: conn, prefix: prefix}
}

// Subject returns the NATS subject for topic.
func (s *NATSSink) Subject(topic Topic) string {
	return s.prefix + "." + string(topic)
}

// Name implements Sink.
func (s *NATSSink) Name() string { return "nats" }

// Send implements Sink. The publish is buffered by the client, so ctx is
// only checked up front.
func (s *NATSSink) Send(ctx context.Context, topic Topic, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.conn.Publish(s.Subject(topic), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}
