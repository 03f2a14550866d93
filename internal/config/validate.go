package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Storage.Driver {
	case "postgres":
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	if c.Storage.LockTimeout <= 0 {
		return errors.New("storage.lock_timeout must be > 0")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Bus.SubscriberBuffer < 1 {
		return errors.New("bus.subscriber_buffer must be >= 1")
	}
	if c.Bus.RelayBuffer < 1 {
		return errors.New("bus.relay_buffer must be >= 1")
	}
	if c.Bus.RelayMaxBuffer < c.Bus.RelayBuffer {
		return fmt.Errorf("bus.relay_max_buffer (%d) cannot be less than relay_buffer (%d)", c.Bus.RelayMaxBuffer, c.Bus.RelayBuffer)
	}

	if c.WebSocket.PingInterval >= c.WebSocket.PongTimeout {
		return fmt.Errorf("websocket.ping_interval (%s) must be shorter than pong_timeout (%s)", c.WebSocket.PingInterval, c.WebSocket.PongTimeout)
	}

	if c.Archive.Enabled {
		if c.Storage.Driver != "postgres" {
			return errors.New("archive.enabled requires storage.driver postgres")
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
	}

	if c.AntiSniping.ThresholdSeconds < 0 {
		return errors.New("antisniping.threshold_seconds must be >= 0")
	}
	if c.AntiSniping.ExtensionSeconds < 1 {
		return errors.New("antisniping.extension_seconds must be >= 1")
	}
	if c.AntiSniping.MaxExtensions != nil && *c.AntiSniping.MaxExtensions < 0 {
		return errors.New("antisniping.max_extensions must be >= 0")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
