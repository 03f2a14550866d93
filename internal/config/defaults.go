package config

import (
	"time"

	"github.com/rickgao/lot-auctions/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultHTTPAddr          = ":8080"
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultStorageDriver     = "postgres"
	DefaultLockTimeout       = 5 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPrefix       = "auction_events"
	DefaultNATSURL           = "nats://localhost:4222"
	DefaultNATSPrefix        = "auction.events"
	DefaultRetryDelay        = 500 * time.Millisecond
	DefaultOpTimeout         = 10 * time.Second
	DefaultSubscriberBuffer  = 256
	DefaultRelayBuffer       = 1024
	DefaultRelayMaxBuffer    = 65536
	DefaultPingInterval      = 54 * time.Second
	DefaultPongTimeout       = 60 * time.Second
	DefaultWSWriteTimeout    = 10 * time.Second
	DefaultArchiveBatchSize  = 500
	DefaultArchiveFlushEvery = 2 * time.Second
)

func (c *ServerConfig) applyDefaults() {
	// HTTP defaults
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = DefaultReadTimeout
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = DefaultWriteTimeout
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = DefaultIdleTimeout
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.LockTimeout == 0 {
		c.Storage.LockTimeout = DefaultLockTimeout
	}
	applyDBDefaults(&c.Database.Postgres)

	// Relay defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = DefaultRedisPrefix
	}
	if c.NATS.URL == "" {
		c.NATS.URL = DefaultNATSURL
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = DefaultNATSPrefix
	}

	// Scheduler defaults
	if c.Scheduler.RetryDelay == 0 {
		c.Scheduler.RetryDelay = DefaultRetryDelay
	}
	if c.Scheduler.OpTimeout == 0 {
		c.Scheduler.OpTimeout = DefaultOpTimeout
	}

	// Bus defaults
	if c.Bus.SubscriberBuffer == 0 {
		c.Bus.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if c.Bus.RelayBuffer == 0 {
		c.Bus.RelayBuffer = DefaultRelayBuffer
	}
	if c.Bus.RelayMaxBuffer == 0 {
		c.Bus.RelayMaxBuffer = DefaultRelayMaxBuffer
	}

	// WebSocket defaults
	if c.WebSocket.PingInterval == 0 {
		c.WebSocket.PingInterval = DefaultPingInterval
	}
	if c.WebSocket.PongTimeout == 0 {
		c.WebSocket.PongTimeout = DefaultPongTimeout
	}
	if c.WebSocket.WriteTimeout == 0 {
		c.WebSocket.WriteTimeout = DefaultWSWriteTimeout
	}

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultArchiveFlushEvery
	}

	// Anti-sniping seed defaults
	seed := model.DefaultAntiSniping()
	if c.AntiSniping.Enabled == nil {
		c.AntiSniping.Enabled = &seed.Enabled
	}
	if c.AntiSniping.ThresholdSeconds == 0 {
		c.AntiSniping.ThresholdSeconds = seed.ThresholdSeconds
	}
	if c.AntiSniping.ExtensionSeconds == 0 {
		c.AntiSniping.ExtensionSeconds = seed.ExtensionSeconds
	}
	if c.AntiSniping.MaxExtensions == nil {
		c.AntiSniping.MaxExtensions = &seed.MaxExtensions
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

// Seed converts the YAML seed into the stored configuration value.
func (a AntiSnipingConfig) Seed() model.AntiSnipingConfig {
	cfg := model.DefaultAntiSniping()
	if a.Enabled != nil {
		cfg.Enabled = *a.Enabled
	}
	if a.ThresholdSeconds != 0 {
		cfg.ThresholdSeconds = a.ThresholdSeconds
	}
	if a.ExtensionSeconds != 0 {
		cfg.ExtensionSeconds = a.ExtensionSeconds
	}
	if a.MaxExtensions != nil {
		cfg.MaxExtensions = *a.MaxExtensions
	}
	return cfg
}
