package config

import "time"

// ServerConfig is the root configuration for an auctiond instance.
type ServerConfig struct {
	Instance    InstanceConfig    `yaml:"instance"`
	HTTP        HTTPConfig        `yaml:"http"`
	Log         LogConfig         `yaml:"log"`
	Storage     StorageConfig     `yaml:"storage"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	NATS        NATSConfig        `yaml:"nats"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Bus         BusConfig         `yaml:"bus"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Archive     ArchiveConfig     `yaml:"archive"`
	AntiSniping AntiSnipingConfig `yaml:"antisniping"`
}

// InstanceConfig identifies this server.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// HTTPConfig holds the command/query API and WebSocket listener settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// StorageConfig selects the auction store.
type StorageConfig struct {
	Driver      string        `yaml:"driver"`       // postgres or memory
	LockTimeout time.Duration `yaml:"lock_timeout"` // Max wait for a per-auction lock
}

// DatabaseConfig holds the PostgreSQL connection for auctions and bids.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig enables relaying bus events to Redis pub/sub.
type RedisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// NATSConfig enables relaying bus events to NATS subjects.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// SchedulerConfig holds auction clock settings.
type SchedulerConfig struct {
	RetryDelay time.Duration `yaml:"retry_delay"` // Backoff after a failed state transition
	OpTimeout  time.Duration `yaml:"op_timeout"`  // Per-operation storage timeout
}

// BusConfig holds notification bus buffer sizes.
type BusConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
	RelayBuffer      int `yaml:"relay_buffer"`
	RelayMaxBuffer   int `yaml:"relay_max_buffer"`
}

// WebSocketConfig holds observer connection settings.
type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ArchiveConfig holds event archive writer settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// AntiSnipingConfig seeds the anti-sniping singleton the first time the
// store is initialised. Later edits go through the API, not this file.
type AntiSnipingConfig struct {
	Enabled          *bool `yaml:"enabled"`
	ThresholdSeconds int   `yaml:"threshold_seconds"`
	ExtensionSeconds int   `yaml:"extension_seconds"`
	MaxExtensions    *int  `yaml:"max_extensions"` // 0 = unlimited
}
