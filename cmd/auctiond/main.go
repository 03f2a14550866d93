package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/lot-auctions/internal/archive"
	"github.com/rickgao/lot-auctions/internal/auction"
	"github.com/rickgao/lot-auctions/internal/bus"
	"github.com/rickgao/lot-auctions/internal/config"
	"github.com/rickgao/lot-auctions/internal/database"
	"github.com/rickgao/lot-auctions/internal/handlers"
	"github.com/rickgao/lot-auctions/internal/scheduler"
	"github.com/rickgao/lot-auctions/internal/store"
	"github.com/rickgao/lot-auctions/internal/stream"
	"github.com/rickgao/lot-auctions/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/auctiond.local.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting auctiond",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"storage", cfg.Storage.Driver,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("auctiond failed", "error", err)
		os.Exit(1)
	}

	logger.Info("auctiond stopped")
}

// newLogger builds the slog handler selected by the log section.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// stopper is a component with a bounded shutdown.
type stopper interface {
	Stop(ctx context.Context) error
}

func run(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	appName := "auctiond-" + cfg.Instance.ID

	// Storage
	var (
		st   store.Store
		pool *pgxpool.Pool
		db   handlers.Pinger
	)
	switch cfg.Storage.Driver {
	case "memory":
		st = store.NewMemory(cfg.AntiSniping.Seed())
		logger.Warn("using in-memory storage, state is lost on restart")

	case "postgres":
		pg := cfg.Database.Postgres
		logger.Info("connecting to database", "host", pg.Host, "port", pg.Port, "database", pg.Name)

		var err error
		pool, err = database.Connect(ctx, pg, appName)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		pgStore := store.NewPostgres(pool, cfg.Storage.LockTimeout)
		if err := pgStore.SeedAntiSniping(ctx, cfg.AntiSniping.Seed()); err != nil {
			return err
		}
		st, db = pgStore, pool
		logger.Info("database connected")
	}

	// Notification bus: in-process hub plus optional relays and archive
	hub := bus.NewHub(cfg.Bus.SubscriberBuffer, logger)
	publishers := bus.Fanout{hub}

	var stoppers []stopper
	defer func() {
		// Reverse start order
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		for i := len(stoppers) - 1; i >= 0; i-- {
			stoppers[i].Stop(shutdownCtx)
		}
	}()

	relayCfg := bus.RelayConfig{
		BufferSize:    cfg.Bus.RelayBuffer,
		MaxBufferSize: cfg.Bus.RelayMaxBuffer,
	}

	if cfg.Redis.Enabled {
		client, err := bus.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		relay := bus.NewRelay(bus.NewRedisSink(client, cfg.Redis.ChannelPrefix), relayCfg, logger)
		if err := relay.Start(ctx); err != nil {
			return err
		}
		stoppers = append(stoppers, relay)
		publishers = append(publishers, relay)
		logger.Info("redis relay enabled", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.ChannelPrefix)
	}

	if cfg.NATS.Enabled {
		conn, err := bus.ConnectNATS(cfg.NATS.URL, appName, logger)
		if err != nil {
			return err
		}
		relay := bus.NewRelay(bus.NewNATSSink(conn, cfg.NATS.SubjectPrefix), relayCfg, logger)
		if err := relay.Start(ctx); err != nil {
			return err
		}
		stoppers = append(stoppers, relay)
		publishers = append(publishers, relay)
		logger.Info("nats relay enabled", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	if cfg.Archive.Enabled {
		writer := archive.NewEventWriter(archive.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			QueueSize:     cfg.Bus.RelayBuffer,
			MaxQueueSize:  cfg.Bus.RelayMaxBuffer,
		}, pool, logger)
		if err := writer.Start(ctx); err != nil {
			return err
		}
		stoppers = append(stoppers, writer)
		publishers = append(publishers, writer)
	}

	// Engine and clock
	engine := auction.NewEngine(st, publishers, auction.Config{LockTimeout: cfg.Storage.LockTimeout}, logger)
	sched := scheduler.New(engine, scheduler.Config{
		RetryDelay: cfg.Scheduler.RetryDelay,
		OpTimeout:  cfg.Scheduler.OpTimeout,
	}, logger)
	engine.UseScheduler(sched)

	// Every non-terminal auction gets its clock before any request is served.
	if _, err := scheduler.Bootstrap(ctx, st, sched, logger); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	stoppers = append(stoppers, sched)

	// HTTP
	router := mux.NewRouter()
	handlers.New(engine, sched, db, logger).Register(router)
	streams := stream.NewServer(hub, engine, stream.Config{
		PingInterval: cfg.WebSocket.PingInterval,
		PongTimeout:  cfg.WebSocket.PongTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		SendBuffer:   cfg.Bus.SubscriberBuffer,
	}, logger)
	streams.Register(router)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")

		streams.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				logStats(logger, hub, sched, streams)
			}
		}
	})

	return g.Wait()
}

func logStats(logger *slog.Logger, hub *bus.Hub, sched *scheduler.Scheduler, streams *stream.Server) {
	hs := hub.Stats()
	ss := sched.Stats()
	ws := streams.Stats()
	logger.Info("stats",
		"clock_tasks", ss.Tasks,
		"activated", ss.Activated,
		"finalized", ss.Finalized,
		"clock_retries", ss.Retries,
		"published", hs.Published,
		"delivered", hs.Delivered,
		"dropped", hs.Dropped,
		"observers", ws.Connections,
	)
}
