package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/livinlefevreloca/listingsync/internal/api"
	"github.com/livinlefevreloca/listingsync/internal/config"
	"github.com/livinlefevreloca/listingsync/internal/db"
	"github.com/livinlefevreloca/listingsync/internal/etl"
	"github.com/livinlefevreloca/listingsync/internal/loader"
	"github.com/livinlefevreloca/listingsync/internal/logging"
	"github.com/livinlefevreloca/listingsync/internal/notify"
	"github.com/livinlefevreloca/listingsync/internal/reso"
	"github.com/livinlefevreloca/listingsync/internal/scheduler"
	"github.com/livinlefevreloca/listingsync/internal/status"
	"github.com/livinlefevreloca/listingsync/internal/transform"
	"github.com/livinlefevreloca/listingsync/migrations"
)

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to configuration file (TOML)")
	envFile := flag.String("env-file", ".env", "Path to .env file (ignored when missing)")
	once := flag.Bool("once", false, "Run a single sync and exit")
	flag.Parse()

	if err := run(*configFile, *envFile, *once); err != nil {
		slog.Error("listingsync failed", "error", err)
		os.Exit(1)
	}
}

func run(configFile, envFile string, once bool) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}

	// Load configuration
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize structured logger
	logger, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting listingsync",
		"config_file", configFile,
		"schedule", cfg.Scheduler.Schedule,
		"batch_size", cfg.ETL.BatchSize)

	// Open database connection with pool settings
	logger.Info("connecting to database", "driver", cfg.Database.Driver)
	database, err := db.OpenWithConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate(ctx, database, cfg.Database, logger); err != nil {
		return err
	}

	// Change notification
	hub := notify.NewHub(cfg.Notify, logger.With("component", "notify"))
	go hub.Run(ctx)

	var publisher notify.Publisher = hub
	if cfg.Notify.RedisURL != "" {
		client, err := notify.NewRedisClient(cfg.Notify.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		bridge := notify.NewRedisBridge(client, cfg.Notify.Channel, hub, logger.With("component", "redis"))
		go func() {
			if err := bridge.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis bridge stopped", "error", err)
			}
		}()
		publisher = notify.Fanout{hub, bridge}
	}

	// Pipeline
	extractor, err := reso.NewClient(cfg.Reso, logger.With("component", "reso"))
	if err != nil {
		return fmt.Errorf("failed to create listing api client: %w", err)
	}
	transformer := transform.New(time.Now)
	ld := loader.New(database, publisher, time.Now, logger.With("component", "loader"))

	runner, err := etl.NewRunner(cfg.ETL, extractor, transformer, ld, database,
		logger.With("component", "etl"), etl.WithRecorder(database))
	if err != nil {
		return err
	}

	sched, err := scheduler.New(cfg.Scheduler, runner, logger.With("component", "scheduler"))
	if err != nil {
		return err
	}

	pub := status.NewPublisher(database, cfg.Status, logger.With("component", "status"),
		status.WithNotifier(hub), status.WithSchedule(sched))
	if last, err := database.LatestSyncRun(ctx); err == nil {
		pub.MarkRun(etl.ResultFromSyncRun(last))
	} else if !db.IsNotFound(err) {
		logger.Warn("failed to read run history", "error", err)
	}
	sched.OnComplete(pub.MarkRun)

	if once {
		res, err := sched.Trigger(ctx)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("sync finished with %d error(s): %s", res.Errors, res.LastError)
		}
		return nil
	}

	if err := sched.Start(); err != nil {
		return err
	}

	// HTTP API
	serverErr := make(chan error, 1)
	var server *api.Server
	if cfg.HTTP.Enabled {
		server = api.NewServer(cfg.HTTP, api.Deps{
			Jobs:      sched,
			Status:    pub,
			Listings:  database,
			Refresher: etl.NewRefresher(extractor, transformer, ld, logger.With("component", "refresh")),
		}, logger.With("component", "http"))

		go func() {
			serverErr <- server.Start()
		}()
	}

	logger.Info("listingsync is running")

	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http api failed", "error", err)
		}
	}

	sched.Stop()

	if server != nil {
		if err := server.Stop(context.Background()); err != nil {
			logger.Warn("http api did not stop cleanly", "error", err)
		}
	}

	// A second signal abandons the in-flight run
	waitCtx, cancelWait := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelWait()
	if sched.Running() {
		logger.Info("waiting for in-flight sync to finish")
	}
	if err := sched.Wait(waitCtx); err != nil {
		logger.Warn("shutdown before in-flight sync finished", "error", err)
	}

	logger.Info("listingsync stopped")
	return nil
}

// migrate applies the embedded migrations, or those in MigrationsDir when set
func migrate(ctx context.Context, database *db.DB, cfg db.Config, logger *slog.Logger) error {
	if cfg.SkipMigrations {
		logger.Info("skipping migrations", "reason", "configured to skip")
		return nil
	}

	var fsys fs.FS = migrations.FS
	source := "embedded"
	if cfg.MigrationsDir != "" {
		fsys = os.DirFS(cfg.MigrationsDir)
		source = cfg.MigrationsDir
	}

	logger.Info("running migrations", "migrations_dir", source)
	applied, err := database.Migrate(ctx, fsys)
	for _, m := range applied {
		logger.Info("applied migration", "migration", m.Label())
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations from %s: %w", source, err)
	}

	version, err := database.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	logger.Info("database schema ready", "version", version)
	return nil
}
