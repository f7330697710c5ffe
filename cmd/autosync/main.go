package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otcheredev/dicom-autosync/internal/adapters"
	"github.com/otcheredev/dicom-autosync/internal/cache"
	"github.com/otcheredev/dicom-autosync/internal/config"
	"github.com/otcheredev/dicom-autosync/internal/console"
	"github.com/otcheredev/dicom-autosync/internal/database"
	"github.com/otcheredev/dicom-autosync/internal/handlers"
	"github.com/otcheredev/dicom-autosync/internal/metrics"
	"github.com/otcheredev/dicom-autosync/internal/reconcile"
	"github.com/otcheredev/dicom-autosync/internal/repository"
	"github.com/otcheredev/dicom-autosync/internal/scheduler"
	"github.com/otcheredev/dicom-autosync/internal/services"
	"github.com/otcheredev/dicom-autosync/internal/storage"
	"github.com/otcheredev/dicom-autosync/pkg/logger"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	app := &cli.App{
		Name:    "autosync",
		Usage:   "Keep a local DICOM store in sync with a remote PACS",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the JSON or YAML configuration file",
				EnvVars: []string{"AUTOSYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "node",
				Aliases: []string{"n"},
				Usage:   "Remote node to sync from (key under remotes)",
			},
			&cli.IntFlag{
				Name:  "hours",
				Usage: "Look-back window in hours",
				Value: reconcile.DefaultWindowHours,
			},
			&cli.IntFlag{
				Name:  "max-images",
				Usage: "Transfer every incomplete series with fewer than N images",
			},
			&cli.BoolFlag{
				Name:  "all-series",
				Usage: "Transfer every incomplete series",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Selection policy: smallest, threshold or all",
			},
			&cli.StringFlag{
				Name:  "download-day",
				Usage: "Download one day (today, yesterday or YYYYMMDD) and exit",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Pause between cycles",
				Value: scheduler.DefaultInterval,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "console or json",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("autosync failed")
	}
}

func run(c *cli.Context) error {
	// Load configuration
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return err
	}
	resolved, err := cfg.Resolve(c.String("node"))
	if err != nil {
		return err
	}

	log.Info().
		Str("version", version).
		Str("remote", resolved.Remote.Key).
		Str("policy", resolved.Policy.String()).
		Msg("Starting DICOM auto-sync")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize adapter factory
	factory := adapters.NewAdapterFactory(adapters.FactoryOptions{
		CallingAE:    cfg.Sync.CallingAETitle,
		QueryTimeout: cfg.Sync.QueryTimeout,
		MoveTimeout:  cfg.Sync.MoveTimeout,
	})
	defer factory.CloseAll()

	mover, err := factory.GetMover(resolved.Remote, resolved.Destination)
	if err != nil {
		return err
	}
	remote, err := factory.GetAdapter(resolved.Remote, &resolved.Destination)
	if err != nil {
		return err
	}
	local, err := factory.GetAdapter(resolved.Local, nil)
	if err != nil {
		return err
	}

	echo(ctx, remote)
	echo(ctx, local)

	out := console.New(os.Stdout, console.WithProgressBar(os.Stderr))
	reporters := []scheduler.Reporter{out}

	// Initialize cache
	cacheImpl, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer cacheImpl.Close()

	statusService := services.NewStatusService(cacheImpl, resolved.Remote.Key, cfg.Cache.TTL)
	reporters = append(reporters, statusService)

	checks := map[string]handlers.Check{
		"cache": cacheImpl.Ping,
	}

	// Connect to database
	var cycleHandler *handlers.CycleHandler
	if cfg.Database.Enabled {
		if err := database.Connect(databaseConfig(cfg.Database)); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		history := services.NewHistoryService(repository.NewCycleRepository(database.DB))
		reporters = append(reporters, history)
		cycleHandler = handlers.NewCycleHandler(history)
		checks["database"] = func(context.Context) error { return database.Ping() }
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m := metrics.New()
		reporters = append(reporters, m)
		metricsHandler = m.Handler()
	}

	if cfg.Report.Enabled {
		archive, err := openArchive(ctx, cfg.Report)
		if err != nil {
			return err
		}
		reporters = append(reporters, archive)
	}

	if cfg.Server.Enabled {
		router := handlers.NewRouter(handlers.RouterOptions{
			Health:         handlers.NewHealthHandler(checks),
			Status:         handlers.NewStatusHandler(statusService),
			Cycles:         cycleHandler,
			Metrics:        metricsHandler,
			AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
			AllowedMethods: cfg.Server.CORS.AllowedMethods,
			AllowedHeaders: cfg.Server.CORS.AllowedHeaders,
		})
		srv := startServer(cfg.Server, router)
		defer shutdownServer(srv)
	}

	syncService := services.NewSyncService(remote, local, mover, services.SyncOptions{
		Node:        resolved.Remote.Key,
		WindowHours: cfg.Sync.Hours,
		Policy:      resolved.Policy,
		DownloadDay: cfg.Sync.DownloadDay,
		Progress:    out,
	})
	sched := scheduler.New(syncService, scheduler.Config{
		Interval:   cfg.Sync.Interval,
		FastFollow: cfg.Sync.FastFollow,
	}, reporters...)

	out.Banner(console.BannerInfo{
		Local:       resolved.Local,
		Remote:      resolved.Remote,
		RemoteKey:   resolved.Remote.Key,
		Destination: resolved.Destination,
		Policy:      resolved.Policy.String(),
		WindowHours: cfg.Sync.Hours,
		Interval:    cfg.Sync.Interval,
		DownloadDay: cfg.Sync.DownloadDay,
	})

	if syncService.DownloadDayMode() {
		stats, err := sched.RunOnce(ctx)
		out.Shutdown(sched.Totals(), ctx.Err() != nil)
		if err != nil {
			return err
		}
		if stats.SeriesFailed > 0 {
			return cli.Exit(fmt.Sprintf("%d series failed to transfer", stats.SeriesFailed), 1)
		}
		return nil
	}

	if err := sched.Run(ctx); err != nil {
		return err
	}
	out.Shutdown(sched.Totals(), true)
	return nil
}

// applyFlags lets explicitly set flags override the loaded configuration
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("hours") {
		cfg.Sync.Hours = c.Int("hours")
	}
	if c.IsSet("interval") {
		cfg.Sync.Interval = c.Duration("interval")
	}
	if c.IsSet("download-day") {
		cfg.Sync.DownloadDay = c.String("download-day")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}

	switch {
	case c.IsSet("mode"):
		cfg.Sync.Mode = c.String("mode")
		if c.IsSet("max-images") {
			cfg.Sync.MaxImages = c.Int("max-images")
		}
	case c.IsSet("max-images"):
		cfg.Sync.Mode = string(reconcile.ModeThreshold)
		cfg.Sync.MaxImages = c.Int("max-images")
	case c.Bool("all-series"):
		cfg.Sync.Mode = string(reconcile.ModeAll)
	case cfg.Sync.DownloadDay != "" && cfg.Sync.MaxImages == 0:
		// A one-day download fetches everything unless a threshold was asked for.
		cfg.Sync.Mode = string(reconcile.ModeAll)
	}
}

func echo(ctx context.Context, dir adapters.Directory) {
	status, err := dir.Ping(ctx)
	if err != nil {
		log.Warn().
			Err(err).
			Str("node", dir.Name()).
			Msg("Node did not answer the connectivity check, continuing")
		return
	}
	log.Info().
		Str("node", dir.Name()).
		Int64("response_time_ms", status.ResponseTime).
		Strs("capabilities", status.Capabilities).
		Msg("Node reachable")
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info().Str("addr", addr).Msg("Redis cache initialized")
		return redisCache, nil
	}
	log.Debug().Msg("Memory cache initialized")
	return cache.NewMemoryCache(), nil
}

func databaseConfig(cfg config.DatabaseConfig) database.Config {
	return database.Config{
		Driver:   cfg.Driver,
		Path:     cfg.Path,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
		LogLevel: cfg.LogLevel,
	}
}

func openArchive(ctx context.Context, cfg config.ReportConfig) (*storage.ReportArchive, error) {
	store, err := storage.NewMinIOStorage(storage.MinIOConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("report archive unavailable: %w", err)
	}
	log.Info().
		Str("endpoint", cfg.Endpoint).
		Str("bucket", cfg.Bucket).
		Msg("Report archive enabled")
	return storage.NewReportArchive(store), nil
}

func startServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Status server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Status server failed")
		}
	}()
	return srv
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Status server forced to shutdown")
		return
	}
	log.Info().Msg("Status server stopped")
}
