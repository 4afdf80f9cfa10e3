// Package main is the entry point of the progression service.
//
// progressiond owns streaks, the XP ledger, levels and achievements. It
// serves a JSON API that reading, journaling and prayer features call
// after their own writes commit.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/config"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/command"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/eventhandler"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/query"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/saga"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/infrastructure/messaging"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/infrastructure/persistence/postgres"
	rediscache "github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/infrastructure/persistence/redis"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/infrastructure/persistence/sqlite"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/infrastructure/seed"
	httpapi "github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/interface/http"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/interface/http/handlers"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/circuitbreaker"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/logger"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/timeutil"
)

// options are the command-line flags.
type options struct {
	envFile     string
	migrateOnly bool
	seedOnly    bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("progressiond", pflag.ContinueOnError)
	fs.StringVar(&opts.envFile, "env-file", "", "load environment variables from this file (default .env when present)")
	fs.BoolVar(&opts.migrateOnly, "migrate-only", false, "apply schema migrations and exit")
	fs.BoolVar(&opts.seedOnly, "seed-only", false, "apply migrations, seed the achievement catalog and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.migrateOnly && opts.seedOnly {
		return opts, errors.New("--migrate-only and --seed-only are mutually exclusive")
	}
	return opts, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "progressiond: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(config.LoadOptions{EnvFile: opts.envFile})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting progressiond",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Location().String()),
		logger.String("db_driver", cfg.Database.Driver),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORE + MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer store.close()

	if opts.migrateOnly {
		log.Info("migrations applied, exiting")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ACHIEVEMENT CATALOG
	// ─────────────────────────────────────────────────────────────────────────
	if _, err := seed.Apply(ctx, store.repo, log); err != nil {
		return fmt.Errorf("failed to seed achievement catalog: %w", err)
	}
	if opts.seedOnly {
		log.Info("catalog seeded, exiting")
		return nil
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewPingCheck(store.pinger))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional): catalog cache + event channel
	// ─────────────────────────────────────────────────────────────────────────
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
		Logger:         log,
	})
	defer func() { _ = bus.Close() }()

	var catalog progression.AchievementRepository = store.repo
	if cfg.Redis.Enabled {
		cache, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			// Redis only holds derived data, so run without it.
			log.Warn("redis unavailable, continuing without cache", logger.Err(err))
		} else {
			defer func() { _ = cache.Close() }()
			health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))

			breaker := rediscache.NewBreaker(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})

			version := 0
			if c, err := seed.Load(); err == nil {
				version = c.Version
			}
			catalog = rediscache.NewCatalogCache(store.repo, cache, rediscache.CatalogCacheConfig{
				Version: version,
				Breaker: breaker,
				Logger:  log,
			})

			if cfg.Features.Enabled(config.FeatureEventPublishing, "") {
				publisher := rediscache.NewEventPublisher(cache, cfg.Redis.EventChannel, breaker)
				if err := bus.SubscribeAll(messaging.Forward(publisher)); err != nil {
					return fmt.Errorf("failed to subscribe event forwarder: %w", err)
				}
				log.Info("publishing progression events", logger.String("channel", publisher.Channel()))
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.NewSystemClock(cfg.App.Location())

	award := command.NewAwardXPHandler(store.repo, bus, log)
	evaluator := saga.NewAchievementEvaluator(catalog, store.repo, award, bus, log)
	streak := command.NewAdvanceStreakHandler(store.repo, award, evaluator, cfg.Features, bus, log)
	record := command.NewRecordActivityHandler(streak, evaluator, clock, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Addr = cfg.HTTP.Addr
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RateLimitRPS = cfg.HTTP.RateLimitRPS
	serverCfg.RateLimitBurst = cfg.HTTP.RateLimitBurst
	serverCfg.Version = cfg.App.Version

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		RecordActivity:   record,
		Achievements:     evaluator,
		Activity:         eventhandler.NewActivityHandler(award, record, evaluator, log),
		GetProgress:      query.NewGetProgressHandler(store.repo),
		ListAchievements: query.NewListAchievementsHandler(catalog),
		ListXPHistory:    query.NewListXPHistoryHandler(store.repo),
		HealthChecker:    health,
		Logger:           log,
	})

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}

	log.Info("progressiond stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SETUP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.App.LogLevel)
	opts.FilePath = cfg.App.LogFile
	opts.AddCaller = !cfg.IsProduction()

	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// openedStore is the selected backend behind the progression.Store port.
type openedStore struct {
	repo   progression.Store
	pinger handlers.Pinger
	close  func()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*openedStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		conn, err := postgres.NewConnection(connectCtx, postgres.Config{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.ConnMaxLifetime,
			MaxConnIdleTime: cfg.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		log.Info("connected to postgres")
		return &openedStore{
			repo:   postgres.NewProgressionRepository(conn),
			pinger: conn,
			close:  conn.Close,
		}, nil

	case config.DriverSQLite:
		if cfg.SQLitePath != sqlite.MemoryPath {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLitePath, BusyTimeout: cfg.SQLiteBusyTimeout})
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
		log.Info("opened sqlite store", logger.String("path", cfg.SQLitePath))
		return &openedStore{
			repo:   store,
			pinger: store,
			close:  func() { _ = store.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*rediscache.Cache, error) {
	rc := rediscache.DefaultConfig()
	rc.URL = cfg.URL
	rc.Addr = cfg.Addr
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	rc.PoolSize = cfg.PoolSize
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return rediscache.NewCache(connectCtx, rc)
}
