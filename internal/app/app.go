// Package app wires configuration, logging, tracing, metrics, the optional
// run ledger and the fetch pipeline for the command entry points.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/backyonatan-alt/conflictwatch/internal/cache"
	"github.com/backyonatan-alt/conflictwatch/internal/config"
	"github.com/backyonatan-alt/conflictwatch/internal/fetcher"
	"github.com/backyonatan-alt/conflictwatch/internal/metrics"
	"github.com/backyonatan-alt/conflictwatch/internal/model"
	"github.com/backyonatan-alt/conflictwatch/internal/pipeline"
	"github.com/backyonatan-alt/conflictwatch/internal/store"
	"github.com/backyonatan-alt/conflictwatch/internal/telemetry"
)

var logLevel = new(slog.LevelVar)

// InitLogging installs the default text logger. Call it first in main.
func InitLogging() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

type App struct {
	Config   *config.Config
	Fetcher  *fetcher.Fetcher
	Pipeline *pipeline.Pipeline
	Cache    *cache.Cache
	Store    store.Store
	Registry *prometheus.Registry

	db            *sql.DB
	shutdownTrace func(context.Context) error
}

// Setup loads configuration and builds every dependency. The run ledger is
// only opened when DATABASE_URL is set.
func Setup(ctx context.Context, service string) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logLevel.Set(cfg.LogLevel)

	a := &App{Config: cfg, Cache: cache.New()}

	a.shutdownTrace, err = telemetry.Init(ctx, service, cfg.TraceStdout)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.Registry)

	if cfg.DatabaseURL != "" {
		pg, err := a.openStore(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = pg
	} else {
		slog.Info("DATABASE_URL not set, run ledger disabled")
	}

	a.Fetcher = fetcher.New(cfg, m)
	a.Pipeline = pipeline.New(a.Store, a.Cache, a.Fetcher, m)
	return a, nil
}

func (a *App) openStore(ctx context.Context, dsn string) (*store.Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pg := store.NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return pg, nil
}

// OutputPaths maps each source to the file its fetcher writes.
func (a *App) OutputPaths() map[string]string {
	return map[string]string{
		model.SourceACLED: a.Fetcher.ACLEDPath(),
		model.SourceVIIRS: a.Fetcher.VIIRSPath(),
	}
}

// Close flushes traces and closes the database.
func (a *App) Close() {
	if a.shutdownTrace != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTrace(ctx); err != nil {
			slog.Warn("trace shutdown failed", "error", err)
		}
		cancel()
	}
	if a.db != nil {
		a.db.Close()
	}
}
