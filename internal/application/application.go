// Package application wires configuration into a ready core.Service for
// the server and the CLI.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvsplit/internal/config"
	"github.com/JonMunkholm/csvsplit/internal/core"
	"github.com/JonMunkholm/csvsplit/internal/history"
	"github.com/JonMunkholm/csvsplit/internal/storage"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config  *config.Config
	Service *core.Service
	History history.Store

	pool *pgxpool.Pool
}

// New builds an App from cfg. History goes to PostgreSQL when a database
// URL is configured and to a bounded in-memory store otherwise.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.History.Persistent() {
		pool, err := openPool(ctx, cfg.History)
		if err != nil {
			return nil, err
		}
		store := history.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("history schema: %w", err)
		}
		a.pool = pool
		a.History = store
	} else {
		a.History = history.NewMemoryStore(cfg.History.MemoryLimit)
		slog.Info("split history kept in memory", "limit", cfg.History.MemoryLimit)
	}

	files := storage.New(storage.Options{MaxFileSize: cfg.Split.MaxFileSize})
	a.Service = core.NewService(files, a.History, ServiceConfig(cfg))
	return a, nil
}

// ServiceConfig maps the split settings onto core.ServiceConfig.
func ServiceConfig(cfg *config.Config) core.ServiceConfig {
	return core.ServiceConfig{
		DefaultChunkSize: cfg.Split.DefaultRows,
		Workers:          cfg.Split.Workers,
		PreserveBOM:      cfg.Split.PreserveBOM,
		OutputRoot:       cfg.Split.OutputDir,
		MaxFileSize:      cfg.Split.MaxFileSize,
		MaxConcurrent:    cfg.Split.MaxConcurrent,
		MaxWait:          cfg.Split.MaxWaitTime,
		JobTimeout:       cfg.Split.Timeout,
		JobRetention:     cfg.Split.JobRetention,
	}
}

// PruneConfig maps the history settings onto core.PruneConfig.
func PruneConfig(cfg *config.Config) core.PruneConfig {
	return core.PruneConfig{
		RetentionDays: cfg.History.RetentionDays,
		CheckInterval: cfg.History.PruneInterval,
	}
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func openPool(ctx context.Context, cfg config.HistoryConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("connected to history database", "name", databaseName(cfg.DatabaseURL))
	return pool, nil
}

// databaseName returns the database part of a URL without credentials.
func databaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
