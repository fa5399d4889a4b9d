package cmd

import (
	"context"
	"fmt"

	"github.com/narravox/internal/ai"
	"github.com/narravox/internal/config"
	"github.com/narravox/internal/conversation"
	"github.com/narravox/internal/database"
	"github.com/narravox/internal/report"
	"github.com/narravox/internal/reportcache"
)

// pipeline bundles the wired report orchestrator with the handles that
// need closing when the command finishes.
type pipeline struct {
	reports *report.Orchestrator
	close   func()
}

// buildPipeline connects the conversation store, the section cache, and the
// model gateway, then hands back a ready report orchestrator.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to conversation store: %w", err)
	}

	cache, closeCache, err := buildCache(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	reports, err := report.New(conversation.NewPGStore(pool), ai.NewGateway(cfg), cache, cfg)
	if err != nil {
		closeCache()
		pool.Close()
		return nil, err
	}

	return &pipeline{
		reports: reports,
		close: func() {
			closeCache()
			pool.Close()
		},
	}, nil
}

// buildCache opens the configured cache backend. Postgres shares the main
// database, sqlite keeps a local file, memory evaporates on restart.
func buildCache(ctx context.Context, cfg *config.Config) (reportcache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return reportcache.NewMemory(), func() {}, nil
	case "sqlite":
		store, err := reportcache.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite cache: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to prepare sqlite cache schema: %w", err)
		}
		return store, func() { store.Close() }, nil
	case "postgres":
		db, err := database.NewDB(cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres cache: %w", err)
		}
		store := reportcache.NewPGStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to prepare postgres cache schema: %w", err)
		}
		return store, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
