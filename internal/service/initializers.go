// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/config"
	"github.com/xkilldash9x/resonance/internal/llmclient"
	"github.com/xkilldash9x/resonance/internal/platform"
	"github.com/xkilldash9x/resonance/internal/store"
	"github.com/xkilldash9x/resonance/internal/store/memstore"
	"github.com/xkilldash9x/resonance/internal/store/sqlite"
)

// InitializeStore opens the relational store selected by cfg.Type and brings
// its schema up to date.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (schemas.Store, error) {
	switch cfg.Type {
	case config.DatabasePostgres:
		return initializePostgres(ctx, cfg, logger)

	case config.DatabaseSQLite:
		path, err := cfg.ResolvedSQLitePath()
		if err != nil {
			return nil, err
		}
		logger.Info("Initializing SQLite store.", zap.String("path", path))
		s, err := sqlite.Open(ctx, path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil

	case config.DatabaseMemory, "":
		logger.Warn("No persistent store configured; using a temporary in-memory store. Events, outcomes and learned patterns will be lost on exit.")
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
}

func initializePostgres(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (schemas.Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is not configured (hint: check RESONANCE_DATABASE_URL)")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	if cfg.Password != "" {
		poolConfig.ConnConfig.Password = cfg.Password
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	logger.Info("Initializing PostgreSQL store.", zap.String("host", poolConfig.ConnConfig.Host))
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// InitializeLLMClient creates the tiered LLM client described by the agent config.
func InitializeLLMClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	llmClient, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client. The agent cannot evaluate or compose actions.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llmClient, nil
}

// InitializePlatform builds the platform client stack: the REST client (or a
// dry-run stand-in) behind the action rate limiter.
func InitializePlatform(cfg config.PlatformConfig, logger *zap.Logger) (schemas.Platform, error) {
	var base schemas.Platform
	switch {
	case cfg.DryRun:
		var source schemas.Platform
		if cfg.BaseURL != "" {
			client, err := platform.NewClient(cfg, logger)
			if err != nil {
				return nil, err
			}
			source = client
		}
		logger.Info("Platform dry run enabled; actions will be logged, not posted.", zap.Bool("reads_stimuli", source != nil))
		base = platform.NewDryRun(source, logger)
	default:
		client, err := platform.NewClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		base = client
	}
	return platform.NewThrottled(base, cfg.ActionsPerHour, cfg.Burst, logger), nil
}
