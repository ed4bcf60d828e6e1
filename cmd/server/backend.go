package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"cdigit/internal/platform/config"
	"cdigit/internal/platform/postgres"
	redisclient "cdigit/internal/platform/redis"
	"cdigit/internal/storage"
	httptransport "cdigit/internal/transport/http"
)

// backend is the durable KV selected by store.driver plus what it takes to
// probe and release it.
type backend struct {
	kv     storage.KV
	redis  *redis.Client
	health map[string]httptransport.HealthChecker
	closer func() error
}

func (b *backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		client, err := redisclient.New(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		log.InfoContext(ctx, "using redis store", "key_prefix", cfg.Redis.KeyPrefix)
		return &backend{
			kv:     storage.NewRedis(client.Client, storage.WithKeyPrefix(cfg.Redis.KeyPrefix)),
			redis:  client.Client,
			health: map[string]httptransport.HealthChecker{"redis": client},
			closer: client.Close,
		}, nil

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := storage.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, errors.Join(fmt.Errorf("ensure postgres schema: %w", err), db.Close())
		}
		log.InfoContext(ctx, "using postgres store")
		return &backend{
			kv:     pg,
			health: map[string]httptransport.HealthChecker{"postgres": pingChecker(db)},
			closer: db.Close,
		}, nil

	default:
		log.WarnContext(ctx, "using in-memory store; workflows and audit logs are lost on restart")
		return &backend{kv: storage.NewMemory(), health: map[string]httptransport.HealthChecker{}}, nil
	}
}

func pingChecker(db *sql.DB) httptransport.HealthFunc {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}
