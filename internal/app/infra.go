package app

import (
	"context"
	"fmt"

	"auth-client/internal/config"
	"auth-client/internal/db"
	"auth-client/internal/logger"
	"auth-client/internal/redis"
	"auth-client/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Infra struct {
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Sessions session.Store
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	if err := db.MigrateDSN(ctx, cfg.DatabaseDSN); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pool, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	logger.Info("database ready", nil)

	infra := &Infra{DB: pool}

	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, keeping sessions in memory", nil)
		infra.Sessions = session.NewMemoryStore()
		return infra, nil
	}

	redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	logger.Info("redis ready", nil)

	infra.Redis = redisClient
	infra.Sessions = session.NewRedisStore(redisClient.Client)
	return infra, nil
}

func (i *Infra) Close() error {
	i.DB.Close()
	if i.Redis != nil {
		return i.Redis.Close()
	}
	return nil
}
