package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/blues/fundchain/internal/config"
	"github.com/blues/fundchain/internal/logger"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient 支持 redis:// URL 或 host:port
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var opts *redis.Options
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connected (addr: %s, db: %d)", opts.Addr, opts.DB)
	return client, nil
}
