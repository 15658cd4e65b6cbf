package database

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"fuzzshim/config"
)

type RedisParams struct {
	fx.In

	Config *config.AppConfig
	Logger *zap.Logger
}

// NewRedisClient connects the campaign stats store. Optional: returns nil
// when no REDIS_URL is configured.
func NewRedisClient(p RedisParams) (*redis.Client, error) {
	if p.Config.RedisURL == "" {
		p.Logger.Info("no redis configured, campaign stats stay local")
		return nil, nil
	}

	options, err := redis.ParseURL(p.Config.RedisURL)
	if err != nil {
		p.Logger.Error("failed to parse redis url", zap.Error(err))
		return nil, err
	}
	client := redis.NewClient(options)

	if err := client.Ping(context.Background()).Err(); err != nil {
		p.Logger.Error("failed to ping redis", zap.Error(err))
		return nil, err
	}

	p.Logger.Debug("redis client created")
	return client, nil
}
