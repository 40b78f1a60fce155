package main

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ridha-boughediri/mys3/pkg/config"
)

// newRedisClient accepts either a redis:// URL or a host:port address.
func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if strings.HasPrefix(cfg.Address, "redis://") || strings.HasPrefix(cfg.Address, "rediss://") {
		opt, err := redis.ParseURL(cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
