package config

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisDialer returns a constructor for fresh broker connections. Every
// call yields an independent client the caller owns and must Close.
func NewRedisDialer(cfg RedisConfig) func() *redis.Client {
	return func() *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     2,
		})
	}
}
