package db

import (
	"log"
	"time"

	"backend-tourguide/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when no address is configured. Callers degrade
// without it: the stream hub delivers locally and routing responses are not
// cached.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Printf("redis: no address configured, pub-sub and routing cache disabled")
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DialTimeout: 2 * time.Second,
		MaxRetries:  1,
	})
}
