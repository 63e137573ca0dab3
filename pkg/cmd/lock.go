package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowgate/pkg/lock"
	"github.com/redis/go-redis/v9"
)

// NewLocker returns a Redis lock when redisURL is set, a process-local lock otherwise.
// Hosts that share runs across processes must use Redis.
func NewLocker(redisURL string, ttl time.Duration, logger *slog.Logger) lock.Locker {
	if redisURL == "" {
		logger.Info("Using in-memory run lock")

		return lock.NewMemory()
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("invalid redis url: %w", err))
	}

	logger.Info("Using redis run lock", "addr", options.Addr)

	return lock.NewRedis(redis.NewClient(options), ttl)
}
