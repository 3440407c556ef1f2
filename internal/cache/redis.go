package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps a go-redis client with logging helpers. It is used as a
// best-effort de-duplication cache for webhook deliveries; the provider
// may redeliver the same payload and a cache miss is always tolerated.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// Config defines connection parameters for Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
}

// New returns a Redis client based on provided configuration.
func New(cfg Config, logger *slog.Logger) *Redis {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Redis{
		client: redis.NewClient(opts),
		logger: logger.With("component", "redis"),
	}
}

// Client exposes the underlying go-redis client.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// MarkSeen records a provider message id with the given TTL and reports
// whether this is the first time it was observed. Errors are returned so
// the caller can decide to proceed without de-duplication.
func (r *Redis) MarkSeen(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	first, err := r.client.SetNX(ctx, "webhook:seen:"+messageID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", messageID, err)
	}
	return first, nil
}

// Close releases Redis resources.
func (r *Redis) Close() error {
	return r.client.Close()
}
