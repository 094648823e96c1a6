package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// Health reports redis reachability in the same shape as the database health map.
func Health(ctx context.Context, rdb *redis.Client) map[string]string {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return map[string]string{"status": "down", "error": fmt.Sprintf("redis down: %v", err)}
	}
	stats := rdb.PoolStats()
	return map[string]string{
		"status":      "up",
		"total_conns": fmt.Sprintf("%d", stats.TotalConns),
		"idle_conns":  fmt.Sprintf("%d", stats.IdleConns),
	}
}
