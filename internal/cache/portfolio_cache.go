// Package cache keeps rendered portfolios in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reapbenefit/cmp-backend/internal/store"
)

// PortfolioCache stores portfolios by username. A miss returns (nil, nil).
type PortfolioCache interface {
	Get(ctx context.Context, username string) (*store.Portfolio, error)
	Set(ctx context.Context, username string, p *store.Portfolio) error
	Invalidate(ctx context.Context, username string) error
}

type portfolioCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPortfolioCache(client *redis.Client, ttl time.Duration) PortfolioCache {
	return &portfolioCache{client: client, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *portfolioCache) key(username string) string {
	return fmt.Sprintf("portfolio:%s", username)
}

func (c *portfolioCache) Get(ctx context.Context, username string) (*store.Portfolio, error) {
	data, err := c.client.Get(ctx, c.key(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p store.Portfolio
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode cached portfolio: %w", err)
	}
	return &p, nil
}

func (c *portfolioCache) Set(ctx context.Context, username string, p *store.Portfolio) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(username), data, c.ttl).Err()
}

func (c *portfolioCache) Invalidate(ctx context.Context, username string) error {
	return c.client.Del(ctx, c.key(username)).Err()
}

// Noop is used when Redis is not configured. Every Get misses.
type Noop struct{}

func (Noop) Get(context.Context, string) (*store.Portfolio, error) { return nil, nil }
func (Noop) Set(context.Context, string, *store.Portfolio) error   { return nil }
func (Noop) Invalidate(context.Context, string) error              { return nil }
