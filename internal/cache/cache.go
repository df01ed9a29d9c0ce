// Package cache provides the Redis-backed fast store for latest price
// points and invalid-symbol markers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricepulse/pricepulse/internal/domain"
)

// negativeMarker is the sentinel value stored for symbols the provider
// rejected as invalid.
const negativeMarker = "invalid"

// RedisCache stores the freshest price point per (provider, symbol)
// with a TTL, plus short-lived negative markers for bad symbols.
type RedisCache struct {
	client      *redis.Client
	priceTTL    time.Duration
	negativeTTL time.Duration
	logger      *slog.Logger
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client, priceTTL, negativeTTL time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client:      client,
		priceTTL:    priceTTL,
		negativeTTL: negativeTTL,
		logger:      logger,
	}
}

// Ping checks the connection to the Redis server.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func priceKey(provider, symbol string) string {
	return fmt.Sprintf("price:latest:%s:%s", provider, symbol)
}

func negativeKey(symbol string) string {
	return fmt.Sprintf("price:invalid:%s", symbol)
}

// GetPrice returns the cached price point for the provider and symbol,
// or (nil, nil) on miss. Cache errors are returned for the caller to
// treat as a miss.
func (c *RedisCache) GetPrice(ctx context.Context, provider, symbol string) (*domain.PricePoint, error) {
	raw, err := c.client.Get(ctx, priceKey(provider, symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var point domain.PricePoint
	if err := json.Unmarshal(raw, &point); err != nil {
		c.logger.Warn("dropping unreadable cache entry", "provider", provider, "symbol", symbol, "error", err)
		return nil, nil
	}
	return &point, nil
}

// SetPrice writes through the freshest price point for its provider
// and symbol.
func (c *RedisCache) SetPrice(ctx context.Context, point *domain.PricePoint) error {
	raw, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, priceKey(point.Provider, point.Symbol), raw, c.priceTTL).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// MarkInvalid records a short-lived negative marker so repeated reads
// of a bad symbol do not hammer the provider.
func (c *RedisCache) MarkInvalid(ctx context.Context, symbol string) error {
	if err := c.client.Set(ctx, negativeKey(symbol), negativeMarker, c.negativeTTL).Err(); err != nil {
		return fmt.Errorf("cache set negative: %w", err)
	}
	return nil
}

// IsInvalid reports whether the symbol carries an unexpired negative
// marker.
func (c *RedisCache) IsInvalid(ctx context.Context, symbol string) (bool, error) {
	_, err := c.client.Get(ctx, negativeKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get negative: %w", err)
	}
	return true, nil
}
