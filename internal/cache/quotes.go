// Package cache keeps the latest closes in Redis in front of the quote table.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
)

const keyPrefix = "quote:close:"

// QuoteCache is a read-through ledger.QuoteSource. Redis failures fall back
// to the underlying source.
type QuoteCache struct {
	client *redis.Client
	source ledger.QuoteSource
	ttl    time.Duration
	log    zerolog.Logger
}

var _ ledger.QuoteSource = (*QuoteCache)(nil)

// NewQuoteCache wraps source with a Redis cache whose entries expire after ttl
func NewQuoteCache(client *redis.Client, source ledger.QuoteSource, ttl time.Duration, log zerolog.Logger) *QuoteCache {
	return &QuoteCache{
		client: client,
		source: source,
		ttl:    ttl,
		log:    log.With().Str("component", "quote_cache").Logger(),
	}
}

// LatestCloses serves cached closes and loads the rest from the source
func (c *QuoteCache) LatestCloses(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = keyPrefix + s
	}
	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn().Err(err).Msg("Redis unavailable, reading quotes from source")
		return c.source.LatestCloses(ctx, symbols)
	}

	var missing []string
	for i, v := range cached {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, symbols[i])
			continue
		}
		close, err := decimal.NewFromString(s)
		if err != nil {
			missing = append(missing, symbols[i])
			continue
		}
		out[symbols[i]] = close
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.source.LatestCloses(ctx, missing)
	if err != nil {
		return nil, err
	}
	pipe := c.client.Pipeline()
	for symbol, close := range loaded {
		out[symbol] = close
		pipe.Set(ctx, keyPrefix+symbol, close.String(), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Int("symbols", len(loaded)).Msg("Failed to cache quotes")
	}
	return out, nil
}

// Invalidate drops the cached close of a symbol
func (c *QuoteCache) Invalidate(ctx context.Context, symbol string) error {
	if err := c.client.Del(ctx, keyPrefix+symbol).Err(); err != nil {
		return fmt.Errorf("failed to invalidate quote for %s: %w", symbol, err)
	}
	return nil
}

// Ping checks the Redis connection
func (c *QuoteCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
