package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CachedProvider wraps a Provider with Redis read-through caching.
// Historical bars are immutable once the period has closed, so they
// cache for much longer than latest-trade prices. A nil Redis client
// degrades to pass-through.
type CachedProvider struct {
	inner    Provider
	redis    *redis.Client
	barsTTL  time.Duration
	priceTTL time.Duration
}

// NewCachedProvider wraps inner with caching. Zero TTLs get defaults:
// 15 minutes for bars, 10 seconds for prices.
func NewCachedProvider(inner Provider, redisClient *redis.Client, barsTTL, priceTTL time.Duration) *CachedProvider {
	if barsTTL == 0 {
		barsTTL = 15 * time.Minute
	}
	if priceTTL == 0 {
		priceTTL = 10 * time.Second
	}
	return &CachedProvider{
		inner:    inner,
		redis:    redisClient,
		barsTTL:  barsTTL,
		priceTTL: priceTTL,
	}
}

// GetBars serves bars from cache when possible, fetching and caching on
// a miss. Cache errors are logged and treated as misses.
func (c *CachedProvider) GetBars(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, error) {
	key := barsKey(symbol, tf, start, end)

	if c.redis != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		cached, err := c.redis.Get(cacheCtx, key).Result()
		cancel()
		if err == nil {
			var bars []Bar
			if err := json.Unmarshal([]byte(cached), &bars); err == nil {
				log.Debug().Str("key", key).Int("bars", len(bars)).Msg("Bars cache hit")
				return bars, nil
			}
			log.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached bars, fetching fresh")
		} else if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("Redis error during bars lookup, treating as miss")
		}
	}

	bars, err := c.inner.GetBars(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, err
	}

	c.storeAsync(key, bars, c.barsTTL)
	return bars, nil
}

// GetCurrentPrice serves the latest price with a short cache window.
func (c *CachedProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	key := priceKey(symbol)

	if c.redis != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		cached, err := c.redis.Get(cacheCtx, key).Result()
		cancel()
		if err == nil {
			var price float64
			if err := json.Unmarshal([]byte(cached), &price); err == nil && price > 0 {
				return price, nil
			}
		} else if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("Redis error during price lookup, treating as miss")
		}
	}

	price, err := c.inner.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}

	c.storeAsync(key, price, c.priceTTL)
	return price, nil
}

// storeAsync writes to the cache off the request path; a failed write
// only costs the next caller a fetch.
func (c *CachedProvider) storeAsync(key string, value interface{}, ttl time.Duration) {
	if c.redis == nil {
		return
	}
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		data, err := json.Marshal(value)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to marshal value for cache")
			return
		}
		if err := c.redis.Set(cacheCtx, key, data, ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache market data")
		}
	}()
}

// InvalidateSymbol drops every cached entry for a symbol.
func (c *CachedProvider) InvalidateSymbol(ctx context.Context, symbol string) error {
	if c.redis == nil {
		return nil
	}

	pattern := fmt.Sprintf("md:*:%s:*", symbol)
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			log.Warn().Err(err).Str("key", iter.Val()).Msg("Failed to delete cache key")
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}

	if err := c.redis.Del(ctx, priceKey(symbol)).Err(); err != nil && err != redis.Nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to delete cached price")
	}
	return nil
}

func barsKey(symbol string, tf Timeframe, start, end time.Time) string {
	return fmt.Sprintf("md:bars:%s:%s:%s:%s", symbol, tf, start.UTC().Format("2006-01-02T15:04"), end.UTC().Format("2006-01-02T15:04"))
}

func priceKey(symbol string) string {
	return fmt.Sprintf("md:price:%s", symbol)
}
