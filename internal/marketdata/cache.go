package marketdata

import (
	"context"
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/models"
)

// CachedProvider wraps a Provider with an in-memory TTL cache. Repeated
// backtests of strategies sharing a symbol and timeframe within one cycle
// hit the cache instead of spending provider rate-limit budget.
type CachedProvider struct {
	inner  Provider
	cache  *cache.Cache
	logger *logrus.Logger
}

// NewCachedProvider wraps the provider with the given TTL
func NewCachedProvider(inner Provider, ttl time.Duration, logger *logrus.Logger) *CachedProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedProvider{
		inner:  inner,
		cache:  cache.New(ttl, ttl*2),
		logger: logger,
	}
}

// GetCandles serves from cache when possible, falling through to the inner
// provider. Empty results are not cached so a transient provider outage does
// not pin "no data" for a full TTL.
func (c *CachedProvider) GetCandles(ctx context.Context, symbol, timeframe string, limit int, start, end time.Time) ([]models.Candle, error) {
	key := candleCacheKey(symbol, timeframe, limit, start, end)
	if cached, found := c.cache.Get(key); found {
		if candles, ok := cached.([]models.Candle); ok {
			return candles, nil
		}
	}

	candles, err := c.inner.GetCandles(ctx, symbol, timeframe, limit, start, end)
	if err != nil {
		return nil, err
	}
	candles = c.appendLive(symbol, timeframe, candles, end)
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	if len(candles) > 0 {
		c.cache.Set(key, candles, cache.DefaultExpiration)
	}
	return candles, nil
}

// appendLive extends a fetched series with streamed candles the provider
// does not serve yet: bars after the last fetched bar and inside the
// request window.
func (c *CachedProvider) appendLive(symbol, timeframe string, candles []models.Candle, end time.Time) []models.Candle {
	cached, found := c.cache.Get(liveCacheKey(symbol, timeframe))
	if !found {
		return candles
	}
	buffer, ok := cached.([]models.Candle)
	if !ok {
		return candles
	}

	var last time.Time
	if len(candles) > 0 {
		last = candles[len(candles)-1].Time
	}
	for _, candle := range buffer {
		if !candle.Time.After(last) {
			continue
		}
		if !end.IsZero() && candle.Time.After(end) {
			continue
		}
		candles = append(candles, candle)
		last = candle.Time
	}
	return candles
}

// WarmCandle appends one live candle to the symbol's rolling buffer so the
// next cycle can serve recent bars without a provider round trip.
func (c *CachedProvider) WarmCandle(symbol, timeframe string, candle models.Candle) {
	key := liveCacheKey(symbol, timeframe)

	var buffer []models.Candle
	if cached, found := c.cache.Get(key); found {
		if existing, ok := cached.([]models.Candle); ok {
			buffer = append([]models.Candle(nil), existing...)
		}
	}
	buffer = append(buffer, candle)
	if len(buffer) > liveBufferSize {
		buffer = buffer[len(buffer)-liveBufferSize:]
	}
	c.cache.Set(key, buffer, cache.DefaultExpiration)
}

const liveBufferSize = 500

// Close releases the inner provider
func (c *CachedProvider) Close() error {
	c.cache.Flush()
	return c.inner.Close()
}

func candleCacheKey(symbol, timeframe string, limit int, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d", symbol, timeframe, limit, start.Unix(), end.Unix())
}

func liveCacheKey(symbol, timeframe string) string {
	return fmt.Sprintf("live:%s:%s", symbol, timeframe)
}
