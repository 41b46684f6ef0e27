// Package cache 行情数据的进程内 TTL 缓存装饰器。
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/portfolioanalytics/internal/analytics/domain"
)

type cachedQuote struct {
	price    decimal.Decimal
	fetchedAt time.Time
}

type cachedCandles struct {
	candles   []domain.Candle
	fetchedAt time.Time
}

// MarketDataCache 包装行情边界并缓存结果。
// TTL 与时钟均可注入，测试可以确定性地控制过期；错误不缓存。
type MarketDataCache struct {
	inner domain.MarketData
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	quotes  map[string]cachedQuote
	candles map[string]cachedCandles
}

// NewMarketDataCache 创建 TTL 缓存装饰器。
func NewMarketDataCache(inner domain.MarketData, ttl time.Duration) *MarketDataCache {
	return &MarketDataCache{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		quotes:  make(map[string]cachedQuote),
		candles: make(map[string]cachedCandles),
	}
}

// CurrentPrice 实现 domain.MarketData。
func (c *MarketDataCache) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.mu.RLock()
	entry, ok := c.quotes[symbol]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.price, nil
	}

	price, err := c.inner.CurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.quotes[symbol] = cachedQuote{price: price, fetchedAt: c.now()}
	c.mu.Unlock()
	return price, nil
}

// HistoricalCandles 实现 domain.MarketData，按 symbol+窗口 维度缓存。
func (c *MarketDataCache) HistoricalCandles(ctx context.Context, symbol string, lookbackDays int) ([]domain.Candle, error) {
	key := fmt.Sprintf("%s:%d", symbol, lookbackDays)

	c.mu.RLock()
	entry, ok := c.candles[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.candles, nil
	}

	candles, err := c.inner.HistoricalCandles(ctx, symbol, lookbackDays)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.candles[key] = cachedCandles{candles: candles, fetchedAt: c.now()}
	c.mu.Unlock()
	return candles, nil
}
