// Package client 行情服务的 HTTP 接入实现。
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/httpclient"
	"github.com/wyfcoding/portfolioanalytics/internal/analytics/domain"
)

// MarketDataClient 通过治理 HTTP 客户端访问行情服务。
// 超时、重试与熔断策略由 httpclient 配置承担。
type MarketDataClient struct {
	baseURL string
	client  *httpclient.Client
}

// NewMarketDataClient 创建行情客户端。
func NewMarketDataClient(baseURL string, client *httpclient.Client) *MarketDataClient {
	return &MarketDataClient{baseURL: baseURL, client: client}
}

type quotePayload struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

type candlePayload struct {
	Date  string          `json:"date"` // 2006-01-02
	Close decimal.Decimal `json:"close"`
}

// CurrentPrice 查询实时报价，404 映射为 ErrPriceUnavailable。
func (c *MarketDataClient) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/api/v1/quotes/%s", c.baseURL, url.PathEscape(symbol))

	var payload quotePayload
	if err := c.getJSON(ctx, endpoint, &payload, domain.ErrPriceUnavailable); err != nil {
		return decimal.Zero, err
	}
	return payload.Price, nil
}

// HistoricalCandles 查询日线收盘序列，404 或空序列映射为 ErrHistoryUnavailable。
func (c *MarketDataClient) HistoricalCandles(ctx context.Context, symbol string, lookbackDays int) ([]domain.Candle, error) {
	endpoint := fmt.Sprintf("%s/api/v1/candles/%s?days=%d", c.baseURL, url.PathEscape(symbol), lookbackDays)

	var payload []candlePayload
	if err := c.getJSON(ctx, endpoint, &payload, domain.ErrHistoryUnavailable); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, domain.ErrHistoryUnavailable
	}

	candles := make([]domain.Candle, 0, len(payload))
	for _, p := range payload {
		date, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, fmt.Errorf("parse candle date %q for %s: %w", p.Date, symbol, err)
		}
		candles = append(candles, domain.Candle{Date: date, Close: p.Close})
	}
	return candles, nil
}

func (c *MarketDataClient) getJSON(ctx context.Context, endpoint string, out any, notFound error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build market data request: %w", err)
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call market data service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return notFound
	default:
		return fmt.Errorf("market data service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode market data response: %w", err)
	}
	return nil
}
