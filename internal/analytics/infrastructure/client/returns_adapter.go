package client

import (
	"context"

	"github.com/wyfcoding/portfolioanalytics/internal/analytics/domain"
)

// ReturnsAdapter 把行情边界的日线序列转换为日收益率序列。
type ReturnsAdapter struct {
	market domain.MarketData
}

// NewReturnsAdapter 创建收益率适配器。
func NewReturnsAdapter(market domain.MarketData) *ReturnsAdapter {
	return &ReturnsAdapter{market: market}
}

// ReturnSeries 实现 domain.ReturnsProvider。
func (a *ReturnsAdapter) ReturnSeries(ctx context.Context, symbol string, lookbackDays int) (domain.ReturnSeries, error) {
	candles, err := a.market.HistoricalCandles(ctx, symbol, lookbackDays)
	if err != nil {
		return nil, err
	}
	return domain.ReturnsFromCandles(candles), nil
}
