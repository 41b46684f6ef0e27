package domain

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Candle 单日收盘数据
type Candle struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// MarketData 行情数据协作方接口。
// 核心计算只在此边界上消费外部数据；超时与重试策略由实现方负责。
type MarketData interface {
	// CurrentPrice 查询实时价格，无报价时返回 ErrPriceUnavailable。
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// HistoricalCandles 查询最近 lookbackDays 个交易日的日线收盘序列，
	// 按日期升序；上市时间不足时返回的点数可能少于请求值。
	// 完全无数据时返回 ErrHistoryUnavailable。
	HistoricalCandles(ctx context.Context, symbol string, lookbackDays int) ([]Candle, error)
}

// PriceIndex 按日期索引的收盘价，缺失交易日向前取最近的已知收盘价。
// 绩效重建时每个标的每个窗口只拉取一次历史序列，之后全部走内存索引，
// 避免逐日重复调用行情服务。
type PriceIndex struct {
	dates  []time.Time // 升序
	closes []float64
}

// NewPriceIndex 从日线序列构建索引。
func NewPriceIndex(candles []Candle) *PriceIndex {
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	idx := &PriceIndex{
		dates:  make([]time.Time, len(sorted)),
		closes: make([]float64, len(sorted)),
	}
	for i, c := range sorted {
		idx.dates[i] = truncateDay(c.Date)
		idx.closes[i] = c.Close.InexactFloat64()
	}
	return idx
}

// CloseOn 返回指定日期的收盘价；当日无数据时回退到最近的前一个收盘价。
// 完全没有更早的数据时返回 (0, false)。
func (p *PriceIndex) CloseOn(date time.Time) (float64, bool) {
	day := truncateDay(date)
	// 第一个晚于 day 的位置，其前一个即为所求
	i := sort.Search(len(p.dates), func(i int) bool { return p.dates[i].After(day) })
	if i == 0 {
		return 0, false
	}
	return p.closes[i-1], true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
