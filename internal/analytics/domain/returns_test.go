package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestReturnsFromCandles(t *testing.T) {
	candles := dailyCandles(day(0), []float64{100, 110, 99})
	series := ReturnsFromCandles(candles)

	if len(series) != 2 {
		t.Fatalf("len(series) = %d, want 2 (首个观测被丢弃)", len(series))
	}
	if math.Abs(series[0].Value-0.10) > 1e-12 {
		t.Errorf("series[0] = %v, want 0.10", series[0].Value)
	}
	if math.Abs(series[1].Value-(-0.10)) > 1e-12 {
		t.Errorf("series[1] = %v, want -0.10", series[1].Value)
	}
}

func TestReturnsFromCandles_UnsortedInput(t *testing.T) {
	candles := []Candle{
		{Date: day(2), Close: decimal.NewFromInt(99)},
		{Date: day(0), Close: decimal.NewFromInt(100)},
		{Date: day(1), Close: decimal.NewFromInt(110)},
	}
	series := ReturnsFromCandles(candles)

	if len(series) != 2 {
		t.Fatalf("len(series) = %d, want 2", len(series))
	}
	if !series[0].Date.Before(series[1].Date) {
		t.Error("序列应按日期升序")
	}
	if math.Abs(series[0].Value-0.10) > 1e-12 {
		t.Errorf("乱序输入应先排序再差分, series[0] = %v", series[0].Value)
	}
}

func TestReturnsFromCandles_TooFew(t *testing.T) {
	if got := ReturnsFromCandles(dailyCandles(day(0), []float64{100})); got != nil {
		t.Errorf("单点序列应返回 nil, got %v", got)
	}
}

func TestPortfolioReturns_WeightedSum(t *testing.T) {
	values := map[string]float64{"A": 60000, "B": 40000}
	series := map[string]ReturnSeries{
		"A": seriesFrom([]float64{0.01, 0.02}),
		"B": seriesFrom([]float64{-0.01, 0.03}),
	}

	got := PortfolioReturns(values, series)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if want := 0.6*0.01 + 0.4*-0.01; math.Abs(got[0]-want) > 1e-12 {
		t.Errorf("got[0] = %v, want %v", got[0], want)
	}
	if want := 0.6*0.02 + 0.4*0.03; math.Abs(got[1]-want) > 1e-12 {
		t.Errorf("got[1] = %v, want %v", got[1], want)
	}
}

func TestPortfolioReturns_MissingDateZeroFill(t *testing.T) {
	values := map[string]float64{"A": 50000, "B": 50000}
	// B 缺少第二天的观测, 该日只有 A 贡献
	series := map[string]ReturnSeries{
		"A": seriesFrom([]float64{0.01, 0.02}),
		"B": seriesFrom([]float64{0.01}),
	}

	got := PortfolioReturns(values, series)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (日期取并集)", len(got))
	}
	if want := 0.5 * 0.02; math.Abs(got[1]-want) > 1e-12 {
		t.Errorf("got[1] = %v, want %v (缺失观测按零贡献)", got[1], want)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{4, 1, 3, 2}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{50, 2.5},
		{25, 1.75}, // 线性插值
		{100, 4},
		{-5, 1},
		{105, 4},
	}
	for _, tt := range tests {
		if got := Percentile(values, tt.p); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("空序列 = %v, want 0", got)
	}
}

func TestStdDevPopulation(t *testing.T) {
	// 总体标准差: sqrt(((2-5)²+(4-5)²+(4-5)²+(4-5)²+(5-5)²+(5-5)²+(7-5)²+(9-5)²)/8) = 2
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := StdDev(values); math.Abs(got-2) > 1e-12 {
		t.Errorf("StdDev = %v, want 2", got)
	}
}

func TestPriceIndexForwardFill(t *testing.T) {
	idx := NewPriceIndex([]Candle{
		{Date: day(0), Close: decimal.NewFromInt(100)},
		{Date: day(2), Close: decimal.NewFromInt(110)},
	})

	if got, ok := idx.CloseOn(day(1)); !ok || got != 100 {
		t.Errorf("CloseOn(day1) = %v, %v; want 100, true", got, ok)
	}
	if got, ok := idx.CloseOn(day(5)); !ok || got != 110 {
		t.Errorf("CloseOn(day5) = %v, %v; want 110, true", got, ok)
	}
	if _, ok := idx.CloseOn(day(0).AddDate(0, 0, -1)); ok {
		t.Error("首个收盘之前应返回 false")
	}
	// 日内时间戳按自然日截断
	if got, ok := idx.CloseOn(day(2).Add(15 * time.Hour)); !ok || got != 110 {
		t.Errorf("CloseOn(day2 15:00) = %v, %v; want 110, true", got, ok)
	}
}

func TestNormQuantile(t *testing.T) {
	tests := []struct {
		p    float64
		want float64
	}{
		{0.01, -2.3263},
		{0.05, -1.6449},
		{0.5, 0},
		{0.95, 1.6449},
	}
	for _, tt := range tests {
		if got := NormQuantile(tt.p); math.Abs(got-tt.want) > 1e-3 {
			t.Errorf("NormQuantile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestNormPDF(t *testing.T) {
	if got := NormPDF(0); math.Abs(got-1/math.Sqrt(2*math.Pi)) > 1e-12 {
		t.Errorf("NormPDF(0) = %v", got)
	}
}
