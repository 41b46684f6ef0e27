package domain

import (
	"context"
	"math"
	"sort"
	"time"
)

// ReturnPoint 单日收益率观测
type ReturnPoint struct {
	Date  time.Time
	Value float64 // 小数形式, 0.01 = 1%
}

// ReturnSeries 按日期升序的日收益率序列。
// 长度 = 回看窗口内的收盘数 - 1（百分比变化丢弃首个观测）。
type ReturnSeries []ReturnPoint

// ReturnsProvider 把原始历史价格序列转换为各标的的日收益率序列。
// 外部协作方边界：实现方负责行情获取与缓存。
type ReturnsProvider interface {
	ReturnSeries(ctx context.Context, symbol string, lookbackDays int) (ReturnSeries, error)
}

// ReturnsFromCandles 由日线收盘价构建日收益率序列。
func ReturnsFromCandles(candles []Candle) ReturnSeries {
	if len(candles) < 2 {
		return nil
	}
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	series := make(ReturnSeries, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1].Close.InexactFloat64()
		if prev == 0 {
			continue
		}
		curr := sorted[i].Close.InexactFloat64()
		series = append(series, ReturnPoint{
			Date:  truncateDay(sorted[i].Date),
			Value: (curr - prev) / prev,
		})
	}
	return series
}

// PortfolioReturns 将各标的收益率按权重加权合成组合日收益率序列。
// 对齐规则：取所有序列日期的并集；某标的在某日缺失观测时按零贡献处理，
// 不剔除整个日期，也不对剩余权重做再归一化（沿用原始实现的已知近似）。
func PortfolioReturns(values map[string]float64, series map[string]ReturnSeries) []float64 {
	total := PortfolioValue(values)
	if total == 0 || len(series) == 0 {
		return nil
	}

	byDate := make(map[time.Time]float64)
	dates := make([]time.Time, 0)
	for symbol, s := range series {
		weight := values[symbol] / total
		for _, p := range s {
			if _, seen := byDate[p.Date]; !seen {
				dates = append(dates, p.Date)
			}
			byDate[p.Date] += weight * p.Value
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = byDate[d]
	}
	return out
}

// Percentile 线性插值分位数 (标准 percentile 语义, p ∈ [0, 100])。
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	frac := rank - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Mean 算术平均。
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev 总体标准差 (ddof=0)。
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// alignedMatrix 把多条收益率序列对齐成矩阵：行=日期并集(升序)，列=symbols 顺序。
// 缺失观测按零填充，与 PortfolioReturns 的近似保持一致。
func alignedMatrix(symbols []string, series map[string]ReturnSeries) [][]float64 {
	dateSet := make(map[time.Time]struct{})
	for _, s := range series {
		for _, p := range s {
			dateSet[p.Date] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	matrix := make([][]float64, len(dates))
	for i := range matrix {
		matrix[i] = make([]float64, len(symbols))
	}
	for j, symbol := range symbols {
		for _, p := range series[symbol] {
			matrix[index[p.Date]][j] = p.Value
		}
	}
	return matrix
}

// meanVector 各列的样本均值。
func meanVector(matrix [][]float64) []float64 {
	if len(matrix) == 0 {
		return nil
	}
	n := len(matrix)
	cols := len(matrix[0])
	means := make([]float64, cols)
	for _, row := range matrix {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	return means
}

// covarianceMatrix 样本协方差矩阵 (ddof=1)。观测数不足 2 时返回零矩阵。
func covarianceMatrix(matrix [][]float64, means []float64) [][]float64 {
	cols := len(means)
	cov := make([][]float64, cols)
	for i := range cov {
		cov[i] = make([]float64, cols)
	}
	n := len(matrix)
	if n < 2 {
		return cov
	}
	for _, row := range matrix {
		for i := 0; i < cols; i++ {
			di := row[i] - means[i]
			for j := i; j < cols; j++ {
				cov[i][j] += di * (row[j] - means[j])
			}
		}
	}
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			cov[i][j] /= float64(n - 1)
			cov[j][i] = cov[i][j]
		}
	}
	return cov
}
