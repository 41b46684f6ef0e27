// Package domain 包含组合风险分析服务的领域模型：
// VaR/CVaR 引擎、压力测试引擎与历史绩效重建。
package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PositionSnapshot 请求时点的持仓快照，由存储的持仓与实时价格拼装而成，核心不落库。
type PositionSnapshot struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	MarketValue float64         `json:"market_value"`
	Sector      string          `json:"sector,omitempty"`
}

// PortfolioValue 持仓市值合计，空头以负值计入。
func PortfolioValue(values map[string]float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// Weights 各标的权重 (市值 / 总市值)。总市值为零时返回空映射。
func Weights(values map[string]float64) map[string]float64 {
	total := PortfolioValue(values)
	if total == 0 {
		return map[string]float64{}
	}
	weights := make(map[string]float64, len(values))
	for s, v := range values {
		weights[s] = v / total
	}
	return weights
}

// ConcentrationRisk 集中度风险指标
type ConcentrationRisk struct {
	HHI                  float64 `json:"hhi"` // <1000 低集中度, 1000~1800 中等, >1800 高
	MaxPositionSymbol    string  `json:"max_position_symbol"`
	MaxPositionWeight    float64 `json:"max_position_weight"` // 百分比
	Top5Concentration    float64 `json:"top5_concentration"`  // 百分比
	NumPositions         int     `json:"num_positions"`
	DiversificationRatio float64 `json:"diversification_ratio"`
}

// Concentration 计算 HHI 与头部持仓集中度。
// totalValue 含现金；HHI 为零时分散化比率按零处理，不做除法。
func Concentration(values map[string]float64, totalValue float64) ConcentrationRisk {
	risk := ConcentrationRisk{NumPositions: len(values)}
	if totalValue == 0 || len(values) == 0 {
		return risk
	}

	weights := make([]float64, 0, len(values))
	var hhi float64
	for symbol, value := range values {
		w := value / totalValue
		weights = append(weights, w)
		hhi += w * w
		if w > risk.MaxPositionWeight/100 {
			risk.MaxPositionWeight = w * 100
			risk.MaxPositionSymbol = symbol
		}
	}
	risk.HHI = hhi * 10000

	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
	var top5 float64
	for i, w := range weights {
		if i >= 5 {
			break
		}
		top5 += w
	}
	risk.Top5Concentration = top5 * 100

	if risk.HHI > 0 {
		risk.DiversificationRatio = 10000 / risk.HHI
	}
	return risk
}
