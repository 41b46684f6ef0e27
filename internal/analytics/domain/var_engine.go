package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	algorithm "github.com/wyfcoding/pkg/algos/math"
	"golang.org/x/sync/errgroup"
)

// Method VaR 计算方法
type Method string

const (
	MethodHistorical Method = "historical"  // 历史模拟
	MethodParametric Method = "parametric"  // 参数法 (方差-协方差)
	MethodMonteCarlo Method = "monte_carlo" // 蒙特卡洛模拟
)

// ParseMethod 解析方法名，未知方法返回 ErrInvalidMethod。
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodHistorical, MethodParametric, MethodMonteCarlo:
		return Method(s), nil
	default:
		return "", ErrInvalidMethod
	}
}

const (
	// DefaultLookbackDays 默认回看窗口 (一个交易年)
	DefaultLookbackDays = 252
	// DefaultSimulations 默认蒙特卡洛模拟次数
	DefaultSimulations = 10000
)

// VaRParams VaR/CVaR 计算参数
type VaRParams struct {
	ConfidenceLevel float64 // [0.90, 0.99]
	TimeHorizonDays int     // 交易日, >= 1
	LookbackDays    int     // 0 时取 DefaultLookbackDays
	Simulations     int     // 仅蒙特卡洛; 0 时取 DefaultSimulations
}

func (p *VaRParams) normalize() error {
	if p.ConfidenceLevel < 0.90 || p.ConfidenceLevel > 0.99 {
		return ErrInvalidConfidence
	}
	if p.TimeHorizonDays < 1 {
		return ErrInvalidHorizon
	}
	if p.LookbackDays == 0 {
		p.LookbackDays = DefaultLookbackDays
	}
	if p.LookbackDays < 0 {
		return ErrInvalidLookback
	}
	if p.Simulations == 0 {
		p.Simulations = DefaultSimulations
	}
	if p.Simulations < 0 {
		return ErrInvalidSimulations
	}
	return nil
}

// RiskFigure 风险金额与其对应的收益率百分比。
// Amount 为正的损失金额；Percent 保留收益率符号 (损失为负) ×100。
type RiskFigure struct {
	Amount  decimal.Decimal `json:"amount"`
	Percent float64         `json:"percent"`
}

// RiskResult VaR/CVaR 计算结果
type RiskResult struct {
	Method          Method          `json:"method"`
	ConfidenceLevel float64         `json:"confidence_level"`
	TimeHorizonDays int             `json:"time_horizon_days"`
	PortfolioValue  decimal.Decimal `json:"portfolio_value"`
	VaR             RiskFigure      `json:"var"`
	CVaR            RiskFigure      `json:"cvar"`
	DataPoints      int             `json:"data_points"`
	Simulations     int             `json:"simulations,omitempty"`  // 仅蒙特卡洛
	MeanReturn      float64         `json:"mean_return,omitempty"`  // 仅参数法, 已按跨度缩放, ×100
	Volatility      float64         `json:"volatility,omitempty"`   // 仅参数法, 已按跨度缩放, ×100
	CalculatedAt    time.Time       `json:"calculated_at"`
}

// MarginalVaRItem 单一持仓的边际 VaR
type MarginalVaRItem struct {
	Symbol      string  `json:"symbol"`
	MarginalVaR float64 `json:"marginal_var"` // ΔVaR / Δ持仓市值
}

// ComponentVaRItem 单一持仓的成分 VaR
type ComponentVaRItem struct {
	Symbol  string  `json:"symbol"`
	Value   float64 `json:"value"`   // 边际 VaR × 持仓市值
	Percent float64 `json:"percent"` // 占成分 VaR 合计的百分比
}

// VaREngine 组合 VaR/CVaR 计算引擎。
// 随机源必须显式注入、可设种子，保证模拟结果可复现。
type VaREngine struct {
	provider ReturnsProvider
	rng      *rand.Rand
	now      func() time.Time
}

// NewVaREngine 创建 VaR 引擎。
func NewVaREngine(provider ReturnsProvider, rng *rand.Rand) *VaREngine {
	return &VaREngine{provider: provider, rng: rng, now: time.Now}
}

// ComputeVaRCVaR 按指定方法计算组合 VaR/CVaR。
// values: symbol -> 持仓市值 (空头为负)。
// 可用观测不足 2 个时返回全零的中性结果而非错误，
// 保证上层汇总报表不会因个别标的缺数据而整体失败。
func (e *VaREngine) ComputeVaRCVaR(ctx context.Context, values map[string]float64, method Method, params VaRParams) (*RiskResult, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	if err := params.normalize(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrEmptyPortfolio
	}

	series, err := e.fetchSeries(ctx, values, params.LookbackDays)
	if err != nil {
		return nil, err
	}
	return e.computeFromSeries(values, series, method, params), nil
}

// MarginalVaR 计算每个持仓的边际 VaR：
// 将该持仓市值上调 1% 后重算总 VaR，取 ΔVaR/Δ市值。
// 历史序列只拉取一次，逐标的复算全部走内存数据。
func (e *VaREngine) MarginalVaR(ctx context.Context, values map[string]float64, method Method, params VaRParams) ([]MarginalVaRItem, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	if err := params.normalize(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrEmptyPortfolio
	}

	series, err := e.fetchSeries(ctx, values, params.LookbackDays)
	if err != nil {
		return nil, err
	}

	base := e.computeFromSeries(values, series, method, params)
	baseVaR := base.VaR.Amount.InexactFloat64()

	symbols := sortedKeys(values)
	items := make([]MarginalVaRItem, 0, len(symbols))
	for _, symbol := range symbols {
		delta := values[symbol] * 0.01
		if delta == 0 {
			items = append(items, MarginalVaRItem{Symbol: symbol})
			continue
		}
		bumped := make(map[string]float64, len(values))
		for s, v := range values {
			bumped[s] = v
		}
		bumped[symbol] += delta

		adjusted := e.computeFromSeries(bumped, series, method, params)
		items = append(items, MarginalVaRItem{
			Symbol:      symbol,
			MarginalVaR: (adjusted.VaR.Amount.InexactFloat64() - baseVaR) / delta,
		})
	}
	return items, nil
}

// ComponentVaR 成分 VaR：边际 VaR × 持仓市值，按合计归一化为百分比。
// 参数法下各成分之和与总 VaR 近似相等 (Euler 分解)。
// 合计为零时返回全零百分比，不做除法。
func (e *VaREngine) ComponentVaR(ctx context.Context, values map[string]float64, method Method, params VaRParams) ([]ComponentVaRItem, error) {
	marginals, err := e.MarginalVaR(ctx, values, method, params)
	if err != nil {
		return nil, err
	}

	items := make([]ComponentVaRItem, 0, len(marginals))
	var total float64
	for _, m := range marginals {
		component := m.MarginalVaR * values[m.Symbol]
		items = append(items, ComponentVaRItem{Symbol: m.Symbol, Value: component})
		total += component
	}
	if total != 0 {
		for i := range items {
			items[i].Percent = items[i].Value / total * 100
		}
	}
	return items, nil
}

// fetchSeries 并发拉取各标的的收益率序列后汇合 (fork-join)。
// 无历史数据的标的被整体排除出加权合成；其余错误原样上抛。
func (e *VaREngine) fetchSeries(ctx context.Context, values map[string]float64, lookbackDays int) (map[string]ReturnSeries, error) {
	type fetched struct {
		symbol string
		series ReturnSeries
	}

	symbols := sortedKeys(values)
	results := make(chan fetched, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		g.Go(func() error {
			s, err := e.provider.ReturnSeries(gctx, symbol, lookbackDays)
			if err != nil {
				if errors.Is(err, ErrHistoryUnavailable) {
					return nil
				}
				return fmt.Errorf("fetch returns for %s: %w", symbol, err)
			}
			results <- fetched{symbol: symbol, series: s}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	series := make(map[string]ReturnSeries, len(symbols))
	for f := range results {
		if len(f.series) > 0 {
			series[f.symbol] = f.series
		}
	}
	return series, nil
}

func (e *VaREngine) computeFromSeries(values map[string]float64, series map[string]ReturnSeries, method Method, params VaRParams) *RiskResult {
	switch method {
	case MethodParametric:
		return e.parametricFromSeries(values, series, params)
	case MethodMonteCarlo:
		return e.monteCarloFromSeries(values, series, params)
	default:
		return e.historicalFromSeries(values, series, params)
	}
}

func (e *VaREngine) historicalFromSeries(values map[string]float64, series map[string]ReturnSeries, params VaRParams) *RiskResult {
	result := e.newResult(MethodHistorical, values, params)

	portfolioReturns := PortfolioReturns(values, series)
	result.DataPoints = len(portfolioReturns)
	if len(portfolioReturns) < 2 {
		return result
	}

	// 平方根时间法则缩放到目标跨度
	scale := math.Sqrt(float64(params.TimeHorizonDays))
	scaled := make([]float64, len(portfolioReturns))
	for i, r := range portfolioReturns {
		scaled[i] = r * scale
	}

	varReturn := Percentile(scaled, (1-params.ConfidenceLevel)*100)
	cvarReturn := tailMean(scaled, varReturn)

	portfolioValue := PortfolioValue(values)
	result.VaR = riskFigure(varReturn, portfolioValue)
	result.CVaR = riskFigure(cvarReturn, portfolioValue)
	return result
}

func (e *VaREngine) parametricFromSeries(values map[string]float64, series map[string]ReturnSeries, params VaRParams) *RiskResult {
	result := e.newResult(MethodParametric, values, params)

	symbols := sortedKeys(series)
	portfolioValue := PortfolioValue(values)
	if len(symbols) == 0 || portfolioValue == 0 {
		return result
	}

	matrix := alignedMatrix(symbols, series)
	result.DataPoints = len(matrix)
	if len(matrix) < 2 {
		return result
	}

	weights := make([]float64, len(symbols))
	for j, s := range symbols {
		weights[j] = values[s] / portfolioValue
	}

	means := meanVector(matrix)
	cov := covarianceMatrix(matrix, means)

	var portfolioMean, portfolioVar float64
	for i := range symbols {
		portfolioMean += weights[i] * means[i]
		for j := range symbols {
			portfolioVar += weights[i] * cov[i][j] * weights[j]
		}
	}

	horizon := float64(params.TimeHorizonDays)
	portfolioMean *= horizon
	portfolioStd := math.Sqrt(math.Max(portfolioVar, 0)) * math.Sqrt(horizon)

	// 联合正态假设下的解析解
	z := NormQuantile(1 - params.ConfidenceLevel)
	varReturn := portfolioMean + z*portfolioStd
	cvarReturn := portfolioMean - portfolioStd*NormPDF(z)/(1-params.ConfidenceLevel)

	result.VaR = riskFigure(varReturn, portfolioValue)
	result.CVaR = riskFigure(cvarReturn, portfolioValue)
	result.MeanReturn = portfolioMean * 100
	result.Volatility = portfolioStd * 100
	return result
}

func (e *VaREngine) monteCarloFromSeries(values map[string]float64, series map[string]ReturnSeries, params VaRParams) *RiskResult {
	result := e.newResult(MethodMonteCarlo, values, params)
	result.Simulations = params.Simulations

	symbols := sortedKeys(series)
	portfolioValue := PortfolioValue(values)
	if len(symbols) == 0 || portfolioValue == 0 {
		return result
	}

	matrix := alignedMatrix(symbols, series)
	result.DataPoints = len(matrix)
	if len(matrix) < 2 {
		return result
	}

	weights := make([]float64, len(symbols))
	for j, s := range symbols {
		weights[j] = values[s] / portfolioValue
	}

	horizon := float64(params.TimeHorizonDays)
	means := meanVector(matrix)
	cov := covarianceMatrix(matrix, means)
	n := len(symbols)
	for i := 0; i < n; i++ {
		means[i] *= horizon
		for j := 0; j < n; j++ {
			cov[i][j] *= horizon
		}
	}

	chol := choleskyWithRidge(cov)

	simulated := make([]float64, params.Simulations)
	z := make([]float64, n)
	for s := 0; s < params.Simulations; s++ {
		var x []float64
		if chol != nil {
			for i := range z {
				z[i] = e.rng.NormFloat64()
			}
			x, _ = chol.MultiplyVector(z)
		}

		var portfolioReturn float64
		for i := 0; i < n; i++ {
			sample := means[i]
			if x != nil {
				sample += x[i]
			}
			portfolioReturn += weights[i] * sample
		}
		simulated[s] = portfolioReturn
	}

	varReturn := Percentile(simulated, (1-params.ConfidenceLevel)*100)
	cvarReturn := tailMean(simulated, varReturn)

	result.VaR = riskFigure(varReturn, portfolioValue)
	result.CVaR = riskFigure(cvarReturn, portfolioValue)
	return result
}

func (e *VaREngine) newResult(method Method, values map[string]float64, params VaRParams) *RiskResult {
	return &RiskResult{
		Method:          method,
		ConfidenceLevel: params.ConfidenceLevel,
		TimeHorizonDays: params.TimeHorizonDays,
		PortfolioValue:  decimal.NewFromFloat(PortfolioValue(values)),
		CalculatedAt:    e.now(),
	}
}

// choleskyWithRidge 对协方差矩阵做 Cholesky 分解。
// 非正定时对对角线加一次微小扰动重试；仍失败则视为零方差组合，返回 nil。
func choleskyWithRidge(cov [][]float64) *algorithm.Matrix {
	m, err := algorithm.NewMatrixFromData(cov)
	if err != nil {
		return nil
	}
	if l, err := m.Cholesky(); err == nil {
		return l
	}

	const ridge = 1e-12
	for i := range cov {
		m.Set(i, i, m.Get(i, i)+ridge)
	}
	l, err := m.Cholesky()
	if err != nil {
		return nil
	}
	return l
}

// tailMean VaR 分位点以下 (含) 收益率的均值；尾部为空时退化为分位点本身。
func tailMean(returns []float64, threshold float64) float64 {
	var sum float64
	var count int
	for _, r := range returns {
		if r <= threshold {
			sum += r
			count++
		}
	}
	if count == 0 {
		return threshold
	}
	return sum / float64(count)
}

// riskFigure 把收益率换算成正的损失金额与带符号的百分比。
func riskFigure(ret, portfolioValue float64) RiskFigure {
	return RiskFigure{
		Amount:  decimal.NewFromFloat(-ret * portfolioValue),
		Percent: ret * 100,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
