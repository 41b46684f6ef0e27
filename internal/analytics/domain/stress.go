package domain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Scenario 压力测试场景定义。
// MarketShock 为组合级基础冲击；SectorShocks 中命中的行业覆盖基础冲击；
// CorrelationIncrease 目前仅作为场景元数据保留，不参与冲击计算。
type Scenario struct {
	Key                  string             `json:"key"`
	Name                 string             `json:"name"`
	MarketShock          float64            `json:"market_shock"`          // 小数, -0.40 = 下跌 40%
	VolatilityMultiplier float64            `json:"volatility_multiplier"` // >= 0, 随机扰动幅度系数
	SectorShocks         map[string]float64 `json:"sector_shocks,omitempty"`
	CorrelationIncrease  float64            `json:"correlation_increase,omitempty"`
}

// StressPosition 压力测试输入的单项持仓
type StressPosition struct {
	Value  float64 `json:"value"`
	Sector string  `json:"sector,omitempty"`
}

// PositionImpact 单项持仓在场景下的冲击明细
type PositionImpact struct {
	InitialValue     float64 `json:"initial_value"`
	StressedValue    float64 `json:"stressed_value"`
	Change           float64 `json:"change"`
	ChangePercentage float64 `json:"change_percentage"`
}

// ScenarioResult 单个场景的压力测试结果
type ScenarioResult struct {
	ScenarioKey     string                    `json:"scenario_key"`
	Name            string                    `json:"name"`
	InitialValue    float64                   `json:"initial_value"`
	StressedValue   float64                   `json:"stressed_value"`
	Loss            float64                   `json:"loss"` // 负值表示亏损
	LossPercentage  float64                   `json:"loss_percentage"`
	PositionImpacts map[string]PositionImpact `json:"position_impacts"`
}

// StressReport 压力测试汇总报告
type StressReport struct {
	PortfolioValue float64                    `json:"portfolio_value"`
	Scenarios      map[string]*ScenarioResult `json:"scenarios"`
	WorstCase      *ScenarioResult            `json:"worst_case,omitempty"`
	TestedAt       time.Time                  `json:"tested_at"`
}

// ShortfallResult Expected Shortfall 模拟结果，损失以正数表示。
type ShortfallResult struct {
	PortfolioValue    float64 `json:"portfolio_value"`
	ConfidenceLevel   float64 `json:"confidence_level"`
	VaR               float64 `json:"var"`
	ExpectedShortfall float64 `json:"expected_shortfall"`
	VaRPercentage     float64 `json:"var_percentage"`
	ESPercentage      float64 `json:"es_percentage"`
	Simulations       int     `json:"simulations"`
	TailObservations  int     `json:"tail_observations"`
}

// HistoricalPositionResult 单项持仓在历史时段回放中的结果，收益与回撤为百分比。
type HistoricalPositionResult struct {
	InitialValue  float64 `json:"initial_value"`
	StressedValue float64 `json:"stressed_value"`
	WorstValue    float64 `json:"worst_value"`
	PeriodReturn  float64 `json:"period_return"`
	MaxDrawdown   float64 `json:"max_drawdown"` // 负值
}

// HistoricalStressReport 历史时段回放报告
type HistoricalStressReport struct {
	Period          string                              `json:"period"`
	InitialValue    float64                             `json:"initial_value"`
	StressedValue   float64                             `json:"stressed_value"`
	TotalLoss       float64                             `json:"total_loss"`
	LossPercentage  float64                             `json:"loss_percentage"`
	PositionResults map[string]HistoricalPositionResult `json:"position_results"`
}

// SensitivityPoint 敏感度曲线上的一个采样点
type SensitivityPoint struct {
	FactorValue    float64 `json:"factor_value"`
	PortfolioValue float64 `json:"portfolio_value"`
	Loss           float64 `json:"loss"`
	LossPercentage float64 `json:"loss_percentage"`
}

// StressTestEngine 压力测试引擎，内置五个宏观场景目录。
// 场景之间相互独立、不叠加；随机扰动来自显式注入的可设种子随机源。
// market 仅历史时段回放使用，场景压力测试不依赖行情。
type StressTestEngine struct {
	catalog map[string]*Scenario
	order   []string // 目录迭代顺序, worst-case 平局时先遇到者胜出
	market  MarketData
	rng     *rand.Rand
	now     func() time.Time
}

// NewStressTestEngine 创建压力测试引擎。
func NewStressTestEngine(market MarketData, rng *rand.Rand) *StressTestEngine {
	e := &StressTestEngine{
		catalog: make(map[string]*Scenario),
		market:  market,
		rng:     rng,
		now:     time.Now,
	}
	e.registerDefaults()
	return e
}

func (e *StressTestEngine) registerDefaults() {
	for _, s := range []*Scenario{
		{
			Key:                  "2008_financial_crisis",
			Name:                 "2008 Financial Crisis",
			MarketShock:          -0.40,
			VolatilityMultiplier: 3.0,
			CorrelationIncrease:  0.3,
		},
		{
			Key:                  "covid_19_crash",
			Name:                 "COVID-19 Pandemic Crash",
			MarketShock:          -0.35,
			VolatilityMultiplier: 2.5,
			CorrelationIncrease:  0.25,
		},
		{
			Key:                  "tech_bubble_burst",
			Name:                 "Dot-com Bubble Burst",
			MarketShock:          -0.30,
			VolatilityMultiplier: 2.0,
			CorrelationIncrease:  0.2,
			SectorShocks:         map[string]float64{"technology": -0.50},
		},
		{
			Key:                  "interest_rate_shock",
			Name:                 "Interest Rate Shock",
			MarketShock:          -0.15,
			VolatilityMultiplier: 1.5,
			SectorShocks: map[string]float64{
				"real_estate": -0.25,
				"utilities":   -0.20,
				"financials":  0.05,
			},
		},
		{
			Key:                  "inflation_surge",
			Name:                 "Inflation Surge",
			MarketShock:          -0.20,
			VolatilityMultiplier: 1.8,
			SectorShocks: map[string]float64{
				"consumer_staples": 0.05,
				"technology":       -0.25,
				"materials":        0.10,
			},
		},
	} {
		e.catalog[s.Key] = s
		e.order = append(e.order, s.Key)
	}
}

// Scenarios 返回目录中的场景，按注册顺序。
func (e *StressTestEngine) Scenarios() []*Scenario {
	out := make([]*Scenario, 0, len(e.order))
	for _, key := range e.order {
		out = append(out, e.catalog[key])
	}
	return out
}

// RunStressTest 对所选场景逐一独立施压。
// scenarioKeys 为空时跑全部内置场景；custom 不为 nil 时以 "custom" 键附加执行。
// 最坏场景取损失最小 (最负) 者，平局按目录顺序先到先得。
func (e *StressTestEngine) RunStressTest(positions map[string]StressPosition, scenarioKeys []string, custom *Scenario) *StressReport {
	report := &StressReport{
		PortfolioValue: stressTotal(positions),
		Scenarios:      make(map[string]*ScenarioResult),
		TestedAt:       e.now(),
	}

	keys := scenarioKeys
	if len(keys) == 0 {
		keys = e.order
	}
	selected := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		selected[k] = struct{}{}
	}

	// 按目录顺序执行，保证 worst-case 平局裁决可复现
	for _, key := range e.order {
		if _, ok := selected[key]; !ok {
			continue
		}
		result := e.ApplyScenario(positions, e.catalog[key])
		result.ScenarioKey = key
		report.Scenarios[key] = result
		report.WorstCase = worseOf(report.WorstCase, result)
	}

	if custom != nil {
		if custom.Name == "" {
			custom.Name = "Custom Scenario"
		}
		result := e.ApplyScenario(positions, custom)
		result.ScenarioKey = "custom"
		report.Scenarios["custom"] = result
		report.WorstCase = worseOf(report.WorstCase, result)
	}
	return report
}

// ApplyScenario 把单个场景施加到持仓集合上。
// 每个持仓的有效冲击 = 行业覆盖冲击或基础冲击，再叠加一个
// N(0, 0.05×VolatilityMultiplier) 的随机扰动来刻画压力期的个体离散。
// 乘数为零时不注入扰动，零冲击场景的损失严格为零。
func (e *StressTestEngine) ApplyScenario(positions map[string]StressPosition, scenario *Scenario) *ScenarioResult {
	result := &ScenarioResult{
		Name:            scenario.Name,
		InitialValue:    stressTotal(positions),
		PositionImpacts: make(map[string]PositionImpact, len(positions)),
	}

	for _, symbol := range sortedKeys(positions) {
		position := positions[symbol]

		shock := scenario.MarketShock
		if override, ok := scenario.SectorShocks[position.Sector]; ok {
			shock = override
		}

		var perturbation float64
		if scenario.VolatilityMultiplier > 0 {
			perturbation = e.rng.NormFloat64() * 0.05 * scenario.VolatilityMultiplier
		}

		totalShock := shock + perturbation
		stressed := position.Value * (1 + totalShock)
		result.StressedValue += stressed
		result.PositionImpacts[symbol] = PositionImpact{
			InitialValue:     position.Value,
			StressedValue:    stressed,
			Change:           stressed - position.Value,
			ChangePercentage: totalShock * 100,
		}
	}

	result.Loss = result.StressedValue - result.InitialValue
	if result.InitialValue != 0 {
		result.LossPercentage = result.Loss / result.InitialValue * 100
	}
	return result
}

// SensitivityAnalysis 单因子敏感度扫描。
// 入参范围覆盖默认范围；无法识别的因子名跳过，不报错。
func (e *StressTestEngine) SensitivityAnalysis(positions map[string]StressPosition, factorRanges map[string][]float64) map[string][]SensitivityPoint {
	ranges := map[string][]float64{
		"market_change":         {-0.3, -0.2, -0.1, 0, 0.1, 0.2, 0.3},
		"volatility_multiplier": {0.5, 1.0, 1.5, 2.0, 2.5, 3.0},
		"correlation":           {0.3, 0.5, 0.7, 0.9},
	}
	for factor, values := range factorRanges {
		ranges[factor] = values
	}

	results := make(map[string][]SensitivityPoint)
	for _, factor := range sortedKeys(ranges) {
		var build func(v float64) *Scenario
		switch factor {
		case "market_change":
			build = func(v float64) *Scenario { return &Scenario{MarketShock: v} }
		case "volatility_multiplier":
			build = func(v float64) *Scenario { return &Scenario{MarketShock: -0.1, VolatilityMultiplier: v} }
		case "correlation":
			build = func(v float64) *Scenario { return &Scenario{MarketShock: -0.1, CorrelationIncrease: v} }
		default:
			continue
		}

		points := make([]SensitivityPoint, 0, len(ranges[factor]))
		for _, v := range ranges[factor] {
			r := e.ApplyScenario(positions, build(v))
			points = append(points, SensitivityPoint{
				FactorValue:    v,
				PortfolioValue: r.StressedValue,
				Loss:           r.Loss,
				LossPercentage: r.LossPercentage,
			})
		}
		results[factor] = points
	}
	return results
}

// CalculateExpectedShortfall 用随机场景蒙特卡洛估计 ES。
// 每次抽样: 市场冲击 ~ N(-0.01, 0.05)，波动乘数 ~ U(1.0, 2.0)；
// 损失取反为正数后，VaR = confidence 分位，ES = 尾部均值 (恒 >= VaR)。
func (e *StressTestEngine) CalculateExpectedShortfall(positions map[string]StressPosition, numSimulations int, confidenceLevel float64) (*ShortfallResult, error) {
	if numSimulations <= 0 {
		return nil, ErrInvalidSimulations
	}
	if confidenceLevel < 0.90 || confidenceLevel > 0.99 {
		return nil, ErrInvalidConfidence
	}

	portfolioValue := stressTotal(positions)
	losses := make([]float64, numSimulations)
	for i := 0; i < numSimulations; i++ {
		scenario := &Scenario{
			MarketShock:          e.rng.NormFloat64()*0.05 - 0.01,
			VolatilityMultiplier: 1.0 + e.rng.Float64(),
		}
		losses[i] = -e.ApplyScenario(positions, scenario).Loss
	}

	varThreshold := Percentile(losses, confidenceLevel*100)

	var tailSum float64
	var tailCount int
	for _, loss := range losses {
		if loss >= varThreshold {
			tailSum += loss
			tailCount++
		}
	}
	es := varThreshold
	if tailCount > 0 {
		es = tailSum / float64(tailCount)
	}

	result := &ShortfallResult{
		PortfolioValue:    portfolioValue,
		ConfidenceLevel:   confidenceLevel,
		VaR:               varThreshold,
		ExpectedShortfall: es,
		Simulations:       numSimulations,
		TailObservations:  tailCount,
	}
	if portfolioValue != 0 {
		result.VaRPercentage = varThreshold / portfolioValue * 100
		result.ESPercentage = es / portfolioValue * 100
	}
	return result, nil
}

// HistoricalStressTest 用指定历史时段的真实收盘价回放当前持仓。
// period 形如 "2008-09-01:2009-03-31"。逐标的取时段内首日、最低、末日收盘价，
// 压力后市值按时段收益折算，最差市值按相对首日的最深跌幅折算。
// 时段内无数据的标的计入组合期初值但不参与压力后市值。
func (e *StressTestEngine) HistoricalStressTest(ctx context.Context, positions map[string]StressPosition, period string) (*HistoricalStressReport, error) {
	start, end, err := parsePeriodRange(period)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, ErrEmptyPortfolio
	}

	report := &HistoricalStressReport{
		Period:          period,
		InitialValue:    stressTotal(positions),
		PositionResults: make(map[string]HistoricalPositionResult, len(positions)),
	}

	// 取到足以覆盖时段起点的回看窗口，时段内数据再本地过滤
	lookback := int(e.now().Sub(start).Hours()/24) + 1
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for symbol, position := range positions {
		g.Go(func() error {
			candles, err := e.market.HistoricalCandles(gctx, symbol, lookback)
			if err != nil {
				if errors.Is(err, ErrHistoryUnavailable) {
					return nil
				}
				return fmt.Errorf("fetch history for %s: %w", symbol, err)
			}

			first, lowest, last, ok := periodCloses(candles, start, end)
			if !ok || first == 0 {
				return nil
			}

			periodReturn := (last - first) / first
			maxDrawdown := (lowest - first) / first
			stressed := position.Value * (1 + periodReturn)

			mu.Lock()
			report.StressedValue += stressed
			report.PositionResults[symbol] = HistoricalPositionResult{
				InitialValue:  position.Value,
				StressedValue: stressed,
				WorstValue:    position.Value * (1 + maxDrawdown),
				PeriodReturn:  periodReturn * 100,
				MaxDrawdown:   maxDrawdown * 100,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.TotalLoss = report.StressedValue - report.InitialValue
	if report.InitialValue != 0 {
		report.LossPercentage = report.TotalLoss / report.InitialValue * 100
	}
	return report, nil
}

// parsePeriodRange 解析 "YYYY-MM-DD:YYYY-MM-DD" 形式的历史时段。
func parsePeriodRange(period string) (time.Time, time.Time, error) {
	parts := strings.Split(period, ":")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, ErrInvalidPeriodRange
	}
	start, err := time.Parse("2006-01-02", parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidPeriodRange
	}
	end, err := time.Parse("2006-01-02", parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidPeriodRange
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, ErrInvalidPeriodRange
	}
	return start, end, nil
}

// periodCloses 返回时段 [start, end] 内按日期排序后的首个、最低、最后收盘价。
func periodCloses(candles []Candle, start, end time.Time) (first, lowest, last float64, ok bool) {
	var window []Candle
	for _, c := range candles {
		d := truncateDay(c.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		window = append(window, c)
	}
	if len(window) == 0 {
		return 0, 0, 0, false
	}
	sort.Slice(window, func(i, j int) bool { return window[i].Date.Before(window[j].Date) })

	first = window[0].Close.InexactFloat64()
	last = window[len(window)-1].Close.InexactFloat64()
	lowest = first
	for _, c := range window[1:] {
		if v := c.Close.InexactFloat64(); v < lowest {
			lowest = v
		}
	}
	return first, lowest, last, true
}

func stressTotal(positions map[string]StressPosition) float64 {
	var total float64
	for _, p := range positions {
		total += p.Value
	}
	return total
}

// worseOf 返回损失更小 (更负) 的场景；相等时保留先到者。
func worseOf(current, candidate *ScenarioResult) *ScenarioResult {
	if candidate.Loss >= 0 {
		return current
	}
	if current == nil || candidate.Loss < current.Loss {
		return candidate
	}
	return current
}
