package domain

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestStressEngine(seed uint64) *StressTestEngine {
	// 场景压力测试不触达行情
	return NewStressTestEngine(nil, rand.New(rand.NewPCG(seed, seed+1)))
}

func stressFixture() map[string]StressPosition {
	return map[string]StressPosition{
		"AAPL": {Value: 50000, Sector: "technology"},
		"JPM":  {Value: 30000, Sector: "financials"},
		"XOM":  {Value: 20000, Sector: "energy"},
	}
}

func TestScenariosCatalogOrder(t *testing.T) {
	engine := newTestStressEngine(1)
	scenarios := engine.Scenarios()
	if len(scenarios) != 5 {
		t.Fatalf("len(scenarios) = %d, want 5", len(scenarios))
	}
	wantOrder := []string{"2008_financial_crisis", "covid_19_crash", "tech_bubble_burst", "interest_rate_shock", "inflation_surge"}
	for i, want := range wantOrder {
		if scenarios[i].Key != want {
			t.Errorf("scenarios[%d].Key = %q, want %q", i, scenarios[i].Key, want)
		}
	}
}

func TestApplyScenario_ZeroScenarioZeroLoss(t *testing.T) {
	engine := newTestStressEngine(1)
	result := engine.ApplyScenario(stressFixture(), &Scenario{Name: "noop"})

	if result.Loss != 0 {
		t.Errorf("Loss = %v, want exactly 0", result.Loss)
	}
	if result.StressedValue != result.InitialValue {
		t.Errorf("StressedValue = %v, want %v", result.StressedValue, result.InitialValue)
	}
}

func TestApplyScenario_SectorOverride(t *testing.T) {
	engine := newTestStressEngine(1)
	// 乘数为零, 无随机扰动, 冲击可精确断言
	scenario := &Scenario{
		Name:         "sector test",
		MarketShock:  -0.10,
		SectorShocks: map[string]float64{"technology": -0.50},
	}
	result := engine.ApplyScenario(stressFixture(), scenario)

	if got := result.PositionImpacts["AAPL"].ChangePercentage; got != -50 {
		t.Errorf("AAPL change = %v%%, want -50%% (行业覆盖)", got)
	}
	if got := result.PositionImpacts["JPM"].ChangePercentage; got != -10 {
		t.Errorf("JPM change = %v%%, want -10%% (基础冲击)", got)
	}

	want := 50000*0.5 + 30000*0.9 + 20000*0.9
	if math.Abs(result.StressedValue-want) > 1e-6 {
		t.Errorf("StressedValue = %v, want %v", result.StressedValue, want)
	}
}

func TestRunStressTest_AllScenariosAndWorstCase(t *testing.T) {
	engine := newTestStressEngine(9)
	report := engine.RunStressTest(stressFixture(), nil, nil)

	if len(report.Scenarios) != 5 {
		t.Fatalf("len(Scenarios) = %d, want 5", len(report.Scenarios))
	}
	if report.PortfolioValue != 100000 {
		t.Errorf("PortfolioValue = %v, want 100000", report.PortfolioValue)
	}
	if report.WorstCase == nil {
		t.Fatal("WorstCase = nil")
	}

	minLoss := math.Inf(1)
	for _, r := range report.Scenarios {
		if r.Loss < minLoss {
			minLoss = r.Loss
		}
	}
	if report.WorstCase.Loss != minLoss {
		t.Errorf("WorstCase.Loss = %v, want %v (最小损失)", report.WorstCase.Loss, minLoss)
	}
}

func TestRunStressTest_SubsetAndCustom(t *testing.T) {
	engine := newTestStressEngine(3)
	custom := &Scenario{MarketShock: -0.05}
	report := engine.RunStressTest(stressFixture(), []string{"covid_19_crash"}, custom)

	if len(report.Scenarios) != 2 {
		t.Fatalf("len(Scenarios) = %d, want 2", len(report.Scenarios))
	}
	if _, ok := report.Scenarios["covid_19_crash"]; !ok {
		t.Error("缺少所选场景 covid_19_crash")
	}
	customResult, ok := report.Scenarios["custom"]
	if !ok {
		t.Fatal("缺少 custom 场景")
	}
	if customResult.Name != "Custom Scenario" {
		t.Errorf("custom name = %q, want 默认名", customResult.Name)
	}
	if customResult.ScenarioKey != "custom" {
		t.Errorf("ScenarioKey = %q, want custom", customResult.ScenarioKey)
	}
}

func TestRunStressTest_DeterministicWithSeed(t *testing.T) {
	first := newTestStressEngine(42).RunStressTest(stressFixture(), nil, nil)
	second := newTestStressEngine(42).RunStressTest(stressFixture(), nil, nil)

	for key, r := range first.Scenarios {
		if other := second.Scenarios[key]; other == nil || other.Loss != r.Loss {
			t.Errorf("%s: 相同种子损失不一致", key)
		}
	}
}

func TestSensitivityAnalysis(t *testing.T) {
	engine := newTestStressEngine(5)
	results := engine.SensitivityAnalysis(stressFixture(), map[string][]float64{
		"market_change": {-0.5, 0, 0.5},
		"unknown_risk":  {1, 2, 3},
	})

	if _, ok := results["unknown_risk"]; ok {
		t.Error("未知因子应被跳过")
	}
	if got := len(results["market_change"]); got != 3 {
		t.Errorf("market_change 采样点 = %d, want 3 (入参覆盖默认范围)", got)
	}
	if got := len(results["volatility_multiplier"]); got != 6 {
		t.Errorf("volatility_multiplier 采样点 = %d, want 6 (默认范围)", got)
	}

	// market_change 无波动乘数, 采样点可精确断言
	points := results["market_change"]
	if points[0].FactorValue != -0.5 || math.Abs(points[0].Loss-(-50000)) > 1e-6 {
		t.Errorf("point[0] = %+v, want loss -50000 at -0.5", points[0])
	}
	if points[1].Loss != 0 {
		t.Errorf("零冲击采样点损失 = %v, want 0", points[1].Loss)
	}
}

func TestCalculateExpectedShortfall(t *testing.T) {
	engine := newTestStressEngine(17)
	result, err := engine.CalculateExpectedShortfall(stressFixture(), 5000, 0.95)
	if err != nil {
		t.Fatal(err)
	}

	if result.ExpectedShortfall < result.VaR {
		t.Errorf("ES %v < VaR %v", result.ExpectedShortfall, result.VaR)
	}
	if result.TailObservations <= 0 {
		t.Errorf("TailObservations = %d, want > 0", result.TailObservations)
	}
	if result.Simulations != 5000 {
		t.Errorf("Simulations = %d, want 5000", result.Simulations)
	}
	if result.VaRPercentage != result.VaR/result.PortfolioValue*100 {
		t.Errorf("VaRPercentage 与 VaR/市值 不一致")
	}

	// 相同种子可复现
	again, err := newTestStressEngine(17).CalculateExpectedShortfall(stressFixture(), 5000, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if again.ExpectedShortfall != result.ExpectedShortfall {
		t.Errorf("相同种子 ES 不一致: %v vs %v", again.ExpectedShortfall, result.ExpectedShortfall)
	}
}

func TestCalculateExpectedShortfall_Validation(t *testing.T) {
	engine := newTestStressEngine(1)

	if _, err := engine.CalculateExpectedShortfall(stressFixture(), 0, 0.95); !errors.Is(err, ErrInvalidSimulations) {
		t.Errorf("err = %v, want ErrInvalidSimulations", err)
	}
	if _, err := engine.CalculateExpectedShortfall(stressFixture(), 1000, 0.5); !errors.Is(err, ErrInvalidConfidence) {
		t.Errorf("err = %v, want ErrInvalidConfidence", err)
	}
}

func newHistoricalStressEngine(market MarketData, now time.Time) *StressTestEngine {
	e := NewStressTestEngine(market, rand.New(rand.NewPCG(1, 2)))
	e.now = func() time.Time { return now }
	return e
}

type failingMarket struct{ err error }

func (m *failingMarket) CurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, m.err
}

func (m *failingMarket) HistoricalCandles(context.Context, string, int) ([]Candle, error) {
	return nil, m.err
}

func TestHistoricalStressTest_PeriodReplay(t *testing.T) {
	market := &fakeMarket{candles: map[string][]Candle{
		"AAPL": dailyCandles(day(0), []float64{95, 96, 97, 98, 100, 80, 85, 88, 90, 120, 130}),
		"LATE": dailyCandles(day(9), []float64{50, 51}),
	}}
	engine := newHistoricalStressEngine(market, day(10))

	positions := map[string]StressPosition{
		"AAPL":    {Value: 1000},
		"LATE":    {Value: 250}, // 时段内无数据
		"MISSING": {Value: 500}, // 无历史数据
	}

	report, err := engine.HistoricalStressTest(context.Background(), positions, "2026-01-05:2026-01-09")
	if err != nil {
		t.Fatalf("HistoricalStressTest() error = %v", err)
	}

	if report.InitialValue != 1750 {
		t.Errorf("InitialValue = %v, want 1750 (含无数据标的)", report.InitialValue)
	}

	// 时段内首日收盘 100, 最低 80, 末日 90
	aapl, ok := report.PositionResults["AAPL"]
	if !ok {
		t.Fatal("PositionResults 缺少 AAPL")
	}
	if math.Abs(aapl.PeriodReturn+10) > 1e-9 {
		t.Errorf("PeriodReturn = %v%%, want -10%%", aapl.PeriodReturn)
	}
	if math.Abs(aapl.MaxDrawdown+20) > 1e-9 {
		t.Errorf("MaxDrawdown = %v%%, want -20%%", aapl.MaxDrawdown)
	}
	if math.Abs(aapl.StressedValue-900) > 1e-9 {
		t.Errorf("StressedValue = %v, want 900", aapl.StressedValue)
	}
	if math.Abs(aapl.WorstValue-800) > 1e-9 {
		t.Errorf("WorstValue = %v, want 800", aapl.WorstValue)
	}

	if _, ok := report.PositionResults["MISSING"]; ok {
		t.Error("无历史数据的标的不应出现在结果中")
	}
	if _, ok := report.PositionResults["LATE"]; ok {
		t.Error("时段内无数据的标的不应出现在结果中")
	}

	if math.Abs(report.StressedValue-900) > 1e-9 {
		t.Errorf("StressedValue = %v, want 900", report.StressedValue)
	}
	if math.Abs(report.TotalLoss+850) > 1e-9 {
		t.Errorf("TotalLoss = %v, want -850", report.TotalLoss)
	}
	wantPct := -850.0 / 1750 * 100
	if math.Abs(report.LossPercentage-wantPct) > 1e-9 {
		t.Errorf("LossPercentage = %v, want %v", report.LossPercentage, wantPct)
	}
}

func TestHistoricalStressTest_InvalidPeriod(t *testing.T) {
	engine := newHistoricalStressEngine(&fakeMarket{}, day(10))
	positions := map[string]StressPosition{"AAPL": {Value: 1000}}

	for _, period := range []string{"", "2020-01-01", "bad:worse", "2020-03-01:2020-01-01", "2020-01-01:2020-02-30"} {
		if _, err := engine.HistoricalStressTest(context.Background(), positions, period); !errors.Is(err, ErrInvalidPeriodRange) {
			t.Errorf("period %q: err = %v, want ErrInvalidPeriodRange", period, err)
		}
	}
}

func TestHistoricalStressTest_EmptyPortfolio(t *testing.T) {
	engine := newHistoricalStressEngine(&fakeMarket{}, day(10))
	_, err := engine.HistoricalStressTest(context.Background(), nil, "2026-01-01:2026-01-05")
	if !errors.Is(err, ErrEmptyPortfolio) {
		t.Errorf("err = %v, want ErrEmptyPortfolio", err)
	}
}

func TestHistoricalStressTest_MarketErrorPropagates(t *testing.T) {
	boom := errors.New("marketdata down")
	engine := newHistoricalStressEngine(&failingMarket{err: boom}, day(10))

	_, err := engine.HistoricalStressTest(context.Background(), map[string]StressPosition{"AAPL": {Value: 1000}}, "2026-01-01:2026-01-05")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want 包装后的行情错误", err)
	}
}
