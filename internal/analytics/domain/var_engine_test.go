package domain

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

type stubProvider struct {
	series map[string]ReturnSeries
	errs   map[string]error
}

func (p *stubProvider) ReturnSeries(_ context.Context, symbol string, _ int) (ReturnSeries, error) {
	if err, ok := p.errs[symbol]; ok {
		return nil, err
	}
	return p.series[symbol], nil
}

func seriesFrom(returns []float64) ReturnSeries {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(ReturnSeries, len(returns))
	for i, r := range returns {
		s[i] = ReturnPoint{Date: base.AddDate(0, 0, i), Value: r}
	}
	return s
}

func syntheticReturns(n int, drift, vol float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	for i := range out {
		out[i] = drift + vol*rng.NormFloat64()
	}
	return out
}

func newTestEngine(provider ReturnsProvider) *VaREngine {
	return NewVaREngine(provider, rand.New(rand.NewPCG(7, 11)))
}

func twoAssetFixture() (map[string]float64, *stubProvider) {
	values := map[string]float64{"AAPL": 60000, "MSFT": 40000}
	provider := &stubProvider{series: map[string]ReturnSeries{
		"AAPL": seriesFrom(syntheticReturns(252, 0.0004, 0.02, 1)),
		"MSFT": seriesFrom(syntheticReturns(252, 0.0002, 0.015, 2)),
	}}
	return values, provider
}

func TestComputeVaRCVaR_CVaRNotLessThanVaR(t *testing.T) {
	values, provider := twoAssetFixture()
	engine := newTestEngine(provider)
	params := VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1}

	for _, method := range []Method{MethodHistorical, MethodParametric, MethodMonteCarlo} {
		result, err := engine.ComputeVaRCVaR(context.Background(), values, method, params)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", method, err)
		}
		varAmt := result.VaR.Amount.InexactFloat64()
		cvarAmt := result.CVaR.Amount.InexactFloat64()
		if varAmt <= 0 {
			t.Errorf("%s: VaR amount = %v, want > 0", method, varAmt)
		}
		if cvarAmt < varAmt {
			t.Errorf("%s: CVaR %v < VaR %v", method, cvarAmt, varAmt)
		}
		if result.VaR.Percent >= 0 {
			t.Errorf("%s: VaR percent = %v, want < 0", method, result.VaR.Percent)
		}
	}
}

func TestComputeVaRCVaR_ConfidenceMonotonic(t *testing.T) {
	values, provider := twoAssetFixture()
	engine := newTestEngine(provider)

	for _, method := range []Method{MethodHistorical, MethodParametric} {
		low, err := engine.ComputeVaRCVaR(context.Background(), values, method, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1})
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		high, err := engine.ComputeVaRCVaR(context.Background(), values, method, VaRParams{ConfidenceLevel: 0.99, TimeHorizonDays: 1})
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		if high.VaR.Amount.LessThan(low.VaR.Amount) {
			t.Errorf("%s: 99%% VaR %v < 95%% VaR %v", method, high.VaR.Amount, low.VaR.Amount)
		}
	}
}

func TestComputeVaRCVaR_HorizonScaling(t *testing.T) {
	values, provider := twoAssetFixture()
	engine := newTestEngine(provider)

	oneDay, err := engine.ComputeVaRCVaR(context.Background(), values, MethodHistorical, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1})
	if err != nil {
		t.Fatal(err)
	}
	tenDay, err := engine.ComputeVaRCVaR(context.Background(), values, MethodHistorical, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 10})
	if err != nil {
		t.Fatal(err)
	}

	want := oneDay.VaR.Amount.InexactFloat64() * math.Sqrt(10)
	got := tenDay.VaR.Amount.InexactFloat64()
	if math.Abs(got-want) > 1e-6*math.Abs(want) {
		t.Errorf("10 日 VaR = %v, want %v (√10 缩放)", got, want)
	}
}

func TestMonteCarloConvergesToParametric(t *testing.T) {
	values, provider := twoAssetFixture()
	engine := newTestEngine(provider)
	params := VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1, Simulations: 50000}

	parametric, err := engine.ComputeVaRCVaR(context.Background(), values, MethodParametric, params)
	if err != nil {
		t.Fatal(err)
	}
	mc, err := engine.ComputeVaRCVaR(context.Background(), values, MethodMonteCarlo, params)
	if err != nil {
		t.Fatal(err)
	}

	p := parametric.VaR.Amount.InexactFloat64()
	m := mc.VaR.Amount.InexactFloat64()
	if relDiff := math.Abs(m-p) / p; relDiff > 0.05 {
		t.Errorf("蒙特卡洛 VaR %v 与参数法 VaR %v 相对偏差 %.3f > 5%%", m, p, relDiff)
	}
}

func TestMonteCarloDeterministicWithSeed(t *testing.T) {
	values, provider := twoAssetFixture()
	params := VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1, Simulations: 2000}

	first, err := NewVaREngine(provider, rand.New(rand.NewPCG(42, 43))).ComputeVaRCVaR(context.Background(), values, MethodMonteCarlo, params)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewVaREngine(provider, rand.New(rand.NewPCG(42, 43))).ComputeVaRCVaR(context.Background(), values, MethodMonteCarlo, params)
	if err != nil {
		t.Fatal(err)
	}
	if !first.VaR.Amount.Equal(second.VaR.Amount) {
		t.Errorf("相同种子结果不一致: %v vs %v", first.VaR.Amount, second.VaR.Amount)
	}
}

func TestComponentVaRSumsToTotal(t *testing.T) {
	values, provider := twoAssetFixture()
	engine := newTestEngine(provider)
	params := VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1}

	base, err := engine.ComputeVaRCVaR(context.Background(), values, MethodParametric, params)
	if err != nil {
		t.Fatal(err)
	}
	components, err := engine.ComponentVaR(context.Background(), values, MethodParametric, params)
	if err != nil {
		t.Fatal(err)
	}

	var sum, pctSum float64
	for _, c := range components {
		sum += c.Value
		pctSum += c.Percent
	}

	total := base.VaR.Amount.InexactFloat64()
	if relDiff := math.Abs(sum-total) / total; relDiff > 0.02 {
		t.Errorf("成分 VaR 合计 %v 与总 VaR %v 相对偏差 %.3f > 2%%", sum, total, relDiff)
	}
	if math.Abs(pctSum-100) > 1e-9 {
		t.Errorf("成分占比合计 = %v, want 100", pctSum)
	}
}

func TestMarginalVaR_SharedSeries(t *testing.T) {
	values, provider := twoAssetFixture()
	engine := newTestEngine(provider)

	items, err := engine.MarginalVaR(context.Background(), values, MethodParametric, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	// sortedKeys 保证输出按标的字典序
	if items[0].Symbol != "AAPL" || items[1].Symbol != "MSFT" {
		t.Errorf("顺序错误: %v, %v", items[0].Symbol, items[1].Symbol)
	}
	for _, item := range items {
		if item.MarginalVaR <= 0 {
			t.Errorf("%s: marginal VaR = %v, want > 0", item.Symbol, item.MarginalVaR)
		}
	}
}

func TestComputeVaRCVaR_InsufficientData(t *testing.T) {
	provider := &stubProvider{series: map[string]ReturnSeries{
		"AAPL": seriesFrom([]float64{0.01}),
	}}
	engine := newTestEngine(provider)

	result, err := engine.ComputeVaRCVaR(context.Background(), map[string]float64{"AAPL": 10000}, MethodHistorical, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.VaR.Amount.IsZero() || !result.CVaR.Amount.IsZero() {
		t.Errorf("观测不足应返回零结果, got VaR=%v CVaR=%v", result.VaR.Amount, result.CVaR.Amount)
	}
	if result.DataPoints >= 2 {
		t.Errorf("DataPoints = %d, want < 2", result.DataPoints)
	}
}

func TestComputeVaRCVaR_SkipsUnavailableSymbol(t *testing.T) {
	provider := &stubProvider{
		series: map[string]ReturnSeries{
			"AAPL": seriesFrom(syntheticReturns(252, 0, 0.02, 3)),
		},
		errs: map[string]error{"NEWIPO": ErrHistoryUnavailable},
	}
	engine := newTestEngine(provider)
	values := map[string]float64{"AAPL": 60000, "NEWIPO": 40000}

	result, err := engine.ComputeVaRCVaR(context.Background(), values, MethodHistorical, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DataPoints == 0 {
		t.Error("缺数据标的应被排除而非导致整体失败")
	}
	// 组合市值仍按全部持仓计
	if got := result.PortfolioValue.InexactFloat64(); got != 100000 {
		t.Errorf("PortfolioValue = %v, want 100000", got)
	}
}

func TestComputeVaRCVaR_ProviderErrorPropagates(t *testing.T) {
	sentinel := errors.New("upstream down")
	provider := &stubProvider{errs: map[string]error{"AAPL": sentinel}}
	engine := newTestEngine(provider)

	_, err := engine.ComputeVaRCVaR(context.Background(), map[string]float64{"AAPL": 10000}, MethodHistorical, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want wrapped %v", err, sentinel)
	}
}

func TestComputeVaRCVaR_Validation(t *testing.T) {
	values, provider := twoAssetFixture()
	engine := newTestEngine(provider)

	tests := []struct {
		name   string
		values map[string]float64
		method Method
		params VaRParams
		want   error
	}{
		{"置信度过低", values, MethodHistorical, VaRParams{ConfidenceLevel: 0.80, TimeHorizonDays: 1}, ErrInvalidConfidence},
		{"置信度过高", values, MethodHistorical, VaRParams{ConfidenceLevel: 0.999, TimeHorizonDays: 1}, ErrInvalidConfidence},
		{"跨度为零", values, MethodHistorical, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 0}, ErrInvalidHorizon},
		{"回看为负", values, MethodHistorical, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1, LookbackDays: -1}, ErrInvalidLookback},
		{"模拟次数为负", values, MethodMonteCarlo, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1, Simulations: -1}, ErrInvalidSimulations},
		{"未知方法", values, Method("cvar"), VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1}, ErrInvalidMethod},
		{"空组合", map[string]float64{}, MethodHistorical, VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: 1}, ErrEmptyPortfolio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.ComputeVaRCVaR(context.Background(), tt.values, tt.method, tt.params)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	for _, s := range []string{"historical", "parametric", "monte_carlo"} {
		if _, err := ParseMethod(s); err != nil {
			t.Errorf("ParseMethod(%q) error: %v", s, err)
		}
	}
	if _, err := ParseMethod("garch"); !errors.Is(err, ErrInvalidMethod) {
		t.Errorf("err = %v, want ErrInvalidMethod", err)
	}
}
