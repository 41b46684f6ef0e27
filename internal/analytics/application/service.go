package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wyfcoding/portfolioanalytics/internal/analytics/domain"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConfidence = 0.95
	defaultHorizon    = 1
)

// RiskMetricsReport 组合风险综合报告
type RiskMetricsReport struct {
	PortfolioID    string                    `json:"portfolio_id"`
	PortfolioValue float64                   `json:"portfolio_value"`
	VaR95          *domain.RiskResult        `json:"var_95"`
	VaR99          *domain.RiskResult        `json:"var_99"`
	MarginalVaR    []domain.MarginalVaRItem  `json:"marginal_var"`
	ComponentVaR   []domain.ComponentVaRItem `json:"component_var"`
	Concentration  domain.ConcentrationRisk  `json:"concentration"`
	GeneratedAt    time.Time                 `json:"generated_at"`
}

// AnalyticsService 风险分析应用服务。
// 持仓与流水来自只读仓储，实时价格与历史序列来自行情边界，
// 领域引擎只消费已解析好的数值输入。
type AnalyticsService struct {
	holdings  domain.HoldingRepository
	ledger    domain.LedgerRepository
	market    domain.MarketData
	varEngine *domain.VaREngine
	stress    *domain.StressTestEngine
	perf      *domain.PerformanceCalculator
	publisher domain.EventPublisher
	logger    *slog.Logger
}

// NewAnalyticsService 创建风险分析服务。
func NewAnalyticsService(
	holdings domain.HoldingRepository,
	ledger domain.LedgerRepository,
	market domain.MarketData,
	varEngine *domain.VaREngine,
	stress *domain.StressTestEngine,
	perf *domain.PerformanceCalculator,
	publisher domain.EventPublisher,
	logger *slog.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		holdings:  holdings,
		ledger:    ledger,
		market:    market,
		varEngine: varEngine,
		stress:    stress,
		perf:      perf,
		publisher: publisher,
		logger:    logger,
	}
}

// resolvedPortfolio 请求时点解析完成的组合快照
type resolvedPortfolio struct {
	snapshots []domain.PositionSnapshot
	values    map[string]float64
	stress    map[string]domain.StressPosition
}

// resolvePortfolio 加载持仓并并发解析实时价格 (fork-join, 不消费部分结果)。
func (s *AnalyticsService) resolvePortfolio(ctx context.Context, portfolioID string) (*resolvedPortfolio, error) {
	holdings, err := s.holdings.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("list holdings for %s: %w", portfolioID, err)
	}
	if len(holdings) == 0 {
		return nil, domain.ErrEmptyPortfolio
	}

	resolved := &resolvedPortfolio{
		snapshots: make([]domain.PositionSnapshot, len(holdings)),
		values:    make(map[string]float64, len(holdings)),
		stress:    make(map[string]domain.StressPosition, len(holdings)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range holdings {
		g.Go(func() error {
			price, err := s.market.CurrentPrice(gctx, h.Symbol)
			if err != nil {
				return fmt.Errorf("resolve price for %s: %w", h.Symbol, err)
			}
			value := h.Quantity.Mul(price).InexactFloat64()

			mu.Lock()
			resolved.snapshots[i] = domain.PositionSnapshot{
				Symbol:      h.Symbol,
				Quantity:    h.Quantity,
				MarketValue: value,
				Sector:      h.Sector,
			}
			resolved.values[h.Symbol] = value
			resolved.stress[h.Symbol] = domain.StressPosition{Value: value, Sector: h.Sector}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// ComputeVaR 计算组合 VaR/CVaR 并发布风险报告事件。
func (s *AnalyticsService) ComputeVaR(ctx context.Context, req VaRRequest) (*domain.RiskResult, error) {
	method, params, err := normalizeVaRInput(req)
	if err != nil {
		return nil, err
	}

	portfolio, err := s.resolvePortfolio(ctx, req.PortfolioID)
	if err != nil {
		return nil, err
	}

	result, err := s.varEngine.ComputeVaRCVaR(ctx, portfolio.values, method, params)
	if err != nil {
		return nil, err
	}

	event := domain.RiskReportGeneratedEvent{
		PortfolioID: req.PortfolioID,
		Method:      string(result.Method),
		Confidence:  result.ConfidenceLevel,
		HorizonDays: result.TimeHorizonDays,
		VaRAmount:   result.VaR.Amount.InexactFloat64(),
		CVaRAmount:  result.CVaR.Amount.InexactFloat64(),
		OccurredOn:  result.CalculatedAt,
	}
	if err := s.publisher.PublishRiskReportGenerated(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish risk report event", "portfolio_id", req.PortfolioID, "error", err)
	}
	return result, nil
}

// MarginalVaR 各持仓的边际 VaR。
func (s *AnalyticsService) MarginalVaR(ctx context.Context, req VaRRequest) ([]domain.MarginalVaRItem, error) {
	method, params, err := normalizeVaRInput(req)
	if err != nil {
		return nil, err
	}
	portfolio, err := s.resolvePortfolio(ctx, req.PortfolioID)
	if err != nil {
		return nil, err
	}
	return s.varEngine.MarginalVaR(ctx, portfolio.values, method, params)
}

// ComponentVaR 各持仓的成分 VaR。
func (s *AnalyticsService) ComponentVaR(ctx context.Context, req VaRRequest) ([]domain.ComponentVaRItem, error) {
	method, params, err := normalizeVaRInput(req)
	if err != nil {
		return nil, err
	}
	portfolio, err := s.resolvePortfolio(ctx, req.PortfolioID)
	if err != nil {
		return nil, err
	}
	return s.varEngine.ComponentVaR(ctx, portfolio.values, method, params)
}

// RunStressTest 执行压力测试并发布完成事件。
func (s *AnalyticsService) RunStressTest(ctx context.Context, req StressTestRequest) (*domain.StressReport, error) {
	portfolio, err := s.resolvePortfolio(ctx, req.PortfolioID)
	if err != nil {
		return nil, err
	}

	var custom *domain.Scenario
	if req.Custom != nil {
		custom = &domain.Scenario{
			Name:                 req.Custom.Name,
			MarketShock:          req.Custom.MarketShock,
			VolatilityMultiplier: req.Custom.VolatilityMultiplier,
			SectorShocks:         req.Custom.SectorShocks,
			CorrelationIncrease:  req.Custom.CorrelationIncrease,
		}
	}

	report := s.stress.RunStressTest(portfolio.stress, req.Scenarios, custom)

	event := domain.StressTestCompletedEvent{
		PortfolioID:    req.PortfolioID,
		ScenarioCount:  len(report.Scenarios),
		PortfolioValue: report.PortfolioValue,
		OccurredOn:     report.TestedAt,
	}
	if report.WorstCase != nil {
		event.WorstScenario = report.WorstCase.ScenarioKey
		event.WorstLoss = report.WorstCase.Loss
	}
	if err := s.publisher.PublishStressTestCompleted(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish stress test event", "portfolio_id", req.PortfolioID, "error", err)
	}
	return report, nil
}

// HistoricalStressTest 按指定历史时段的真实行情回放当前持仓。
func (s *AnalyticsService) HistoricalStressTest(ctx context.Context, req HistoricalStressRequest) (*domain.HistoricalStressReport, error) {
	portfolio, err := s.resolvePortfolio(ctx, req.PortfolioID)
	if err != nil {
		return nil, err
	}
	return s.stress.HistoricalStressTest(ctx, portfolio.stress, req.Period)
}

// Scenarios 内置压力场景目录。
func (s *AnalyticsService) Scenarios() []*domain.Scenario {
	return s.stress.Scenarios()
}

// SensitivityAnalysis 单因子敏感度扫描。
func (s *AnalyticsService) SensitivityAnalysis(ctx context.Context, req SensitivityRequest) (map[string][]domain.SensitivityPoint, error) {
	portfolio, err := s.resolvePortfolio(ctx, req.PortfolioID)
	if err != nil {
		return nil, err
	}
	return s.stress.SensitivityAnalysis(portfolio.stress, req.FactorRanges), nil
}

// ExpectedShortfall 随机场景蒙特卡洛 ES 估计。
func (s *AnalyticsService) ExpectedShortfall(ctx context.Context, req ShortfallRequest) (*domain.ShortfallResult, error) {
	if req.Simulations == 0 {
		req.Simulations = domain.DefaultSimulations
	}
	if req.ConfidenceLevel == 0 {
		req.ConfidenceLevel = defaultConfidence
	}

	portfolio, err := s.resolvePortfolio(ctx, req.PortfolioID)
	if err != nil {
		return nil, err
	}
	return s.stress.CalculateExpectedShortfall(portfolio.stress, req.Simulations, req.ConfidenceLevel)
}

// Performance 基于交易流水重建组合历史绩效。
func (s *AnalyticsService) Performance(ctx context.Context, req PerformanceRequest) (*domain.PerformanceResult, error) {
	entries, err := s.ledger.ListByPortfolio(ctx, req.PortfolioID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", req.PortfolioID, err)
	}

	period := domain.Period(req.Period)
	if req.Period == "" {
		period = domain.Period1M
	}
	return s.perf.ReconstructPerformance(ctx, toTransactions(entries), req.InitialCash, period)
}

// RealizedPnL 移动平均成本法已实现盈亏。
func (s *AnalyticsService) RealizedPnL(ctx context.Context, portfolioID string) (*domain.RealizedPnLReport, error) {
	entries, err := s.ledger.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", portfolioID, err)
	}
	return s.perf.RealizedPnL(toTransactions(entries)), nil
}

// RiskMetricsReport 组合风险综合报告: 95%/99% VaR、边际/成分 VaR 与集中度。
func (s *AnalyticsService) RiskMetricsReport(ctx context.Context, portfolioID string) (*RiskMetricsReport, error) {
	portfolio, err := s.resolvePortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	params95 := domain.VaRParams{ConfidenceLevel: 0.95, TimeHorizonDays: defaultHorizon}
	params99 := domain.VaRParams{ConfidenceLevel: 0.99, TimeHorizonDays: defaultHorizon}

	var95, err := s.varEngine.ComputeVaRCVaR(ctx, portfolio.values, domain.MethodHistorical, params95)
	if err != nil {
		return nil, err
	}
	var99, err := s.varEngine.ComputeVaRCVaR(ctx, portfolio.values, domain.MethodHistorical, params99)
	if err != nil {
		return nil, err
	}
	marginal, err := s.varEngine.MarginalVaR(ctx, portfolio.values, domain.MethodParametric, params95)
	if err != nil {
		return nil, err
	}
	component, err := s.varEngine.ComponentVaR(ctx, portfolio.values, domain.MethodParametric, params95)
	if err != nil {
		return nil, err
	}

	totalValue := domain.PortfolioValue(portfolio.values)
	return &RiskMetricsReport{
		PortfolioID:    portfolioID,
		PortfolioValue: totalValue,
		VaR95:          var95,
		VaR99:          var99,
		MarginalVaR:    marginal,
		ComponentVaR:   component,
		Concentration:  domain.Concentration(portfolio.values, totalValue),
		GeneratedAt:    var99.CalculatedAt,
	}, nil
}

func normalizeVaRInput(req VaRRequest) (domain.Method, domain.VaRParams, error) {
	if req.Method == "" {
		req.Method = string(domain.MethodHistorical)
	}
	method, err := domain.ParseMethod(req.Method)
	if err != nil {
		return "", domain.VaRParams{}, err
	}
	if req.ConfidenceLevel == 0 {
		req.ConfidenceLevel = defaultConfidence
	}
	if req.TimeHorizonDays == 0 {
		req.TimeHorizonDays = defaultHorizon
	}
	return method, domain.VaRParams{
		ConfidenceLevel: req.ConfidenceLevel,
		TimeHorizonDays: req.TimeHorizonDays,
		LookbackDays:    req.LookbackDays,
		Simulations:     req.Simulations,
	}, nil
}

func toTransactions(entries []domain.LedgerEntry) []domain.Transaction {
	out := make([]domain.Transaction, len(entries))
	for i := range entries {
		out[i] = entries[i].Transaction()
	}
	return out
}
