package application

// VaRRequest VaR/CVaR 计算请求
type VaRRequest struct {
	PortfolioID     string  `json:"portfolio_id" binding:"required"`
	Method          string  `json:"method"`           // historical | parametric | monte_carlo, 默认 historical
	ConfidenceLevel float64 `json:"confidence_level"` // 默认 0.95
	TimeHorizonDays int     `json:"time_horizon_days"`
	LookbackDays    int     `json:"lookback_days"`
	Simulations     int     `json:"simulations"` // 仅蒙特卡洛
}

// ScenarioInput 自定义压力场景
type ScenarioInput struct {
	Name                 string             `json:"name"`
	MarketShock          float64            `json:"market_shock"`
	VolatilityMultiplier float64            `json:"volatility_multiplier"`
	SectorShocks         map[string]float64 `json:"sector_shocks"`
	CorrelationIncrease  float64            `json:"correlation_increase"`
}

// StressTestRequest 压力测试请求，Scenarios 为空时执行全部内置场景。
type StressTestRequest struct {
	PortfolioID string         `json:"portfolio_id" binding:"required"`
	Scenarios   []string       `json:"scenarios"`
	Custom      *ScenarioInput `json:"custom_scenario"`
}

// HistoricalStressRequest 历史时段回放请求，时段形如 "2008-09-01:2009-03-31"。
type HistoricalStressRequest struct {
	PortfolioID string `json:"portfolio_id" binding:"required"`
	Period      string `json:"period" binding:"required"`
}

// SensitivityRequest 敏感度分析请求
type SensitivityRequest struct {
	PortfolioID  string               `json:"portfolio_id" binding:"required"`
	FactorRanges map[string][]float64 `json:"factor_ranges"`
}

// ShortfallRequest Expected Shortfall 请求
type ShortfallRequest struct {
	PortfolioID     string  `json:"portfolio_id" binding:"required"`
	Simulations     int     `json:"simulations"`      // 默认 10000
	ConfidenceLevel float64 `json:"confidence_level"` // 默认 0.95
}

// PerformanceRequest 绩效重建请求
type PerformanceRequest struct {
	PortfolioID string  `json:"portfolio_id" binding:"required"`
	Period      string  `json:"period"`       // 1D/1W/1M/3M/6M/1Y/YTD, 默认 1M
	InitialCash float64 `json:"initial_cash"` // 期初现金
}
