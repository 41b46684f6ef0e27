package domain

import (
	"context"
	"time"
)

// RiskReportGeneratedEvent 风险报告生成事件
type RiskReportGeneratedEvent struct {
	PortfolioID string    `json:"portfolio_id"`
	Method      string    `json:"method"`
	Confidence  float64   `json:"confidence"`
	HorizonDays int       `json:"horizon_days"`
	VaRAmount   float64   `json:"var_amount"`
	CVaRAmount  float64   `json:"cvar_amount"`
	OccurredOn  time.Time `json:"occurred_on"`
}

// StressTestCompletedEvent 压力测试完成事件
type StressTestCompletedEvent struct {
	PortfolioID    string    `json:"portfolio_id"`
	ScenarioCount  int       `json:"scenario_count"`
	WorstScenario  string    `json:"worst_scenario"`
	WorstLoss      float64   `json:"worst_loss"`
	PortfolioValue float64   `json:"portfolio_value"`
	OccurredOn     time.Time `json:"occurred_on"`
}

// EventPublisher 事件发布者接口，发布失败不阻断分析结果返回。
type EventPublisher interface {
	// PublishRiskReportGenerated 发布风险报告生成事件
	PublishRiskReportGenerated(ctx context.Context, event RiskReportGeneratedEvent) error

	// PublishStressTestCompleted 发布压力测试完成事件
	PublishStressTestCompleted(ctx context.Context, event StressTestCompletedEvent) error
}
