// Package http 风险分析服务的 HTTP 接入层。
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"
	"github.com/wyfcoding/portfolioanalytics/internal/analytics/application"
)

// AnalyticsHandler 负责处理风险分析相关的 HTTP 请求
type AnalyticsHandler struct {
	app *application.AnalyticsService
}

// NewAnalyticsHandler 创建 HTTP 处理器实例。
func NewAnalyticsHandler(app *application.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{app: app}
}

// RegisterRoutes 将处理器方法绑定到 Gin 路由引擎。
func (h *AnalyticsHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/analytics")
	{
		api.POST("/var", h.ComputeVaR)
		api.POST("/var/marginal", h.MarginalVaR)
		api.POST("/var/component", h.ComponentVaR)
		api.POST("/stress-test", h.RunStressTest)
		api.POST("/stress-test/historical", h.HistoricalStressTest)
		api.GET("/scenarios", h.ListScenarios)
		api.POST("/sensitivity", h.SensitivityAnalysis)
		api.POST("/expected-shortfall", h.ExpectedShortfall)
		api.GET("/portfolios/:id/risk-metrics", h.RiskMetrics)
		api.GET("/portfolios/:id/performance", h.Performance)
		api.GET("/portfolios/:id/realized-pnl", h.RealizedPnL)
	}
}

// ComputeVaR 计算组合 VaR/CVaR
func (h *AnalyticsHandler) ComputeVaR(c *gin.Context) {
	var req application.VaRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	result, err := h.app.ComputeVaR(c.Request.Context(), req)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to compute VaR", "portfolio_id", req.PortfolioID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// MarginalVaR 各持仓的边际 VaR
func (h *AnalyticsHandler) MarginalVaR(c *gin.Context) {
	var req application.VaRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	items, err := h.app.MarginalVaR(c.Request.Context(), req)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to compute marginal VaR", "portfolio_id", req.PortfolioID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// ComponentVaR 各持仓的成分 VaR
func (h *AnalyticsHandler) ComponentVaR(c *gin.Context) {
	var req application.VaRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	items, err := h.app.ComponentVaR(c.Request.Context(), req)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to compute component VaR", "portfolio_id", req.PortfolioID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// RunStressTest 执行压力测试
func (h *AnalyticsHandler) RunStressTest(c *gin.Context) {
	var req application.StressTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	report, err := h.app.RunStressTest(c.Request.Context(), req)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to run stress test", "portfolio_id", req.PortfolioID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// HistoricalStressTest 历史时段行情回放
func (h *AnalyticsHandler) HistoricalStressTest(c *gin.Context) {
	var req application.HistoricalStressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	report, err := h.app.HistoricalStressTest(c.Request.Context(), req)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to run historical stress test", "portfolio_id", req.PortfolioID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// ListScenarios 内置压力场景目录
func (h *AnalyticsHandler) ListScenarios(c *gin.Context) {
	response.Success(c, h.app.Scenarios())
}

// SensitivityAnalysis 单因子敏感度扫描
func (h *AnalyticsHandler) SensitivityAnalysis(c *gin.Context) {
	var req application.SensitivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	results, err := h.app.SensitivityAnalysis(c.Request.Context(), req)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to run sensitivity analysis", "portfolio_id", req.PortfolioID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, results)
}

// ExpectedShortfall 随机场景蒙特卡洛 ES 估计
func (h *AnalyticsHandler) ExpectedShortfall(c *gin.Context) {
	var req application.ShortfallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	result, err := h.app.ExpectedShortfall(c.Request.Context(), req)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to estimate expected shortfall", "portfolio_id", req.PortfolioID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// RiskMetrics 组合风险综合报告
func (h *AnalyticsHandler) RiskMetrics(c *gin.Context) {
	portfolioID := c.Param("id")

	report, err := h.app.RiskMetricsReport(c.Request.Context(), portfolioID)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to build risk metrics report", "portfolio_id", portfolioID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// Performance 基于交易流水的历史绩效
func (h *AnalyticsHandler) Performance(c *gin.Context) {
	portfolioID := c.Param("id")

	initialCash := 0.0
	if raw := c.Query("initial_cash"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid initial_cash", "")
			return
		}
		initialCash = parsed
	}

	result, err := h.app.Performance(c.Request.Context(), application.PerformanceRequest{
		PortfolioID: portfolioID,
		Period:      c.DefaultQuery("period", "1M"),
		InitialCash: initialCash,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to reconstruct performance", "portfolio_id", portfolioID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// RealizedPnL 移动平均成本法已实现盈亏
func (h *AnalyticsHandler) RealizedPnL(c *gin.Context) {
	portfolioID := c.Param("id")

	report, err := h.app.RealizedPnL(c.Request.Context(), portfolioID)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to compute realized PnL", "portfolio_id", portfolioID, "error", err)
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}
