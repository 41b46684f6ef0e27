package domain

import (
	"github.com/wyfcoding/pkg/xerrors"
)

var (
	// ErrInvalidConfidence 置信度超出 [0.90, 0.99]。
	ErrInvalidConfidence = xerrors.New(xerrors.ErrInvalidArg, 420001, "invalid confidence level", "confidence level must be within [0.90, 0.99]", nil)
	// ErrInvalidHorizon 时间跨度必须为正的交易日数。
	ErrInvalidHorizon = xerrors.New(xerrors.ErrInvalidArg, 420002, "invalid time horizon", "time horizon must be at least 1 trading day", nil)
	// ErrInvalidLookback 回看窗口必须为正。
	ErrInvalidLookback = xerrors.New(xerrors.ErrInvalidArg, 420003, "invalid lookback window", "lookback days must be positive", nil)
	// ErrInvalidMethod 未知的 VaR 计算方法。
	ErrInvalidMethod = xerrors.New(xerrors.ErrInvalidArg, 420004, "invalid var method", "supported methods: historical, parametric, monte_carlo", nil)
	// ErrInvalidSimulations 模拟次数必须为正。
	ErrInvalidSimulations = xerrors.New(xerrors.ErrInvalidArg, 420005, "invalid simulation count", "number of simulations must be positive", nil)
	// ErrEmptyPortfolio 持仓集合为空。
	ErrEmptyPortfolio = xerrors.New(xerrors.ErrInvalidArg, 420006, "empty portfolio", "at least one position is required", nil)
	// ErrInvalidPeriodRange 历史时段格式非法。
	ErrInvalidPeriodRange = xerrors.New(xerrors.ErrInvalidArg, 420007, "invalid period range", "period must be \"YYYY-MM-DD:YYYY-MM-DD\" with start no later than end", nil)

	// ErrPriceUnavailable 行情服务没有该标的的实时报价。
	ErrPriceUnavailable = xerrors.New(xerrors.ErrNotFound, 420010, "price unavailable", "no live quote exists for the symbol", nil)
	// ErrHistoryUnavailable 行情服务没有该标的的历史数据。
	ErrHistoryUnavailable = xerrors.New(xerrors.ErrNotFound, 420011, "history unavailable", "no historical data exists for the symbol", nil)
)
