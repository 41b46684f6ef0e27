package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// riskFreeRate Sharpe 比率使用的无风险年化收益率假设
const riskFreeRate = 0.02

// tradingDaysPerYear 年化因子
const tradingDaysPerYear = 252

// DailyValue 单日组合总价值 (现金 + 持仓市值)
type DailyValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// DailyReturn 单日简单收益率
type DailyReturn struct {
	Date   time.Time `json:"date"`
	Return float64   `json:"return"`
	Value  float64   `json:"value"`
}

// PerformanceMetrics 绩效衍生指标，波动率/回撤/胜率均为百分比。
type PerformanceMetrics struct {
	SharpeRatio float64 `json:"sharpe_ratio"`
	Volatility  float64 `json:"volatility"`
	MaxDrawdown float64 `json:"max_drawdown"` // 负值
	WinRate     float64 `json:"win_rate"`
}

// PerformanceResult 绩效重建结果
type PerformanceResult struct {
	Period             Period             `json:"period"`
	StartDate          time.Time          `json:"start_date"`
	TotalReturn        float64            `json:"total_return"`
	TotalReturnPercent float64            `json:"total_return_percent"`
	DailyValues        []DailyValue       `json:"daily_values"`
	DailyReturns       []DailyReturn      `json:"daily_returns"`
	Metrics            PerformanceMetrics `json:"metrics"`
}

// SymbolPnL 单标的已实现盈亏
type SymbolPnL struct {
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
}

// RealizedPnLReport 基于移动平均成本法的已实现盈亏报告
type RealizedPnLReport struct {
	RealizedPnL     decimal.Decimal      `json:"realized_pnl"`
	TotalCommission decimal.Decimal      `json:"total_commission"`
	NetRealizedPnL  decimal.Decimal      `json:"net_realized_pnl"`
	BySymbol        map[string]SymbolPnL `json:"by_symbol"`
}

// PerformanceCalculator 逐日回放交易流水重建历史组合价值并计算绩效指标。
// 每个标的的历史价格在窗口内只拉取一次，之后全部查内存索引。
type PerformanceCalculator struct {
	market MarketData
	now    func() time.Time
}

// NewPerformanceCalculator 创建绩效计算器。
func NewPerformanceCalculator(market MarketData) *PerformanceCalculator {
	return &PerformanceCalculator{market: market, now: time.Now}
}

type positionState struct {
	quantity float64
	cost     float64
}

type ledgerState struct {
	cash      float64
	positions map[string]*positionState
}

// ReconstructPerformance 重建 period 内的逐日组合价值并计算衍生指标。
// 空流水返回全零结果而非错误。期初状态由 period 起始日之前的全部交易
// 对 initialCash 回放得到。
//
// 超卖裁决：SELL 数量超过当前持仓时按持仓数量截断，超出部分既不入账
// 现金也不实现盈亏，持仓数量不会变为负数；持仓为零的 SELL 整笔忽略，
// 手续费也不计入现金流。
func (c *PerformanceCalculator) ReconstructPerformance(ctx context.Context, ledger []Transaction, initialCash float64, period Period) (*PerformanceResult, error) {
	now := c.now()
	startDate := period.StartDate(now)
	result := &PerformanceResult{Period: period, StartDate: startDate}
	if len(ledger) == 0 {
		return result, nil
	}

	indexes, err := c.buildPriceIndexes(ctx, ledger, startDate, now)
	if err != nil {
		return nil, err
	}

	state := &ledgerState{cash: initialCash, positions: make(map[string]*positionState)}
	var periodTxns []Transaction
	for _, tx := range ledger {
		if tx.ExecutedAt.Before(startDate) {
			applyTransaction(state, tx)
		} else {
			periodTxns = append(periodTxns, tx)
		}
	}

	endDate := truncateDay(now)
	txnCursor := 0
	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		for txnCursor < len(periodTxns) && truncateDay(periodTxns[txnCursor].ExecutedAt).Equal(day) {
			applyTransaction(state, periodTxns[txnCursor])
			txnCursor++
		}

		value := state.cash
		for symbol, pos := range state.positions {
			if pos.quantity <= 0 {
				continue
			}
			if close, ok := indexes[symbol].CloseOn(day); ok {
				value += pos.quantity * close
			}
		}
		result.DailyValues = append(result.DailyValues, DailyValue{Date: day, Value: value})
	}

	if len(result.DailyValues) < 2 {
		return result, nil
	}

	initial := result.DailyValues[0].Value
	final := result.DailyValues[len(result.DailyValues)-1].Value
	result.TotalReturn = final - initial
	if initial != 0 {
		result.TotalReturnPercent = result.TotalReturn / initial * 100
	}

	for i := 1; i < len(result.DailyValues); i++ {
		prev := result.DailyValues[i-1].Value
		if prev == 0 {
			continue
		}
		curr := result.DailyValues[i]
		result.DailyReturns = append(result.DailyReturns, DailyReturn{
			Date:   curr.Date,
			Return: (curr.Value - prev) / prev,
			Value:  curr.Value,
		})
	}

	result.Metrics = calculateMetrics(result.DailyReturns)
	return result, nil
}

// RealizedPnL 对原始交易流水按移动平均成本法计算已实现盈亏。
// 独立于逐日回放；SELL 实现 (卖价 - 当前平均成本) × 实际卖出数量，
// 成本基数按平均成本等比例下调；净值扣除全部手续费。
func (c *PerformanceCalculator) RealizedPnL(ledger []Transaction) *RealizedPnLReport {
	report := &RealizedPnLReport{BySymbol: make(map[string]SymbolPnL)}

	type costState struct {
		quantity decimal.Decimal
		cost     decimal.Decimal
		realized decimal.Decimal
	}
	states := make(map[string]*costState)

	for _, tx := range ledger {
		report.TotalCommission = report.TotalCommission.Add(tx.Commission)

		state, ok := states[tx.Symbol]
		if !ok {
			state = &costState{}
			states[tx.Symbol] = state
		}

		switch tx.Type {
		case TransactionBuy:
			state.quantity = state.quantity.Add(tx.Quantity)
			state.cost = state.cost.Add(tx.Quantity.Mul(tx.Price))
		case TransactionSell:
			if state.quantity.IsPositive() {
				avgCost := state.cost.Div(state.quantity)
				sold := decimal.Min(tx.Quantity, state.quantity) // 超卖截断
				pnl := tx.Price.Sub(avgCost).Mul(sold)
				state.realized = state.realized.Add(pnl)
				report.RealizedPnL = report.RealizedPnL.Add(pnl)
				state.quantity = state.quantity.Sub(sold)
				state.cost = avgCost.Mul(state.quantity)
			}
		}
	}

	for symbol, state := range states {
		report.BySymbol[symbol] = SymbolPnL{
			RealizedPnL:       state.realized,
			RemainingQuantity: state.quantity,
		}
	}
	report.NetRealizedPnL = report.RealizedPnL.Sub(report.TotalCommission)
	return report
}

// buildPriceIndexes 为流水中出现的每个标的并发拉取一次窗口内历史序列。
// 无历史数据的标的持有空索引，估值时贡献为零。
func (c *PerformanceCalculator) buildPriceIndexes(ctx context.Context, ledger []Transaction, startDate, now time.Time) (map[string]*PriceIndex, error) {
	symbols := make(map[string]struct{})
	for _, tx := range ledger {
		symbols[tx.Symbol] = struct{}{}
	}

	// 窗口天数外加一段余量，保证起始日也能向前取到收盘价
	lookback := int(now.Sub(startDate).Hours()/24) + 30

	indexes := make(map[string]*PriceIndex, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for symbol := range symbols {
		g.Go(func() error {
			candles, err := c.market.HistoricalCandles(gctx, symbol, lookback)
			if err != nil && !errors.Is(err, ErrHistoryUnavailable) {
				return fmt.Errorf("fetch history for %s: %w", symbol, err)
			}
			mu.Lock()
			indexes[symbol] = NewPriceIndex(candles)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return indexes, nil
}

// applyTransaction 把一笔交易落到回放状态上，超卖按持仓数量截断。
func applyTransaction(state *ledgerState, tx Transaction) {
	pos, ok := state.positions[tx.Symbol]
	if !ok {
		pos = &positionState{}
		state.positions[tx.Symbol] = pos
	}

	quantity := tx.Quantity.InexactFloat64()
	price := tx.Price.InexactFloat64()
	commission := tx.Commission.InexactFloat64()

	switch tx.Type {
	case TransactionBuy:
		pos.quantity += quantity
		pos.cost += quantity * price
		state.cash -= quantity*price + commission
	case TransactionSell:
		sold := math.Min(quantity, pos.quantity)
		if sold <= 0 {
			// 持仓为零时整笔忽略，手续费同样不入账
			return
		}
		avgCost := pos.cost / pos.quantity
		pos.quantity -= sold
		pos.cost = avgCost * pos.quantity
		state.cash += sold*price - commission
	}
}

func calculateMetrics(dailyReturns []DailyReturn) PerformanceMetrics {
	if len(dailyReturns) == 0 {
		return PerformanceMetrics{}
	}

	returns := make([]float64, len(dailyReturns))
	var wins int
	for i, r := range dailyReturns {
		returns[i] = r.Return
		if r.Return > 0 {
			wins++
		}
	}

	volatility := StdDev(returns) * math.Sqrt(tradingDaysPerYear)

	var sharpe float64
	if volatility > 0 {
		annualized := math.Pow(1+Mean(returns), tradingDaysPerYear) - 1
		sharpe = (annualized - riskFreeRate) / volatility
	}

	// 最大回撤: 累计净值相对运行最高点的最深跌幅
	cumulative := 1.0
	runningMax := 1.0
	maxDrawdown := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > runningMax {
			runningMax = cumulative
		}
		if dd := cumulative/runningMax - 1; dd < maxDrawdown {
			maxDrawdown = dd
		}
	}

	return PerformanceMetrics{
		SharpeRatio: sharpe,
		Volatility:  volatility * 100,
		MaxDrawdown: maxDrawdown * 100,
		WinRate:     float64(wins) / float64(len(returns)) * 100,
	}
}
