package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType 交易方向
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// Transaction 交易流水，不可变、按成交时间升序，是绩效重建的唯一事实来源。
type Transaction struct {
	Symbol     string          `json:"symbol"`
	Type       TransactionType `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`   // > 0
	Price      decimal.Decimal `json:"price"`      // > 0
	Commission decimal.Decimal `json:"commission"` // >= 0
	ExecutedAt time.Time       `json:"executed_at"`
}

// Period 绩效统计周期
type Period string

const (
	Period1D  Period = "1D"
	Period1W  Period = "1W"
	Period1M  Period = "1M"
	Period3M  Period = "3M"
	Period6M  Period = "6M"
	Period1Y  Period = "1Y"
	PeriodYTD Period = "YTD"
)

var periodDays = map[Period]int{
	Period1D: 1,
	Period1W: 7,
	Period1M: 30,
	Period3M: 90,
	Period6M: 180,
	Period1Y: 365,
}

// StartDate 统计周期相对 now 的起始日期。未知周期按 1M 处理。
func (p Period) StartDate(now time.Time) time.Time {
	if p == PeriodYTD {
		return time.Date(now.UTC().Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	days, ok := periodDays[p]
	if !ok {
		days = periodDays[Period1M]
	}
	return truncateDay(now.AddDate(0, 0, -days))
}
