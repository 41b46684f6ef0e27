package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Holding 持仓读模型，数量由组合管理侧维护，本服务只读。
type Holding struct {
	gorm.Model
	PortfolioID string          `gorm:"column:portfolio_id;type:varchar(32);index:idx_portfolio_symbol;not null" json:"portfolio_id"`
	Symbol      string          `gorm:"column:symbol;type:varchar(20);index:idx_portfolio_symbol;not null" json:"symbol"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:decimal(20,6);not null" json:"quantity"`
	Sector      string          `gorm:"column:sector;type:varchar(50)" json:"sector"`
}

func (Holding) TableName() string { return "holdings" }

// LedgerEntry 交易流水读模型
type LedgerEntry struct {
	gorm.Model
	PortfolioID string          `gorm:"column:portfolio_id;type:varchar(32);index;not null" json:"portfolio_id"`
	Symbol      string          `gorm:"column:symbol;type:varchar(20);index;not null" json:"symbol"`
	Type        TransactionType `gorm:"column:type;type:varchar(4);not null" json:"type"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:decimal(20,6);not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"column:price;type:decimal(20,6);not null" json:"price"`
	Commission  decimal.Decimal `gorm:"column:commission;type:decimal(20,6);not null;default:0" json:"commission"`
	ExecutedAt  time.Time       `gorm:"column:executed_at;type:timestamp;index" json:"executed_at"`
}

func (LedgerEntry) TableName() string { return "transactions" }

// Transaction 转换为回放用的流水条目。
func (e *LedgerEntry) Transaction() Transaction {
	return Transaction{
		Symbol:     e.Symbol,
		Type:       e.Type,
		Quantity:   e.Quantity,
		Price:      e.Price,
		Commission: e.Commission,
		ExecutedAt: e.ExecutedAt,
	}
}

// HoldingRepository 持仓读仓储
type HoldingRepository interface {
	ListByPortfolio(ctx context.Context, portfolioID string) ([]Holding, error)
}

// LedgerRepository 交易流水读仓储
type LedgerRepository interface {
	// ListByPortfolio 按成交时间升序返回组合的全部流水。
	ListByPortfolio(ctx context.Context, portfolioID string) ([]LedgerEntry, error)
}
