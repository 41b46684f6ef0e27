package mysql

import (
	"context"

	"github.com/wyfcoding/portfolioanalytics/internal/analytics/domain"
	"gorm.io/gorm"
)

// HoldingRepo 持仓只读仓储
type HoldingRepo struct {
	db *gorm.DB
}

func NewHoldingRepo(db *gorm.DB) *HoldingRepo {
	return &HoldingRepo{db: db}
}

func (r *HoldingRepo) ListByPortfolio(ctx context.Context, portfolioID string) ([]domain.Holding, error) {
	var holdings []domain.Holding
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Find(&holdings).Error
	return holdings, err
}

// LedgerRepo 交易流水只读仓储
type LedgerRepo struct {
	db *gorm.DB
}

func NewLedgerRepo(db *gorm.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

func (r *LedgerRepo) ListByPortfolio(ctx context.Context, portfolioID string) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("executed_at asc").
		Find(&entries).Error
	return entries, err
}
