package ledger

import (
	"context"
	"time"

	"pixelforge/internal/apperr"
	"pixelforge/internal/domain"

	"gorm.io/gorm"
)

// Filter narrows a ledger listing. Zero fields match everything.
type Filter struct {
	UserID   string
	Type     domain.TransactionType
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// Page is one page of ledger entries, newest first.
type Page struct {
	Transactions []domain.WalletTransaction `json:"transactions"`
	Page         int                        `json:"page"`
	PageSize     int                        `json:"page_size"`
	Total        int64                      `json:"total"`
	TotalPages   int                        `json:"total_pages"`
}

// ListTransactions returns entries across users matching f.
func (l *Ledger) ListTransactions(ctx context.Context, f Filter) (*Page, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, apperr.Invalid("type", "must be one of topup, deduct, bonus, refund")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, apperr.Invalid("to", "must not be before from")
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > maxLimit {
		f.PageSize = defaultLimit
	}
	ctx, cancel := l.bounded(ctx)
	defer cancel()

	query := l.db.WithContext(ctx).Model(&domain.WalletTransaction{})
	if f.UserID != "" {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if !f.From.IsZero() {
		query = query.Where("created_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		query = query.Where("created_at <= ?", f.To.UTC())
	}
	// Count and Find each start from the filters above.
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperr.Storage("transaction count", err)
	}
	txs := []domain.WalletTransaction{}
	err := query.
		Order("created_at desc").
		Order("id desc").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&txs).Error
	if err != nil {
		return nil, apperr.Storage("transaction listing", err)
	}
	return &Page{
		Transactions: txs,
		Page:         f.Page,
		PageSize:     f.PageSize,
		Total:        total,
		TotalPages:   (int(total) + f.PageSize - 1) / f.PageSize,
	}, nil
}
