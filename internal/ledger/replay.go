package ledger

import (
	"context"
	"errors"

	"pixelforge/internal/apperr"
	"pixelforge/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Audit is the result of replaying a user's ledger from a zero balance.
type Audit struct {
	UserID          string          `json:"userId"`
	StoredBalance   decimal.Decimal `json:"storedBalance"`
	ReplayedBalance decimal.Decimal `json:"replayedBalance"`
	Transactions    int             `json:"transactions"`

	// FirstBrokenID is the first entry whose BalanceAfter does not follow
	// from its predecessor, or 0.
	FirstBrokenID uint `json:"firstBrokenId,omitempty"`
	Consistent    bool `json:"consistent"`
}

// Replay folds the full log of userID in id order and compares the
// result with the denormalized balance on the user row.
func (l *Ledger) Replay(ctx context.Context, userID string) (*Audit, error) {
	ctx, cancel := l.bounded(ctx)
	defer cancel()

	unlock, err := l.locks.Lock(ctx, userID)
	if err != nil {
		return nil, apperr.Storage("ledger lock", err)
	}
	defer unlock()

	audit := &Audit{UserID: userID}
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := l.readBalance(tx, userID)
		if err != nil {
			return err
		}
		audit.StoredBalance = balance

		var batch []domain.WalletTransaction
		running := decimal.Zero
		res := tx.Where("user_id = ?", userID).FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
			for _, rec := range batch {
				if rec.Type == domain.TransactionDeduct {
					running = running.Sub(rec.Amount)
				} else {
					running = running.Add(rec.Amount)
				}
				if audit.FirstBrokenID == 0 && !running.Equal(rec.BalanceAfter) {
					audit.FirstBrokenID = rec.ID
				}
				audit.Transactions++
			}
			return nil
		})
		if res.Error != nil {
			return res.Error
		}
		audit.ReplayedBalance = running
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Storage("ledger replay", err)
	}

	audit.Consistent = audit.FirstBrokenID == 0 && audit.ReplayedBalance.Equal(audit.StoredBalance)
	return audit, nil
}
