package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTopup  TransactionType = "topup"  // Paid top-up
	TransactionDeduct TransactionType = "deduct" // Charge for a generation
	TransactionBonus  TransactionType = "bonus"  // Operator-granted credit
	TransactionRefund TransactionType = "refund" // Compensation for a failed image
)

// Valid reports whether t is one of the known ledger entry types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTopup, TransactionDeduct, TransactionBonus, TransactionRefund:
		return true
	}
	return false
}

// IsCredit reports whether entries of this type increase the balance.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTopup || t == TransactionBonus || t == TransactionRefund
}

// WalletTransaction Model. Rows are append-only: Amount is always the
// positive magnitude of the event and Type carries the sign.
type WalletTransaction struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       string          `gorm:"size:128;not null;index:idx_wallet_tx_user_created,priority:1" json:"userId"`
	Type         TransactionType `gorm:"size:16;not null;index" json:"type"`
	Amount       decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	CreditsAdded decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"creditsAdded"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"balanceAfter"`
	Description  string          `gorm:"size:255" json:"description"`
	ReferenceID  string          `gorm:"size:64;index" json:"referenceId,omitempty"`
	CreatedAt    time.Time       `gorm:"index:idx_wallet_tx_user_created,priority:2" json:"createdAt"`
}
