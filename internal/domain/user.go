package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Default auto-recharge settings for newly provisioned users.
var (
	DefaultAutoRechargeThreshold = decimal.NewFromInt(100)
	DefaultAutoRechargeAmount    = decimal.NewFromInt(500)
)

// User Model. ID is the identity issued by the external auth provider.
// WalletBalance is a denormalized cache of the ledger and is only written by
// the ledger package.
type User struct {
	ID                    string          `gorm:"primaryKey;size:128" json:"id"`
	Email                 string          `gorm:"size:255;index" json:"email"`
	Name                  *string         `gorm:"size:255" json:"name"`
	Picture               *string         `gorm:"size:512" json:"picture"`
	WalletBalance         decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"walletBalance"`
	AutoRechargeEnabled   bool            `gorm:"not null;default:false" json:"autoRechargeEnabled"`
	AutoRechargeThreshold decimal.Decimal `gorm:"type:decimal(14,2);not null;default:100" json:"autoRechargeThreshold"`
	AutoRechargeAmount    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:500" json:"autoRechargeAmount"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}
