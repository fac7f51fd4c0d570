package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImageStatus is the lifecycle state of a generated image.
type ImageStatus string

const (
	ImagePending   ImageStatus = "pending"
	ImageCompleted ImageStatus = "completed"
	ImageFailed    ImageStatus = "failed"
)

// GeneratedImage Model. A row exists only once its charge has been deducted;
// (UserID, IdempotencyKey) is unique so a retried request maps to one image.
type GeneratedImage struct {
	ID             string          `gorm:"primaryKey;size:64" json:"id"`
	UserID         string          `gorm:"size:128;not null;uniqueIndex:idx_image_user_key,priority:1;index" json:"userId"`
	IdempotencyKey string          `gorm:"size:128;not null;uniqueIndex:idx_image_user_key,priority:2" json:"-"`
	OriginalPrompt string          `gorm:"type:text;not null" json:"originalPrompt"`
	EnhancedPrompt string          `gorm:"type:text" json:"enhancedPrompt"`
	ImageURL       string          `gorm:"size:512;not null" json:"imageUrl"`
	Resolution     string          `gorm:"size:16;not null" json:"resolution"`
	GenerationType string          `gorm:"size:32;not null" json:"generationType"`
	CreditsUsed    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"creditsUsed"`
	Status         ImageStatus     `gorm:"size:16;not null;default:pending" json:"status"`
	CreatedAt      time.Time       `gorm:"index" json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
