// Package generation authorizes, executes and settles image generation
// requests against the wallet ledger.
//
// A request goes through Quote, Admit, Execute and Settle. Admit is an
// advisory balance check that keeps obviously unaffordable requests away from
// the generator; Settle is the authoritative charge and inserts the image row
// in the same ledger transaction, so a completed image always has a matching
// deduction.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pixelforge/internal/apperr"
	"pixelforge/internal/domain"
	"pixelforge/internal/ledger"
	"pixelforge/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	maxPromptLength   = 1000
	maxProductImages  = 5
	maxIdempotencyKey = 128
	defaultListLimit  = 50
	maxListLimit      = 100
)

// Wallet is the part of the ledger the flow depends on.
type Wallet interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	CheckBalance(ctx context.Context, userID string, required decimal.Decimal) (decimal.Decimal, bool, error)
	Deduct(ctx context.Context, e ledger.Entry, then ledger.TxFunc) (*domain.WalletTransaction, error)
	Refund(ctx context.Context, e ledger.Entry, then ledger.TxFunc) (*domain.WalletTransaction, error)
	FindByReference(ctx context.Context, userID string, typ domain.TransactionType, referenceID string) (*domain.WalletTransaction, error)
}

// Request is one generation request.
type Request struct {
	Prompt            string
	Resolution        string
	GenerationType    string
	ProductImages     []string
	BackgroundRemoval bool
	StyleTransfer     bool
	IdempotencyKey    string
}

// Validate checks the request shape and reports every offending field.
func (r Request) Validate() error {
	fields := map[string]string{}

	switch n := utf8.RuneCountInString(strings.TrimSpace(r.Prompt)); {
	case n == 0:
		fields["prompt"] = "is required"
	case utf8.RuneCountInString(r.Prompt) > maxPromptLength:
		fields["prompt"] = fmt.Sprintf("must be at most %d characters", maxPromptLength)
	}
	if !pricing.IsKnownResolution(r.Resolution) {
		fields["resolution"] = "must be one of " + strings.Join(pricing.Resolutions(), ", ")
	}
	if !IsGenerationType(r.GenerationType) {
		fields["generationType"] = "must be one of " + strings.Join(GenerationTypes(), ", ")
	}
	if n := len(r.ProductImages); n < 1 || n > maxProductImages {
		fields["productImages"] = fmt.Sprintf("must contain between 1 and %d images", maxProductImages)
	}
	for i, img := range r.ProductImages {
		if strings.TrimSpace(img) == "" {
			fields[fmt.Sprintf("productImages[%d]", i)] = "must not be empty"
		}
	}
	switch n := len(r.IdempotencyKey); {
	case n == 0:
		fields["idempotencyKey"] = "is required"
	case n > maxIdempotencyKey:
		fields["idempotencyKey"] = fmt.Sprintf("must be at most %d characters", maxIdempotencyKey)
	}

	if len(fields) > 0 {
		return apperr.InvalidFields(fields)
	}
	return nil
}

// Result describes a settled generation.
type Result struct {
	ImageID        string             `json:"imageId"`
	ImageURL       string             `json:"imageUrl"`
	CreditsUsed    decimal.Decimal    `json:"creditsUsed"`
	NewBalance     decimal.Decimal    `json:"newBalance"`
	EnhancedPrompt string             `json:"enhancedPrompt"`
	Status         domain.ImageStatus `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	Replayed       bool               `json:"replayed"`
}

// errDuplicate aborts a settlement that lost the race for its idempotency key.
var errDuplicate = errors.New("idempotency key already settled")

// Flow runs generation requests. It is safe for concurrent use.
type Flow struct {
	db        *gorm.DB
	wallet    Wallet
	generator Generator
	log       logrus.FieldLogger
	newID     func() string
}

// NewFlow wires the flow to its storage, wallet and generator.
func NewFlow(db *gorm.DB, wallet Wallet, generator Generator, log logrus.FieldLogger) *Flow {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Flow{
		db:        db,
		wallet:    wallet,
		generator: generator,
		log:       log,
		newID:     func() string { return "img_" + uuid.NewString() },
	}
}

// Generate quotes, admits, executes and settles req for userID.
func (f *Flow) Generate(ctx context.Context, userID string, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := f.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"idempotency_key": req.IdempotencyKey,
		"resolution":      req.Resolution,
		"generation_type": req.GenerationType,
	})

	// A retried request returns the image it already paid for.
	existing, err := findByKey(f.db.WithContext(ctx), userID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.WithField("image_id", existing.ID).Info("generation replayed")
		return f.replay(ctx, existing)
	}

	// Quote
	quote := pricing.QuoteFor(req.Resolution, len(req.ProductImages), req.BackgroundRemoval, req.StyleTransfer)
	log = log.WithFields(logrus.Fields{
		"credits": quote.Credits.String(),
		"amount":  quote.Amount.StringFixed(2),
	})

	// Admit
	current, insufficient, err := f.wallet.CheckBalance(ctx, userID, quote.Amount)
	if err != nil {
		return nil, err
	}
	if insufficient {
		log.WithField("balance", current.StringFixed(2)).Info("generation rejected: insufficient balance")
		return nil, apperr.Insufficient(quote.Amount, current)
	}

	// Execute
	enhanced := EnhancePrompt(req.Prompt, req.GenerationType, req.Resolution)
	imageURL, err := f.generator.Generate(ctx, enhanced, req.Resolution)
	if err != nil {
		log.WithError(err).Warn("image generation failed")
		return nil, apperr.GenerationFailed(err)
	}

	// Settle
	image := domain.GeneratedImage{
		ID:             f.newID(),
		UserID:         userID,
		IdempotencyKey: req.IdempotencyKey,
		OriginalPrompt: req.Prompt,
		EnhancedPrompt: enhanced,
		ImageURL:       imageURL,
		Resolution:     req.Resolution,
		GenerationType: req.GenerationType,
		CreditsUsed:    quote.Credits,
		Status:         domain.ImageCompleted,
	}
	entry := ledger.Entry{
		UserID:      userID,
		Amount:      quote.Amount,
		Description: fmt.Sprintf("Image generation - %s - %s credits", req.Resolution, quote.Credits.String()),
		ReferenceID: image.ID,
	}
	rec, err := f.wallet.Deduct(ctx, entry, func(tx *gorm.DB, _ *domain.WalletTransaction) error {
		dup, err := findByKey(tx, userID, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if dup != nil {
			return errDuplicate
		}
		if err := tx.Create(&image).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicate
			}
			return apperr.Storage("image insert", err)
		}
		return nil
	})
	if errors.Is(err, errDuplicate) {
		winner, ferr := findByKey(f.db.WithContext(ctx), userID, req.IdempotencyKey)
		if ferr != nil {
			return nil, ferr
		}
		if winner == nil {
			return nil, apperr.Conflict("idempotency key is being settled by another request")
		}
		log.WithField("image_id", winner.ID).Info("concurrent duplicate settled once; replaying")
		return f.replay(ctx, winner)
	}
	if err != nil {
		// The artifact is discarded; nothing was charged.
		log.WithError(err).WithField("image_url", imageURL).Warn("generation settlement failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"image_id":    image.ID,
		"new_balance": rec.BalanceAfter.StringFixed(2),
	}).Info("image generated")

	return &Result{
		ImageID:        image.ID,
		ImageURL:       image.ImageURL,
		CreditsUsed:    image.CreditsUsed,
		NewBalance:     rec.BalanceAfter,
		EnhancedPrompt: image.EnhancedPrompt,
		Status:         image.Status,
		CreatedAt:      image.CreatedAt,
	}, nil
}

func (f *Flow) replay(ctx context.Context, img *domain.GeneratedImage) (*Result, error) {
	balance, err := f.wallet.GetBalance(ctx, img.UserID)
	if err != nil {
		return nil, err
	}
	return &Result{
		ImageID:        img.ID,
		ImageURL:       img.ImageURL,
		CreditsUsed:    img.CreditsUsed,
		NewBalance:     balance,
		EnhancedPrompt: img.EnhancedPrompt,
		Status:         img.Status,
		CreatedAt:      img.CreatedAt,
		Replayed:       true,
	}, nil
}

// MarkFailed moves a completed image to failed and refunds its charge in the
// same ledger transaction. It fails with Conflict when the image is not
// completed, so a charge is refunded at most once.
func (f *Flow) MarkFailed(ctx context.Context, imageID, reason string) (*domain.WalletTransaction, error) {
	img, err := f.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if img.Status != domain.ImageCompleted {
		return nil, apperr.Conflict(fmt.Sprintf("image is %s, only completed images can be failed", img.Status))
	}
	charge, err := f.wallet.FindByReference(ctx, img.UserID, domain.TransactionDeduct, img.ID)
	if err != nil {
		return nil, err
	}

	desc := "Refund - " + img.ID
	if reason = strings.TrimSpace(reason); reason != "" {
		desc += " - " + reason
	}
	entry := ledger.Entry{UserID: img.UserID, Amount: charge.Amount, Description: desc, ReferenceID: img.ID}
	rec, err := f.wallet.Refund(ctx, entry, func(tx *gorm.DB, _ *domain.WalletTransaction) error {
		res := tx.Model(&domain.GeneratedImage{}).
			Where("id = ? AND status = ?", img.ID, domain.ImageCompleted).
			Update("status", domain.ImageFailed)
		if res.Error != nil {
			return apperr.Storage("image status update", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("image was already marked failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.log.WithFields(logrus.Fields{
		"user_id":  img.UserID,
		"image_id": img.ID,
		"refund":   rec.Amount.StringFixed(2),
	}).Info("image marked failed and refunded")
	return rec, nil
}

// GetImage loads one image by id.
func (f *Flow) GetImage(ctx context.Context, imageID string) (*domain.GeneratedImage, error) {
	var img domain.GeneratedImage
	err := f.db.WithContext(ctx).Where("id = ?", imageID).Take(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("image")
	}
	if err != nil {
		return nil, apperr.Storage("image lookup", err)
	}
	return &img, nil
}

// ListImages returns the latest images of userID, newest first.
func (f *Flow) ListImages(ctx context.Context, userID string, limit int) ([]domain.GeneratedImage, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	images := []domain.GeneratedImage{}
	err := f.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&images).Error
	if err != nil {
		return nil, apperr.Storage("image listing", err)
	}
	return images, nil
}

// findByKey returns the image settled under key, or nil.
func findByKey(db *gorm.DB, userID, key string) (*domain.GeneratedImage, error) {
	var img domain.GeneratedImage
	err := db.Where("user_id = ? AND idempotency_key = ?", userID, key).Take(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("idempotency lookup", err)
	}
	return &img, nil
}
