// Package users provisions and updates the local row of an externally
// authenticated user. Balances are never written here; see package ledger.
package users

import (
	"context"
	"errors"
	"strings"

	"pixelforge/internal/apperr"
	"pixelforge/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Identity is what the auth provider tells us about a caller.
type Identity struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// Settings is a partial profile update; nil fields are left alone.
type Settings struct {
	Name                  *string
	AutoRechargeEnabled   *bool
	AutoRechargeThreshold *decimal.Decimal
	AutoRechargeAmount    *decimal.Decimal
}

// Page is one page of users.
type Page struct {
	Users      []domain.User `json:"users"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}

// Service reads and writes user rows.
type Service struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// NewService creates a user service.
func NewService(db *gorm.DB, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{db: db, log: log}
}

// Ensure returns the user for id, creating it with a zero balance and the
// default auto-recharge settings on first sight.
func (s *Service) Ensure(ctx context.Context, id Identity) (*domain.User, error) {
	if strings.TrimSpace(id.ID) == "" {
		return nil, apperr.Invalid("user_id", "is required")
	}
	user := domain.User{
		ID:                    id.ID,
		Email:                 id.Email,
		WalletBalance:         decimal.Zero,
		AutoRechargeThreshold: domain.DefaultAutoRechargeThreshold,
		AutoRechargeAmount:    domain.DefaultAutoRechargeAmount,
	}
	if id.Name != "" {
		user.Name = &id.Name
	}
	if id.Picture != "" {
		user.Picture = &id.Picture
	}

	// Concurrent first requests race here; the loser's insert is a no-op.
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
	if res.Error != nil {
		return nil, apperr.Storage("user provisioning", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.WithFields(logrus.Fields{"user_id": id.ID, "email": id.Email}).Info("user provisioned")
	}
	return s.Get(ctx, id.ID)
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, apperr.Storage("user lookup", err)
	}
	return &user, nil
}

// UpdateSettings applies the non-nil fields of in and returns the updated
// user.
func (s *Service) UpdateSettings(ctx context.Context, id string, in Settings) (*domain.User, error) {
	fields := map[string]string{}
	updates := map[string]any{}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if len(name) > 255 {
			fields["name"] = "must be at most 255 characters"
		}
		updates["name"] = name
	}
	if in.AutoRechargeEnabled != nil {
		updates["auto_recharge_enabled"] = *in.AutoRechargeEnabled
	}
	if in.AutoRechargeThreshold != nil {
		if in.AutoRechargeThreshold.IsNegative() {
			fields["autoRechargeThreshold"] = "must not be negative"
		}
		updates["auto_recharge_threshold"] = *in.AutoRechargeThreshold
	}
	if in.AutoRechargeAmount != nil {
		if !in.AutoRechargeAmount.IsPositive() {
			fields["autoRechargeAmount"] = "must be positive"
		}
		updates["auto_recharge_amount"] = *in.AutoRechargeAmount
	}
	if len(fields) > 0 {
		return nil, apperr.InvalidFields(fields)
	}
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	res := s.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, apperr.Storage("user update", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("user")
	}
	s.log.WithField("user_id", id).Info("user settings updated")
	return s.Get(ctx, id)
}

// List returns users ordered by creation time, newest first.
func (s *Service) List(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, apperr.Storage("user count", err)
	}
	users := []domain.User{}
	err := s.db.WithContext(ctx).
		Order("created_at desc").Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	if err != nil {
		return nil, apperr.Storage("user listing", err)
	}
	return &Page{
		Users:      users,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (int(total) + pageSize - 1) / pageSize,
	}, nil
}
