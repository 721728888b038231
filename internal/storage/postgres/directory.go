// Package postgres implements the device directory over the application's
// Postgres store: the user_fcm_tokens and household_members tables.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

// deviceToken is a row of user_fcm_tokens. Tokens are written by the mobile
// clients; this service only reads and deletes them.
type deviceToken struct {
	UserID   string `gorm:"column:user_id"`
	FCMToken string `gorm:"column:fcm_token"`
}

func (deviceToken) TableName() string { return "user_fcm_tokens" }

// householdMember is a row of household_members.
type householdMember struct {
	HouseholdID string `gorm:"column:household_id"`
	UserID      string `gorm:"column:user_id"`
	IsActive    bool   `gorm:"column:is_active"`
}

func (householdMember) TableName() string { return "household_members" }

// Directory implements dispatch.Directory on gorm.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var tokens []string
	err := d.db.WithContext(ctx).
		Model(&deviceToken{}).
		Where("user_id = ?", userID.String()).
		Pluck("fcm_token", &tokens).Error
	if err != nil {
		return nil, &notify.DirectoryError{Op: "list tokens", Err: err}
	}
	return tokens, nil
}

func (d *Directory) DeleteTokens(ctx context.Context, _ uuid.UUID, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	err := d.db.WithContext(ctx).
		Where("fcm_token IN ?", tokens).
		Delete(&deviceToken{}).Error
	if err != nil {
		return &notify.DirectoryError{Op: "delete tokens", Err: err}
	}
	return nil
}

func (d *Directory) Membership(ctx context.Context, householdID, userID uuid.UUID) (*notify.Membership, error) {
	var row householdMember
	err := d.db.WithContext(ctx).
		Where("household_id = ? AND user_id = ?", householdID.String(), userID.String()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &notify.DirectoryError{Op: "membership lookup", Err: err}
	}
	return &notify.Membership{
		HouseholdID: householdID,
		UserID:      userID,
		Active:      row.IsActive,
	}, nil
}
