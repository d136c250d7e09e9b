package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TokenRevocationRepository struct {
	db *gorm.DB
}

func NewTokenRevocationRepository(db *gorm.DB) *TokenRevocationRepository {
	return &TokenRevocationRepository{db: db}
}

func (r *TokenRevocationRepository) Revoke(ctx context.Context, jti string, userID uuid.UUID, expiresAt time.Time) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.RevokedToken{JTI: jti, UserID: userID, ExpiresAt: expiresAt.UTC()}).Error
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (r *TokenRevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.RevokedToken{}).Where("jti = ?", jti).Count(&n).Error; err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return n > 0, nil
}

func (r *TokenRevocationRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&domain.RevokedToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
