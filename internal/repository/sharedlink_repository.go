package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/sharedlink"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SharedLinkRepository struct {
	db *gorm.DB
}

func NewSharedLinkRepository(db *gorm.DB) *SharedLinkRepository {
	return &SharedLinkRepository{db: db}
}

func (r *SharedLinkRepository) Create(ctx context.Context, l *sharedlink.SharedLink) error {
	ensureID(&l.ID)
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(l).Error
	if isDuplicateKey(err) {
		return sharedlink.ErrLinkExists
	}
	if err != nil {
		return fmt.Errorf("creating link: %w", err)
	}
	return nil
}

func (r *SharedLinkRepository) GetByRecordID(ctx context.Context, recordID uuid.UUID) (*sharedlink.SharedLink, error) {
	var l sharedlink.SharedLink
	err := r.db.WithContext(ctx).First(&l, "record_id = ?", recordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sharedlink.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading link: %w", err)
	}
	return &l, nil
}

func (r *SharedLinkRepository) GetByToken(ctx context.Context, token string) (*sharedlink.SharedLink, error) {
	var l sharedlink.SharedLink
	err := r.db.WithContext(ctx).Preload("Record.SharedWith").First(&l, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sharedlink.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading link: %w", err)
	}
	return &l, nil
}

func (r *SharedLinkRepository) Refresh(ctx context.Context, id uuid.UUID, oldToken, token string, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&sharedlink.SharedLink{}).
		Where("id = ? AND token = ?", id, oldToken).
		Updates(map[string]any{
			"token":      token,
			"expires_at": expiresAt.UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("refreshing link: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
