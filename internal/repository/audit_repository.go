package repository

import (
	"context"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	ensureID(&entry.ID)
	return r.db.WithContext(ctx).Create(entry).Error
}
