package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PackageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) Create(ctx context.Context, p *subscription.Package) error {
	ensureID(&p.ID)
	err := r.db.WithContext(ctx).Create(p).Error
	if isDuplicateKey(err) {
		return subscription.ErrPackageNameTaken
	}
	if err != nil {
		return fmt.Errorf("creating package: %w", err)
	}
	return nil
}

func (r *PackageRepository) GetByID(ctx context.Context, id uuid.UUID) (*subscription.Package, error) {
	var p subscription.Package
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, subscription.ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading package: %w", err)
	}
	return &p, nil
}

func (r *PackageRepository) Update(ctx context.Context, id uuid.UUID, cmd *subscription.UpdatePackageCommand) (*subscription.Package, error) {
	updates := map[string]any{}
	if cmd.Name != nil {
		updates["name"] = *cmd.Name
	}
	if cmd.Price != nil {
		updates["price"] = *cmd.Price
	}
	if cmd.CanShare != nil {
		updates["can_share"] = *cmd.CanShare
	}
	if cmd.CanSetReminders != nil {
		updates["can_set_reminders"] = *cmd.CanSetReminders
	}
	if cmd.CanDelete != nil {
		updates["can_delete"] = *cmd.CanDelete
	}
	if cmd.MaxStorageMB != nil {
		updates["max_storage_mb"] = *cmd.MaxStorageMB
	}
	if cmd.MaxUploads != nil {
		updates["max_uploads"] = *cmd.MaxUploads
	}
	if cmd.MaxShares != nil {
		updates["max_shares"] = *cmd.MaxShares
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&subscription.Package{}).Where("id = ?", id).Updates(updates)
		if isDuplicateKey(res.Error) {
			return nil, subscription.ErrPackageNameTaken
		}
		if res.Error != nil {
			return nil, fmt.Errorf("updating package: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, subscription.ErrPackageNotFound
		}
	}
	return r.GetByID(ctx, id)
}

func (r *PackageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&subscription.Package{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting package: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return subscription.ErrPackageNotFound
	}
	return nil
}

func (r *PackageRepository) List(ctx context.Context) ([]*subscription.Package, error) {
	var pkgs []*subscription.Package
	if err := r.db.WithContext(ctx).Order("price ASC, name ASC").Find(&pkgs).Error; err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	return pkgs, nil
}
