package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Package is a tier of entitlements. A cap of 0 means unlimited.
type Package struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Name  string  `gorm:"column:name;type:varchar(50);not null;uniqueIndex" json:"name"`
	Price float64 `gorm:"column:price;type:numeric(10,2);not null;default:0" json:"price"` // INR

	CanShare        bool `gorm:"column:can_share;not null;default:false" json:"can_share"`
	CanSetReminders bool `gorm:"column:can_set_reminders;not null;default:false" json:"can_set_reminders"`
	CanDelete       bool `gorm:"column:can_delete;not null;default:false" json:"can_delete"`

	MaxStorageMB int `gorm:"column:max_storage_mb;default:0" json:"max_storage_mb"`
	MaxUploads   int `gorm:"column:max_uploads;default:0" json:"max_uploads"`
	MaxShares    int `gorm:"column:max_shares;default:0" json:"max_shares"`
}

func (Package) TableName() string {
	return "packages"
}

type CreatePackageCommand struct {
	Name            string
	Price           float64
	CanShare        bool
	CanSetReminders bool
	CanDelete       bool
	MaxStorageMB    int
	MaxUploads      int
	MaxShares       int
}

type UpdatePackageCommand struct {
	Name            *string
	Price           *float64
	CanShare        *bool
	CanSetReminders *bool
	CanDelete       *bool
	MaxStorageMB    *int
	MaxUploads      *int
	MaxShares       *int
}
