package sharedlink

import (
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
	"github.com/google/uuid"
)

// SharedLink is an unauthenticated, time-boxed pointer to one record.
// There is at most one row per record; expiry refreshes it in place.
type SharedLink struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Token     string        `gorm:"column:token;type:varchar(255);uniqueIndex;not null"`
	RecordID  uuid.UUID     `gorm:"column:record_id;type:uuid;uniqueIndex;not null"`
	Record    record.Record `gorm:"foreignKey:RecordID;constraint:OnDelete:CASCADE"`
	ExpiresAt time.Time     `gorm:"column:expires_at;not null;index"`
}

func (SharedLink) TableName() string {
	return "shared_links"
}

// IsValidAt reports whether the link may still be used at t (inclusive of expiry).
func (l *SharedLink) IsValidAt(t time.Time) bool {
	return !t.After(l.ExpiresAt)
}
