// Package repository implements the domain repository contracts on gorm.
package repository

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func totalPages(count int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((count + int64(size) - 1) / int64(size))
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// forUpdate adds SELECT ... FOR UPDATE on dialects that support it.
// SQLite serializes writers already.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// Join rows of the many-to-many tables, written directly so inserts can be
// idempotent.
type doctorPatient struct {
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;primaryKey"`
	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;primaryKey"`
}

func (doctorPatient) TableName() string { return "doctor_patients" }

type recordShare struct {
	RecordID uuid.UUID `gorm:"column:record_id;type:uuid;primaryKey"`
	UserID   uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
}

func (recordShare) TableName() string { return "record_shares" }
