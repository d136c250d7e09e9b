package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// live hides soft-deleted rows. Every read except GetByIDIncludingDeleted goes through it.
func live(db *gorm.DB) *gorm.DB {
	return db.Where("records.is_deleted = ?", false)
}

func (r *RecordRepository) CreateGuarded(ctx context.Context, rec *record.Record, guard func(live []*record.Record) error) error {
	ensureID(&rec.ID)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serializes concurrent uploads for the same patient.
		var owner domain.User
		if err := forUpdate(tx).Select("id").First(&owner, "id = ?", rec.PatientID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("locking owner: %w", err)
		}

		var existing []*record.Record
		if err := tx.Scopes(live).Where("patient_id = ?", rec.PatientID).Find(&existing).Error; err != nil {
			return fmt.Errorf("loading live records: %w", err)
		}
		if err := guard(existing); err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(rec).Error; err != nil {
			return fmt.Errorf("creating record: %w", err)
		}
		return nil
	})
}

func (r *RecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	return r.get(ctx, id, true)
}

func (r *RecordRepository) GetByIDIncludingDeleted(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	return r.get(ctx, id, false)
}

func (r *RecordRepository) get(ctx context.Context, id uuid.UUID, liveOnly bool) (*record.Record, error) {
	q := r.db.WithContext(ctx).Preload("SharedWith")
	if liveOnly {
		q = q.Scopes(live)
	}
	var rec record.Record
	err := q.First(&rec, "records.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, record.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	return &rec, nil
}

func (r *RecordRepository) List(ctx context.Context, q *record.ListRecordsQuery) (*record.PagedRecords, error) {
	page, size := normalizePage(q.Page, q.PageSize)

	query := r.db.WithContext(ctx).Model(&record.Record{}).Scopes(live)
	if q.PatientID != nil {
		query = query.Where("patient_id = ?", *q.PatientID)
	}
	if q.DoctorID != nil {
		query = query.Where("doctor_id = ?", *q.DoctorID)
	}
	if q.VisibleTo != nil {
		shared := r.db.Model(&recordShare{}).Select("record_id").Where("user_id = ?", *q.VisibleTo)
		query = query.Where("doctor_id = ? OR records.id IN (?)", *q.VisibleTo, shared)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}

	var recs []*record.Record
	err := query.Preload("SharedWith").
		Order("upload_date DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	return &record.PagedRecords{
		Records:    recs,
		TotalCount: total,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages(total, size),
	}, nil
}

func (r *RecordRepository) ListLiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*record.Record, error) {
	var recs []*record.Record
	err := r.db.WithContext(ctx).Scopes(live).
		Where("patient_id = ?", patientID).
		Order("upload_date DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing patient records: %w", err)
	}
	return recs, nil
}

func (r *RecordRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&record.Record{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Update("is_deleted", true)
	if res.Error != nil {
		return fmt.Errorf("deleting record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return record.ErrRecordNotFound
	}
	return nil
}

func (r *RecordRepository) AddShareGuarded(ctx context.Context, id, userID uuid.UUID, guard func(count int64) error) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec record.Record
		if err := forUpdate(tx).Scopes(live).Select("id").First(&rec, "records.id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return record.ErrRecordNotFound
			}
			return fmt.Errorf("locking record: %w", err)
		}

		var present int64
		if err := tx.Model(&recordShare{}).Where("record_id = ? AND user_id = ?", id, userID).Count(&present).Error; err != nil {
			return fmt.Errorf("checking share: %w", err)
		}
		if present > 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&recordShare{}).Where("record_id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("counting shares: %w", err)
		}
		if err := guard(count); err != nil {
			return err
		}

		if err := tx.Create(&recordShare{RecordID: id, UserID: userID}).Error; err != nil {
			return fmt.Errorf("adding share: %w", err)
		}
		added = true
		return nil
	})
	return added, err
}

func (r *RecordRepository) CountShares(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&recordShare{}).Where("record_id = ?", id).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting shares: %w", err)
	}
	return n, nil
}

func (r *RecordRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&record.Record{}).
		Where("patient_id = ? OR doctor_id = ?", userID, userID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting user records: %w", err)
	}
	return n, nil
}
