package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/reminder"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) Create(ctx context.Context, rem *reminder.Reminder) error {
	ensureID(&rem.ID)
	rem.Date = rem.Date.UTC()
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(rem).Error; err != nil {
		return fmt.Errorf("creating reminder: %w", err)
	}
	return nil
}

func (r *ReminderRepository) GetByID(ctx context.Context, id uuid.UUID) (*reminder.Reminder, error) {
	var rem reminder.Reminder
	err := r.db.WithContext(ctx).First(&rem, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reminder.ErrReminderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading reminder: %w", err)
	}
	return &rem, nil
}

func (r *ReminderRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*reminder.Reminder, error) {
	var rems []*reminder.Reminder
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? OR patient_id = ? OR created_by = ?", userID, userID, userID).
		Order("date DESC").
		Find(&rems).Error
	if err != nil {
		return nil, fmt.Errorf("listing reminders: %w", err)
	}
	return rems, nil
}

func (r *ReminderRepository) ListDue(ctx context.Context, now time.Time, after *reminder.Cursor, limit int) ([]*reminder.Reminder, error) {
	now = now.UTC()
	q := r.db.WithContext(ctx).
		Preload("Doctor.Package").
		Preload("Patient.Package").
		Where("notified = ? AND date <= ?", false, now).
		Where("claimed_until IS NULL OR claimed_until < ?", now).
		Order("date ASC").
		Order("id ASC")
	if after != nil {
		d := after.Date.UTC()
		q = q.Where("date > ? OR (date = ? AND id > ?)", d, d, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rems []*reminder.Reminder
	if err := q.Find(&rems).Error; err != nil {
		return nil, fmt.Errorf("listing due reminders: %w", err)
	}
	return rems, nil
}

func (r *ReminderRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (bool, error) {
	now = now.UTC()
	res := r.db.WithContext(ctx).Model(&reminder.Reminder{}).
		Where("id = ? AND notified = ?", id, false).
		Where("claimed_until IS NULL OR claimed_until < ?", now).
		Update("claimed_until", now.Add(lease))
	if res.Error != nil {
		return false, fmt.Errorf("claiming reminder: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *ReminderRepository) MarkNotified(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&reminder.Reminder{}).
		Where("id = ?", id).
		Updates(map[string]any{"notified": true, "claimed_until": nil}).Error
	if err != nil {
		return fmt.Errorf("marking reminder notified: %w", err)
	}
	return nil
}

func (r *ReminderRepository) Release(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&reminder.Reminder{}).
		Where("id = ? AND notified = ?", id, false).
		Update("claimed_until", nil).Error
	if err != nil {
		return fmt.Errorf("releasing reminder: %w", err)
	}
	return nil
}
