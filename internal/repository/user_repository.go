package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/reminder"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	ensureID(&u.ID)
	if u.PasswordChangedAt.IsZero() {
		u.PasswordChangedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(u).Error
	if isDuplicateKey(err) {
		return domain.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Preload("Package").First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Preload("Package").First(&u, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return &u, nil
}

var overrideColumns = map[string]bool{
	"can_share":         true,
	"can_set_reminders": true,
	"can_delete":        true,
}

func (r *UserRepository) Update(ctx context.Context, id uuid.UUID, cmd *domain.UpdateUserCommand, passwordHash *string) (*domain.User, error) {
	updates := map[string]any{}
	if cmd.Email != nil {
		updates["email"] = *cmd.Email
	}
	if cmd.Phone != nil {
		updates["phone"] = *cmd.Phone
	}
	if cmd.Role != nil {
		updates["role"] = *cmd.Role
	}
	if cmd.ClearPackage {
		updates["package_id"] = nil
	} else if cmd.PackageID != nil {
		updates["package_id"] = *cmd.PackageID
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
	for _, col := range cmd.ClearOverrides {
		if overrideColumns[col] {
			updates[col] = nil
		}
	}
	if passwordHash != nil {
		updates["password_hash"] = *passwordHash
		updates["password_changed_at"] = time.Now().UTC()
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("updating user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, domain.ErrUserNotFound
		}
	}
	return r.GetByID(ctx, id)
}

// Delete removes the user with its assignments, shares and reminders.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doctor_id = ? OR patient_id = ?", id, id).Delete(&doctorPatient{}).Error; err != nil {
			return fmt.Errorf("removing assignments: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&recordShare{}).Error; err != nil {
			return fmt.Errorf("removing shares: %w", err)
		}
		if err := tx.Where("doctor_id = ? OR patient_id = ?", id, id).Delete(&reminder.Reminder{}).Error; err != nil {
			return fmt.Errorf("removing reminders: %w", err)
		}
		res := tx.Delete(&domain.User{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("deleting user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

func (r *UserRepository) List(ctx context.Context, q *domain.ListUsersQuery) (*domain.PagedUsers, error) {
	page, size := normalizePage(q.Page, q.PageSize)

	query := r.db.WithContext(ctx).Model(&domain.User{})
	if q.Role != nil {
		query = query.Where("role = ?", *q.Role)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	var users []*domain.User
	err := query.Preload("Package").
		Order("username ASC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return &domain.PagedUsers{
		Users:      users,
		TotalCount: total,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages(total, size),
	}, nil
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return n > 0, nil
}

func (r *UserRepository) CountByPackage(ctx context.Context, packageID uuid.UUID) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Where("package_id = ?", packageID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting package users: %w", err)
	}
	return n, nil
}

// UpdateLoginAttempt resets the counter on success. On failure it increments
// it and locks the account once MaxFailedLogins is reached.
func (r *UserRepository) UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool) error {
	now := time.Now().UTC()
	if success {
		return r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(map[string]any{
			"failed_login_count": 0,
			"locked_until":       nil,
			"last_login_at":      now,
		}).Error
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u domain.User
		if err := forUpdate(tx).Select("id", "failed_login_count").First(&u, "id = ?", id).Error; err != nil {
			return fmt.Errorf("loading login state: %w", err)
		}
		updates := map[string]any{"failed_login_count": u.FailedLoginCount + 1}
		if u.FailedLoginCount+1 >= domain.MaxFailedLogins {
			updates["locked_until"] = now.Add(domain.LockoutDuration)
			updates["failed_login_count"] = 0
		}
		return tx.Model(&domain.User{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash":       hash,
		"password_changed_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("updating password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetMFA(ctx context.Context, id uuid.UUID, secret string, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(map[string]any{
		"mfa_secret":  secret,
		"mfa_enabled": enabled,
	})
	if res.Error != nil {
		return fmt.Errorf("updating mfa: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) AssignPatient(ctx context.Context, doctorID, patientID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&doctorPatient{DoctorID: doctorID, PatientID: patientID}).Error
	if err != nil {
		return fmt.Errorf("assigning patient: %w", err)
	}
	return nil
}

func (r *UserRepository) UnassignPatient(ctx context.Context, doctorID, patientID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? AND patient_id = ?", doctorID, patientID).
		Delete(&doctorPatient{}).Error
	if err != nil {
		return fmt.Errorf("unassigning patient: %w", err)
	}
	return nil
}

func (r *UserRepository) ListPatientsOf(ctx context.Context, doctorID uuid.UUID) ([]*domain.User, error) {
	var users []*domain.User
	err := r.db.WithContext(ctx).
		Joins("JOIN doctor_patients dp ON dp.patient_id = users.id").
		Where("dp.doctor_id = ?", doctorID).
		Preload("Package").
		Order("users.username ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	return users, nil
}

func (r *UserRepository) IsAssigned(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&doctorPatient{}).
		Where("doctor_id = ? AND patient_id = ?", doctorID, patientID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("checking assignment: %w", err)
	}
	return n > 0, nil
}

func (r *UserRepository) CountAssignments(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&doctorPatient{}).
		Where("doctor_id = ? OR patient_id = ?", userID, userID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting assignments: %w", err)
	}
	return n, nil
}
