package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type UserRepository interface {
	// Create persists a new user. Returns ErrUsernameTaken on a duplicate username.
	Create(ctx context.Context, u *User) error

	// GetByID loads the user with its package. Returns ErrUserNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update applies a partial update and returns the reloaded user.
	Update(ctx context.Context, id uuid.UUID, cmd *UpdateUserCommand, passwordHash *string) (*User, error)

	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q *ListUsersQuery) (*PagedUsers, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	CountByPackage(ctx context.Context, packageID uuid.UUID) (int64, error)

	UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	SetMFA(ctx context.Context, id uuid.UUID, secret string, enabled bool) error

	// Doctor ↔ patient assignment
	AssignPatient(ctx context.Context, doctorID, patientID uuid.UUID) error
	UnassignPatient(ctx context.Context, doctorID, patientID uuid.UUID) error
	ListPatientsOf(ctx context.Context, doctorID uuid.UUID) ([]*User, error)
	IsAssigned(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
	// CountAssignments counts doctor_patients rows on either side of the user.
	CountAssignments(ctx context.Context, userID uuid.UUID) (int64, error)
}

type TokenRevocationRepository interface {
	Revoke(ctx context.Context, jti string, userID uuid.UUID, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
