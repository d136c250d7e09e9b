package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)

	// ListForUser returns reminders addressed to the user, newest first.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Reminder, error)

	// ListDue returns unnotified reminders with date <= now whose claim lease
	// is free, with recipients and their packages preloaded. Results are
	// ordered by (date, id) and start strictly after the cursor when given.
	ListDue(ctx context.Context, now time.Time, after *Cursor, limit int) ([]*Reminder, error)

	// Claim takes a lease on an unnotified reminder. It reports false when
	// another run holds the lease or the reminder was already notified.
	Claim(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (bool, error)

	// MarkNotified flips notified to true and clears the lease.
	MarkNotified(ctx context.Context, id uuid.UUID) error

	// Release drops the lease so the next sweep retries the reminder.
	Release(ctx context.Context, id uuid.UUID) error
}
