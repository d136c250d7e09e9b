package record

import (
	"context"

	"github.com/google/uuid"
)

// Repository hides soft-deleted rows from every read except GetByIDIncludingDeleted.
type Repository interface {
	// CreateGuarded inserts r inside a transaction after guard approves the
	// patient's live record count and sizes as seen inside that transaction.
	CreateGuarded(ctx context.Context, r *Record, guard func(live []*Record) error) error

	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByIDIncludingDeleted(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, q *ListRecordsQuery) (*PagedRecords, error)

	// ListLiveByPatient returns every non-deleted record owned by the patient.
	ListLiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error)

	SoftDelete(ctx context.Context, id uuid.UUID) error

	// AddShareGuarded adds userID to the record's shared_with set. guard sees
	// the current share count and runs only when userID is not yet present.
	// It reports whether a new share was added.
	AddShareGuarded(ctx context.Context, id uuid.UUID, userID uuid.UUID, guard func(count int64) error) (bool, error)

	CountShares(ctx context.Context, id uuid.UUID) (int64, error)

	// CountByUser counts records (deleted included) the user owns or authored.
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}
