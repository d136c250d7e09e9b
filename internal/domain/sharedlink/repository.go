package sharedlink

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts a new link. Returns ErrLinkExists when the record already has one.
	Create(ctx context.Context, l *SharedLink) error

	GetByRecordID(ctx context.Context, recordID uuid.UUID) (*SharedLink, error)

	// GetByToken loads the link with its record (soft-deleted records included).
	GetByToken(ctx context.Context, token string) (*SharedLink, error)

	// Refresh replaces token and expiry of a link still carrying oldToken. It
	// reports false when another caller refreshed it first.
	Refresh(ctx context.Context, id uuid.UUID, oldToken, token string, expiresAt time.Time) (bool, error)
}
