package subscription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Package) error
	GetByID(ctx context.Context, id uuid.UUID) (*Package, error)
	Update(ctx context.Context, id uuid.UUID, cmd *UpdatePackageCommand) (*Package, error)

	// Delete removes the package. Callers must check it is unreferenced first.
	Delete(ctx context.Context, id uuid.UUID) error

	List(ctx context.Context) ([]*Package, error)
}
