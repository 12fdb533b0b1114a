package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/auth"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// HasRole reports whether a principal with the given id and role exists.
	// The consent ledger uses it to resolve DOCTOR grantees.
	HasRole(ctx context.Context, id uuid.UUID, role auth.Role) (bool, error)
}
