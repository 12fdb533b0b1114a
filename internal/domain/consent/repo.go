package consent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, g *ConsentGrant) error
	GetByID(ctx context.Context, id uuid.UUID) (*ConsentGrant, error)
	// Revoke flips the grant inactive. Revoking an already-revoked grant is
	// a no-op, not an error.
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	// FindValidGrant returns the most recently created grant from patientID
	// to granteeID that is active and unexpired at now, or nil.
	FindValidGrant(ctx context.Context, patientID, granteeID uuid.UUID, now time.Time) (*ConsentGrant, error)
	// ListValidForPair returns every currently-valid grant between the pair.
	ListValidForPair(ctx context.Context, patientID, granteeID uuid.UUID, now time.Time) ([]*ConsentGrant, error)
	ListValidByGrantee(ctx context.Context, granteeID uuid.UUID, now time.Time) ([]*ConsentGrant, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ConsentGrant, int, error)
	ListValidByGranteePaged(ctx context.Context, granteeID uuid.UUID, now time.Time, limit, offset int) ([]*ConsentGrant, int, error)
	ListAll(ctx context.Context, limit, offset int) ([]*ConsentGrant, int, error)
	CountValidIssuedBy(ctx context.Context, patientID uuid.UUID, now time.Time) (int, error)
	CountValidGrantedTo(ctx context.Context, granteeID uuid.UUID, now time.Time) (int, error)
}
