package records

import (
	"context"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/access"
)

type Repository interface {
	Create(ctx context.Context, r *HealthRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*HealthRecord, error)
	// GetSnapshot returns the authorization snapshot, or nil when the record
	// does not exist. It satisfies access.RecordSource.
	GetSnapshot(ctx context.Context, id uuid.UUID) (*access.Record, error)
	// ListVisible returns the records selected by the visibility filter,
	// newest first.
	ListVisible(ctx context.Context, v access.Visibility, limit, offset int) ([]*HealthRecord, int, error)
	SetConsentEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	// AllOwnedBy reports whether every id in recordIDs names an existing
	// record owned by patientID.
	AllOwnedBy(ctx context.Context, recordIDs []uuid.UUID, patientID uuid.UUID) (bool, error)
	CountOwned(ctx context.Context, patientID uuid.UUID) (int, error)
	CountAuthored(ctx context.Context, creatorID uuid.UUID) (int, error)
}
