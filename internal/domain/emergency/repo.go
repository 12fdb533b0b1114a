package emergency

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert stores the credential, replacing any prior row for the patient.
	Upsert(ctx context.Context, c *Credential) error
	// GetByPatient returns the patient's current credential or ErrNotFound.
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*Credential, error)
	// Disable flips the credential off without deleting it.
	Disable(ctx context.Context, patientID uuid.UUID) error
}
