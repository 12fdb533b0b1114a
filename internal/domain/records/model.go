package records

import (
	"time"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/auth"
)

// HealthRecord maps to the health_record table. OwnerPatientID is the
// patient the record is about; CreatorID may differ when a doctor authors
// a record for a patient.
//
// ConsentEnabled is the owner's per-record visibility toggle. It does not
// grant anyone access by itself; it only permits the record to be included
// in an owner-initiated share action.
type HealthRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OwnerPatientID uuid.UUID `db:"owner_patient_id" json:"owner_patient_id"`
	Title          string    `db:"title" json:"title"`
	Description    *string   `db:"description" json:"description,omitempty"`
	Category       string    `db:"category" json:"category"`
	Hospital       *string   `db:"hospital" json:"hospital,omitempty"`
	DoctorName     *string   `db:"doctor_name" json:"doctor_name,omitempty"`
	FileRef        *string   `db:"file_ref" json:"file_ref,omitempty"`
	CreatorID      uuid.UUID `db:"creator_id" json:"creator_id"`
	CreatorRole    auth.Role `db:"creator_role" json:"creator_role"`
	ConsentEnabled bool      `db:"consent_enabled" json:"consent_enabled"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
