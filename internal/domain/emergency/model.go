package emergency

import (
	"time"

	"github.com/google/uuid"
)

// Credential maps to the emergency_credential table. At most one live row
// exists per patient; enabling again overwrites it, which permanently
// invalidates the previous secret. Only the SHA-256 digest of the secret is
// ever stored.
type Credential struct {
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	SecretDigest []byte    `db:"secret_digest" json:"-"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	Enabled      bool      `db:"enabled" json:"enabled"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
