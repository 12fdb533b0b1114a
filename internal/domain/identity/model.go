package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/auth"
)

// Patient maps to the patients table. Every actor in the system is a row
// here, distinguished by role.
type Patient struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Email             string    `db:"email" json:"email"`
	PasswordDigest    string    `db:"password_digest" json:"-"`
	Role              auth.Role `db:"role" json:"role"`
	PreferredLanguage string    `db:"preferred_language" json:"preferred_language"`
	Phone             *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileUpdate carries the allow-listed profile fields a user may change.
// Email, role and password are deliberately not updatable through this path.
type ProfileUpdate struct {
	Name              *string `json:"name"`
	PreferredLanguage *string `json:"preferred_language"`
	Phone             *string `json:"phone"`
}

// Dashboard is the summary a client renders after login.
type Dashboard struct {
	User            *Patient `json:"user"`
	TotalRecords    int      `json:"total_records,omitempty"`
	AuthoredRecords int      `json:"authored_records,omitempty"`
	ActiveConsents  int      `json:"active_consents"`
}
