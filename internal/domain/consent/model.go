package consent

import (
	"time"

	"github.com/google/uuid"
)

// GranteeType classifies who receives a grant.
type GranteeType string

const (
	GranteeDoctor GranteeType = "DOCTOR"
	GranteeOrg    GranteeType = "ORG"
	GranteeSystem GranteeType = "SYSTEM"
)

func (t GranteeType) Valid() bool {
	switch t {
	case GranteeDoctor, GranteeOrg, GranteeSystem:
		return true
	}
	return false
}

// ConsentGrant maps to the consent_grant table. A grant is a patient's
// time-boxed delegation of read access to a grantee, either blanket
// (ScopeAll) or limited to the named record ids.
//
// Revocation is soft: Active flips to false and RevokedAt is set, but the
// row is never deleted. The ledger doubles as an audit trail.
type ConsentGrant struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	PatientID   uuid.UUID   `db:"patient_id" json:"patient_id"`
	GranteeID   uuid.UUID   `db:"grantee_id" json:"grantee_id"`
	GranteeType GranteeType `db:"grantee_type" json:"grantee_type"`
	ScopeAll    bool        `db:"scope_all" json:"scope_all"`
	RecordIDs   []uuid.UUID `db:"record_ids" json:"record_ids,omitempty"`
	Purpose     *string     `db:"purpose" json:"purpose,omitempty"`
	ExpiresAt   time.Time   `db:"expires_at" json:"expires_at"`
	Active      bool        `db:"active" json:"active"`
	RevokedAt   *time.Time  `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// ValidAt reports whether the grant confers access at time t.
func (g *ConsentGrant) ValidAt(t time.Time) bool {
	return g.Active && t.Before(g.ExpiresAt)
}
