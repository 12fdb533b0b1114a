package auth

import "github.com/google/uuid"

// Role classifies an authenticated actor. Roles are fixed: there is no
// role hierarchy beyond ADMIN passing every role check.
type Role string

const (
	RolePatient   Role = "PATIENT"
	RoleDoctor    Role = "DOCTOR"
	RoleAdmin     Role = "ADMIN"
	RoleEmergency Role = "EMERGENCY"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin, RoleEmergency:
		return true
	}
	return false
}

// Principal is an authenticated actor derived from a verified credential.
// It is never built from unsigned input.
//
// ScopedPatientID is set only for EMERGENCY principals and names the single
// patient whose records the break-glass credential unlocked.
type Principal struct {
	ID              uuid.UUID
	Role            Role
	ScopedPatientID uuid.UUID
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
