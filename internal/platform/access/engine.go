// Package access holds the authorization core: a pure decision function over
// explicit snapshots of record ownership and consent state, plus an Engine
// that feeds it from read-only lookups. No other package makes access
// decisions.
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/auth"
)

// ErrRecordNotFound is returned by Authorize when the target record does not
// exist at all. "Exists but forbidden" is a Decision, not an error.
var ErrRecordNotFound = errors.New("record not found")

// Deny reasons. Allow carries no reason.
const (
	ReasonNoConsent        = "no_consent"
	ReasonRecordNotInScope = "record_not_in_scope"
	ReasonForbidden        = "forbidden"
)

// Decision is the verdict of the engine. Deny is an expected, frequent
// outcome and therefore a first-class value rather than an error.
type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision             { return Decision{Allowed: true} }
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Record is the snapshot of a health record the decision function needs:
// identity, owner and author. Everything else about a record is irrelevant
// to authorization.
type Record struct {
	ID             uuid.UUID
	OwnerPatientID uuid.UUID
	CreatorID      uuid.UUID
}

// Grant is the snapshot of a currently-valid consent grant between a patient
// and a grantee. Validity (active flag, expiry) is the ledger's concern; by
// the time a Grant reaches Decide it is assumed valid.
type Grant struct {
	ScopeAll  bool
	RecordIDs []uuid.UUID
}

// Covers reports whether the grant's scope includes the given record id.
func (g Grant) Covers(recordID uuid.UUID) bool {
	if g.ScopeAll {
		return true
	}
	for _, id := range g.RecordIDs {
		if id == recordID {
			return true
		}
	}
	return false
}

// Decide applies the ordered access rules for a READ of rec by p. grant is
// the effective currently-valid grant scope from rec's owner to p, or nil.
// It is deterministic and side-effect-free; first match wins.
func Decide(p auth.Principal, rec Record, grant *Grant) Decision {
	if p.Role == auth.RoleAdmin {
		return Allow()
	}
	if p.ID == rec.OwnerPatientID {
		return Allow()
	}
	if p.ID == rec.CreatorID {
		return Allow()
	}
	if p.Role == auth.RoleDoctor {
		if grant == nil {
			return Deny(ReasonNoConsent)
		}
		if grant.Covers(rec.ID) {
			return Allow()
		}
		return Deny(ReasonRecordNotInScope)
	}
	if p.Role == auth.RoleEmergency && p.ScopedPatientID == rec.OwnerPatientID {
		return Allow()
	}
	return Deny(ReasonForbidden)
}

// PatientGrant pairs a granting patient with the grant's scope, for the
// set-builder listing path.
type PatientGrant struct {
	PatientID uuid.UUID
	Scope     Grant
}

// ConsentSource is the read-only view of the consent ledger the engine needs.
type ConsentSource interface {
	// FindValidGrant returns the effective currently-valid grant scope from
	// patientID to granteeID, or nil if no valid grant exists. When several
	// grants overlap the source merges them into one scope.
	FindValidGrant(ctx context.Context, patientID, granteeID uuid.UUID) (*Grant, error)
	// ListValidForGrantee returns the effective scope per granting patient
	// for every currently-valid grant issued to granteeID.
	ListValidForGrantee(ctx context.Context, granteeID uuid.UUID) ([]PatientGrant, error)
}

// RecordSource is the read-only view of record ownership the engine needs.
type RecordSource interface {
	// GetSnapshot returns the record's authorization snapshot, or nil if the
	// record does not exist.
	GetSnapshot(ctx context.Context, id uuid.UUID) (*Record, error)
}

// Engine combines the pure decision function with its read-only lookups.
type Engine struct {
	records  RecordSource
	consents ConsentSource
}

func NewEngine(records RecordSource, consents ConsentSource) *Engine {
	return &Engine{records: records, consents: consents}
}

// Authorize decides whether p may READ the record with the given id.
// A missing record yields ErrRecordNotFound; an existing record always
// yields a Decision.
func (e *Engine) Authorize(ctx context.Context, p auth.Principal, recordID uuid.UUID) (*Record, Decision, error) {
	rec, err := e.records.GetSnapshot(ctx, recordID)
	if err != nil {
		return nil, Decision{}, err
	}
	if rec == nil {
		return nil, Decision{}, ErrRecordNotFound
	}

	var grant *Grant
	if p.Role == auth.RoleDoctor && p.ID != rec.OwnerPatientID && p.ID != rec.CreatorID {
		grant, err = e.consents.FindValidGrant(ctx, rec.OwnerPatientID, p.ID)
		if err != nil {
			return nil, Decision{}, err
		}
	}

	return rec, Decide(p, *rec, grant), nil
}

// Visibility is the set-builder form of the access rules: the filter that
// selects exactly the records p may read. It exists so that a listing does
// not re-run the point decision per record; both forms must agree on every
// input, which is what TestVisibilityAgreesWithDecide pins down.
type Visibility struct {
	All        bool        // every record (ADMIN)
	OwnerID    uuid.UUID   // records owned by this patient
	AuthoredBy uuid.UUID   // records created by this principal
	PatientIDs []uuid.UUID // all records of these patients (ALL-scope grants, emergency scope)
	RecordIDs  []uuid.UUID // individually named records from scoped grants
}

// Matches reports whether the visibility filter selects rec. This is the
// in-memory equivalent of the SQL filter repositories build from Visibility.
func (v Visibility) Matches(rec Record) bool {
	if v.All {
		return true
	}
	if v.OwnerID != uuid.Nil && rec.OwnerPatientID == v.OwnerID {
		return true
	}
	if v.AuthoredBy != uuid.Nil && rec.CreatorID == v.AuthoredBy {
		return true
	}
	for _, pid := range v.PatientIDs {
		if rec.OwnerPatientID == pid {
			return true
		}
	}
	for _, rid := range v.RecordIDs {
		if rec.ID == rid {
			return true
		}
	}
	return false
}

// VisibilityFor computes the record-set filter for p: the union of owned
// records, authored records, records of patients with an ALL-scope valid
// grant, and records individually named in scoped grants.
func (e *Engine) VisibilityFor(ctx context.Context, p auth.Principal) (Visibility, error) {
	switch p.Role {
	case auth.RoleAdmin:
		return Visibility{All: true}, nil
	case auth.RolePatient:
		return Visibility{OwnerID: p.ID, AuthoredBy: p.ID}, nil
	case auth.RoleEmergency:
		return Visibility{PatientIDs: []uuid.UUID{p.ScopedPatientID}}, nil
	case auth.RoleDoctor:
		grants, err := e.consents.ListValidForGrantee(ctx, p.ID)
		if err != nil {
			return Visibility{}, err
		}
		v := Visibility{AuthoredBy: p.ID}
		for _, g := range grants {
			if g.Scope.ScopeAll {
				v.PatientIDs = append(v.PatientIDs, g.PatientID)
			} else {
				v.RecordIDs = append(v.RecordIDs, g.Scope.RecordIDs...)
			}
		}
		return v, nil
	default:
		return Visibility{}, nil
	}
}
